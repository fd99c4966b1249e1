package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/ayusman/wavebuddy/internal/gesture"
	"github.com/ayusman/wavebuddy/internal/pose"
)

func newClassifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify poses from a JSON file (a pose object or an array of them; - for stdin)",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.FloatFlag{
				Name:  "tilt-threshold",
				Usage: "Ear height difference in pixels counted as a head tilt",
				Value: gesture.DefaultTiltThreshold,
			},
			&cli.FloatFlag{
				Name:  "min-confidence",
				Usage: "Ignore keypoints below this confidence",
			},
		},
		Action: runClassify,
	}
}

func runClassify(_ context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("%w: wavebuddy classify <file>", errUsage)
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	poses, err := readPoses(r)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	cl := gesture.NewClassifier()
	cl.TiltThreshold = cmd.Float("tilt-threshold")
	cl.MinConfidence = cmd.Float("min-confidence")

	for i := range poses {
		g := cl.Classify(&poses[i])
		if prompt := gesture.Prompt(g); prompt != "" {
			fmt.Printf("%d\t%s\t%s\n", i, g, prompt)
		} else {
			fmt.Printf("%d\t%s\n", i, g)
		}
	}
	return nil
}

// readPoses accepts either a single pose object or an array of poses.
func readPoses(r io.Reader) ([]pose.Pose, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	if data[0] == '[' {
		var poses []pose.Pose
		if err := json.Unmarshal(data, &poses); err != nil {
			return nil, fmt.Errorf("decode poses: %w", err)
		}
		return poses, nil
	}

	var p pose.Pose
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pose: %w", err)
	}
	return []pose.Pose{p}, nil
}
