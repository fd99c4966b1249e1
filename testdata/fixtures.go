// Package testdata holds recorded pose fixtures and synthetic camera frames
// for integration tests.
package testdata

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/wavebuddy/internal/pose"
)

//go:embed poses/*.json
var posesFS embed.FS

// Frame size of the synthetic frames.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// LoadPose loads a pose fixture by name, with or without the .json suffix.
func LoadPose(name string) (pose.Pose, error) {
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	data, err := posesFS.ReadFile("poses/" + name)
	if err != nil {
		return pose.Pose{}, fmt.Errorf("load pose %s: %w", name, err)
	}

	var p pose.Pose
	if err := json.Unmarshal(data, &p); err != nil {
		return pose.Pose{}, fmt.Errorf("decode pose %s: %w", name, err)
	}
	return p, nil
}

// PoseNames lists the available fixtures without their suffix.
func PoseNames() ([]string, error) {
	entries, err := posesFS.ReadDir("poses")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

// MotionFrames returns a black and a white frame. Played in a loop they
// trip the motion gate on every frame. The caller closes them.
func MotionFrames() []*gocv.Mat {
	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	return []*gocv.Mat{&black, &white}
}
