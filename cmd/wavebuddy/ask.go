package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ayusman/wavebuddy/internal/chat"
	"github.com/ayusman/wavebuddy/internal/config"
	"github.com/ayusman/wavebuddy/internal/speech"
)

func newAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one prompt to the chat deployment and print the reply",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "persona",
				Usage: "System message; defaults to the Wave Buddy persona",
				Value: chat.DefaultPersona,
			},
			&cli.BoolFlag{
				Name:  "speak",
				Usage: "Also speak the reply with the local text-to-speech command",
			},
			&cli.BoolFlag{
				Name:  "detect-language",
				Usage: "Print the detected language of the reply",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall timeout",
				Value: 60 * time.Second,
			},
		},
		Action: runAsk,
	}
}

func runAsk(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if prompt == "" {
		return fmt.Errorf("%w: wavebuddy ask <prompt>", errUsage)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := newChatClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	reply, err := client.Respond(ctx, prompt, cmd.String("persona"), cfg.Chat.MaxTokens)
	if err != nil {
		return chatError(err)
	}
	fmt.Fprintln(os.Stdout, reply)

	lang := cfg.Speech.Language
	if cmd.Bool("detect-language") {
		if code, err := client.DetectLanguage(ctx, reply); err == nil {
			lang = code
			fmt.Fprintf(os.Stderr, "language: %s\n", code)
		} else {
			fmt.Fprintf(os.Stderr, "language: unknown (%v)\n", err)
		}
	}

	if cmd.Bool("speak") {
		synth, err := speech.NewCommandSynthesizer(cfg.Speech.TTSCommand)
		if err != nil {
			return fmt.Errorf("speak: %w", err)
		}
		return synth.Speak(ctx, reply, lang)
	}
	return nil
}
