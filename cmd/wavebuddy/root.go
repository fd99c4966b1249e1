package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/ayusman/wavebuddy/internal/config"
	"github.com/ayusman/wavebuddy/internal/log"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "wavebuddy",
		Usage: "A friendly assistant that answers children's gestures and questions out loud",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides LOG_LEVEL",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := cmd.String("log-level")
			if level == "" {
				level = config.Load().Server.LogLevel
			}
			log.Init(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newAskCommand(),
			newHistoryCommand(),
			newClassifyCommand(),
		},
	}
}
