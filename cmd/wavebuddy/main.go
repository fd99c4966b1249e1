// Command wavebuddy runs the children's gesture and voice assistant.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayusman/wavebuddy/internal/config"
	"github.com/ayusman/wavebuddy/internal/log"
)

func main() {
	if err := config.LoadDotenv(".env"); err != nil {
		log.Warn("failed to load .env", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}
