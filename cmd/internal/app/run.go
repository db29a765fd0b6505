package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Serve is the entrypoint of `taskflow serve`. It returns an error instead
// of calling os.Exit so deferred cleanup runs.
func Serve(ctx context.Context, cfg Config) error {
	log := NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat, cfg.LogColor)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return a.Run(ctx)
}
