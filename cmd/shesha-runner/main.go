// Command shesha-runner is the sandboxed child process spawned by the pool.
// It speaks the line-framed JSON protocol on stdin/stdout (see
// internal/sandbox) and hosts exactly one query's REPL for its lifetime.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheshahq/shesha/internal/sandbox"
	"github.com/sheshahq/shesha/internal/sandbox/runner"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limits := sandbox.Limits{
		MaxLineLength:  envInt("SHESHA_MAX_LINE_LENGTH", 1<<20),
		MaxBufferSize:  envInt("SHESHA_MAX_BUFFER_SIZE", 10<<20),
		MaxReadTimeout: envDuration("SHESHA_MAX_READ_TIMEOUT", 300*time.Second),
	}

	loop := runner.NewLoop(os.Stdin, os.Stdout, limits)
	if err := loop.Run(ctx); err != nil {
		logger.Error("runner loop exited with error", "error", err.Error())
		os.Exit(1)
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
