// Package run owns process lifetime: signal handling and exit codes.
package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownTimeout bounds every shutdown hook passed to Graceful.
const ShutdownTimeout = 10 * time.Second

type Runner struct {
	Logger *zap.Logger
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log}
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives and
// maps the outcome to a process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
		return 0
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return 0
		}
		r.Logger.Error("service exited with error", zap.Error(err))
		return 1
	}
}

// Graceful runs shutdown with a fresh context bounded by ShutdownTimeout.
func (r *Runner) Graceful(name string, shutdown func(context.Context) error) {
	c, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := shutdown(c); err != nil {
		r.Logger.Warn("graceful shutdown failed", zap.String("component", name), zap.Error(err))
	}
}

func Exit(code int) {
	os.Exit(code)
}
