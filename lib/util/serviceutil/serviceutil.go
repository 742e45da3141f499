package serviceutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context that is canceled on SIGINT or SIGTERM.
// Calling stop releases the signal handler.
func SignalContext() (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Fatal prints message to stderr and exits with status 1. The underlying
// error is kept at debug level so the full chain shows up with --debug.
func Fatal(message string, err error) {
	slog.Debug("fatal", "err", err)
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
