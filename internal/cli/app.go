package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/anubis-client/internal/factory"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

// openApp builds the application and a context cancelled on Ctrl+C.
// The returned cleanup closes both.
func openApp(cmd *cobra.Command) (context.Context, *factory.App, func(), error) {
	fcfg, err := cfg.FactoryConfig(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	app, err := factory.New(fcfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	cleanup := func() {
		stop()
		if err := app.Close(); err != nil {
			logger.Warn("shutdown", slog.String("error", err.Error()))
		}
	}
	return ctx, app, cleanup, nil
}

// connect starts the application and blocks until the handshake completes,
// the manager gives up, or timeout elapses
func connect(ctx context.Context, app *factory.App, timeout time.Duration) error {
	ready := make(chan struct{}, 1)
	failed := make(chan error, 1)

	unsubscribeState := app.Conn.On(model.EventStateChanged, func(msg transport.Message) {
		if msg.State == model.StateReady {
			offer(ready, struct{}{})
		}
	})
	defer unsubscribeState()
	unsubscribeFailed := app.Conn.On(model.EventConnectFailed, func(msg transport.Message) {
		offer(failed, msg.Err)
	})
	defer unsubscribeFailed()

	if err := app.Start(ctx); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return nil
	case err := <-failed:
		return err
	case <-timer.C:
		return fmt.Errorf("%w: no handshake within %s", model.ErrNotReady, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for one value on ch, giving up quietly after timeout
func await[T any](ctx context.Context, ch <-chan T, timeout time.Duration) (T, bool) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// offer is a non-blocking send used from event handlers
func offer[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}
