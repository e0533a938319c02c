package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

func newWatchCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream every event seen on the connection",
		Long: `Connect and print every event as it is delivered, connection lifecycle
events included. Useful for debugging the room or the client.

Press Ctrl+C to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			// Handlers run on the single dispatch goroutine, so seen needs no lock
			done := make(chan struct{})
			failed := make(chan error, 1)
			seen := 0
			app.Conn.On(transport.AnyEvent, func(msg transport.Message) {
				if count > 0 && seen >= count {
					return
				}
				out.Print(eventLine(msg, app.Clock.Now()))
				seen++
				if count > 0 && seen == count {
					close(done)
				}
				if msg.Event == model.EventConnectFailed {
					offer(failed, msg.Err)
				}
			})

			if err := app.Start(ctx); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case <-done:
			case err := <-failed:
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many events (0 streams until Ctrl+C)")

	return cmd
}

func eventLine(msg transport.Message, at time.Time) EventLine {
	line := EventLine{
		Time:  at,
		Event: string(msg.Event),
		Data:  msg.Data,
		State: string(msg.State),
	}
	if msg.Err != nil {
		line.Error = msg.Err.Error()
	}
	return line
}
