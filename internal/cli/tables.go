package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/anubis-client/internal/model"
)

func newTablesCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List joinable tables",
		Long: `List the tables the room currently offers.

With --watch the listing is printed again on every refresh until Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			updates := make(chan []model.TableSummary, 1)
			app.Directory.OnUpdate(func(tables []model.TableSummary) {
				offer(updates, tables)
			})

			if err := connect(ctx, app, cfg.Timeout); err != nil {
				return err
			}

			tables, ok := await(ctx, updates, cfg.Timeout)
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("no table listing received within %s", cfg.Timeout)
			}
			out.Print(tables)
			if !watch {
				return nil
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case tables := <-updates:
					out.Print(tables)
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing the listing as it refreshes")

	return cmd
}
