package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

func newIdentityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Inspect or forget the stored anonymous identity",
	}

	cmd.AddCommand(newIdentityShowCmd())
	cmd.AddCommand(newIdentityClearCmd())

	return cmd
}

func newIdentityShowCmd() *cobra.Command {
	var sync bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored identity",
		Long: `Show the stored session id and nickname.

With --sync the client connects first and shows the identity the room
confirmed, including the current chip balance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if sync {
				if err := connect(ctx, app, cfg.Timeout); err != nil {
					return err
				}
			} else if err := app.Load(ctx); err != nil {
				return err
			}

			out.Print(app.Session.Identity())
			return nil
		},
	}

	cmd.Flags().BoolVar(&sync, "sync", false, "Connect and show the identity confirmed by the room")

	return cmd
}

func newIdentityClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored identity",
		Long: `Remove the stored session id and nickname. The next connect starts a
fresh identity; chips held by the old one are not recoverable from this client.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.Identity.Clear(ctx); err != nil {
				return err
			}
			out.PrintMessage("Identity cleared")
			return nil
		},
	}
}

func newNicknameCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "nickname <name>",
		Short: "Set the display nickname",
		Long: `Set the display nickname. Letters, digits and underscores are kept and
the result is cut to 20 characters.

The nickname is always saved locally. When the room is reachable it is also
sent there; otherwise it is offered on the next connect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			confirmed := make(chan model.NicknamePayload, 1)
			app.Conn.On(model.EventSessionNicknameUpdated, transport.Typed(logger, func(p model.NicknamePayload, _ transport.Message) {
				offer(confirmed, p)
			}))

			online := false
			if !offline {
				if err := connect(ctx, app, cfg.Timeout); err != nil {
					logger.Warn("room unreachable, saving nickname locally", slog.String("error", err.Error()))
				} else {
					online = true
				}
			}
			if !online {
				if err := app.Load(ctx); err != nil {
					return err
				}
			}

			nickname, err := app.Session.SetNickname(ctx, args[0])
			if err != nil {
				return err
			}
			if online {
				if _, ok := await(ctx, confirmed, cfg.Timeout); !ok {
					logger.Warn("nickname not confirmed by the room", slog.String("nickname", nickname))
				}
			}

			out.Print(app.Session.Identity())
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Only save the nickname locally")

	return cmd
}
