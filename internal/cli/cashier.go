package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/anubis-client/internal/cashier"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

func newCashierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cashier",
		Short: "Deposit ETH for chips or cash chips out",
	}

	cmd.AddCommand(newCashierEscrowCmd())
	cmd.AddCommand(newCashierDepositCmd())
	cmd.AddCommand(newCashierPreviewCmd())
	cmd.AddCommand(newCashierCashoutCmd())

	return cmd
}

func newCashierClient() *cashier.Client {
	ccfg := cashier.DefaultConfig()
	ccfg.BaseURL = cfg.APIURL
	return cashier.New(ccfg, nil, logger)
}

func newCashierEscrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "escrow",
		Short: "Show the deposit address and exchange rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := newCashierClient().Escrow(cmd.Context())
			if err != nil {
				return err
			}
			out.Print(info)
			return nil
		},
	}
}

func newCashierPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <chips>",
		Short: "Estimate the ETH paid out for chips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chips, err := parseChips(args[0])
			if err != nil {
				return err
			}
			preview, err := newCashierClient().PreviewCashout(cmd.Context(), chips)
			if err != nil {
				return err
			}
			out.Print(preview)
			return nil
		},
	}
}

func newCashierDepositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <tx-hash>",
		Short: "Credit an ETH transfer to the escrow address",
		Long: `Ask the cashier to verify a transfer to the escrow address and credit
the chips. The balance shown afterwards is the one the room confirms.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			balances, stop := watchBalance(app.Conn)
			defer stop()
			if err := connect(ctx, app, cfg.Timeout); err != nil {
				return err
			}

			res, err := app.Cashier.VerifyDeposit(ctx, app.Session.Identity().SessionID, args[0])
			if err != nil {
				return err
			}
			out.Print(res)

			await(ctx, balances, cfg.Timeout)
			out.Print(app.Session.Identity())
			return nil
		},
	}
}

func newCashierCashoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cashout <chips> <address>",
		Short: "Cash chips out to an ETH address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chips, err := parseChips(args[0])
			if err != nil {
				return err
			}
			if !cashier.ValidAddress(args[1]) {
				return fmt.Errorf("%w: %q", model.ErrInvalidAddress, args[1])
			}

			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			balances, stop := watchBalance(app.Conn)
			defer stop()
			if err := connect(ctx, app, cfg.Timeout); err != nil {
				return err
			}

			id := app.Session.Identity()
			res, err := app.Cashier.Cashout(ctx, id.SessionID, chips, id.Chips, args[1])
			if err != nil {
				return err
			}
			out.Print(res)

			await(ctx, balances, cfg.Timeout)
			out.Print(app.Session.Identity())
			return nil
		},
	}
}

// watchBalance signals each balance push so commands can show the confirmed
// value. stop removes the subscription.
func watchBalance(conn *transport.Manager) (pushed <-chan struct{}, stop func()) {
	ch := make(chan struct{}, 1)
	stop = conn.On(model.EventSessionBalance, func(transport.Message) { offer(ch, struct{}{}) })
	return ch, stop
}

func parseChips(raw string) (int64, error) {
	chips, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || chips <= 0 {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidAmount, raw)
	}
	return chips, nil
}
