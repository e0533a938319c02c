package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcoot/anubis-client/internal/factory"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/services/alerts"
	"github.com/mcoot/anubis-client/internal/services/projector"
)

const playHelp = `Commands:
  fold | check | call | allin      act without an amount
  bet <n> | raise <n>              act with a total amount
  join <table> <buy-in>            take a seat
  leave                            leave the table, refunding the stack
  tables                           show the directory
  view                             redraw the table
  nick <name>                      change nickname
  balance                          refresh and show chips
  help                             this text
  quit                             exit`

// playCommand is one parsed line of interactive input
type playCommand struct {
	Name     string
	Action   model.ActionKind
	Amount   int64
	TableID  string
	Nickname string
}

var actionWords = map[string]model.ActionKind{
	"fold":   model.ActionFold,
	"check":  model.ActionCheck,
	"call":   model.ActionCall,
	"bet":    model.ActionBet,
	"raise":  model.ActionRaise,
	"allin":  model.ActionAllIn,
	"all_in": model.ActionAllIn,
	"all-in": model.ActionAllIn,
}

var errUsage = errors.New("usage")

func parsePlayCommand(line string) (playCommand, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return playCommand{}, nil
	}
	word := strings.ToLower(fields[0])
	args := fields[1:]

	if kind, ok := actionWords[word]; ok {
		cmd := playCommand{Name: "act", Action: kind}
		if !kind.NeedsAmount() {
			if len(args) != 0 {
				return playCommand{}, fmt.Errorf("%w: %s takes no amount", errUsage, word)
			}
			return cmd, nil
		}
		if len(args) != 1 {
			return playCommand{}, fmt.Errorf("%w: %s <amount>", errUsage, word)
		}
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return playCommand{}, fmt.Errorf("%w: %q is not a whole number", errUsage, args[0])
		}
		cmd.Amount = amount
		return cmd, nil
	}

	switch word {
	case "join":
		if len(args) != 2 {
			return playCommand{}, fmt.Errorf("%w: join <table> <buy-in>", errUsage)
		}
		buyIn, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return playCommand{}, fmt.Errorf("%w: %q is not a whole number", errUsage, args[1])
		}
		return playCommand{Name: "join", TableID: args[0], Amount: buyIn}, nil
	case "nick", "nickname":
		if len(args) == 0 {
			return playCommand{}, fmt.Errorf("%w: nick <name>", errUsage)
		}
		return playCommand{Name: "nick", Nickname: strings.Join(args, " ")}, nil
	case "leave", "tables", "view", "balance", "help":
		return playCommand{Name: word}, nil
	case "quit", "exit", "q":
		return playCommand{Name: "quit"}, nil
	}
	return playCommand{}, fmt.Errorf("%w: unknown command %q, try help", errUsage, word)
}

func newPlayCmd() *cobra.Command {
	var (
		tableID string
		buyIn   int64
		clamp   bool
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Sit at a table and play interactively",
		Long: `Connect, optionally join a table, and play from the terminal.

The table is redrawn whenever the room sends a new state. Type help at the
prompt for the list of commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Clamp = clamp
			ctx, app, cleanup, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			listed := make(chan []model.TableSummary, 1)
			app.Directory.OnUpdate(func(tables []model.TableSummary) { offer(listed, tables) })
			app.Projector.OnChange(func(view projector.View, ok bool) {
				if ok {
					out.Print(view)
				}
			})
			app.Alerts.OnAlert(func(a alerts.Alert) { out.Print(a) })
			app.Session.OnTableChange(func(id string) {
				if id == "" {
					out.PrintMessage("Left the table")
					return
				}
				out.PrintMessage("Seated at " + id)
			})

			if err := connect(ctx, app, cfg.Timeout); err != nil {
				return err
			}
			out.Print(app.Session.Identity())

			if tableID != "" && app.Session.TableID() == "" {
				if _, ok := await(ctx, listed, cfg.Timeout); !ok {
					return fmt.Errorf("no table listing received within %s", cfg.Timeout)
				}
				if err := app.Directory.Join(tableID, buyIn); err != nil {
					return err
				}
			}

			return playLoop(ctx, app, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&tableID, "table", "", "Table to join on start")
	cmd.Flags().Int64Var(&buyIn, "buy-in", 0, "Buy-in for --table")
	cmd.Flags().BoolVar(&clamp, "clamp", false, "Move out-of-range bets to the nearest allowed amount instead of refusing")

	return cmd
}

func playLoop(ctx context.Context, app *factory.App, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			pc, err := parsePlayCommand(line)
			if err != nil {
				out.PrintError(err)
				continue
			}
			if pc.Name == "quit" {
				return nil
			}
			if err := runPlayCommand(ctx, app, pc); err != nil {
				out.PrintError(err)
			}
		}
	}
}

func runPlayCommand(ctx context.Context, app *factory.App, pc playCommand) error {
	switch pc.Name {
	case "":
		return nil
	case "act":
		outcome, err := app.Dispatcher.Act(pc.Action, pc.Amount)
		if err != nil {
			return err
		}
		if outcome.Clamped && outcome.Amount != nil {
			out.PrintMessage(fmt.Sprintf("Amount adjusted to %d", *outcome.Amount))
		}
		return nil
	case "join":
		return app.Directory.Join(pc.TableID, pc.Amount)
	case "leave":
		return app.Directory.Leave()
	case "tables":
		out.Print(app.Directory.Tables())
		return nil
	case "view":
		view, ok := app.Projector.View()
		if !ok {
			out.PrintMessage("Not at a table")
			return nil
		}
		out.Print(view)
		return nil
	case "nick":
		if _, err := app.Session.SetNickname(ctx, pc.Nickname); err != nil {
			return err
		}
		out.Print(app.Session.Identity())
		return nil
	case "balance":
		pushed, stop := watchBalance(app.Conn)
		defer stop()
		if err := app.Session.RefreshBalance(); err != nil {
			return err
		}
		if _, ok := await(ctx, pushed, cfg.Timeout); !ok {
			out.PrintMessage("Balance refresh requested")
			return nil
		}
		out.Print(app.Session.Identity())
		return nil
	case "help":
		out.PrintMessage(playHelp)
		return nil
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, pc.Name)
}
