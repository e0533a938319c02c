package dispatcher

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/mcoot/anubis-client/internal/model"
)

// Sender sends one message to the authority
type Sender interface {
	Send(event model.EventType, payload any) error
}

// SnapshotSource provides the held game snapshot
type SnapshotSource interface {
	Snapshot() (model.GameSnapshot, bool)
}

// AmountPolicy decides what happens to a bet or raise outside the advertised range
type AmountPolicy string

const (
	// PolicyReject refuses to send the action
	PolicyReject AmountPolicy = "reject"
	// PolicyClamp moves the amount to the nearest bound
	PolicyClamp AmountPolicy = "clamp"
)

// Config holds dispatcher settings
type Config struct {
	AmountPolicy AmountPolicy
}

// DefaultConfig rejects out-of-range amounts
func DefaultConfig() Config {
	return Config{AmountPolicy: PolicyReject}
}

// Outcome describes what was sent
type Outcome struct {
	Action model.ActionKind
	// Amount is set for bet and raise
	Amount *int64
	// Clamped reports that the requested amount was moved into range
	Clamped bool
}

// Dispatcher turns player intents into game:action messages. Its checks only
// avoid pointless round trips; the authority may still answer with game:error.
type Dispatcher struct {
	conn   Sender
	snaps  SnapshotSource
	cfg    Config
	logger *slog.Logger
}

// New creates a Dispatcher
func New(conn Sender, snaps SnapshotSource, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.AmountPolicy == "" {
		cfg.AmountPolicy = PolicyReject
	}
	return &Dispatcher{
		conn:   conn,
		snaps:  snaps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Act validates kind and amount against the held snapshot and sends the action.
// amount is ignored for actions that do not carry one.
func (d *Dispatcher) Act(kind model.ActionKind, amount int64) (Outcome, error) {
	if !kind.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", model.ErrUnknownAction, kind)
	}

	snap, ok := d.snaps.Snapshot()
	if !ok || !snap.HasLegalActions() {
		return Outcome{}, model.ErrNotYourTurn
	}
	legal, ok := snap.LegalAction(kind)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", model.ErrActionNotAvailable, kind)
	}

	out := Outcome{Action: kind}
	if kind.NeedsAmount() {
		resolved, clamped, err := d.resolveAmount(legal, amount)
		if err != nil {
			return Outcome{}, err
		}
		out.Amount = &resolved
		out.Clamped = clamped
	}

	if err := d.conn.Send(model.EventGameAction, model.ActionPayload{Action: kind, Amount: out.Amount}); err != nil {
		return Outcome{}, fmt.Errorf("send %s: %w", kind, err)
	}

	attrs := []any{slog.String("action", string(kind)), slog.String("table_id", snap.TableID)}
	if out.Amount != nil {
		attrs = append(attrs, slog.Int64("amount", *out.Amount))
	}
	d.logger.Info("action sent", attrs...)
	return out, nil
}

func (d *Dispatcher) resolveAmount(legal model.LegalAction, amount int64) (int64, bool, error) {
	// Without an advertised minimum the amount must still be positive
	if legal.Min == nil && amount <= 0 {
		return 0, false, fmt.Errorf("%w: %s", model.ErrAmountRequired, legal.Action)
	}

	below, above := legal.Below(amount), legal.Above(amount)
	if !below && !above {
		return amount, false, nil
	}
	if d.cfg.AmountPolicy != PolicyClamp {
		return 0, false, fmt.Errorf("%w: %d not in %s", model.ErrAmountOutOfRange, amount, rangeString(legal))
	}
	if below {
		return *legal.Min, true, nil
	}
	return *legal.Max, true, nil
}

func rangeString(legal model.LegalAction) string {
	lo, hi := "-inf", "+inf"
	if legal.Min != nil {
		lo = strconv.FormatInt(*legal.Min, 10)
	}
	if legal.Max != nil {
		hi = strconv.FormatInt(*legal.Max, 10)
	}
	return "[" + lo + ", " + hi + "]"
}

// Fold folds the hand
func (d *Dispatcher) Fold() (Outcome, error) { return d.Act(model.ActionFold, 0) }

// Check checks
func (d *Dispatcher) Check() (Outcome, error) { return d.Act(model.ActionCheck, 0) }

// Call calls the current bet
func (d *Dispatcher) Call() (Outcome, error) { return d.Act(model.ActionCall, 0) }

// Bet opens the betting with amount
func (d *Dispatcher) Bet(amount int64) (Outcome, error) { return d.Act(model.ActionBet, amount) }

// Raise raises to amount
func (d *Dispatcher) Raise(amount int64) (Outcome, error) { return d.Act(model.ActionRaise, amount) }

// AllIn moves the whole stack in
func (d *Dispatcher) AllIn() (Outcome, error) { return d.Act(model.ActionAllIn, 0) }
