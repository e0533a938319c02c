package directory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/anubis-client/internal/dependencies/clock"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

// Conn is the part of the connection manager the directory needs
type Conn interface {
	On(event model.EventType, h transport.Handler) func()
	Send(event model.EventType, payload any) error
	State() model.ConnectionState
}

// SeatState reports the identity's standing, used to vet joins locally
type SeatState interface {
	Ready() bool
	TableID() string
	Identity() model.Identity
}

// Config holds directory settings
type Config struct {
	// RefreshInterval is the time between automatic listings while unseated
	RefreshInterval time.Duration
}

// DefaultConfig returns the default directory settings
func DefaultConfig() Config {
	return Config{RefreshInterval: 5 * time.Second}
}

// Directory keeps the list of joinable tables fresh while the identity is not seated
type Directory struct {
	conn   Conn
	seats  SeatState
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	tables    []model.TableSummary
	updatedAt time.Time
	listeners []func([]model.TableSummary)

	// loopMu guards the refresh loop lifecycle
	loopMu  sync.Mutex
	parent  context.Context
	started bool
	seated  bool
	cancel  context.CancelFunc
	done    chan struct{}

	unsubscribe []func()
}

// New creates a Directory and subscribes it to conn
func New(conn Conn, seats SeatState, clk clock.Clock, cfg Config, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	d := &Directory{
		conn:   conn,
		seats:  seats,
		clock:  clk,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "directory")),
	}
	d.unsubscribe = []func(){
		conn.On(model.EventTablesList, transport.Typed(d.logger, d.onList)),
		conn.On(model.EventStateChanged, d.onState),
	}
	return d
}

// Fetch asks the authority for the current listing
func (d *Directory) Fetch() error {
	if !d.conn.State().Online() {
		return model.ErrNotConnected
	}
	if err := d.conn.Send(model.EventTablesList, nil); err != nil {
		return fmt.Errorf("request table list: %w", err)
	}
	return nil
}

// Start begins periodic refresh. Refresh is suspended while seated.
func (d *Directory) Start(ctx context.Context) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.parent = ctx
	if !d.seated {
		d.startLoop()
	}
}

// Stop ends periodic refresh and waits for the loop to exit
func (d *Directory) Stop() {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	d.started = false
	d.stopLoop()
}

// Close stops refreshing and removes the directory's subscriptions
func (d *Directory) Close() {
	d.Stop()
	for _, unsub := range d.unsubscribe {
		unsub()
	}
}

// SetSeated suspends refresh while seated and resumes it after leaving
func (d *Directory) SetSeated(seated bool) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	if d.seated == seated {
		return
	}
	d.seated = seated
	if seated {
		d.logger.Debug("seated, pausing table refresh")
		d.stopLoop()
		return
	}
	if d.started {
		d.logger.Debug("unseated, resuming table refresh")
		d.startLoop()
	}
}

// Refreshing reports whether the refresh loop is running
func (d *Directory) Refreshing() bool {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	return d.cancel != nil
}

// startLoop must be called with loopMu held
func (d *Directory) startLoop() {
	if d.cancel != nil {
		return
	}
	parent := d.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	go d.run(ctx, done)
}

// stopLoop must be called with loopMu held
func (d *Directory) stopLoop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
	d.done = nil
}

func (d *Directory) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := d.clock.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()

	d.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			d.refresh()
		}
	}
}

func (d *Directory) refresh() {
	if err := d.Fetch(); err != nil {
		d.logger.Debug("table refresh skipped", slog.String("error", err.Error()))
	}
}

func (d *Directory) onState(msg transport.Message) {
	if msg.State != model.StateReady || d.seats.TableID() != "" {
		return
	}
	d.refresh()
}

func (d *Directory) onList(tables []model.TableSummary, _ transport.Message) {
	listing := append([]model.TableSummary{}, tables...)

	d.mu.Lock()
	d.tables = listing
	d.updatedAt = d.clock.Now()
	listeners := append([]func([]model.TableSummary){}, d.listeners...)
	d.mu.Unlock()

	d.logger.Debug("table list updated", slog.Int("tables", len(listing)))
	for _, fn := range listeners {
		fn(append([]model.TableSummary{}, listing...))
	}
}

// Tables returns a copy of the latest listing
func (d *Directory) Tables() []model.TableSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.TableSummary{}, d.tables...)
}

// Find returns the listed table with the given id
func (d *Directory) Find(tableID string) (model.TableSummary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tables {
		if t.ID == tableID {
			return t, true
		}
	}
	return model.TableSummary{}, false
}

// UpdatedAt returns when the listing was last replaced
func (d *Directory) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}

// OnUpdate registers fn to receive each new listing
func (d *Directory) OnUpdate(fn func([]model.TableSummary)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Join requests a seat. The checks only save a round trip; the authority
// still decides and answers with table:joined or table:error.
func (d *Directory) Join(tableID string, buyIn int64) error {
	if !d.seats.Ready() {
		return model.ErrNotReady
	}
	if current := d.seats.TableID(); current != "" {
		return fmt.Errorf("%w: %s", model.ErrAlreadySeated, current)
	}
	table, ok := d.Find(tableID)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownTable, tableID)
	}
	if table.Full() {
		return fmt.Errorf("%w: %s", model.ErrTableFull, table.Name)
	}
	if !table.AcceptsBuyIn(buyIn) {
		return fmt.Errorf("%w: %d not in [%d, %d]", model.ErrBuyInOutOfRange, buyIn, table.MinBuyIn, table.MaxBuyIn)
	}
	if chips := d.seats.Identity().Chips; buyIn > chips {
		return fmt.Errorf("%w: have %d, need %d", model.ErrInsufficientChips, chips, buyIn)
	}

	if err := d.conn.Send(model.EventTableJoin, model.JoinTablePayload{TableID: tableID, BuyIn: buyIn}); err != nil {
		return fmt.Errorf("request seat: %w", err)
	}
	d.logger.Info("join requested", slog.String("table_id", tableID), slog.Int64("buy_in", buyIn))
	return nil
}

// Leave asks to leave the current table
func (d *Directory) Leave() error {
	if !d.seats.Ready() {
		return model.ErrNotReady
	}
	if d.seats.TableID() == "" {
		return model.ErrNotSeated
	}
	if err := d.conn.Send(model.EventTableLeave, nil); err != nil {
		return fmt.Errorf("request leave: %w", err)
	}
	return nil
}
