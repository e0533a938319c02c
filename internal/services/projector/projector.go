package projector

import (
	"io"
	"log/slog"
	"sync"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/transport"
)

// Conn is the part of the connection manager the projector needs
type Conn interface {
	On(event model.EventType, h transport.Handler) func()
	Send(event model.EventType, payload any) error
}

// Viewer identifies whose perspective the table is rendered from
type Viewer interface {
	Identity() model.Identity
}

// DisplaySeat is one table position placed relative to the viewer.
// Position 0 is the viewer's own seat when seated.
type DisplaySeat struct {
	Index      int
	Position   int
	Seat       *model.Seat
	Hero       bool
	Dealer     bool
	SmallBlind bool
	BigBlind   bool
	Acting     bool
}

// View is a snapshot prepared for rendering
type View struct {
	Snapshot model.GameSnapshot
	HeroSeat int
	MyTurn   bool
	// Seats is ordered by display position
	Seats []DisplaySeat
}

// Projector holds the latest snapshot of the table the viewer is at.
//
// A personalized game:state always replaces what is held. A game:publicState
// is dropped while the held snapshot advertises legal actions, so a broadcast
// can never hide the viewer's turn.
type Projector struct {
	conn   Conn
	viewer Viewer
	logger *slog.Logger

	mu        sync.RWMutex
	snap      *model.GameSnapshot
	listeners []func(View, bool)

	unsubscribe []func()
}

// New creates a Projector and subscribes it to conn
func New(conn Conn, viewer Viewer, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p := &Projector{
		conn:   conn,
		viewer: viewer,
		logger: logger.With(slog.String("component", "projector")),
	}

	l := p.logger
	p.unsubscribe = []func(){
		conn.On(model.EventGameState, transport.Typed(l, func(snap model.GameSnapshot, _ transport.Message) {
			p.ApplyState(snap)
		})),
		conn.On(model.EventGamePublicState, transport.Typed(l, func(snap model.GameSnapshot, _ transport.Message) {
			p.ApplyPublicState(snap)
		})),
		conn.On(model.EventTableLeft, func(transport.Message) { p.Clear() }),
		conn.On(model.EventDisconnect, func(transport.Message) { p.Clear() }),
		conn.On(model.EventSessionReady, transport.Typed(l, func(ready model.SessionReadyPayload, _ transport.Message) {
			p.requestState(ready.TableID)
		})),
		conn.On(model.EventTableJoined, transport.Typed(l, func(joined model.TableJoinedPayload, _ transport.Message) {
			p.requestState(joined.TableID)
		})),
	}
	return p
}

// Close removes the projector's subscriptions
func (p *Projector) Close() {
	for _, unsub := range p.unsubscribe {
		unsub()
	}
}

func (p *Projector) requestState(tableID string) {
	if tableID == "" {
		return
	}
	if err := p.conn.Send(model.EventTableGetState, model.TableRefPayload{TableID: tableID}); err != nil {
		p.logger.Warn("failed to request table state",
			slog.String("table_id", tableID),
			slog.String("error", err.Error()))
	}
}

// ApplyState replaces the held snapshot unconditionally
func (p *Projector) ApplyState(snap model.GameSnapshot) {
	p.mu.Lock()
	p.snap = snap.Clone()
	p.mu.Unlock()

	p.logger.Debug("state applied",
		slog.String("table_id", snap.TableID),
		slog.String("phase", string(snap.Phase)),
		slog.Int("legal_actions", len(snap.ValidActions)))
	p.notify()
}

// ApplyPublicState replaces the held snapshot unless it currently advertises
// legal actions. It reports whether the snapshot was applied.
func (p *Projector) ApplyPublicState(snap model.GameSnapshot) bool {
	p.mu.Lock()
	if p.snap.HasLegalActions() {
		p.mu.Unlock()
		p.logger.Debug("public state ignored, personalized turn view held", slog.String("table_id", snap.TableID))
		return false
	}
	p.snap = snap.Clone()
	p.mu.Unlock()

	p.notify()
	return true
}

// Clear forgets the held snapshot
func (p *Projector) Clear() {
	p.mu.Lock()
	had := p.snap != nil
	p.snap = nil
	p.mu.Unlock()

	if had {
		p.notify()
	}
}

// Snapshot returns a deep copy of the held snapshot
func (p *Projector) Snapshot() (model.GameSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snap == nil {
		return model.GameSnapshot{}, false
	}
	return *p.snap.Clone(), true
}

// View returns the held snapshot arranged around the viewer
func (p *Projector) View() (View, bool) {
	snap, ok := p.Snapshot()
	if !ok {
		return View{HeroSeat: -1}, false
	}
	return Project(snap, p.viewer.Identity().SessionID), true
}

// OnChange registers fn to be called after every change to the held snapshot.
// ok is false once the snapshot has been cleared.
func (p *Projector) OnChange(fn func(view View, ok bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Projector) notify() {
	p.mu.RLock()
	listeners := append([]func(View, bool){}, p.listeners...)
	p.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	view, ok := p.View()
	for _, fn := range listeners {
		fn(view, ok)
	}
}

// Project arranges snap around the seat held by sessionID
func Project(snap model.GameSnapshot, sessionID string) View {
	hero := snap.SeatOf(sessionID)
	count := len(snap.Seats)

	seats := make([]DisplaySeat, count)
	for i, seat := range snap.Seats {
		pos := DisplayPosition(i, hero, count)
		seats[pos] = DisplaySeat{
			Index:      i,
			Position:   pos,
			Seat:       seat,
			Hero:       i == hero,
			Dealer:     i == snap.DealerSeat,
			SmallBlind: i == snap.SBSeat,
			BigBlind:   i == snap.BBSeat,
			Acting:     snap.IsCurrentTurn(i),
		}
	}

	return View{
		Snapshot: snap,
		HeroSeat: hero,
		MyTurn:   hero >= 0 && snap.IsCurrentTurn(hero),
		Seats:    seats,
	}
}

// DisplayPosition rotates seat so the hero sits at position 0.
// With no hero (-1) seats keep their canonical order.
func DisplayPosition(seat, hero, count int) int {
	if count <= 0 {
		return seat
	}
	if hero < 0 {
		return ((seat % count) + count) % count
	}
	return ((seat-hero)%count + count) % count
}
