package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/services/identity"
	"github.com/mcoot/anubis-client/internal/transport"
)

// storageTimeout bounds identity writes made from event handlers
const storageTimeout = 5 * time.Second

// Conn is the part of the connection manager the session protocol needs
type Conn interface {
	On(event model.EventType, h transport.Handler) func()
	Send(event model.EventType, payload any) error
	State() model.ConnectionState
	ConnID() string
	MarkReady(connID string) bool
}

// Protocol runs the init/ready handshake on every physical connection and keeps
// the identity in step with the authority's pushes.
type Protocol struct {
	conn   Conn
	ids    *identity.Store
	logger *slog.Logger

	mu             sync.RWMutex
	initConn       string
	tableID        string
	tableListeners []func(tableID string)

	unsubscribe []func()
}

// New creates a Protocol and subscribes it to conn
func New(conn Conn, ids *identity.Store, logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	p := &Protocol{
		conn:   conn,
		ids:    ids,
		logger: logger.With(slog.String("component", "session")),
	}

	l := p.logger
	p.unsubscribe = []func(){
		conn.On(model.EventConnect, p.onConnect),
		conn.On(model.EventSessionReady, transport.Typed(l, p.onReady)),
		conn.On(model.EventSessionNicknameUpdated, transport.Typed(l, p.onNicknameUpdated)),
		conn.On(model.EventSessionBalance, transport.Typed(l, p.onBalance)),
		conn.On(model.EventDepositConfirmed, transport.Typed(l, p.onDepositConfirmed)),
		conn.On(model.EventCashoutCompleted, transport.Typed(l, p.onCashoutCompleted)),
		conn.On(model.EventTableJoined, transport.Typed(l, p.onTableJoined)),
		conn.On(model.EventTableLeft, transport.Typed(l, p.onTableLeft)),
	}
	return p
}

// Close removes the protocol's subscriptions
func (p *Protocol) Close() {
	for _, unsub := range p.unsubscribe {
		unsub()
	}
}

func (p *Protocol) onConnect(msg transport.Message) {
	p.mu.Lock()
	if msg.ConnID != "" && msg.ConnID == p.initConn {
		p.mu.Unlock()
		return
	}
	p.initConn = msg.ConnID
	p.mu.Unlock()

	id := p.ids.Identity()
	req := model.SessionInitPayload{SessionID: id.SessionID, Nickname: id.Nickname}
	if err := p.conn.Send(model.EventSessionInit, req); err != nil {
		p.logger.Warn("failed to send session init", slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("session init sent",
		slog.String("conn_id", msg.ConnID),
		slog.Bool("resume", req.SessionID != ""))
}

func (p *Protocol) onReady(ready model.SessionReadyPayload, msg transport.Message) {
	// A ready from a connection that has since dropped must not touch the identity
	if msg.ConnID == "" || msg.ConnID != p.conn.ConnID() {
		p.logger.Warn("ignoring session ready for stale connection", slog.String("conn_id", msg.ConnID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := p.ids.Save(ctx, ready.SessionID); err != nil {
		p.logger.Error("failed to persist session id", slog.String("error", err.Error()))
	}
	if _, err := p.ids.SetNickname(ctx, ready.Nickname); err != nil {
		p.logger.Error("failed to persist nickname", slog.String("error", err.Error()))
	}
	p.ids.SetChips(ready.Chips)
	p.setTable(ready.TableID)

	if !p.conn.MarkReady(msg.ConnID) {
		p.logger.Warn("ignoring session ready for stale connection", slog.String("conn_id", msg.ConnID))
		return
	}
	p.logger.Info("session ready",
		slog.String("session_id", ready.SessionID),
		slog.String("table_id", ready.TableID),
		slog.Int64("chips", ready.Chips))
}

func (p *Protocol) onNicknameUpdated(payload model.NicknamePayload, _ transport.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if _, err := p.ids.SetNickname(ctx, payload.Nickname); err != nil {
		p.logger.Error("failed to persist nickname", slog.String("error", err.Error()))
	}
}

func (p *Protocol) onBalance(payload model.BalancePayload, _ transport.Message) {
	p.ids.SetChips(payload.Chips)
}

func (p *Protocol) onDepositConfirmed(payload model.DepositConfirmedPayload, _ transport.Message) {
	p.logger.Info("deposit confirmed", slog.Int64("chips", payload.Chips))
	p.ids.SetChips(payload.NewBalance)
}

func (p *Protocol) onCashoutCompleted(payload model.CashoutCompletedPayload, _ transport.Message) {
	p.logger.Info("cashout completed", slog.Int64("chips", payload.Chips))
	p.ids.SetChips(payload.RemainingChips)
}

func (p *Protocol) onTableJoined(payload model.TableJoinedPayload, _ transport.Message) {
	p.logger.Info("seated", slog.String("table_id", payload.TableID), slog.Int("seat", payload.SeatIndex))
	p.setTable(payload.TableID)
}

func (p *Protocol) onTableLeft(payload model.TableLeftPayload, _ transport.Message) {
	p.logger.Info("left table",
		slog.String("table_id", payload.TableID),
		slog.Int64("chips_returned", payload.ChipsReturned))
	p.ids.SetChips(payload.NewBalance)
	p.setTable("")
}

func (p *Protocol) setTable(tableID string) {
	p.mu.Lock()
	if p.tableID == tableID {
		p.mu.Unlock()
		return
	}
	p.tableID = tableID
	listeners := append([]func(string){}, p.tableListeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(tableID)
	}
}

// SetNickname applies a nickname locally and asks the authority to adopt it.
// The local value is kept even when offline; the server's reply is canonical.
func (p *Protocol) SetNickname(ctx context.Context, raw string) (string, error) {
	nickname, persistErr := p.ids.SetNickname(ctx, raw)
	if p.Ready() {
		if err := p.conn.Send(model.EventSessionSetNickname, model.NicknamePayload{Nickname: nickname}); err != nil {
			return nickname, fmt.Errorf("request nickname change: %w", err)
		}
	}
	return nickname, persistErr
}

// RefreshBalance asks the authority to push the current balance
func (p *Protocol) RefreshBalance() error {
	if !p.Ready() {
		return model.ErrNotReady
	}
	return p.conn.Send(model.EventSessionGetBalance, nil)
}

// Ready reports whether the handshake has completed on the current connection
func (p *Protocol) Ready() bool {
	return p.conn.State() == model.StateReady
}

// TableID returns the table the identity is seated at, or ""
func (p *Protocol) TableID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tableID
}

// Identity returns a copy of the current identity
func (p *Protocol) Identity() model.Identity {
	return p.ids.Identity()
}

// OnTableChange registers fn to be called whenever the current table changes.
// It runs on the event goroutine.
func (p *Protocol) OnTableChange(fn func(tableID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tableListeners = append(p.tableListeners, fn)
}
