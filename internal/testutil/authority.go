package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mcoot/anubis-client/internal/dependencies/random"
	"github.com/mcoot/anubis-client/internal/model"
)

// Cashier constants served by the fake authority
const (
	FakeEscrowAddress = "0x1111111111111111111111111111111111111111"
	FakeChipsPerEth   = 100000
	FakeCashoutFeePct = 3
	FakeDepositChips  = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Received is one message the fake authority read from a client
type Received struct {
	Conn  int
	Event model.EventType
	Data  json.RawMessage
}

// Decode unmarshals the payload into v
func (r Received) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Responder handles one inbound event on behalf of the fake authority
type Responder func(c *FakeConn, data json.RawMessage)

// FakeSession is the authority's record of one identity
type FakeSession struct {
	ID       string
	Nickname string
	Chips    int64
	TableID  string
	Seat     int
	Stack    int64
}

// FakeAuthority is an in-process stand-in for the poker server. It speaks the
// JSON event protocol over a websocket at /ws and serves the cashier HTTP API.
// Default replies can be replaced per event with Handle.
type FakeAuthority struct {
	// StartingChips is the balance given to newly minted identities
	StartingChips int64

	random random.Random
	server *httptest.Server

	mu         sync.Mutex
	nextConn   int
	conns      map[*FakeConn]struct{}
	received   []Received
	responders map[model.EventType]Responder
	sessions   map[string]*FakeSession
	tables     []model.TableSummary
	snapshots  map[string]*model.GameSnapshot
	refuse     bool
}

// FakeConn is one client connection to the fake authority
type FakeConn struct {
	ID        int
	authority *FakeAuthority
	ws        *websocket.Conn
	writeMu   sync.Mutex

	mu        sync.Mutex
	sessionID string
}

type envelope struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFakeAuthority starts a fake authority. rnd mints session ids; pass a
// mocks.MockRandom to control them.
func NewFakeAuthority(rnd random.Random) *FakeAuthority {
	if rnd == nil {
		rnd = random.New()
	}
	a := &FakeAuthority{
		random:     rnd,
		conns:      make(map[*FakeConn]struct{}),
		responders: make(map[model.EventType]Responder),
		sessions:   make(map[string]*FakeSession),
		snapshots:  make(map[string]*model.GameSnapshot),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", a.handleWebSocket)
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/escrow", a.handleEscrow).Methods(http.MethodGet)
	api.HandleFunc("/deposit/verify", a.handleDepositVerify).Methods(http.MethodPost)
	api.HandleFunc("/cashout/preview", a.handleCashoutPreview).Methods(http.MethodGet)
	api.HandleFunc("/cashout", a.handleCashout).Methods(http.MethodPost)

	a.server = httptest.NewServer(r)
	return a
}

// URL returns the websocket endpoint
func (a *FakeAuthority) URL() string {
	return "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws"
}

// HTTPURL returns the base URL of the cashier API
func (a *FakeAuthority) HTTPURL() string {
	return a.server.URL
}

// Close drops every client and stops the server
func (a *FakeAuthority) Close() {
	a.DropAll()
	a.server.Close()
}

// Handle replaces the default reply for event
func (a *FakeAuthority) Handle(event model.EventType, fn Responder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responders[event] = fn
}

// SetTables replaces the directory served for tables:list
func (a *FakeAuthority) SetTables(tables ...model.TableSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables = append([]model.TableSummary(nil), tables...)
}

// SetSnapshot sets the snapshot served for table:getState
func (a *FakeAuthority) SetSnapshot(snap *model.GameSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[snap.TableID] = snap.Clone()
}

// AddSession registers an identity the authority will resume
func (a *FakeAuthority) AddSession(s FakeSession) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := s
	a.sessions[s.ID] = &cp
}

// Session returns a copy of a known identity
func (a *FakeAuthority) Session(id string) (FakeSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return FakeSession{}, false
	}
	return *s, true
}

// Refuse makes new websocket handshakes fail with 503
func (a *FakeAuthority) Refuse(refuse bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refuse = refuse
}

// Push sends an event to every connected client
func (a *FakeAuthority) Push(event model.EventType, payload any) {
	for _, c := range a.connections() {
		_ = c.Send(event, payload)
	}
}

// PushRaw writes a raw text frame to every connected client
func (a *FakeAuthority) PushRaw(frame string) {
	for _, c := range a.connections() {
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
		c.writeMu.Unlock()
	}
}

// DropAll closes every client connection without a close handshake
func (a *FakeAuthority) DropAll() {
	for _, c := range a.connections() {
		_ = c.ws.Close()
	}
}

// Connections returns the number of open client connections
func (a *FakeAuthority) Connections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

// Received returns every message read so far, in arrival order
func (a *FakeAuthority) Received() []Received {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Received(nil), a.received...)
}

// ReceivedEvents returns the messages of one event type
func (a *FakeAuthority) ReceivedEvents(event model.EventType) []Received {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Received
	for _, r := range a.received {
		if r.Event == event {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many messages of one event type have been read
func (a *FakeAuthority) Count(event model.EventType) int {
	return len(a.ReceivedEvents(event))
}

func (a *FakeAuthority) connections() []*FakeConn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*FakeConn, 0, len(a.conns))
	for c := range a.conns {
		out = append(out, c)
	}
	return out
}

// Send writes one event to this client
func (c *FakeConn) Send(event model.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// SessionID returns the identity bound to this connection by session:init
func (c *FakeConn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *FakeConn) bind(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
}

func (a *FakeAuthority) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	refuse := a.refuse
	a.mu.Unlock()
	if refuse {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.nextConn++
	c := &FakeConn{ID: a.nextConn, authority: a, ws: ws}
	a.conns[c] = struct{}{}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.conns, c)
		a.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		a.mu.Lock()
		a.received = append(a.received, Received{Conn: c.ID, Event: env.Event, Data: env.Data})
		responder, ok := a.responders[env.Event]
		a.mu.Unlock()

		if !ok {
			responder = a.defaultResponder(env.Event)
		}
		if responder != nil {
			responder(c, env.Data)
		}
	}
}

func (a *FakeAuthority) defaultResponder(event model.EventType) Responder {
	switch event {
	case model.EventSessionInit:
		return a.onInit
	case model.EventSessionSetNickname:
		return a.onSetNickname
	case model.EventSessionGetBalance:
		return a.onGetBalance
	case model.EventTablesList:
		return a.onTablesList
	case model.EventTableJoin:
		return a.onJoin
	case model.EventTableLeave:
		return a.onLeave
	case model.EventTableGetState:
		return a.onGetState
	}
	return nil
}

func (a *FakeAuthority) onInit(c *FakeConn, data json.RawMessage) {
	var req model.SessionInitPayload
	_ = json.Unmarshal(data, &req)

	a.mu.Lock()
	s, ok := a.sessions[req.SessionID]
	if !ok {
		id := req.SessionID
		if id == "" {
			id = random.SessionID(a.random)
		}
		s = &FakeSession{ID: id, Chips: a.StartingChips, Seat: -1}
		a.sessions[id] = s
	}
	if req.Nickname != "" {
		s.Nickname = req.Nickname
	}
	ready := model.SessionReadyPayload{SessionID: s.ID, Nickname: s.Nickname, Chips: s.Chips, TableID: s.TableID}
	a.mu.Unlock()

	c.bind(ready.SessionID)
	_ = c.Send(model.EventSessionReady, ready)
}

func (a *FakeAuthority) onSetNickname(c *FakeConn, data json.RawMessage) {
	var req model.NicknamePayload
	_ = json.Unmarshal(data, &req)

	a.mu.Lock()
	s, ok := a.sessions[c.SessionID()]
	if ok {
		s.Nickname = req.Nickname
	}
	a.mu.Unlock()
	if ok {
		_ = c.Send(model.EventSessionNicknameUpdated, model.NicknamePayload{Nickname: req.Nickname})
	}
}

func (a *FakeAuthority) onGetBalance(c *FakeConn, _ json.RawMessage) {
	a.mu.Lock()
	s, ok := a.sessions[c.SessionID()]
	var chips int64
	if ok {
		chips = s.Chips
	}
	a.mu.Unlock()
	if ok {
		_ = c.Send(model.EventSessionBalance, model.BalancePayload{Chips: chips})
	}
}

func (a *FakeAuthority) onTablesList(c *FakeConn, _ json.RawMessage) {
	a.mu.Lock()
	tables := append([]model.TableSummary{}, a.tables...)
	a.mu.Unlock()
	_ = c.Send(model.EventTablesList, tables)
}

func (a *FakeAuthority) onJoin(c *FakeConn, data json.RawMessage) {
	var req model.JoinTablePayload
	_ = json.Unmarshal(data, &req)

	reply, errMsg := a.join(c.SessionID(), req)
	if errMsg != "" {
		_ = c.Send(model.EventTableError, model.ErrorPayload{Error: errMsg})
		return
	}
	_ = c.Send(model.EventTableJoined, reply)
}

func (a *FakeAuthority) join(sessionID string, req model.JoinTablePayload) (model.TableJoinedPayload, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[sessionID]
	if !ok {
		return model.TableJoinedPayload{}, "Session not initialized"
	}
	if s.TableID != "" {
		return model.TableJoinedPayload{}, "Already at a table"
	}
	idx := -1
	for i := range a.tables {
		if a.tables[i].ID == req.TableID {
			idx = i
		}
	}
	if idx < 0 {
		return model.TableJoinedPayload{}, "Table not found"
	}
	t := &a.tables[idx]
	switch {
	case t.Full():
		return model.TableJoinedPayload{}, "Table is full"
	case !t.AcceptsBuyIn(req.BuyIn):
		return model.TableJoinedPayload{}, "Invalid buy-in amount"
	case req.BuyIn > s.Chips:
		return model.TableJoinedPayload{}, "Insufficient chips"
	}

	s.Chips -= req.BuyIn
	s.TableID = t.ID
	s.Seat = t.Players
	s.Stack = req.BuyIn
	t.Players++

	return model.TableJoinedPayload{
		TableID:   t.ID,
		SeatIndex: s.Seat,
		Player: &model.Seat{
			SessionID: s.ID,
			Nickname:  s.Nickname,
			Chips:     req.BuyIn,
			Status:    model.SeatActive,
		},
	}, ""
}

func (a *FakeAuthority) onLeave(c *FakeConn, _ json.RawMessage) {
	a.mu.Lock()
	s, ok := a.sessions[c.SessionID()]
	if !ok || s.TableID == "" {
		a.mu.Unlock()
		_ = c.Send(model.EventTableError, model.ErrorPayload{Error: "Not at a table"})
		return
	}
	for i := range a.tables {
		if a.tables[i].ID == s.TableID && a.tables[i].Players > 0 {
			a.tables[i].Players--
		}
	}
	left := model.TableLeftPayload{TableID: s.TableID, ChipsReturned: s.Stack, NewBalance: s.Chips + s.Stack}
	s.Chips += s.Stack
	s.Stack = 0
	s.TableID = ""
	s.Seat = -1
	a.mu.Unlock()

	_ = c.Send(model.EventTableLeft, left)
}

func (a *FakeAuthority) onGetState(c *FakeConn, data json.RawMessage) {
	var req model.TableRefPayload
	_ = json.Unmarshal(data, &req)

	a.mu.Lock()
	snap, ok := a.snapshots[req.TableID]
	if ok {
		snap = snap.Clone()
	}
	a.mu.Unlock()

	if !ok {
		_ = c.Send(model.EventTableError, model.ErrorPayload{Error: "Table not found"})
		return
	}
	_ = c.Send(model.EventGameState, snap)
}

type cashoutPreview struct {
	Chips    int64   `json:"chips"`
	GrossEth float64 `json:"grossEth"`
	FeeEth   float64 `json:"feeEth"`
	NetEth   float64 `json:"netEth"`
}

func previewFor(chips int64) cashoutPreview {
	gross := float64(chips) / FakeChipsPerEth
	fee := gross * FakeCashoutFeePct / 100
	return cashoutPreview{Chips: chips, GrossEth: gross, FeeEth: fee, NetEth: gross - fee}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *FakeAuthority) handleEscrow(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"address":     FakeEscrowAddress,
		"chipsPerEth": FakeChipsPerEth,
	})
}

func (a *FakeAuthority) handleDepositVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		TxHash    string `json:"txHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request"})
		return
	}
	if !strings.HasPrefix(req.TxHash, "0x") || len(req.TxHash) < 4 {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Transaction not found"})
		return
	}

	a.mu.Lock()
	s, ok := a.sessions[req.SessionID]
	if ok {
		s.Chips += FakeDepositChips
	}
	a.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "Unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chips": FakeDepositChips})
}

func (a *FakeAuthority) handleCashoutPreview(w http.ResponseWriter, r *http.Request) {
	chips, err := strconv.ParseInt(r.URL.Query().Get("chips"), 10, 64)
	if err != nil || chips <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid chips"})
		return
	}
	writeJSON(w, http.StatusOK, previewFor(chips))
}

func (a *FakeAuthority) handleCashout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Chips     int64  `json:"chips"`
		ToAddress string `json:"toAddress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request"})
		return
	}

	a.mu.Lock()
	s, ok := a.sessions[req.SessionID]
	var errMsg string
	switch {
	case !ok:
		errMsg = "Unknown session"
	case req.Chips <= 0 || req.Chips > s.Chips:
		errMsg = "Insufficient chips"
	default:
		s.Chips -= req.Chips
	}
	a.mu.Unlock()

	if errMsg != "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": errMsg})
		return
	}
	p := previewFor(req.Chips)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"chips":        req.Chips,
		"netEth":       p.NetEth,
		"payoutTxHash": "0x" + strings.Repeat("ab", 32),
	})
}
