package model

// EventType names a message on the wire or a local lifecycle event
type EventType string

const (
	// Lifecycle events raised by the connection manager itself
	EventConnect       EventType = "connect"
	EventDisconnect    EventType = "disconnect"
	EventConnectError  EventType = "connect_error"
	EventConnectFailed EventType = "connect_failed"
	EventStateChanged  EventType = "state"

	// Session events
	EventSessionInit            EventType = "session:init"
	EventSessionReady           EventType = "session:ready"
	EventSessionSetNickname     EventType = "session:setNickname"
	EventSessionNicknameUpdated EventType = "session:nicknameUpdated"
	EventSessionBalance         EventType = "session:balance"
	EventSessionGetBalance      EventType = "session:getBalance"

	// Directory and table membership events
	EventTablesList    EventType = "tables:list"
	EventTableJoin     EventType = "table:join"
	EventTableJoined   EventType = "table:joined"
	EventTableLeave    EventType = "table:leave"
	EventTableLeft     EventType = "table:left"
	EventTableGetState EventType = "table:getState"
	EventTableError    EventType = "table:error"

	// Game events
	EventGameState       EventType = "game:state"
	EventGamePublicState EventType = "game:publicState"
	EventGameAction      EventType = "game:action"
	EventGameError       EventType = "game:error"
	EventHandStarted     EventType = "game:handStarted"
	EventHandEnded       EventType = "game:handEnded"

	// Cashier confirmations pushed over the socket
	EventDepositConfirmed EventType = "deposit:confirmed"
	EventCashoutCompleted EventType = "cashout:completed"
)

// Lifecycle reports whether the event is raised locally rather than received
func (e EventType) Lifecycle() bool {
	switch e {
	case EventConnect, EventDisconnect, EventConnectError, EventConnectFailed, EventStateChanged:
		return true
	}
	return false
}

// SessionInitPayload is the handshake request.
// SessionID is omitted when the client has never been assigned one.
type SessionInitPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Nickname  string `json:"nickname"`
}

// SessionReadyPayload is the handshake completion carrying the canonical identity
type SessionReadyPayload struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Chips     int64  `json:"chips"`
	TableID   string `json:"tableId,omitempty"`
}

// NicknamePayload is used both to request and to announce a nickname
type NicknamePayload struct {
	Nickname string `json:"nickname"`
}

// BalancePayload is a server balance push
type BalancePayload struct {
	Chips int64 `json:"chips"`
}

// JoinTablePayload requests a seat
type JoinTablePayload struct {
	TableID string `json:"tableId"`
	BuyIn   int64  `json:"buyIn"`
}

// TableJoinedPayload confirms a seat
type TableJoinedPayload struct {
	TableID   string `json:"tableId"`
	SeatIndex int    `json:"seatIndex"`
	Player    *Seat  `json:"player,omitempty"`
}

// TableLeftPayload confirms leaving with the refunded stack
type TableLeftPayload struct {
	TableID       string `json:"tableId"`
	ChipsReturned int64  `json:"chipsReturned"`
	NewBalance    int64  `json:"newBalance"`
}

// TableRefPayload names a table for an explicit snapshot pull
type TableRefPayload struct {
	TableID string `json:"tableId"`
}

// ErrorPayload is a rejection from the authority
type ErrorPayload struct {
	Error string `json:"error"`
}

// ActionPayload is a player intent. Amount is only set for bet and raise.
type ActionPayload struct {
	Action ActionKind `json:"action"`
	Amount *int64     `json:"amount,omitempty"`
}

// HandStartedPayload announces a new hand
type HandStartedPayload struct {
	HandNumber int64 `json:"handNumber"`
}

// HandEndedPayload announces the end of a hand
type HandEndedPayload struct {
	Phase Phase `json:"phase"`
}

// DepositConfirmedPayload is pushed once a deposit has been credited
type DepositConfirmedPayload struct {
	Chips      int64 `json:"chips"`
	NewBalance int64 `json:"newBalance"`
}

// CashoutCompletedPayload is pushed once a cashout has been paid
type CashoutCompletedPayload struct {
	Chips          int64 `json:"chips"`
	RemainingChips int64 `json:"remainingChips"`
}
