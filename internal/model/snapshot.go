package model

// Phase is the stage of the current hand as reported by the authority.
// Values outside the known set are kept verbatim.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePreFlop  Phase = "pre_flop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
	PhaseEnded    Phase = "ended"
)

var phaseLabels = map[Phase]string{
	PhaseWaiting:  "Waiting for Players",
	PhasePreFlop:  "Pre-Flop",
	PhaseFlop:     "Flop",
	PhaseTurn:     "Turn",
	PhaseRiver:    "River",
	PhaseShowdown: "Showdown",
	PhaseEnded:    "Hand Complete",
}

// Known reports whether the phase is one the client has a label for
func (p Phase) Known() bool {
	_, ok := phaseLabels[p]
	return ok
}

// Display returns a human label for the phase, or the raw value if unknown
func (p Phase) Display() string {
	if label, ok := phaseLabels[p]; ok {
		return label
	}
	return string(p)
}

// MinPlayersToDeal is the number of seated players needed to leave the waiting phase
const MinPlayersToDeal = 2

// Card is a playing card as sent by the authority
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// SeatStatus is the occupant's standing in the current hand
type SeatStatus string

const (
	SeatActive SeatStatus = "active"
	SeatFolded SeatStatus = "folded"
	SeatAllIn  SeatStatus = "all_in"
)

// Seat is an occupied position at the table.
// HoleCards is only populated for the viewer, or for everyone at showdown.
type Seat struct {
	SessionID  string     `json:"sessionId"`
	Nickname   string     `json:"nickname"`
	Chips      int64      `json:"chips"`
	Status     SeatStatus `json:"status"`
	HoleCards  []Card     `json:"holeCards,omitempty"`
	CurrentBet int64      `json:"currentBet"`
}

// ActionKind is a player intent the authority may accept
type ActionKind string

const (
	ActionFold  ActionKind = "fold"
	ActionCheck ActionKind = "check"
	ActionCall  ActionKind = "call"
	ActionBet   ActionKind = "bet"
	ActionRaise ActionKind = "raise"
	ActionAllIn ActionKind = "all_in"
)

// Valid reports whether the kind is one of the known actions
func (k ActionKind) Valid() bool {
	switch k {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn:
		return true
	}
	return false
}

// NeedsAmount reports whether the action carries a player-chosen amount
func (k ActionKind) NeedsAmount() bool {
	return k == ActionBet || k == ActionRaise
}

// LegalAction is one action the authority currently permits the viewer to take.
// Min and Max are independent: either end of the range may be missing.
// Amount is the chips a call costs.
type LegalAction struct {
	Action ActionKind `json:"action"`
	Min    *int64     `json:"min,omitempty"`
	Max    *int64     `json:"max,omitempty"`
	Amount *int64     `json:"amount,omitempty"`
}

// Below reports whether amount is under the advertised minimum
func (a LegalAction) Below(amount int64) bool {
	return a.Min != nil && amount < *a.Min
}

// Above reports whether amount is over the advertised maximum
func (a LegalAction) Above(amount int64) bool {
	return a.Max != nil && amount > *a.Max
}

// TableConfig is the static configuration of the table a snapshot belongs to
type TableConfig struct {
	SmallBlind int64 `json:"smallBlind"`
	BigBlind   int64 `json:"bigBlind"`
	MaxPlayers int   `json:"maxPlayers,omitempty"`
}

// GameSnapshot is a complete description of one table at one instant.
// Seats has one entry per table position; nil entries are empty seats.
type GameSnapshot struct {
	TableID        string        `json:"tableId"`
	Phase          Phase         `json:"phase"`
	Pot            int64         `json:"pot"`
	CommunityCards []Card        `json:"communityCards"`
	Seats          []*Seat       `json:"seats"`
	DealerSeat     int           `json:"dealerSeat"`
	SBSeat         int           `json:"sbSeat"`
	BBSeat         int           `json:"bbSeat"`
	CurrentSeat    *int          `json:"currentSeat"`
	ValidActions   []LegalAction `json:"validActions,omitempty"`
	Config         TableConfig   `json:"config"`
}

// HasLegalActions reports whether the snapshot advertises actions to the viewer
func (s *GameSnapshot) HasLegalActions() bool {
	return s != nil && len(s.ValidActions) > 0
}

// LegalAction returns the advertised entry for kind, if any
func (s *GameSnapshot) LegalAction(kind ActionKind) (LegalAction, bool) {
	if s == nil {
		return LegalAction{}, false
	}
	for _, a := range s.ValidActions {
		if a.Action == kind {
			return a, true
		}
	}
	return LegalAction{}, false
}

// SeatOf returns the index of the seat held by sessionID, or -1
func (s *GameSnapshot) SeatOf(sessionID string) int {
	if s == nil || sessionID == "" {
		return -1
	}
	for i, seat := range s.Seats {
		if seat != nil && seat.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// OccupiedSeats counts non-empty seats
func (s *GameSnapshot) OccupiedSeats() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, seat := range s.Seats {
		if seat != nil {
			n++
		}
	}
	return n
}

// IsCurrentTurn reports whether seatIndex is the seat to act
func (s *GameSnapshot) IsCurrentTurn(seatIndex int) bool {
	return s != nil && s.CurrentSeat != nil && seatIndex >= 0 && *s.CurrentSeat == seatIndex
}

// Clone returns a deep copy so readers can never alias the held snapshot
func (s *GameSnapshot) Clone() *GameSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.CommunityCards = cloneCards(s.CommunityCards)
	if s.Seats != nil {
		c.Seats = make([]*Seat, len(s.Seats))
		for i, seat := range s.Seats {
			if seat == nil {
				continue
			}
			cp := *seat
			cp.HoleCards = cloneCards(seat.HoleCards)
			c.Seats[i] = &cp
		}
	}
	if s.CurrentSeat != nil {
		cur := *s.CurrentSeat
		c.CurrentSeat = &cur
	}
	if s.ValidActions != nil {
		c.ValidActions = make([]LegalAction, len(s.ValidActions))
		for i, a := range s.ValidActions {
			c.ValidActions[i] = LegalAction{
				Action: a.Action,
				Min:    cloneInt(a.Min),
				Max:    cloneInt(a.Max),
				Amount: cloneInt(a.Amount),
			}
		}
	}
	return &c
}

func cloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
