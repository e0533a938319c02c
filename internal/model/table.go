package model

// TableSummary is one entry of the joinable-table directory
type TableSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SmallBlind int64  `json:"smallBlind"`
	BigBlind   int64  `json:"bigBlind"`
	MinBuyIn   int64  `json:"minBuyIn"`
	MaxBuyIn   int64  `json:"maxBuyIn"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

// Full reports whether every seat at the table is taken
func (t TableSummary) Full() bool {
	return t.MaxPlayers > 0 && t.Players >= t.MaxPlayers
}

// AcceptsBuyIn reports whether amount lies within the table's buy-in range
func (t TableSummary) AcceptsBuyIn(amount int64) bool {
	return amount >= t.MinBuyIn && amount <= t.MaxBuyIn
}
