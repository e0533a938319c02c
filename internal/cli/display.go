package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/services/alerts"
	"github.com/mcoot/anubis-client/internal/services/projector"
)

var suitSymbols = map[string]string{
	"hearts":   "♥",
	"diamonds": "♦",
	"clubs":    "♣",
	"spades":   "♠",
}

// FormatChips abbreviates large chip counts: 1500 -> 1.5K, 2000000 -> 2.0M
func FormatChips(chips int64) string {
	switch {
	case chips >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(chips)/1_000_000)
	case chips >= 1_000:
		return fmt.Sprintf("%.1fK", float64(chips)/1_000)
	default:
		return strconv.FormatInt(chips, 10)
	}
}

// FormatEth prints at most four decimals with trailing zeros dropped
func FormatEth(eth float64) string {
	s := strconv.FormatFloat(eth, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// ShortenID keeps the first six and last four characters of a session id
func ShortenID(id string) string {
	if id == "" {
		return ""
	}
	head, tail := id, id
	if len(id) > 6 {
		head = id[:6]
	}
	if len(id) > 4 {
		tail = id[len(id)-4:]
	}
	return head + "..." + tail
}

// CardString renders a card as rank and suit symbol, e.g. "A♠"
func CardString(c model.Card) string {
	suit, ok := suitSymbols[c.Suit]
	if !ok {
		suit = c.Suit
	}
	s := c.Rank + suit
	if c.Suit == "hearts" || c.Suit == "diamonds" {
		return pterm.LightRed(s)
	}
	return s
}

func cardsString(cards []model.Card) string {
	if len(cards) == 0 {
		return "-"
	}
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = CardString(c)
	}
	return strings.Join(parts, " ")
}

// seatBadges marks the dealer and blinds the way the table shows them
func seatBadges(ds projector.DisplaySeat) string {
	var badges []string
	if ds.Dealer {
		badges = append(badges, "D")
	}
	if ds.SmallBlind {
		badges = append(badges, "SB")
	}
	if ds.BigBlind {
		badges = append(badges, "BB")
	}
	if len(badges) == 0 {
		return ""
	}
	return "[" + strings.Join(badges, ",") + "]"
}

func seatStatus(status model.SeatStatus) string {
	switch status {
	case model.SeatFolded:
		return pterm.LightRed("Folded")
	case model.SeatAllIn:
		return pterm.LightYellow("All-in")
	case model.SeatActive:
		return pterm.LightGreen("Active")
	default:
		return string(status)
	}
}

func renderSeat(ds projector.DisplaySeat) string {
	box := pterm.DefaultBox.WithHorizontalPadding(2)
	title := fmt.Sprintf("Seat %d %s", ds.Index, seatBadges(ds))
	if ds.Seat == nil {
		return box.WithTitle(title).Sprint(pterm.Gray("Empty"))
	}

	name := ds.Seat.Nickname
	if name == "" {
		name = ShortenID(ds.Seat.SessionID)
	}
	if ds.Hero {
		name = pterm.LightCyan(name)
	}
	if ds.Acting {
		name = "> " + name
	}
	body := fmt.Sprintf("%s\n%s\nStack: %s\nBet: %s",
		name, seatStatus(ds.Seat.Status), FormatChips(ds.Seat.Chips), FormatChips(ds.Seat.CurrentBet))
	if len(ds.Seat.HoleCards) > 0 {
		body += "\n" + cardsString(ds.Seat.HoleCards)
	}
	return box.WithTitle(title).Sprint(body)
}

func legalActionsString(actions []model.LegalAction) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		switch {
		case a.Min != nil && a.Max != nil:
			parts = append(parts, fmt.Sprintf("%s %s-%s", a.Action, FormatChips(*a.Min), FormatChips(*a.Max)))
		case a.Min != nil:
			parts = append(parts, fmt.Sprintf("%s %s+", a.Action, FormatChips(*a.Min)))
		case a.Max != nil:
			parts = append(parts, fmt.Sprintf("%s up to %s", a.Action, FormatChips(*a.Max)))
		case a.Amount != nil:
			parts = append(parts, fmt.Sprintf("%s %s", a.Action, FormatChips(*a.Amount)))
		default:
			parts = append(parts, string(a.Action))
		}
	}
	return strings.Join(parts, " | ")
}

// RenderView draws the table with seats ordered from the viewer's position
func RenderView(view projector.View) string {
	snap := view.Snapshot

	row := make([]pterm.Panel, 0, len(view.Seats))
	for _, ds := range view.Seats {
		row = append(row, pterm.Panel{Data: renderSeat(ds)})
	}

	board := fmt.Sprintf("%s  Pot: %s  Blinds: %s/%s\n%s",
		snap.Phase.Display(), FormatChips(snap.Pot),
		FormatChips(snap.Config.SmallBlind), FormatChips(snap.Config.BigBlind),
		cardsString(snap.CommunityCards))
	boardPanel := pterm.Panel{Data: pterm.DefaultBox.
		WithTitle(pterm.LightYellow("|" + snap.TableID + "|")).WithTitleTopCenter().
		WithHorizontalPadding(4).Sprint(board)}

	layout := [][]pterm.Panel{row, {boardPanel}}
	if view.MyTurn {
		layout = append(layout, []pterm.Panel{{Data: pterm.LightGreen("Your turn: ") + legalActionsString(snap.ValidActions)}})
	}

	out, err := pterm.DefaultPanel.WithPanels(layout).Srender()
	if err != nil {
		return board
	}
	return out
}

// RenderTables draws the directory listing
func RenderTables(tables []model.TableSummary) string {
	if len(tables) == 0 {
		return "No tables available"
	}
	data := pterm.TableData{{"ID", "Name", "Blinds", "Buy-in", "Players"}}
	for _, t := range tables {
		players := fmt.Sprintf("%d/%d", t.Players, t.MaxPlayers)
		if t.Full() {
			players = pterm.LightRed(players)
		}
		data = append(data, []string{
			t.ID,
			t.Name,
			FormatChips(t.SmallBlind) + "/" + FormatChips(t.BigBlind),
			FormatChips(t.MinBuyIn) + " - " + FormatChips(t.MaxBuyIn),
			players,
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Sprint(tables)
	}
	return out
}

// RenderIdentity summarises the stored or canonical identity
func RenderIdentity(id model.Identity) string {
	if !id.HasSession() {
		return "No identity yet; one is assigned on first connect"
	}
	nickname := id.Nickname
	if nickname == "" {
		nickname = pterm.Gray("(none)")
	}
	return fmt.Sprintf("Session:  %s\nNickname: %s\nChips:    %s",
		id.SessionID, nickname, FormatChips(id.Chips))
}

// RenderAlert formats a transient alert on one line
func RenderAlert(a alerts.Alert) string {
	prefix := pterm.LightRed("[" + string(a.Kind) + "]")
	return fmt.Sprintf("%s %s %s", a.At.Format("15:04:05"), prefix, a.Message)
}
