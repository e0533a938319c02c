package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/mcoot/anubis-client/internal/cashier"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/services/alerts"
	"github.com/mcoot/anubis-client/internal/services/projector"
)

// Output handles formatting output based on the configured format.
// It is safe to print from event handlers and the command goroutine at once.
type Output struct {
	mu     sync.Mutex
	format string
	out    io.Writer
	errOut io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, out, errOut io.Writer) *Output {
	return &Output{format: format, out: out, errOut: errOut}
}

// JSON reports whether output is machine-readable
func (o *Output) JSON() bool {
	return o.format == "json"
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.JSON() {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.JSON() {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		_, _ = fmt.Fprintln(o.errOut, string(data))
	} else {
		_, _ = fmt.Fprintln(o.errOut, pterm.Error.Sprint(err.Error()))
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.JSON() {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.out, string(data))
	} else {
		_, _ = fmt.Fprintln(o.out, msg)
	}
}

func (o *Output) printJSON(data any) {
	if v, ok := data.(projector.View); ok {
		data = v.Snapshot
	}
	// One object per line so streamed output can be consumed line by line
	_ = json.NewEncoder(o.out).Encode(data)
}

func (o *Output) printText(data any) {
	var text string
	switch v := data.(type) {
	case model.Identity:
		text = RenderIdentity(v)
	case []model.TableSummary:
		text = RenderTables(v)
	case projector.View:
		text = RenderView(v)
	case alerts.Alert:
		text = RenderAlert(v)
	case EventLine:
		text = v.String()
	case cashier.EscrowInfo:
		text = fmt.Sprintf("Escrow address: %s\nRate: 1 ETH = %s chips", v.Address, FormatChips(v.ChipsPerEth))
	case cashier.DepositResult:
		text = pterm.Success.Sprintf("Deposit confirmed! +%s chips", FormatChips(v.Chips))
	case cashier.CashoutPreview:
		text = fmt.Sprintf("Chips:   %s\nGross:   %s ETH\nFee:     %s ETH\nYou get: %s ETH",
			FormatChips(v.Chips), FormatEth(v.GrossEth), FormatEth(v.FeeEth), FormatEth(v.NetEth))
	case cashier.CashoutResult:
		text = pterm.Success.Sprintf("Sent %s ETH for %s chips (tx %s)",
			FormatEth(v.NetEth), FormatChips(v.Chips), v.PayoutTxHash)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
		return
	}
	_, _ = fmt.Fprintln(o.out, text)
}

// EventLine is one observed event as streamed by the watch command
type EventLine struct {
	Time  time.Time       `json:"time"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	State string          `json:"state,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (e EventLine) String() string {
	detail := string(e.Data)
	switch {
	case e.State != "":
		detail = e.State
	case e.Error != "":
		detail = e.Error
	}
	// Truncate data if it's too long for display
	if len(detail) > 100 {
		detail = detail[:100] + "..."
	}
	return fmt.Sprintf("[%s] %s: %s", e.Time.Format("2006-01-02 15:04:05"), e.Event, detail)
}
