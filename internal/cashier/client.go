package cashier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mcoot/anubis-client/internal/middleware"
	"github.com/mcoot/anubis-client/internal/model"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether addr looks like an Ethereum address
func ValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

// Config holds cashier client settings
type Config struct {
	// BaseURL is the authority's HTTP root (e.g., http://localhost:3001)
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default cashier settings
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:3001",
		Timeout: 30 * time.Second,
	}
}

// BalanceRefresher asks the authority to push a fresh balance over the socket
type BalanceRefresher interface {
	RefreshBalance() error
}

// EscrowInfo is where deposits go and how they convert to chips
type EscrowInfo struct {
	Address     string `json:"address"`
	ChipsPerEth int64  `json:"chipsPerEth"`
}

// DepositResult is a credited deposit
type DepositResult struct {
	Chips int64 `json:"chips"`
}

// CashoutPreview is a fee estimate for cashing out chips
type CashoutPreview struct {
	Chips    int64   `json:"chips"`
	GrossEth float64 `json:"grossEth"`
	FeeEth   float64 `json:"feeEth"`
	NetEth   float64 `json:"netEth"`
}

// CashoutResult is a completed payout
type CashoutResult struct {
	Chips        int64   `json:"chips"`
	NetEth       float64 `json:"netEth"`
	PayoutTxHash string  `json:"payoutTxHash"`
}

// ServiceError is a failure reported by the cashier service
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("cashier: %s (HTTP %d)", e.Message, e.Status)
	}
	return "cashier: " + e.Message
}

// result is the {success, error} wrapper the service puts around every reply
type result struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Client talks to the cashier HTTP endpoints. It never changes the local
// balance; after a successful deposit or cashout it asks for a refresh and
// the authority's balance push does the rest.
type Client struct {
	baseURL    string
	httpClient *http.Client
	refresher  BalanceRefresher
	logger     *slog.Logger
}

// New creates a cashier Client
func New(cfg Config, refresher BalanceRefresher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	logger = logger.With(slog.String("component", "cashier"))
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: middleware.Logging(logger)(http.DefaultTransport),
		},
		refresher: refresher,
		logger:    logger,
	}
}

// Escrow fetches the deposit address and exchange rate
func (c *Client) Escrow(ctx context.Context) (EscrowInfo, error) {
	var info EscrowInfo
	if err := c.do(ctx, http.MethodGet, "/api/escrow", nil, &info); err != nil {
		return EscrowInfo{}, err
	}
	return info, nil
}

// VerifyDeposit asks the service to credit the deposit made in txHash
func (c *Client) VerifyDeposit(ctx context.Context, sessionID, txHash string) (DepositResult, error) {
	if sessionID == "" {
		return DepositResult{}, model.ErrNotReady
	}
	if strings.TrimSpace(txHash) == "" {
		return DepositResult{}, model.ErrMissingTxHash
	}

	body := map[string]string{"sessionId": sessionID, "txHash": strings.TrimSpace(txHash)}
	var res DepositResult
	if err := c.do(ctx, http.MethodPost, "/api/deposit/verify", body, &res); err != nil {
		return DepositResult{}, err
	}
	c.logger.Info("deposit verified", slog.Int64("chips", res.Chips))
	c.refresh()
	return res, nil
}

// PreviewCashout estimates the payout for chips
func (c *Client) PreviewCashout(ctx context.Context, chips int64) (CashoutPreview, error) {
	if chips <= 0 {
		return CashoutPreview{}, model.ErrInvalidAmount
	}
	path := "/api/cashout/preview?" + url.Values{"chips": {strconv.FormatInt(chips, 10)}}.Encode()
	var preview CashoutPreview
	if err := c.do(ctx, http.MethodGet, path, nil, &preview); err != nil {
		return CashoutPreview{}, err
	}
	return preview, nil
}

// Cashout pays chips out to toAddress. balance is the locally known balance,
// checked only to spare a request that cannot succeed.
func (c *Client) Cashout(ctx context.Context, sessionID string, chips, balance int64, toAddress string) (CashoutResult, error) {
	if sessionID == "" {
		return CashoutResult{}, model.ErrNotReady
	}
	if !ValidAddress(toAddress) {
		return CashoutResult{}, fmt.Errorf("%w: %q", model.ErrInvalidAddress, toAddress)
	}
	if chips <= 0 {
		return CashoutResult{}, model.ErrInvalidAmount
	}
	if chips > balance {
		return CashoutResult{}, fmt.Errorf("%w: have %d, want %d", model.ErrInsufficientChips, balance, chips)
	}

	body := struct {
		SessionID string `json:"sessionId"`
		Chips     int64  `json:"chips"`
		ToAddress string `json:"toAddress"`
	}{sessionID, chips, toAddress}

	var res CashoutResult
	if err := c.do(ctx, http.MethodPost, "/api/cashout", body, &res); err != nil {
		return CashoutResult{}, err
	}
	c.logger.Info("cashout sent", slog.Int64("chips", res.Chips), slog.String("tx", res.PayoutTxHash))
	c.refresh()
	return res, nil
}

func (c *Client) refresh() {
	if c.refresher == nil {
		return
	}
	if err := c.refresher.RefreshBalance(); err != nil {
		c.logger.Warn("balance refresh failed", slog.String("error", err.Error()))
	}
}

// do performs one JSON request. A {success:false} body or an error status
// becomes a *ServiceError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var wrapper result
	_ = json.Unmarshal(respBody, &wrapper)

	if resp.StatusCode >= 400 {
		msg := wrapper.Error
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return &ServiceError{Status: resp.StatusCode, Message: msg}
	}
	if wrapper.Success != nil && !*wrapper.Success {
		msg := wrapper.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return &ServiceError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
