package model

import "errors"

// Common errors used across the client
var (
	// Identity errors
	ErrIdentityNotFound = errors.New("identity not found")

	// Connection errors
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionFailed = errors.New("connection failed after retries")
	ErrClosed           = errors.New("connection manager closed")
	ErrNotReady         = errors.New("session handshake not complete")

	// Table membership errors
	ErrAlreadySeated     = errors.New("already seated at a table")
	ErrNotSeated         = errors.New("not seated at a table")
	ErrUnknownTable      = errors.New("table not in directory")
	ErrTableFull         = errors.New("table is full")
	ErrBuyInOutOfRange   = errors.New("buy-in outside table range")
	ErrInsufficientChips = errors.New("insufficient chips")

	// Action guard errors
	ErrUnknownAction      = errors.New("unknown action")
	ErrNotYourTurn        = errors.New("no actions advertised for this player")
	ErrActionNotAvailable = errors.New("action not currently allowed")
	ErrAmountRequired     = errors.New("action requires an amount")
	ErrAmountOutOfRange   = errors.New("amount outside allowed range")

	// Cashier errors
	ErrInvalidAddress = errors.New("invalid payout address")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrMissingTxHash  = errors.New("transaction hash required")
)
