package ledger

import "errors"

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrBalanceInconsistency = errors.New("balance inconsistency")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	// ErrLookbackExceeded means the carry-forward chain is longer than the configured
	// lookback. RecomputeRange over the gap materializes it day by day.
	ErrLookbackExceeded = errors.New("carry-forward lookback exceeded")
)
