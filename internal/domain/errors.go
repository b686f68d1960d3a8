package domain

import "errors"

var (
	// Validation failures, rejected before any state change.
	ErrZeroAddress     = errors.New("zero holder address")
	ErrInvalidDuration = errors.New("invalid lock duration")
	ErrInvalidAmount   = errors.New("amount must be positive")

	// Token-variant pull failures, rejected before any state change.
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrDepositConsumed marks a deposit transaction that has already been
	// credited once. A hash is never credited twice, restarts included.
	ErrDepositConsumed = errors.New("deposit already consumed")

	// Liquidation failures.
	ErrInvalidStakeID    = errors.New("stake id out of range")
	ErrAlreadyLiquidated = errors.New("stake already liquidated")

	// ErrTransferFailed marks a failed outward push. The enclosing ledger
	// mutation is rolled back together with it.
	ErrTransferFailed = errors.New("asset transfer failed")

	// Infrastructure errors shared across stores and caches.
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
)
