package domain

import "errors"

// Error taxonomy. Validation and authorization errors are permanent: the
// caller must correct the input or its credentials. Precondition errors are
// expected in normal operation and clear on their own (cooldowns elapse,
// rewards accrue). External-dependency failures from the chain layer are
// wrapped and propagated unmodified; no engine retries them.
var (
	// Validation.
	ErrZeroAddress     = errors.New("zero address")
	ErrZeroAmount      = errors.New("amount must be positive")
	ErrAssetMismatch   = errors.New("asset does not match configured asset")
	ErrInvalidFraction = errors.New("invalid fraction")
	ErrInvalidPath     = errors.New("invalid swap path")

	// Authorization.
	ErrUnauthorized   = errors.New("unauthorized caller")
	ErrCallerInactive = errors.New("caller module is not active")

	// State preconditions.
	ErrRouteExists      = errors.New("route already registered")
	ErrRouteNotFound    = errors.New("route not registered")
	ErrCooldownActive   = errors.New("liquidation cooldown has not elapsed")
	ErrNoPendingRewards = errors.New("no pending reward gain")
	ErrNothingToHarvest = errors.New("nothing to harvest")
	ErrNothingToExit    = errors.New("nothing to exit")
	ErrTreasuryUnset    = errors.New("treasury address not resolved")
	ErrAlreadyActive    = errors.New("caller already active")
	ErrAlreadyInactive  = errors.New("caller already inactive")
	ErrInsufficient     = errors.New("insufficient balance")

	// Lifecycle.
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrReentrantCall      = errors.New("reentrant call")

	// Infrastructure.
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")
)
