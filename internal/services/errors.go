package services

import "errors"

// Error taxonomy of the core. NotFound and state-conflict errors surface to
// callers as 4xx-equivalents and are never retried. The numeric-invariant
// errors are fatal for the operation that hit them: retrying the same inputs
// reproduces the same overflow.
var (
	ErrContractNotFound    = errors.New("contract not found")
	ErrAnswerNotFound      = errors.New("answer not found")
	ErrAlreadyResolved     = errors.New("contract already resolved")
	ErrInvalidAmount       = errors.New("amount must be positive and finite")
	ErrLiquidityOverflow   = errors.New("liquidity overflow: pool weight is no longer representable")
	ErrNonFiniteRedemption = errors.New("non-finite redemption amount")
	ErrDuplicateGrant      = errors.New("grant already claimed")
	ErrMinimumLiquidity    = errors.New("withdrawal would drop a reserve below the minimum")
)
