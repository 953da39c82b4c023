package types

import "errors"

// Business-rule violations shared across the core engines. All of them
// are synchronous and non-retryable, the operation that hit one must
// abort with no partial mutation.
var (
	// ErrInvalidRatio signals a nominal collateral ratio of zero.
	ErrInvalidRatio = errors.New("invalid collateral ratio")
	// ErrAlreadyExists signals a key collision on insert/create.
	ErrAlreadyExists = errors.New("entry already exists")
	// ErrNotFound signals a lookup miss on a keyed structure.
	ErrNotFound = errors.New("entry not found")
	// ErrListFull signals the sorted index is at capacity.
	ErrListFull = errors.New("sorted index is full")
	// ErrInsufficientBalance signals a decrease below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnauthorized signals a capability check failure on mint/burn.
	ErrUnauthorized = errors.New("caller is not authorized")
	// ErrNothingToLiquidate signals a liquidation walk that found no
	// eligible position.
	ErrNothingToLiquidate = errors.New("nothing to liquidate")
	// ErrLowCollateralRatio signals a post-operation ratio below the
	// minimum threshold.
	ErrLowCollateralRatio = errors.New("collateral ratio below minimum")
	// ErrInvalidAmount signals a zero or otherwise unusable amount.
	ErrInvalidAmount = errors.New("invalid amount")
)
