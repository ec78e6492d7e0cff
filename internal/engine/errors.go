package engine

import "errors"

// The five error kinds of spec.md §7. ValidationError and
// InsufficientFundsError/DuplicateClientOrderIdError are surfaced as a
// REJECTED PlaceOrderResult rather than a Go error, since placement always
// replies with a result; these sentinels classify the Reason on that
// result. NotFound/Forbidden and StorageError are returned as Go errors
// since CancelOrder and ResolveMarket have no "rejected result" shape.
var (
	// ErrMarketNotOpen is the validation failure for commands against a
	// loaded market whose status is not OPEN. An unknown market id yields
	// ErrMarketNotFound instead.
	ErrMarketNotOpen = errors.New("engine: market is not open")
	// ErrInvalidPrice is the validation failure for an out-of-range or
	// tick-misaligned LIMIT price.
	ErrInvalidPrice = errors.New("engine: invalid price")
	// ErrInvalidQty is the validation failure for qty outside [1, MaxQty].
	ErrInvalidQty = errors.New("engine: invalid quantity")
	// ErrDuplicateClientOrderID is the idempotency-conflict validation failure.
	ErrDuplicateClientOrderID = errors.New("engine: duplicate client order id")
	// ErrInsufficientFunds means available collateral is less than the
	// required lock.
	ErrInsufficientFunds = errors.New("engine: insufficient available funds")

	// ErrOrderNotFound is returned by CancelOrder for an unknown order id.
	ErrOrderNotFound = errors.New("engine: order not found")
	// ErrForbidden is returned by CancelOrder when the caller is neither
	// the order's owner nor an admin.
	ErrForbidden = errors.New("engine: forbidden")
	// ErrMarketNotFound is returned for operations against an unknown market id.
	ErrMarketNotFound = errors.New("engine: market not found")
	// ErrAlreadyResolved is returned by ResolveMarket against a RESOLVED market.
	ErrAlreadyResolved = errors.New("engine: market already resolved")

	// ErrInvariantViolation marks a fatal, should-never-happen recomputation
	// mismatch (spec.md §7: "Fatal conditions"). The transaction is aborted;
	// operators must be alerted rather than have this silently swallowed.
	ErrInvariantViolation = errors.New("engine: invariant violation")
)
