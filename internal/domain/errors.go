package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrLockHeld      = errors.New("lock already held")
	ErrNoLiquidity   = errors.New("no executable price")

	// Hedge lifecycle outcomes. None of these are fatal to a scan tick.
	ErrAmountOutOfRange = errors.New("trade amount outside configured band")
	ErrLegFailed        = errors.New("hedge leg failed")
	ErrPartialFill      = errors.New("hedge partially filled")
	ErrStaleQuote       = errors.New("quote moved since detection")
	ErrNoMatch          = errors.New("no matching market")
)
