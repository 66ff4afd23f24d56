package pool

import (
	"errors"
	"fmt"

	"nftswap/internal/curve"
)

var (
	// ErrPaused means the pool's trade operations are suspended.
	ErrPaused = errors.New("pool is paused")
	// ErrTradeNotPermitted means the pool type forbids this trade direction.
	ErrTradeNotPermitted = errors.New("trade not permitted for pool type")
	// ErrInvalidItemCount means a trade was requested for zero items.
	ErrInvalidItemCount = errors.New("invalid item count")
	// ErrSpotPriceOverflow means the quoted price left the representable range.
	ErrSpotPriceOverflow = errors.New("spot price overflow")
	// ErrInsufficientInventory means the pool holds too few items.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrAllowListRejected means a batch failed membership verification.
	ErrAllowListRejected = errors.New("allow list rejected batch")
	// ErrSlippageExceeded means a quote violated the caller's declared bound.
	ErrSlippageExceeded = errors.New("slippage bound exceeded")
	// ErrInsufficientLiquidity means the pool cannot pay out a sell.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrUnauthorized means the access gate denied an administrative call.
	ErrUnauthorized = errors.New("unauthorized")
)

// quoteError maps a curve failure kind onto the pool's error taxonomy.
func quoteError(kind curve.ErrorKind) error {
	switch kind {
	case curve.InvalidNumItems:
		return ErrInvalidItemCount
	case curve.SpotPriceOverflow:
		return ErrSpotPriceOverflow
	default:
		return fmt.Errorf("quote failed: %s", kind)
	}
}
