package curve

import (
	"github.com/holiman/uint256"

	"nftswap/internal/wad"
)

// Linear moves the spot price by a fixed delta per traded item. It places no
// constraint on configuration: every spot price and delta is valid.
type Linear struct{}

// NewLinear returns the linear pricing strategy.
func NewLinear() Linear { return Linear{} }

func (Linear) ValidateDelta(*uint256.Int) bool     { return true }
func (Linear) ValidateSpotPrice(*uint256.Int) bool { return true }
func (Linear) ValidateProps([]byte) bool           { return true }
func (Linear) ValidateState([]byte) bool           { return true }

func (Linear) QuoteBuy(state PricingState, numItems uint64, fees FeeMultipliers) QuoteResult {
	if numItems == 0 {
		return failed(InvalidNumItems)
	}
	spot := orZero(state.SpotPrice)
	delta := orZero(state.Delta)
	count := uint256.NewInt(numItems)

	increase, overflow := new(uint256.Int).MulOverflow(delta, count)
	if overflow {
		return failed(SpotPriceOverflow)
	}
	newSpot, overflow := new(uint256.Int).AddOverflow(spot, increase)
	if overflow || !wad.Fits128(newSpot) {
		return failed(SpotPriceOverflow)
	}

	// The first unit is bought at spot+delta, one step above where a sell
	// starts, so a buy immediately followed by a sell is never profitable.
	buySpot := new(uint256.Int).Add(spot, delta)

	// Arithmetic series: n*(S+d) + d*n*(n-1)/2. n*(n-1) is even, so the
	// halving is exact.
	raw, overflow := new(uint256.Int).MulOverflow(buySpot, count)
	if overflow {
		return failed(SpotPriceOverflow)
	}
	pairs := new(uint256.Int).Mul(count, uint256.NewInt(numItems-1))
	pairs.Rsh(pairs, 1)
	ramp, overflow := pairs.MulOverflow(pairs, delta)
	if overflow {
		return failed(SpotPriceOverflow)
	}
	raw, overflow = raw.AddOverflow(raw, ramp)
	if overflow {
		return failed(SpotPriceOverflow)
	}

	// Marginal prices S+d, S+2d, ..., S+nd; royalty accrues per item.
	royalties := make([]*uint256.Int, 0, numItems)
	royaltyTotal := uint256.NewInt(0)
	price := buySpot.Clone()
	for i := uint64(0); i < numItems; i++ {
		r, ok := royaltyFor(price, fees)
		if !ok {
			return failed(SpotPriceOverflow)
		}
		royalties = append(royalties, r)
		royaltyTotal.Add(royaltyTotal, r)
		price = new(uint256.Int).Add(price, delta)
	}

	tradeFee, protocolFee, ok := composeFees(raw, fees)
	if !ok {
		return failed(SpotPriceOverflow)
	}
	total, ok := settleBuy(raw, tradeFee, protocolFee, royaltyTotal)
	if !ok {
		return failed(SpotPriceOverflow)
	}

	next := state.Clone()
	next.SpotPrice = newSpot
	return QuoteResult{
		Err:         OK,
		NewState:    next,
		NumItems:    numItems,
		TotalAmount: total,
		Fees: FeeBreakdown{
			Trade:          tradeFee,
			Protocol:       protocolFee,
			RoyaltyAmounts: royalties,
		},
	}
}

func (Linear) QuoteSell(state PricingState, numItems uint64, fees FeeMultipliers) QuoteResult {
	if numItems == 0 {
		return failed(InvalidNumItems)
	}
	spot := orZero(state.SpotPrice)
	delta := orZero(state.Delta)

	// If the full decrease would push the price below zero, clamp the spot
	// to zero and shrink the item count to the most that can be sold before
	// the price bottoms out: floor(S/d) + 1. The caller must honor the
	// returned count.
	effective := numItems
	decrease, overflow := new(uint256.Int).MulOverflow(delta, uint256.NewInt(numItems))
	newSpot := uint256.NewInt(0)
	if overflow || spot.Lt(decrease) {
		effective = new(uint256.Int).Div(spot, delta).Uint64() + 1
	} else {
		newSpot = new(uint256.Int).Sub(spot, decrease)
	}

	count := uint256.NewInt(effective)
	raw, overflow := new(uint256.Int).MulOverflow(spot, count)
	if overflow {
		return failed(SpotPriceOverflow)
	}
	pairs := new(uint256.Int).Mul(count, uint256.NewInt(effective-1))
	pairs.Rsh(pairs, 1)
	ramp := pairs.Mul(pairs, delta)
	raw.Sub(raw, ramp)

	// Marginal prices S, S-d, ..., S-(n-1)d.
	royalties := make([]*uint256.Int, 0, effective)
	royaltyTotal := uint256.NewInt(0)
	price := spot.Clone()
	for i := uint64(0); i < effective; i++ {
		r, ok := royaltyFor(price, fees)
		if !ok {
			return failed(SpotPriceOverflow)
		}
		royalties = append(royalties, r)
		royaltyTotal.Add(royaltyTotal, r)
		if price.Lt(delta) {
			price = uint256.NewInt(0)
		} else {
			price = new(uint256.Int).Sub(price, delta)
		}
	}

	tradeFee, protocolFee, ok := composeFees(raw, fees)
	if !ok {
		return failed(SpotPriceOverflow)
	}
	total := settleSell(raw, tradeFee, protocolFee, royaltyTotal)

	next := state.Clone()
	next.SpotPrice = newSpot
	return QuoteResult{
		Err:         OK,
		NewState:    next,
		NumItems:    effective,
		TotalAmount: total,
		Fees: FeeBreakdown{
			Trade:          tradeFee,
			Protocol:       protocolFee,
			RoyaltyAmounts: royalties,
		},
	}
}
