package curve

import (
	"github.com/holiman/uint256"

	"nftswap/internal/wad"
)

// minExpSpot keeps an exponential pool's price from decaying to a value the
// multiplicative step can no longer move (1 gwei).
var minExpSpot = uint256.NewInt(1_000_000_000)

// Exponential multiplies the spot price by delta (a WAD factor > 1.0) per
// traded item.
type Exponential struct{}

// NewExponential returns the exponential pricing strategy.
func NewExponential() Exponential { return Exponential{} }

func (Exponential) ValidateDelta(delta *uint256.Int) bool {
	return delta != nil && delta.Gt(wad.One())
}

func (Exponential) ValidateSpotPrice(spot *uint256.Int) bool {
	return spot != nil && !spot.Lt(minExpSpot)
}

func (Exponential) ValidateProps([]byte) bool { return true }
func (Exponential) ValidateState([]byte) bool { return true }

func (e Exponential) QuoteBuy(state PricingState, numItems uint64, fees FeeMultipliers) QuoteResult {
	if numItems == 0 {
		return failed(InvalidNumItems)
	}
	if !e.ValidateDelta(state.Delta) {
		return failed(InvalidDelta)
	}
	spot := orZero(state.SpotPrice)
	delta := state.Delta

	// Same first-unit asymmetry as the linear strategy: the first buy is
	// already one step above spot. Prices are S*d, S*d^2, ..., S*d^n.
	raw := uint256.NewInt(0)
	royalties := make([]*uint256.Int, 0, numItems)
	royaltyTotal := uint256.NewInt(0)
	price := spot.Clone()
	for i := uint64(0); i < numItems; i++ {
		next, ok := wad.Mul(price, delta)
		if !ok || !wad.Fits128(next) {
			return failed(SpotPriceOverflow)
		}
		price = next
		var overflow bool
		raw, overflow = raw.AddOverflow(raw, price)
		if overflow {
			return failed(SpotPriceOverflow)
		}
		r, okR := royaltyFor(price, fees)
		if !okR {
			return failed(SpotPriceOverflow)
		}
		royalties = append(royalties, r)
		royaltyTotal.Add(royaltyTotal, r)
	}
	newSpot := price

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

func (e Exponential) QuoteSell(state PricingState, numItems uint64, fees FeeMultipliers) QuoteResult {
	if numItems == 0 {
		return failed(InvalidNumItems)
	}
	if !e.ValidateDelta(state.Delta) {
		return failed(InvalidDelta)
	}
	spot := orZero(state.SpotPrice)

	invDelta, ok := wad.Div(wad.One(), state.Delta)
	if !ok {
		return failed(InvalidDelta)
	}

	// Prices are S, S/d, S/d^2, ...; the spot decays geometrically and is
	// floored at the minimum instead of reducing the item count.
	raw := uint256.NewInt(0)
	royalties := make([]*uint256.Int, 0, numItems)
	royaltyTotal := uint256.NewInt(0)
	price := spot.Clone()
	for i := uint64(0); i < numItems; i++ {
		raw.Add(raw, price)
		r, okR := royaltyFor(price, fees)
		if !okR {
			return failed(SpotPriceOverflow)
		}
		royalties = append(royalties, r)
		royaltyTotal.Add(royaltyTotal, r)
		price, _ = wad.Mul(price, invDelta)
	}
	newSpot := price
	if newSpot.Lt(minExpSpot) {
		newSpot = minExpSpot.Clone()
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
		NumItems:    numItems,
		TotalAmount: total,
		Fees: FeeBreakdown{
			Trade:          tradeFee,
			Protocol:       protocolFee,
			RoyaltyAmounts: royalties,
		},
	}
}
