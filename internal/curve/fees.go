package curve

import (
	"github.com/holiman/uint256"

	"nftswap/internal/wad"
)

// composeFees derives the trade and protocol fees from a raw pre-fee total.
// The carry fee is a protocol override carved out of the trade fee, not an
// additional charge, so it is moved after both base fees are computed.
func composeFees(raw *uint256.Int, fees FeeMultipliers) (tradeFee, protocolFee *uint256.Int, ok bool) {
	protocolFee, ok = wad.Mul(raw, orZero(fees.Protocol))
	if !ok {
		return nil, nil, false
	}
	tradeFee, ok = wad.Mul(raw, orZero(fees.Trade))
	if !ok {
		return nil, nil, false
	}
	carry, ok := wad.Mul(tradeFee, orZero(fees.Carry))
	if !ok {
		return nil, nil, false
	}
	tradeFee.Sub(tradeFee, carry)
	protocolFee.Add(protocolFee, carry)
	return tradeFee, protocolFee, true
}

// royaltyFor computes the royalty owed on one item's marginal price.
func royaltyFor(price *uint256.Int, fees FeeMultipliers) (*uint256.Int, bool) {
	return wad.Mul(price, orZero(fees.RoyaltyNumerator))
}

// settleBuy adds all fees on top of the raw total: the buyer pays everything.
func settleBuy(raw, tradeFee, protocolFee, royaltyTotal *uint256.Int) (*uint256.Int, bool) {
	total, overflow := new(uint256.Int).AddOverflow(raw, tradeFee)
	if overflow {
		return nil, false
	}
	total, overflow = total.AddOverflow(total, protocolFee)
	if overflow {
		return nil, false
	}
	total, overflow = total.AddOverflow(total, royaltyTotal)
	if overflow {
		return nil, false
	}
	return total, true
}

// settleSell subtracts all fees from the raw total: the seller receives the
// remainder. Saturates at zero rather than wrapping.
func settleSell(raw, tradeFee, protocolFee, royaltyTotal *uint256.Int) *uint256.Int {
	total := new(uint256.Int).Set(raw)
	for _, fee := range []*uint256.Int{tradeFee, protocolFee, royaltyTotal} {
		if total.Lt(fee) {
			return uint256.NewInt(0)
		}
		total.Sub(total, fee)
	}
	return total
}
