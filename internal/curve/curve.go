package curve

import (
	"github.com/holiman/uint256"
)

// ErrorKind classifies a quote failure. Quotes carry the kind inside the
// result instead of a Go error so callers can inspect before executing.
type ErrorKind uint8

const (
	OK ErrorKind = iota
	InvalidNumItems
	SpotPriceOverflow
	InvalidSpotPrice
	InvalidDelta
)

func (k ErrorKind) String() string {
	switch k {
	case OK:
		return "ok"
	case InvalidNumItems:
		return "invalid num items"
	case SpotPriceOverflow:
		return "spot price overflow"
	case InvalidSpotPrice:
		return "invalid spot price"
	case InvalidDelta:
		return "invalid delta"
	default:
		return "unknown"
	}
}

// PricingState is the mutable pricing configuration owned by a single pool.
// Props and State are strategy-specific extension slots; the shipped
// strategies pass them through untouched.
type PricingState struct {
	SpotPrice *uint256.Int
	Delta     *uint256.Int
	Props     []byte
	State     []byte
}

// Clone returns a deep copy so quote results never alias pool-owned values.
func (s PricingState) Clone() PricingState {
	out := PricingState{}
	if s.SpotPrice != nil {
		out.SpotPrice = s.SpotPrice.Clone()
	}
	if s.Delta != nil {
		out.Delta = s.Delta.Clone()
	}
	if s.Props != nil {
		out.Props = append([]byte(nil), s.Props...)
	}
	if s.State != nil {
		out.State = append([]byte(nil), s.State...)
	}
	return out
}

// FeeMultipliers are WAD fractions in [0, 1.0). A nil multiplier means zero.
type FeeMultipliers struct {
	Trade            *uint256.Int
	Protocol         *uint256.Int
	RoyaltyNumerator *uint256.Int
	Carry            *uint256.Int
}

// FeeBreakdown itemizes every fee a quote charges. RoyaltyAmounts is ordered
// per item; its length always equals the effective item count of the quote.
type FeeBreakdown struct {
	Trade          *uint256.Int
	Protocol       *uint256.Int
	RoyaltyAmounts []*uint256.Int
}

// RoyaltyTotal sums the per-item royalty amounts.
func (f FeeBreakdown) RoyaltyTotal() *uint256.Int {
	total := uint256.NewInt(0)
	for _, r := range f.RoyaltyAmounts {
		total.Add(total, r)
	}
	return total
}

// QuoteResult is the outcome of a buy or sell quote. When Err is not OK all
// other fields are void. NumItems is the effective item count, which a sell
// quote may reduce below the requested count (see the floor clamp); callers
// must treat it, not their requested count, as authoritative.
type QuoteResult struct {
	Err         ErrorKind
	NewState    PricingState
	NumItems    uint64
	TotalAmount *uint256.Int
	Fees        FeeBreakdown
}

// Curve prices trades against a pool. Implementations are pure: a quote
// reads the supplied state and never retains or mutates it.
type Curve interface {
	ValidateDelta(delta *uint256.Int) bool
	ValidateSpotPrice(spot *uint256.Int) bool
	ValidateProps(props []byte) bool
	ValidateState(state []byte) bool

	// QuoteBuy prices buying numItems out of the pool (caller pays).
	QuoteBuy(state PricingState, numItems uint64, fees FeeMultipliers) QuoteResult
	// QuoteSell prices selling numItems into the pool (pool pays).
	QuoteSell(state PricingState, numItems uint64, fees FeeMultipliers) QuoteResult
}

func failed(kind ErrorKind) QuoteResult {
	return QuoteResult{Err: kind}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v
}
