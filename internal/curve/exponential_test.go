package curve

import (
	"testing"

	"github.com/holiman/uint256"

	"nftswap/internal/wad"
)

func TestExponentialValidators(t *testing.T) {
	e := NewExponential()
	if e.ValidateDelta(mustWAD(t, "1.0")) {
		t.Fatalf("delta = 1.0 must be rejected")
	}
	if !e.ValidateDelta(mustWAD(t, "1.1")) {
		t.Fatalf("delta = 1.1 must be accepted")
	}
	if e.ValidateSpotPrice(uint256.NewInt(1)) {
		t.Fatalf("dust spot must be rejected")
	}
	if !e.ValidateSpotPrice(mustWAD(t, "1.0")) {
		t.Fatalf("1.0 spot must be accepted")
	}
}

func TestExponentialBuy(t *testing.T) {
	state := PricingState{SpotPrice: mustWAD(t, "1.0"), Delta: mustWAD(t, "2.0")}
	res := NewExponential().QuoteBuy(state, 2, FeeMultipliers{})
	if res.Err != OK {
		t.Fatalf("buy: %v", res.Err)
	}
	// Prices 2.0 and 4.0; spot doubles per item.
	if want := mustWAD(t, "6.0"); !res.TotalAmount.Eq(want) {
		t.Fatalf("total = %s, want 6.0", wad.Format(res.TotalAmount))
	}
	if want := mustWAD(t, "4.0"); !res.NewState.SpotPrice.Eq(want) {
		t.Fatalf("new spot = %s, want 4.0", wad.Format(res.NewState.SpotPrice))
	}
}

func TestExponentialSellFloorsAtMinimum(t *testing.T) {
	state := PricingState{SpotPrice: uint256.NewInt(2_000_000_000), Delta: mustWAD(t, "2.0")}
	res := NewExponential().QuoteSell(state, 8, FeeMultipliers{})
	if res.Err != OK {
		t.Fatalf("sell: %v", res.Err)
	}
	if res.NewState.SpotPrice.Lt(uint256.NewInt(1_000_000_000)) {
		t.Fatalf("spot decayed below minimum: %s", res.NewState.SpotPrice.Dec())
	}
	if res.NumItems != 8 {
		t.Fatalf("exponential sell must not reduce the count, got %d", res.NumItems)
	}
}

func TestExponentialRoundTrip(t *testing.T) {
	state := PricingState{SpotPrice: mustWAD(t, "1.0"), Delta: mustWAD(t, "2.0")}
	e := NewExponential()

	buy := e.QuoteBuy(state, 3, FeeMultipliers{})
	if buy.Err != OK {
		t.Fatalf("buy: %v", buy.Err)
	}
	sell := e.QuoteSell(buy.NewState, 3, FeeMultipliers{})
	if sell.Err != OK {
		t.Fatalf("sell: %v", sell.Err)
	}
	if !sell.NewState.SpotPrice.Eq(state.SpotPrice) {
		t.Fatalf("round trip spot = %s, want %s",
			wad.Format(sell.NewState.SpotPrice), wad.Format(state.SpotPrice))
	}
	if sell.TotalAmount.Gt(buy.TotalAmount) {
		t.Fatalf("round trip profitable")
	}
}

func TestExponentialZeroItems(t *testing.T) {
	state := PricingState{SpotPrice: mustWAD(t, "1.0"), Delta: mustWAD(t, "2.0")}
	if res := NewExponential().QuoteBuy(state, 0, FeeMultipliers{}); res.Err != InvalidNumItems {
		t.Fatalf("buy: got %v", res.Err)
	}
	if res := NewExponential().QuoteSell(state, 0, FeeMultipliers{}); res.Err != InvalidNumItems {
		t.Fatalf("sell: got %v", res.Err)
	}
}

func TestExponentialBuyOverflow(t *testing.T) {
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	state := PricingState{SpotPrice: big, Delta: mustWAD(t, "2.0")}
	if res := NewExponential().QuoteBuy(state, 2, FeeMultipliers{}); res.Err != SpotPriceOverflow {
		t.Fatalf("got %v, want SpotPriceOverflow", res.Err)
	}
}
