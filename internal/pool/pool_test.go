package pool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nftswap/internal/allowlist"
	"nftswap/internal/curve"
	"nftswap/internal/inventory"
	"nftswap/internal/wad"
)

var (
	buyer    = Caller{Addr: common.HexToAddress("0x00000000000000000000000000000000000000b1")}
	admin    = Caller{Addr: common.HexToAddress("0x00000000000000000000000000000000000000ad")}
	protocol = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	royalty  = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// fakeTransfers records every movement and can fail on demand.
type fakeTransfers struct {
	calls    []string
	payments map[common.Address]*uint256.Int
	failOn   string
}

func newFakeTransfers() *fakeTransfers {
	return &fakeTransfers{payments: make(map[common.Address]*uint256.Int)}
}

func (f *fakeTransfers) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return fmt.Errorf("forced %s failure", name)
	}
	return nil
}

func (f *fakeTransfers) TokenIn(_ context.Context, _ common.Address, _ *uint256.Int) error {
	return f.step("TokenIn")
}

func (f *fakeTransfers) TokenOut(_ context.Context, to common.Address, amount *uint256.Int) error {
	if err := f.step("TokenOut"); err != nil {
		return err
	}
	sum, ok := f.payments[to]
	if !ok {
		sum = uint256.NewInt(0)
		f.payments[to] = sum
	}
	sum.Add(sum, amount)
	return nil
}

func (f *fakeTransfers) ItemsIn(_ context.Context, _ common.Address, _ []*uint256.Int) error {
	return f.step("ItemsIn")
}

func (f *fakeTransfers) ItemsOut(_ context.Context, _ common.Address, _ []*uint256.Int) error {
	return f.step("ItemsOut")
}

type fakeGate struct{ owner common.Address }

func (g fakeGate) Allow(caller Caller, _ string) bool { return caller.Addr == g.owner }

type fakeRoyalties struct{ recipient common.Address }

func (r fakeRoyalties) RecipientFor(context.Context, *uint256.Int) (common.Address, bool, error) {
	if r.recipient == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return r.recipient, true, nil
}

func w(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := wad.Parse(s)
	require.NoError(t, err)
	return v
}

func tradePool(t *testing.T, transfers TransferAgent, opts ...func(*Config)) *Pool {
	t.Helper()
	cfg := Config{
		ID:       "test-pool",
		Type:     TypeTrade,
		Strategy: curve.NewLinear(),
		State: curve.PricingState{
			SpotPrice: w(t, "3.0"),
			Delta:     w(t, "0.1"),
		},
		Fees: curve.FeeMultipliers{
			Trade:    w(t, "0.005"),
			Protocol: w(t, "0.003"),
		},
		ProtocolFeeRecipient: protocol,
		Inventory:            inventory.NewTracker(),
		Transfers:            transfers,
		Gate:                 fakeGate{owner: admin.Addr},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func stock(t *testing.T, p *Pool, ids ...uint64) {
	t.Helper()
	ctx := context.Background()
	for _, v := range ids {
		require.NoError(t, p.inventory.OnDeposit(ctx, uint256.NewInt(v)))
	}
}

func TestExecuteBuyArbitrary(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	p := tradePool(t, transfers)
	stock(t, p, 7, 3, 5)

	receipt, err := p.ExecuteBuyFromPool(ctx, buyer, 2, nil, w(t, "7.0"))
	require.NoError(t, err)
	require.Equal(t, 2, len(receipt.Identifiers))
	// Deterministic pick: lowest identifiers first.
	require.Equal(t, uint64(3), receipt.Identifiers[0].Uint64())
	require.Equal(t, uint64(5), receipt.Identifiers[1].Uint64())

	// S=3.0 d=0.1 n=2: raw 6.3, trade 0.0315, protocol 0.0189, total 6.3504.
	require.True(t, receipt.TotalAmount.Eq(w(t, "6.3504")),
		"total = %s", wad.Format(receipt.TotalAmount))
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(w(t, "3.2")))

	// Pool retains raw + trade fee; protocol fee is forwarded.
	require.True(t, p.Liquidity().Eq(w(t, "6.3315")),
		"liquidity = %s", wad.Format(p.Liquidity()))
	require.True(t, transfers.payments[protocol].Eq(w(t, "0.0189")))

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, len(held))
	require.Equal(t, uint64(7), held[0].Uint64())
}

func TestExecuteBuySpecific(t *testing.T) {
	ctx := context.Background()
	p := tradePool(t, newFakeTransfers())
	stock(t, p, 1, 2, 3)

	requested := []*uint256.Int{uint256.NewInt(3), uint256.NewInt(1)}
	receipt, err := p.ExecuteBuyFromPool(ctx, buyer, 2, requested, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(3), receipt.Identifiers[0].Uint64())

	_, err = p.ExecuteBuyFromPool(ctx, buyer, 1, []*uint256.Int{uint256.NewInt(3)}, nil)
	require.ErrorIs(t, err, ErrInsufficientInventory)
}

func TestExecuteBuySlippage(t *testing.T) {
	ctx := context.Background()
	p := tradePool(t, newFakeTransfers())
	stock(t, p, 1, 2)

	before := p.CurrentPricingState()
	_, err := p.ExecuteBuyFromPool(ctx, buyer, 2, nil, w(t, "6.0"))
	require.ErrorIs(t, err, ErrSlippageExceeded)
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(before.SpotPrice))
}

func TestExecuteBuyInsufficientInventoryIsAtomic(t *testing.T) {
	ctx := context.Background()
	p := tradePool(t, newFakeTransfers())
	stock(t, p, 1)

	before := p.CurrentPricingState()
	_, err := p.ExecuteBuyFromPool(ctx, buyer, 2, nil, nil)
	require.ErrorIs(t, err, ErrInsufficientInventory)
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(before.SpotPrice))
	require.True(t, p.Liquidity().IsZero())

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, len(held))
}

func TestExecuteBuyTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	transfers.failOn = "ItemsOut"
	p := tradePool(t, transfers)
	stock(t, p, 1, 2)

	before := p.CurrentPricingState()
	_, err := p.ExecuteBuyFromPool(ctx, buyer, 2, nil, nil)
	require.Error(t, err)
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(before.SpotPrice))
	require.True(t, p.Liquidity().IsZero())

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, len(held))
}

func TestExecuteBuyRefundsPaymentOnTransferFailure(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	transfers.failOn = "ItemsOut"
	p := tradePool(t, transfers)
	stock(t, p, 1, 2)

	_, err := p.ExecuteBuyFromPool(ctx, buyer, 2, nil, nil)
	require.Error(t, err)

	// The payment already pulled in must flow back to the buyer; the
	// failed trade leaves nothing moved at the transfer layer.
	require.NotNil(t, transfers.payments[buyer.Addr])
	require.True(t, transfers.payments[buyer.Addr].Eq(w(t, "6.3504")),
		"refund = %s", wad.Format(transfers.payments[buyer.Addr]))
	require.Equal(t, "TokenOut", transfers.calls[len(transfers.calls)-1])
}

func TestExecuteSellReturnsItemsOnTransferFailure(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	transfers.failOn = "TokenOut"
	p, tree := sellFixture(t, transfers, "20.0")

	ordered, proof, err := tree.Prove([]*uint256.Int{uint256.NewInt(1)})
	require.NoError(t, err)

	_, err = p.ExecuteSellToPool(ctx, buyer, ordered, proof, nil)
	require.Error(t, err)

	// Items were pulled in before the payout failed; they must be sent back.
	require.Equal(t, []string{"ItemsIn", "TokenOut", "ItemsOut"}, transfers.calls)

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, len(held))
}

func TestExecuteBuyZeroItems(t *testing.T) {
	p := tradePool(t, newFakeTransfers())
	_, err := p.ExecuteBuyFromPool(context.Background(), buyer, 0, nil, nil)
	require.ErrorIs(t, err, ErrInvalidItemCount)
}

func TestExecuteBuyPaysRoyalties(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	p := tradePool(t, transfers, func(cfg *Config) {
		cfg.Fees.RoyaltyNumerator = w(t, "0.1")
		cfg.Royalties = fakeRoyalties{recipient: royalty}
	})
	stock(t, p, 1, 2, 3)

	receipt, err := p.ExecuteBuyFromPool(ctx, buyer, 3, nil, nil)
	require.NoError(t, err)

	// Marginal prices 3.1, 3.2, 3.3 at 10%: royalty total 0.96.
	require.True(t, receipt.Fees.RoyaltyTotal().Eq(w(t, "0.96")))
	require.True(t, transfers.payments[royalty].Eq(w(t, "0.96")))
}

func sellFixture(t *testing.T, transfers TransferAgent, liquidity string) (*Pool, *allowlist.Tree) {
	t.Helper()
	tree, err := allowlist.NewTree([]*uint256.Int{
		uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(3), uint256.NewInt(4),
	})
	require.NoError(t, err)

	p := tradePool(t, transfers, func(cfg *Config) {
		cfg.Allowlist = tree.Commitment()
	})
	p.mu.Lock()
	p.tokenBalance = w(t, liquidity)
	p.mu.Unlock()
	return p, tree
}

func TestExecuteSellToPool(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	p, tree := sellFixture(t, transfers, "20.0")

	ordered, proof, err := tree.Prove([]*uint256.Int{uint256.NewInt(2), uint256.NewInt(4)})
	require.NoError(t, err)

	receipt, err := p.ExecuteSellToPool(ctx, buyer, ordered, proof, nil)
	require.NoError(t, err)
	require.Equal(t, 2, len(receipt.Identifiers))

	// S=3.0 d=0.1 n=2: raw 5.9, trade 0.0295, protocol 0.0177, seller gets 5.8528.
	require.True(t, receipt.TotalAmount.Eq(w(t, "5.8528")),
		"total = %s", wad.Format(receipt.TotalAmount))
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(w(t, "2.8")))

	// Pool paid seller + protocol; trade fee stays: 20 - 5.8528 - 0.0177.
	require.True(t, p.Liquidity().Eq(w(t, "14.1295")),
		"liquidity = %s", wad.Format(p.Liquidity()))

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, len(held))
}

func TestExecuteSellRejectsOutsider(t *testing.T) {
	ctx := context.Background()
	p, tree := sellFixture(t, newFakeTransfers(), "20.0")

	ordered, proof, err := tree.Prove([]*uint256.Int{uint256.NewInt(2)})
	require.NoError(t, err)
	ordered[0] = uint256.NewInt(99)

	_, err = p.ExecuteSellToPool(ctx, buyer, ordered, proof, nil)
	require.ErrorIs(t, err, ErrAllowListRejected)
}

func TestExecuteSellInsufficientLiquidity(t *testing.T) {
	ctx := context.Background()
	p, tree := sellFixture(t, newFakeTransfers(), "1.0")

	ordered, proof, err := tree.Prove([]*uint256.Int{uint256.NewInt(1), uint256.NewInt(2)})
	require.NoError(t, err)

	before := p.CurrentPricingState()
	_, err = p.ExecuteSellToPool(ctx, buyer, ordered, proof, nil)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(before.SpotPrice))
	require.True(t, p.Liquidity().Eq(w(t, "1.0")))
}

func TestExecuteSellSlippage(t *testing.T) {
	ctx := context.Background()
	p, tree := sellFixture(t, newFakeTransfers(), "20.0")

	ordered, proof, err := tree.Prove([]*uint256.Int{uint256.NewInt(1)})
	require.NoError(t, err)

	_, err = p.ExecuteSellToPool(ctx, buyer, ordered, proof, w(t, "10.0"))
	require.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestExecuteSellTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()
	transfers.failOn = "TokenOut"
	p, tree := sellFixture(t, transfers, "20.0")

	ordered, proof, err := tree.Prove([]*uint256.Int{uint256.NewInt(1)})
	require.NoError(t, err)

	before := p.CurrentPricingState()
	_, err = p.ExecuteSellToPool(ctx, buyer, ordered, proof, nil)
	require.Error(t, err)
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(before.SpotPrice))
	require.True(t, p.Liquidity().Eq(w(t, "20.0")))

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, len(held))
}

func TestPoolTypeGating(t *testing.T) {
	ctx := context.Background()

	nftPool := tradePool(t, newFakeTransfers(), func(cfg *Config) {
		cfg.Type = TypeNFT
		cfg.Fees = curve.FeeMultipliers{}
	})
	_, err := nftPool.ExecuteSellToPool(ctx, buyer, []*uint256.Int{uint256.NewInt(1)}, allowlist.Proof{}, nil)
	require.ErrorIs(t, err, ErrTradeNotPermitted)

	tokenPool := tradePool(t, newFakeTransfers(), func(cfg *Config) {
		cfg.Type = TypeToken
		cfg.Fees = curve.FeeMultipliers{}
	})
	_, err = tokenPool.ExecuteBuyFromPool(ctx, buyer, 1, nil, nil)
	require.ErrorIs(t, err, ErrTradeNotPermitted)
}

func TestPauseGatesTrades(t *testing.T) {
	ctx := context.Background()
	p := tradePool(t, newFakeTransfers())
	stock(t, p, 1)

	require.ErrorIs(t, p.Pause(buyer), ErrUnauthorized)
	require.NoError(t, p.Pause(admin))

	_, err := p.ExecuteBuyFromPool(ctx, buyer, 1, nil, nil)
	require.ErrorIs(t, err, ErrPaused)
	_, err = p.ExecuteSellToPool(ctx, buyer, []*uint256.Int{uint256.NewInt(1)}, allowlist.Proof{}, nil)
	require.ErrorIs(t, err, ErrPaused)

	// Administrative operations keep working while paused.
	require.NoError(t, p.DepositToken(ctx, buyer, w(t, "1.0")))

	require.NoError(t, p.Unpause(admin))
	_, err = p.ExecuteBuyFromPool(ctx, buyer, 1, nil, nil)
	require.NoError(t, err)
}

func TestBalanceToFulfillSellNFT(t *testing.T) {
	p := tradePool(t, newFakeTransfers())

	kind, required := p.BalanceToFulfillSellNFT(0)
	require.Equal(t, curve.InvalidNumItems, kind)
	require.Nil(t, required)

	kind, required = p.BalanceToFulfillSellNFT(2)
	require.Equal(t, curve.OK, kind)
	// Seller proceeds 5.8528 + protocol 0.0177 = 5.8705.
	require.True(t, required.Eq(w(t, "5.8705")), "required = %s", wad.Format(required))

	// Read-only: state must be untouched.
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(w(t, "3.0")))
}

func TestExecuteSellClampsItemCount(t *testing.T) {
	ctx := context.Background()
	transfers := newFakeTransfers()

	tree, err := allowlist.NewTree([]*uint256.Int{
		uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(3),
	})
	require.NoError(t, err)

	p := tradePool(t, transfers, func(cfg *Config) {
		cfg.State = curve.PricingState{SpotPrice: w(t, "1.0"), Delta: w(t, "0.6")}
		cfg.Fees = curve.FeeMultipliers{}
		cfg.Allowlist = tree.Commitment()
	})
	p.mu.Lock()
	p.tokenBalance = w(t, "10.0")
	p.mu.Unlock()

	ordered, proof, err := tree.Prove([]*uint256.Int{
		uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(3),
	})
	require.NoError(t, err)

	// floor(1.0/0.6)+1 = 2 items; prices 1.0 + 0.4.
	receipt, err := p.ExecuteSellToPool(ctx, buyer, ordered, proof, nil)
	require.NoError(t, err)
	require.Equal(t, 2, len(receipt.Identifiers))
	require.True(t, receipt.TotalAmount.Eq(w(t, "1.4")))
	require.True(t, p.CurrentPricingState().SpotPrice.IsZero())

	held, err := p.GetAllHeldIdentifiers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, len(held))
}

func TestNewRejectsBadConfig(t *testing.T) {
	base := Config{
		Type:      TypeToken,
		Strategy:  curve.NewLinear(),
		Inventory: inventory.NewTracker(),
		Transfers: newFakeTransfers(),
	}

	cfg := base
	cfg.Fees.Trade = w(t, "0.01")
	_, err := New(cfg)
	require.Error(t, err, "trade fee on non-trade pool")

	cfg = base
	cfg.Fees.RoyaltyNumerator = w(t, "0.05")
	_, err = New(cfg)
	require.Error(t, err, "royalty without resolver")

	cfg = base
	cfg.Fees.Protocol = w(t, "1.0")
	_, err = New(cfg)
	require.Error(t, err, "multiplier at 1.0")

	cfg = base
	cfg.Type = TypeTrade
	cfg.Strategy = curve.NewExponential()
	cfg.State = curve.PricingState{SpotPrice: w(t, "1.0"), Delta: w(t, "1.0")}
	_, err = New(cfg)
	require.Error(t, err, "exponential delta at 1.0")
}

func TestQuoteDoesNotCommit(t *testing.T) {
	p := tradePool(t, newFakeTransfers())
	res := p.QuoteBuyFromPool(3)
	require.Equal(t, curve.OK, res.Err)
	require.True(t, p.CurrentPricingState().SpotPrice.Eq(w(t, "3.0")))
	require.True(t, errors.Is(quoteError(curve.InvalidNumItems), ErrInvalidItemCount))
}
