// Package pool composes a pricing strategy, an inventory view, and an
// allowlist commitment into a trading pool. The pool is the only component
// that mutates pricing state, and every execute path is all-or-nothing.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"nftswap/internal/allowlist"
	"nftswap/internal/curve"
	"nftswap/internal/inventory"
	"nftswap/internal/model"
	"nftswap/internal/storage"
	"nftswap/internal/wad"
)

// Type gates which trade directions a pool permits. The arithmetic is the
// same for all three.
type Type uint8

const (
	// TypeToken pools hold the base asset and only buy items in.
	TypeToken Type = iota
	// TypeNFT pools hold items and only sell them out.
	TypeNFT
	// TypeTrade pools do both and charge the trade/carry fee split.
	TypeTrade
)

func (t Type) String() string {
	switch t {
	case TypeToken:
		return "token"
	case TypeNFT:
		return "nft"
	case TypeTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// canSellItems reports whether the pool may transfer items out to buyers.
func (t Type) canSellItems() bool { return t == TypeNFT || t == TypeTrade }

// canBuyItems reports whether the pool may take items in from sellers.
func (t Type) canBuyItems() bool { return t == TypeToken || t == TypeTrade }

// Caller is the explicit identity an operation runs as. Permission checks
// resolve against it, never against ambient state.
type Caller struct {
	Addr common.Address
}

// Administrative actions checked against the access gate.
const (
	ActionPause    = "pause"
	ActionWithdraw = "withdraw"
)

// AccessGate permits or denies administrative operations.
type AccessGate interface {
	Allow(caller Caller, action string) bool
}

// TransferAgent moves the base asset and items in and out of pool custody.
// Each call is assumed atomic: it either fully succeeds or fully fails.
type TransferAgent interface {
	TokenIn(ctx context.Context, from common.Address, amount *uint256.Int) error
	TokenOut(ctx context.Context, to common.Address, amount *uint256.Int) error
	ItemsIn(ctx context.Context, from common.Address, ids []*uint256.Int) error
	ItemsOut(ctx context.Context, to common.Address, ids []*uint256.Int) error
}

// RoyaltyResolver maps an item to its royalty recipient, when one exists.
// The pool computes royalty amounts itself.
type RoyaltyResolver interface {
	RecipientFor(ctx context.Context, id *uint256.Int) (common.Address, bool, error)
}

// TradeReceipt reports a committed trade back to the caller.
type TradeReceipt struct {
	Side        string
	Identifiers []*uint256.Int
	TotalAmount *uint256.Int
	Fees        curve.FeeBreakdown
	NewState    curve.PricingState
}

// Config assembles a pool's fixed collaborators and starting state.
type Config struct {
	ID                   string
	Type                 Type
	Strategy             curve.Curve
	State                curve.PricingState
	Fees                 curve.FeeMultipliers
	ProtocolFeeRecipient common.Address
	Inventory            inventory.Inventory
	Allowlist            allowlist.Commitment
	Policy               allowlist.PolicyHook
	Transfers            TransferAgent
	Royalties            RoyaltyResolver
	Gate                 AccessGate
	Recorder             storage.Recorder
	Logger               *zap.Logger
}

// Pool owns one PricingState and one inventory. All operations run to
// completion under a single lock; internal state is committed before any
// external transfer is triggered.
type Pool struct {
	mu sync.Mutex

	id        string
	poolType  Type
	strategy  curve.Curve
	state     curve.PricingState
	fees      curve.FeeMultipliers
	protoAddr common.Address

	inventory inventory.Inventory
	allowlist allowlist.Commitment
	policy    allowlist.PolicyHook
	transfers TransferAgent
	royalties RoyaltyResolver
	gate      AccessGate
	recorder  storage.Recorder
	logger    *zap.Logger

	tokenBalance *uint256.Int
	paused       bool
}

// New validates the configuration and builds a pool. Malformed curve
// parameters or fee multipliers are rejected before any trade is possible.
func New(cfg Config) (*Pool, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if cfg.Inventory == nil {
		return nil, fmt.Errorf("inventory is required")
	}
	if cfg.Transfers == nil {
		return nil, fmt.Errorf("transfer agent is required")
	}
	if cfg.Type > TypeTrade {
		return nil, fmt.Errorf("unknown pool type %d", cfg.Type)
	}

	state := cfg.State.Clone()
	if state.SpotPrice == nil {
		state.SpotPrice = uint256.NewInt(0)
	}
	if state.Delta == nil {
		state.Delta = uint256.NewInt(0)
	}
	if !cfg.Strategy.ValidateSpotPrice(state.SpotPrice) {
		return nil, fmt.Errorf("invalid spot price for strategy")
	}
	if !cfg.Strategy.ValidateDelta(state.Delta) {
		return nil, fmt.Errorf("invalid delta for strategy")
	}
	if !cfg.Strategy.ValidateProps(state.Props) {
		return nil, fmt.Errorf("invalid props for strategy")
	}
	if !cfg.Strategy.ValidateState(state.State) {
		return nil, fmt.Errorf("invalid state for strategy")
	}

	for name, f := range map[string]*uint256.Int{
		"trade":    cfg.Fees.Trade,
		"protocol": cfg.Fees.Protocol,
		"royalty":  cfg.Fees.RoyaltyNumerator,
		"carry":    cfg.Fees.Carry,
	} {
		if !wad.IsFraction(f) {
			return nil, fmt.Errorf("%s multiplier must be below 1.0", name)
		}
	}
	if cfg.Type != TypeTrade && notZero(cfg.Fees.Trade) {
		return nil, fmt.Errorf("trade fee requires a trade pool")
	}
	if cfg.Type != TypeTrade && notZero(cfg.Fees.Carry) {
		return nil, fmt.Errorf("carry fee requires a trade pool")
	}
	if notZero(cfg.Fees.RoyaltyNumerator) && cfg.Royalties == nil {
		return nil, fmt.Errorf("royalty numerator requires a royalty resolver")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pool{
		id:           cfg.ID,
		poolType:     cfg.Type,
		strategy:     cfg.Strategy,
		state:        state,
		fees:         cfg.Fees,
		protoAddr:    cfg.ProtocolFeeRecipient,
		inventory:    cfg.Inventory,
		allowlist:    cfg.Allowlist,
		policy:       cfg.Policy,
		transfers:    cfg.Transfers,
		royalties:    cfg.Royalties,
		gate:         cfg.Gate,
		recorder:     cfg.Recorder,
		logger:       logger,
		tokenBalance: uint256.NewInt(0),
	}, nil
}

func notZero(v *uint256.Int) bool { return v != nil && !v.IsZero() }

// ID returns the pool identifier.
func (p *Pool) ID() string { return p.id }

// Type returns the pool's trade gating tag.
func (p *Pool) Type() Type { return p.poolType }

// Paused reports whether trading is suspended.
func (p *Pool) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// CurrentPricingState returns a copy of the pool's pricing state.
func (p *Pool) CurrentPricingState() curve.PricingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Liquidity returns the pool's base-asset balance.
func (p *Pool) Liquidity() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenBalance.Clone()
}

// GetAllHeldIdentifiers enumerates the pool's held items.
func (p *Pool) GetAllHeldIdentifiers(ctx context.Context) ([]*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inventory.AllHeldIdentifiers(ctx)
}

// QuoteBuyFromPool prices buying numItems out of the pool without committing.
func (p *Pool) QuoteBuyFromPool(numItems uint64) curve.QuoteResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategy.QuoteBuy(p.state, numItems, p.fees)
}

// QuoteSellToPool prices selling numItems into the pool without committing.
func (p *Pool) QuoteSellToPool(numItems uint64) curve.QuoteResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strategy.QuoteSell(p.state, numItems, p.fees)
}

// BalanceToFulfillSellNFT computes, without mutating state, the base-asset
// balance the pool needs to pay out a sell of numItems, royalty and protocol
// obligations included. The failure mode is a typed kind, never an error,
// so callers can tell a malformed request from a liquidity shortfall.
func (p *Pool) BalanceToFulfillSellNFT(numItems uint64) (curve.ErrorKind, *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	quote := p.strategy.QuoteSell(p.state, numItems, p.fees)
	if quote.Err != curve.OK {
		return quote.Err, nil
	}
	return curve.OK, sellObligation(quote)
}

// sellObligation is everything the pool pays out on a sell: the seller's
// proceeds plus the protocol fee plus all royalties. The trade fee stays in
// the pool.
func sellObligation(quote curve.QuoteResult) *uint256.Int {
	required := new(uint256.Int).Set(quote.TotalAmount)
	required.Add(required, quote.Fees.Protocol)
	required.Add(required, quote.Fees.RoyaltyTotal())
	return required
}

// ExecuteBuyFromPool sells numItems out of the pool to the caller. When
// requested is non-empty those exact items move; otherwise the inventory
// picks deterministically. maxInput is the caller's slippage bound; nil
// means unbounded. Any failure leaves the pool untouched.
func (p *Pool) ExecuteBuyFromPool(ctx context.Context, caller Caller, numItems uint64, requested []*uint256.Int, maxInput *uint256.Int) (*TradeReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return nil, ErrPaused
	}
	if !p.poolType.canSellItems() {
		return nil, ErrTradeNotPermitted
	}

	// Re-quote against current state immediately before commit; an earlier
	// informational quote may be stale.
	quote := p.strategy.QuoteBuy(p.state, numItems, p.fees)
	if quote.Err != curve.OK {
		return nil, quoteError(quote.Err)
	}
	if maxInput != nil && quote.TotalAmount.Gt(maxInput) {
		return nil, fmt.Errorf("%w: need %s, cap %s", ErrSlippageExceeded,
			quote.TotalAmount.Dec(), maxInput.Dec())
	}

	var ids []*uint256.Int
	if len(requested) > 0 {
		if uint64(len(requested)) != numItems {
			return nil, fmt.Errorf("requested %d identifiers for %d items", len(requested), numItems)
		}
		if err := p.inventory.SelectSpecific(ctx, requested); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientInventory, err)
		}
		ids = cloneIDs(requested)
	} else {
		picked, err := p.inventory.SelectArbitrary(ctx, numItems)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientInventory, err)
		}
		ids = picked
	}

	// Commit the new pricing state before any external movement.
	prevState := p.state
	prevBalance := p.tokenBalance.Clone()
	p.state = quote.NewState

	retained, err := p.settleBuy(ctx, caller, ids, quote)
	if err != nil {
		p.state = prevState
		p.tokenBalance = prevBalance
		for _, id := range ids {
			if depErr := p.inventory.OnDeposit(ctx, id); depErr != nil {
				p.logger.Error("inventory restore failed",
					zap.String("pool", p.id), zap.String("id", id.Dec()), zap.Error(depErr))
			}
		}
		return nil, err
	}
	p.tokenBalance.Add(p.tokenBalance, retained)

	p.record(model.TradeSideBuy, caller, ids, prevState, quote)
	return &TradeReceipt{
		Side:        model.TradeSideBuy,
		Identifiers: ids,
		TotalAmount: quote.TotalAmount.Clone(),
		Fees:        quote.Fees,
		NewState:    quote.NewState.Clone(),
	}, nil
}

// settleBuy moves the buyer's payment in, the items out, and forwards the
// protocol fee and royalties. It returns the portion of the payment the pool
// retains. A mid-sequence failure reverses the legs that already completed
// before surfacing the error.
func (p *Pool) settleBuy(ctx context.Context, caller Caller, ids []*uint256.Int, quote curve.QuoteResult) (*uint256.Int, error) {
	var undo []func(context.Context) error

	if err := p.transfers.TokenIn(ctx, caller.Addr, quote.TotalAmount); err != nil {
		return nil, fmt.Errorf("token in: %w", err)
	}
	undo = append(undo, func(ctx context.Context) error {
		return p.transfers.TokenOut(ctx, caller.Addr, quote.TotalAmount)
	})

	if err := p.transfers.ItemsOut(ctx, caller.Addr, ids); err != nil {
		p.compensate(ctx, undo)
		return nil, fmt.Errorf("items out: %w", err)
	}
	undo = append(undo, func(ctx context.Context) error {
		return p.transfers.ItemsIn(ctx, caller.Addr, ids)
	})

	forwarded := uint256.NewInt(0)
	if notZero(quote.Fees.Protocol) {
		if err := p.transfers.TokenOut(ctx, p.protoAddr, quote.Fees.Protocol); err != nil {
			p.compensate(ctx, undo)
			return nil, fmt.Errorf("protocol fee out: %w", err)
		}
		undo = append(undo, func(ctx context.Context) error {
			return p.transfers.TokenIn(ctx, p.protoAddr, quote.Fees.Protocol)
		})
		forwarded.Add(forwarded, quote.Fees.Protocol)
	}
	paid, err := p.payRoyalties(ctx, ids, quote.Fees.RoyaltyAmounts)
	if err != nil {
		p.compensate(ctx, undo)
		return nil, err
	}
	forwarded.Add(forwarded, paid)

	retained := new(uint256.Int).Sub(quote.TotalAmount, forwarded)
	return retained, nil
}

// compensate reverses already-completed transfer legs, most recent first.
// Compensation is best-effort: a leg that cannot be reversed is logged and
// the original settlement error still reaches the caller.
func (p *Pool) compensate(ctx context.Context, undo []func(context.Context) error) {
	for i := len(undo) - 1; i >= 0; i-- {
		if err := undo[i](ctx); err != nil {
			p.logger.Error("compensating transfer failed",
				zap.String("pool", p.id), zap.Error(err))
		}
	}
}

// ExecuteSellToPool buys the given items into the pool from the caller. The
// batch must pass the allowlist; minOutput is the caller's slippage bound
// (nil means none). The curve may clamp the effective item count; only that
// many identifiers, in the order given, are accepted.
func (p *Pool) ExecuteSellToPool(ctx context.Context, caller Caller, ids []*uint256.Int, proof allowlist.Proof, minOutput *uint256.Int) (*TradeReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.paused {
		return nil, ErrPaused
	}
	if !p.poolType.canBuyItems() {
		return nil, ErrTradeNotPermitted
	}
	if len(ids) == 0 {
		return nil, ErrInvalidItemCount
	}
	if !p.approveBatch(ids, proof) {
		return nil, ErrAllowListRejected
	}

	quote := p.strategy.QuoteSell(p.state, uint64(len(ids)), p.fees)
	if quote.Err != curve.OK {
		return nil, quoteError(quote.Err)
	}
	accepted := cloneIDs(ids[:quote.NumItems])

	required := sellObligation(quote)
	if p.tokenBalance.Lt(required) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientLiquidity,
			required.Dec(), p.tokenBalance.Dec())
	}
	if minOutput != nil && quote.TotalAmount.Lt(minOutput) {
		return nil, fmt.Errorf("%w: got %s, floor %s", ErrSlippageExceeded,
			quote.TotalAmount.Dec(), minOutput.Dec())
	}

	prevState := p.state
	prevBalance := p.tokenBalance.Clone()
	p.state = quote.NewState
	p.tokenBalance.Sub(p.tokenBalance, required)
	for _, id := range accepted {
		if err := p.inventory.OnDeposit(ctx, id); err != nil {
			p.state = prevState
			p.tokenBalance = prevBalance
			return nil, fmt.Errorf("inventory deposit: %w", err)
		}
	}

	unpaid, err := p.settleSell(ctx, caller, accepted, quote)
	if err != nil {
		p.state = prevState
		p.tokenBalance = prevBalance
		if remErr := p.inventory.SelectSpecific(ctx, accepted); remErr != nil {
			p.logger.Error("inventory restore failed",
				zap.String("pool", p.id), zap.Error(remErr))
		}
		return nil, err
	}
	// Royalties with no resolvable recipient stay in the pool.
	p.tokenBalance.Add(p.tokenBalance, unpaid)

	p.record(model.TradeSideSell, caller, accepted, prevState, quote)
	return &TradeReceipt{
		Side:        model.TradeSideSell,
		Identifiers: accepted,
		TotalAmount: quote.TotalAmount.Clone(),
		Fees:        quote.Fees,
		NewState:    quote.NewState.Clone(),
	}, nil
}

// settleSell moves the items in and pays the seller, the protocol, and the
// royalty recipients. It returns the royalty total that found no recipient.
// A mid-sequence failure reverses the legs that already completed before
// surfacing the error.
func (p *Pool) settleSell(ctx context.Context, caller Caller, ids []*uint256.Int, quote curve.QuoteResult) (*uint256.Int, error) {
	var undo []func(context.Context) error

	if err := p.transfers.ItemsIn(ctx, caller.Addr, ids); err != nil {
		return nil, fmt.Errorf("items in: %w", err)
	}
	undo = append(undo, func(ctx context.Context) error {
		return p.transfers.ItemsOut(ctx, caller.Addr, ids)
	})

	if err := p.transfers.TokenOut(ctx, caller.Addr, quote.TotalAmount); err != nil {
		p.compensate(ctx, undo)
		return nil, fmt.Errorf("token out: %w", err)
	}
	undo = append(undo, func(ctx context.Context) error {
		return p.transfers.TokenIn(ctx, caller.Addr, quote.TotalAmount)
	})

	if notZero(quote.Fees.Protocol) {
		if err := p.transfers.TokenOut(ctx, p.protoAddr, quote.Fees.Protocol); err != nil {
			p.compensate(ctx, undo)
			return nil, fmt.Errorf("protocol fee out: %w", err)
		}
		undo = append(undo, func(ctx context.Context) error {
			return p.transfers.TokenIn(ctx, p.protoAddr, quote.Fees.Protocol)
		})
	}
	paid, err := p.payRoyalties(ctx, ids, quote.Fees.RoyaltyAmounts)
	if err != nil {
		p.compensate(ctx, undo)
		return nil, err
	}
	royaltyTotal := quote.Fees.RoyaltyTotal()
	return royaltyTotal.Sub(royaltyTotal, paid), nil
}

// payRoyalties forwards each item's royalty to its resolved recipient and
// returns the amount actually paid out.
func (p *Pool) payRoyalties(ctx context.Context, ids []*uint256.Int, amounts []*uint256.Int) (*uint256.Int, error) {
	paid := uint256.NewInt(0)
	if p.royalties == nil {
		return paid, nil
	}
	for i, id := range ids {
		if i >= len(amounts) || !notZero(amounts[i]) {
			continue
		}
		recipient, ok, err := p.royalties.RecipientFor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve royalty recipient for %s: %w", id.Dec(), err)
		}
		if !ok {
			continue
		}
		if err := p.transfers.TokenOut(ctx, recipient, amounts[i]); err != nil {
			return nil, fmt.Errorf("royalty out: %w", err)
		}
		paid.Add(paid, amounts[i])
	}
	return paid, nil
}

func (p *Pool) approveBatch(ids []*uint256.Int, proof allowlist.Proof) bool {
	if !p.allowlist.VerifyBatch(ids, proof) {
		return false
	}
	if p.policy != nil && !p.policy.Approve(ids) {
		return false
	}
	return true
}

// record appends the trade to the configured sink. Recording is best-effort;
// a sink failure never unwinds a committed trade.
func (p *Pool) record(side string, caller Caller, ids []*uint256.Int, before curve.PricingState, quote curve.QuoteResult) {
	if p.recorder == nil {
		return
	}
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.Dec()
	}
	trade := model.TradeRecord{
		PoolID:       p.id,
		Side:         side,
		Caller:       caller.Addr.Hex(),
		NumItems:     quote.NumItems,
		Identifiers:  idStrings,
		SpotBefore:   before.SpotPrice.Dec(),
		SpotAfter:    quote.NewState.SpotPrice.Dec(),
		TotalAmount:  quote.TotalAmount.Dec(),
		TradeFee:     quote.Fees.Trade.Dec(),
		ProtocolFee:  quote.Fees.Protocol.Dec(),
		RoyaltyTotal: quote.Fees.RoyaltyTotal().Dec(),
		ExecutedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := p.recorder.PutTradeBatch([]model.TradeRecord{trade}); err != nil {
		p.logger.Warn("trade record failed", zap.String("pool", p.id), zap.Error(err))
	}
}

func cloneIDs(ids []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(ids))
	for i, id := range ids {
		out[i] = id.Clone()
	}
	return out
}
