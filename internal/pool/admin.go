package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"nftswap/internal/allowlist"
)

// Pause suspends trade operations. Administrative operations stay available.
func (p *Pool) Pause(caller Caller) error {
	if !p.allowed(caller, ActionPause) {
		return ErrUnauthorized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	return nil
}

// Unpause resumes trade operations.
func (p *Pool) Unpause(caller Caller) error {
	if !p.allowed(caller, ActionPause) {
		return ErrUnauthorized
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	return nil
}

// DepositToken adds base-asset liquidity from the caller.
func (p *Pool) DepositToken(ctx context.Context, caller Caller, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("deposit amount must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transfers.TokenIn(ctx, caller.Addr, amount); err != nil {
		return fmt.Errorf("token in: %w", err)
	}
	p.tokenBalance.Add(p.tokenBalance, amount)
	return nil
}

// DepositItems adds items to the pool's custody. The batch must satisfy the
// allowlist like any sell would.
func (p *Pool) DepositItems(ctx context.Context, caller Caller, ids []*uint256.Int, proof allowlist.Proof) error {
	if len(ids) == 0 {
		return ErrInvalidItemCount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.approveBatch(ids, proof) {
		return ErrAllowListRejected
	}
	if err := p.transfers.ItemsIn(ctx, caller.Addr, ids); err != nil {
		return fmt.Errorf("items in: %w", err)
	}
	for _, id := range ids {
		if err := p.inventory.OnDeposit(ctx, id); err != nil {
			return fmt.Errorf("inventory deposit: %w", err)
		}
	}
	return nil
}

// WithdrawToken removes base-asset liquidity to the given recipient.
func (p *Pool) WithdrawToken(ctx context.Context, caller Caller, to common.Address, amount *uint256.Int) error {
	if !p.allowed(caller, ActionWithdraw) {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("withdraw amount must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokenBalance.Lt(amount) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientLiquidity,
			amount.Dec(), p.tokenBalance.Dec())
	}
	if err := p.transfers.TokenOut(ctx, to, amount); err != nil {
		return fmt.Errorf("token out: %w", err)
	}
	p.tokenBalance.Sub(p.tokenBalance, amount)
	return nil
}

// WithdrawItems removes specific items from custody to the given recipient.
func (p *Pool) WithdrawItems(ctx context.Context, caller Caller, to common.Address, ids []*uint256.Int) error {
	if !p.allowed(caller, ActionWithdraw) {
		return ErrUnauthorized
	}
	if len(ids) == 0 {
		return ErrInvalidItemCount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.inventory.SelectSpecific(ctx, ids); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientInventory, err)
	}
	if err := p.transfers.ItemsOut(ctx, to, ids); err != nil {
		// Re-track before surfacing the failure.
		for _, id := range ids {
			if depErr := p.inventory.OnDeposit(ctx, id); depErr != nil {
				p.logger.Error("inventory restore failed", zap.Error(depErr))
			}
		}
		return fmt.Errorf("items out: %w", err)
	}
	return nil
}

func (p *Pool) allowed(caller Caller, action string) bool {
	return p.gate == nil || p.gate.Allow(caller, action)
}
