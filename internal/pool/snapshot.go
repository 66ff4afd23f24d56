package pool

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/holiman/uint256"

	"nftswap/internal/curve"
	"nftswap/internal/model"
)

// SnapshotStore persists pool snapshots to disk.
type SnapshotStore struct {
	path    string
	enabled bool
}

func NewSnapshotStore(path string, enabled bool) *SnapshotStore {
	return &SnapshotStore{path: path, enabled: enabled}
}

func (s *SnapshotStore) Load() (model.PoolSnapshot, bool, error) {
	if !s.enabled {
		return model.PoolSnapshot{}, false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolSnapshot{}, false, nil
		}
		return model.PoolSnapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return model.PoolSnapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap model.PoolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.PoolSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}

	return snap, true, nil
}

func (s *SnapshotStore) Save(snap model.PoolSnapshot) error {
	if !s.enabled {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	snap.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}

// Snapshot captures the pool's resumable state.
func (p *Pool) Snapshot(ctx context.Context) (model.PoolSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	held, err := p.inventory.AllHeldIdentifiers(ctx)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("enumerate inventory: %w", err)
	}
	heldStrings := make([]string, len(held))
	for i, id := range held {
		heldStrings[i] = id.Dec()
	}

	return model.PoolSnapshot{
		PoolID:          p.id,
		SpotPrice:       p.state.SpotPrice.Dec(),
		Delta:           p.state.Delta.Dec(),
		Props:           hex.EncodeToString(p.state.Props),
		State:           hex.EncodeToString(p.state.State),
		TokenBalance:    p.tokenBalance.Dec(),
		HeldIdentifiers: heldStrings,
		Paused:          p.paused,
	}, nil
}

// Restore overwrites the pool's pricing state, balance, and pause flag from
// a snapshot. Held identifiers are re-deposited into the inventory.
func (p *Pool) Restore(ctx context.Context, snap model.PoolSnapshot) error {
	spot, err := uint256.FromDecimal(snap.SpotPrice)
	if err != nil {
		return fmt.Errorf("parse spot price: %w", err)
	}
	delta, err := uint256.FromDecimal(snap.Delta)
	if err != nil {
		return fmt.Errorf("parse delta: %w", err)
	}
	balance, err := uint256.FromDecimal(snap.TokenBalance)
	if err != nil {
		return fmt.Errorf("parse token balance: %w", err)
	}
	props, err := hex.DecodeString(snap.Props)
	if err != nil {
		return fmt.Errorf("parse props: %w", err)
	}
	state, err := hex.DecodeString(snap.State)
	if err != nil {
		return fmt.Errorf("parse state: %w", err)
	}

	// A snapshot goes through the same strategy validation as New; a pool
	// must not resume with pricing state it would have rejected at creation.
	pricing := curvePricingState(spot, delta, props, state)
	if !p.strategy.ValidateSpotPrice(pricing.SpotPrice) {
		return fmt.Errorf("snapshot spot price invalid for strategy")
	}
	if !p.strategy.ValidateDelta(pricing.Delta) {
		return fmt.Errorf("snapshot delta invalid for strategy")
	}
	if !p.strategy.ValidateProps(pricing.Props) {
		return fmt.Errorf("snapshot props invalid for strategy")
	}
	if !p.strategy.ValidateState(pricing.State) {
		return fmt.Errorf("snapshot state invalid for strategy")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = pricing
	p.tokenBalance = balance
	p.paused = snap.Paused
	for _, raw := range snap.HeldIdentifiers {
		id, err := uint256.FromDecimal(raw)
		if err != nil {
			return fmt.Errorf("parse identifier %q: %w", raw, err)
		}
		if err := p.inventory.OnDeposit(ctx, id); err != nil {
			return fmt.Errorf("restore identifier %q: %w", raw, err)
		}
	}
	return nil
}

func curvePricingState(spot, delta *uint256.Int, props, state []byte) curve.PricingState {
	if len(props) == 0 {
		props = nil
	}
	if len(state) == 0 {
		state = nil
	}
	return curve.PricingState{SpotPrice: spot, Delta: delta, Props: props, State: state}
}
