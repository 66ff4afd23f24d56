package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// Tracker maintains the held set for collections without native enumeration.
// It is not internally synchronized; the owning pool serializes access.
type Tracker struct {
	held map[[32]byte]*uint256.Int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{held: make(map[[32]byte]*uint256.Int)}
}

func (t *Tracker) OnDeposit(_ context.Context, id *uint256.Int) error {
	if id == nil {
		return fmt.Errorf("nil identifier")
	}
	t.held[id.Bytes32()] = id.Clone()
	return nil
}

func (t *Tracker) SelectArbitrary(_ context.Context, count uint64) ([]*uint256.Int, error) {
	if count > uint64(len(t.held)) {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficient, len(t.held), count)
	}
	sorted := t.sorted()
	picked := sorted[:count]
	for _, id := range picked {
		delete(t.held, id.Bytes32())
	}
	return picked, nil
}

func (t *Tracker) SelectSpecific(_ context.Context, ids []*uint256.Int) error {
	// Validate the whole batch before removing anything.
	seen := make(map[[32]byte]struct{}, len(ids))
	for _, id := range ids {
		if id == nil {
			return fmt.Errorf("nil identifier")
		}
		key := id.Bytes32()
		if _, held := t.held[key]; !held {
			return fmt.Errorf("%w: %s", ErrNotHeld, id.Dec())
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate identifier %s", id.Dec())
		}
		seen[key] = struct{}{}
	}
	for _, id := range ids {
		delete(t.held, id.Bytes32())
	}
	return nil
}

func (t *Tracker) AllHeldIdentifiers(_ context.Context) ([]*uint256.Int, error) {
	return t.sorted(), nil
}

func (t *Tracker) Size(_ context.Context) (uint64, error) {
	return uint64(len(t.held)), nil
}

func (t *Tracker) sorted() []*uint256.Int {
	out := make([]*uint256.Int, 0, len(t.held))
	for _, id := range t.held {
		out = append(out, id.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lt(out[j]) })
	return out
}
