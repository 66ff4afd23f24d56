package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CollectionReader reads holdings from a collection with native enumeration.
type CollectionReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (uint64, error)
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index uint64) (*uint256.Int, error)
	OwnerOf(ctx context.Context, id *uint256.Int) (common.Address, error)
}

// Enumerable answers inventory queries straight from the collection's own
// enumeration. Deposits and removals are implicit in custody transfers, so
// the mutating operations only validate.
type Enumerable struct {
	reader CollectionReader
	owner  common.Address
}

// NewEnumerable returns an inventory view over an enumerable collection.
func NewEnumerable(reader CollectionReader, owner common.Address) *Enumerable {
	return &Enumerable{reader: reader, owner: owner}
}

func (e *Enumerable) OnDeposit(context.Context, *uint256.Int) error {
	// The collection enumerates its own holdings; nothing to record.
	return nil
}

func (e *Enumerable) SelectArbitrary(ctx context.Context, count uint64) ([]*uint256.Int, error) {
	held, err := e.AllHeldIdentifiers(ctx)
	if err != nil {
		return nil, err
	}
	if count > uint64(len(held)) {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficient, len(held), count)
	}
	return held[:count], nil
}

func (e *Enumerable) SelectSpecific(ctx context.Context, ids []*uint256.Int) error {
	for _, id := range ids {
		if id == nil {
			return fmt.Errorf("nil identifier")
		}
		owner, err := e.reader.OwnerOf(ctx, id)
		if err != nil {
			return fmt.Errorf("owner of %s: %w", id.Dec(), err)
		}
		if owner != e.owner {
			return fmt.Errorf("%w: %s", ErrNotHeld, id.Dec())
		}
	}
	return nil
}

func (e *Enumerable) AllHeldIdentifiers(ctx context.Context) ([]*uint256.Int, error) {
	balance, err := e.reader.BalanceOf(ctx, e.owner)
	if err != nil {
		return nil, fmt.Errorf("balance of pool: %w", err)
	}
	held := make([]*uint256.Int, 0, balance)
	for i := uint64(0); i < balance; i++ {
		id, err := e.reader.TokenOfOwnerByIndex(ctx, e.owner, i)
		if err != nil {
			return nil, fmt.Errorf("token %d of pool: %w", i, err)
		}
		held = append(held, id)
	}
	sort.Slice(held, func(i, j int) bool { return held[i].Lt(held[j]) })
	return held, nil
}

func (e *Enumerable) Size(ctx context.Context) (uint64, error) {
	return e.reader.BalanceOf(ctx, e.owner)
}
