// Package inventory tracks which item identifiers a pool currently
// custodies. Collections that cannot enumerate their own holdings use the
// tracked implementation; enumerable collections are read natively.
package inventory

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrInsufficient means a selection asked for more items than held.
	ErrInsufficient = errors.New("insufficient inventory")
	// ErrNotHeld means a named identifier is not in the pool's custody.
	ErrNotHeld = errors.New("identifier not held")
)

// Inventory is the pool's view of its held identifiers. Both implementations
// expose the same operations; selection is deterministic (ascending
// identifier order) so a quote and its execution agree on which items move.
type Inventory interface {
	// OnDeposit records that custody of an item moved into the pool.
	OnDeposit(ctx context.Context, id *uint256.Int) error
	// SelectArbitrary removes and returns count identifiers, lowest first.
	SelectArbitrary(ctx context.Context, count uint64) ([]*uint256.Int, error)
	// SelectSpecific removes the named identifiers, or fails without
	// removing any.
	SelectSpecific(ctx context.Context, ids []*uint256.Int) error
	// AllHeldIdentifiers enumerates the full held set in ascending order.
	AllHeldIdentifiers(ctx context.Context) ([]*uint256.Int, error)
	// Size returns the number of held identifiers.
	Size(ctx context.Context) (uint64, error)
}
