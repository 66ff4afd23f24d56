package allowlist

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tree is a complete merkle tree over a fixed identifier set, used to build
// commitments and generate batch multiproofs. The tree is stored in array
// form: node i has children 2i+1 and 2i+2, leaves occupy the tail.
type Tree struct {
	ids   []*uint256.Int // ascending
	nodes []common.Hash  // 2n-1 entries, root at 0
	index map[[32]byte]int
}

// NewTree builds a tree over the given identifiers. Duplicates are removed.
func NewTree(ids []*uint256.Int) (*Tree, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("allowlist requires at least one identifier")
	}

	seen := make(map[[32]byte]struct{}, len(ids))
	unique := make([]*uint256.Int, 0, len(ids))
	for _, id := range ids {
		if id == nil {
			return nil, fmt.Errorf("nil identifier")
		}
		key := id.Bytes32()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, id.Clone())
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Lt(unique[j]) })

	n := len(unique)
	nodes := make([]common.Hash, 2*n-1)
	index := make(map[[32]byte]int, n)
	// Leaf k sits at array index 2n-2-k so that descending array order walks
	// identifiers ascending.
	for k, id := range unique {
		pos := 2*n - 2 - k
		nodes[pos] = LeafHash(id)
		index[id.Bytes32()] = pos
	}
	for i := n - 2; i >= 0; i-- {
		nodes[i] = hashPair(nodes[2*i+1], nodes[2*i+2])
	}

	return &Tree{ids: unique, nodes: nodes, index: index}, nil
}

// Root returns the tree's commitment root.
func (t *Tree) Root() common.Hash {
	return t.nodes[0]
}

// Commitment returns the commitment a pool stores for this tree.
func (t *Tree) Commitment() Commitment {
	return Commitment{Root: t.nodes[0], Size: uint64(len(t.ids))}
}

// Identifiers returns the committed set in ascending order.
func (t *Tree) Identifiers() []*uint256.Int {
	out := make([]*uint256.Int, len(t.ids))
	for i, id := range t.ids {
		out[i] = id.Clone()
	}
	return out
}

// Prove generates a multiproof for a subset of the committed identifiers.
// The returned identifier slice is the order VerifyBatch must receive them
// in (ascending).
func (t *Tree) Prove(subset []*uint256.Int) ([]*uint256.Int, Proof, error) {
	if len(subset) == 0 {
		return nil, Proof{}, fmt.Errorf("empty subset")
	}

	indices := make([]int, 0, len(subset))
	dedup := make(map[int]struct{}, len(subset))
	for _, id := range subset {
		if id == nil {
			return nil, Proof{}, fmt.Errorf("nil identifier")
		}
		pos, ok := t.index[id.Bytes32()]
		if !ok {
			return nil, Proof{}, fmt.Errorf("identifier %s not in allowlist", id.Dec())
		}
		if _, dup := dedup[pos]; dup {
			return nil, Proof{}, fmt.Errorf("duplicate identifier %s", id.Dec())
		}
		dedup[pos] = struct{}{}
		indices = append(indices, pos)
	}
	// Deepest (largest array index) first; this is also ascending id order.
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	ordered := make([]*uint256.Int, len(indices))
	for i, pos := range indices {
		ordered[i] = t.ids[2*len(t.ids)-2-pos].Clone()
	}

	proof := Proof{Nodes: []common.Hash{}, Flags: []bool{}}
	queue := append([]int(nil), indices...)
	for queue[0] != 0 {
		j := queue[0]
		queue = queue[1:]

		sibling := j + 1
		if j%2 == 0 {
			sibling = j - 1
		}
		if len(queue) > 0 && queue[0] == sibling {
			queue = queue[1:]
			proof.Flags = append(proof.Flags, true)
		} else {
			proof.Flags = append(proof.Flags, false)
			proof.Nodes = append(proof.Nodes, t.nodes[sibling])
		}
		queue = append(queue, (j-1)/2)
	}

	return ordered, proof, nil
}
