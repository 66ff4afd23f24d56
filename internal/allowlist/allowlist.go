// Package allowlist restricts which item identifiers a pool accepts, using a
// merkle commitment fixed at pool creation and checked with batch
// multiproofs.
package allowlist

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Commitment is the root of the allowed identifier set. A zero commitment
// means the pool is unrestricted.
type Commitment struct {
	Root common.Hash `json:"root"`
	Size uint64      `json:"size"`
}

// Empty reports whether the commitment places no restriction.
func (c Commitment) Empty() bool {
	return c.Root == (common.Hash{})
}

// Proof is a batch membership multiproof. Flags drive reconstruction: true
// combines the next two pending hashes, false combines a pending hash with
// the next proof node.
type Proof struct {
	Nodes []common.Hash `json:"nodes"`
	Flags []bool        `json:"flags"`
}

// PolicyHook is an optional secondary check consulted alongside the merkle
// proof; both must approve a batch.
type PolicyHook interface {
	Approve(ids []*uint256.Int) bool
}

// LeafHash hashes an identifier into its leaf node.
func LeafHash(id *uint256.Int) common.Hash {
	b := id.Bytes32()
	return crypto.Keccak256Hash(b[:])
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// VerifyBatch reports whether every identifier belongs to the committed set.
// The identifiers must be supplied in the order the proof was generated for.
// A failure rejects the whole batch; there is no per-identifier outcome.
func (c Commitment) VerifyBatch(ids []*uint256.Int, proof Proof) bool {
	if c.Empty() {
		return true
	}
	if len(ids) == 0 {
		return false
	}

	leaves := make([]common.Hash, len(ids))
	for i, id := range ids {
		if id == nil {
			return false
		}
		leaves[i] = LeafHash(id)
	}

	root, ok := processMultiProof(leaves, proof)
	return ok && root == c.Root
}

// processMultiProof reconstructs the root by consuming leaves first, then
// previously combined hashes, in FIFO order. Returns false on any length or
// consumption mismatch rather than panicking on adversarial input.
func processMultiProof(leaves []common.Hash, proof Proof) (common.Hash, bool) {
	totalHashes := len(proof.Flags)
	if len(leaves)+len(proof.Nodes) != totalHashes+1 {
		return common.Hash{}, false
	}
	if totalHashes == 0 {
		if len(leaves) == 1 {
			return leaves[0], true
		}
		return proof.Nodes[0], true
	}

	hashes := make([]common.Hash, 0, totalHashes)
	leafPos, hashPos, proofPos := 0, 0, 0

	next := func() (common.Hash, bool) {
		if leafPos < len(leaves) {
			h := leaves[leafPos]
			leafPos++
			return h, true
		}
		if hashPos < len(hashes) {
			h := hashes[hashPos]
			hashPos++
			return h, true
		}
		return common.Hash{}, false
	}

	for _, flag := range proof.Flags {
		a, ok := next()
		if !ok {
			return common.Hash{}, false
		}
		var b common.Hash
		if flag {
			b, ok = next()
			if !ok {
				return common.Hash{}, false
			}
		} else {
			if proofPos >= len(proof.Nodes) {
				return common.Hash{}, false
			}
			b = proof.Nodes[proofPos]
			proofPos++
		}
		hashes = append(hashes, hashPair(a, b))
	}

	if proofPos != len(proof.Nodes) || leafPos != len(leaves) {
		return common.Hash{}, false
	}
	return hashes[totalHashes-1], true
}
