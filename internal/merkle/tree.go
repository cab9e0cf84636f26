package merkle

import (
	"bytes"
	"fmt"
	"math/big"
	"runtime"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/merkle-airdrop/airdrop/internal/protocol"
)

// Tree is an immutable Merkle tree over a validated entitlement set.
//
// Leaves are sorted ascending before the levels are built, so the root only
// depends on the set of entitlements and not on their input order. Internal
// nodes hash their children in sorted order. When a level has an odd number
// of nodes the last one is promoted to the next level unchanged.
type Tree struct {
	levels  [][]common.Hash     // levels[0] are the sorted leaves, the last level is the root
	index   map[common.Hash]int // leaf -> position in levels[0]
	entries []Entitlement       // input order
	leaves  []common.Hash       // leaf of entries[i]
	total   *big.Int
}

// Build hashes the entitlements and assembles the tree. Leaf hashing is
// spread across workers; folding the levels is sequential.
func Build(set *EntitlementSet) (*Tree, error) {
	if set == nil || len(set.Entries) == 0 {
		return nil, ErrEmptyEntitlements
	}

	leaves, err := hashLeaves(set.Entries)
	if err != nil {
		return nil, err
	}

	sorted := make([]common.Hash, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	index := make(map[common.Hash]int, len(sorted))
	for i, leaf := range sorted {
		index[leaf] = i
	}

	levels := [][]common.Hash{sorted}
	for level := sorted; len(level) > 1; {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}

	total := set.TotalSupply
	if total == nil {
		total = new(big.Int)
		for _, e := range set.Entries {
			total.Add(total, e.Amount)
		}
	}

	return &Tree{
		levels:  levels,
		index:   index,
		entries: set.Entries,
		leaves:  leaves,
		total:   new(big.Int).Set(total),
	}, nil
}

func hashLeaves(entries []Entitlement) ([]common.Hash, error) {
	leaves := make([]common.Hash, len(entries))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range entries {
		i := i // per-iteration copy; go directive is below 1.22
		g.Go(func() error {
			leaf, err := entries[i].Leaf()
			if err != nil {
				return &ValidationError{Index: i, Field: "amount", Value: amountString(entries[i].Amount), Err: err}
			}
			leaves[i] = leaf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return leaves, nil
}

// Root returns the commitment published for the round.
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int { return len(t.levels[0]) }

// Depth returns the number of levels above the leaves, which bounds the
// length of every proof.
func (t *Tree) Depth() int { return len(t.levels) - 1 }

// TotalSupply returns the sum of all committed amounts.
func (t *Tree) TotalSupply() *big.Int { return new(big.Int).Set(t.total) }

// Proof returns the sibling path for an entitlement in the tree.
func (t *Tree) Proof(e Entitlement) ([]common.Hash, error) {
	leaf, err := e.Leaf()
	if err != nil {
		return nil, err
	}
	return t.ProofForLeaf(leaf)
}

// ProofForLeaf returns the sibling path for a leaf digest.
func (t *Tree) ProofForLeaf(leaf common.Hash) ([]common.Hash, error) {
	pos, ok := t.index[leaf]
	if !ok {
		return nil, ErrLeafNotFound
	}

	proof := make([]common.Hash, 0, t.Depth())
	for _, level := range t.levels[:len(t.levels)-1] {
		// A promoted node has no sibling on this level.
		if sibling := pos ^ 1; sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		pos /= 2
	}
	return proof, nil
}

// Artifact renders the distribution artifact, claims in input order.
func (t *Tree) Artifact() (*protocol.DistributionArtifact, error) {
	claims := make([]protocol.ClaimProof, len(t.entries))
	for i, e := range t.entries {
		proof, err := t.ProofForLeaf(t.leaves[i])
		if err != nil {
			return nil, fmt.Errorf("proof for entry %d: %w", i, err)
		}
		claims[i] = protocol.ClaimProof{
			Address: e.Recipient,
			Amount:  e.Amount.String(),
			Proof:   proof,
		}
	}
	return &protocol.DistributionArtifact{
		MerkleRoot:       t.Root(),
		TotalClaimSupply: t.total.String(),
		Claims:           claims,
	}, nil
}
