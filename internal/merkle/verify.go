package merkle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/merkle-airdrop/airdrop/internal/protocol"
)

// ProcessProof folds a leaf with its sibling path and returns the root the
// path commits to.
func ProcessProof(leaf common.Hash, proof []common.Hash) common.Hash {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed
}

// Verify reports whether proof links leaf to root. A proof of the wrong
// length simply produces a different root.
func Verify(root, leaf common.Hash, proof []common.Hash) bool {
	return ProcessProof(leaf, proof) == root
}

// VerifyClaim recomputes the leaf of (recipient, amount) with the canonical
// encoding and checks it against root. Amounts that cannot be encoded never
// verify.
func VerifyClaim(recipient common.Address, amount *big.Int, proof []common.Hash, root common.Hash) bool {
	leaf, err := LeafHash(recipient, amount)
	if err != nil {
		return false
	}
	return Verify(root, leaf, proof)
}

// VerifyArtifact checks that every claim of a distribution artifact verifies
// against its root and that the claims add up to the advertised total.
func VerifyArtifact(a *protocol.DistributionArtifact) error {
	if a == nil || len(a.Claims) == 0 {
		return ErrEmptyEntitlements
	}

	advertised, ok := new(big.Int).SetString(a.TotalClaimSupply, 10)
	if !ok {
		return fmt.Errorf("%w: totalClaimSupply %q is not an integer", ErrArtifactMismatch, a.TotalClaimSupply)
	}

	total := new(big.Int)
	for i, c := range a.Claims {
		amount, ok := new(big.Int).SetString(c.Amount, 10)
		if !ok {
			return &ValidationError{Index: i, Field: "amount", Value: c.Amount, Err: ErrMalformedAmount}
		}
		if !VerifyClaim(c.Address, amount, c.Proof, a.MerkleRoot) {
			return fmt.Errorf("%w: claim %d (%s) does not verify against root %s",
				ErrArtifactMismatch, i, c.Address.Hex(), a.MerkleRoot.Hex())
		}
		total.Add(total, amount)
	}

	if total.Cmp(advertised) != 0 {
		return fmt.Errorf("%w: claims sum to %s, totalClaimSupply is %s", ErrArtifactMismatch, total, advertised)
	}
	return nil
}
