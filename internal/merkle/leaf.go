package merkle

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// leafArguments is the (address, uint256) tuple every leaf is abi-encoded as.
var leafArguments = abi.Arguments{
	{Type: mustType("address")},
	{Type: mustType("uint256")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// EncodeLeaf returns the canonical encoding of an entitlement: the
// abi.encode of (address, uint256), two 32-byte words.
func EncodeLeaf(recipient common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if amount.BitLen() > 256 {
		return nil, ErrAmountOverflow
	}
	return leafArguments.Pack(recipient, amount)
}

// LeafHash computes keccak256(keccak256(abi.encode(recipient, amount))).
// The inner hash makes leaves 32 bytes long, so a leaf preimage can never be
// confused with the 64-byte preimage of an internal node.
func LeafHash(recipient common.Address, amount *big.Int) (common.Hash, error) {
	encoded, err := EncodeLeaf(recipient, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(crypto.Keccak256(encoded)), nil
}

// Leaf returns the leaf digest of the entitlement.
func (e Entitlement) Leaf() (common.Hash, error) {
	return LeafHash(e.Recipient, e.Amount)
}

// hashPair hashes two nodes in ascending byte order so that a proof
// does not need to record left/right positions.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}
