// Package permit checks EIP-712 claim permits: a recipient's signed
// statement that a third party may submit their claim and have it paid to a
// chosen destination.
package permit

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

var (
	// ErrInvalidPermit is the parent of every rejection caused by the permit
	// contents or its signature.
	ErrInvalidPermit = errors.New("permit: invalid permit")

	ErrInvalidSignature   = fmt.Errorf("%w: signer is not the recipient", ErrInvalidPermit)
	ErrMalformedSignature = fmt.Errorf("%w: malformed signature", ErrInvalidPermit)
	ErrBindingMismatch    = fmt.Errorf("%w: recipient or destination does not match", ErrInvalidPermit)
	ErrMalformedPermit    = fmt.Errorf("%w: malformed permit", ErrInvalidPermit)

	// ErrPermitReplay indicates the permit was already consumed.
	ErrPermitReplay = errors.New("permit: already used")
)

const primaryType = "ClaimPermit"

var permitTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
	},
	primaryType: {
		{Name: "authorization", Type: "string"},
		{Name: "recipient", Type: "address"},
		{Name: "destinationAuthorization", Type: "string"},
		{Name: "destination", Type: "address"},
		{Name: "airdrop", Type: "string"},
		{Name: "nonce", Type: "uint256"},
	},
}

// Domain separates permits of different deployments.
type Domain struct {
	Name    string
	Version string
}

// Phrases are the human-readable statements embedded in every permit.
type Phrases struct {
	Authorization            string
	DestinationAuthorization string
}

var (
	DefaultDomain  = Domain{Name: "EIP712Example", Version: "1"}
	DefaultPhrases = Phrases{
		Authorization:            "I authorize claim to",
		DestinationAuthorization: "I authorize claim to be receive on",
	}
)

// Permit is a signed authorization to pay Recipient's claim to Destination.
type Permit struct {
	Recipient   common.Address
	Destination common.Address
	Nonce       *big.Int
	Signature   []byte // 65 bytes, [R || S || V], V in {0, 1, 27, 28}
}

// ConsumedChecker reports whether a consumption key was already written.
// store.Store satisfies it.
type ConsumedChecker interface {
	Has(key []byte) (bool, error)
}

// Authorizer validates permits for one domain. It never writes: marking a
// permit consumed is left to the caller so it can happen in the same batch
// as the payout.
type Authorizer struct {
	domain   Domain
	phrases  Phrases
	consumed ConsumedChecker
}

func NewAuthorizer(domain Domain, phrases Phrases, consumed ConsumedChecker) *Authorizer {
	return &Authorizer{domain: domain, phrases: phrases, consumed: consumed}
}

func (a *Authorizer) Domain() Domain { return a.domain }

// TypedData returns the EIP-712 document a recipient signs for p.
func TypedData(domain Domain, phrases Phrases, airdropID string, p *Permit) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    domain.Name,
			Version: domain.Version,
		},
		Message: apitypes.TypedDataMessage{
			"authorization":            phrases.Authorization,
			"recipient":                p.Recipient.Hex(),
			"destinationAuthorization": phrases.DestinationAuthorization,
			"destination":              p.Destination.Hex(),
			"airdrop":                  airdropID,
			"nonce":                    p.Nonce.String(),
		},
	}
}

// Digest returns the 32-byte hash that is signed.
func Digest(domain Domain, phrases Phrases, airdropID string, p *Permit) (common.Hash, error) {
	if err := checkPermit(p); err != nil {
		return common.Hash{}, err
	}
	hash, _, err := apitypes.TypedDataAndHash(TypedData(domain, phrases, airdropID, p))
	if err != nil {
		return common.Hash{}, fmt.Errorf("permit: hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

func checkPermit(p *Permit) error {
	if p == nil || p.Nonce == nil {
		return ErrMalformedPermit
	}
	if _, overflow := uint256.FromBig(p.Nonce); overflow || p.Nonce.Sign() < 0 {
		return fmt.Errorf("%w: nonce out of range", ErrMalformedPermit)
	}
	if p.Recipient == (common.Address{}) || p.Destination == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrMalformedPermit)
	}
	return nil
}

// RecoverSigner returns the address that signed digest. High-s signatures
// are rejected so that each permit has exactly one valid encoding.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrMalformedSignature, len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if v := normalized[crypto.RecoveryIDOffset]; v == 27 || v == 28 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	r := new(big.Int).SetBytes(normalized[:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[crypto.RecoveryIDOffset], r, s, true) {
		return common.Address{}, fmt.Errorf("%w: bad r, s or v", ErrMalformedSignature)
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Authorize checks that p was signed by expectedRecipient for payment to
// expectedDestination and has not been used. A zero expectedDestination
// accepts the destination named in the permit.
func (a *Authorizer) Authorize(airdropID string, p *Permit, expectedRecipient, expectedDestination common.Address) (common.Address, error) {
	digest, err := Digest(a.domain, a.phrases, airdropID, p)
	if err != nil {
		return common.Address{}, err
	}
	if p.Recipient != expectedRecipient {
		return common.Address{}, ErrBindingMismatch
	}
	if expectedDestination != (common.Address{}) && p.Destination != expectedDestination {
		return common.Address{}, ErrBindingMismatch
	}

	signer, err := RecoverSigner(digest, p.Signature)
	if err != nil {
		return common.Address{}, err
	}
	if signer != expectedRecipient {
		return common.Address{}, fmt.Errorf("%w: recovered %s", ErrInvalidSignature, signer.Hex())
	}

	used, err := a.consumed.Has(ConsumptionKey(airdropID, signer, p.Nonce))
	if err != nil {
		return common.Address{}, fmt.Errorf("permit: check consumption: %w", err)
	}
	if used {
		return common.Address{}, ErrPermitReplay
	}
	return signer, nil
}

// ConsumptionKey is the store key marking a permit as used. It depends on
// the signer and nonce but not on the signature bytes.
func ConsumptionKey(airdropID string, signer common.Address, nonce *big.Int) []byte {
	key := append([]byte("permit:"+airdropID+"/"), signer.Bytes()...)
	return append(key, common.BigToHash(nonce).Bytes()...)
}

// Sign produces a permit signature with key, with V in {27, 28} as wallets
// return it.
func Sign(domain Domain, phrases Phrases, airdropID string, p *Permit, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := Digest(domain, phrases, airdropID, p)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("permit: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
