package merkle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/merkle-airdrop/airdrop/internal/protocol"
)

// Entitlement is the amount a recipient may claim from a distribution round.
type Entitlement struct {
	Recipient common.Address
	Amount    *big.Int
}

// EntitlementSet is a validated entitlement list together with its total.
type EntitlementSet struct {
	Entries     []Entitlement
	TotalSupply *big.Int
}

// ValidateEntitlements rejects duplicated recipients and non-positive or
// over-wide amounts, and sums the committed supply. The input is not modified.
func ValidateEntitlements(entries []Entitlement) (*EntitlementSet, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyEntitlements
	}

	seen := make(map[common.Address]struct{}, len(entries))
	total := new(big.Int)
	validated := make([]Entitlement, len(entries))

	for i, e := range entries {
		if _, dup := seen[e.Recipient]; dup {
			return nil, &ValidationError{Index: i, Field: "address", Value: e.Recipient.Hex(), Err: ErrDuplicateEntitlement}
		}
		if e.Amount == nil || e.Amount.Sign() <= 0 {
			return nil, &ValidationError{Index: i, Field: "amount", Value: amountString(e.Amount), Err: ErrNonPositiveAmount}
		}
		if e.Amount.BitLen() > 256 {
			return nil, &ValidationError{Index: i, Field: "amount", Value: e.Amount.String(), Err: ErrAmountOverflow}
		}
		seen[e.Recipient] = struct{}{}
		total.Add(total, e.Amount)
		validated[i] = Entitlement{Recipient: e.Recipient, Amount: new(big.Int).Set(e.Amount)}
	}

	return &EntitlementSet{Entries: validated, TotalSupply: total}, nil
}

// ParseEntitlements converts the textual entries of an entitlement file.
// Validation of duplicates and amount ranges is left to ValidateEntitlements.
func ParseEntitlements(file *protocol.EntitlementFile) ([]Entitlement, error) {
	if file == nil || len(file.Entries) == 0 {
		return nil, ErrEmptyEntitlements
	}

	entries := make([]Entitlement, len(file.Entries))
	for i, raw := range file.Entries {
		addr := strings.TrimSpace(raw.Address)
		if !common.IsHexAddress(addr) {
			return nil, &ValidationError{Index: i, Field: "address", Value: raw.Address, Err: ErrMalformedAddress}
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(raw.Amount), 10)
		if !ok {
			return nil, &ValidationError{Index: i, Field: "amount", Value: raw.Amount, Err: ErrMalformedAmount}
		}
		entries[i] = Entitlement{Recipient: common.HexToAddress(addr), Amount: amount}
	}
	return entries, nil
}

// ReadEntitlementFile decodes, parses and validates an entitlement document.
func ReadEntitlementFile(r io.Reader) (*EntitlementSet, error) {
	var file protocol.EntitlementFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode entitlement file: %w", err)
	}
	entries, err := ParseEntitlements(&file)
	if err != nil {
		return nil, err
	}
	return ValidateEntitlements(entries)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
