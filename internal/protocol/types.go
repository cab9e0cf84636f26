package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EntitlementFile is the input document consumed by the tree builder.
type EntitlementFile struct {
	Entries []EntitlementEntry `json:"entries"`
}

// EntitlementEntry is one [address, amount] pair. Amount keeps its decimal
// text so that values wider than 64 bits survive decoding.
type EntitlementEntry struct {
	Address string
	Amount  string
}

func (e *EntitlementEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("entry must be an [address, amount] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("entry must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Address); err != nil {
		return fmt.Errorf("address must be a string: %w", err)
	}
	raw := bytes.TrimSpace(pair[1])
	if len(raw) > 0 && raw[0] == '"' {
		return json.Unmarshal(raw, &e.Amount)
	}
	// Bare JSON numbers are kept verbatim; fractions and exponents are
	// rejected later when the amount is parsed as an integer.
	e.Amount = string(raw)
	return nil
}

func (e EntitlementEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Address, e.Amount})
}

// ClaimProof is the per-recipient part of a distribution artifact
type ClaimProof struct {
	Address common.Address `json:"address"`
	Amount  string         `json:"amount"`
	Proof   []common.Hash  `json:"proof"`
}

// DistributionArtifact is published alongside the root and handed to
// recipients (or a claim UI) so they can build their claims.
type DistributionArtifact struct {
	MerkleRoot       common.Hash  `json:"merkleRoot"`
	TotalClaimSupply string       `json:"totalClaimSupply"`
	Claims           []ClaimProof `json:"claims"`
}

// SignedPermit is the wire form of a delegated claim authorization
type SignedPermit struct {
	Recipient   common.Address `json:"recipient"`
	Destination common.Address `json:"destination"`
	Nonce       string         `json:"nonce"`
	Signature   hexutil.Bytes  `json:"signature"`
}

// ClaimRequest is submitted by a recipient, or by a relayer carrying a permit
type ClaimRequest struct {
	Recipient common.Address `json:"recipient"`
	Amount    string         `json:"amount"`
	Proof     []common.Hash  `json:"proof"`
	Permit    *SignedPermit  `json:"permit,omitempty"`
}

// ClaimReceipt describes an authorized payout
type ClaimReceipt struct {
	ID             string         `json:"id"`
	Airdrop        string         `json:"airdrop"`
	Recipient      common.Address `json:"recipient"`
	Destination    common.Address `json:"destination"`
	Amount         string         `json:"amount"`
	CumulativePaid string         `json:"cumulative_paid"`
	Relayed        bool           `json:"relayed"`
	Timestamp      uint64         `json:"timestamp"`
}

// ClaimResponse carries either a receipt or exactly one rejection reason
type ClaimResponse struct {
	Success bool          `json:"success"`
	Receipt *ClaimReceipt `json:"receipt,omitempty"`
	Error   string        `json:"error,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// VerifyRequest checks a proof without touching the ledger
type VerifyRequest struct {
	Recipient common.Address `json:"recipient"`
	Amount    string         `json:"amount"`
	Proof     []common.Hash  `json:"proof"`
}

type VerifyResponse struct {
	Valid bool        `json:"valid"`
	Root  common.Hash `json:"root"`
}

// RoundInfo describes a distribution round as served by the claim service
type RoundInfo struct {
	ID            string      `json:"id"`
	Root          common.Hash `json:"root"`
	ActivatedAt   uint64      `json:"activated_at"`
	Percentages   []uint64    `json:"percentages"`
	TimeDeltas    []uint64    `json:"time_deltas"`
	ReleasableBps uint64      `json:"releasable_bps"`
}

// ClaimRecordResponse is the ledger view of one recipient
type ClaimRecordResponse struct {
	Airdrop          string         `json:"airdrop"`
	Recipient        common.Address `json:"recipient"`
	Found            bool           `json:"found"`
	TotalEntitlement string         `json:"total_entitlement,omitempty"`
	CumulativePaid   string         `json:"cumulative_paid"`
}

// RegistryAllowedResponse answers an allowlist query
type RegistryAllowedResponse struct {
	Airdrop string         `json:"airdrop"`
	Address common.Address `json:"address"`
	Allowed bool           `json:"allowed"`
}

// RegistryExpiredResponse answers an expiration query
type RegistryExpiredResponse struct {
	Airdrop    string `json:"airdrop"`
	Expired    bool   `json:"expired"`
	Expiration uint64 `json:"expiration,omitempty"`
}

// ErrorResponse is returned by handlers that fail before domain logic runs
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
