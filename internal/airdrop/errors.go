package airdrop

import (
	"errors"

	"github.com/merkle-airdrop/airdrop/internal/ledger"
	"github.com/merkle-airdrop/airdrop/internal/permit"
	"github.com/merkle-airdrop/airdrop/internal/registry"
)

var (
	ErrUnknownRound          = errors.New("airdrop: unknown round")
	ErrRoundConflict         = errors.New("airdrop: round already opened with different parameters")
	ErrInvalidRoundID        = errors.New("airdrop: invalid round id")
	ErrInvalidClaim          = errors.New("airdrop: invalid claim")
	ErrProofMismatch         = errors.New("airdrop: proof does not match root")
	ErrVestingNotYetReleased = errors.New("airdrop: nothing released yet")
	ErrAllowlistDenied       = errors.New("airdrop: recipient not on allowlist")
	ErrExpired               = errors.New("airdrop: round expired")
	ErrRegistryUnavailable   = errors.New("airdrop: registry unavailable")
)

// Reason codes returned to claimants, one per rejection kind.
const (
	ReasonUnknownRound       = registry.ReasonUnknownAirdrop
	ReasonInvalidClaim       = "invalid_claim"
	ReasonProofMismatch      = "proof_mismatch"
	ReasonInvalidSignature   = "invalid_signature"
	ReasonPermitInvalid      = "permit_invalid"
	ReasonPermitReplay       = "permit_replay"
	ReasonVestingNotReleased = "vesting_not_released"
	ReasonNothingToClaim     = "nothing_to_claim"
	ReasonUnknownRecipient   = "unknown_recipient"
	ReasonAllowlistDenied    = "allowlist_denied"
	ReasonExpired            = "expired"
	ReasonRegistryError      = "registry_error"
	ReasonInternal           = "internal"
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrUnknownRound, ReasonUnknownRound},
	{ErrInvalidClaim, ReasonInvalidClaim},
	{ErrProofMismatch, ReasonProofMismatch},
	// ErrInvalidSignature wraps ErrInvalidPermit, so it goes first
	{permit.ErrInvalidSignature, ReasonInvalidSignature},
	{permit.ErrInvalidPermit, ReasonPermitInvalid},
	{permit.ErrPermitReplay, ReasonPermitReplay},
	{ErrVestingNotYetReleased, ReasonVestingNotReleased},
	{ledger.ErrNothingToClaim, ReasonNothingToClaim},
	{ledger.ErrUnknownRecipient, ReasonUnknownRecipient},
	{ErrAllowlistDenied, ReasonAllowlistDenied},
	{ErrExpired, ReasonExpired},
	{ErrRegistryUnavailable, ReasonRegistryError},
}

// Reason maps a Claim error to its reason code.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}
