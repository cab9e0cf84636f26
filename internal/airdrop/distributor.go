// Package airdrop runs the claim flow for published distribution rounds:
// registry checks, proof verification, an optional relayer permit, vesting
// and the ledger update, committed together or not at all.
package airdrop

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/merkle-airdrop/airdrop/internal/ledger"
	"github.com/merkle-airdrop/airdrop/internal/logging"
	"github.com/merkle-airdrop/airdrop/internal/merkle"
	"github.com/merkle-airdrop/airdrop/internal/permit"
	"github.com/merkle-airdrop/airdrop/internal/registry"
	"github.com/merkle-airdrop/airdrop/internal/store"
)

// ClaimRequest is a claim as presented by a recipient or a relayer.
type ClaimRequest struct {
	Recipient common.Address
	Amount    *big.Int // total entitlement committed in the tree
	Proof     []common.Hash
	Permit    *permit.Permit // set when a relayer submits for the recipient
}

// Receipt describes one successful payout.
type Receipt struct {
	ID             string
	Airdrop        string
	Recipient      common.Address
	Destination    common.Address
	Amount         *big.Int // paid by this claim
	CumulativePaid *big.Int
	Relayed        bool
	Time           time.Time
}

type Option func(*Distributor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Distributor) { d.now = now }
}

// Distributor serves claims for any number of rounds sharing one store.
// Claims are applied one at a time.
type Distributor struct {
	mu       sync.Mutex
	store    store.Store
	ledger   *ledger.Ledger
	permits  *permit.Authorizer
	registry registry.Registry // nil: every recipient in the tree may claim
	rounds   map[string]Round
	now      func() time.Time
	logger   *logging.Logger
}

// NewDistributor creates a Distributor. permits checks consumption against s.
// A nil logger discards output.
func NewDistributor(s store.Store, reg registry.Registry, domain permit.Domain, phrases permit.Phrases, logger *logging.Logger, opts ...Option) *Distributor {
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Distributor{
		store:    s,
		ledger:   ledger.New(s),
		permits:  permit.NewAuthorizer(domain, phrases, s),
		registry: reg,
		rounds:   make(map[string]Round),
		now:      time.Now,
		logger:   logger.Named("distributor"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OpenRound makes r claimable. The first opening of an ID is persisted;
// later openings must repeat the same root, activation and schedule.
func (d *Distributor) OpenRound(r Round) error {
	if err := r.validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := d.store.Get(roundKey(r.ID))
	switch {
	case err == nil:
		stored, err := decodeRound(r.ID, data)
		if err != nil {
			return err
		}
		if !stored.sameAs(r) {
			return fmt.Errorf("%w: %s (stored root %s)", ErrRoundConflict, r.ID, stored.Root.Hex())
		}
	case errors.Is(err, store.ErrNotFound):
		data, err := encodeRound(r)
		if err != nil {
			return fmt.Errorf("encode round %s: %w", r.ID, err)
		}
		if err := d.store.Apply([]store.Write{{Key: roundKey(r.ID), Value: data}}); err != nil {
			return fmt.Errorf("persist round %s: %w", r.ID, err)
		}
	default:
		return fmt.Errorf("load round %s: %w", r.ID, err)
	}

	if r.Schedule.Decreasing() {
		d.logger.Warn("vesting schedule releases less over time; check configuration",
			"round", r.ID, "percentages", r.Schedule.Percentages, "time_deltas", r.Schedule.TimeDeltas)
	}
	d.rounds[r.ID] = r
	d.logger.Info("round opened", "round", r.ID, "root", r.Root.Hex(), "activated_at", r.ActivatedAt.Unix())
	return nil
}

// Round returns an opened round.
func (d *Distributor) Round(id string) (Round, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.rounds[id]
	if !ok {
		return Round{}, fmt.Errorf("%w: %s", ErrUnknownRound, id)
	}
	return r, nil
}

// Rounds returns all opened rounds sorted by ID.
func (d *Distributor) Rounds() []Round {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Round, 0, len(d.rounds))
	for _, r := range d.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReleasableBps returns the currently released fraction of round id.
func (d *Distributor) ReleasableBps(id string) (uint64, error) {
	r, err := d.Round(id)
	if err != nil {
		return 0, err
	}
	return r.ReleasableBps(d.now()), nil
}

// Record returns the ledger record of recipient in round id.
func (d *Distributor) Record(id string, recipient common.Address) (*ledger.ClaimRecord, bool, error) {
	if _, err := d.Round(id); err != nil {
		return nil, false, err
	}
	return d.ledger.Record(id, recipient)
}

// Verify reports whether (recipient, amount, proof) is in round id.
func (d *Distributor) Verify(id string, recipient common.Address, amount *big.Int, proof []common.Hash) (bool, error) {
	r, err := d.Round(id)
	if err != nil {
		return false, err
	}
	return merkle.VerifyClaim(recipient, amount, proof, r.Root), nil
}

// Claim pays out whatever part of req's entitlement is released and not yet
// paid. On any error nothing is written.
func (d *Distributor) Claim(ctx context.Context, id string, req ClaimRequest) (*Receipt, error) {
	r, err := d.Round(id)
	if err != nil {
		return nil, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidClaim)
	}
	if err := d.checkRegistry(ctx, id, req.Recipient); err != nil {
		return nil, err
	}
	if !merkle.VerifyClaim(req.Recipient, req.Amount, req.Proof, r.Root) {
		return nil, ErrProofMismatch
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	destination := req.Recipient
	var marker []store.Write
	if req.Permit != nil {
		signer, err := d.permits.Authorize(id, req.Permit, req.Recipient, common.Address{})
		if err != nil {
			return nil, err
		}
		destination = req.Permit.Destination
		marker = append(marker, store.Write{
			Key:   permit.ConsumptionKey(id, signer, req.Permit.Nonce),
			Value: []byte{1},
		})
	}

	now := d.now()
	releasable, err := r.Releasable(req.Amount, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
	if releasable.Sign() == 0 {
		return nil, ErrVestingNotYetReleased
	}

	update, err := d.ledger.Prepare(id, req.Recipient, req.Amount, releasable)
	if err != nil {
		return nil, err
	}
	if err := d.ledger.Commit(update, marker...); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ID:             uuid.New().String(),
		Airdrop:        id,
		Recipient:      req.Recipient,
		Destination:    destination,
		Amount:         update.Amount,
		CumulativePaid: update.Record.CumulativePaid,
		Relayed:        req.Permit != nil,
		Time:           now,
	}
	d.logger.Info("claim paid",
		"id", receipt.ID, "round", id, "recipient", req.Recipient.Hex(), "destination", destination.Hex(),
		"amount", receipt.Amount.String(), "cumulative", receipt.CumulativePaid.String(), "relayed", receipt.Relayed)
	return receipt, nil
}

func (d *Distributor) checkRegistry(ctx context.Context, id string, recipient common.Address) error {
	if d.registry == nil {
		return nil
	}

	expired, err := d.registry.IsExpired(ctx, id)
	if err != nil {
		return registryError(err)
	}
	if expired {
		return ErrExpired
	}

	allowed, err := d.registry.IsAllowed(ctx, id, recipient)
	if err != nil {
		return registryError(err)
	}
	if !allowed {
		return ErrAllowlistDenied
	}
	return nil
}

// An airdrop the registry does not know has an empty allowlist.
func registryError(err error) error {
	if errors.Is(err, registry.ErrUnknownAirdrop) {
		return fmt.Errorf("%w: %v", ErrAllowlistDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
}
