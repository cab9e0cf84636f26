package airdrop

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/merkle-airdrop/airdrop/internal/merkle"
	"github.com/merkle-airdrop/airdrop/internal/protocol"
	"github.com/merkle-airdrop/airdrop/internal/vesting"
)

// Round IDs appear inside store keys, which use '/' as a separator.
var roundIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Round is one published distribution: an immutable root plus the schedule
// on which entitlements under it are released.
type Round struct {
	ID          string
	Root        common.Hash
	ActivatedAt time.Time
	Schedule    vesting.Schedule
}

// RoundFromArtifact checks every proof in a and returns the round that
// commits to its root.
func RoundFromArtifact(id string, a *protocol.DistributionArtifact, activatedAt time.Time, s vesting.Schedule) (Round, error) {
	if err := merkle.VerifyArtifact(a); err != nil {
		return Round{}, fmt.Errorf("round %s: %w", id, err)
	}
	return Round{ID: id, Root: a.MerkleRoot, ActivatedAt: activatedAt, Schedule: s}, nil
}

func (r Round) validate() error {
	if !roundIDPattern.MatchString(r.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidRoundID, r.ID)
	}
	if r.Root == (common.Hash{}) {
		return fmt.Errorf("round %s: zero root", r.ID)
	}
	if err := r.Schedule.Validate(); err != nil {
		return fmt.Errorf("round %s: %w", r.ID, err)
	}
	return nil
}

// elapsed is whole seconds since activation, negative before it.
func (r Round) elapsed(now time.Time) int64 {
	return now.Unix() - r.ActivatedAt.Unix()
}

// Releasable returns how much of total is released at now.
func (r Round) Releasable(total *big.Int, now time.Time) (*big.Int, error) {
	return vesting.ReleasableAmount(total, r.Schedule, r.elapsed(now))
}

// ReleasableBps returns the released fraction at now in basis points.
func (r Round) ReleasableBps(now time.Time) uint64 {
	return vesting.ReleasableFraction(r.Schedule, r.elapsed(now))
}

type storedRound struct {
	Root        common.Hash `json:"root"`
	ActivatedAt int64       `json:"activated_at"`
	Percentages []uint64    `json:"percentages"`
	TimeDeltas  []uint64    `json:"time_deltas"`
}

func roundKey(id string) []byte {
	return []byte("round:" + id)
}

func encodeRound(r Round) ([]byte, error) {
	return json.Marshal(storedRound{
		Root:        r.Root,
		ActivatedAt: r.ActivatedAt.Unix(),
		Percentages: r.Schedule.Percentages,
		TimeDeltas:  r.Schedule.TimeDeltas,
	})
}

func decodeRound(id string, data []byte) (Round, error) {
	var s storedRound
	if err := json.Unmarshal(data, &s); err != nil {
		return Round{}, fmt.Errorf("decode round %s: %w", id, err)
	}
	return Round{
		ID:          id,
		Root:        s.Root,
		ActivatedAt: time.Unix(s.ActivatedAt, 0),
		Schedule:    vesting.Schedule{Percentages: s.Percentages, TimeDeltas: s.TimeDeltas},
	}, nil
}

func (r Round) sameAs(o Round) bool {
	return r.Root == o.Root &&
		r.ActivatedAt.Unix() == o.ActivatedAt.Unix() &&
		slices.Equal(r.Schedule.Percentages, o.Schedule.Percentages) &&
		slices.Equal(r.Schedule.TimeDeltas, o.Schedule.TimeDeltas)
}
