// Package vesting maps the time elapsed since a round's activation to the
// share of each entitlement that may be claimed.
package vesting

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/holiman/uint256"
)

// BasisPoints is 100% expressed in basis points.
const BasisPoints = 10000

var (
	ErrEmptySchedule      = errors.New("vesting: empty schedule")
	ErrLengthMismatch     = errors.New("vesting: percentages and time deltas differ in length")
	ErrFirstDeltaNotZero  = errors.New("vesting: first time delta must be zero")
	ErrDeltasDecreasing   = errors.New("vesting: time deltas must be non-decreasing")
	ErrPercentageTooLarge = errors.New("vesting: percentage exceeds 10000 basis points")
	ErrAmountOutOfRange   = errors.New("vesting: amount must fit in a uint256")
)

// Schedule is a step function: from TimeDeltas[i] seconds after activation
// the cumulative releasable share is Percentages[i] basis points.
type Schedule struct {
	Percentages []uint64 `json:"percentages"`
	TimeDeltas  []uint64 `json:"time_deltas"`
}

// Immediate releases the whole entitlement at activation.
func Immediate() Schedule {
	return Schedule{Percentages: []uint64{BasisPoints}, TimeDeltas: []uint64{0}}
}

// Validate checks the structural invariants of the schedule. Percentages
// are evaluated exactly as configured, so a decreasing sequence is accepted
// here; see Decreasing.
func (s Schedule) Validate() error {
	if len(s.Percentages) == 0 && len(s.TimeDeltas) == 0 {
		return ErrEmptySchedule
	}
	if len(s.Percentages) != len(s.TimeDeltas) {
		return fmt.Errorf("%w: %d percentages, %d time deltas", ErrLengthMismatch, len(s.Percentages), len(s.TimeDeltas))
	}
	if s.TimeDeltas[0] != 0 {
		return ErrFirstDeltaNotZero
	}
	for i := range s.TimeDeltas {
		if i > 0 && s.TimeDeltas[i] < s.TimeDeltas[i-1] {
			return fmt.Errorf("%w: index %d", ErrDeltasDecreasing, i)
		}
		if s.Percentages[i] > BasisPoints {
			return fmt.Errorf("%w: index %d is %d", ErrPercentageTooLarge, i, s.Percentages[i])
		}
	}
	return nil
}

// Decreasing reports whether any step lowers the releasable share. Such a
// schedule releases less over time, which is usually a configuration mistake.
func (s Schedule) Decreasing() bool {
	for i := 1; i < len(s.Percentages); i++ {
		if s.Percentages[i] < s.Percentages[i-1] {
			return true
		}
	}
	return false
}

// ReleasableFraction returns the percentage of the greatest step whose time
// delta is at or before elapsed, or 0 if elapsed precedes every step.
func ReleasableFraction(s Schedule, elapsed int64) uint64 {
	if elapsed < 0 || len(s.TimeDeltas) == 0 || len(s.Percentages) != len(s.TimeDeltas) {
		return 0
	}
	// first step strictly after elapsed
	i := sort.Search(len(s.TimeDeltas), func(i int) bool {
		return s.TimeDeltas[i] > uint64(elapsed)
	})
	if i == 0 {
		return 0
	}
	if p := s.Percentages[i-1]; p < BasisPoints {
		return p
	}
	return BasisPoints
}

// ReleasableAmount returns floor(total * fraction / 10000). Rounding down
// means the sum released across recipients never exceeds the committed
// total; the remainder of a partial step is released by a later step.
func ReleasableAmount(total *big.Int, s Schedule, elapsed int64) (*big.Int, error) {
	if total == nil || total.Sign() < 0 {
		return nil, ErrAmountOutOfRange
	}
	t, overflow := uint256.FromBig(total)
	if overflow {
		return nil, ErrAmountOutOfRange
	}

	bps := ReleasableFraction(s, elapsed)
	switch bps {
	case 0:
		return new(big.Int), nil
	case BasisPoints:
		return new(big.Int).Set(total), nil
	}

	// MulDivOverflow keeps the 512-bit product, so total*bps never wraps.
	released, _ := new(uint256.Int).MulDivOverflow(t, uint256.NewInt(bps), uint256.NewInt(BasisPoints))
	return released.ToBig(), nil
}
