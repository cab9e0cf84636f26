package vesting

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample is the schedule shipped in the deploy configuration. It steps down,
// and is evaluated literally.
var sample = Schedule{
	Percentages: []uint64{10000, 5000, 0},
	TimeDeltas:  []uint64{0, 3600, 7200},
}

func TestReleasableFraction_SampleScheduleStepsLiterally(t *testing.T) {
	tests := []struct {
		elapsed int64
		want    uint64
	}{
		{0, 10000},
		{1, 10000},
		{3599, 10000},
		{3600, 5000},
		{7199, 5000},
		{7200, 0},
		{1 << 40, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReleasableFraction(sample, tt.elapsed), "elapsed=%d", tt.elapsed)
	}

	require.NoError(t, sample.Validate())
	assert.True(t, sample.Decreasing())
}

func TestReleasableFraction_IncreasingSchedule(t *testing.T) {
	s := Schedule{
		Percentages: []uint64{0, 2500, 2500, 10000},
		TimeDeltas:  []uint64{0, 60, 60, 120},
	}
	require.NoError(t, s.Validate())
	assert.False(t, s.Decreasing())

	assert.Equal(t, uint64(0), ReleasableFraction(s, 59))
	assert.Equal(t, uint64(2500), ReleasableFraction(s, 60))
	assert.Equal(t, uint64(2500), ReleasableFraction(s, 119))
	assert.Equal(t, uint64(10000), ReleasableFraction(s, 120))
}

func TestReleasableFraction_BeforeActivation(t *testing.T) {
	assert.Equal(t, uint64(0), ReleasableFraction(sample, -1))
	assert.Equal(t, uint64(0), ReleasableFraction(Immediate(), -3600))
	assert.Equal(t, uint64(BasisPoints), ReleasableFraction(Immediate(), 0))
}

func TestReleasableFraction_MalformedScheduleReleasesNothing(t *testing.T) {
	assert.Equal(t, uint64(0), ReleasableFraction(Schedule{}, 100))
	assert.Equal(t, uint64(0), ReleasableFraction(Schedule{Percentages: []uint64{10000}}, 100))
}

func TestReleasableAmount_FloorRounding(t *testing.T) {
	s := Schedule{
		Percentages: []uint64{3333, 10000},
		TimeDeltas:  []uint64{0, 100},
	}

	// 10 * 3333 / 10000 = 3.333 -> 3
	got, err := ReleasableAmount(big.NewInt(10), s, 0)
	require.NoError(t, err)
	assert.Equal(t, "3", got.String())

	// 1 * 3333 / 10000 = 0.3333 -> 0
	got, err = ReleasableAmount(big.NewInt(1), s, 50)
	require.NoError(t, err)
	assert.Equal(t, "0", got.String())

	// the final step releases exactly the total
	got, err = ReleasableAmount(big.NewInt(10), s, 100)
	require.NoError(t, err)
	assert.Equal(t, "10", got.String())
}

func TestReleasableAmount_ConservesSupplyAcrossRecipients(t *testing.T) {
	s := Schedule{
		Percentages: []uint64{1, 4999, 10000},
		TimeDeltas:  []uint64{0, 10, 20},
	}
	amounts := []int64{1, 3, 7, 9999, 10001, 123456789}

	for _, elapsed := range []int64{0, 10, 20} {
		released := new(big.Int)
		total := new(big.Int)
		for _, a := range amounts {
			r, err := ReleasableAmount(big.NewInt(a), s, elapsed)
			require.NoError(t, err)
			assert.LessOrEqual(t, r.Cmp(big.NewInt(a)), 0)
			released.Add(released, r)
			total.Add(total, big.NewInt(a))
		}
		assert.LessOrEqual(t, released.Cmp(total), 0, "elapsed=%d", elapsed)
	}
}

func TestReleasableAmount_FullWidthAmounts(t *testing.T) {
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	half, err := ReleasableAmount(maxUint256, sample, 3600)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Rsh(maxUint256, 1).String(), half.String())

	all, err := ReleasableAmount(maxUint256, sample, 0)
	require.NoError(t, err)
	assert.Equal(t, maxUint256.String(), all.String())

	_, err = ReleasableAmount(new(big.Int).Lsh(big.NewInt(1), 256), sample, 0)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = ReleasableAmount(big.NewInt(-1), sample, 0)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr error
	}{
		{"empty", Schedule{}, ErrEmptySchedule},
		{"length mismatch", Schedule{Percentages: []uint64{10000}, TimeDeltas: []uint64{0, 1}}, ErrLengthMismatch},
		{"first delta", Schedule{Percentages: []uint64{10000}, TimeDeltas: []uint64{5}}, ErrFirstDeltaNotZero},
		{"decreasing deltas", Schedule{Percentages: []uint64{0, 5000, 10000}, TimeDeltas: []uint64{0, 10, 5}}, ErrDeltasDecreasing},
		{"over 100%", Schedule{Percentages: []uint64{10001}, TimeDeltas: []uint64{0}}, ErrPercentageTooLarge},
		{"immediate", Immediate(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
