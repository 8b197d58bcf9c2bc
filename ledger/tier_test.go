package ledger

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTier_Boundaries(t *testing.T) {
	tests := []struct {
		points int64
		want   Tier
	}{
		{-5, TierNormal},
		{0, TierNormal},
		{99, TierNormal},
		{100, TierSilver},
		{999, TierSilver},
		{1000, TierGold},
		{50000, TierGold},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeTier(tt.points, 100, 1000), "points=%d", tt.points)
	}
}

func TestComputeTier_Monotonic(t *testing.T) {
	rank := map[Tier]int{TierNormal: 0, TierSilver: 1, TierGold: 2}

	prev := ComputeTier(0, 100, 1000)
	for p := int64(1); p <= 1500; p++ {
		cur := ComputeTier(p, 100, 1000)
		assert.GreaterOrEqual(t, rank[cur], rank[prev], "tier dropped at %d points", p)
		prev = cur
	}
}

func TestComputeTier_UsesThresholdsPassedIn(t *testing.T) {
	// Same points, different thresholds: nothing is cached.
	assert.Equal(t, TierSilver, ComputeTier(150, 100, 1000))
	assert.Equal(t, TierNormal, ComputeTier(150, 200, 2000))
	assert.Equal(t, TierGold, ComputeTier(150, 50, 150))
}

func TestPointsFor(t *testing.T) {
	tests := []struct {
		amount string
		rate   int64
		want   int64
	}{
		{"105", 10, 10},
		{"99", 10, 9},
		{"100", 100, 1},
		{"99.99", 100, 0},
		{"105.50", 1, 105},
		{"0.5", 1, 0},
		{"0", 1, 0},
		{"-20", 1, 0},
		{"50", 0, 50}, // rate below 1 treated as 1
	}

	for _, tt := range tests {
		got, err := PointsFor(decimal.RequireFromString(tt.amount), tt.rate)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "amount=%s rate=%d", tt.amount, tt.rate)
	}
}

func TestPointsFor_RejectsAwardBeyondInt64(t *testing.T) {
	tests := []struct {
		amount string
		rate   int64
	}{
		{"9223372036854775808", 1},
		{"18446744073709551717", 1},
		{"184467440737095517170", 10},
	}

	for _, tt := range tests {
		got, err := PointsFor(decimal.RequireFromString(tt.amount), tt.rate)

		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "amount=%s", tt.amount)
		assert.Equal(t, "amount", ve.Field)
		assert.Zero(t, got)
	}
}

func TestPointsFor_MaxInt64Award(t *testing.T) {
	// Largest award that still fits, and a large amount brought in range by the rate.
	got, err := PointsFor(decimal.RequireFromString("9223372036854775807"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	got, err = PointsFor(decimal.RequireFromString("18446744073709551717"), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1844674407370955171), got)
}

func TestAddPoints(t *testing.T) {
	tests := []struct {
		name         string
		total, delta int64
		want         int64
		ok           bool
	}{
		{"plain", 100, 50, 150, true},
		{"negative result", 10, -30, -20, true},
		{"up to max", math.MaxInt64 - 1, 1, math.MaxInt64, true},
		{"past max", math.MaxInt64, 1, 0, false},
		{"past min", math.MinInt64, -1, 0, false},
		{"large positive pair", math.MaxInt64 / 2, math.MaxInt64/2 + 2, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AddPoints(tt.total, tt.delta)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	tests := []struct {
		name  string
		s     Settings
		field string
	}{
		{"zero rate", Settings{PointRate: 0, SilverThreshold: 100, GoldThreshold: 1000}, "point_rate"},
		{"negative silver", Settings{PointRate: 1, SilverThreshold: -1, GoldThreshold: 1000}, "tier_silver_threshold"},
		{"gold equals silver", Settings{PointRate: 1, SilverThreshold: 500, GoldThreshold: 500}, "tier_gold_threshold"},
		{"gold below silver", Settings{PointRate: 1, SilverThreshold: 500, GoldThreshold: 100}, "tier_gold_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			var ve *ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Equal(t, tt.field, ve.Field)
			}
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAsSystem_KeepsEngineErrors(t *testing.T) {
	nf := memberNotFound(7)
	assert.Same(t, nf, asSystem("op", nf))

	wrapped := asSystem("load", assert.AnError)
	var se *SystemError
	if assert.ErrorAs(t, wrapped, &se) {
		assert.Equal(t, "load", se.Op)
		assert.Equal(t, assert.AnError, se.Cause())
	}
	assert.ErrorIs(t, wrapped, ErrSystem)
	assert.NotContains(t, wrapped.Error(), assert.AnError.Error())
	assert.Nil(t, asSystem("op", nil))
}
