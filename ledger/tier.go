/*
tier.go - Points and tier arithmetic

PURPOSE:
  The two pure functions the engine uses on every points-affecting
  operation. They never touch the store, so they are trivially testable.

RULES:
  PointsFor:   floor(amount / point_rate). Rate below 1 is treated as 1.
               Awards beyond int64 are a ValidationError, never wrapped.
  AddPoints:   overflow-checked total + delta.
  ComputeTier: Gold if points >= gold, else Silver if points >= silver,
               else Normal. Thresholds are passed in fresh on each call;
               the engine never caches them.

EXAMPLES (silver=100, gold=1000):
  99 -> Normal, 100 -> Silver, 999 -> Silver, 1000 -> Gold

SEE ALSO:
  - engine.go: Calls these inside the write transaction
  - settings.go: Where thresholds come from
*/
package ledger

import (
	"math"

	"github.com/shopspring/decimal"
)

// ComputeTier derives a tier from a point total.
// Threshold ordering is not checked here; UpdateSettings enforces it.
func ComputeTier(points, silverThreshold, goldThreshold int64) Tier {
	if points >= goldThreshold {
		return TierGold
	}
	if points >= silverThreshold {
		return TierSilver
	}
	return TierNormal
}

// maxPoints bounds a single award so the stored total stays an int64.
var maxPoints = decimal.NewFromInt(math.MaxInt64)

// PointsFor returns the points earned by spending amount.
// Non-positive amounts earn nothing. An amount whose award does not fit in
// an int64 is rejected.
func PointsFor(amount decimal.Decimal, pointRate int64) (int64, error) {
	if !amount.IsPositive() {
		return 0, nil
	}
	if pointRate < 1 {
		pointRate = 1
	}
	points := amount.Div(decimal.NewFromInt(pointRate)).Floor()
	if points.GreaterThan(maxPoints) {
		return 0, &ValidationError{Field: "amount", Reason: "amount is too large"}
	}
	return points.IntPart(), nil
}

// AddPoints returns total + delta, or false when the sum leaves the int64 range.
func AddPoints(total, delta int64) (int64, bool) {
	sum := total + delta
	if (delta > 0 && sum < total) || (delta < 0 && sum > total) {
		return 0, false
	}
	return sum, true
}
