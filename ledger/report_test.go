package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/member-ledger/ledger"
)

func TestParsePeriod(t *testing.T) {
	p, err := ledger.ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodDay, p)

	p, err = ledger.ParsePeriod("month")
	require.NoError(t, err)
	assert.Equal(t, ledger.PeriodMonth, p)

	_, err = ledger.ParsePeriod("week")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSummarize_BucketsByMonth(t *testing.T) {
	jan := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)

	consumes := []ledger.ConsumeRecord{
		{Amount: dec("10.10"), PointsAwarded: 10, CreatedAt: feb},
		{Amount: dec("0.20"), PointsAwarded: 0, CreatedAt: jan},
		{Amount: dec("5.05"), PointsAwarded: 5, CreatedAt: jan},
	}
	recharges := []ledger.RechargeRecord{
		{Amount: dec("100"), CreatedAt: feb},
	}

	totals := ledger.Summarize(ledger.PeriodMonth, consumes, recharges)

	require.Len(t, totals, 2)
	assert.Equal(t, "2026-01", totals[0].Bucket)
	assert.Equal(t, 2, totals[0].ConsumeCount)
	assert.Equal(t, "5.25", totals[0].ConsumeAmount.StringFixed(2))
	assert.Equal(t, int64(5), totals[0].PointsAwarded)
	assert.Equal(t, 0, totals[0].RechargeCount)

	assert.Equal(t, "2026-02", totals[1].Bucket)
	assert.Equal(t, 1, totals[1].RechargeCount)
	assert.Equal(t, "100.00", totals[1].RechargeAmount.StringFixed(2))
}

func TestReporterSummary_RangeIsHalfOpen(t *testing.T) {
	e, mem := newTestEngine(t)
	m := createMember(t, e, "C001", "13800000001")
	ctx := context.Background()

	res, err := e.Consume(ctx, ledger.ConsumeRequest{MemberID: m.ID, Amount: dec("40")})
	require.NoError(t, err)
	at := res.Record.CreatedAt

	r := ledger.NewReporter(mem)

	totals, err := r.Summary(ctx, ledger.PeriodDay, at, at.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 1, totals[0].ConsumeCount)

	totals, err = r.Summary(ctx, ledger.PeriodDay, at.Add(-time.Hour), at)
	require.NoError(t, err)
	assert.Empty(t, totals)

	_, err = r.Summary(ctx, ledger.PeriodDay, at, at)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestTierCounts(t *testing.T) {
	e, mem := newTestEngine(t)
	a := createMember(t, e, "C001", "13800000001")
	createMember(t, e, "C002", "13800000002")
	ctx := context.Background()
	_, err := e.AdjustPoints(ctx, ledger.AdjustPointsRequest{MemberID: a.ID, Delta: 2000})
	require.NoError(t, err)

	counts, err := ledger.NewReporter(mem).TierCounts(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[ledger.Tier]int{
		ledger.TierNormal: 1,
		ledger.TierSilver: 0,
		ledger.TierGold:   1,
	}, counts)
}
