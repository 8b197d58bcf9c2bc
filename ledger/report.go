/*
report.go - Read-only reporting over the ledgers

PURPOSE:
  Aggregates consume and recharge rows by day, month or year, and counts
  members per tier. Nothing here mutates state.

PRECISION:
  Rows are loaded and summed in Go with decimal.Decimal. Summing in SQL
  would go through SQLite REAL and lose cents.

SEE ALSO:
  - store.go: ConsumeRecordsBetween / RechargeRecordsBetween
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Period is a reporting bucket size.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Layout returns the time layout used as the bucket key.
func (p Period) Layout() string {
	switch p {
	case PeriodMonth:
		return "2006-01"
	case PeriodYear:
		return "2006"
	default:
		return "2006-01-02"
	}
}

// ParsePeriod accepts "day", "month" or "year"; empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth, PeriodYear:
		return Period(s), nil
	}
	return "", &ValidationError{Field: "period", Reason: "must be day, month or year"}
}

// Totals is one bucket of the summary.
type Totals struct {
	Bucket         string
	ConsumeCount   int
	ConsumeAmount  decimal.Decimal
	PointsAwarded  int64
	RechargeCount  int
	RechargeAmount decimal.Decimal
}

// Reporter computes summaries from a Store.
type Reporter struct {
	Store Store
}

func NewReporter(store Store) *Reporter {
	return &Reporter{Store: store}
}

// Summary buckets all ledger rows with from <= created_at < to.
func (r *Reporter) Summary(ctx context.Context, period Period, from, to time.Time) ([]Totals, error) {
	if !to.After(from) {
		return nil, &ValidationError{Field: "to", Reason: "must be after from"}
	}

	consumes, err := r.Store.ConsumeRecordsBetween(ctx, from, to)
	if err != nil {
		return nil, asSystem("load consume records", err)
	}
	recharges, err := r.Store.RechargeRecordsBetween(ctx, from, to)
	if err != nil {
		return nil, asSystem("load recharge records", err)
	}
	return Summarize(period, consumes, recharges), nil
}

// TierCounts returns the number of members per tier. Every tier is present.
func (r *Reporter) TierCounts(ctx context.Context) (map[Tier]int, error) {
	members, err := r.Store.ListMembers(ctx, OrderByCreatedDesc)
	if err != nil {
		return nil, asSystem("list members", err)
	}

	counts := make(map[Tier]int, len(Tiers))
	for _, t := range Tiers {
		counts[t] = 0
	}
	for _, m := range members {
		counts[m.Tier]++
	}
	return counts, nil
}

// Summarize groups rows into period buckets, oldest bucket first.
func Summarize(period Period, consumes []ConsumeRecord, recharges []RechargeRecord) []Totals {
	layout := period.Layout()
	buckets := make(map[string]*Totals)

	get := func(t time.Time) *Totals {
		key := t.UTC().Format(layout)
		b, ok := buckets[key]
		if !ok {
			b = &Totals{Bucket: key, ConsumeAmount: decimal.Zero, RechargeAmount: decimal.Zero}
			buckets[key] = b
		}
		return b
	}

	for _, c := range consumes {
		b := get(c.CreatedAt)
		b.ConsumeCount++
		b.ConsumeAmount = b.ConsumeAmount.Add(c.Amount)
		b.PointsAwarded += c.PointsAwarded
	}
	for _, rc := range recharges {
		b := get(rc.CreatedAt)
		b.RechargeCount++
		b.RechargeAmount = b.RechargeAmount.Add(rc.Amount)
	}

	result := make([]Totals, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Bucket < result[j].Bucket })
	return result
}
