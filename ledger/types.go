/*
Package ledger provides the membership ledger engine for a single shop.

PURPOSE:
  Tracks members, their stored-value balance, loyalty points and tier, and
  records every recharge (top-up) and consume (spend) event that mutates
  those fields. The engine is pure business logic: it knows nothing about
  HTTP, sessions or operators. Callers hand it a member id and an amount.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: the mutable account (balance, points, tier)
  - ConsumeRecord / RechargeRecord: immutable ledger rows
  - Tier: loyalty level derived from points
  - Settings: point rate and tier thresholds

CONSISTENCY RULES:
  1. Money is decimal.Decimal, never float64
  2. Points are only earned through consume, never through recharge
  3. Tier is stored on the member but is always recomputed from points
     whenever points change (see tier.go)
  4. Ledger rows are append-only; deleting a member cascades to them

USAGE:
  engine := ledger.NewEngine(store, store, log)
  res, err := engine.Consume(ctx, ledger.ConsumeRequest{
      MemberID: 7,
      Amount:   decimal.RequireFromString("105"),
      PayType:  ledger.PayCash,
  })
  // res.PointsAwarded == 10 when point_rate is 10

SEE ALSO:
  - engine.go: Consume, Recharge, AdjustPoints, CreateMember, DeleteMember
  - tier.go: ComputeTier and PointsFor
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER
// =============================================================================

// Tier is a member's loyalty level.
type Tier string

const (
	TierNormal Tier = "Normal"
	TierSilver Tier = "Silver"
	TierGold   Tier = "Gold"
)

// Tiers lists every tier from lowest to highest.
var Tiers = []Tier{TierNormal, TierSilver, TierGold}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierNormal, TierSilver, TierGold:
		return true
	}
	return false
}

// =============================================================================
// MEMBER
// =============================================================================

// Member is a shop member account.
// CardNo and Phone are unique across all members and never change.
type Member struct {
	ID        int64
	CardNo    string
	Name      string
	Phone     string
	Tier      Tier
	Balance   decimal.Decimal
	Points    int64
	CreatedAt time.Time
}

// NewMember is the input to CreateMember.
type NewMember struct {
	CardNo string
	Name   string
	Phone  string
}

// MemberOrder selects the ordering of member listings.
type MemberOrder string

const (
	OrderByCreatedDesc MemberOrder = "created"
	OrderByPointsDesc  MemberOrder = "points"
)

// =============================================================================
// LEDGER RECORDS
// =============================================================================

// PayType tags how a consume or recharge was paid. Free-form; these are the
// values the point-of-sale screens offer.
type PayType string

const (
	PayCash    PayType = "cash"
	PayCard    PayType = "card"
	PayWechat  PayType = "wechat"
	PayAlipay  PayType = "alipay"
	PayBalance PayType = "balance"
)

// ConsumeRecord is an immutable spend event.
type ConsumeRecord struct {
	ID            int64
	MemberID      int64
	Amount        decimal.Decimal
	PayType       PayType
	Remark        string
	PointsAwarded int64
	CreatedAt     time.Time
}

// RechargeRecord is an immutable top-up event. It never awards points.
type RechargeRecord struct {
	ID        int64
	MemberID  int64
	Amount    decimal.Decimal
	PayType   PayType
	Remark    string
	CreatedAt time.Time
}

// =============================================================================
// REQUESTS / RESULTS
// =============================================================================

type ConsumeRequest struct {
	MemberID int64
	Amount   decimal.Decimal
	PayType  PayType
	Remark   string
}

// ConsumeResult carries the points earned so the cashier can show
// "+N points", plus the member as it is after the operation.
type ConsumeResult struct {
	PointsAwarded int64
	Record        ConsumeRecord
	Member        Member
}

type RechargeRequest struct {
	MemberID int64
	Amount   decimal.Decimal
	PayType  PayType
	Remark   string
}

type RechargeResult struct {
	Record RechargeRecord
	Member Member
}

// AdjustPointsRequest is an administrative correction. Delta may be negative.
type AdjustPointsRequest struct {
	MemberID int64
	Delta    int64
	Remark   string
}

// History is a member's ledger, newest first.
type History struct {
	Consumes  []ConsumeRecord
	Recharges []RechargeRecord
}
