/*
store.go - Persistence interfaces for members and ledger rows

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  owns every rule; the store only reads and writes rows.

KEY INTERFACES:
  Store: read paths plus WithTx
  Tx:    the write primitives, only reachable inside WithTx

ATOMICITY:
  Every engine mutation runs inside a single WithTx call. If fn returns
  an error nothing is committed, so a ledger row can never exist without
  its matching balance or points update.

CONVENTIONS:
  - Lookups return (nil, nil) when no row matches
  - AddPoints is an atomic, overflow-checked increment
  - Settings are readable through Tx so ledger operations see the same
    thresholds they write tiers with
  - Ledger rows are append-only: there is no update or delete for them
    except the cascade from DeleteMember

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - ledger/store/memory.go: in-memory for tests

SEE ALSO:
  - engine.go: Uses Tx inside WithTx
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Read side plus transaction entry point
// =============================================================================

type Store interface {
	// Member returns the member with id, or nil.
	Member(ctx context.Context, id int64) (*Member, error)

	// FindByPhoneOrCard returns the member whose phone or card number equals
	// keyword exactly, or nil.
	FindByPhoneOrCard(ctx context.Context, keyword string) (*Member, error)

	// ListMembers returns all members in the given order.
	ListMembers(ctx context.Context, order MemberOrder) ([]Member, error)

	// ConsumeRecords returns a member's consume rows, newest first.
	ConsumeRecords(ctx context.Context, memberID int64) ([]ConsumeRecord, error)

	// RechargeRecords returns a member's recharge rows, newest first.
	RechargeRecords(ctx context.Context, memberID int64) ([]RechargeRecord, error)

	// ConsumeRecordsBetween returns all consume rows with from <= created_at < to.
	ConsumeRecordsBetween(ctx context.Context, from, to time.Time) ([]ConsumeRecord, error)

	// RechargeRecordsBetween returns all recharge rows with from <= created_at < to.
	RechargeRecordsBetween(ctx context.Context, from, to time.Time) ([]RechargeRecord, error)

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// TX - Write primitives scoped to one transaction
// =============================================================================

type Tx interface {
	// Settings reads the settings row inside the transaction. Defaults apply
	// when nothing has been stored.
	Settings(ctx context.Context) (Settings, error)

	Member(ctx context.Context, id int64) (*Member, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	CardExists(ctx context.Context, cardNo string) (bool, error)

	// InsertMember stores m and sets m.ID.
	InsertMember(ctx context.Context, m *Member) error

	// DeleteMember removes the member and its ledger rows. Missing ids are
	// not an error.
	DeleteMember(ctx context.Context, id int64) error

	// AddPoints increments points atomically and returns the new total.
	// A total outside the int64 range is a ValidationError and nothing is
	// written.
	AddPoints(ctx context.Context, memberID, delta int64) (int64, error)

	// AddBalance increments the balance and returns the new balance.
	AddBalance(ctx context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error)

	SetTier(ctx context.Context, memberID int64, tier Tier) error

	// InsertConsume appends a consume row and sets r.ID.
	InsertConsume(ctx context.Context, r *ConsumeRecord) error

	// InsertRecharge appends a recharge row and sets r.ID.
	InsertRecharge(ctx context.Context, r *RechargeRecord) error
}
