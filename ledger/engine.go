/*
engine.go - Balance / points / tier consistency engine

PURPOSE:
  Applies monetary events to members. Each operation validates its input,
  then performs the ledger insert and the member update inside one store
  transaction, so concurrent cashier terminals cannot produce a ledger row
  without its effect or a tier computed from a stale point total.

OPERATIONS:
  CreateMember   - validate, check phone then card uniqueness, insert
  DeleteMember   - hard delete, cascades to ledger rows, idempotent
  Consume        - ledger row + points += floor(amount/rate) + tier
  Recharge       - ledger row + balance += amount (no points, no tier)
  AdjustPoints   - points += delta + tier, no ledger row
  UpdateSettings - validate and persist point rate / thresholds

AMOUNTS:
  Money amounts must be positive with at most two decimal places. A
  consume whose award, or any change whose point total, would leave the
  int64 range is a ValidationError and writes nothing.

MISSING MEMBERS:
  Consume, Recharge and AdjustPoints return NotFoundError for an unknown
  member id and roll back, rather than silently touching zero rows.

SEE ALSO:
  - tier.go: ComputeTier and PointsFor
  - store.go: Store / Tx interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PhoneLength is the exact number of digits a member phone must have.
const PhoneLength = 11

// Engine applies ledger operations against a Store.
type Engine struct {
	Store    Store
	Settings SettingsStore
	Log      *zap.Logger

	// Now returns the timestamp for new rows. Tests may replace it.
	Now func() time.Time
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(store Store, settings SettingsStore, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Store:    store,
		Settings: settings,
		Log:      log,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// MEMBERS
// =============================================================================

// CreateMember registers a new member with tier Normal, zero balance and
// zero points.
func (e *Engine) CreateMember(ctx context.Context, in NewMember) (*Member, error) {
	in.CardNo = strings.TrimSpace(in.CardNo)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)

	if err := validateNewMember(in); err != nil {
		return nil, err
	}

	m := &Member{
		CardNo:    in.CardNo,
		Name:      in.Name,
		Phone:     in.Phone,
		Tier:      TierNormal,
		Points:    0,
		CreatedAt: e.Now(),
	}

	err := e.Store.WithTx(ctx, func(tx Tx) error {
		// Two separate queries so the caller learns which field collided.
		exists, err := tx.PhoneExists(ctx, in.Phone)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Field: "phone", Value: in.Phone}
		}

		exists, err = tx.CardExists(ctx, in.CardNo)
		if err != nil {
			return err
		}
		if exists {
			return &ConflictError{Field: "card_no", Value: in.CardNo}
		}

		return tx.InsertMember(ctx, m)
	})
	if err != nil {
		return nil, e.fail("create member", err)
	}

	e.Log.Info("member created",
		zap.Int64("member_id", m.ID),
		zap.String("card_no", m.CardNo))
	return m, nil
}

func validateNewMember(in NewMember) error {
	switch {
	case in.CardNo == "":
		return &ValidationError{Field: "card_no", Reason: "card number is required"}
	case in.Name == "":
		return &ValidationError{Field: "name", Reason: "name is required"}
	case in.Phone == "":
		return &ValidationError{Field: "phone", Reason: "phone is required"}
	case !isDigits(in.Phone) || len(in.Phone) != PhoneLength:
		return &ValidationError{Field: "phone", Reason: "phone must be exactly 11 digits"}
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DeleteMember removes a member and all of its ledger rows. Deleting an id
// that does not exist succeeds.
func (e *Engine) DeleteMember(ctx context.Context, id int64) error {
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		return tx.DeleteMember(ctx, id)
	})
	if err != nil {
		return e.fail("delete member", err)
	}

	e.Log.Info("member deleted", zap.Int64("member_id", id))
	return nil
}

// =============================================================================
// CONSUME
// =============================================================================

// Consume records a spend and awards floor(amount / point_rate) points.
// Settings are read inside the write transaction, so the rate and the
// thresholds used for the tier come from the same snapshot.
func (e *Engine) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	record := ConsumeRecord{
		MemberID:  req.MemberID,
		Amount:    req.Amount,
		PayType:   req.PayType,
		Remark:    req.Remark,
		CreatedAt: e.Now(),
	}

	var member *Member
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		settings, err := currentSettings(ctx, tx)
		if err != nil {
			return err
		}
		points, err := PointsFor(req.Amount, settings.PointRate)
		if err != nil {
			return err
		}
		current, err := requireMember(ctx, tx, req.MemberID)
		if err != nil {
			return err
		}

		record.PointsAwarded = points
		if err := tx.InsertConsume(ctx, &record); err != nil {
			return err
		}
		member, err = applyPoints(ctx, tx, current, points, "amount", settings)
		return err
	})
	if err != nil {
		return nil, e.fail("consume", err)
	}

	points := record.PointsAwarded
	e.Log.Info("consume recorded",
		zap.Int64("member_id", member.ID),
		zap.Int64("record_id", record.ID),
		zap.String("amount", req.Amount.String()),
		zap.Int64("points_awarded", points),
		zap.Int64("points", member.Points),
		zap.String("tier", string(member.Tier)))

	return &ConsumeResult{PointsAwarded: points, Record: record, Member: *member}, nil
}

// =============================================================================
// RECHARGE
// =============================================================================

// Recharge tops up a member's balance. Points and tier are untouched:
// stored value and loyalty are tracked separately.
func (e *Engine) Recharge(ctx context.Context, req RechargeRequest) (*RechargeResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	record := RechargeRecord{
		MemberID:  req.MemberID,
		Amount:    req.Amount,
		PayType:   req.PayType,
		Remark:    req.Remark,
		CreatedAt: e.Now(),
	}

	var member *Member
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		if _, err := requireMember(ctx, tx, req.MemberID); err != nil {
			return err
		}
		if err := tx.InsertRecharge(ctx, &record); err != nil {
			return err
		}
		if _, err := tx.AddBalance(ctx, req.MemberID, req.Amount); err != nil {
			return err
		}
		var err error
		member, err = tx.Member(ctx, req.MemberID)
		return err
	})
	if err != nil {
		return nil, e.fail("recharge", err)
	}

	e.Log.Info("recharge recorded",
		zap.Int64("member_id", member.ID),
		zap.Int64("record_id", record.ID),
		zap.String("amount", req.Amount.String()),
		zap.String("balance", member.Balance.String()))

	return &RechargeResult{Record: record, Member: *member}, nil
}

// =============================================================================
// POINTS ADJUSTMENT
// =============================================================================

// AdjustPoints applies an administrative correction. No ledger row is
// written and no floor is enforced, so points may go negative. A zero
// delta only re-evaluates the tier against the current thresholds.
func (e *Engine) AdjustPoints(ctx context.Context, req AdjustPointsRequest) (*Member, error) {
	var member *Member
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		settings, err := currentSettings(ctx, tx)
		if err != nil {
			return err
		}
		current, err := requireMember(ctx, tx, req.MemberID)
		if err != nil {
			return err
		}
		member, err = applyPoints(ctx, tx, current, req.Delta, "delta", settings)
		return err
	})
	if err != nil {
		return nil, e.fail("adjust points", err)
	}

	e.Log.Info("points adjusted",
		zap.Int64("member_id", member.ID),
		zap.Int64("delta", req.Delta),
		zap.Int64("points", member.Points),
		zap.String("tier", string(member.Tier)),
		zap.String("remark", req.Remark))

	return member, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// UpdateSettings validates and persists shop settings. Existing member
// tiers are not recomputed; each member picks up the new thresholds on
// its next points-affecting operation.
func (e *Engine) UpdateSettings(ctx context.Context, s Settings) (*Settings, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.UpdatedAt = e.Now()

	if err := e.Settings.SaveSettings(ctx, s); err != nil {
		return nil, e.fail("update settings", err)
	}

	e.Log.Info("settings updated",
		zap.Int64("point_rate", s.PointRate),
		zap.Int64("silver_threshold", s.SilverThreshold),
		zap.Int64("gold_threshold", s.GoldThreshold))
	return &s, nil
}

// currentSettings reads settings fresh through the open transaction.
func currentSettings(ctx context.Context, tx Tx) (Settings, error) {
	s, err := tx.Settings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if s.PointRate < 1 {
		s.PointRate = DefaultPointRate
	}
	return s, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// MaxAmountPlaces is the number of decimal places a money amount may carry.
const MaxAmountPlaces = 2

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "amount must be greater than 0"}
	}
	if !amount.Equal(amount.Truncate(MaxAmountPlaces)) {
		return &ValidationError{Field: "amount", Reason: "amount must have at most 2 decimal places"}
	}
	return nil
}

func requireMember(ctx context.Context, tx Tx, id int64) (*Member, error) {
	m, err := tx.Member(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, memberNotFound(id)
	}
	return m, nil
}

// applyPoints increments points, recomputes the tier from the new total and
// writes it unconditionally, then returns the updated member. A total that
// would leave the int64 range is reported against field.
func applyPoints(ctx context.Context, tx Tx, m *Member, delta int64, field string, s Settings) (*Member, error) {
	if _, ok := AddPoints(m.Points, delta); !ok {
		return nil, &ValidationError{Field: field, Reason: "points total out of range"}
	}
	total, err := tx.AddPoints(ctx, m.ID, delta)
	if err != nil {
		return nil, err
	}
	tier := ComputeTier(total, s.SilverThreshold, s.GoldThreshold)
	if err := tx.SetTier(ctx, m.ID, tier); err != nil {
		return nil, err
	}
	updated, err := tx.Member(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, memberNotFound(m.ID)
	}
	return updated, nil
}

// fail converts err to the engine taxonomy and logs system failures.
func (e *Engine) fail(op string, err error) error {
	err = asSystem(op, err)
	var se *SystemError
	if errors.As(err, &se) {
		e.Log.Error("ledger operation failed",
			zap.String("op", op),
			zap.Error(se.Err))
	}
	return err
}
