/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts and balances travel as decimal strings ("105.50") so no client
  ever round-trips money through a float.

VALIDATION:
  Shape checks use go-playground/validator struct tags. Business rules
  (phone format, uniqueness, amount > 0) stay in the ledger engine so
  every caller gets the same answers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/member-ledger/ledger"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID        int64  `json:"id"`
	CardNo    string `json:"card_no"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Tier      string `json:"tier"`
	Balance   string `json:"balance"`
	Points    int64  `json:"points"`
	CreatedAt string `json:"created_at"`
}

// CreateMemberRequest is the request to register a member.
type CreateMemberRequest struct {
	CardNo string `json:"card_no"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
}

// HistoryDTO is a member's ledger, newest first.
type HistoryDTO struct {
	Member    MemberDTO           `json:"member"`
	Consumes  []ConsumeRecordDTO  `json:"consumes"`
	Recharges []RechargeRecordDTO `json:"recharges"`
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// AmountRequest is the body of consume and recharge calls.
type AmountRequest struct {
	Amount  string `json:"amount" validate:"required,numeric"`
	PayType string `json:"pay_type" validate:"omitempty,max=32"`
	Remark  string `json:"remark" validate:"max=255"`
}

// AdjustPointsRequest is the body of an administrative points correction.
type AdjustPointsRequest struct {
	Delta  *int64 `json:"delta" validate:"required"`
	Remark string `json:"remark" validate:"max=255"`
}

type ConsumeRecordDTO struct {
	ID            int64  `json:"id"`
	MemberID      int64  `json:"member_id"`
	Amount        string `json:"amount"`
	PayType       string `json:"pay_type"`
	Remark        string `json:"remark"`
	PointsAwarded int64  `json:"points_awarded"`
	CreatedAt     string `json:"created_at"`
}

type RechargeRecordDTO struct {
	ID        int64  `json:"id"`
	MemberID  int64  `json:"member_id"`
	Amount    string `json:"amount"`
	PayType   string `json:"pay_type"`
	Remark    string `json:"remark"`
	CreatedAt string `json:"created_at"`
}

// ConsumeResponse lets the cashier screen show "+N points".
type ConsumeResponse struct {
	PointsAwarded int64            `json:"points_awarded"`
	Record        ConsumeRecordDTO `json:"record"`
	Member        MemberDTO        `json:"member"`
}

type RechargeResponse struct {
	Record RechargeRecordDTO `json:"record"`
	Member MemberDTO         `json:"member"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO is both the response and the PUT body for settings.
type SettingsDTO struct {
	ShopName        string `json:"shop_name" validate:"max=100"`
	ShopAddress     string `json:"shop_address" validate:"max=255"`
	ShopPhone       string `json:"shop_phone" validate:"max=32"`
	PointRate       int64  `json:"point_rate" validate:"min=1"`
	SilverThreshold int64  `json:"tier_silver_threshold" validate:"min=0"`
	GoldThreshold   int64  `json:"tier_gold_threshold" validate:"gtfield=SilverThreshold"`
	PrintReceipt    bool   `json:"print_receipt"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

type TotalsDTO struct {
	Bucket         string `json:"bucket"`
	ConsumeCount   int    `json:"consume_count"`
	ConsumeAmount  string `json:"consume_amount"`
	PointsAwarded  int64  `json:"points_awarded"`
	RechargeCount  int    `json:"recharge_count"`
	RechargeAmount string `json:"recharge_amount"`
}

type SummaryResponse struct {
	Period string      `json:"period"`
	From   string      `json:"from"`
	To     string      `json:"to"`
	Totals []TotalsDTO `json:"totals"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toMemberDTO(m ledger.Member) MemberDTO {
	return MemberDTO{
		ID:        m.ID,
		CardNo:    m.CardNo,
		Name:      m.Name,
		Phone:     m.Phone,
		Tier:      string(m.Tier),
		Balance:   m.Balance.StringFixed(2),
		Points:    m.Points,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

func toConsumeDTO(r ledger.ConsumeRecord) ConsumeRecordDTO {
	return ConsumeRecordDTO{
		ID:            r.ID,
		MemberID:      r.MemberID,
		Amount:        r.Amount.StringFixed(2),
		PayType:       string(r.PayType),
		Remark:        r.Remark,
		PointsAwarded: r.PointsAwarded,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
}

func toRechargeDTO(r ledger.RechargeRecord) RechargeRecordDTO {
	return RechargeRecordDTO{
		ID:        r.ID,
		MemberID:  r.MemberID,
		Amount:    r.Amount.StringFixed(2),
		PayType:   string(r.PayType),
		Remark:    r.Remark,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

func toSettingsDTO(s ledger.Settings) SettingsDTO {
	dto := SettingsDTO{
		ShopName:        s.ShopName,
		ShopAddress:     s.ShopAddress,
		ShopPhone:       s.ShopPhone,
		PointRate:       s.PointRate,
		SilverThreshold: s.SilverThreshold,
		GoldThreshold:   s.GoldThreshold,
		PrintReceipt:    s.PrintReceipt,
	}
	if !s.UpdatedAt.IsZero() {
		dto.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func (d SettingsDTO) toLedger() ledger.Settings {
	return ledger.Settings{
		ShopName:        d.ShopName,
		ShopAddress:     d.ShopAddress,
		ShopPhone:       d.ShopPhone,
		PointRate:       d.PointRate,
		SilverThreshold: d.SilverThreshold,
		GoldThreshold:   d.GoldThreshold,
		PrintReceipt:    d.PrintReceipt,
	}
}
