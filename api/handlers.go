/*
handlers.go - HTTP API handlers for the membership ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger package. No business
  rule lives here.

ENDPOINTS:
  Members:
    GET    /api/members                 List (order=created|points)
    POST   /api/members                 Register member
    GET    /api/members/search          Exact phone / card lookup
    GET    /api/members/{id}            Member details
    DELETE /api/members/{id}            Delete member (cascades)
    GET    /api/members/{id}/history    Consume + recharge rows

  Ledger:
    POST   /api/members/{id}/consume    Spend, earns points
    POST   /api/members/{id}/recharge   Top up balance
    POST   /api/members/{id}/points     Administrative points correction

  Scenarios (demo only):
    GET    /api/scenarios               Available demo scenarios
    GET    /api/scenarios/current       Last loaded scenario
    POST   /api/scenarios/load          Reset and load a scenario

  Settings / Reports:
    GET    /api/settings                Current settings
    PUT    /api/settings                Update settings
    GET    /api/reports/summary         Totals per day / month / year
    GET    /api/reports/tiers           Members per tier

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: ValidationError, malformed body
  - 404: NotFoundError
  - 409: ConflictError (duplicate phone / card number)
  - 500: SystemError, generic message only

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/member-ledger/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Lookup   *ledger.Lookup
	Reporter *ledger.Reporter
	Log      *zap.Logger

	// Demo enables /api/scenarios when non-nil.
	Demo Resetter

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler around an engine. Lookup and reporting use
// the engine's store.
func NewHandler(engine *ledger.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Engine:   engine,
		Lookup:   ledger.NewLookup(engine.Store),
		Reporter: ledger.NewReporter(engine.Store),
		Log:      log,
		validate: v,
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	order := ledger.MemberOrder(r.URL.Query().Get("order"))

	members, err := h.Lookup.List(r.Context(), order)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember registers a new member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	m, err := h.Engine.CreateMember(r.Context(), ledger.NewMember{
		CardNo: req.CardNo,
		Name:   req.Name,
		Phone:  req.Phone,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberDTO(*m))
}

// SearchMember resolves a member by exact phone or card number.
// GET /api/members/search?keyword=13800000000
func (h *Handler) SearchMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Lookup.FindByPhoneOrCard(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	m, err := h.Lookup.Get(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// DeleteMember removes a member. Succeeds for ids that no longer exist.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	if err := h.Engine.DeleteMember(r.Context(), id); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// GetHistory returns a member's ledger rows.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	m, err := h.Lookup.Get(ctx, id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	history, err := h.Lookup.History(ctx, id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dto := HistoryDTO{
		Member:    toMemberDTO(*m),
		Consumes:  make([]ConsumeRecordDTO, len(history.Consumes)),
		Recharges: make([]RechargeRecordDTO, len(history.Recharges)),
	}
	for i, c := range history.Consumes {
		dto.Consumes[i] = toConsumeDTO(c)
	}
	for i, rc := range history.Recharges {
		dto.Recharges[i] = toRechargeDTO(rc)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// Consume records a spend.
// POST /api/members/{id}/consume {"amount": "105", "pay_type": "cash"}
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	res, err := h.Engine.Consume(r.Context(), ledger.ConsumeRequest{
		MemberID: id,
		Amount:   amount,
		PayType:  ledger.PayType(req.PayType),
		Remark:   req.Remark,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ConsumeResponse{
		PointsAwarded: res.PointsAwarded,
		Record:        toConsumeDTO(res.Record),
		Member:        toMemberDTO(res.Member),
	})
}

// Recharge tops up a member's balance.
func (h *Handler) Recharge(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	res, err := h.Engine.Recharge(r.Context(), ledger.RechargeRequest{
		MemberID: id,
		Amount:   amount,
		PayType:  ledger.PayType(req.PayType),
		Remark:   req.Remark,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, RechargeResponse{
		Record: toRechargeDTO(res.Record),
		Member: toMemberDTO(res.Member),
	})
}

// AdjustPoints applies an administrative points correction.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	id, ok := memberID(w, r)
	if !ok {
		return
	}
	var req AdjustPointsRequest
	if !h.decode(w, r, &req) {
		return
	}

	remark := req.Remark
	if op := OperatorFrom(r.Context()); op != nil {
		remark = strings.TrimSpace(remark + " (by " + op.Name + ")")
	}

	m, err := h.Engine.AdjustPoints(r.Context(), ledger.AdjustPointsRequest{
		MemberID: id,
		Delta:    *req.Delta,
		Remark:   remark,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the current settings (defaults when never saved).
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Settings.Settings(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, &ledger.SystemError{Op: "load settings", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

// UpdateSettings replaces the settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Engine.UpdateSettings(r.Context(), req.toLedger())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(*s))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetSummary returns ledger totals per bucket.
// GET /api/reports/summary?period=month&from=2026-01-01&to=2026-12-31
// from defaults to 30 days ago, to (inclusive day) defaults to today.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	period, err := ledger.ParsePeriod(q.Get("period"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, ok := parseDay(w, q.Get("from"), "from", today.AddDate(0, 0, -30))
	if !ok {
		return
	}
	to, ok := parseDay(w, q.Get("to"), "to", today)
	if !ok {
		return
	}
	end := to.AddDate(0, 0, 1)

	totals, err := h.Reporter.Summary(r.Context(), period, from, end)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	resp := SummaryResponse{
		Period: string(period),
		From:   from.Format("2006-01-02"),
		To:     to.Format("2006-01-02"),
		Totals: make([]TotalsDTO, len(totals)),
	}
	for i, t := range totals {
		resp.Totals[i] = TotalsDTO{
			Bucket:         t.Bucket,
			ConsumeCount:   t.ConsumeCount,
			ConsumeAmount:  t.ConsumeAmount.StringFixed(2),
			PointsAwarded:  t.PointsAwarded,
			RechargeCount:  t.RechargeCount,
			RechargeAmount: t.RechargeAmount.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTierCounts returns the number of members per tier.
func (h *Handler) GetTierCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Reporter.TierCounts(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	resp := make(map[string]int, len(counts))
	for tier, n := range counts {
		resp[string(tier)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses the JSON body into dst and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			writeError(w, http.StatusBadRequest,
				"Field '"+fe.Field()+"' failed on the '"+fe.Tag()+"' rule", fe.Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return false
	}
	return true
}

func memberID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid member id", "id")
		return 0, false
	}
	return id, true
}

func parseAmount(w http.ResponseWriter, s string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", "amount")
		return decimal.Zero, false
	}
	return amount, true
}

func parseDay(w http.ResponseWriter, s, field string, fallback time.Time) (time.Time, bool) {
	if s == "" {
		return fallback, true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+field+" date (use YYYY-MM-DD)", field)
		return time.Time{}, false
	}
	return t, true
}

// writeLedgerError maps the ledger error taxonomy to HTTP statuses.
// System errors never leak their cause to the client.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *ledger.ValidationError
		ce *ledger.ConflictError
		se *ledger.SystemError
	)

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Reason, ve.Field)
	case errors.As(err, &ce):
		writeError(w, http.StatusConflict, ce.Error(), ce.Field)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.As(err, &se):
		h.Log.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("op", se.Op),
			zap.Error(se.Err))
		writeError(w, http.StatusInternalServerError, "Internal error: "+se.Error(), "")
	default:
		h.Log.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, field string) {
	writeJSON(w, status, ErrorResponse{Error: message, Field: field})
}
