/*
handlers_test.go - HTTP-level tests for the ledger API

Tests for:
- Member registration, search, delete
- Consume / recharge / points adjustment responses
- Error status mapping (400 / 404 / 409)
- Settings round trip and reports
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/member-ledger/config"
	"github.com/warp/member-ledger/ledger"
	"github.com/warp/member-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(t *testing.T, auth config.AuthConfig) http.Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := ledger.NewEngine(store, store, nil)
	return NewRouter(NewHandler(engine, nil), RouterOptions{Auth: auth})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func registerMember(t *testing.T, h http.Handler, card, phone string) MemberDTO {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/members", CreateMemberRequest{
		CardNo: card, Name: "Member " + card, Phone: phone,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[MemberDTO](t, rec)
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestCreateMember_Created(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})

	m := registerMember(t, h, "C001", "13800000001")

	assert.NotZero(t, m.ID)
	assert.Equal(t, "Normal", m.Tier)
	assert.Equal(t, "0.00", m.Balance)
	assert.Equal(t, int64(0), m.Points)
}

func TestCreateMember_InvalidPhone(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})

	rec := doJSON(t, h, http.MethodPost, "/api/members", CreateMemberRequest{
		CardNo: "C001", Name: "A", Phone: "12345",
	}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "phone", decodeBody[ErrorResponse](t, rec).Field)
}

func TestCreateMember_DuplicatePhoneIsConflict(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	registerMember(t, h, "C001", "13800000001")

	rec := doJSON(t, h, http.MethodPost, "/api/members", CreateMemberRequest{
		CardNo: "C002", Name: "B", Phone: "13800000001",
	}, "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "phone", decodeBody[ErrorResponse](t, rec).Field)
}

func TestCreateMember_MalformedBody(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/members", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchMember(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "VIP-1", "13800000001")

	rec := doJSON(t, h, http.MethodGet, "/api/members/search?keyword=VIP-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, m.ID, decodeBody[MemberDTO](t, rec).ID)

	rec = doJSON(t, h, http.MethodGet, "/api/members/search?keyword=13899999999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/members/search", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMember_InvalidID(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})

	rec := doJSON(t, h, http.MethodGet, "/api/members/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/members/42", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMember_ThenNotFound(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")
	path := fmt.Sprintf("/api/members/%d", m.ID)

	rec := doJSON(t, h, http.MethodDelete, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code, "delete is idempotent")

	rec = doJSON(t, h, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMembers_ByPoints(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	a := registerMember(t, h, "C001", "13800000001")
	b := registerMember(t, h, "C002", "13800000002")

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/points", a.ID),
		map[string]any{"delta": 50}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/members?order=points", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	members := decodeBody[[]MemberDTO](t, rec)
	require.Len(t, members, 2)
	assert.Equal(t, a.ID, members[0].ID)
	assert.Equal(t, b.ID, members[1].ID)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestConsume_ReturnsPointsAwarded(t *testing.T) {
	// GIVEN: point_rate 10 and a fresh member
	h := newTestServer(t, config.AuthConfig{})
	rec := doJSON(t, h, http.MethodPut, "/api/settings", SettingsDTO{
		PointRate: 10, SilverThreshold: 100, GoldThreshold: 1000,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := registerMember(t, h, "C001", "13800000001")

	// WHEN: The member spends 105
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/consume", m.ID),
		AmountRequest{Amount: "105", PayType: "cash"}, "")

	// THEN: +10 points
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[ConsumeResponse](t, rec)
	assert.Equal(t, int64(10), resp.PointsAwarded)
	assert.Equal(t, int64(10), resp.Member.Points)
	assert.Equal(t, "105.00", resp.Record.Amount)
	assert.Equal(t, "cash", resp.Record.PayType)
}

func TestConsume_RejectsBadAmounts(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")
	path := fmt.Sprintf("/api/members/%d/consume", m.ID)

	for _, amount := range []string{"", "abc", "0", "-5"} {
		rec := doJSON(t, h, http.MethodPost, path, AmountRequest{Amount: amount}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount=%q", amount)
		assert.Equal(t, "amount", decodeBody[ErrorResponse](t, rec).Field, "amount=%q", amount)
	}
}

func TestConsume_RejectsOutOfRangeAmounts(t *testing.T) {
	// GIVEN: Default rate 1
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")
	path := fmt.Sprintf("/api/members/%d/consume", m.ID)

	// WHEN: Sub-cent amounts and amounts whose award overflows int64
	for _, amount := range []string{"0.004", "1.005", "9223372036854775808", "18446744073709551717"} {
		rec := doJSON(t, h, http.MethodPost, path, AmountRequest{Amount: amount}, "")

		// THEN: 400 against amount
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount=%q", amount)
		assert.Equal(t, "amount", decodeBody[ErrorResponse](t, rec).Field, "amount=%q", amount)
	}

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/members/%d", m.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(0), decodeBody[MemberDTO](t, rec).Points)
}

func TestConsume_UnknownMember(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})

	rec := doJSON(t, h, http.MethodPost, "/api/members/999/consume", AmountRequest{Amount: "10"}, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecharge_Balance(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")
	path := fmt.Sprintf("/api/members/%d/recharge", m.ID)

	rec := doJSON(t, h, http.MethodPost, path, AmountRequest{Amount: "50"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = doJSON(t, h, http.MethodPost, path, AmountRequest{Amount: "30.5"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[RechargeResponse](t, rec)
	assert.Equal(t, "80.50", resp.Member.Balance)
	assert.Equal(t, int64(0), resp.Member.Points)
}

func TestAdjustPoints_RequiresDelta(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")

	rec := doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/points", m.ID),
		map[string]any{"remark": "no delta"}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "delta", decodeBody[ErrorResponse](t, rec).Field)
}

func TestHistory(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")

	doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/consume", m.ID), AmountRequest{Amount: "12"}, "")
	doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/recharge", m.ID), AmountRequest{Amount: "20"}, "")

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/members/%d/history", m.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	hist := decodeBody[HistoryDTO](t, rec)
	assert.Equal(t, m.ID, hist.Member.ID)
	assert.Len(t, hist.Consumes, 1)
	assert.Len(t, hist.Recharges, 1)
}

// =============================================================================
// SETTINGS / REPORTS
// =============================================================================

func TestSettings_DefaultsAndValidation(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})

	rec := doJSON(t, h, http.MethodGet, "/api/settings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[SettingsDTO](t, rec)
	assert.Equal(t, int64(1), s.PointRate)
	assert.Equal(t, int64(100), s.SilverThreshold)
	assert.Equal(t, int64(1000), s.GoldThreshold)

	rec = doJSON(t, h, http.MethodPut, "/api/settings", SettingsDTO{
		PointRate: 1, SilverThreshold: 500, GoldThreshold: 100,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "tier_gold_threshold", decodeBody[ErrorResponse](t, rec).Field)

	rec = doJSON(t, h, http.MethodPut, "/api/settings", SettingsDTO{
		PointRate: 0, SilverThreshold: 100, GoldThreshold: 1000,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "point_rate", decodeBody[ErrorResponse](t, rec).Field)
}

func TestReports(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{})
	m := registerMember(t, h, "C001", "13800000001")
	doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/consume", m.ID), AmountRequest{Amount: "150"}, "")
	doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/members/%d/recharge", m.ID), AmountRequest{Amount: "20.10"}, "")

	rec := doJSON(t, h, http.MethodGet, "/api/reports/summary?period=year", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[SummaryResponse](t, rec)
	require.Len(t, summary.Totals, 1)
	assert.Equal(t, 1, summary.Totals[0].ConsumeCount)
	assert.Equal(t, "150.00", summary.Totals[0].ConsumeAmount)
	assert.Equal(t, "20.10", summary.Totals[0].RechargeAmount)

	rec = doJSON(t, h, http.MethodGet, "/api/reports/summary?period=week", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/reports/summary?from=2026-13-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/reports/tiers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tiers := decodeBody[map[string]int](t, rec)
	assert.Equal(t, map[string]int{"Normal": 0, "Silver": 1, "Gold": 0}, tiers)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, config.AuthConfig{Enabled: true})

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
