/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	shop data for demos and frontend development. Every row is written
	through the ledger engine, so the demo data obeys the same rules as
	real traffic (points floor, tier recomputation, unique phone/card).

AVAILABLE SCENARIOS:

	empty-shop:      Default settings, no members
	tier-boundaries: Members sitting exactly at 99 / 100 / 999 / 1000 points
	busy-counter:    A dozen members with mixed recharge and consume history

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save scenario settings
 3. Register members
 4. Replay recharges, consumes and adjustments through the engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-counter"}

NOTE:

	Scenarios reset the database. Routes are only mounted when
	server.demo_scenarios is enabled.

SEE ALSO:
  - server.go: Mounts /api/scenarios
  - ledger/engine.go: Operations the loaders replay
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/member-ledger/ledger"
	"go.uber.org/zap"
)

// Resetter wipes all members, ledger rows and settings.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty-shop",
		Name:        "Empty Shop",
		Description: "Default settings and no members",
	},
	{
		ID:          "tier-boundaries",
		Name:        "Tier Boundaries",
		Description: "Members exactly on either side of the silver and gold thresholds",
	},
	{
		ID:          "busy-counter",
		Name:        "Busy Counter",
		Description: "Twelve members with recharge and consume history, point rate 10",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "empty-shop":
		load = h.loadEmptyShopScenario
	case "tier-boundaries":
		load = h.loadTierBoundariesScenario
	case "busy-counter":
		load = h.loadBusyCounterScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", "scenario_id")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Demo.Reset(ctx); err != nil {
		h.writeLedgerError(w, r, &ledger.SystemError{Op: "reset database", Err: err})
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.writeLedgerError(w, r, &ledger.SystemError{Op: "load scenario " + req.ScenarioID, Err: err})
		return
	}
	h.currentScenario = req.ScenarioID

	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadEmptyShopScenario(ctx context.Context) error {
	_, err := h.Engine.UpdateSettings(ctx, ledger.DefaultSettings())
	return err
}

func (h *Handler) loadTierBoundariesScenario(ctx context.Context) error {
	if _, err := h.Engine.UpdateSettings(ctx, ledger.Settings{
		ShopName:        "Boundary Bakery",
		PointRate:       1,
		SilverThreshold: 100,
		GoldThreshold:   1000,
	}); err != nil {
		return err
	}

	for i, points := range []int64{0, 99, 100, 999, 1000} {
		m, err := h.Engine.CreateMember(ctx, ledger.NewMember{
			CardNo: fmt.Sprintf("TB%03d", i+1),
			Name:   fmt.Sprintf("Boundary %d", points),
			Phone:  fmt.Sprintf("1390000%04d", i+1),
		})
		if err != nil {
			return err
		}
		if points == 0 {
			continue
		}
		if _, err := h.Engine.Consume(ctx, ledger.ConsumeRequest{
			MemberID: m.ID,
			Amount:   decimal.NewFromInt(points),
			PayType:  ledger.PayCash,
			Remark:   "opening spend",
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadBusyCounterScenario(ctx context.Context) error {
	if _, err := h.Engine.UpdateSettings(ctx, ledger.Settings{
		ShopName:        "Busy Counter Cafe",
		ShopAddress:     "1 Market Street",
		ShopPhone:       "02100000000",
		PointRate:       10,
		SilverThreshold: 200,
		GoldThreshold:   2000,
		PrintReceipt:    true,
	}); err != nil {
		return err
	}

	payTypes := []ledger.PayType{ledger.PayCash, ledger.PayCard, ledger.PayWechat, ledger.PayAlipay}

	for i := 1; i <= 12; i++ {
		m, err := h.Engine.CreateMember(ctx, ledger.NewMember{
			CardNo: fmt.Sprintf("BC%04d", i),
			Name:   fmt.Sprintf("Regular %02d", i),
			Phone:  fmt.Sprintf("1380013%04d", i),
		})
		if err != nil {
			return err
		}

		if _, err := h.Engine.Recharge(ctx, ledger.RechargeRequest{
			MemberID: m.ID,
			Amount:   decimal.NewFromInt(int64(100 * i)),
			PayType:  payTypes[i%len(payTypes)],
			Remark:   "opening top-up",
		}); err != nil {
			return err
		}

		// Spend grows with i so later members cross silver and gold.
		for visit := 1; visit <= i; visit++ {
			amount := decimal.NewFromInt(int64(35*i + 7*visit)).Add(decimal.RequireFromString("0.50"))
			if _, err := h.Engine.Consume(ctx, ledger.ConsumeRequest{
				MemberID: m.ID,
				Amount:   amount,
				PayType:  payTypes[(i+visit)%len(payTypes)],
			}); err != nil {
				return err
			}
		}
	}

	// One goodwill correction so the history shows an adjustment.
	if m, err := h.Lookup.FindByPhoneOrCard(ctx, "BC0001"); err == nil {
		if _, err := h.Engine.AdjustPoints(ctx, ledger.AdjustPointsRequest{
			MemberID: m.ID,
			Delta:    50,
			Remark:   "birthday bonus",
		}); err != nil {
			return err
		}
	}
	return nil
}
