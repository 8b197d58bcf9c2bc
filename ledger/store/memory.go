// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/member-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state *state
}

type state struct {
	members   map[int64]ledger.Member
	consumes  []ledger.ConsumeRecord
	recharges []ledger.RechargeRecord
	settings  *ledger.Settings
	nextID    int64
}

func NewMemory() *Memory {
	return &Memory{
		state: &state{members: make(map[int64]ledger.Member)},
	}
}

var (
	_ ledger.Store         = (*Memory)(nil)
	_ ledger.SettingsStore = (*Memory)(nil)
)

func (s *state) clone() *state {
	c := &state{
		members:   make(map[int64]ledger.Member, len(s.members)),
		consumes:  append([]ledger.ConsumeRecord(nil), s.consumes...),
		recharges: append([]ledger.RechargeRecord(nil), s.recharges...),
		settings:  s.settings,
		nextID:    s.nextID,
	}
	for id, m := range s.members {
		c.members[id] = m
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// =============================================================================
// READS
// =============================================================================

func (m *Memory) Member(_ context.Context, id int64) (*ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.member(id), nil
}

func (s *state) member(id int64) *ledger.Member {
	mem, ok := s.members[id]
	if !ok {
		return nil
	}
	return &mem
}

func (m *Memory) FindByPhoneOrCard(_ context.Context, keyword string) (*ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Lowest id wins if two rows ever matched.
	var found *ledger.Member
	for _, mem := range m.state.members {
		if mem.Phone == keyword || mem.CardNo == keyword {
			if found == nil || mem.ID < found.ID {
				mem := mem
				found = &mem
			}
		}
	}
	return found, nil
}

func (m *Memory) ListMembers(_ context.Context, order ledger.MemberOrder) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Member, 0, len(m.state.members))
	for _, mem := range m.state.members {
		result = append(result, mem)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if order == ledger.OrderByPointsDesc && a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return result, nil
}

func (m *Memory) ConsumeRecords(_ context.Context, memberID int64) ([]ledger.ConsumeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.ConsumeRecord
	for i := len(m.state.consumes) - 1; i >= 0; i-- {
		if m.state.consumes[i].MemberID == memberID {
			result = append(result, m.state.consumes[i])
		}
	}
	return result, nil
}

func (m *Memory) RechargeRecords(_ context.Context, memberID int64) ([]ledger.RechargeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.RechargeRecord
	for i := len(m.state.recharges) - 1; i >= 0; i-- {
		if m.state.recharges[i].MemberID == memberID {
			result = append(result, m.state.recharges[i])
		}
	}
	return result, nil
}

func (m *Memory) ConsumeRecordsBetween(_ context.Context, from, to time.Time) ([]ledger.ConsumeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.ConsumeRecord
	for _, r := range m.state.consumes {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) RechargeRecordsBetween(_ context.Context, from, to time.Time) ([]ledger.RechargeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.RechargeRecord
	for _, r := range m.state.recharges {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			result = append(result, r)
		}
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a copy of the state and swaps it in only when fn
// succeeds. Writers are serialized by the store lock.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	s *state
}

func (t *memTx) Settings(_ context.Context) (ledger.Settings, error) {
	return t.s.currentSettings(), nil
}

func (t *memTx) Member(_ context.Context, id int64) (*ledger.Member, error) {
	return t.s.member(id), nil
}

func (t *memTx) PhoneExists(_ context.Context, phone string) (bool, error) {
	for _, mem := range t.s.members {
		if mem.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CardExists(_ context.Context, cardNo string) (bool, error) {
	for _, mem := range t.s.members {
		if mem.CardNo == cardNo {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertMember(_ context.Context, mem *ledger.Member) error {
	mem.ID = t.s.id()
	if mem.Balance.IsZero() {
		mem.Balance = decimal.Zero
	}
	t.s.members[mem.ID] = *mem
	return nil
}

// DeleteMember drops the member and cascades to its ledger rows.
func (t *memTx) DeleteMember(_ context.Context, id int64) error {
	delete(t.s.members, id)

	consumes := t.s.consumes[:0]
	for _, r := range t.s.consumes {
		if r.MemberID != id {
			consumes = append(consumes, r)
		}
	}
	t.s.consumes = consumes

	recharges := t.s.recharges[:0]
	for _, r := range t.s.recharges {
		if r.MemberID != id {
			recharges = append(recharges, r)
		}
	}
	t.s.recharges = recharges
	return nil
}

func (t *memTx) AddPoints(_ context.Context, memberID, delta int64) (int64, error) {
	mem, ok := t.s.members[memberID]
	if !ok {
		return 0, nil
	}
	total, ok := ledger.AddPoints(mem.Points, delta)
	if !ok {
		return 0, &ledger.ValidationError{Field: "points", Reason: "points total out of range"}
	}
	mem.Points = total
	t.s.members[memberID] = mem
	return mem.Points, nil
}

func (t *memTx) AddBalance(_ context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	mem, ok := t.s.members[memberID]
	if !ok {
		return decimal.Zero, nil
	}
	mem.Balance = mem.Balance.Add(amount)
	t.s.members[memberID] = mem
	return mem.Balance, nil
}

func (t *memTx) SetTier(_ context.Context, memberID int64, tier ledger.Tier) error {
	if mem, ok := t.s.members[memberID]; ok {
		mem.Tier = tier
		t.s.members[memberID] = mem
	}
	return nil
}

func (t *memTx) InsertConsume(_ context.Context, r *ledger.ConsumeRecord) error {
	r.ID = t.s.id()
	t.s.consumes = append(t.s.consumes, *r)
	return nil
}

func (t *memTx) InsertRecharge(_ context.Context, r *ledger.RechargeRecord) error {
	r.ID = t.s.id()
	t.s.recharges = append(t.s.recharges, *r)
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Memory) Settings(_ context.Context) (ledger.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.currentSettings(), nil
}

func (s *state) currentSettings() ledger.Settings {
	if s.settings == nil {
		return ledger.DefaultSettings()
	}
	return *s.settings
}

func (m *Memory) SaveSettings(_ context.Context, s ledger.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.settings = &s
	return nil
}
