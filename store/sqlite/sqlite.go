/*
Package sqlite provides a SQLite-backed implementation of the ledger storage
interfaces.

PURPOSE:
  Implements ledger.Store (members + ledger rows) and ledger.SettingsStore
  using database/sql and go-sqlite3. The SQL is plain enough that a
  PostgreSQL port only needs dialect tweaks.

INTERFACES IMPLEMENTED:
  ledger.Store:         Member reads, ledger reads, WithTx
  ledger.Tx:            Write primitives (txStore)
  ledger.SettingsStore: Settings singleton

KEY TABLES:
  members:          One row per member; card_no and phone UNIQUE
  consume_records:  Append-only spend ledger
  recharge_records: Append-only top-up ledger
  settings:         Singleton row (id = 1)

CASCADE:
  Both ledgers reference members(id) ON DELETE CASCADE. Foreign keys are
  enabled per connection through the DSN.

CONCURRENCY:
  Writers go through WithTx, which holds the store mutex and opens the
  transaction with BEGIN IMMEDIATE (_txlock=immediate), so the write lock
  is taken before the first read. Two cashier terminals, even in separate
  processes, cannot interleave a read-modify-write on the same member.
  Points are read, summed with ledger.AddPoints and written back under
  that lock, so an overflowing total is rejected instead of becoming REAL.

MONEY:
  Balances and amounts are stored as decimal TEXT and parsed back with
  shopspring/decimal. They are never summed in SQL.

WAL MODE:
  Opened with WAL so readers don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/members.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, store, log)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/member-ledger/ledger"
)

// timeLayout is fixed-width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ ledger.Store         = (*Store)(nil)
	_ ledger.SettingsStore = (*Store)(nil)
	_ ledger.Tx            = (*txStore)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every new connection to ":memory:" is a fresh empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		card_no TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		phone TEXT NOT NULL UNIQUE,
		tier TEXT NOT NULL DEFAULT 'Normal',
		balance TEXT NOT NULL DEFAULT '0',
		points INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_created_at
		ON members(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_members_points
		ON members(points DESC);

	-- Consume ledger (append-only)
	CREATE TABLE IF NOT EXISTS consume_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		pay_type TEXT NOT NULL DEFAULT '',
		remark TEXT NOT NULL DEFAULT '',
		points_awarded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_consume_member
		ON consume_records(member_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_consume_created_at
		ON consume_records(created_at);

	-- Recharge ledger (append-only)
	CREATE TABLE IF NOT EXISTS recharge_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		pay_type TEXT NOT NULL DEFAULT '',
		remark TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_recharge_member
		ON recharge_records(member_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_recharge_created_at
		ON recharge_records(created_at);

	-- Settings singleton
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		shop_name TEXT NOT NULL DEFAULT '',
		shop_address TEXT NOT NULL DEFAULT '',
		shop_phone TEXT NOT NULL DEFAULT '',
		point_rate INTEGER,
		tier_silver_threshold INTEGER,
		tier_gold_threshold INTEGER,
		print_receipt BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const memberColumns = `id, card_no, name, phone, tier, balance, points, created_at`

func scanMember(row scanner) (*ledger.Member, error) {
	var (
		m         ledger.Member
		tier      string
		balance   string
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.CardNo, &m.Name, &m.Phone, &tier, &balance, &m.Points, &createdAt); err != nil {
		return nil, err
	}
	m.Tier = ledger.Tier(tier)
	m.Balance = parseDecimal(balance)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func getMember(ctx context.Context, q queryer, where string, args ...any) (*ledger.Member, error) {
	row := q.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM members WHERE "+where+" ORDER BY id LIMIT 1", args...)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	return m, nil
}

func exists(ctx context.Context, q queryer, query string, args ...any) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// MEMBER READS (ledger.Store)
// =============================================================================

// Member returns the member with id, or nil.
func (s *Store) Member(ctx context.Context, id int64) (*ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getMember(ctx, s.db, "id = ?", id)
}

// FindByPhoneOrCard matches keyword exactly against phone or card_no.
func (s *Store) FindByPhoneOrCard(ctx context.Context, keyword string) (*ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getMember(ctx, s.db, "phone = ? OR card_no = ?", keyword, keyword)
}

// ListMembers returns all members in the requested order.
func (s *Store) ListMembers(ctx context.Context, order ledger.MemberOrder) ([]ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orderBy := "created_at DESC, id DESC"
	if order == ledger.OrderByPointsDesc {
		orderBy = "points DESC, created_at DESC, id DESC"
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+memberColumns+" FROM members ORDER BY "+orderBy)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []ledger.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// =============================================================================
// LEDGER READS (ledger.Store)
// =============================================================================

const (
	consumeColumns  = `id, member_id, amount, pay_type, remark, points_awarded, created_at`
	rechargeColumns = `id, member_id, amount, pay_type, remark, created_at`
)

// ConsumeRecords returns a member's consume rows, newest first.
func (s *Store) ConsumeRecords(ctx context.Context, memberID int64) ([]ledger.ConsumeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryConsumes(ctx,
		"SELECT "+consumeColumns+" FROM consume_records WHERE member_id = ? ORDER BY created_at DESC, id DESC",
		memberID)
}

// RechargeRecords returns a member's recharge rows, newest first.
func (s *Store) RechargeRecords(ctx context.Context, memberID int64) ([]ledger.RechargeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecharges(ctx,
		"SELECT "+rechargeColumns+" FROM recharge_records WHERE member_id = ? ORDER BY created_at DESC, id DESC",
		memberID)
}

// ConsumeRecordsBetween returns consume rows in [from, to).
func (s *Store) ConsumeRecordsBetween(ctx context.Context, from, to time.Time) ([]ledger.ConsumeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryConsumes(ctx,
		"SELECT "+consumeColumns+" FROM consume_records WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC, id ASC",
		formatTime(from), formatTime(to))
}

// RechargeRecordsBetween returns recharge rows in [from, to).
func (s *Store) RechargeRecordsBetween(ctx context.Context, from, to time.Time) ([]ledger.RechargeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecharges(ctx,
		"SELECT "+rechargeColumns+" FROM recharge_records WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC, id ASC",
		formatTime(from), formatTime(to))
}

func (s *Store) queryConsumes(ctx context.Context, query string, args ...any) ([]ledger.ConsumeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consume records: %w", err)
	}
	defer rows.Close()

	var records []ledger.ConsumeRecord
	for rows.Next() {
		var (
			r         ledger.ConsumeRecord
			amount    string
			payType   string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.MemberID, &amount, &payType, &r.Remark, &r.PointsAwarded, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan consume record: %w", err)
		}
		r.Amount = parseDecimal(amount)
		r.PayType = ledger.PayType(payType)
		r.CreatedAt = parseTime(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) queryRecharges(ctx context.Context, query string, args ...any) ([]ledger.RechargeRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recharge records: %w", err)
	}
	defer rows.Close()

	var records []ledger.RechargeRecord
	for rows.Next() {
		var (
			r         ledger.RechargeRecord
			amount    string
			payType   string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.MemberID, &amount, &payType, &r.Remark, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan recharge record: %w", err)
		}
		r.Amount = parseDecimal(amount)
		r.PayType = ledger.PayType(payType)
		r.CreatedAt = parseTime(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.Tx)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore only ever touches the open *sql.Tx; calling back into Store
// would deadlock on the mutex (and on the single ":memory:" connection).
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Settings(ctx context.Context) (ledger.Settings, error) {
	return loadSettings(ctx, ts.tx)
}

func (ts *txStore) Member(ctx context.Context, id int64) (*ledger.Member, error) {
	return getMember(ctx, ts.tx, "id = ?", id)
}

func (ts *txStore) PhoneExists(ctx context.Context, phone string) (bool, error) {
	return exists(ctx, ts.tx, "SELECT COUNT(*) FROM members WHERE phone = ?", phone)
}

func (ts *txStore) CardExists(ctx context.Context, cardNo string) (bool, error) {
	return exists(ctx, ts.tx, "SELECT COUNT(*) FROM members WHERE card_no = ?", cardNo)
}

func (ts *txStore) InsertMember(ctx context.Context, m *ledger.Member) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO members (card_no, name, phone, tier, balance, points, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.CardNo, m.Name, m.Phone, string(m.Tier),
		m.Balance.String(), m.Points, formatTime(m.CreatedAt),
	)
	if err != nil {
		if conflict := uniqueConflict(err, m); conflict != nil {
			return conflict
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}

	m.ID, err = res.LastInsertId()
	return err
}

func (ts *txStore) DeleteMember(ctx context.Context, id int64) error {
	if _, err := ts.tx.ExecContext(ctx, "DELETE FROM members WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

// AddPoints checks the new total in Go before writing it. SQLite turns an
// overflowing points + ? into a REAL, so the column is never trusted to wrap.
func (ts *txStore) AddPoints(ctx context.Context, memberID, delta int64) (int64, error) {
	var current int64
	if err := ts.tx.QueryRowContext(ctx,
		"SELECT points FROM members WHERE id = ?", memberID,
	).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read points: %w", err)
	}

	total, ok := ledger.AddPoints(current, delta)
	if !ok {
		return 0, &ledger.ValidationError{Field: "points", Reason: "points total out of range"}
	}
	if _, err := ts.tx.ExecContext(ctx,
		"UPDATE members SET points = ? WHERE id = ?", total, memberID,
	); err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	return total, nil
}

// AddBalance reads and rewrites the decimal balance. Safe because the
// transaction already holds the write lock (BEGIN IMMEDIATE).
func (ts *txStore) AddBalance(ctx context.Context, memberID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var current string
	if err := ts.tx.QueryRowContext(ctx,
		"SELECT balance FROM members WHERE id = ?", memberID,
	).Scan(&current); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}

	balance := parseDecimal(current).Add(amount)
	if _, err := ts.tx.ExecContext(ctx,
		"UPDATE members SET balance = ? WHERE id = ?", balance.String(), memberID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	return balance, nil
}

func (ts *txStore) SetTier(ctx context.Context, memberID int64, tier ledger.Tier) error {
	if _, err := ts.tx.ExecContext(ctx,
		"UPDATE members SET tier = ? WHERE id = ?", string(tier), memberID,
	); err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}
	return nil
}

func (ts *txStore) InsertConsume(ctx context.Context, r *ledger.ConsumeRecord) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO consume_records (member_id, amount, pay_type, remark, points_awarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.MemberID, r.Amount.String(), string(r.PayType), r.Remark, r.PointsAwarded, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert consume record: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (ts *txStore) InsertRecharge(ctx context.Context, r *ledger.RechargeRecord) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO recharge_records (member_id, amount, pay_type, remark, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		r.MemberID, r.Amount.String(), string(r.PayType), r.Remark, formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert recharge record: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// =============================================================================
// SETTINGS STORE (ledger.SettingsStore)
// =============================================================================

// Settings returns the stored settings. Missing row or NULL columns fall
// back to ledger.DefaultSettings values.
func (s *Store) Settings(ctx context.Context) (ledger.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadSettings(ctx, s.db)
}

func loadSettings(ctx context.Context, q queryer) (ledger.Settings, error) {
	var (
		out       = ledger.DefaultSettings()
		rate      sql.NullInt64
		silver    sql.NullInt64
		gold      sql.NullInt64
		updatedAt sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT shop_name, shop_address, shop_phone, point_rate,
		       tier_silver_threshold, tier_gold_threshold, print_receipt, updated_at
		FROM settings WHERE id = 1
	`).Scan(&out.ShopName, &out.ShopAddress, &out.ShopPhone, &rate,
		&silver, &gold, &out.PrintReceipt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DefaultSettings(), nil
	}
	if err != nil {
		return ledger.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	if rate.Valid && rate.Int64 >= 1 {
		out.PointRate = rate.Int64
	}
	if silver.Valid {
		out.SilverThreshold = silver.Int64
	}
	if gold.Valid {
		out.GoldThreshold = gold.Int64
	}
	if updatedAt.Valid {
		out.UpdatedAt = parseTime(updatedAt.String)
	}
	return out, nil
}

// SaveSettings upserts the singleton row.
func (s *Store) SaveSettings(ctx context.Context, st ledger.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO settings (id, shop_name, shop_address, shop_phone, point_rate,
		                      tier_silver_threshold, tier_gold_threshold, print_receipt, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shop_name = excluded.shop_name,
			shop_address = excluded.shop_address,
			shop_phone = excluded.shop_phone,
			point_rate = excluded.point_rate,
			tier_silver_threshold = excluded.tier_silver_threshold,
			tier_gold_threshold = excluded.tier_gold_threshold,
			print_receipt = excluded.print_receipt,
			updated_at = excluded.updated_at
	`

	updatedAt := st.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		st.ShopName, st.ShopAddress, st.ShopPhone, st.PointRate,
		st.SilverThreshold, st.GoldThreshold, st.PrintReceipt, formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// HasSettings reports whether the settings row has ever been written.
func (s *Store) HasSettings(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return exists(ctx, s.db, "SELECT COUNT(*) FROM settings WHERE id = 1")
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo) in one transaction, so a failed
// reset leaves the previous data in place.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"consume_records", "recharge_records", "members", "settings"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// uniqueConflict maps a UNIQUE violation on members to a ConflictError.
// Only reachable if another writer inserted between the existence checks
// and the insert, which WithTx already prevents within one process.
func uniqueConflict(err error, m *ledger.Member) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}
	if strings.Contains(sqliteErr.Error(), "members.phone") {
		return &ledger.ConflictError{Field: "phone", Value: m.Phone}
	}
	return &ledger.ConflictError{Field: "card_no", Value: m.CardNo}
}
