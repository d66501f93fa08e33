/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface (ledger.Store, booking.TicketStore,
  booking.GroupStore, booking.AgencyStore, booking.Transactor) on one SQLite
  database. The SQL stays portable to PostgreSQL apart from the placeholders.

KEY TABLES:
  transactions:    Ledger entries. Slot identity is (booking_kind, booking_id,
                   traveler_id, slot_kind, slot_at), never a string key
  tickets:         Ticket documents (doc_json) plus indexed columns
  group_bookings:  Event, organized travel and hotel reservation documents
  agencies:        Tenants

INDEXES:
  - idx_transactions_slot: Slot lookups (hot path of every reconciliation)
  - idx_transactions_created_at: Reporting queries, newest first
  - idx_transactions_agency_status: Debt summaries

TRANSACTIONS:
  InTx begins a *sql.Tx and places it in the context. Every store call made
  with that context runs on the transaction, so a booking write and its
  ledger writes commit or roll back together.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. InTx holds the write lock for its
  whole duration; calls made inside it do not lock again.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block the
  single writer and crash recovery is better.

USAGE:
  store, err := sqlite.New("./data/travel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store, ledger.WithAgencies(store))

SEE ALSO:
  - ledger/store.go: Ledger store contract
  - booking/store.go: Document store contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/travel-ledger/booking"
	"github.com/warp/travel-ledger/ledger"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per connection and InTx
	// relies on a single writer.
	db.SetMaxOpenConns(1)

	store, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB wraps an open database and migrates the schema.
func NewWithDB(db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		booking_kind TEXT NOT NULL,
		booking_id TEXT NOT NULL,
		traveler_id TEXT NOT NULL DEFAULT '',
		slot_kind TEXT NOT NULL,
		slot_at INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		status TEXT NOT NULL,
		agency_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_slot
		ON transactions(booking_kind, booking_id, traveler_id, slot_kind, slot_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		ON transactions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_agency_status
		ON transactions(agency_id, tx_type, status);

	-- Tickets
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		ticket_type TEXT NOT NULL,
		agency_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		booking_reference TEXT NOT NULL DEFAULT '',
		original_booking_reference TEXT NOT NULL DEFAULT '',
		departure_date TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_agency
		ON tickets(agency_id, ticket_type, deleted);
	CREATE INDEX IF NOT EXISTS idx_tickets_reference
		ON tickets(booking_reference);
	CREATE INDEX IF NOT EXISTS idx_tickets_original_reference
		ON tickets(original_booking_reference);

	-- Group bookings (event, organized travel, hotel reservation)
	CREATE TABLE IF NOT EXISTS group_bookings (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		kind TEXT NOT NULL,
		agency_id TEXT NOT NULL,
		departure_date TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_group_bookings_kind
		ON group_bookings(kind, agency_id, deleted);

	-- Agencies
	CREATE TABLE IF NOT EXISTS agencies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONNECTIONS AND TRANSACTIONS (booking.Transactor interface)
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// acquire returns the connection for ctx and the matching unlock. Inside
// InTx it returns the open transaction without locking.
func (s *Store) acquire(ctx context.Context, write bool) (querier, func()) {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx, func() {}
	}
	if write {
		s.mu.Lock()
		return s.db, s.mu.Unlock
	}
	s.mu.RLock()
	return s.db, s.mu.RUnlock
}

// InTx executes fn within a database transaction. Nested calls join the
// outer transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

const txColumns = `id, booking_kind, booking_id, traveler_id, slot_kind, slot_at, amount, currency, tx_type, status, agency_id, user_id, description, created_at, updated_at`

const slotWhere = `booking_kind = ? AND booking_id = ? AND traveler_id = ? AND slot_kind = ? AND slot_at = ?`

func slotArgs(ref ledger.BookingRef, slot ledger.Slot) []any {
	return []any{string(ref.Kind), ref.ID, slot.TravelerID, string(slot.Kind), slot.At}
}

// Insert persists a new ledger entry.
func (s *Store) Insert(ctx context.Context, tx ledger.Transaction) error {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	query := `INSERT INTO transactions (` + txColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.Ref.Kind),
		tx.Ref.ID,
		tx.Slot.TravelerID,
		string(tx.Slot.Kind),
		tx.Slot.At,
		tx.Amount.Value.String(),
		string(tx.Amount.Currency),
		string(tx.Type),
		string(tx.Status),
		tx.AgencyID,
		tx.UserID,
		tx.Description,
		formatTime(tx.CreatedAt),
		formatTime(tx.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id ledger.TransactionID) (*ledger.Transaction, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	txs, err := queryTransactions(ctx, db, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, string(id))
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

func (s *Store) FindSlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot) (*ledger.Transaction, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()
	return findSlot(ctx, db, ref, slot)
}

func findSlot(ctx context.Context, db querier, ref ledger.BookingRef, slot ledger.Slot) (*ledger.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + slotWhere + `
		ORDER BY created_at DESC, rowid DESC LIMIT 1`
	txs, err := queryTransactions(ctx, db, query, slotArgs(ref, slot)...)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

// UpdateSlot patches the newest entry at the slot.
func (s *Store) UpdateSlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot, patch ledger.Patch) (*ledger.Transaction, error) {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	tx, err := findSlot(ctx, db, ref, slot)
	if err != nil || tx == nil {
		return nil, err
	}
	patch.Apply(tx)

	_, err = db.ExecContext(ctx,
		`UPDATE transactions SET amount = ?, currency = ?, tx_type = ?, status = ?, description = ?, updated_at = ? WHERE id = ?`,
		tx.Amount.Value.String(), string(tx.Amount.Currency), string(tx.Type), string(tx.Status), tx.Description, formatTime(tx.UpdatedAt), string(tx.ID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) DeleteSlot(ctx context.Context, ref ledger.BookingRef, slot ledger.Slot) (bool, error) {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	n, err := execCount(ctx, db, `DELETE FROM transactions WHERE `+slotWhere, slotArgs(ref, slot)...)
	return n > 0, err
}

func (s *Store) DeleteBooking(ctx context.Context, ref ledger.BookingRef) (int, error) {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	n, err := execCount(ctx, db, `DELETE FROM transactions WHERE booking_kind = ? AND booking_id = ?`, string(ref.Kind), ref.ID)
	return int(n), err
}

// Query returns entries matching filter, newest first.
func (s *Store) Query(ctx context.Context, filter ledger.Filter) ([]ledger.Transaction, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		where = append(where, cond)
		args = append(args, arg)
	}
	if filter.Type != "" {
		add("tx_type = ?", string(filter.Type))
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.AgencyID != "" {
		add("agency_id = ?", filter.AgencyID)
	}
	if filter.UserID != "" {
		add("user_id = ?", filter.UserID)
	}
	if filter.Ref != nil {
		add("booking_kind = ?", string(filter.Ref.Kind))
		add("booking_id = ?", filter.Ref.ID)
	}
	start, end := filter.Bounds()
	if start != nil {
		add("created_at >= ?", formatTime(*start))
	}
	if end != nil {
		add("created_at < ?", formatTime(*end))
	}

	query := `SELECT ` + txColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return queryTransactions(ctx, db, query, args...)
}

func queryTransactions(ctx context.Context, db querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx        ledger.Transaction
		id        string
		kind      string
		slotKind  string
		amount    string
		currency  string
		txType    string
		status    string
		createdAt string
		updatedAt string
	)

	err := rows.Scan(
		&id, &kind, &tx.Ref.ID, &tx.Slot.TravelerID, &slotKind, &tx.Slot.At,
		&amount, &currency, &txType, &status, &tx.AgencyID, &tx.UserID, &tx.Description,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("transaction %s has a malformed amount %q: %w", id, amount, err)
	}
	tx.ID = ledger.TransactionID(id)
	tx.Ref.Kind = ledger.BookingKind(kind)
	tx.Slot.Kind = ledger.SlotKind(slotKind)
	tx.Amount = ledger.Amount{Value: value, Currency: ledger.Currency(currency)}
	tx.Type = ledger.TransactionType(txType)
	tx.Status = ledger.TransactionStatus(status)
	tx.CreatedAt = parseTime(createdAt)
	tx.UpdatedAt = parseTime(updatedAt)
	return tx, nil
}

// =============================================================================
// TICKET STORE (booking.TicketStore interface)
// =============================================================================

// SaveTicket inserts or replaces a ticket document.
func (s *Store) SaveTicket(ctx context.Context, t booking.Ticket) error {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode ticket: %w", err)
	}

	query := `
		INSERT INTO tickets
		(id, uid, ticket_type, agency_id, status, payment_status, booking_reference,
		 original_booking_reference, departure_date, deleted, doc_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payment_status = excluded.payment_status,
			booking_reference = excluded.booking_reference,
			original_booking_reference = excluded.original_booking_reference,
			departure_date = excluded.departure_date,
			deleted = excluded.deleted,
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		t.ID, t.UID, string(t.Type), t.AgencyID, string(t.Status), string(t.PaymentStatus.Normalize()),
		t.BookingReference, t.OriginalBookingReference, formatTime(t.DepartureDate), t.Deleted,
		string(doc), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save ticket: %w", err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*booking.Ticket, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	var doc string
	err := db.QueryRowContext(ctx, `SELECT doc_json FROM tickets WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	var t booking.Ticket
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("failed to decode ticket %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) FindTicketsByReference(ctx context.Context, reference string) ([]booking.Ticket, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	return queryDocs[booking.Ticket](ctx, db, `
		SELECT doc_json FROM tickets
		WHERE deleted = 0 AND (booking_reference = ? OR original_booking_reference = ?)
		ORDER BY created_at DESC, id ASC`, reference, reference)
}

// ListTickets filters on the indexed columns in SQL and applies the rest
// of the filter (search) in memory before paging.
func (s *Store) ListTickets(ctx context.Context, filter booking.TicketFilter) ([]booking.Ticket, int, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if filter.Type != "" {
		where, args = append(where, "ticket_type = ?"), append(args, string(filter.Type))
	}
	if filter.AgencyID != "" {
		where, args = append(where, "agency_id = ?"), append(args, filter.AgencyID)
	}
	if filter.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(filter.Status))
	}

	query := `SELECT doc_json FROM tickets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	all, err := queryDocs[booking.Ticket](ctx, db, query, args...)
	if err != nil {
		return nil, 0, err
	}
	matched := all[:0]
	for i := range all {
		if filter.MatchesTicket(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	start, end := booking.Page(len(matched), filter.Offset, filter.Limit)
	return matched[start:end], len(matched), nil
}

// =============================================================================
// GROUP STORE (booking.GroupStore interface)
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g booking.GroupBooking) error {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode booking: %w", err)
	}

	query := `
		INSERT INTO group_bookings
		(id, uid, kind, agency_id, departure_date, deleted, doc_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			departure_date = excluded.departure_date,
			deleted = excluded.deleted,
			doc_json = excluded.doc_json,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query,
		g.ID, g.UID, string(g.Kind), g.AgencyID, formatTime(g.DepartureDate), g.Deleted,
		string(doc), formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*booking.GroupBooking, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	var doc string
	err := db.QueryRowContext(ctx, `SELECT doc_json FROM group_bookings WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	var g booking.GroupBooking
	if err := json.Unmarshal([]byte(doc), &g); err != nil {
		return nil, fmt.Errorf("failed to decode booking %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) ListGroups(ctx context.Context, filter booking.GroupFilter) ([]booking.GroupBooking, int, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if filter.Kind != "" {
		where, args = append(where, "kind = ?"), append(args, string(filter.Kind))
	}
	if filter.AgencyID != "" {
		where, args = append(where, "agency_id = ?"), append(args, filter.AgencyID)
	}

	query := `SELECT doc_json FROM group_bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	all, err := queryDocs[booking.GroupBooking](ctx, db, query, args...)
	if err != nil {
		return nil, 0, err
	}
	matched := all[:0]
	for i := range all {
		if filter.MatchesGroup(&all[i]) {
			matched = append(matched, all[i])
		}
	}
	start, end := booking.Page(len(matched), filter.Offset, filter.Limit)
	return matched[start:end], len(matched), nil
}

func queryDocs[T any](ctx context.Context, db querier, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var doc T
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// =============================================================================
// AGENCY STORE (booking.AgencyStore, ledger.AgencyDirectory)
// =============================================================================

func (s *Store) SaveAgency(ctx context.Context, a booking.Agency) error {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	_, err := db.ExecContext(ctx, `
		INSERT INTO agencies (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		a.ID, a.Name, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save agency: %w", err)
	}
	return nil
}

func (s *Store) ListAgencies(ctx context.Context) ([]booking.Agency, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM agencies ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agencies: %w", err)
	}
	defer rows.Close()

	var agencies []booking.Agency
	for rows.Next() {
		var (
			a         booking.Agency
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan agency: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		agencies = append(agencies, a)
	}
	return agencies, rows.Err()
}

// AgencyName returns "" when the agency is unknown.
func (s *Store) AgencyName(ctx context.Context, agencyID string) (string, error) {
	db, unlock := s.acquire(ctx, false)
	defer unlock()

	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM agencies WHERE id = ?`, agencyID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get agency: %w", err)
	}
	return name, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	db, unlock := s.acquire(ctx, true)
	defer unlock()

	for _, table := range []string{"transactions", "tickets", "group_bookings", "agencies"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func execCount(ctx context.Context, db querier, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}
