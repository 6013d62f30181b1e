/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.Store, ledger.TxStore,
  ledger.CatalogStore, ledger.ReconciliationStore, ledger.AuditLog) using
  SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The entry store enforces append-only semantics:
  - No UPDATE statements on inventory_transactions
  - No DELETE statements on inventory_transactions
  - Corrections via offsetting adjustment entries only

KEY TABLES:
  magazines:                  Storage locations with net-weight caps
  products:                   Explosives catalog with compatibility groups
  inventory_transactions:     Immutable ledger of all stock movements
  inventory_reconciliations:  Physical-count records
  audit_logs:                 Append-only who-did-what record

DELETION RULES:
  Magazines and products referenced by ledger entries cannot be deleted
  (ErrReferentialIntegrity); they are archived instead. The history must
  stay replayable forever.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/magtrack.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/ledger.go: Higher-level ledger using Store
  - ledger/store/memory.go: In-memory implementation for testing
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

	"github.com/warp/magtrack/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
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
	-- Magazines (storage locations)
	CREATE TABLE IF NOT EXISTS magazines (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		max_net_explosive_weight_kg TEXT NOT NULL,
		notes TEXT,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Products (explosives catalog)
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		un_number TEXT NOT NULL UNIQUE,
		description TEXT,
		compatibility_group TEXT NOT NULL,
		explosive_type TEXT NOT NULL,
		unit TEXT NOT NULL,
		net_explosive_weight_per_unit_kg TEXT NOT NULL,
		manufacturer TEXT,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Inventory transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS inventory_transactions (
		id TEXT PRIMARY KEY,
		transaction_date TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN (
			'Receipt', 'Issue', 'TransferOut', 'TransferIn',
			'AdjustIncrease', 'AdjustDecrease', 'Destruction')),
		magazine_from_id TEXT,
		magazine_to_id TEXT,
		product_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		reference_number TEXT NOT NULL,
		authorization_number TEXT NOT NULL,
		notes TEXT,
		entered_by_user_id TEXT NOT NULL,
		attachments_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON inventory_transactions(transaction_date);
	CREATE INDEX IF NOT EXISTS idx_transactions_product
		ON inventory_transactions(product_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_magazine_from
		ON inventory_transactions(magazine_from_id) WHERE magazine_from_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_magazine_to
		ON inventory_transactions(magazine_to_id) WHERE magazine_to_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON inventory_transactions(entered_by_user_id);

	-- Reconciliations (physical-count records)
	CREATE TABLE IF NOT EXISTS inventory_reconciliations (
		id TEXT PRIMARY KEY,
		reconciliation_date TEXT NOT NULL,
		magazine_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		physical_count TEXT NOT NULL,
		system_count_at_time TEXT NOT NULL,
		variance TEXT NOT NULL,
		variance_reason TEXT,
		entered_by_user_id TEXT NOT NULL,
		attachments_json TEXT,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_by_user_id TEXT,
		resolution_notes TEXT,
		resolved_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reconciliations_magazine_product
		ON inventory_reconciliations(magazine_id, product_id);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_resolved
		ON inventory_reconciliations(resolved);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_date
		ON inventory_reconciliations(reconciliation_date);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_actor
		ON audit_logs(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_logs(entity, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp
		ON audit_logs(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer abstracts *sql.DB and *sql.Tx for the write paths.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const entryColumns = `id, transaction_date, type, magazine_from_id, magazine_to_id,
	       product_id, quantity, reference_number, authorization_number,
	       notes, entered_by_user_id, attachments_json, created_at`

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEntry(ctx, s.db, e)
}

func (s *Store) appendEntry(ctx context.Context, db execer, e ledger.Entry) error {
	attachmentsJSON, _ := json.Marshal(e.Attachments)

	query := `
		INSERT INTO inventory_transactions
		(id, transaction_date, type, magazine_from_id, magazine_to_id, product_id,
		 quantity, reference_number, authorization_number, notes, entered_by_user_id,
		 attachments_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(e.ID),
		e.OccurredAt.Format(time.RFC3339),
		string(e.Type),
		nullString(string(e.FromMagazine)),
		nullString(string(e.ToMagazine)),
		string(e.ProductID),
		e.Quantity.String(),
		e.ReferenceNumber,
		e.AuthorizationNumber,
		e.Notes,
		e.EnteredBy,
		string(attachmentsJSON),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, es []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range es {
		if err := s.appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// EntriesByPair returns all entries touching (magazine, product) in order.
func (s *Store) EntriesByPair(ctx context.Context, m ledger.MagazineID, p ledger.ProductID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE product_id = ? AND (magazine_from_id = ? OR magazine_to_id = ?)
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return s.queryEntries(ctx, s.db, query, string(p), string(m), string(m))
}

// EntriesByMagazine returns all entries touching a magazine on either side.
func (s *Store) EntriesByMagazine(ctx context.Context, m ledger.MagazineID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE magazine_from_id = ? OR magazine_to_id = ?
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return s.queryEntries(ctx, s.db, query, string(m), string(m))
}

// EntriesByProduct returns all entries for a product across magazines.
func (s *Store) EntriesByProduct(ctx context.Context, p ledger.ProductID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE product_id = ?
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return s.queryEntries(ctx, s.db, query, string(p))
}

// EntriesInRange returns entries with transaction_date in [from, to].
func (s *Store) EntriesInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return s.queryEntries(ctx, s.db, query,
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

// Entries returns the full ledger, newest first.
func (s *Store) Entries(ctx context.Context) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		ORDER BY transaction_date DESC, created_at DESC, rowid DESC
	`
	return s.queryEntries(ctx, s.db, query)
}

// GetEntry returns one entry, or nil if absent.
func (s *Store) GetEntry(ctx context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE id = ?
	`
	entries, err := s.queryEntries(ctx, s.db, query, string(id))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// queryer abstracts *sql.DB and *sql.Tx for the read paths.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) queryEntries(ctx context.Context, db queryer, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e               ledger.Entry
		id              string
		occurredAt      string
		txType          string
		fromMagazine    sql.NullString
		toMagazine      sql.NullString
		productID       string
		quantity        string
		notes           sql.NullString
		attachmentsJSON sql.NullString
		createdAt       string
	)

	err := rows.Scan(
		&id, &occurredAt, &txType, &fromMagazine, &toMagazine, &productID,
		&quantity, &e.ReferenceNumber, &e.AuthorizationNumber,
		&notes, &e.EnteredBy, &attachmentsJSON, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ID = ledger.EntryID(id)
	e.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt)
	e.Type = ledger.TxType(txType)
	e.FromMagazine = ledger.MagazineID(fromMagazine.String)
	e.ToMagazine = ledger.MagazineID(toMagazine.String)
	e.ProductID = ledger.ProductID(productID)
	e.Quantity = mustDecimal(quantity)
	e.Notes = notes.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if attachmentsJSON.Valid && attachmentsJSON.String != "" {
		json.Unmarshal([]byte(attachmentsJSON.String), &e.Attachments)
	}

	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txStore{tx: sqlTx, parent: s}
	if err := fn(view); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, e ledger.Entry) error {
	return ts.parent.appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) AppendBatch(ctx context.Context, es []ledger.Entry) error {
	for _, e := range es {
		if err := ts.parent.appendEntry(ctx, ts.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) EntriesByPair(ctx context.Context, m ledger.MagazineID, p ledger.ProductID) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE product_id = ? AND (magazine_from_id = ? OR magazine_to_id = ?)
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return ts.parent.queryEntries(ctx, ts.tx, query, string(p), string(m), string(m))
}

func (ts *txStore) EntriesByMagazine(ctx context.Context, m ledger.MagazineID) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE magazine_from_id = ? OR magazine_to_id = ?
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return ts.parent.queryEntries(ctx, ts.tx, query, string(m), string(m))
}

func (ts *txStore) EntriesByProduct(ctx context.Context, p ledger.ProductID) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE product_id = ?
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return ts.parent.queryEntries(ctx, ts.tx, query, string(p))
}

func (ts *txStore) EntriesInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date ASC, created_at ASC, rowid ASC
	`
	return ts.parent.queryEntries(ctx, ts.tx, query,
		from.Format(time.RFC3339), to.Format(time.RFC3339))
}

func (ts *txStore) Entries(ctx context.Context) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		ORDER BY transaction_date DESC, created_at DESC, rowid DESC
	`
	return ts.parent.queryEntries(ctx, ts.tx, query)
}

func (ts *txStore) GetEntry(ctx context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM inventory_transactions
		WHERE id = ?
	`
	entries, err := ts.parent.queryEntries(ctx, ts.tx, query, string(id))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (ts *txStore) SaveReconciliation(ctx context.Context, r ledger.Reconciliation) error {
	return saveReconciliation(ctx, ts.tx, r)
}

func (ts *txStore) GetReconciliation(ctx context.Context, id ledger.ReconciliationID) (*ledger.Reconciliation, error) {
	return ts.parent.getReconciliation(ctx, ts.tx, id)
}

func (ts *txStore) ListReconciliations(ctx context.Context, f ledger.ReconciliationFilter) ([]ledger.Reconciliation, error) {
	return ts.parent.listReconciliations(ctx, ts.tx, f)
}

func (ts *txStore) HasUnresolved(ctx context.Context, m ledger.MagazineID, p ledger.ProductID) (bool, error) {
	recs, err := ts.parent.listReconciliations(ctx, ts.tx, ledger.ReconciliationFilter{
		MagazineID: &m, ProductID: &p, UnresolvedOnly: true,
	})
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

func (ts *txStore) MarkResolved(ctx context.Context, id ledger.ReconciliationID, resolvedBy, notes string, at time.Time) error {
	return markResolved(ctx, ts.tx, id, resolvedBy, notes, at)
}

// =============================================================================
// CATALOG STORE (ledger.CatalogStore interface)
// =============================================================================

// SaveMagazine inserts a magazine record.
func (s *Store) SaveMagazine(ctx context.Context, m ledger.Magazine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO magazines (id, code, name, location, max_net_explosive_weight_kg,
			notes, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		string(m.ID), m.Code, m.Name, m.Location,
		m.MaxNetWeightKg.String(), m.Notes, m.Archived,
		m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateKeyError{Entity: "magazine", Key: "code", Value: m.Code}
		}
		return fmt.Errorf("failed to save magazine: %w", err)
	}
	return nil
}

// UpdateMagazine updates a magazine record in place.
func (s *Store) UpdateMagazine(ctx context.Context, m ledger.Magazine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE magazines
		SET code = ?, name = ?, location = ?, max_net_explosive_weight_kg = ?,
			notes = ?, archived = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		m.Code, m.Name, m.Location, m.MaxNetWeightKg.String(),
		m.Notes, m.Archived, m.UpdatedAt.Format(time.RFC3339),
		string(m.ID),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateKeyError{Entity: "magazine", Key: "code", Value: m.Code}
		}
		return fmt.Errorf("failed to update magazine: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Entity: "magazine", ID: string(m.ID)}
	}
	return nil
}

// GetMagazine retrieves a magazine by ID, nil if absent.
func (s *Store) GetMagazine(ctx context.Context, id ledger.MagazineID) (*ledger.Magazine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m                  ledger.Magazine
		mid, maxWeight     string
		notes              sql.NullString
		createdAt, updated string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, location, max_net_explosive_weight_kg, notes, archived, created_at, updated_at
		 FROM magazines WHERE id = ?`, string(id),
	).Scan(&mid, &m.Code, &m.Name, &m.Location, &maxWeight, &notes, &m.Archived, &createdAt, &updated)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.ID = ledger.MagazineID(mid)
	m.MaxNetWeightKg = mustDecimal(maxWeight)
	m.Notes = notes.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &m, nil
}

// ListMagazines returns all magazines ordered by code.
func (s *Store) ListMagazines(ctx context.Context) ([]ledger.Magazine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, name, location, max_net_explosive_weight_kg, notes, archived, created_at, updated_at
		 FROM magazines ORDER BY code`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var magazines []ledger.Magazine
	for rows.Next() {
		var (
			m                  ledger.Magazine
			mid, maxWeight     string
			notes              sql.NullString
			createdAt, updated string
		)
		if err := rows.Scan(&mid, &m.Code, &m.Name, &m.Location, &maxWeight, &notes, &m.Archived, &createdAt, &updated); err != nil {
			return nil, err
		}
		m.ID = ledger.MagazineID(mid)
		m.MaxNetWeightKg = mustDecimal(maxWeight)
		m.Notes = notes.String
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		magazines = append(magazines, m)
	}
	return magazines, rows.Err()
}

// DeleteMagazine removes a magazine without ledger history.
func (s *Store) DeleteMagazine(ctx context.Context, id ledger.MagazineID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_transactions WHERE magazine_from_id = ? OR magazine_to_id = ?`,
		string(id), string(id),
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return ledger.ErrReferentialIntegrity
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM magazines WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Entity: "magazine", ID: string(id)}
	}
	return nil
}

// ArchiveMagazine marks a magazine archived; its history stays replayable.
func (s *Store) ArchiveMagazine(ctx context.Context, id ledger.MagazineID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE magazines SET archived = TRUE, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), string(id),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Entity: "magazine", ID: string(id)}
	}
	return nil
}

// SaveProduct inserts a product record.
func (s *Store) SaveProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO products (id, name, un_number, description, compatibility_group,
			explosive_type, unit, net_explosive_weight_per_unit_kg, manufacturer,
			archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		string(p.ID), p.Name, p.UNNumber, p.Description, string(p.Group),
		string(p.ExplosiveType), string(p.Unit), p.NetWeightPerUnitKg.String(),
		p.Manufacturer, p.Archived,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateKeyError{Entity: "product", Key: "un_number", Value: p.UNNumber}
		}
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// UpdateProduct updates a product record in place.
func (s *Store) UpdateProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE products
		SET name = ?, un_number = ?, description = ?, compatibility_group = ?,
			explosive_type = ?, unit = ?, net_explosive_weight_per_unit_kg = ?,
			manufacturer = ?, archived = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		p.Name, p.UNNumber, p.Description, string(p.Group),
		string(p.ExplosiveType), string(p.Unit), p.NetWeightPerUnitKg.String(),
		p.Manufacturer, p.Archived, p.UpdatedAt.Format(time.RFC3339),
		string(p.ID),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateKeyError{Entity: "product", Key: "un_number", Value: p.UNNumber}
		}
		return fmt.Errorf("failed to update product: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Entity: "product", ID: string(p.ID)}
	}
	return nil
}

// GetProduct retrieves a product by ID, nil if absent.
func (s *Store) GetProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getProduct(ctx, id)
}

func (s *Store) getProduct(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	var (
		p                         ledger.Product
		pid, group, etype, unit   string
		netWeight                 string
		description, manufacturer sql.NullString
		createdAt, updatedAt      string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, un_number, description, compatibility_group, explosive_type,
		        unit, net_explosive_weight_per_unit_kg, manufacturer, archived, created_at, updated_at
		 FROM products WHERE id = ?`, string(id),
	).Scan(&pid, &p.Name, &p.UNNumber, &description, &group, &etype, &unit,
		&netWeight, &manufacturer, &p.Archived, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.ID = ledger.ProductID(pid)
	p.Description = description.String
	p.Group = ledger.CompatGroup(group)
	p.ExplosiveType = ledger.ExplosiveType(etype)
	p.Unit = ledger.UnitOfMeasure(unit)
	p.NetWeightPerUnitKg = mustDecimal(netWeight)
	p.Manufacturer = manufacturer.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// ListProducts returns all products ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, un_number, description, compatibility_group, explosive_type,
		        unit, net_explosive_weight_per_unit_kg, manufacturer, archived, created_at, updated_at
		 FROM products ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		var (
			p                         ledger.Product
			pid, group, etype, unit   string
			netWeight                 string
			description, manufacturer sql.NullString
			createdAt, updatedAt      string
		)
		if err := rows.Scan(&pid, &p.Name, &p.UNNumber, &description, &group, &etype, &unit,
			&netWeight, &manufacturer, &p.Archived, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.ID = ledger.ProductID(pid)
		p.Description = description.String
		p.Group = ledger.CompatGroup(group)
		p.ExplosiveType = ledger.ExplosiveType(etype)
		p.Unit = ledger.UnitOfMeasure(unit)
		p.NetWeightPerUnitKg = mustDecimal(netWeight)
		p.Manufacturer = manufacturer.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// DeleteProduct removes a product without ledger history.
func (s *Store) DeleteProduct(ctx context.Context, id ledger.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM inventory_transactions WHERE product_id = ?", string(id),
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return ledger.ErrReferentialIntegrity
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	return nil
}

// ArchiveProduct marks a product archived.
func (s *Store) ArchiveProduct(ctx context.Context, id ledger.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET archived = TRUE, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), string(id),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	return nil
}

// =============================================================================
// RECONCILIATION STORE (ledger.ReconciliationStore interface)
// =============================================================================

func saveReconciliation(ctx context.Context, db execer, r ledger.Reconciliation) error {
	attachmentsJSON, _ := json.Marshal(r.Attachments)

	query := `
		INSERT INTO inventory_reconciliations
		(id, reconciliation_date, magazine_id, product_id, physical_count,
		 system_count_at_time, variance, variance_reason, entered_by_user_id,
		 attachments_json, resolved, resolved_by_user_id, resolution_notes,
		 resolved_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var resolvedAt *string
	if r.ResolvedAt != nil {
		t := r.ResolvedAt.Format(time.RFC3339)
		resolvedAt = &t
	}

	_, err := db.ExecContext(ctx, query,
		string(r.ID),
		r.Date.Format(time.RFC3339),
		string(r.MagazineID),
		string(r.ProductID),
		r.PhysicalCount.String(),
		r.SystemCount.String(),
		r.Variance.String(),
		r.VarianceReason,
		r.EnteredBy,
		string(attachmentsJSON),
		r.Resolved,
		nullString(r.ResolvedBy),
		r.ResolutionNotes,
		resolvedAt,
		r.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save reconciliation: %w", err)
	}
	return nil
}

// SaveReconciliation persists a physical-count record.
func (s *Store) SaveReconciliation(ctx context.Context, r ledger.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveReconciliation(ctx, s.db, r)
}

const reconColumns = `id, reconciliation_date, magazine_id, product_id, physical_count,
	       system_count_at_time, variance, variance_reason, entered_by_user_id,
	       attachments_json, resolved, resolved_by_user_id, resolution_notes,
	       resolved_at, created_at`

// GetReconciliation retrieves a record by ID, nil if absent.
func (s *Store) GetReconciliation(ctx context.Context, id ledger.ReconciliationID) (*ledger.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getReconciliation(ctx, s.db, id)
}

func (s *Store) getReconciliation(ctx context.Context, db queryer, id ledger.ReconciliationID) (*ledger.Reconciliation, error) {
	query := `
		SELECT ` + reconColumns + `
		FROM inventory_reconciliations
		WHERE id = ?
	`
	recs, err := s.queryReconciliations(ctx, db, query, string(id))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// ListReconciliations returns records matching the filter, newest first.
func (s *Store) ListReconciliations(ctx context.Context, f ledger.ReconciliationFilter) ([]ledger.Reconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listReconciliations(ctx, s.db, f)
}

func (s *Store) listReconciliations(ctx context.Context, db queryer, f ledger.ReconciliationFilter) ([]ledger.Reconciliation, error) {
	var conds []string
	var args []any

	if f.MagazineID != nil {
		conds = append(conds, "magazine_id = ?")
		args = append(args, string(*f.MagazineID))
	}
	if f.ProductID != nil {
		conds = append(conds, "product_id = ?")
		args = append(args, string(*f.ProductID))
	}
	if f.UnresolvedOnly {
		conds = append(conds, "resolved = FALSE")
	}
	if f.From != nil {
		conds = append(conds, "reconciliation_date >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		conds = append(conds, "reconciliation_date <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	query := "SELECT " + reconColumns + " FROM inventory_reconciliations"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY reconciliation_date DESC, created_at DESC"

	return s.queryReconciliations(ctx, db, query, args...)
}

func (s *Store) queryReconciliations(ctx context.Context, db queryer, query string, args ...any) ([]ledger.Reconciliation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliations: %w", err)
	}
	defer rows.Close()

	var recs []ledger.Reconciliation
	for rows.Next() {
		var (
			r                          ledger.Reconciliation
			id, date, magID, prodID    string
			physical, system, variance string
			reason, resolvedBy, notes  sql.NullString
			attachmentsJSON            sql.NullString
			resolvedAt                 sql.NullString
			createdAt                  string
		)
		if err := rows.Scan(&id, &date, &magID, &prodID, &physical, &system, &variance,
			&reason, &r.EnteredBy, &attachmentsJSON, &r.Resolved, &resolvedBy,
			&notes, &resolvedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}

		r.ID = ledger.ReconciliationID(id)
		r.Date, _ = time.Parse(time.RFC3339, date)
		r.MagazineID = ledger.MagazineID(magID)
		r.ProductID = ledger.ProductID(prodID)
		r.PhysicalCount = mustDecimal(physical)
		r.SystemCount = mustDecimal(system)
		r.Variance = mustDecimal(variance)
		r.VarianceReason = reason.String
		r.ResolvedBy = resolvedBy.String
		r.ResolutionNotes = notes.String
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if attachmentsJSON.Valid && attachmentsJSON.String != "" {
			json.Unmarshal([]byte(attachmentsJSON.String), &r.Attachments)
		}
		if resolvedAt.Valid {
			t, _ := time.Parse(time.RFC3339, resolvedAt.String)
			r.ResolvedAt = &t
		}

		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// HasUnresolved reports whether an unresolved record exists for the pair.
func (s *Store) HasUnresolved(ctx context.Context, m ledger.MagazineID, p ledger.ProductID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_reconciliations
		 WHERE magazine_id = ? AND product_id = ? AND resolved = FALSE`,
		string(m), string(p),
	).Scan(&count)
	return count > 0, err
}

func markResolved(ctx context.Context, db execer, id ledger.ReconciliationID, resolvedBy, notes string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE inventory_reconciliations
		 SET resolved = TRUE, resolved_by_user_id = ?, resolution_notes = ?, resolved_at = ?
		 WHERE id = ? AND resolved = FALSE`,
		resolvedBy, notes, at.Format(time.RFC3339), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to resolve reconciliation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either the record is absent or it is already resolved.
		return ledger.ErrAlreadyResolved
	}
	return nil
}

// MarkResolved transitions a record to resolved.
func (s *Store) MarkResolved(ctx context.Context, id ledger.ReconciliationID, resolvedBy, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return markResolved(ctx, s.db, id, resolvedBy, notes, at)
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

// AppendAudit adds an audit entry.
func (s *Store) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detailsJSON, _ := json.Marshal(e.Details)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, timestamp, actor_id, action, entity, entity_id, details_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.Format(time.RFC3339), e.ActorID,
		string(e.Action), e.Entity, e.EntityID, string(detailsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns audit entries matching the filter, newest first.
func (s *Store) QueryAudit(ctx context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any

	if f.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.Entity != nil {
		conds = append(conds, "entity = ?")
		args = append(args, *f.Entity)
	}
	if f.EntityID != nil {
		conds = append(conds, "entity_id = ?")
		args = append(args, *f.EntityID)
	}
	if len(f.Actions) > 0 {
		placeholders := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.From != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	query := "SELECT id, timestamp, actor_id, action, entity, entity_id, details_json FROM audit_logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e           ledger.AuditEntry
			timestamp   string
			action      string
			detailsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &timestamp, &e.ActorID, &action, &e.Entity, &e.EntityID, &detailsJSON); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
		e.Action = ledger.AuditAction(action)
		if detailsJSON.Valid && detailsJSON.String != "" {
			json.Unmarshal([]byte(detailsJSON.String), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"inventory_transactions", "inventory_reconciliations", "audit_logs", "products", "magazines"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
