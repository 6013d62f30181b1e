/*
store.go - Persistence interfaces for the inventory ledger

PURPOSE:
  Defines the boundary between the domain logic and the database. The entry
  store is append-only: there is no Update and no Delete on ledger entries,
  ever. Corrections happen through new offsetting entries.

KEY INTERFACES:
  Store:               Entry persistence (append + read-side queries)
  TxStore:             Store plus atomic multi-write transactions
  CatalogStore:        Magazine and product records
  ReconciliationStore: Physical-count records
  AuditLog:            Append-only who-did-what record

ATOMIC BATCHES:
  AppendBatch ensures all-or-nothing semantics. A transfer writes a
  TransferOut and a TransferIn as one batch: either both land or neither.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY STORE - Append-only
// =============================================================================

// Store persists ledger entries. APPEND-ONLY: no Update, no Delete. Ever.
type Store interface {
	// Append persists one entry. The only single-write operation.
	Append(ctx context.Context, e Entry) error

	// AppendBatch persists multiple entries atomically (both-or-neither).
	AppendBatch(ctx context.Context, es []Entry) error

	// EntriesByPair returns all entries touching (magazine, product),
	// ordered by occurrence then creation.
	EntriesByPair(ctx context.Context, m MagazineID, p ProductID) ([]Entry, error)

	// EntriesByMagazine returns all entries touching a magazine on either side.
	EntriesByMagazine(ctx context.Context, m MagazineID) ([]Entry, error)

	// EntriesByProduct returns all entries for a product across magazines.
	EntriesByProduct(ctx context.Context, p ProductID) ([]Entry, error)

	// EntriesInRange returns entries with OccurredAt in [from, to].
	EntriesInRange(ctx context.Context, from, to time.Time) ([]Entry, error)

	// Entries returns the full ledger, newest first.
	Entries(ctx context.Context) ([]Entry, error)

	// GetEntry returns one entry, or nil if absent.
	GetEntry(ctx context.Context, id EntryID) (*Entry, error)
}

// Tx is the storage view inside one transaction: entry appends plus the
// reconciliation writes that must commit atomically with them.
type Tx interface {
	Store
	ReconciliationStore
}

// TxStore wraps Store with transaction support. Used for the transfer pair
// and for reconciliation resolution (adjustment + mark-resolved).
type TxStore interface {
	Store

	// WithTx executes fn within a storage transaction. If fn returns an
	// error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// CATALOG STORE - Magazines and products
// =============================================================================

// CatalogStore persists the magazine and product catalogs.
// Delete methods return ErrReferentialIntegrity when ledger entries
// reference the record; callers must archive instead.
type CatalogStore interface {
	SaveMagazine(ctx context.Context, m Magazine) error // DuplicateKeyError on code collision
	UpdateMagazine(ctx context.Context, m Magazine) error
	GetMagazine(ctx context.Context, id MagazineID) (*Magazine, error) // nil if absent
	ListMagazines(ctx context.Context) ([]Magazine, error)
	DeleteMagazine(ctx context.Context, id MagazineID) error
	ArchiveMagazine(ctx context.Context, id MagazineID) error

	SaveProduct(ctx context.Context, p Product) error // DuplicateKeyError on UN-number collision
	UpdateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error) // nil if absent
	ListProducts(ctx context.Context) ([]Product, error)
	DeleteProduct(ctx context.Context, id ProductID) error
	ArchiveProduct(ctx context.Context, id ProductID) error
}

// =============================================================================
// RECONCILIATION STORE
// =============================================================================

// ReconciliationFilter narrows reconciliation queries.
type ReconciliationFilter struct {
	MagazineID     *MagazineID
	ProductID      *ProductID
	UnresolvedOnly bool
	From           *time.Time
	To             *time.Time
}

// ReconciliationStore persists physical-count records. Records become
// immutable once resolved; MarkResolved is the only mutation.
type ReconciliationStore interface {
	SaveReconciliation(ctx context.Context, r Reconciliation) error
	GetReconciliation(ctx context.Context, id ReconciliationID) (*Reconciliation, error) // nil if absent
	ListReconciliations(ctx context.Context, f ReconciliationFilter) ([]Reconciliation, error)

	// HasUnresolved reports whether an unresolved record exists for the pair.
	HasUnresolved(ctx context.Context, m MagazineID, p ProductID) (bool, error)

	// MarkResolved transitions a record to resolved. Fails with
	// ErrAlreadyResolved if it already is.
	MarkResolved(ctx context.Context, id ReconciliationID, resolvedBy, notes string, at time.Time) error
}

// =============================================================================
// AUDIT LOG - Separate from the ledger, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditTransactionCreated    AuditAction = "transaction_created"
	AuditTransferCreated       AuditAction = "transfer_created"
	AuditReconciliationCreated AuditAction = "reconciliation_created"
	AuditReconciliationResolved AuditAction = "reconciliation_resolved"
	AuditMagazineArchived      AuditAction = "magazine_archived"
	AuditProductArchived       AuditAction = "product_archived"
)

// AuditEntry records who did what when. Best-effort from the core's point
// of view: a failed audit write must never roll back the action it records.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string
	Action    AuditAction
	Entity    string // "transaction", "reconciliation", "magazine", "product"
	EntityID  string
	Details   map[string]any
}

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	QueryAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	ActorID  *string
	Entity   *string
	EntityID *string
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
}
