/*
Package engine implements the transaction engine over the inventory ledger.

PURPOSE:
  The engine is the only write path into the ledger. It wraps every movement
  in the checks the ledger itself does not do: the referenced magazine and
  product must exist, additions must fit the magazine's net-explosive-weight
  cap and its compatibility groups, removals must not overdraw the balance.
  All checks pass BEFORE anything is appended; a rejected operation leaves
  the ledger untouched.

CONCURRENCY:
  A single mutex serializes every check-then-append sequence. Capacity,
  compatibility and stock checks read the ledger, so two concurrent writers
  could otherwise both pass a check that only one of them should. Throughput
  is not a concern at the scale of a licensed magazine site.

FILES:
  engine.go    - Engine, input validation, the seven movement operations
  capacity.go  - Net-explosive-weight accounting
  compat.go    - UN hazard compatibility matrix
  reconcile.go - Physical-count reconciliation workflow
*/
package engine

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/magtrack/ledger"
)

// Authorization numbers are operator-entered and must carry a traceable
// serial, e.g. "AUTH-001".
var authPattern = regexp.MustCompile(`^AUTH-\d{3,}$`)

// Engine validates and records inventory movements.
type Engine struct {
	mu      sync.Mutex
	store   ledger.TxStore
	catalog ledger.CatalogStore
	recons  ledger.ReconciliationStore
	audit   ledger.AuditLog
	ledger  *ledger.DefaultLedger
	log     zerolog.Logger
	now     func() time.Time
}

func New(store ledger.TxStore, catalog ledger.CatalogStore, recons ledger.ReconciliationStore, audit ledger.AuditLog, log zerolog.Logger) *Engine {
	return &Engine{
		store:   store,
		catalog: catalog,
		recons:  recons,
		audit:   audit,
		ledger:  ledger.NewLedger(store),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the read-side balance projection.
func (e *Engine) Ledger() *ledger.DefaultLedger { return e.ledger }

// =============================================================================
// INPUTS
// =============================================================================

// TransactionInput carries the operator-entered fields of a single-magazine
// movement. OccurredAt defaults to now when zero.
type TransactionInput struct {
	OccurredAt          time.Time
	MagazineID          ledger.MagazineID
	ProductID           ledger.ProductID
	Quantity            decimal.Decimal
	ReferenceNumber     string
	AuthorizationNumber string
	Notes               string
	ActorID             string
	Attachments         []string
}

// TransferInput carries the fields of a magazine-to-magazine transfer.
type TransferInput struct {
	OccurredAt          time.Time
	FromMagazineID      ledger.MagazineID
	ToMagazineID        ledger.MagazineID
	ProductID           ledger.ProductID
	Quantity            decimal.Decimal
	ReferenceNumber     string
	AuthorizationNumber string
	Notes               string
	ActorID             string
	Attachments         []string
}

func validateCommon(qty decimal.Decimal, ref, auth, actor string) error {
	if !qty.IsPositive() {
		return &ledger.ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	if ref == "" {
		return &ledger.ValidationError{Field: "reference_number", Message: "reference number is required"}
	}
	if !authPattern.MatchString(auth) {
		return &ledger.ValidationError{Field: "authorization_number", Message: `authorization number must follow format "AUTH-" plus at least three digits`}
	}
	if actor == "" {
		return &ledger.ValidationError{Field: "entered_by_user_id", Message: "acting user is required"}
	}
	return nil
}

func (in TransactionInput) validate() error {
	if in.MagazineID == "" {
		return &ledger.ValidationError{Field: "magazine_id", Message: "magazine is required"}
	}
	if in.ProductID == "" {
		return &ledger.ValidationError{Field: "product_id", Message: "product is required"}
	}
	return validateCommon(in.Quantity, in.ReferenceNumber, in.AuthorizationNumber, in.ActorID)
}

func (in TransferInput) validate() error {
	if in.FromMagazineID == "" || in.ToMagazineID == "" {
		return &ledger.ValidationError{Field: "magazine_id", Message: "source and destination magazines are required"}
	}
	if in.FromMagazineID == in.ToMagazineID {
		return ledger.ErrInvalidTransfer
	}
	if in.ProductID == "" {
		return &ledger.ValidationError{Field: "product_id", Message: "product is required"}
	}
	return validateCommon(in.Quantity, in.ReferenceNumber, in.AuthorizationNumber, in.ActorID)
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (e *Engine) magazine(ctx context.Context, id ledger.MagazineID) (*ledger.Magazine, error) {
	m, err := e.catalog.GetMagazine(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &ledger.NotFoundError{Entity: "magazine", ID: string(id)}
	}
	return m, nil
}

func (e *Engine) product(ctx context.Context, id ledger.ProductID) (*ledger.Product, error) {
	p, err := e.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	return p, nil
}

// =============================================================================
// THE SEVEN MOVEMENTS
// =============================================================================

// Receive records stock arriving from outside the site.
func (e *Engine) Receive(ctx context.Context, in TransactionInput) (*ledger.Entry, error) {
	return e.appendIncrease(ctx, ledger.TxReceipt, in)
}

// AdjustIncrease records a corrective stock increase.
func (e *Engine) AdjustIncrease(ctx context.Context, in TransactionInput) (*ledger.Entry, error) {
	return e.appendIncrease(ctx, ledger.TxAdjustIncrease, in)
}

// Issue records stock leaving the site for use.
func (e *Engine) Issue(ctx context.Context, in TransactionInput) (*ledger.Entry, error) {
	return e.appendDecrease(ctx, ledger.TxIssue, in)
}

// AdjustDecrease records a corrective stock decrease.
func (e *Engine) AdjustDecrease(ctx context.Context, in TransactionInput) (*ledger.Entry, error) {
	return e.appendDecrease(ctx, ledger.TxAdjustDecrease, in)
}

// Destroy records supervised disposal of stock.
func (e *Engine) Destroy(ctx context.Context, in TransactionInput) (*ledger.Entry, error) {
	return e.appendDecrease(ctx, ledger.TxDestruction, in)
}

// appendIncrease is the shared path for stock-adding movements: the
// destination must exist, not be archived, have capacity headroom, and
// accept the product's compatibility group.
func (e *Engine) appendIncrease(ctx context.Context, t ledger.TxType, in TransactionInput) (*ledger.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	mag, err := e.magazine(ctx, in.MagazineID)
	if err != nil {
		return nil, err
	}
	if mag.Archived {
		return nil, &ledger.ValidationError{Field: "magazine_id", Message: "magazine " + mag.Code + " is archived"}
	}
	p, err := e.product(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Archived {
		return nil, &ledger.ValidationError{Field: "product_id", Message: "product " + p.Name + " is archived"}
	}

	if err := e.checkCapacity(ctx, mag, p, in.Quantity); err != nil {
		return nil, err
	}
	if err := e.checkCompatibility(ctx, mag, p); err != nil {
		return nil, err
	}

	entry := e.buildEntry(t, in)
	entry.ToMagazine = in.MagazineID
	if err := e.ledger.Append(ctx, entry); err != nil {
		return nil, err
	}

	e.recordAudit(ctx, ledger.AuditTransactionCreated, "transaction", string(entry.ID), in.ActorID, map[string]any{
		"type": string(t), "magazine_id": string(in.MagazineID),
		"product_id": string(in.ProductID), "quantity": in.Quantity.String(),
	})
	e.log.Info().Str("type", string(t)).Str("magazine", string(in.MagazineID)).
		Str("product", string(in.ProductID)).Str("quantity", in.Quantity.String()).
		Msg("movement recorded")
	return &entry, nil
}

// appendDecrease is the shared path for stock-removing movements: the source
// must exist and hold at least the requested quantity. Archived magazines may
// still be drawn down.
func (e *Engine) appendDecrease(ctx context.Context, t ledger.TxType, in TransactionInput) (*ledger.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.magazine(ctx, in.MagazineID); err != nil {
		return nil, err
	}
	if _, err := e.product(ctx, in.ProductID); err != nil {
		return nil, err
	}

	if err := e.checkStock(ctx, in.MagazineID, in.ProductID, in.Quantity); err != nil {
		return nil, err
	}

	entry := e.buildEntry(t, in)
	entry.FromMagazine = in.MagazineID
	if err := e.ledger.Append(ctx, entry); err != nil {
		return nil, err
	}

	e.recordAudit(ctx, ledger.AuditTransactionCreated, "transaction", string(entry.ID), in.ActorID, map[string]any{
		"type": string(t), "magazine_id": string(in.MagazineID),
		"product_id": string(in.ProductID), "quantity": in.Quantity.String(),
	})
	e.log.Info().Str("type", string(t)).Str("magazine", string(in.MagazineID)).
		Str("product", string(in.ProductID)).Str("quantity", in.Quantity.String()).
		Msg("movement recorded")
	return &entry, nil
}

// Transfer moves stock between two magazines as an atomic TransferOut /
// TransferIn pair: either both entries land or neither does.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) (*ledger.Entry, *ledger.Entry, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.magazine(ctx, in.FromMagazineID); err != nil {
		return nil, nil, err
	}
	dst, err := e.magazine(ctx, in.ToMagazineID)
	if err != nil {
		return nil, nil, err
	}
	if dst.Archived {
		return nil, nil, &ledger.ValidationError{Field: "magazine_to_id", Message: "magazine " + dst.Code + " is archived"}
	}
	p, err := e.product(ctx, in.ProductID)
	if err != nil {
		return nil, nil, err
	}

	if err := e.checkStock(ctx, in.FromMagazineID, in.ProductID, in.Quantity); err != nil {
		return nil, nil, err
	}
	if err := e.checkCapacity(ctx, dst, p, in.Quantity); err != nil {
		return nil, nil, err
	}
	if err := e.checkCompatibility(ctx, dst, p); err != nil {
		return nil, nil, err
	}

	common := TransactionInput{
		OccurredAt:          in.OccurredAt,
		ProductID:           in.ProductID,
		Quantity:            in.Quantity,
		ReferenceNumber:     in.ReferenceNumber,
		AuthorizationNumber: in.AuthorizationNumber,
		Notes:               in.Notes,
		ActorID:             in.ActorID,
		Attachments:         in.Attachments,
	}
	out := e.buildEntry(ledger.TxTransferOut, common)
	out.FromMagazine = in.FromMagazineID
	inc := e.buildEntry(ledger.TxTransferIn, common)
	inc.ToMagazine = in.ToMagazineID

	if err := e.ledger.AppendPair(ctx, out, inc); err != nil {
		return nil, nil, err
	}

	e.recordAudit(ctx, ledger.AuditTransferCreated, "transaction", string(out.ID), in.ActorID, map[string]any{
		"from_magazine_id": string(in.FromMagazineID), "to_magazine_id": string(in.ToMagazineID),
		"product_id": string(in.ProductID), "quantity": in.Quantity.String(),
	})
	e.log.Info().Str("from", string(in.FromMagazineID)).Str("to", string(in.ToMagazineID)).
		Str("product", string(in.ProductID)).Str("quantity", in.Quantity.String()).
		Msg("transfer recorded")
	return &out, &inc, nil
}

// =============================================================================
// SHARED CHECKS AND CONSTRUCTION
// =============================================================================

func (e *Engine) checkStock(ctx context.Context, m ledger.MagazineID, p ledger.ProductID, qty decimal.Decimal) error {
	available, err := e.ledger.Balance(ctx, m, p)
	if err != nil {
		return err
	}
	if available.LessThan(qty) {
		return &ledger.InsufficientStockError{
			MagazineID: m, ProductID: p,
			Available: available, Required: qty,
		}
	}
	return nil
}

func (e *Engine) checkCompatibility(ctx context.Context, mag *ledger.Magazine, p *ledger.Product) error {
	occupants, err := e.occupants(ctx, mag.ID)
	if err != nil {
		return err
	}
	ok, conflicts := CheckCompatibility(p.Group, occupants)
	if !ok {
		return &ledger.CompatibilityConflictError{
			MagazineID: mag.ID, Group: p.Group, Conflicts: conflicts,
		}
	}
	return nil
}

// occupants returns the products with positive stock in a magazine. The
// product being checked may appear in the list; matrix rows allow their own
// group wherever self-storage is allowed.
func (e *Engine) occupants(ctx context.Context, m ledger.MagazineID) ([]ledger.Product, error) {
	balances, err := e.ledger.BalanceAllByMagazine(ctx, m)
	if err != nil {
		return nil, err
	}
	var out []ledger.Product
	for _, b := range balances {
		if !b.Quantity.IsPositive() {
			continue
		}
		p, err := e.catalog.GetProduct(ctx, b.ProductID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (e *Engine) buildEntry(t ledger.TxType, in TransactionInput) ledger.Entry {
	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = e.now()
	}
	return ledger.Entry{
		ID:                  ledger.EntryID(uuid.NewString()),
		OccurredAt:          occurred,
		Type:                t,
		ProductID:           in.ProductID,
		Quantity:            in.Quantity,
		ReferenceNumber:     in.ReferenceNumber,
		AuthorizationNumber: in.AuthorizationNumber,
		Notes:               in.Notes,
		EnteredBy:           in.ActorID,
		Attachments:         in.Attachments,
		CreatedAt:           e.now(),
	}
}

// recordAudit is best-effort: a failed audit write is logged and swallowed,
// it never rolls back the movement it records.
func (e *Engine) recordAudit(ctx context.Context, action ledger.AuditAction, entity, entityID, actor string, details map[string]any) {
	if e.audit == nil {
		return
	}
	err := e.audit.AppendAudit(ctx, ledger.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		ActorID:   actor,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("action", string(action)).Msg("audit write failed")
	}
}
