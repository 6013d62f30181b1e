/*
reconcile.go - Physical-count reconciliation workflow

PURPOSE:
  Regulations require periodic physical counts checked against the book
  balance. A reconciliation freezes the ledger-derived system count at
  creation time and records the variance against the physical count. It
  stays unresolved until a supervisor signs off; resolution of a non-zero
  variance appends a corrective adjustment so the ledger converges on the
  physical count. The count record and the correction both remain on file.

INVARIANTS:
  - At most one unresolved reconciliation per (magazine, product).
  - Resolution is one-shot; a resolved record is immutable.
  - The corrective adjustment and the resolved flag commit atomically.
  - The adjustment still honors stock and capacity rules; if it cannot be
    applied the record stays unresolved.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/magtrack/ledger"
)

var (
	ten     = decimal.NewFromInt(10)
	five    = decimal.NewFromInt(5)
	hundred = decimal.NewFromInt(100)
)

// Reconciler runs the reconciliation workflow. It shares the engine's mutex
// so counts and corrections serialize with regular movements.
type Reconciler struct {
	engine *Engine
}

func NewReconciler(e *Engine) *Reconciler {
	return &Reconciler{engine: e}
}

// =============================================================================
// INPUTS AND RESULTS
// =============================================================================

// ReconciliationInput carries a physical-count observation.
type ReconciliationInput struct {
	Date           time.Time
	MagazineID     ledger.MagazineID
	ProductID      ledger.ProductID
	PhysicalCount  decimal.Decimal
	VarianceReason string
	ActorID        string
	Attachments    []string
}

// ResolveInput signs off a reconciliation.
type ResolveInput struct {
	ID              ledger.ReconciliationID
	ResolutionNotes string
	ActorID         string
}

// ResolveResult reports what the resolution did.
type ResolveResult struct {
	Reconciliation    ledger.Reconciliation
	AdjustmentCreated bool
	Adjustment        *ledger.Entry
}

// Preview is a what-if variance assessment, computed without writing.
type Preview struct {
	SystemCount        decimal.Decimal
	PhysicalCount      decimal.Decimal
	Variance           decimal.Decimal
	VariancePercentage decimal.Decimal
	Significant        bool
	RequiresApproval   bool
}

// Summary aggregates reconciliation outcomes over a filter window.
type Summary struct {
	Reconciliations []ledger.Reconciliation
	Total           int
	Resolved        int
	Unresolved      int
	WithVariance    int
	Shortages       int
	Overages        int
	AccuracyRate    decimal.Decimal // percent, two decimal places
}

func (in ReconciliationInput) validate() error {
	if in.MagazineID == "" {
		return &ledger.ValidationError{Field: "magazine_id", Message: "magazine is required"}
	}
	if in.ProductID == "" {
		return &ledger.ValidationError{Field: "product_id", Message: "product is required"}
	}
	if in.PhysicalCount.IsNegative() {
		return &ledger.ValidationError{Field: "physical_count", Message: "physical count cannot be negative"}
	}
	if in.ActorID == "" {
		return &ledger.ValidationError{Field: "entered_by_user_id", Message: "acting user is required"}
	}
	return nil
}

// =============================================================================
// CREATE
// =============================================================================

// Create records a physical count. The system count is the ledger balance
// frozen at this instant; Variance = PhysicalCount - SystemCount. Rejected
// when an unresolved reconciliation already exists for the pair.
func (r *Reconciler) Create(ctx context.Context, in ReconciliationInput) (*ledger.Reconciliation, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.magazine(ctx, in.MagazineID); err != nil {
		return nil, err
	}
	if _, err := e.product(ctx, in.ProductID); err != nil {
		return nil, err
	}

	open, err := e.recons.HasUnresolved(ctx, in.MagazineID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ledger.ErrDuplicateUnresolvedReconciliation
	}

	system, err := e.ledger.Balance(ctx, in.MagazineID, in.ProductID)
	if err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = e.now()
	}
	rec := ledger.Reconciliation{
		ID:             ledger.ReconciliationID(uuid.NewString()),
		Date:           date,
		MagazineID:     in.MagazineID,
		ProductID:      in.ProductID,
		PhysicalCount:  in.PhysicalCount,
		SystemCount:    system,
		Variance:       in.PhysicalCount.Sub(system),
		VarianceReason: in.VarianceReason,
		EnteredBy:      in.ActorID,
		Attachments:    in.Attachments,
		CreatedAt:      e.now(),
	}
	if err := e.recons.SaveReconciliation(ctx, rec); err != nil {
		return nil, err
	}

	e.recordAudit(ctx, ledger.AuditReconciliationCreated, "reconciliation", string(rec.ID), in.ActorID, map[string]any{
		"magazine_id": string(in.MagazineID), "product_id": string(in.ProductID),
		"variance": rec.Variance.String(),
	})
	if !rec.Variance.IsZero() {
		e.log.Warn().Str("reconciliation", string(rec.ID)).
			Str("variance", rec.Variance.String()).
			Msg("variance detected, manual resolution required")
	}
	return &rec, nil
}

// =============================================================================
// RESOLVE
// =============================================================================

// Resolve signs off a reconciliation. A non-zero variance appends the
// corrective adjustment (AdjustIncrease for overage, AdjustDecrease for
// shortage) with generated reference "RECONCILIATION-<id>" and authorization
// "REC-<id>-ADJ"; the adjustment and the resolved mark commit together.
func (r *Reconciler) Resolve(ctx context.Context, in ResolveInput) (*ResolveResult, error) {
	if in.ResolutionNotes == "" {
		return nil, &ledger.ValidationError{Field: "resolution_notes", Message: "resolution notes are required"}
	}
	if in.ActorID == "" {
		return nil, &ledger.ValidationError{Field: "resolved_by_user_id", Message: "acting user is required"}
	}

	e := r.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.recons.GetReconciliation(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &ledger.NotFoundError{Entity: "reconciliation", ID: string(in.ID)}
	}
	if rec.Resolved {
		return nil, ledger.ErrAlreadyResolved
	}

	var adjustment *ledger.Entry
	if !rec.Variance.IsZero() {
		entry, err := r.buildAdjustment(ctx, rec, in)
		if err != nil {
			return nil, err
		}
		adjustment = entry
	}

	resolvedAt := e.now()
	err = e.store.WithTx(ctx, func(tx ledger.Tx) error {
		if adjustment != nil {
			l := ledger.NewLedger(tx)
			if err := l.Append(ctx, *adjustment); err != nil {
				return err
			}
		}
		return tx.MarkResolved(ctx, rec.ID, in.ActorID, in.ResolutionNotes, resolvedAt)
	})
	if err != nil {
		return nil, err
	}

	rec.Resolved = true
	rec.ResolvedBy = in.ActorID
	rec.ResolutionNotes = in.ResolutionNotes
	rec.ResolvedAt = &resolvedAt

	e.recordAudit(ctx, ledger.AuditReconciliationResolved, "reconciliation", string(rec.ID), in.ActorID, map[string]any{
		"adjustment_created": adjustment != nil,
	})
	e.log.Info().Str("reconciliation", string(rec.ID)).
		Bool("adjustment_created", adjustment != nil).
		Msg("reconciliation resolved")
	return &ResolveResult{
		Reconciliation:    *rec,
		AdjustmentCreated: adjustment != nil,
		Adjustment:        adjustment,
	}, nil
}

// buildAdjustment constructs and pre-checks the corrective entry. Stock and
// capacity are validated against the CURRENT ledger, not the counts frozen
// at creation: the world may have moved since the count was taken.
func (r *Reconciler) buildAdjustment(ctx context.Context, rec *ledger.Reconciliation, in ResolveInput) (*ledger.Entry, error) {
	e := r.engine
	qty := rec.Variance.Abs()

	entry := ledger.Entry{
		ID:                  ledger.EntryID(uuid.NewString()),
		OccurredAt:          e.now(),
		ProductID:           rec.ProductID,
		Quantity:            qty,
		ReferenceNumber:     fmt.Sprintf("RECONCILIATION-%s", rec.ID),
		AuthorizationNumber: fmt.Sprintf("REC-%s-ADJ", rec.ID),
		Notes:               fmt.Sprintf("Auto-generated adjustment from reconciliation %s: %s", rec.ID, in.ResolutionNotes),
		EnteredBy:           in.ActorID,
		CreatedAt:           e.now(),
	}

	if rec.Variance.IsPositive() {
		// Overage: book up to the physical count.
		mag, err := e.magazine(ctx, rec.MagazineID)
		if err != nil {
			return nil, err
		}
		p, err := e.product(ctx, rec.ProductID)
		if err != nil {
			return nil, err
		}
		if err := e.checkCapacity(ctx, mag, p, qty); err != nil {
			return nil, err
		}
		if err := e.checkCompatibility(ctx, mag, p); err != nil {
			return nil, err
		}
		entry.Type = ledger.TxAdjustIncrease
		entry.ToMagazine = rec.MagazineID
	} else {
		// Shortage: book down to the physical count.
		if err := e.checkStock(ctx, rec.MagazineID, rec.ProductID, qty); err != nil {
			return nil, err
		}
		entry.Type = ledger.TxAdjustDecrease
		entry.FromMagazine = rec.MagazineID
	}
	return &entry, nil
}

// =============================================================================
// PREVIEW AND REPORTING
// =============================================================================

// Validate previews the variance a count would produce. Significant means
// the absolute variance exceeds 10 units or 5% of the system count.
func (r *Reconciler) Validate(ctx context.Context, m ledger.MagazineID, p ledger.ProductID, physical decimal.Decimal) (*Preview, error) {
	e := r.engine
	if _, err := e.magazine(ctx, m); err != nil {
		return nil, err
	}
	if _, err := e.product(ctx, p); err != nil {
		return nil, err
	}

	system, err := e.ledger.Balance(ctx, m, p)
	if err != nil {
		return nil, err
	}
	variance := physical.Sub(system)
	pct := decimal.Zero
	if system.IsPositive() {
		pct = variance.Abs().Div(system).Mul(hundred).Round(2)
	}
	significant := variance.Abs().GreaterThan(ten) || pct.GreaterThan(five)
	return &Preview{
		SystemCount:        system,
		PhysicalCount:      physical,
		Variance:           variance,
		VariancePercentage: pct,
		Significant:        significant,
		RequiresApproval:   significant,
	}, nil
}

// Summarize reports reconciliation outcomes over a filter window. Accuracy
// is the share of counts that matched the book exactly, as a percentage.
func (r *Reconciler) Summarize(ctx context.Context, f ledger.ReconciliationFilter) (*Summary, error) {
	recs, err := r.engine.recons.ListReconciliations(ctx, f)
	if err != nil {
		return nil, err
	}
	s := &Summary{Reconciliations: recs, Total: len(recs)}
	for _, rec := range recs {
		if rec.Resolved {
			s.Resolved++
		} else {
			s.Unresolved++
		}
		switch {
		case rec.Variance.IsNegative():
			s.Shortages++
			s.WithVariance++
		case rec.Variance.IsPositive():
			s.Overages++
			s.WithVariance++
		}
	}
	if s.Total > 0 {
		matched := decimal.NewFromInt(int64(s.Total - s.WithVariance))
		s.AccuracyRate = matched.Div(decimal.NewFromInt(int64(s.Total))).Mul(hundred).Round(2)
	}
	return s, nil
}

// Get returns one reconciliation record.
func (r *Reconciler) Get(ctx context.Context, id ledger.ReconciliationID) (*ledger.Reconciliation, error) {
	rec, err := r.engine.recons.GetReconciliation(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &ledger.NotFoundError{Entity: "reconciliation", ID: string(id)}
	}
	return rec, nil
}

// List returns reconciliation records matching the filter, newest first.
func (r *Reconciler) List(ctx context.Context, f ledger.ReconciliationFilter) ([]ledger.Reconciliation, error) {
	return r.engine.recons.ListReconciliations(ctx, f)
}
