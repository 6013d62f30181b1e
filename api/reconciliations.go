/*
reconciliations.go - Physical-count reconciliation endpoints

PURPOSE:
  Exposes the reconciliation workflow: record a count, preview the variance
  it would produce, sign it off (which may append a corrective adjustment),
  and report on outcomes. Also serves the audit trail.

ENDPOINTS:
  POST /api/reconciliations              Record a physical count
  GET  /api/reconciliations              List records (filters below)
  GET  /api/reconciliations/report       Outcome report with summary stats
  POST /api/reconciliations/preview      What-if variance assessment
  GET  /api/reconciliations/{id}         Get one record
  POST /api/reconciliations/{id}/resolve Sign off a record
  GET  /api/audit                        Query the audit trail

FILTERS (list and report):
  unresolved=true, magazine_id, product_id, from, to (RFC3339)
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/magtrack/engine"
	"github.com/warp/magtrack/ledger"
)

// CreateReconciliation records a physical count against the book balance.
func (h *Handler) CreateReconciliation(w http.ResponseWriter, r *http.Request) {
	var req ReconciliationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := engine.ReconciliationInput{
		MagazineID:     ledger.MagazineID(req.MagazineID),
		ProductID:      ledger.ProductID(req.ProductID),
		PhysicalCount:  req.PhysicalCount,
		VarianceReason: req.VarianceReason,
		ActorID:        actorID(r),
		Attachments:    req.Attachments,
	}
	if req.Date != "" {
		t, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reconciliation_date (use RFC3339)", err)
			return
		}
		in.Date = t
	}

	rec, err := h.Reconciler.Create(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reconciliationDTO(*rec))
}

// ListReconciliations returns records matching the query filters.
func (h *Handler) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	f, err := reconciliationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	recs, err := h.Reconciler.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reconciliations", err)
		return
	}

	dtos := make([]ReconciliationDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = reconciliationDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReconciliation returns one record.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	id := ledger.ReconciliationID(chi.URLParam(r, "id"))

	rec, err := h.Reconciler.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reconciliationDTO(*rec))
}

// ResolveReconciliation signs off a record, appending the corrective
// adjustment when the variance is non-zero.
func (h *Handler) ResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Reconciler.Resolve(r.Context(), engine.ResolveInput{
		ID:              ledger.ReconciliationID(chi.URLParam(r, "id")),
		ResolutionNotes: req.ResolutionNotes,
		ActorID:         actorID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ResolveResponse{
		Reconciliation:    reconciliationDTO(result.Reconciliation),
		AdjustmentCreated: result.AdjustmentCreated,
	}
	if result.Adjustment != nil {
		dto := transactionDTO(*result.Adjustment)
		resp.Adjustment = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// PreviewReconciliation assesses the variance a count would produce without
// writing anything.
func (h *Handler) PreviewReconciliation(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Reconciler.Validate(r.Context(),
		ledger.MagazineID(req.MagazineID), ledger.ProductID(req.ProductID), req.PhysicalCount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{
		SystemCount:         p.SystemCount,
		PhysicalCount:       p.PhysicalCount,
		Variance:            p.Variance,
		VariancePercentage:  p.VariancePercentage,
		SignificantVariance: p.Significant,
		RequiresApproval:    p.RequiresApproval,
	})
}

// GetReconciliationReport returns records plus summary statistics.
func (h *Handler) GetReconciliationReport(w http.ResponseWriter, r *http.Request) {
	f, err := reconciliationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	s, err := h.Reconciler.Summarize(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}

	dtos := make([]ReconciliationDTO, len(s.Reconciliations))
	for i, rec := range s.Reconciliations {
		dtos[i] = reconciliationDTO(rec)
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Reconciliations: dtos,
		Summary: ReportSummaryDTO{
			Total:        s.Total,
			Resolved:     s.Resolved,
			Unresolved:   s.Unresolved,
			WithVariance: s.WithVariance,
			Shortages:    s.Shortages,
			Overages:     s.Overages,
			AccuracyRate: s.AccuracyRate,
		},
	})
}

func reconciliationFilter(r *http.Request) (ledger.ReconciliationFilter, error) {
	var f ledger.ReconciliationFilter
	q := r.URL.Query()

	if v := q.Get("magazine_id"); v != "" {
		id := ledger.MagazineID(v)
		f.MagazineID = &id
	}
	if v := q.Get("product_id"); v != "" {
		id := ledger.ProductID(v)
		f.ProductID = &id
	}
	f.UnresolvedOnly = q.Get("unresolved") == "true"

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}

// ListAudit returns audit records matching the query filters:
// actor_id, entity, entity_id, action, from, to.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	var f ledger.AuditFilter
	q := r.URL.Query()

	if v := q.Get("actor_id"); v != "" {
		f.ActorID = &v
	}
	if v := q.Get("entity"); v != "" {
		f.Entity = &v
	}
	if v := q.Get("entity_id"); v != "" {
		f.EntityID = &v
	}
	if v := q.Get("action"); v != "" {
		f.Actions = []ledger.AuditAction{ledger.AuditAction(v)}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
			return
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
			return
		}
		f.To = &t
	}

	entries, err := h.Store.QueryAudit(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = auditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}
