/*
transactions.go - Movement endpoints

PURPOSE:
  One POST endpoint per movement kind, mirroring the fact that each kind
  carries different invariants. Adjustments share one endpoint with an
  adjustment_type discriminator, matching how operators think about them.

ENDPOINTS:
  POST /api/transactions/receipts       Record incoming stock
  POST /api/transactions/issues         Record stock leaving for use
  POST /api/transactions/transfers      Record a magazine-to-magazine move
  POST /api/transactions/adjustments    Record a corrective increase/decrease
  POST /api/transactions/destructions   Record supervised disposal
  GET  /api/transactions                List entries (filters: from, to, magazine_id)
  GET  /api/transactions/{id}           Get one entry
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/magtrack/engine"
	"github.com/warp/magtrack/ledger"
)

func (h *Handler) transactionInput(r *http.Request, req TransactionRequest) (engine.TransactionInput, error) {
	in := engine.TransactionInput{
		MagazineID:          ledger.MagazineID(req.MagazineID),
		ProductID:           ledger.ProductID(req.ProductID),
		Quantity:            req.Quantity,
		ReferenceNumber:     req.ReferenceNumber,
		AuthorizationNumber: req.AuthorizationNumber,
		Notes:               req.Notes,
		ActorID:             actorID(r),
		Attachments:         req.Attachments,
	}
	if req.TransactionDate != "" {
		t, err := time.Parse(time.RFC3339, req.TransactionDate)
		if err != nil {
			return in, &ledger.ValidationError{Field: "transaction_date", Message: "must be RFC3339"}
		}
		in.OccurredAt = t
	}
	return in, nil
}

// createMovement is the shared handler body for single-magazine movements.
func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, in engine.TransactionInput) (*ledger.Entry, error)) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := h.transactionInput(r, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := op(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(*entry))
}

// CreateReceipt records incoming stock.
func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	h.createMovement(w, r, h.Engine.Receive)
}

// CreateIssue records stock leaving for use.
func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	h.createMovement(w, r, h.Engine.Issue)
}

// CreateDestruction records supervised disposal.
func (h *Handler) CreateDestruction(w http.ResponseWriter, r *http.Request) {
	h.createMovement(w, r, h.Engine.Destroy)
}

// CreateAdjustment records a corrective increase or decrease, discriminated
// by adjustment_type.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := h.transactionInput(r, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var entry *ledger.Entry
	switch req.AdjustmentType {
	case "increase":
		entry, err = h.Engine.AdjustIncrease(r.Context(), in)
	case "decrease":
		entry, err = h.Engine.AdjustDecrease(r.Context(), in)
	default:
		writeError(w, http.StatusBadRequest, `adjustment_type must be "increase" or "decrease"`, nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(*entry))
}

// CreateTransfer records an atomic TransferOut/TransferIn pair.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := engine.TransferInput{
		FromMagazineID:      ledger.MagazineID(req.MagazineFromID),
		ToMagazineID:        ledger.MagazineID(req.MagazineToID),
		ProductID:           ledger.ProductID(req.ProductID),
		Quantity:            req.Quantity,
		ReferenceNumber:     req.ReferenceNumber,
		AuthorizationNumber: req.AuthorizationNumber,
		Notes:               req.Notes,
		ActorID:             actorID(r),
		Attachments:         req.Attachments,
	}
	if req.TransactionDate != "" {
		t, err := time.Parse(time.RFC3339, req.TransactionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid transaction_date (use RFC3339)", err)
			return
		}
		in.OccurredAt = t
	}

	out, inc, err := h.Engine.Transfer(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, TransferResponse{
		TransferOut: transactionDTO(*out),
		TransferIn:  transactionDTO(*inc),
	})
}

// ListTransactions returns ledger entries, optionally filtered by date range
// or magazine.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var (
		entries []ledger.Entry
		err     error
	)

	switch {
	case q.Get("magazine_id") != "":
		entries, err = h.Store.EntriesByMagazine(ctx, ledger.MagazineID(q.Get("magazine_id")))
	case q.Get("from") != "" && q.Get("to") != "":
		var from, to time.Time
		from, err = time.Parse(time.RFC3339, q.Get("from"))
		if err == nil {
			to, err = time.Parse(time.RFC3339, q.Get("to"))
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from/to (use RFC3339)", err)
			return
		}
		entries, err = h.Store.EntriesInRange(ctx, from, to)
	default:
		entries, err = h.Store.Entries(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(entries))
	for i, e := range entries {
		dtos[i] = transactionDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransaction returns one ledger entry.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))

	e, err := h.Store.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get transaction", err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, transactionDTO(*e))
}
