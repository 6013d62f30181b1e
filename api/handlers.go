/*
handlers.go - HTTP API handlers for the magazine inventory system

PURPOSE:
  Exposes the inventory engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Magazines:
    GET    /api/magazines                   List all magazines
    POST   /api/magazines                   Create magazine
    GET    /api/magazines/{id}              Get magazine details
    PUT    /api/magazines/{id}              Update magazine
    DELETE /api/magazines/{id}              Delete (409 when ledger history exists)
    POST   /api/magazines/{id}/archive      Archive instead of delete
    GET    /api/magazines/{id}/capacity     Current net-weight utilization
    POST   /api/magazines/{id}/capacity/validate  What-if capacity check
    GET    /api/magazines/{id}/stock        Per-product balances

  Products:
    GET    /api/products                    List all products
    POST   /api/products                    Create product
    GET    /api/products/{id}               Get product details
    PUT    /api/products/{id}               Update product
    DELETE /api/products/{id}               Delete (409 when ledger history exists)
    POST   /api/products/{id}/archive       Archive instead of delete
    GET    /api/products/{id}/stock         Per-magazine balances
    POST   /api/products/{id}/compatibility/validate  Group conflict check

  Stock:
    GET    /api/stock/{magazineID}/{productID}  Single balance

  Transactions, reconciliations and audit live in their own files.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, ledger, reconciler)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate key, already resolved, delete with history)
  - 422: Capacity exceeded, compatibility conflict, insufficient stock
  - 500: Internal errors

ACTOR IDENTITY:
  Mutating endpoints require an X-Actor-ID header naming the acting user.
  Identity is an opaque string; authentication lives outside this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - transactions.go: Movement endpoints
  - reconciliations.go: Reconciliation and audit endpoints
  - scenarios.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/magtrack/engine"
	"github.com/warp/magtrack/ledger"
	"github.com/warp/magtrack/logger"
	"github.com/warp/magtrack/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Engine     *engine.Engine
	Reconciler *engine.Reconciler
	Log        *logger.Logger
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store, log *logger.Logger) *Handler {
	eng := engine.New(store, store, store, store, log.Zerolog())
	return &Handler{
		Store:      store,
		Engine:     eng,
		Reconciler: engine.NewReconciler(eng),
		Log:        log,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

type contextKey string

const actorKey contextKey = "actor"

// actorID returns the acting user injected by the actor middleware.
func actorID(r *http.Request) string {
	if v, ok := r.Context().Value(actorKey).(string); ok {
		return v
	}
	return ""
}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, ledger.ErrCapacityExceeded),
		errors.Is(err, ledger.ErrCompatibilityConflict),
		errors.Is(err, ledger.ErrInsufficientStock):
		writeError(w, http.StatusUnprocessableEntity, "Operation rejected", err)
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrInvalidTransfer):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// =============================================================================
// MAGAZINE HANDLERS
// =============================================================================

// ListMagazines returns all magazines.
func (h *Handler) ListMagazines(w http.ResponseWriter, r *http.Request) {
	magazines, err := h.Store.ListMagazines(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list magazines", err)
		return
	}

	dtos := make([]MagazineDTO, len(magazines))
	for i, m := range magazines {
		dtos[i] = magazineDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMagazine returns a single magazine.
func (h *Handler) GetMagazine(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	m, err := h.Store.GetMagazine(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get magazine", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Magazine not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, magazineDTO(*m))
}

// CreateMagazine creates a new magazine.
func (h *Handler) CreateMagazine(w http.ResponseWriter, r *http.Request) {
	var req MagazineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := time.Now().UTC()
	m := ledger.Magazine{
		ID:             ledger.MagazineID(uuid.NewString()),
		Code:           req.Code,
		Name:           req.Name,
		Location:       req.Location,
		MaxNetWeightKg: req.MaxNetWeightKg,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.SaveMagazine(r.Context(), m); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, magazineDTO(m))
}

// UpdateMagazine updates an existing magazine.
func (h *Handler) UpdateMagazine(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetMagazine(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get magazine", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Magazine not found", nil)
		return
	}

	var req MagazineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m := *existing
	m.Code = req.Code
	m.Name = req.Name
	m.Location = req.Location
	m.MaxNetWeightKg = req.MaxNetWeightKg
	m.Notes = req.Notes
	m.UpdatedAt = time.Now().UTC()
	if err := m.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.UpdateMagazine(r.Context(), m); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, magazineDTO(m))
}

// DeleteMagazine removes a magazine without ledger history.
func (h *Handler) DeleteMagazine(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteMagazine(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ArchiveMagazine marks a magazine archived.
func (h *Handler) ArchiveMagazine(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	if err := h.Store.ArchiveMagazine(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": true})
}

// GetMagazineCapacity returns the magazine's net-weight utilization.
func (h *Handler) GetMagazineCapacity(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	report, err := h.Engine.Capacity(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CapacityDTO{
		MagazineID:  string(report.MagazineID),
		MaxKg:       report.MaxKg,
		CurrentKg:   report.CurrentKg,
		AvailableKg: report.AvailableKg,
	})
}

// ValidateMagazineCapacity previews an addition against the cap.
func (h *Handler) ValidateMagazineCapacity(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	var req CapacityValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	check, err := h.Engine.ValidateCapacity(r.Context(), id, ledger.ProductID(req.ProductID), req.Quantity)
	if err != nil && check == nil {
		writeDomainError(w, err)
		return
	}
	// A failing check is a valid preview answer, not an error.
	writeJSON(w, http.StatusOK, CapacityValidateResponse{
		CanAccommodate: check.CanAccommodate,
		CurrentKg:      check.CurrentKg,
		MaxKg:          check.MaxKg,
		AdditionalKg:   check.AdditionalKg,
		NewTotalKg:     check.NewTotalKg,
	})
}

// GetMagazineStock returns per-product balances in a magazine.
func (h *Handler) GetMagazineStock(w http.ResponseWriter, r *http.Request) {
	id := ledger.MagazineID(chi.URLParam(r, "id"))

	m, err := h.Store.GetMagazine(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get magazine", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Magazine not found", nil)
		return
	}

	balances, err := h.Engine.Ledger().BalanceAllByMagazine(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock", err)
		return
	}
	dtos := make([]StockBalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = StockBalanceDTO{
			MagazineID: string(b.MagazineID),
			ProductID:  string(b.ProductID),
			Quantity:   b.Quantity,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = productDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Product not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(*p))
}

// CreateProduct creates a new catalog product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := time.Now().UTC()
	p := ledger.Product{
		ID:                 ledger.ProductID(uuid.NewString()),
		Name:               req.Name,
		UNNumber:           req.UNNumber,
		Description:        req.Description,
		Group:              ledger.CompatGroup(req.Group),
		ExplosiveType:      ledger.ExplosiveType(req.ExplosiveType),
		Unit:               ledger.UnitOfMeasure(req.Unit),
		NetWeightPerUnitKg: req.NetWeightPerUnitKg,
		Manufacturer:       req.Manufacturer,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := p.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.SaveProduct(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, productDTO(p))
}

// UpdateProduct updates an existing product.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	existing, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Product not found", nil)
		return
	}

	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := *existing
	p.Name = req.Name
	p.UNNumber = req.UNNumber
	p.Description = req.Description
	p.Group = ledger.CompatGroup(req.Group)
	p.ExplosiveType = ledger.ExplosiveType(req.ExplosiveType)
	p.Unit = ledger.UnitOfMeasure(req.Unit)
	p.NetWeightPerUnitKg = req.NetWeightPerUnitKg
	p.Manufacturer = req.Manufacturer
	p.UpdatedAt = time.Now().UTC()
	if err := p.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.UpdateProduct(r.Context(), p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, productDTO(p))
}

// DeleteProduct removes a product without ledger history.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteProduct(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// ArchiveProduct marks a product archived.
func (h *Handler) ArchiveProduct(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	if err := h.Store.ArchiveProduct(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": true})
}

// GetProductStock returns per-magazine balances of a product.
func (h *Handler) GetProductStock(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Product not found", nil)
		return
	}

	balances, err := h.Engine.Ledger().BalanceAllByProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock", err)
		return
	}
	dtos := make([]StockBalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = StockBalanceDTO{
			MagazineID: string(b.MagazineID),
			ProductID:  string(b.ProductID),
			Quantity:   b.Quantity,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ValidateProductCompatibility checks a product's group against a magazine's
// current occupants.
func (h *Handler) ValidateProductCompatibility(w http.ResponseWriter, r *http.Request) {
	id := ledger.ProductID(chi.URLParam(r, "id"))

	var req CompatibilityValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ok, conflicts, group, err := h.Engine.ValidateCompatibility(r.Context(),
		ledger.MagazineID(req.MagazineID), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := CompatibilityValidateResponse{Compatible: ok, Conflicts: conflicts}
	if !ok {
		resp.Reason = "Compatibility Group " + string(group) + " cannot be stored with the magazine's current contents"
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// GetStock returns the balance of one product in one magazine.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	m := ledger.MagazineID(chi.URLParam(r, "magazineID"))
	p := ledger.ProductID(chi.URLParam(r, "productID"))

	qty, err := h.Engine.Ledger().Balance(r.Context(), m, p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stock", err)
		return
	}
	writeJSON(w, http.StatusOK, StockBalanceDTO{
		MagazineID: string(m),
		ProductID:  string(p),
		Quantity:   qty,
	})
}
