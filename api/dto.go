/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/magtrack/ledger"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

// MagazineDTO represents a magazine in API responses.
type MagazineDTO struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Location       string          `json:"location"`
	MaxNetWeightKg decimal.Decimal `json:"max_net_explosive_weight_kg"`
	Notes          string          `json:"notes,omitempty"`
	Archived       bool            `json:"archived"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

// MagazineRequest is the request to create or update a magazine.
type MagazineRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Location       string          `json:"location"`
	MaxNetWeightKg decimal.Decimal `json:"max_net_explosive_weight_kg"`
	Notes          string          `json:"notes"`
}

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	UNNumber           string          `json:"un_number"`
	Description        string          `json:"description,omitempty"`
	Group              string          `json:"compatibility_group"`
	ExplosiveType      string          `json:"explosive_type"`
	Unit               string          `json:"unit"`
	NetWeightPerUnitKg decimal.Decimal `json:"net_explosive_weight_per_unit_kg"`
	Manufacturer       string          `json:"manufacturer,omitempty"`
	Archived           bool            `json:"archived"`
	CreatedAt          string          `json:"created_at,omitempty"`
	UpdatedAt          string          `json:"updated_at,omitempty"`
}

// ProductRequest is the request to create or update a product.
type ProductRequest struct {
	Name               string          `json:"name"`
	UNNumber           string          `json:"un_number"`
	Description        string          `json:"description"`
	Group              string          `json:"compatibility_group"`
	ExplosiveType      string          `json:"explosive_type"`
	Unit               string          `json:"unit"`
	NetWeightPerUnitKg decimal.Decimal `json:"net_explosive_weight_per_unit_kg"`
	Manufacturer       string          `json:"manufacturer"`
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TransactionDTO represents a ledger entry in API responses.
type TransactionDTO struct {
	ID                  string          `json:"id"`
	TransactionDate     string          `json:"transaction_date"`
	Type                string          `json:"type"`
	MagazineFromID      string          `json:"magazine_from_id,omitempty"`
	MagazineToID        string          `json:"magazine_to_id,omitempty"`
	ProductID           string          `json:"product_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	ReferenceNumber     string          `json:"reference_number"`
	AuthorizationNumber string          `json:"authorization_number"`
	Notes               string          `json:"notes,omitempty"`
	EnteredByUserID     string          `json:"entered_by_user_id"`
	Attachments         []string        `json:"attachments,omitempty"`
	CreatedAt           string          `json:"created_at"`
}

// TransactionRequest is the request body shared by receipts, issues,
// adjustments and destructions.
type TransactionRequest struct {
	TransactionDate     string          `json:"transaction_date,omitempty"` // RFC3339, defaults to now
	MagazineID          string          `json:"magazine_id"`
	ProductID           string          `json:"product_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	ReferenceNumber     string          `json:"reference_number"`
	AuthorizationNumber string          `json:"authorization_number"`
	Notes               string          `json:"notes"`
	Attachments         []string        `json:"attachments"`
	AdjustmentType      string          `json:"adjustment_type,omitempty"` // "increase" or "decrease", adjustments only
}

// TransferRequest is the request body for magazine-to-magazine transfers.
type TransferRequest struct {
	TransactionDate     string          `json:"transaction_date,omitempty"`
	MagazineFromID      string          `json:"magazine_from_id"`
	MagazineToID        string          `json:"magazine_to_id"`
	ProductID           string          `json:"product_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	ReferenceNumber     string          `json:"reference_number"`
	AuthorizationNumber string          `json:"authorization_number"`
	Notes               string          `json:"notes"`
	Attachments         []string        `json:"attachments"`
}

// TransferResponse returns both halves of a recorded transfer.
type TransferResponse struct {
	TransferOut TransactionDTO `json:"transfer_out"`
	TransferIn  TransactionDTO `json:"transfer_in"`
}

// =============================================================================
// STOCK AND CAPACITY TYPES
// =============================================================================

// StockBalanceDTO is a derived (magazine, product) balance.
type StockBalanceDTO struct {
	MagazineID string          `json:"magazine_id"`
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// CapacityDTO reports a magazine's weight utilization.
type CapacityDTO struct {
	MagazineID  string          `json:"magazine_id"`
	MaxKg       decimal.Decimal `json:"max_net_explosive_weight_kg"`
	CurrentKg   decimal.Decimal `json:"current_net_weight_kg"`
	AvailableKg decimal.Decimal `json:"available_net_weight_kg"`
}

// CapacityValidateRequest previews an addition against the cap.
type CapacityValidateRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// CapacityValidateResponse is the what-if result.
type CapacityValidateResponse struct {
	CanAccommodate bool            `json:"can_accommodate"`
	CurrentKg      decimal.Decimal `json:"current_net_weight_kg"`
	MaxKg          decimal.Decimal `json:"max_net_explosive_weight_kg"`
	AdditionalKg   decimal.Decimal `json:"additional_net_weight_kg"`
	NewTotalKg     decimal.Decimal `json:"new_total_net_weight_kg"`
}

// CompatibilityValidateRequest checks a product against a magazine's occupants.
type CompatibilityValidateRequest struct {
	MagazineID string `json:"magazine_id"`
}

// CompatibilityValidateResponse lists any conflicts.
type CompatibilityValidateResponse struct {
	Compatible bool     `json:"compatible"`
	Conflicts  []string `json:"conflicts,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// =============================================================================
// RECONCILIATION TYPES
// =============================================================================

// ReconciliationDTO represents a physical-count record in API responses.
type ReconciliationDTO struct {
	ID              string          `json:"id"`
	Date            string          `json:"reconciliation_date"`
	MagazineID      string          `json:"magazine_id"`
	ProductID       string          `json:"product_id"`
	PhysicalCount   decimal.Decimal `json:"physical_count"`
	SystemCount     decimal.Decimal `json:"system_count_at_time"`
	Variance        decimal.Decimal `json:"variance"`
	VarianceReason  string          `json:"variance_reason,omitempty"`
	EnteredByUserID string          `json:"entered_by_user_id"`
	Attachments     []string        `json:"attachments,omitempty"`
	Resolved        bool            `json:"resolved"`
	ResolvedBy      string          `json:"resolved_by_user_id,omitempty"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	ResolvedAt      string          `json:"resolved_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

// ReconciliationRequest records a physical count.
type ReconciliationRequest struct {
	Date           string          `json:"reconciliation_date,omitempty"` // RFC3339, defaults to now
	MagazineID     string          `json:"magazine_id"`
	ProductID      string          `json:"product_id"`
	PhysicalCount  decimal.Decimal `json:"physical_count"`
	VarianceReason string          `json:"variance_reason"`
	Attachments    []string        `json:"attachments"`
}

// ResolveRequest signs off a reconciliation.
type ResolveRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// ResolveResponse reports what the resolution did.
type ResolveResponse struct {
	Reconciliation    ReconciliationDTO `json:"reconciliation"`
	AdjustmentCreated bool              `json:"adjustment_created"`
	Adjustment        *TransactionDTO   `json:"adjustment,omitempty"`
}

// PreviewRequest asks for a what-if variance assessment.
type PreviewRequest struct {
	MagazineID    string          `json:"magazine_id"`
	ProductID     string          `json:"product_id"`
	PhysicalCount decimal.Decimal `json:"physical_count"`
}

// PreviewResponse is the variance assessment.
type PreviewResponse struct {
	SystemCount         decimal.Decimal `json:"system_count"`
	PhysicalCount       decimal.Decimal `json:"physical_count"`
	Variance            decimal.Decimal `json:"variance"`
	VariancePercentage  decimal.Decimal `json:"variance_percentage"`
	SignificantVariance bool            `json:"significant_variance"`
	RequiresApproval    bool            `json:"requires_approval"`
}

// ReportResponse is the reconciliation report with summary statistics.
type ReportResponse struct {
	Reconciliations []ReconciliationDTO `json:"reconciliations"`
	Summary         ReportSummaryDTO    `json:"summary"`
}

// ReportSummaryDTO aggregates reconciliation outcomes.
type ReportSummaryDTO struct {
	Total        int             `json:"total_reconciliations"`
	Resolved     int             `json:"resolved_count"`
	Unresolved   int             `json:"unresolved_count"`
	WithVariance int             `json:"variance_count"`
	Shortages    int             `json:"shortage_count"`
	Overages     int             `json:"overage_count"`
	AccuracyRate decimal.Decimal `json:"accuracy_rate"`
}

// =============================================================================
// AUDIT TYPES
// =============================================================================

// AuditEntryDTO represents an audit record in API responses.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func magazineDTO(m ledger.Magazine) MagazineDTO {
	return MagazineDTO{
		ID:             string(m.ID),
		Code:           m.Code,
		Name:           m.Name,
		Location:       m.Location,
		MaxNetWeightKg: m.MaxNetWeightKg,
		Notes:          m.Notes,
		Archived:       m.Archived,
		CreatedAt:      formatTime(m.CreatedAt),
		UpdatedAt:      formatTime(m.UpdatedAt),
	}
}

func productDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:                 string(p.ID),
		Name:               p.Name,
		UNNumber:           p.UNNumber,
		Description:        p.Description,
		Group:              string(p.Group),
		ExplosiveType:      string(p.ExplosiveType),
		Unit:               string(p.Unit),
		NetWeightPerUnitKg: p.NetWeightPerUnitKg,
		Manufacturer:       p.Manufacturer,
		Archived:           p.Archived,
		CreatedAt:          formatTime(p.CreatedAt),
		UpdatedAt:          formatTime(p.UpdatedAt),
	}
}

func transactionDTO(e ledger.Entry) TransactionDTO {
	return TransactionDTO{
		ID:                  string(e.ID),
		TransactionDate:     formatTime(e.OccurredAt),
		Type:                string(e.Type),
		MagazineFromID:      string(e.FromMagazine),
		MagazineToID:        string(e.ToMagazine),
		ProductID:           string(e.ProductID),
		Quantity:            e.Quantity,
		ReferenceNumber:     e.ReferenceNumber,
		AuthorizationNumber: e.AuthorizationNumber,
		Notes:               e.Notes,
		EnteredByUserID:     e.EnteredBy,
		Attachments:         e.Attachments,
		CreatedAt:           formatTime(e.CreatedAt),
	}
}

func reconciliationDTO(r ledger.Reconciliation) ReconciliationDTO {
	dto := ReconciliationDTO{
		ID:              string(r.ID),
		Date:            formatTime(r.Date),
		MagazineID:      string(r.MagazineID),
		ProductID:       string(r.ProductID),
		PhysicalCount:   r.PhysicalCount,
		SystemCount:     r.SystemCount,
		Variance:        r.Variance,
		VarianceReason:  r.VarianceReason,
		EnteredByUserID: r.EnteredBy,
		Attachments:     r.Attachments,
		Resolved:        r.Resolved,
		ResolvedBy:      r.ResolvedBy,
		ResolutionNotes: r.ResolutionNotes,
		CreatedAt:       formatTime(r.CreatedAt),
	}
	if r.ResolvedAt != nil {
		dto.ResolvedAt = formatTime(*r.ResolvedAt)
	}
	return dto
}

func auditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: formatTime(e.Timestamp),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		Details:   e.Details,
	}
}
