/*
errors.go - Centralized error taxonomy for the inventory core

PURPOSE:
  All error types in one place. Sentinels support errors.Is checks across
  packages; structured types carry the quantities a caller needs to render
  a precise message (available vs required, current vs max, conflict list).

  Every error here is detected BEFORE any write: a rejected operation never
  leaves the ledger partially written.

SEE ALSO:
  - engine: raises the capacity/compatibility/stock errors
  - api: maps these onto HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input rejections.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced magazine, product,
	// transaction or reconciliation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned on magazine-code or UN-number collisions.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCapacityExceeded is returned when an addition would push a magazine
	// past its maximum net explosive weight.
	ErrCapacityExceeded = errors.New("magazine capacity exceeded")

	// ErrCompatibilityConflict is returned when a product's hazard group may
	// not coexist with a magazine's current occupants.
	ErrCompatibilityConflict = errors.New("compatibility group conflict")

	// ErrInsufficientStock is returned when a decrease exceeds the balance.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidTransfer is returned when source and destination match.
	ErrInvalidTransfer = errors.New("source and destination magazines cannot be the same")

	// ErrDuplicateUnresolvedReconciliation is returned when an unresolved
	// reconciliation already exists for the (magazine, product) pair.
	ErrDuplicateUnresolvedReconciliation = errors.New("unresolved reconciliation already exists for this magazine and product")

	// ErrAlreadyResolved is returned on double-resolve attempts.
	ErrAlreadyResolved = errors.New("reconciliation already resolved")

	// ErrReferentialIntegrity is returned when deleting a magazine or product
	// that ledger entries reference. Archive instead.
	ErrReferentialIntegrity = errors.New("entity is referenced by ledger history")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the detail callers report
// =============================================================================

// ValidationError describes a single malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string // "magazine", "product", "transaction", "reconciliation"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateKeyError identifies the colliding unique attribute.
type DuplicateKeyError struct {
	Entity string
	Key    string // "code", "un_number"
	Value  string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Key, e.Value)
}

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

// CapacityExceededError carries current, max and attempted net weights (kg)
// so the caller can report the shortfall precisely.
type CapacityExceededError struct {
	MagazineID  MagazineID
	CurrentKg   decimal.Decimal
	MaxKg       decimal.Decimal
	AttemptedKg decimal.Decimal // total that the rejected addition would have produced
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("magazine %s capacity exceeded: current %skg, max %skg, attempted %skg",
		e.MagazineID, e.CurrentKg, e.MaxKg, e.AttemptedKg)
}

func (e *CapacityExceededError) Unwrap() error { return ErrCapacityExceeded }

// CompatibilityConflictError lists the conflicting occupants, each rendered
// as "Name (Group X)".
type CompatibilityConflictError struct {
	MagazineID MagazineID
	Group      CompatGroup
	Conflicts  []string
}

func (e *CompatibilityConflictError) Error() string {
	return fmt.Sprintf("compatibility group %s cannot be stored in magazine %s with: %v",
		e.Group, e.MagazineID, e.Conflicts)
}

func (e *CompatibilityConflictError) Unwrap() error { return ErrCompatibilityConflict }

// InsufficientStockError carries available vs required quantities.
type InsufficientStockError struct {
	MagazineID MagazineID
	ProductID  ProductID
	Available  decimal.Decimal
	Required   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock in magazine %s: available %s, required %s",
		e.MagazineID, e.Available, e.Required)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err indicates a state conflict (409-equivalent).
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrDuplicateUnresolvedReconciliation) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrReferentialIntegrity)
}

// IsClientError reports whether err is recoverable by correcting the request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrCompatibilityConflict) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidTransfer) ||
		IsConflict(err)
}
