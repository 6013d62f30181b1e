/*
Package ledger provides the core inventory ledger for explosives storage.

PURPOSE:
  This package contains the types and algorithms for tracking explosives
  inventory across physical storage magazines. Every movement — receipt,
  issue, transfer, adjustment, destruction — is an immutable ledger entry,
  and current stock is always derived by replaying the ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: An immutable ledger record of one inventory movement
  - TxType: The closed set of seven movement kinds with their sign table
  - Magazine: A licensed storage location with a net-explosive-weight cap
  - Product: An explosives catalog item with a UN compatibility group
  - Reconciliation: A physical-count event checked against the ledger

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified; corrections are new entries
  2. Precision: decimal.Decimal for all quantities and weights
  3. Type safety: Closed enums for movement kinds and compatibility groups,
     so adding a kind is a compile-time-checked change
  4. Derivation: Stock balances are computed from entries, never stored

SEE ALSO:
  - ledger.go: Append/replay over the Store
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntryID string
type MagazineID string
type ProductID string
type ReconciliationID string

// =============================================================================
// TRANSACTION KINDS - The seven movement types and their sign table
// =============================================================================

type TxType string

const (
	TxReceipt        TxType = "Receipt"        // Stock arriving from outside (+destination)
	TxIssue          TxType = "Issue"          // Stock leaving for use (-source)
	TxTransferOut    TxType = "TransferOut"    // Outbound half of a transfer (-source)
	TxTransferIn     TxType = "TransferIn"     // Inbound half of a transfer (+destination)
	TxAdjustIncrease TxType = "AdjustIncrease" // Corrective increase (+destination)
	TxAdjustDecrease TxType = "AdjustDecrease" // Corrective decrease (-source)
	TxDestruction    TxType = "Destruction"    // Disposal (-source)
)

// Side says which magazine reference a transaction kind populates.
type Side int

const (
	SideDestination Side = iota // entry carries ToMagazine only
	SideSource                  // entry carries FromMagazine only
)

// Valid reports whether t is one of the seven known kinds.
func (t TxType) Valid() bool {
	switch t {
	case TxReceipt, TxIssue, TxTransferOut, TxTransferIn,
		TxAdjustIncrease, TxAdjustDecrease, TxDestruction:
		return true
	}
	return false
}

// Side returns which magazine reference this kind uses.
// Exhaustive over the sign table; unknown kinds panic (guarded by Valid()).
func (t TxType) Side() Side {
	switch t {
	case TxReceipt, TxTransferIn, TxAdjustIncrease:
		return SideDestination
	case TxIssue, TxTransferOut, TxAdjustDecrease, TxDestruction:
		return SideSource
	}
	panic("ledger: unknown transaction type " + string(t))
}

// Sign returns +1 for stock-increasing kinds and -1 for stock-decreasing ones.
func (t TxType) Sign() int {
	if t.Side() == SideDestination {
		return 1
	}
	return -1
}

// =============================================================================
// LEDGER ENTRY - Atomic, immutable inventory movement record
// =============================================================================

// Entry is one immutable ledger record. Exactly one of FromMagazine and
// ToMagazine is populated, determined by Type.Side(). Quantity is strictly
// positive and expressed in the product's unit of measure.
type Entry struct {
	ID                  EntryID
	OccurredAt          time.Time
	Type                TxType
	FromMagazine        MagazineID // set iff Type.Side() == SideSource
	ToMagazine          MagazineID // set iff Type.Side() == SideDestination
	ProductID           ProductID
	Quantity            decimal.Decimal
	ReferenceNumber     string
	AuthorizationNumber string
	Notes               string
	EnteredBy           string
	Attachments         []string
	CreatedAt           time.Time
}

// Magazine returns whichever magazine reference the entry populates.
func (e Entry) Magazine() MagazineID {
	if e.Type.Side() == SideDestination {
		return e.ToMagazine
	}
	return e.FromMagazine
}

// SignedQuantity is Quantity with the sign table applied.
func (e Entry) SignedQuantity() decimal.Decimal {
	if e.Type.Sign() < 0 {
		return e.Quantity.Neg()
	}
	return e.Quantity
}

// =============================================================================
// CATALOG - Magazines and products
// =============================================================================

// Magazine is a physical storage unit with a maximum net explosive weight.
// Magazines with ledger history cannot be deleted; they are archived instead.
type Magazine struct {
	ID             MagazineID
	Code           string // globally unique
	Name           string
	Location       string
	MaxNetWeightKg decimal.Decimal
	Notes          string
	Archived       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the structural invariants of a magazine record.
func (m Magazine) Validate() error {
	if m.Code == "" {
		return &ValidationError{Field: "code", Message: "code is required"}
	}
	if m.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if m.Location == "" {
		return &ValidationError{Field: "location", Message: "location is required"}
	}
	if !m.MaxNetWeightKg.IsPositive() {
		return &ValidationError{Field: "max_net_explosive_weight_kg", Message: "maximum net explosive weight must be positive"}
	}
	return nil
}

// CompatGroup is a UN hazard compatibility group letter.
type CompatGroup string

const (
	GroupA CompatGroup = "A"
	GroupB CompatGroup = "B"
	GroupC CompatGroup = "C"
	GroupD CompatGroup = "D"
	GroupE CompatGroup = "E"
	GroupF CompatGroup = "F"
	GroupG CompatGroup = "G"
	GroupH CompatGroup = "H"
	GroupJ CompatGroup = "J"
	GroupK CompatGroup = "K"
	GroupL CompatGroup = "L"
	GroupN CompatGroup = "N"
	GroupS CompatGroup = "S"
)

// CompatGroups lists every valid group letter.
var CompatGroups = []CompatGroup{
	GroupA, GroupB, GroupC, GroupD, GroupE, GroupF, GroupG,
	GroupH, GroupJ, GroupK, GroupL, GroupN, GroupS,
}

func (g CompatGroup) Valid() bool {
	for _, v := range CompatGroups {
		if g == v {
			return true
		}
	}
	return false
}

// ExplosiveType classifies the hazard division of a product.
type ExplosiveType string

const (
	ExplosivePrimary       ExplosiveType = "I"
	ExplosiveSecondary     ExplosiveType = "II"
	ExplosivePropellant    ExplosiveType = "III"
	ExplosiveBlastingAgent ExplosiveType = "B"
)

func (t ExplosiveType) Valid() bool {
	switch t {
	case ExplosivePrimary, ExplosiveSecondary, ExplosivePropellant, ExplosiveBlastingAgent:
		return true
	}
	return false
}

// UnitOfMeasure is the unit a product's quantities are expressed in.
type UnitOfMeasure string

const (
	UnitEach UnitOfMeasure = "each"
	UnitKg   UnitOfMeasure = "kg"
	UnitLb   UnitOfMeasure = "lb"
	UnitBox  UnitOfMeasure = "box"
	UnitCase UnitOfMeasure = "case"
)

func (u UnitOfMeasure) Valid() bool {
	switch u {
	case UnitEach, UnitKg, UnitLb, UnitBox, UnitCase:
		return true
	}
	return false
}

var unNumberPattern = regexp.MustCompile(`^UN \d{4}$`)

// Product is an explosives catalog entry. The UN number is globally unique.
type Product struct {
	ID                  ProductID
	Name                string
	UNNumber            string // e.g. "UN 0081"
	Description         string
	Group               CompatGroup
	ExplosiveType       ExplosiveType
	Unit                UnitOfMeasure
	NetWeightPerUnitKg  decimal.Decimal
	Manufacturer        string
	Archived            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Validate checks the structural invariants of a product record.
func (p Product) Validate() error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if !unNumberPattern.MatchString(p.UNNumber) {
		return &ValidationError{Field: "un_number", Message: `UN number must follow format "UN dddd"`}
	}
	if !p.Group.Valid() {
		return &ValidationError{Field: "compatibility_group", Message: "unknown compatibility group " + string(p.Group)}
	}
	if !p.ExplosiveType.Valid() {
		return &ValidationError{Field: "explosive_type", Message: "unknown explosive type " + string(p.ExplosiveType)}
	}
	if !p.Unit.Valid() {
		return &ValidationError{Field: "unit", Message: "unknown unit of measure " + string(p.Unit)}
	}
	if p.NetWeightPerUnitKg.IsNegative() {
		return &ValidationError{Field: "net_explosive_weight_per_unit_kg", Message: "net explosive weight per unit must be non-negative"}
	}
	return nil
}

// =============================================================================
// STOCK BALANCE - Derived, never persisted
// =============================================================================

// StockBalance is the replay-derived quantity of one product in one magazine.
type StockBalance struct {
	MagazineID MagazineID
	ProductID  ProductID
	Quantity   decimal.Decimal
}

// =============================================================================
// RECONCILIATION - Physical count vs ledger-derived system count
// =============================================================================

// Reconciliation captures a physical-count event. SystemCount is the ledger
// balance frozen at creation time; Variance = PhysicalCount - SystemCount.
// At most one unresolved reconciliation may exist per (magazine, product).
type Reconciliation struct {
	ID              ReconciliationID
	Date            time.Time
	MagazineID      MagazineID
	ProductID       ProductID
	PhysicalCount   decimal.Decimal
	SystemCount     decimal.Decimal
	Variance        decimal.Decimal
	VarianceReason  string
	EnteredBy       string
	Attachments     []string
	Resolved        bool
	ResolvedBy      string
	ResolutionNotes string
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}
