/*
ledger.go - Append-only transaction log and balance projection

PURPOSE:
  The Ledger is the immutable source of truth for all stock changes. Every
  receipt, issue, transfer, adjustment and destruction is recorded here.
  Stock is always computed by replaying entries — there is no separate
  "current stock" column that can drift out of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. STRUCTURAL: Positive quantity, known kind, exactly one magazine side
     populated as the kind's sign table dictates.
  3. DERIVED BALANCES: balance(m,p) is the signed sum of all entries
     touching (m,p); grouped projections use the same replay.

  Business validation (capacity, compatibility, stock availability) is NOT
  done here — that is the engine's job. The ledger only refuses entries
  that are structurally malformed.

CORRECTIONS:
  A mistake is never edited away. A corrective AdjustIncrease/AdjustDecrease
  entry is appended and both records remain in the ledger.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger is the write/read surface over the entry store.
type Ledger interface {
	// Append adds one structurally valid entry. The only write path
	// besides AppendPair.
	Append(ctx context.Context, e Entry) error

	// AppendPair adds a TransferOut/TransferIn pair atomically.
	AppendPair(ctx context.Context, out, in Entry) error

	// Balance computes current stock for (magazine, product) by replay.
	Balance(ctx context.Context, m MagazineID, p ProductID) (decimal.Decimal, error)

	// BalanceAllByMagazine returns non-zero per-product balances in a magazine.
	BalanceAllByMagazine(ctx context.Context, m MagazineID) ([]StockBalance, error)

	// BalanceAllByProduct returns non-zero per-magazine balances of a product.
	BalanceAllByProduct(ctx context.Context, p ProductID) ([]StockBalance, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation over Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

// ValidateEntry enforces the structural invariants an entry must satisfy
// before it may enter the ledger.
func ValidateEntry(e Entry) error {
	if !e.Type.Valid() {
		return &ValidationError{Field: "type", Message: "unknown transaction type " + string(e.Type)}
	}
	if !e.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Message: "quantity must be positive"}
	}
	if e.ProductID == "" {
		return &ValidationError{Field: "product_id", Message: "product is required"}
	}
	if e.EnteredBy == "" {
		return &ValidationError{Field: "entered_by_user_id", Message: "entering user is required"}
	}
	switch e.Type.Side() {
	case SideDestination:
		if e.ToMagazine == "" {
			return &ValidationError{Field: "magazine_to_id", Message: "destination magazine is required for " + string(e.Type)}
		}
		if e.FromMagazine != "" {
			return &ValidationError{Field: "magazine_from_id", Message: "source magazine must be empty for " + string(e.Type)}
		}
	case SideSource:
		if e.FromMagazine == "" {
			return &ValidationError{Field: "magazine_from_id", Message: "source magazine is required for " + string(e.Type)}
		}
		if e.ToMagazine != "" {
			return &ValidationError{Field: "magazine_to_id", Message: "destination magazine must be empty for " + string(e.Type)}
		}
	}
	return nil
}

func (l *DefaultLedger) Append(ctx context.Context, e Entry) error {
	if err := ValidateEntry(e); err != nil {
		return err
	}
	return l.Store.Append(ctx, e)
}

// AppendPair writes a transfer pair atomically. The two entries must be a
// TransferOut and a TransferIn of equal quantity for the same product.
func (l *DefaultLedger) AppendPair(ctx context.Context, out, in Entry) error {
	if out.Type != TxTransferOut {
		return &ValidationError{Field: "type", Message: "first entry of a pair must be TransferOut"}
	}
	if in.Type != TxTransferIn {
		return &ValidationError{Field: "type", Message: "second entry of a pair must be TransferIn"}
	}
	if out.ProductID != in.ProductID {
		return &ValidationError{Field: "product_id", Message: "transfer pair must reference one product"}
	}
	if !out.Quantity.Equal(in.Quantity) {
		return &ValidationError{Field: "quantity", Message: "transfer pair quantities must match"}
	}
	if err := ValidateEntry(out); err != nil {
		return err
	}
	if err := ValidateEntry(in); err != nil {
		return err
	}
	return l.Store.AppendBatch(ctx, []Entry{out, in})
}

// =============================================================================
// BALANCE PROJECTION - Signed-sum replay
// =============================================================================

func (l *DefaultLedger) Balance(ctx context.Context, m MagazineID, p ProductID) (decimal.Decimal, error) {
	entries, err := l.Store.EntriesByPair(ctx, m, p)
	if err != nil {
		return decimal.Zero, err
	}
	return Replay(entries, m, p), nil
}

// Replay computes the signed sum of entries as they affect (m, p).
// Entries touching other pairs contribute nothing, so callers may pass
// over-fetched slices.
func Replay(entries []Entry, m MagazineID, p ProductID) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		if e.ProductID != p || e.Magazine() != m {
			continue
		}
		balance = balance.Add(e.SignedQuantity())
	}
	return balance
}

func (l *DefaultLedger) BalanceAllByMagazine(ctx context.Context, m MagazineID) ([]StockBalance, error) {
	entries, err := l.Store.EntriesByMagazine(ctx, m)
	if err != nil {
		return nil, err
	}
	totals := make(map[ProductID]decimal.Decimal)
	var order []ProductID
	for _, e := range entries {
		if e.Magazine() != m {
			continue
		}
		if _, seen := totals[e.ProductID]; !seen {
			order = append(order, e.ProductID)
		}
		totals[e.ProductID] = totals[e.ProductID].Add(e.SignedQuantity())
	}
	var out []StockBalance
	for _, pid := range order {
		if totals[pid].IsZero() {
			continue
		}
		out = append(out, StockBalance{MagazineID: m, ProductID: pid, Quantity: totals[pid]})
	}
	return out, nil
}

func (l *DefaultLedger) BalanceAllByProduct(ctx context.Context, p ProductID) ([]StockBalance, error) {
	entries, err := l.Store.EntriesByProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	totals := make(map[MagazineID]decimal.Decimal)
	var order []MagazineID
	for _, e := range entries {
		if e.ProductID != p {
			continue
		}
		m := e.Magazine()
		if _, seen := totals[m]; !seen {
			order = append(order, m)
		}
		totals[m] = totals[m].Add(e.SignedQuantity())
	}
	var out []StockBalance
	for _, mid := range order {
		if totals[mid].IsZero() {
			continue
		}
		out = append(out, StockBalance{MagazineID: mid, ProductID: p, Quantity: totals[mid]})
	}
	return out, nil
}
