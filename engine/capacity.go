/*
capacity.go - Net-explosive-weight accounting per magazine

PURPOSE:
  A magazine's license caps the total net explosive weight (NEW) it may
  hold. The current weight is derived from the ledger: the signed sum of
  each product's balance times its NEW per unit. Any stock-adding movement
  is rejected when it would push the total past the cap.
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/magtrack/ledger"
)

// CapacityReport describes a magazine's weight utilization.
type CapacityReport struct {
	MagazineID  ledger.MagazineID
	MaxKg       decimal.Decimal
	CurrentKg   decimal.Decimal
	AvailableKg decimal.Decimal
}

// CapacityCheck is the result of a what-if addition.
type CapacityCheck struct {
	CanAccommodate bool
	CurrentKg      decimal.Decimal
	MaxKg          decimal.Decimal
	AdditionalKg   decimal.Decimal
	NewTotalKg     decimal.Decimal
}

// CurrentWeight computes a magazine's net explosive weight in kg by replaying
// the ledger: per-product balance times the product's NEW per unit.
func (e *Engine) CurrentWeight(ctx context.Context, m ledger.MagazineID) (decimal.Decimal, error) {
	balances, err := e.ledger.BalanceAllByMagazine(ctx, m)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, b := range balances {
		p, err := e.catalog.GetProduct(ctx, b.ProductID)
		if err != nil {
			return decimal.Zero, err
		}
		if p == nil {
			continue
		}
		total = total.Add(b.Quantity.Mul(p.NetWeightPerUnitKg))
	}
	return total, nil
}

// Capacity returns the magazine's current utilization.
func (e *Engine) Capacity(ctx context.Context, m ledger.MagazineID) (*CapacityReport, error) {
	mag, err := e.magazine(ctx, m)
	if err != nil {
		return nil, err
	}
	current, err := e.CurrentWeight(ctx, m)
	if err != nil {
		return nil, err
	}
	return &CapacityReport{
		MagazineID:  m,
		MaxKg:       mag.MaxNetWeightKg,
		CurrentKg:   current,
		AvailableKg: mag.MaxNetWeightKg.Sub(current),
	}, nil
}

// ValidateCapacity previews adding qty units of a product to a magazine.
// Returns a CapacityExceededError when the addition would not fit.
func (e *Engine) ValidateCapacity(ctx context.Context, m ledger.MagazineID, p ledger.ProductID, qty decimal.Decimal) (*CapacityCheck, error) {
	mag, err := e.magazine(ctx, m)
	if err != nil {
		return nil, err
	}
	prod, err := e.product(ctx, p)
	if err != nil {
		return nil, err
	}
	current, err := e.CurrentWeight(ctx, m)
	if err != nil {
		return nil, err
	}
	additional := qty.Mul(prod.NetWeightPerUnitKg)
	newTotal := current.Add(additional)
	check := &CapacityCheck{
		CanAccommodate: !newTotal.GreaterThan(mag.MaxNetWeightKg),
		CurrentKg:      current,
		MaxKg:          mag.MaxNetWeightKg,
		AdditionalKg:   additional,
		NewTotalKg:     newTotal,
	}
	if !check.CanAccommodate {
		return check, &ledger.CapacityExceededError{
			MagazineID:  m,
			CurrentKg:   current,
			MaxKg:       mag.MaxNetWeightKg,
			AttemptedKg: newTotal,
		}
	}
	return check, nil
}

// checkCapacity is the in-lock variant used by the movement paths. Catalog
// records are already resolved by the caller.
func (e *Engine) checkCapacity(ctx context.Context, mag *ledger.Magazine, p *ledger.Product, qty decimal.Decimal) error {
	current, err := e.CurrentWeight(ctx, mag.ID)
	if err != nil {
		return err
	}
	newTotal := current.Add(qty.Mul(p.NetWeightPerUnitKg))
	if newTotal.GreaterThan(mag.MaxNetWeightKg) {
		return &ledger.CapacityExceededError{
			MagazineID:  mag.ID,
			CurrentKg:   current,
			MaxKg:       mag.MaxNetWeightKg,
			AttemptedKg: newTotal,
		}
	}
	return nil
}
