/*
scenarios.go - Demo data loader for testing and demonstrations

PURPOSE:
  Populates the database with a realistic storage site: three magazines,
  four catalog products, opening receipts and a few issues. All movements
  go through the engine so the seeded ledger honors capacity and
  compatibility rules.

HOW IT WORKS:
 1. Reset database (clear all data)
 2. Create magazines and products through the catalog store
 3. Record receipts and issues through the engine as user "system"

USAGE VIA API:

	POST /api/scenarios/load
	POST /api/reset

NOTE:
  Loading a scenario resets the database. Only use in development/demo
  environments.

SEE ALSO:
  - server.go: Route setup
  - handlers.go: Shared helpers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/magtrack/engine"
	"github.com/warp/magtrack/ledger"
)

const seedActor = "system"

// LoadScenario resets the database and loads the demo site.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	summary, err := h.loadDemoScenario(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.Log.Info().
		Int("magazines", summary.Magazines).
		Int("products", summary.Products).
		Int("transactions", summary.Transactions).
		Msg("demo scenario loaded")
	writeJSON(w, http.StatusOK, summary)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.Log.Info().Msg("database reset")
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// ScenarioSummary reports what the loader created.
type ScenarioSummary struct {
	Magazines    int `json:"magazines"`
	Products     int `json:"products"`
	Transactions int `json:"transactions"`
}

func (h *Handler) loadDemoScenario(ctx context.Context) (*ScenarioSummary, error) {
	now := time.Now().UTC()
	day := 24 * time.Hour

	magazines := []ledger.Magazine{
		{Code: "M-01", Name: "North Storage", Location: "North Site Building A",
			MaxNetWeightKg: decimal.NewFromInt(5000), Notes: "Primary explosives storage"},
		{Code: "M-02", Name: "South Storage", Location: "South Site Building B",
			MaxNetWeightKg: decimal.NewFromInt(3000), Notes: "Secondary storage facility"},
		{Code: "M-03", Name: "East Bunker", Location: "East Perimeter Bunker 1",
			MaxNetWeightKg: decimal.NewFromInt(10000), Notes: "High capacity underground storage"},
	}
	magIDs := make([]ledger.MagazineID, len(magazines))
	for i := range magazines {
		magazines[i].ID = ledger.MagazineID(uuid.NewString())
		magazines[i].CreatedAt = now
		magazines[i].UpdatedAt = now
		if err := h.Store.SaveMagazine(ctx, magazines[i]); err != nil {
			return nil, fmt.Errorf("seed magazine %s: %w", magazines[i].Code, err)
		}
		magIDs[i] = magazines[i].ID
	}

	products := []ledger.Product{
		{Name: "PETN Shaped Charge", UNNumber: "UN 0059",
			Description: "Pentaerythritol tetranitrate shaped charge",
			Group:       ledger.GroupB, ExplosiveType: ledger.ExplosivePrimary,
			Unit:         ledger.UnitEach, NetWeightPerUnitKg: decimal.NewFromFloat(0.5),
			Manufacturer: "ExplosiveTech Inc"},
		{Name: "TNT Block", UNNumber: "UN 0209",
			Description: "Trinitrotoluene demolition block",
			Group:       ledger.GroupD, ExplosiveType: ledger.ExplosivePrimary,
			Unit:         ledger.UnitKg, NetWeightPerUnitKg: decimal.NewFromInt(1),
			Manufacturer: "DemoSupply Co"},
		{Name: "Blasting Cap Electric", UNNumber: "UN 0030",
			Description: "Electric detonating cap #8",
			Group:       ledger.GroupB, ExplosiveType: ledger.ExplosivePrimary,
			Unit:         ledger.UnitEach, NetWeightPerUnitKg: decimal.NewFromFloat(0.01),
			Manufacturer: "DetTech Systems"},
		{Name: "ANFO Bulk", UNNumber: "UN 0082",
			Description: "Ammonium nitrate fuel oil mixture",
			Group:       ledger.GroupD, ExplosiveType: ledger.ExplosiveBlastingAgent,
			Unit:         ledger.UnitKg, NetWeightPerUnitKg: decimal.NewFromInt(1),
			Manufacturer: "BlastMine Corp"},
	}
	prodIDs := make([]ledger.ProductID, len(products))
	for i := range products {
		products[i].ID = ledger.ProductID(uuid.NewString())
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
		if err := h.Store.SaveProduct(ctx, products[i]); err != nil {
			return nil, fmt.Errorf("seed product %s: %w", products[i].Name, err)
		}
		prodIDs[i] = products[i].ID
	}

	// Group B stock lands in M-01, Group D in M-02; the mix respects the
	// compatibility matrix so the engine accepts every movement.
	receipts := []struct {
		daysAgo  int
		magazine ledger.MagazineID
		product  ledger.ProductID
		qty      int64
		ref, auth string
	}{
		{7, magIDs[0], prodIDs[0], 50, "PO-2024-001", "AUTH-001"},
		{5, magIDs[0], prodIDs[2], 200, "PO-2024-002", "AUTH-002"},
		{7, magIDs[1], prodIDs[1], 100, "PO-2024-001", "AUTH-001"},
		{6, magIDs[1], prodIDs[1], 75, "PO-2024-003", "AUTH-003"},
		{4, magIDs[1], prodIDs[3], 500, "PO-2024-004", "AUTH-004"},
	}
	issues := []struct {
		daysAgo  int
		magazine ledger.MagazineID
		product  ledger.ProductID
		qty      int64
		ref, auth string
	}{
		{3, magIDs[0], prodIDs[0], 10, "BLAST-001", "AUTH-005"},
		{2, magIDs[1], prodIDs[1], 25, "BLAST-002", "AUTH-006"},
		{1, magIDs[1], prodIDs[3], 100, "BLAST-003", "AUTH-007"},
	}

	txCount := 0
	for _, rc := range receipts {
		_, err := h.Engine.Receive(ctx, engine.TransactionInput{
			OccurredAt:          now.Add(-time.Duration(rc.daysAgo) * day),
			MagazineID:          rc.magazine,
			ProductID:           rc.product,
			Quantity:            decimal.NewFromInt(rc.qty),
			ReferenceNumber:     rc.ref,
			AuthorizationNumber: rc.auth,
			ActorID:             seedActor,
		})
		if err != nil {
			return nil, fmt.Errorf("seed receipt %s: %w", rc.ref, err)
		}
		txCount++
	}
	for _, is := range issues {
		_, err := h.Engine.Issue(ctx, engine.TransactionInput{
			OccurredAt:          now.Add(-time.Duration(is.daysAgo) * day),
			MagazineID:          is.magazine,
			ProductID:           is.product,
			Quantity:            decimal.NewFromInt(is.qty),
			ReferenceNumber:     is.ref,
			AuthorizationNumber: is.auth,
			ActorID:             seedActor,
		})
		if err != nil {
			return nil, fmt.Errorf("seed issue %s: %w", is.ref, err)
		}
		txCount++
	}

	return &ScenarioSummary{
		Magazines:    len(magazines),
		Products:     len(products),
		Transactions: txCount,
	}, nil
}
