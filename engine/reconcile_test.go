package engine_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/magtrack/engine"
	"github.com/warp/magtrack/ledger"
	"github.com/warp/magtrack/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestReconciler(t *testing.T) (*engine.Reconciler, *engine.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	e := engine.New(mem, mem, mem, mem, zerolog.Nop())
	return engine.NewReconciler(e), e, mem
}

func countInput(m ledger.MagazineID, p ledger.ProductID, physical int64) engine.ReconciliationInput {
	return engine.ReconciliationInput{
		MagazineID:    m,
		ProductID:     p,
		PhysicalCount: decimal.NewFromInt(physical),
		ActorID:       "counter",
	}
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestReconciler_Create_FreezesSystemCountAndVariance(t *testing.T) {
	// GIVEN: A book balance of 300
	// WHEN: Recording a physical count of 290
	// THEN: SystemCount 300, Variance -10, unresolved

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 300))
	require.NoError(t, err)

	rec, err := r.Create(context.Background(), countInput(mag, prod, 290))
	require.NoError(t, err)
	assert.True(t, rec.SystemCount.Equal(decimal.NewFromInt(300)))
	assert.True(t, rec.Variance.Equal(decimal.NewFromInt(-10)))
	assert.False(t, rec.Resolved)
}

func TestReconciler_Create_SecondUnresolvedForPair_Rejected(t *testing.T) {
	// GIVEN: An unresolved reconciliation for a (magazine, product) pair
	// WHEN: Recording another count for the same pair
	// THEN: Rejected; at most one unresolved count per pair

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 100))
	require.NoError(t, err)

	_, err = r.Create(context.Background(), countInput(mag, prod, 95))
	require.NoError(t, err)

	_, err = r.Create(context.Background(), countInput(mag, prod, 96))
	assert.ErrorIs(t, err, ledger.ErrDuplicateUnresolvedReconciliation)
}

func TestReconciler_Create_NegativePhysicalCount_Rejected(t *testing.T) {
	// GIVEN: A physical count below zero
	// WHEN: Recording it
	// THEN: Rejected as validation error

	r, _, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")

	_, err := r.Create(context.Background(), countInput(mag, prod, -1))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// RESOLVE TESTS
// =============================================================================

func TestReconciler_Resolve_Shortage_AppendsDecreaseAndConverges(t *testing.T) {
	// GIVEN: Book 300 against physical 290 (variance -10)
	// WHEN: Resolving the reconciliation
	// THEN: An AdjustDecrease of 10 is appended with the generated reference
	//       and authorization, and the balance converges on 290

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 300))
	require.NoError(t, err)

	rec, err := r.Create(context.Background(), countInput(mag, prod, 290))
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), engine.ResolveInput{
		ID:              rec.ID,
		ResolutionNotes: "recount confirmed shortage",
		ActorID:         "supervisor",
	})
	require.NoError(t, err)
	assert.True(t, result.AdjustmentCreated)
	require.NotNil(t, result.Adjustment)
	assert.Equal(t, ledger.TxAdjustDecrease, result.Adjustment.Type)
	assert.True(t, result.Adjustment.Quantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "RECONCILIATION-"+string(rec.ID), result.Adjustment.ReferenceNumber)
	assert.Equal(t, "REC-"+string(rec.ID)+"-ADJ", result.Adjustment.AuthorizationNumber)

	assert.True(t, result.Reconciliation.Resolved)
	assert.Equal(t, "supervisor", result.Reconciliation.ResolvedBy)
	assert.True(t, balance(t, e, mag, prod).Equal(decimal.NewFromInt(290)))
}

func TestReconciler_Resolve_Overage_AppendsIncrease(t *testing.T) {
	// GIVEN: Book 100 against physical 104
	// WHEN: Resolving
	// THEN: An AdjustIncrease of 4 converges the balance on 104

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 100))
	require.NoError(t, err)

	rec, err := r.Create(context.Background(), countInput(mag, prod, 104))
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), engine.ResolveInput{
		ID: rec.ID, ResolutionNotes: "found uncounted box", ActorID: "supervisor",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.TxAdjustIncrease, result.Adjustment.Type)
	assert.True(t, balance(t, e, mag, prod).Equal(decimal.NewFromInt(104)))
}

func TestReconciler_Resolve_ZeroVariance_NoAdjustment(t *testing.T) {
	// GIVEN: A count that matches the book exactly
	// WHEN: Resolving
	// THEN: No adjustment is appended

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 100))
	require.NoError(t, err)

	rec, err := r.Create(context.Background(), countInput(mag, prod, 100))
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), engine.ResolveInput{
		ID: rec.ID, ResolutionNotes: "count matched", ActorID: "supervisor",
	})
	require.NoError(t, err)
	assert.False(t, result.AdjustmentCreated)
	assert.Nil(t, result.Adjustment)
	assert.True(t, balance(t, e, mag, prod).Equal(decimal.NewFromInt(100)))
}

func TestReconciler_Resolve_Twice_Rejected(t *testing.T) {
	// GIVEN: A resolved reconciliation
	// WHEN: Resolving it again
	// THEN: Rejected; resolution is one-shot

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 100))
	require.NoError(t, err)

	rec, err := r.Create(context.Background(), countInput(mag, prod, 100))
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), engine.ResolveInput{
		ID: rec.ID, ResolutionNotes: "ok", ActorID: "supervisor",
	})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), engine.ResolveInput{
		ID: rec.ID, ResolutionNotes: "again", ActorID: "supervisor",
	})
	assert.ErrorIs(t, err, ledger.ErrAlreadyResolved)
}

func TestReconciler_Resolve_MissingNotes_Rejected(t *testing.T) {
	// GIVEN: A resolve request without resolution notes
	// WHEN: Resolving
	// THEN: Rejected; the sign-off must say what was concluded

	r, _, _ := newTestReconciler(t)

	_, err := r.Resolve(context.Background(), engine.ResolveInput{
		ID: "rec-1", ActorID: "supervisor",
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestReconciler_Resolve_AdjustmentBlocked_StaysUnresolved(t *testing.T) {
	// GIVEN: A shortage reconciliation whose stock was issued away after the
	//        count, so the corrective decrease would overdraw the balance
	// WHEN: Resolving
	// THEN: The resolve fails and the record stays unresolved

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 100))
	require.NoError(t, err)

	rec, err := r.Create(context.Background(), countInput(mag, prod, 40))
	require.NoError(t, err)

	// The world moves on: most of the stock is issued out.
	_, err = e.Issue(context.Background(), input(mag, prod, 95))
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), engine.ResolveInput{
		ID: rec.ID, ResolutionNotes: "confirm shortage", ActorID: "supervisor",
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	got, err := r.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.False(t, got.Resolved, "failed resolve must leave the record unresolved")
}

// =============================================================================
// PREVIEW TESTS
// =============================================================================

func TestReconciler_Validate_SignificanceThresholds(t *testing.T) {
	// GIVEN: A book balance of 1000
	// WHEN: Previewing counts around the 10-unit and 5% thresholds
	// THEN: Significance flips exactly where the thresholds are crossed

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 1000))
	require.NoError(t, err)

	cases := []struct {
		physical    int64
		significant bool
	}{
		{1000, false}, // exact match
		{995, false},  // 5 units, 0.5%
		{990, false},  // 10 units exactly is not "more than 10"
		{989, true},   // 11 units
		{1011, true},  // overage past the unit threshold
	}
	for _, tc := range cases {
		p, err := r.Validate(context.Background(), mag, prod, decimal.NewFromInt(tc.physical))
		require.NoError(t, err)
		assert.Equal(t, tc.significant, p.Significant, "physical %d", tc.physical)
		assert.Equal(t, tc.significant, p.RequiresApproval, "physical %d", tc.physical)
	}
}

func TestReconciler_Validate_PercentageRounded(t *testing.T) {
	// GIVEN: A book balance of 300 and a physical count of 290
	// WHEN: Previewing
	// THEN: Variance percentage is 3.33 (two decimal places)

	r, e, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	_, err := e.Receive(context.Background(), input(mag, prod, 300))
	require.NoError(t, err)

	p, err := r.Validate(context.Background(), mag, prod, decimal.NewFromInt(290))
	require.NoError(t, err)
	assert.True(t, p.Variance.Equal(decimal.NewFromInt(-10)))
	assert.True(t, p.VariancePercentage.Equal(decimal.RequireFromString("3.33")), "got %s", p.VariancePercentage)
}

func TestReconciler_Validate_ZeroSystemCount_NoPercentage(t *testing.T) {
	// GIVEN: An empty pair with no book balance
	// WHEN: Previewing a count of 12
	// THEN: Percentage stays zero, but 12 units is still significant

	r, _, mem := newTestReconciler(t)
	mag := addMagazine(t, mem, "M-01", 5000)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")

	p, err := r.Validate(context.Background(), mag, prod, decimal.NewFromInt(12))
	require.NoError(t, err)
	assert.True(t, p.VariancePercentage.IsZero())
	assert.True(t, p.Significant)
}

// =============================================================================
// REPORTING TESTS
// =============================================================================

func TestReconciler_Summarize_CountsAndAccuracy(t *testing.T) {
	// GIVEN: Four reconciliations: two exact, one shortage, one overage
	// WHEN: Summarizing
	// THEN: Accuracy is 2/4 = 50.00%, shortages and overages counted

	r, e, mem := newTestReconciler(t)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")

	mags := []ledger.MagazineID{
		addMagazine(t, mem, "M-01", 5000),
		addMagazine(t, mem, "M-02", 5000),
		addMagazine(t, mem, "M-03", 5000),
		addMagazine(t, mem, "M-04", 5000),
	}
	for _, m := range mags {
		_, err := e.Receive(context.Background(), input(m, prod, 100))
		require.NoError(t, err)
	}

	for i, physical := range []int64{100, 100, 97, 103} {
		_, err := r.Create(context.Background(), countInput(mags[i], prod, physical))
		require.NoError(t, err)
	}

	s, err := r.Summarize(context.Background(), ledger.ReconciliationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 4, s.Unresolved)
	assert.Equal(t, 2, s.WithVariance)
	assert.Equal(t, 1, s.Shortages)
	assert.Equal(t, 1, s.Overages)
	assert.True(t, s.AccuracyRate.Equal(decimal.RequireFromString("50")), "got %s", s.AccuracyRate)
}

func TestReconciler_List_UnresolvedFilter(t *testing.T) {
	// GIVEN: One resolved and one unresolved reconciliation
	// WHEN: Listing with the unresolved-only filter
	// THEN: Only the open record comes back

	r, e, mem := newTestReconciler(t)
	prod := addProduct(t, mem, "TNT Block", "UN 0209", ledger.GroupD, "1")
	m1 := addMagazine(t, mem, "M-01", 5000)
	m2 := addMagazine(t, mem, "M-02", 5000)
	for _, m := range []ledger.MagazineID{m1, m2} {
		_, err := e.Receive(context.Background(), input(m, prod, 100))
		require.NoError(t, err)
	}

	rec1, err := r.Create(context.Background(), countInput(m1, prod, 100))
	require.NoError(t, err)
	rec2, err := r.Create(context.Background(), countInput(m2, prod, 100))
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), engine.ResolveInput{
		ID: rec1.ID, ResolutionNotes: "ok", ActorID: "supervisor",
	})
	require.NoError(t, err)

	open, err := r.List(context.Background(), ledger.ReconciliationFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, rec2.ID, open[0].ID)
}
