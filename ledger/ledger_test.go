package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/magtrack/ledger"
	"github.com/warp/magtrack/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() *ledger.DefaultLedger {
	return ledger.NewLedger(store.NewMemory())
}

func entry(id string, t ledger.TxType, mag ledger.MagazineID, p ledger.ProductID, qty int64, daysAgo int) ledger.Entry {
	e := ledger.Entry{
		ID:                  ledger.EntryID(id),
		OccurredAt:          time.Now().UTC().Add(-time.Duration(daysAgo) * 24 * time.Hour),
		Type:                t,
		ProductID:           p,
		Quantity:            decimal.NewFromInt(qty),
		ReferenceNumber:     "REF-" + id,
		AuthorizationNumber: "AUTH-001",
		EnteredBy:           "tester",
		CreatedAt:           time.Now().UTC(),
	}
	if t.Side() == ledger.SideDestination {
		e.ToMagazine = mag
	} else {
		e.FromMagazine = mag
	}
	return e
}

// =============================================================================
// STRUCTURAL VALIDATION TESTS
// =============================================================================

func TestValidateEntry_UnknownType_Rejected(t *testing.T) {
	// GIVEN: An entry with a transaction type outside the closed set
	// WHEN: Validating it
	// THEN: It is rejected as a validation error

	e := entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 10, 0)
	e.Type = ledger.TxType("Donation")

	err := ledger.ValidateEntry(e)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestValidateEntry_NonPositiveQuantity_Rejected(t *testing.T) {
	// GIVEN: Entries with zero and negative quantities
	// WHEN: Validating them
	// THEN: Both are rejected; sign lives in the type, never in the quantity

	e := entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 10, 0)

	e.Quantity = decimal.Zero
	assert.ErrorIs(t, ledger.ValidateEntry(e), ledger.ErrValidation)

	e.Quantity = decimal.NewFromInt(-5)
	assert.ErrorIs(t, ledger.ValidateEntry(e), ledger.ErrValidation)
}

func TestValidateEntry_WrongMagazineSide_Rejected(t *testing.T) {
	// GIVEN: A Receipt carrying a source magazine and an Issue carrying a
	//        destination magazine
	// WHEN: Validating them
	// THEN: Both are rejected; each kind populates exactly one side

	receipt := entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 10, 0)
	receipt.FromMagazine = "mag-2"
	assert.ErrorIs(t, ledger.ValidateEntry(receipt), ledger.ErrValidation)

	issue := entry("tx-2", ledger.TxIssue, "mag-1", "prod-1", 10, 0)
	issue.ToMagazine = "mag-2"
	assert.ErrorIs(t, ledger.ValidateEntry(issue), ledger.ErrValidation)

	missing := entry("tx-3", ledger.TxDestruction, "mag-1", "prod-1", 10, 0)
	missing.FromMagazine = ""
	assert.ErrorIs(t, ledger.ValidateEntry(missing), ledger.ErrValidation)
}

func TestSignTable_SevenKinds(t *testing.T) {
	// GIVEN: The seven transaction kinds
	// WHEN: Reading their signs
	// THEN: Receipt, TransferIn and AdjustIncrease add; the rest subtract

	adds := []ledger.TxType{ledger.TxReceipt, ledger.TxTransferIn, ledger.TxAdjustIncrease}
	subtracts := []ledger.TxType{ledger.TxIssue, ledger.TxTransferOut, ledger.TxAdjustDecrease, ledger.TxDestruction}

	for _, k := range adds {
		assert.Equal(t, 1, k.Sign(), "%s should increase stock", k)
	}
	for _, k := range subtracts {
		assert.Equal(t, -1, k.Sign(), "%s should decrease stock", k)
	}
}

// =============================================================================
// BALANCE PROJECTION TESTS
// =============================================================================

func TestBalance_SignedSumReplay(t *testing.T) {
	// GIVEN: Receipts of 100 and 50, an issue of 30 and a destruction of 5
	// WHEN: Computing the balance for the pair
	// THEN: Balance is 100 + 50 - 30 - 5 = 115

	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 100, 4)))
	require.NoError(t, l.Append(ctx, entry("tx-2", ledger.TxReceipt, "mag-1", "prod-1", 50, 3)))
	require.NoError(t, l.Append(ctx, entry("tx-3", ledger.TxIssue, "mag-1", "prod-1", 30, 2)))
	require.NoError(t, l.Append(ctx, entry("tx-4", ledger.TxDestruction, "mag-1", "prod-1", 5, 1)))

	balance, err := l.Balance(ctx, "mag-1", "prod-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(115)), "got %s", balance)
}

func TestBalance_OtherPairsDoNotContribute(t *testing.T) {
	// GIVEN: Entries for two magazines and two products
	// WHEN: Computing one pair's balance
	// THEN: Only that pair's entries count

	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 100, 3)))
	require.NoError(t, l.Append(ctx, entry("tx-2", ledger.TxReceipt, "mag-2", "prod-1", 40, 2)))
	require.NoError(t, l.Append(ctx, entry("tx-3", ledger.TxReceipt, "mag-1", "prod-2", 25, 1)))

	balance, err := l.Balance(ctx, "mag-1", "prod-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), "got %s", balance)
}

func TestBalance_EmptyLedger_Zero(t *testing.T) {
	// GIVEN: No entries at all
	// WHEN: Computing a balance
	// THEN: Zero, not an error

	l := newTestLedger()

	balance, err := l.Balance(context.Background(), "mag-1", "prod-1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestReplay_FractionalQuantities_Exact(t *testing.T) {
	// GIVEN: Fractional kg quantities that would accumulate float error
	// WHEN: Replaying them
	// THEN: The sum is exact (0.1 + 0.2 - 0.3 = 0)

	es := []ledger.Entry{
		{Type: ledger.TxReceipt, ToMagazine: "m", ProductID: "p", Quantity: decimal.RequireFromString("0.1")},
		{Type: ledger.TxReceipt, ToMagazine: "m", ProductID: "p", Quantity: decimal.RequireFromString("0.2")},
		{Type: ledger.TxIssue, FromMagazine: "m", ProductID: "p", Quantity: decimal.RequireFromString("0.3")},
	}

	assert.True(t, ledger.Replay(es, "m", "p").IsZero())
}

func TestBalanceAllByMagazine_SkipsZeroBalances(t *testing.T) {
	// GIVEN: One product fully issued back out, another still in stock
	// WHEN: Listing per-product balances for the magazine
	// THEN: Only the non-zero product appears

	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 20, 3)))
	require.NoError(t, l.Append(ctx, entry("tx-2", ledger.TxIssue, "mag-1", "prod-1", 20, 2)))
	require.NoError(t, l.Append(ctx, entry("tx-3", ledger.TxReceipt, "mag-1", "prod-2", 7, 1)))

	balances, err := l.BalanceAllByMagazine(ctx, "mag-1")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	assert.Equal(t, ledger.ProductID("prod-2"), balances[0].ProductID)
	assert.True(t, balances[0].Quantity.Equal(decimal.NewFromInt(7)))
}

func TestBalanceAllByProduct_GroupsByMagazine(t *testing.T) {
	// GIVEN: One product spread across two magazines
	// WHEN: Listing per-magazine balances for the product
	// THEN: Each magazine's signed sum is reported separately

	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 60, 3)))
	require.NoError(t, l.Append(ctx, entry("tx-2", ledger.TxReceipt, "mag-2", "prod-1", 40, 2)))
	require.NoError(t, l.Append(ctx, entry("tx-3", ledger.TxIssue, "mag-1", "prod-1", 10, 1)))

	balances, err := l.BalanceAllByProduct(ctx, "prod-1")
	require.NoError(t, err)
	require.Len(t, balances, 2)

	byMag := map[ledger.MagazineID]decimal.Decimal{}
	for _, b := range balances {
		byMag[b.MagazineID] = b.Quantity
	}
	assert.True(t, byMag["mag-1"].Equal(decimal.NewFromInt(50)))
	assert.True(t, byMag["mag-2"].Equal(decimal.NewFromInt(40)))
}

// =============================================================================
// TRANSFER PAIR TESTS
// =============================================================================

func TestAppendPair_MovesStockBetweenMagazines(t *testing.T) {
	// GIVEN: 100 units in mag-1
	// WHEN: Appending a TransferOut/TransferIn pair of 30 to mag-2
	// THEN: mag-1 holds 70 and mag-2 holds 30

	l := newTestLedger()
	ctx := context.Background()

	require.NoError(t, l.Append(ctx, entry("tx-1", ledger.TxReceipt, "mag-1", "prod-1", 100, 2)))

	out := entry("tx-2", ledger.TxTransferOut, "mag-1", "prod-1", 30, 1)
	in := entry("tx-3", ledger.TxTransferIn, "mag-2", "prod-1", 30, 1)
	require.NoError(t, l.AppendPair(ctx, out, in))

	src, err := l.Balance(ctx, "mag-1", "prod-1")
	require.NoError(t, err)
	dst, err := l.Balance(ctx, "mag-2", "prod-1")
	require.NoError(t, err)
	assert.True(t, src.Equal(decimal.NewFromInt(70)), "source got %s", src)
	assert.True(t, dst.Equal(decimal.NewFromInt(30)), "destination got %s", dst)
}

func TestAppendPair_MismatchedPair_Rejected(t *testing.T) {
	// GIVEN: Pairs with mismatched quantities, products, or kinds
	// WHEN: Appending them
	// THEN: Each is rejected and nothing is written

	l := newTestLedger()
	ctx := context.Background()

	out := entry("tx-1", ledger.TxTransferOut, "mag-1", "prod-1", 30, 1)

	in := entry("tx-2", ledger.TxTransferIn, "mag-2", "prod-1", 25, 1)
	assert.ErrorIs(t, l.AppendPair(ctx, out, in), ledger.ErrValidation, "quantity mismatch")

	in = entry("tx-3", ledger.TxTransferIn, "mag-2", "prod-9", 30, 1)
	assert.ErrorIs(t, l.AppendPair(ctx, out, in), ledger.ErrValidation, "product mismatch")

	receipt := entry("tx-4", ledger.TxReceipt, "mag-2", "prod-1", 30, 1)
	assert.ErrorIs(t, l.AppendPair(ctx, out, receipt), ledger.ErrValidation, "second entry must be TransferIn")

	balance, err := l.Balance(ctx, "mag-1", "prod-1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "rejected pairs must not touch the ledger")
}
