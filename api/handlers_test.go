package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/magtrack/api"
	"github.com/warp/magtrack/logger"
	"github.com/warp/magtrack/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logger.New(logger.Config{Env: "test", Level: "error"})
	return api.NewRouter(api.NewHandler(store, log))
}

// doJSON performs a request with the test actor header and decodes the
// response into out (when non-nil).
func doJSON(t *testing.T, router *chi.Mux, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "tester")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if out != nil && rr.Code < 300 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out))
	}
	return rr
}

func createMagazine(t *testing.T, router *chi.Mux, code string, maxKg int64) api.MagazineDTO {
	t.Helper()
	var dto api.MagazineDTO
	rr := doJSON(t, router, http.MethodPost, "/api/magazines", api.MagazineRequest{
		Code:           code,
		Name:           code + " Storage",
		Location:       "Test Site",
		MaxNetWeightKg: decimal.NewFromInt(maxKg),
	}, &dto)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return dto
}

func createProduct(t *testing.T, router *chi.Mux, name, un, group string) api.ProductDTO {
	t.Helper()
	var dto api.ProductDTO
	rr := doJSON(t, router, http.MethodPost, "/api/products", api.ProductRequest{
		Name:               name,
		UNNumber:           un,
		Group:              group,
		ExplosiveType:      "II",
		Unit:               "each",
		NetWeightPerUnitKg: decimal.NewFromInt(1),
	}, &dto)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return dto
}

func receipt(magazineID, productID string, qty int64) api.TransactionRequest {
	return api.TransactionRequest{
		MagazineID:          magazineID,
		ProductID:           productID,
		Quantity:            decimal.NewFromInt(qty),
		ReferenceNumber:     "PO-2024-001",
		AuthorizationNumber: "AUTH-001",
	}
}

// =============================================================================
// ACTOR MIDDLEWARE TESTS
// =============================================================================

func TestAPI_MutationWithoutActorHeader_Rejected(t *testing.T) {
	// GIVEN: A POST without the X-Actor-ID header
	// WHEN: Hitting a mutating endpoint
	// THEN: 400 before any handler logic runs

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/magazines", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "X-Actor-ID")
}

func TestAPI_ReadWithoutActorHeader_Allowed(t *testing.T) {
	// GIVEN: A GET without the X-Actor-ID header
	// WHEN: Listing magazines
	// THEN: 200; reads do not require identity

	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/magazines", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

// =============================================================================
// CATALOG ENDPOINT TESTS
// =============================================================================

func TestAPI_MagazineCRUD(t *testing.T) {
	// GIVEN: A created magazine
	// WHEN: Getting, updating and listing it
	// THEN: Each endpoint round-trips the record

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)

	var got api.MagazineDTO
	rr := doJSON(t, router, http.MethodGet, "/api/magazines/"+mag.ID, nil, &got)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "M-01", got.Code)

	rr = doJSON(t, router, http.MethodPut, "/api/magazines/"+mag.ID, api.MagazineRequest{
		Code:           "M-01",
		Name:           "North Storage",
		Location:       "North Site",
		MaxNetWeightKg: decimal.NewFromInt(6000),
	}, &got)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "North Storage", got.Name)

	var list []api.MagazineDTO
	rr = doJSON(t, router, http.MethodGet, "/api/magazines", nil, &list)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, list, 1)
}

func TestAPI_DuplicateMagazineCode_Conflict(t *testing.T) {
	// GIVEN: A magazine with code M-01
	// WHEN: Creating another with the same code
	// THEN: 409

	router := newTestRouter(t)
	createMagazine(t, router, "M-01", 5000)

	rr := doJSON(t, router, http.MethodPost, "/api/magazines", api.MagazineRequest{
		Code:           "M-01",
		Name:           "Duplicate",
		Location:       "Elsewhere",
		MaxNetWeightKg: decimal.NewFromInt(100),
	}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAPI_InvalidUNNumber_BadRequest(t *testing.T) {
	// GIVEN: A product request whose UN number lacks the "UN dddd" shape
	// WHEN: Creating it
	// THEN: 400

	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/products", api.ProductRequest{
		Name:               "Bad Product",
		UNNumber:           "0081",
		Group:              "D",
		ExplosiveType:      "II",
		Unit:               "each",
		NetWeightPerUnitKg: decimal.NewFromInt(1),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_GetUnknownMagazine_NotFound(t *testing.T) {
	// GIVEN: No magazines
	// WHEN: Getting an unknown ID
	// THEN: 404

	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/api/magazines/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_DeleteMagazineWithHistory_ConflictThenArchive(t *testing.T) {
	// GIVEN: A magazine with ledger history
	// WHEN: Deleting then archiving it
	// THEN: Delete returns 409, archive succeeds

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 10), nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = doJSON(t, router, http.MethodDelete, "/api/magazines/"+mag.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/magazines/"+mag.ID+"/archive", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// =============================================================================
// MOVEMENT ENDPOINT TESTS
// =============================================================================

func TestAPI_ReceiptThenStock(t *testing.T) {
	// GIVEN: A magazine and product
	// WHEN: Recording a receipt of 50
	// THEN: The stock endpoint reports 50 and the actor header became EnteredBy

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	var tx api.TransactionDTO
	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 50), &tx)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Receipt", tx.Type)
	assert.Equal(t, "tester", tx.EnteredByUserID)

	var stock api.StockBalanceDTO
	rr = doJSON(t, router, http.MethodGet, "/api/stock/"+mag.ID+"/"+prod.ID, nil, &stock)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, stock.Quantity.Equal(decimal.NewFromInt(50)))
}

func TestAPI_IssueExceedingStock_Unprocessable(t *testing.T) {
	// GIVEN: 10 units in stock
	// WHEN: Issuing 11 via the API
	// THEN: 422

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 10), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/transactions/issues", receipt(mag.ID, prod.ID, 11), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAPI_ReceiptOverCapacity_Unprocessable(t *testing.T) {
	// GIVEN: A 100kg magazine and a 1kg-per-unit product
	// WHEN: Receiving 101 units
	// THEN: 422

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 100)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 101), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAPI_Transfer_ReturnsBothHalves(t *testing.T) {
	// GIVEN: Stock in a source magazine
	// WHEN: Transferring to a destination via the API
	// THEN: 201 with the TransferOut and TransferIn entries

	router := newTestRouter(t)
	src := createMagazine(t, router, "M-01", 5000)
	dst := createMagazine(t, router, "M-02", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(src.ID, prod.ID, 100), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp api.TransferResponse
	rr = doJSON(t, router, http.MethodPost, "/api/transactions/transfers", api.TransferRequest{
		MagazineFromID:      src.ID,
		MagazineToID:        dst.ID,
		ProductID:           prod.ID,
		Quantity:            decimal.NewFromInt(40),
		ReferenceNumber:     "XFER-001",
		AuthorizationNumber: "AUTH-002",
	}, &resp)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "TransferOut", resp.TransferOut.Type)
	assert.Equal(t, "TransferIn", resp.TransferIn.Type)
	assert.Equal(t, src.ID, resp.TransferOut.MagazineFromID)
	assert.Equal(t, dst.ID, resp.TransferIn.MagazineToID)
}

func TestAPI_SameMagazineTransfer_BadRequest(t *testing.T) {
	// GIVEN: A transfer with matching source and destination
	// WHEN: Recording it
	// THEN: 400

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/transfers", api.TransferRequest{
		MagazineFromID:      mag.ID,
		MagazineToID:        mag.ID,
		ProductID:           prod.ID,
		Quantity:            decimal.NewFromInt(1),
		ReferenceNumber:     "XFER-001",
		AuthorizationNumber: "AUTH-002",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_Adjustment_RequiresAdjustmentType(t *testing.T) {
	// GIVEN: An adjustment request without adjustment_type
	// WHEN: Posting it
	// THEN: 400; with "increase" it lands as AdjustIncrease

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/adjustments", receipt(mag.ID, prod.ID, 5), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := receipt(mag.ID, prod.ID, 5)
	req.AdjustmentType = "increase"
	var tx api.TransactionDTO
	rr = doJSON(t, router, http.MethodPost, "/api/transactions/adjustments", req, &tx)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "AdjustIncrease", tx.Type)
}

// =============================================================================
// CAPACITY AND COMPATIBILITY PREVIEW TESTS
// =============================================================================

func TestAPI_CapacityValidate_FailingPreviewIs200(t *testing.T) {
	// GIVEN: A 100kg magazine
	// WHEN: Previewing an addition that will not fit
	// THEN: 200 with can_accommodate=false; a preview is an answer, not an error

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 100)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	var resp api.CapacityValidateResponse
	rr := doJSON(t, router, http.MethodPost, "/api/magazines/"+mag.ID+"/capacity/validate",
		api.CapacityValidateRequest{ProductID: prod.ID, Quantity: decimal.NewFromInt(150)}, &resp)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, resp.CanAccommodate)
	assert.True(t, resp.NewTotalKg.Equal(decimal.NewFromInt(150)))
}

func TestAPI_CompatibilityValidate_ReportsConflicts(t *testing.T) {
	// GIVEN: A magazine occupied by a Group B product
	// WHEN: Validating a Group D product against it
	// THEN: 200 with the conflict named

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	petn := createProduct(t, router, "PETN Charge", "UN 0059", "B")
	tnt := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, petn.ID, 10), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp api.CompatibilityValidateResponse
	rr = doJSON(t, router, http.MethodPost, "/api/products/"+tnt.ID+"/compatibility/validate",
		api.CompatibilityValidateRequest{MagazineID: mag.ID}, &resp)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, resp.Compatible)
	assert.Equal(t, []string{"PETN Charge (Group B)"}, resp.Conflicts)
}

// =============================================================================
// RECONCILIATION ENDPOINT TESTS
// =============================================================================

func TestAPI_ReconciliationLifecycle(t *testing.T) {
	// GIVEN: A book balance of 300
	// WHEN: Counting 290, resolving, then resolving again
	// THEN: The resolve emits an AdjustDecrease of 10 and a second resolve is 409

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 300), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec api.ReconciliationDTO
	rr = doJSON(t, router, http.MethodPost, "/api/reconciliations", api.ReconciliationRequest{
		MagazineID:     mag.ID,
		ProductID:      prod.ID,
		PhysicalCount:  decimal.NewFromInt(290),
		VarianceReason: "damaged crate",
	}, &rec)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, rec.Variance.Equal(decimal.NewFromInt(-10)))

	var resolved api.ResolveResponse
	rr = doJSON(t, router, http.MethodPost, "/api/reconciliations/"+rec.ID+"/resolve",
		api.ResolveRequest{ResolutionNotes: "recount confirmed"}, &resolved)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, resolved.AdjustmentCreated)
	require.NotNil(t, resolved.Adjustment)
	assert.Equal(t, "AdjustDecrease", resolved.Adjustment.Type)

	var stock api.StockBalanceDTO
	rr = doJSON(t, router, http.MethodGet, "/api/stock/"+mag.ID+"/"+prod.ID, nil, &stock)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, stock.Quantity.Equal(decimal.NewFromInt(290)))

	rr = doJSON(t, router, http.MethodPost, "/api/reconciliations/"+rec.ID+"/resolve",
		api.ResolveRequest{ResolutionNotes: "again"}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAPI_ReconciliationPreview(t *testing.T) {
	// GIVEN: A book balance of 300
	// WHEN: Previewing a count of 290
	// THEN: 200 with variance -10 and percentage 3.33, nothing written

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 300), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var preview api.PreviewResponse
	rr = doJSON(t, router, http.MethodPost, "/api/reconciliations/preview", api.PreviewRequest{
		MagazineID:    mag.ID,
		ProductID:     prod.ID,
		PhysicalCount: decimal.NewFromInt(290),
	}, &preview)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, preview.Variance.Equal(decimal.NewFromInt(-10)))
	assert.True(t, preview.VariancePercentage.Equal(decimal.RequireFromString("3.33")))

	var recs []api.ReconciliationDTO
	rr = doJSON(t, router, http.MethodGet, "/api/reconciliations", nil, &recs)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, recs)
}

func TestAPI_DuplicateOpenReconciliation_Conflict(t *testing.T) {
	// GIVEN: An unresolved reconciliation for a pair
	// WHEN: Creating a second one for the same pair
	// THEN: 409

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 100), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	body := api.ReconciliationRequest{
		MagazineID:    mag.ID,
		ProductID:     prod.ID,
		PhysicalCount: decimal.NewFromInt(99),
	}
	rr = doJSON(t, router, http.MethodPost, "/api/reconciliations", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/reconciliations", body, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// =============================================================================
// AUDIT AND SCENARIO TESTS
// =============================================================================

func TestAPI_AuditTrailRecordsMovements(t *testing.T) {
	// GIVEN: A recorded receipt
	// WHEN: Querying the audit trail by actor
	// THEN: The movement appears attributed to the header identity

	router := newTestRouter(t)
	mag := createMagazine(t, router, "M-01", 5000)
	prod := createProduct(t, router, "TNT Block", "UN 0209", "D")

	rr := doJSON(t, router, http.MethodPost, "/api/transactions/receipts", receipt(mag.ID, prod.ID, 50), nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var entries []api.AuditEntryDTO
	rr = doJSON(t, router, http.MethodGet, "/api/audit?actor_id=tester", nil, &entries)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, entries)
	assert.Equal(t, "tester", entries[0].ActorID)
	assert.Equal(t, "transaction_created", entries[0].Action)
}

func TestAPI_LoadScenario_SeedsDemoData(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Loading the demo scenario
	// THEN: Magazines, products and movements exist and pass engine validation

	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/api/scenarios/load", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var mags []api.MagazineDTO
	rr = doJSON(t, router, http.MethodGet, "/api/magazines", nil, &mags)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, mags, 3)

	var txs []api.TransactionDTO
	rr = doJSON(t, router, http.MethodGet, "/api/transactions", nil, &txs)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, txs, 8)
}
