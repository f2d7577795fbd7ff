package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"go-customs-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDocument_InRegistersAndAccumulatesProduct(t *testing.T) {
	env := strictEnv(t)

	first := withPackages(item("P-001", "100"), "10")
	doc, _ := env.receive(t, inDoc("IN-1", "2024-01-05", first))
	assert.Equal(t, model.DirectionIn, doc.Direction)
	assert.Equal(t, "tester", doc.CreatedBy)

	p := env.product(t, "P-001")
	assertDecimal(t, "100", p.Qty)
	assertDecimal(t, "10", p.PackageQty)
	assert.Equal(t, "KGM", p.Unit)

	second := item("P-001", "25.5")
	second.ProductName = "Renamed product"
	env.receive(t, inDoc("IN-2", "2024-01-06", second))

	p = env.product(t, "P-001")
	assertDecimal(t, "125.5", p.Qty)
	assertDecimal(t, "10", p.PackageQty)
	assert.Equal(t, "Renamed product", p.ProductName)
	assert.Equal(t, int64(1), env.count(t, &model.Product{}))
}

func TestCreateDocument_DispatchScenario(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "100")))

	out, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "40", from(lineID, "40"))), "tester")
	require.NoError(t, err)
	require.Len(t, out.OutLinks, 1)
	assertDecimal(t, "40", out.OutLinks[0].QtyUsed)

	assertDecimal(t, "60", env.sourceBalance(t, "P-001", lineID))
	assertDecimal(t, "60", env.product(t, "P-001").Qty)

	_, err = env.ledger.CreateDocument(env.ctx, outDoc("OUT-2", "2024-01-03", item("P-001", "61", from(lineID, "61"))), "tester")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assertDecimal(t, "60", env.product(t, "P-001").Qty)
	assert.Equal(t, int64(2), env.count(t, &model.Document{}))

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, out.ID, "tester"))
	assertDecimal(t, "100", env.sourceBalance(t, "P-001", lineID))
	assertDecimal(t, "100", env.product(t, "P-001").Qty)
	assert.Equal(t, int64(0), env.count(t, &model.InOutDocument{}))
}

func TestCreateDocument_FractionalQuantitiesStayExact(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "0.3")))

	out1, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "0.1", from(lineID, "0.1"))), "tester")
	require.NoError(t, err)
	out2, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-2", "2024-01-03", item("P-001", "0.2", from(lineID, "0.2"))), "tester")
	require.NoError(t, err)

	env.assertConsistent(t, "P-001", "0")
	assertDecimal(t, "0", env.sourceBalance(t, "P-001", lineID))

	_, err = env.ledger.CreateDocument(env.ctx, outDoc("OUT-3", "2024-01-04", item("P-001", "0.0001", from(lineID, "0.0001"))), "tester")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, out2.ID, "tester"))
	env.assertConsistent(t, "P-001", "0.2")

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, out1.ID, "tester"))
	env.assertConsistent(t, "P-001", "0.3")
}

func TestCreateDocument_FractionalReceiptsAndSplits(t *testing.T) {
	env := strictEnv(t)
	lines := make([]uuid.UUID, 0, 10)
	for i := 0; i < 10; i++ {
		_, lineID := env.receive(t, inDoc(fmt.Sprintf("IN-%d", i), "2024-01-01", withPackages(item("P-001", "0.1"), "0.7")))
		lines = append(lines, lineID)
	}
	env.assertConsistent(t, "P-001", "1")
	assertDecimal(t, "7", env.product(t, "P-001").PackageQty)

	outs := make([]uuid.UUID, 0, 3)
	for i, line := range lines[:3] {
		doc, err := env.ledger.CreateDocument(env.ctx, outDoc(fmt.Sprintf("OUT-%d", i), "2024-01-02",
			withPackages(item("P-001", "0.0999", fromWithPackages(line, "0.0999", "0.1")), "0.1")), "tester")
		require.NoError(t, err)
		outs = append(outs, doc.ID)
	}
	env.assertConsistent(t, "P-001", "0.7003")

	snap, err := env.balance.ProductStock(env.ctx, "P-001")
	require.NoError(t, err)
	assertDecimal(t, "6.7", snap.CachedPackageQty)
	assertDecimal(t, "6.7", snap.DerivedPackageQty)

	for _, id := range outs {
		require.NoError(t, env.ledger.DeleteDocument(env.ctx, id, "tester"))
	}
	env.assertConsistent(t, "P-001", "1")
	assertDecimal(t, "7", env.product(t, "P-001").PackageQty)
}

func TestCreateDocument_Validation(t *testing.T) {
	nilSource := item("P-001", "1", AllocationRequest{QtyUsed: dec("1")})

	tests := []struct {
		name  string
		req   *CreateDocumentRequest
		field string
	}{
		{"missing document number", inDoc("", "2024-01-01", item("P-001", "1")), "documentNumber"},
		{"malformed date", inDoc("IN-1", "01/02/2024", item("P-001", "1")), "date"},
		{"impossible date", inDoc("IN-1", "2024-13-01", item("P-001", "1")), "date"},
		{"no items", inDoc("IN-1", "2024-01-01"), "items"},
		{"zero quantity", inDoc("IN-1", "2024-01-01", item("P-001", "0")), "items[0].qty"},
		{"negative quantity", inDoc("IN-1", "2024-01-01", item("P-001", "-5")), "items[0].qty"},
		{"missing product code", inDoc("IN-1", "2024-01-01", item("", "1")), "items[0].productCode"},
		{"quantity finer than the column", inDoc("IN-1", "2024-01-01", item("P-001", "0.00004")), "items[0].qty"},
		{"allocation finer than the column", outDoc("OUT-1", "2024-01-01", item("P-001", "1", from(uuid.New(), "0.99999"), from(uuid.New(), "0.00001"))), "items[0].sources[0].qtyUsed"},
		{"negative package quantity", inDoc("IN-1", "2024-01-01", withPackages(item("P-001", "1"), "-1")), "items[0].packageQty"},
		{"sources on IN", inDoc("IN-1", "2024-01-01", item("P-001", "1", from(uuid.New(), "1"))), "items[0].sources"},
		{"source without id", outDoc("OUT-1", "2024-01-01", nilSource), "items[0].sources[0].sourceItemId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := strictEnv(t)

			doc, err := env.ledger.CreateDocument(env.ctx, tt.req, "tester")
			assert.Nil(t, doc)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, int64(0), env.count(t, &model.Document{}))
		})
	}
}

func TestCreateDocument_InvalidDirectionAndCategory(t *testing.T) {
	env := strictEnv(t)

	req := inDoc("IN-1", "2024-01-01", item("P-001", "1"))
	req.Direction = "SIDEWAYS"
	req.Category = "BC_9_9"

	_, err := env.ledger.CreateDocument(env.ctx, req, "tester")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "direction")
	assert.Contains(t, verr.Fields, "category")
}

func TestCreateDocument_NormalizesInput(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))

	// Unselected sources arrive with a zero quantity and are ignored.
	req := outDoc("  OUT-1  ", "2024-01-02", item(" P-001 ", "4", from(lineID, "4"), from(uuid.New(), "0")))
	req.Direction = "out"

	doc, err := env.ledger.CreateDocument(env.ctx, req, "tester")
	require.NoError(t, err)
	assert.Equal(t, "OUT-1", doc.DocumentNumber)
	assert.Equal(t, model.DirectionOut, doc.Direction)
	assert.Len(t, doc.OutLinks, 1)
}

func TestCreateDocument_QuantityMismatchRollsBack(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "100")))

	tests := []struct {
		name string
		line LineItemRequest
	}{
		{"under allocated", item("P-001", "40", from(lineID, "30"))},
		{"over allocated", item("P-001", "40", from(lineID, "50"))},
		{"no sources", item("P-001", "40")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-X", "2024-01-02", tt.line), "tester")
			assert.ErrorIs(t, err, ErrQuantityMismatch)

			assertDecimal(t, "100", env.product(t, "P-001").Qty)
			assert.Equal(t, int64(1), env.count(t, &model.Document{}))
			assert.Equal(t, int64(1), env.count(t, &model.DocumentProductItem{}))
			assert.Equal(t, int64(0), env.count(t, &model.InOutDocument{}))
		})
	}
}

func TestCreateDocument_LaterLineFailureRollsBackEarlierLines(t *testing.T) {
	env := strictEnv(t)
	_, a := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))
	_, b := env.receive(t, inDoc("IN-2", "2024-01-01", item("P-002", "10")))

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02",
		item("P-001", "5", from(a, "5")),
		item("P-002", "11", from(b, "11")),
	), "tester")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	assertDecimal(t, "10", env.product(t, "P-001").Qty)
	assertDecimal(t, "10", env.sourceBalance(t, "P-001", a))
	assert.Equal(t, int64(0), env.count(t, &model.InOutDocument{}))
}

func TestCreateDocument_DispatchNotFound(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("NOPE", "1", from(lineID, "1"))), "tester")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "1", from(uuid.New(), "1"))), "tester")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	assertDecimal(t, "10", env.product(t, "P-001").Qty)
	assert.Equal(t, int64(1), env.count(t, &model.Document{}))
}

func TestCreateDocument_InvalidSource(t *testing.T) {
	env := strictEnv(t)
	_, p1Line := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))
	_, p2Line := env.receive(t, inDoc("IN-2", "2024-01-01", item("P-002", "10")))

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "1", from(p2Line, "1"))), "tester")
	assert.ErrorIs(t, err, ErrInvalidSource)

	out, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-2", "2024-01-02", item("P-001", "1", from(p1Line, "1"))), "tester")
	require.NoError(t, err)

	// An OUT line is never a source.
	_, err = env.ledger.CreateDocument(env.ctx, outDoc("OUT-3", "2024-01-03", item("P-001", "1", from(out.Items[0].ID, "1"))), "tester")
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestCreateDocument_SplitAllocation(t *testing.T) {
	env := strictEnv(t)
	_, a := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "30")))
	_, b := env.receive(t, inDoc("IN-2", "2024-01-02", item("P-001", "30")))

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-03", item("P-001", "50", from(a, "30"), from(b, "20"))), "tester")
	require.NoError(t, err)

	assertDecimal(t, "0", env.sourceBalance(t, "P-001", a))
	assertDecimal(t, "10", env.sourceBalance(t, "P-001", b))
	assertDecimal(t, "10", env.product(t, "P-001").Qty)
}

func TestCreateDocument_RepeatedSourceCannotOverdraw(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "12", from(lineID, "6"), from(lineID, "6"))), "tester")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assertDecimal(t, "10", env.sourceBalance(t, "P-001", lineID))
}

func TestCreateDocument_PackageRules(t *testing.T) {
	env := strictEnv(t)
	_, packed := env.receive(t, inDoc("IN-1", "2024-01-01", withPackages(item("P-001", "100"), "10")))
	_, loose := env.receive(t, inDoc("IN-2", "2024-01-01", item("P-002", "100")))

	tests := []struct {
		name string
		line LineItemRequest
		want error
	}{
		{"package total mismatch", withPackages(item("P-001", "40", fromWithPackages(packed, "40", "3")), "4"), ErrPackageQuantityMismatch},
		{"package quantity without sources packages", withPackages(item("P-001", "40", from(packed, "40")), "4"), ErrPackageQuantityMismatch},
		{"packages drawn by line without package quantity", item("P-001", "40", fromWithPackages(packed, "40", "4")), ErrPackageQuantityMismatch},
		{"package balance exceeded", withPackages(item("P-001", "40", fromWithPackages(packed, "40", "11")), "11"), ErrInsufficientPackageBalance},
		{"source without packages", withPackages(item("P-002", "40", fromWithPackages(loose, "40", "1")), "1"), ErrInsufficientPackageBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-X", "2024-01-02", tt.line), "tester")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02",
		withPackages(item("P-001", "40", fromWithPackages(packed, "40", "4")), "4")), "tester")
	require.NoError(t, err)

	p := env.product(t, "P-001")
	assertDecimal(t, "60", p.Qty)
	assertDecimal(t, "6", p.PackageQty)

	sources, err := env.balance.AvailableSources(env.ctx, "P-001", false)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.True(t, sources[0].PackageBalance.Valid)
	assertDecimal(t, "6", sources[0].PackageBalance.Decimal)
}

func TestDeleteDocument_RoundTrip(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", withPackages(item("P-001", "100"), "10")))

	before := env.product(t, "P-001")

	out, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02",
		withPackages(item("P-001", "35.25", fromWithPackages(lineID, "35.25", "3")), "3")), "tester")
	require.NoError(t, err)
	require.NoError(t, env.ledger.DeleteDocument(env.ctx, out.ID, "tester"))

	after := env.product(t, "P-001")
	assertDecimal(t, before.Qty.String(), after.Qty)
	assertDecimal(t, before.PackageQty.String(), after.PackageQty)
	assert.Equal(t, int64(1), env.count(t, &model.Document{}))
	assert.Equal(t, int64(1), env.count(t, &model.DocumentProductItem{}))
	assert.Equal(t, int64(0), env.count(t, &model.InOutDocument{}))

	_, err = env.ledger.GetDocument(env.ctx, out.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDeleteDocument_InReversesReceipt(t *testing.T) {
	env := strictEnv(t)
	doc, _ := env.receive(t, inDoc("IN-1", "2024-01-01", withPackages(item("P-001", "100"), "10"), item("P-002", "5")))

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, doc.ID, "tester"))

	p1 := env.product(t, "P-001")
	assertDecimal(t, "0", p1.Qty)
	assertDecimal(t, "0", p1.PackageQty)
	assertDecimal(t, "0", env.product(t, "P-002").Qty)
	assert.Equal(t, int64(0), env.count(t, &model.DocumentProductItem{}))
}

func TestDeleteDocument_NotFound(t *testing.T) {
	env := strictEnv(t)

	err := env.ledger.DeleteDocument(env.ctx, uuid.New(), "tester")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Empty(t, env.publisher.actions())
}

func TestDeleteDocument_StrictInDeleteRefusesReferencedSource(t *testing.T) {
	env := strictEnv(t)
	in, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "100")))
	out, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "40", from(lineID, "40"))), "tester")
	require.NoError(t, err)

	err = env.ledger.DeleteDocument(env.ctx, in.ID, "tester")
	assert.ErrorIs(t, err, ErrSourceInUse)
	assertDecimal(t, "60", env.product(t, "P-001").Qty)

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, out.ID, "tester"))
	require.NoError(t, env.ledger.DeleteDocument(env.ctx, in.ID, "tester"))
	assertDecimal(t, "0", env.product(t, "P-001").Qty)
}

// With strict deletion off, removing a drawn-on IN document leaves the OUT
// allocations dangling and the registry negative until the OUT is deleted.
func TestDeleteDocument_LegacyInDeleteLeavesDanglingLinks(t *testing.T) {
	env := newTestEnv(t, LedgerOptions{StrictInDelete: false})
	in, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "100")))
	out, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "40", from(lineID, "40"))), "tester")
	require.NoError(t, err)

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, in.ID, "tester"))
	assertDecimal(t, "-40", env.product(t, "P-001").Qty)
	assert.Equal(t, int64(1), env.count(t, &model.InOutDocument{}))

	sources, err := env.balance.AvailableSources(env.ctx, "P-001", false)
	require.NoError(t, err)
	assert.Empty(t, sources)

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, out.ID, "tester"))
	assertDecimal(t, "0", env.product(t, "P-001").Qty)
}

func TestCreateDocument_ConcurrentAllocationsNeverOverdraw(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "100")))

	const workers = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.CreateDocument(env.ctx, outDoc(uuid.NewString(), "2024-01-02", item("P-001", "30", from(lineID, "30"))), "tester")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	}
	assertDecimal(t, "10", env.sourceBalance(t, "P-001", lineID))
	assertDecimal(t, "10", env.product(t, "P-001").Qty)
}

func TestLedger_PublishesOnlyCommittedMutations(t *testing.T) {
	env := strictEnv(t)
	in, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))

	_, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "11", from(lineID, "11"))), "tester")
	require.Error(t, err)

	require.NoError(t, env.ledger.DeleteDocument(env.ctx, in.ID, "tester"))

	assert.Equal(t, []string{"document_created", "document_deleted"}, env.publisher.actions())
}

func TestListDocuments_FiltersAndPaginates(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("BC-IN-001", "2024-01-01", item("ABC-1", "10")))
	env.receive(t, inDoc("BC-IN-002", "2024-01-02", item("XYZ-1", "10")))
	env.receive(t, inDoc("OTHER-003", "2024-01-03", item("ABC-2", "10")))
	_, err := env.ledger.CreateDocument(env.ctx, outDoc("BC-OUT-001", "2024-01-04", item("ABC-1", "5", from(lineID, "5"))), "tester")
	require.NoError(t, err)

	docs, total, err := env.ledger.ListDocuments(env.ctx, model.DocumentFilter{Direction: model.DirectionIn})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, docs, 3)
	assert.Equal(t, "OTHER-003", docs[0].DocumentNumber, "newest first")

	docs, total, err = env.ledger.ListDocuments(env.ctx, model.DocumentFilter{DocumentNumber: "bc-in"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, docs, 2)

	docs, total, err = env.ledger.ListDocuments(env.ctx, model.DocumentFilter{ProductCode: "abc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	docs, total, err = env.ledger.ListDocuments(env.ctx, model.DocumentFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, docs, 1)
	assert.Equal(t, "BC-IN-001", docs[0].DocumentNumber)
}

func TestGetDocument_LoadsItemsAndAllocations(t *testing.T) {
	env := strictEnv(t)
	_, lineID := env.receive(t, inDoc("IN-1", "2024-01-01", item("P-001", "10")))
	out, err := env.ledger.CreateDocument(env.ctx, outDoc("OUT-1", "2024-01-02", item("P-001", "4", from(lineID, "4"))), "tester")
	require.NoError(t, err)

	got, err := env.ledger.GetDocument(env.ctx, out.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.NotNil(t, got.Items[0].Product)
	assert.Equal(t, "P-001", got.Items[0].Product.ProductCode)
	require.Len(t, got.OutLinks, 1)
	assert.Equal(t, lineID, got.OutLinks[0].SourceItemID)
	assertDecimal(t, "4", got.OutLinks[0].QtyUsed)
}
