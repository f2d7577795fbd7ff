package service

import (
	"context"
	"sync"
	"testing"

	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/repository"
	"go-customs-ledger/pkg/database"
	"go-customs-ledger/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	action  string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(action string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{action: action, payload: payload})
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.action)
	}
	return out
}

type testEnv struct {
	ctx       context.Context
	db        *gorm.DB
	products  repository.ProductRepository
	documents repository.DocumentRepository
	ledger    LedgerService
	balance   BalanceService
	export    ExportService
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T, opts LedgerOptions) *testEnv {
	t.Helper()

	db, err := database.ConnectSQLite(database.MemoryDSN(uuid.NewString()), logger.Discard())
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	pRepo := repository.NewProductRepo(db)
	dRepo := repository.NewDocumentRepo(db)
	aRepo := repository.NewAllocationRepo(db)
	pub := &recordingPublisher{}

	return &testEnv{
		ctx:       context.Background(),
		db:        db,
		products:  pRepo,
		documents: dRepo,
		ledger:    NewLedgerService(db, pRepo, dRepo, aRepo, pub, nil, logger.Discard(), opts),
		balance:   NewBalanceService(db, pRepo, dRepo, aRepo, nil),
		export:    NewExportService(dRepo),
		publisher: pub,
	}
}

func strictEnv(t *testing.T) *testEnv {
	return newTestEnv(t, LedgerOptions{StrictInDelete: true})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pkg(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func inDoc(number, date string, items ...LineItemRequest) *CreateDocumentRequest {
	return &CreateDocumentRequest{
		Direction:      model.DirectionIn,
		DocumentNumber: number,
		Date:           date,
		Category:       model.CategoryBC40,
		Items:          items,
	}
}

func outDoc(number, date string, items ...LineItemRequest) *CreateDocumentRequest {
	return &CreateDocumentRequest{
		Direction:      model.DirectionOut,
		DocumentNumber: number,
		Date:           date,
		Category:       model.CategoryBC27,
		Items:          items,
	}
}

func item(code, qty string, sources ...AllocationRequest) LineItemRequest {
	return LineItemRequest{
		ProductName: "Product " + code,
		ProductCode: code,
		Qty:         dec(qty),
		Unit:        "KGM",
		Sources:     sources,
	}
}

func withPackages(it LineItemRequest, qty string) LineItemRequest {
	it.PackageQty = pkg(qty)
	it.PackageUnit = "BAG"
	return it
}

func from(sourceID uuid.UUID, qty string) AllocationRequest {
	return AllocationRequest{SourceItemID: sourceID, QtyUsed: dec(qty)}
}

func fromWithPackages(sourceID uuid.UUID, qty, packages string) AllocationRequest {
	a := from(sourceID, qty)
	a.PackageQtyUsed = pkg(packages)
	return a
}

// receive records an IN document and returns the id of its first line.
func (e *testEnv) receive(t *testing.T, req *CreateDocumentRequest) (*model.Document, uuid.UUID) {
	t.Helper()
	doc, err := e.ledger.CreateDocument(e.ctx, req, "tester")
	require.NoError(t, err)
	require.NotEmpty(t, doc.Items)
	return doc, doc.Items[0].ID
}

func (e *testEnv) product(t *testing.T, code string) *model.Product {
	t.Helper()
	p, err := e.products.FindByCode(e.db, code)
	require.NoError(t, err)
	return p
}

func (e *testEnv) sourceBalance(t *testing.T, code string, lineID uuid.UUID) decimal.Decimal {
	t.Helper()
	sources, err := e.balance.AvailableSources(e.ctx, code, false)
	require.NoError(t, err)
	for _, s := range sources {
		if s.LineItemID == lineID {
			return s.Balance
		}
	}
	return decimal.Zero
}

func (e *testEnv) count(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

// assertConsistent checks that the cached stock, the derived stock and the
// closing history balance of a product all agree.
func (e *testEnv) assertConsistent(t *testing.T, code, want string) {
	t.Helper()
	snap, err := e.balance.ProductStock(e.ctx, code)
	require.NoError(t, err)
	assert.False(t, snap.Drifted, "cached %s, derived %s", snap.CachedQty, snap.DerivedQty)
	assertDecimal(t, want, snap.CachedQty, "cached")
	assertDecimal(t, want, snap.DerivedQty, "derived")

	history, err := e.balance.ProductHistory(e.ctx, code)
	require.NoError(t, err)
	last := decimal.Zero
	for ev := range history {
		last = ev.Balance
	}
	assertDecimal(t, snap.DerivedQty.String(), last, "closing history balance")
}
