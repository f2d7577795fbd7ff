package service

import (
	"context"
	"errors"
	"iter"
	"sort"

	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/repository"
	"go-customs-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceService answers read-only questions about remaining stock. Every
// figure it returns is derived from the ledger rows, never from the cached
// product quantities, except where a snapshot puts both side by side.
type BalanceService interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	ProductHistory(ctx context.Context, productCode string) (iter.Seq[model.HistoryEvent], error)
	ProductStock(ctx context.Context, productCode string) (*model.StockSnapshot, error)
	AvailableSources(ctx context.Context, productCode string, prefix bool) ([]model.SourceBalance, error)
	CheckConsistency(ctx context.Context) ([]model.StockSnapshot, error)
	RepairStock(ctx context.Context, actor string) ([]model.StockSnapshot, error)
}

type balanceService struct {
	db             *gorm.DB
	productRepo    repository.ProductRepository
	documentRepo   repository.DocumentRepository
	allocationRepo repository.AllocationRepository
	metrics        *metrics.Metrics
}

func NewBalanceService(
	db *gorm.DB,
	pRepo repository.ProductRepository,
	dRepo repository.DocumentRepository,
	aRepo repository.AllocationRepository,
	m *metrics.Metrics,
) BalanceService {
	return &balanceService{
		db:             db,
		productRepo:    pRepo,
		documentRepo:   dRepo,
		allocationRepo: aRepo,
		metrics:        m,
	}
}

func (s *balanceService) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.productRepo.FindAll(ctx)
}

func (s *balanceService) findProduct(ctx context.Context, code string) (*model.Product, error) {
	product, err := s.productRepo.FindByCode(s.db.WithContext(ctx), code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerErr(ErrProductNotFound, "%s", code)
	}
	return product, err
}

// ProductHistory loads every movement of a product and returns them ordered by
// document date. On equal dates receipts come before allocations, each in
// creation order.
// The sequence can be ranged over more than once; running balances are
// computed afresh on every pass.
func (s *balanceService) ProductHistory(ctx context.Context, productCode string) (iter.Seq[model.HistoryEvent], error) {
	product, err := s.findProduct(ctx, productCode)
	if err != nil {
		return nil, err
	}

	items, err := s.documentRepo.FindInItems(ctx, []uuid.UUID{product.ID})
	if err != nil {
		return nil, err
	}
	links, err := s.allocationRepo.FindByProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	events := make([]model.HistoryEvent, 0, len(items)+len(links))
	for _, it := range items {
		e := model.HistoryEvent{
			DocumentID:  it.DocumentID,
			Type:        model.DirectionIn,
			Qty:         it.Qty,
			Unit:        it.Unit,
			PackageQty:  it.PackageQty,
			PackageUnit: it.PackageUnit,
		}
		if it.Document != nil {
			e.Date = it.Document.Date
			e.DocumentNumber = it.Document.DocumentNumber
			e.Category = it.Document.Category
		}
		events = append(events, e)
	}
	for _, l := range links {
		e := model.HistoryEvent{
			DocumentID: l.OutDocumentID,
			Type:       model.DirectionOut,
			Qty:        l.QtyUsed.Neg(),
			Unit:       product.Unit,
			PackageQty: model.Negate(l.PackageQtyUsed),
		}
		if l.OutDocument != nil {
			e.Date = l.OutDocument.Date
			e.DocumentNumber = l.OutDocument.DocumentNumber
			e.Category = l.OutDocument.Category
		}
		if l.SourceItem != nil {
			e.Unit = l.SourceItem.Unit
			e.PackageUnit = l.SourceItem.PackageUnit
		}
		events = append(events, e)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return runningBalance(events), nil
}

func runningBalance(events []model.HistoryEvent) iter.Seq[model.HistoryEvent] {
	return func(yield func(model.HistoryEvent) bool) {
		balance, pkg := decimal.Zero, decimal.Zero
		for _, e := range events {
			balance = balance.Add(e.Qty)
			if e.PackageQty.Valid {
				pkg = pkg.Add(e.PackageQty.Decimal)
			}
			e.Balance = balance
			e.PackageBalance = pkg
			if !yield(e) {
				return
			}
		}
	}
}

// ProductStock puts the cached product quantities next to the quantities
// derived from IN lines and allocations.
func (s *balanceService) ProductStock(ctx context.Context, productCode string) (*model.StockSnapshot, error) {
	product, err := s.findProduct(ctx, productCode)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(s.db.WithContext(ctx), product)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *balanceService) snapshot(db *gorm.DB, product *model.Product) (model.StockSnapshot, error) {
	inQty, inPkg, err := s.documentRepo.SumInQuantities(db, product.ID)
	if err != nil {
		return model.StockSnapshot{}, err
	}
	usedQty, usedPkg, err := s.allocationRepo.SumUsed(db, product.ID)
	if err != nil {
		return model.StockSnapshot{}, err
	}
	snap := model.StockSnapshot{
		ProductID:         product.ID,
		ProductCode:       product.ProductCode,
		CachedQty:         product.Qty,
		DerivedQty:        inQty.Sub(usedQty),
		CachedPackageQty:  product.PackageQty,
		DerivedPackageQty: inPkg.Sub(usedPkg),
	}
	snap.Drifted = snap.Drift()
	return snap, nil
}

// AvailableSources lists IN lines of the product that still have balance,
// oldest document first. With prefix set, every product whose code starts
// with productCode is included. An unknown product yields an empty list.
func (s *balanceService) AvailableSources(ctx context.Context, productCode string, prefix bool) ([]model.SourceBalance, error) {
	var products []model.Product
	if prefix {
		found, err := s.productRepo.FindByCodePrefix(ctx, productCode)
		if err != nil {
			return nil, err
		}
		products = found
	} else {
		product, err := s.productRepo.FindByCode(s.db.WithContext(ctx), productCode)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if product != nil && err == nil {
			products = append(products, *product)
		}
	}

	ids := make([]uuid.UUID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	items, err := s.documentRepo.FindInItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	sources := make([]model.SourceBalance, 0, len(items))
	for _, it := range items {
		balance := it.Balance()
		if !balance.IsPositive() {
			continue
		}
		src := model.SourceBalance{
			LineItemID:     it.ID,
			DocumentID:     it.DocumentID,
			Balance:        balance,
			PackageBalance: it.PackageBalance(),
			Unit:           it.Unit,
			PackageUnit:    it.PackageUnit,
		}
		if it.Document != nil {
			src.DocumentNumber = it.Document.DocumentNumber
			src.Date = it.Document.Date
		}
		if it.Product != nil {
			src.ProductCode = it.Product.ProductCode
		}
		sources = append(sources, src)
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Date.Before(sources[j].Date)
	})
	return sources, nil
}

// CheckConsistency compares every product and returns the ones whose cached
// stock drifted from the ledger. The drift gauge is updated for all of them.
func (s *balanceService) CheckConsistency(ctx context.Context) ([]model.StockSnapshot, error) {
	products, err := s.productRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	drifted := make([]model.StockSnapshot, 0)
	for i := range products {
		snap, err := s.snapshot(s.db.WithContext(ctx), &products[i])
		if err != nil {
			return nil, err
		}
		s.metrics.SetDrift(snap.ProductCode, snap.CachedQty.Sub(snap.DerivedQty).InexactFloat64())
		if snap.Drift() {
			drifted = append(drifted, snap)
		}
	}
	return drifted, nil
}

// RepairStock overwrites drifting cached quantities with the derived ones in
// a single transaction and returns the snapshots it repaired. Each product
// row is locked before its ledger totals are read, so a concurrent mutation
// either lands before the recount or waits for the repair to commit.
func (s *balanceService) RepairStock(ctx context.Context, actor string) ([]model.StockSnapshot, error) {
	products, err := s.productRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	repaired := make([]model.StockSnapshot, 0)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range products {
			product, err := s.productRepo.FindByIDForUpdate(tx, p.ID)
			if err != nil {
				return err
			}
			snap, err := s.snapshot(tx, product)
			if err != nil {
				return err
			}
			if !snap.Drifted {
				continue
			}
			if err := s.productRepo.SetStock(tx, snap.ProductID, snap.DerivedQty, snap.DerivedPackageQty, actor); err != nil {
				return err
			}
			repaired = append(repaired, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range products {
		s.metrics.SetDrift(p.ProductCode, 0)
	}
	return repaired, nil
}
