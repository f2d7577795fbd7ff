package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/repository"
	"go-customs-ledger/pkg/logger"
	"go-customs-ledger/pkg/metrics"
	"go-customs-ledger/pkg/validator"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Publisher receives ledger events after their transaction has committed.
type Publisher interface {
	Publish(event string, payload any)
}

type LedgerService interface {
	CreateDocument(ctx context.Context, req *CreateDocumentRequest, actor string) (*model.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID, actor string) error
	GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ListDocuments(ctx context.Context, filter model.DocumentFilter) ([]model.Document, int64, error)
}

type LedgerOptions struct {
	// StrictInDelete refuses to delete IN documents that OUT allocations
	// still draw on. When false, such links are left dangling.
	StrictInDelete bool
	Location       *time.Location
}

type ledgerService struct {
	db             *gorm.DB
	productRepo    repository.ProductRepository
	documentRepo   repository.DocumentRepository
	allocationRepo repository.AllocationRepository
	publisher      Publisher
	metrics        *metrics.Metrics
	log            *logrus.Logger
	opts           LedgerOptions
}

func NewLedgerService(
	db *gorm.DB,
	pRepo repository.ProductRepository,
	dRepo repository.DocumentRepository,
	aRepo repository.AllocationRepository,
	publisher Publisher,
	m *metrics.Metrics,
	log *logrus.Logger,
	opts LedgerOptions,
) LedgerService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ledgerService{
		db:             db,
		productRepo:    pRepo,
		documentRepo:   dRepo,
		allocationRepo: aRepo,
		publisher:      publisher,
		metrics:        m,
		log:            log,
		opts:           opts,
	}
}

// CreateDocument records a document with its line items in one transaction.
// IN items register stock; OUT items consume it through allocations against
// IN lines. Any failure rolls back every write.
func (s *ledgerService) CreateDocument(ctx context.Context, req *CreateDocumentRequest, actor string) (*model.Document, error) {
	doc, err := s.prepare(req, actor)
	if err != nil {
		s.reject("create", err)
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.documentRepo.Create(tx, doc); err != nil {
			return err
		}
		if doc.Direction == model.DirectionIn {
			return s.receive(tx, doc, req.Items, actor)
		}
		return s.dispatch(tx, doc, req.Items, actor)
	})
	if err != nil {
		s.reject("create", err)
		return nil, err
	}

	s.metrics.DocumentCreated(string(doc.Direction))
	s.log.WithFields(logrus.Fields{
		"document_id":     doc.ID,
		"document_number": doc.DocumentNumber,
		"direction":       doc.Direction,
		"items":           len(doc.Items),
		"actor":           actor,
	}).Info("document created")

	s.publish("document_created", doc, actor)
	return doc, nil
}

func (s *ledgerService) prepare(req *CreateDocumentRequest, actor string) (*model.Document, error) {
	if req == nil {
		return nil, &ValidationError{Fields: map[string][]string{"body": {"is required"}}}
	}
	req.normalize()
	if errs := validator.ValidateStruct(req); len(errs) > 0 {
		return nil, newValidationError(errs)
	}
	if verr := req.checkShape(); verr != nil {
		return nil, verr
	}

	date, err := time.ParseInLocation(dateLayout, req.Date, s.opts.Location)
	if err != nil {
		return nil, &ValidationError{Fields: map[string][]string{"date": {"must be a date in YYYY-MM-DD format"}}}
	}

	doc := &model.Document{
		DocumentNumber:     req.DocumentNumber,
		RegistrationNumber: optional(req.RegistrationNumber),
		Date:               date,
		Direction:          req.Direction,
		Category:           req.Category,
		CompanyName:        optional(req.CompanyName),
		Price:              req.Price,
	}
	doc.CreatedBy = actor
	doc.UpdatedBy = actor
	return doc, nil
}

// receive registers each IN line and adds it to the product's cached stock,
// creating the product on its first receipt.
func (s *ledgerService) receive(tx *gorm.DB, doc *model.Document, items []LineItemRequest, actor string) error {
	for _, it := range items {
		product, err := s.productRepo.UpsertOnReceipt(tx, repository.Receipt{
			ProductCode: it.ProductCode,
			ProductName: it.ProductName,
			Qty:         it.Qty,
			Unit:        it.Unit,
			PackageQty:  it.PackageQty,
			PackageUnit: optional(it.PackageUnit),
			Actor:       actor,
		})
		if err != nil {
			return err
		}

		line := newLine(doc, product, it, actor)
		if err := s.documentRepo.CreateItem(tx, &line); err != nil {
			return err
		}
		line.Product = product
		doc.Items = append(doc.Items, line)
	}
	return nil
}

// dispatch records each OUT line, decrements the product's cached stock and
// links the line to the IN lines it consumes.
func (s *ledgerService) dispatch(tx *gorm.DB, doc *model.Document, items []LineItemRequest, actor string) error {
	for i, it := range items {
		product, err := s.productRepo.FindByCode(tx, it.ProductCode)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgerErr(ErrProductNotFound, "items[%d]: %s", i, it.ProductCode)
		}
		if err != nil {
			return err
		}

		line := newLine(doc, product, it, actor)
		if err := s.documentRepo.CreateItem(tx, &line); err != nil {
			return err
		}
		if err := s.productRepo.DecrementOnDispatch(tx, product.ID, it.Qty, it.PackageQty); err != nil {
			return err
		}
		if err := checkAllocationTotals(i, it); err != nil {
			return err
		}

		for _, src := range it.Sources {
			link, err := s.allocate(tx, doc, product, i, src, actor)
			if err != nil {
				return err
			}
			doc.OutLinks = append(doc.OutLinks, *link)
		}

		line.Product = product
		doc.Items = append(doc.Items, line)
	}
	return nil
}

func (s *ledgerService) allocate(tx *gorm.DB, doc *model.Document, product *model.Product, idx int, src AllocationRequest, actor string) (*model.InOutDocument, error) {
	source, err := s.documentRepo.FindSourceItemForUpdate(tx, src.SourceItemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerErr(ErrSourceNotFound, "items[%d]: %s", idx, src.SourceItemID)
	}
	if err != nil {
		return nil, err
	}

	if source.Document == nil || source.Document.Direction != model.DirectionIn {
		return nil, ledgerErr(ErrInvalidSource, "items[%d]: %s is not an IN line", idx, source.ID)
	}
	if source.ProductID != product.ID {
		return nil, ledgerErr(ErrInvalidSource, "items[%d]: %s holds another product than %s", idx, source.ID, product.ProductCode)
	}

	if balance := source.Balance(); src.QtyUsed.GreaterThan(balance) {
		return nil, ledgerErr(ErrInsufficientBalance, "%s from %s: requested %s, available %s",
			product.ProductCode, source.Document.DocumentNumber, src.QtyUsed, balance)
	}
	if src.PackageQtyUsed.Valid && src.PackageQtyUsed.Decimal.IsPositive() {
		pkg := source.PackageBalance()
		if !pkg.Valid || src.PackageQtyUsed.Decimal.GreaterThan(pkg.Decimal) {
			available := "none"
			if pkg.Valid {
				available = pkg.Decimal.String()
			}
			return nil, ledgerErr(ErrInsufficientPackageBalance, "%s from %s: requested %s, available %s",
				product.ProductCode, source.Document.DocumentNumber, src.PackageQtyUsed.Decimal, available)
		}
	}

	link := &model.InOutDocument{
		InDocumentID:   source.DocumentID,
		OutDocumentID:  doc.ID,
		ProductID:      product.ID,
		SourceItemID:   source.ID,
		QtyUsed:        src.QtyUsed,
		PackageQtyUsed: src.PackageQtyUsed,
	}
	link.CreatedBy = actor
	link.UpdatedBy = actor
	if err := s.allocationRepo.Create(tx, link); err != nil {
		return nil, err
	}
	return link, nil
}

// checkAllocationTotals requires the sources of an OUT line to add up to its
// quantity exactly, and to its package quantity when it has one.
func checkAllocationTotals(idx int, it LineItemRequest) error {
	total := decimal.Zero
	pkgTotal := decimal.Zero
	for _, src := range it.Sources {
		total = total.Add(src.QtyUsed)
		if src.PackageQtyUsed.Valid {
			pkgTotal = pkgTotal.Add(src.PackageQtyUsed.Decimal)
		}
	}

	if !total.Equal(it.Qty) {
		return ledgerErr(ErrQuantityMismatch, "items[%d] %s: allocated %s, required %s", idx, it.ProductCode, total, it.Qty)
	}
	if it.PackageQty.Valid {
		if !pkgTotal.Equal(it.PackageQty.Decimal) {
			return ledgerErr(ErrPackageQuantityMismatch, "items[%d] %s: allocated %s, required %s",
				idx, it.ProductCode, pkgTotal, it.PackageQty.Decimal)
		}
	} else if pkgTotal.IsPositive() {
		return ledgerErr(ErrPackageQuantityMismatch, "items[%d] %s: item has no package quantity", idx, it.ProductCode)
	}
	return nil
}

func newLine(doc *model.Document, product *model.Product, it LineItemRequest, actor string) model.DocumentProductItem {
	line := model.DocumentProductItem{
		DocumentID:  doc.ID,
		ProductID:   product.ID,
		Qty:         it.Qty,
		Unit:        it.Unit,
		PackageQty:  it.PackageQty,
		PackageUnit: optional(it.PackageUnit),
	}
	line.CreatedBy = actor
	line.UpdatedBy = actor
	return line
}

// DeleteDocument reverses a document's effect on product stock and removes
// it with its line items and, for OUT documents, its allocations.
func (s *ledgerService) DeleteDocument(ctx context.Context, id uuid.UUID, actor string) error {
	var deleted *model.Document

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := s.documentRepo.FindForDeletion(tx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgerErr(ErrDocumentNotFound, "%s", id)
		}
		if err != nil {
			return err
		}

		switch doc.Direction {
		case model.DirectionOut:
			for _, link := range doc.OutLinks {
				if err := s.productRepo.ReverseDispatch(tx, link.ProductID, link.QtyUsed, link.PackageQtyUsed); err != nil {
					return err
				}
			}
			if err := s.allocationRepo.DeleteByOutDocument(tx, doc.ID); err != nil {
				return err
			}
		case model.DirectionIn:
			if s.opts.StrictInDelete {
				n, err := s.allocationRepo.CountByInDocument(tx, doc.ID)
				if err != nil {
					return err
				}
				if n > 0 {
					return ledgerErr(ErrSourceInUse, "%s has %d allocations", doc.DocumentNumber, n)
				}
			}
			for _, item := range doc.Items {
				if err := s.productRepo.ReverseReceipt(tx, item.ProductID, item.Qty, item.PackageQty); err != nil {
					return err
				}
			}
		}

		if err := s.documentRepo.DeleteItems(tx, doc.ID); err != nil {
			return err
		}
		if err := s.documentRepo.Delete(tx, doc.ID); err != nil {
			return err
		}
		deleted = doc
		return nil
	})
	if err != nil {
		s.reject("delete", err)
		return err
	}

	s.metrics.DocumentDeleted(string(deleted.Direction))
	s.log.WithFields(logrus.Fields{
		"document_id":     deleted.ID,
		"document_number": deleted.DocumentNumber,
		"direction":       deleted.Direction,
		"actor":           actor,
	}).Info("document deleted")

	s.publish("document_deleted", deleted, actor)
	return nil
}

func (s *ledgerService) GetDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	doc, err := s.documentRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerErr(ErrDocumentNotFound, "%s", id)
	}
	return doc, err
}

func (s *ledgerService) ListDocuments(ctx context.Context, filter model.DocumentFilter) ([]model.Document, int64, error) {
	return s.documentRepo.List(ctx, filter)
}

func (s *ledgerService) reject(operation string, err error) {
	r := reason(err)
	s.metrics.MutationRejected(operation, r)
	if r == "internal" {
		logger.LogError(s.log, "service", "ledgerService", operation, nil, err)
		return
	}
	s.log.WithFields(logrus.Fields{"operation": operation, "reason": r}).Warn(err.Error())
}

func (s *ledgerService) publish(action string, doc *model.Document, actor string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(action, map[string]interface{}{
		"document": map[string]interface{}{
			"id":             doc.ID,
			"documentNumber": doc.DocumentNumber,
			"direction":      doc.Direction,
			"category":       doc.Category,
			"date":           doc.Date.Format(dateLayout),
		},
		"user":    actor,
		"message": fmt.Sprintf("%s %s %s document %s", actor, verb(action), doc.Direction, doc.DocumentNumber),
	})
}

func verb(action string) string {
	if action == "document_deleted" {
		return "deleted"
	}
	return "created"
}
