package repository

import (
	"context"

	"go-customs-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepository interface {
	Create(tx *gorm.DB, doc *model.Document) error
	CreateItem(tx *gorm.DB, item *model.DocumentProductItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	FindForDeletion(tx *gorm.DB, id uuid.UUID) (*model.Document, error)
	FindSourceItemForUpdate(tx *gorm.DB, id uuid.UUID) (*model.DocumentProductItem, error)
	DeleteItems(tx *gorm.DB, documentID uuid.UUID) error
	Delete(tx *gorm.DB, documentID uuid.UUID) error
	List(ctx context.Context, filter model.DocumentFilter) ([]model.Document, int64, error)
	FindForExport(ctx context.Context, filter model.DocumentFilter) ([]model.Document, error)
	FindInItems(ctx context.Context, productIDs []uuid.UUID) ([]model.DocumentProductItem, error)
	SumInQuantities(tx *gorm.DB, productID uuid.UUID) (qty, packageQty decimal.Decimal, err error)
}

type documentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) DocumentRepository {
	return &documentRepo{db}
}

// Create inserts the header only; line items are written one by one.
func (r *documentRepo) Create(tx *gorm.DB, doc *model.Document) error {
	return tx.Omit(clause.Associations).Create(doc).Error
}

func (r *documentRepo) CreateItem(tx *gorm.DB, item *model.DocumentProductItem) error {
	return tx.Omit(clause.Associations).Create(item).Error
}

func (r *documentRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Preload("Items", orderByCreation).
		Preload("Items.Product").
		Preload("Items.Links", orderByCreation).
		Preload("OutLinks", orderByCreation).
		Preload("OutLinks.InDocument").
		Preload("OutLinks.Product").
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindForDeletion locks the document row for the rest of the transaction.
func (r *documentRepo) FindForDeletion(tx *gorm.DB, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items", orderByCreation).
		Preload("OutLinks", orderByCreation).
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindSourceItemForUpdate loads an allocation source with its existing links.
// The row lock serializes concurrent allocations against the same line.
func (r *documentRepo) FindSourceItemForUpdate(tx *gorm.DB, id uuid.UUID) (*model.DocumentProductItem, error) {
	var item model.DocumentProductItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Document").
		Preload("Links").
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *documentRepo) DeleteItems(tx *gorm.DB, documentID uuid.UUID) error {
	return tx.Where("document_id = ?", documentID).Delete(&model.DocumentProductItem{}).Error
}

func (r *documentRepo) Delete(tx *gorm.DB, documentID uuid.UUID) error {
	res := tx.Delete(&model.Document{}, "id = ?", documentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *documentRepo) List(ctx context.Context, filter model.DocumentFilter) ([]model.Document, int64, error) {
	base := applyDocumentFilter(r.db.WithContext(ctx).Model(&model.Document{}), filter).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(filter.Page, filter.PageSize)
	var docs []model.Document
	err := base.
		Preload("Items", orderByCreation).
		Preload("Items.Product").
		Order("documents.date DESC").
		Order("documents.created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	return docs, total, err
}

func (r *documentRepo) FindForExport(ctx context.Context, filter model.DocumentFilter) ([]model.Document, error) {
	var docs []model.Document
	err := applyDocumentFilter(r.db.WithContext(ctx).Model(&model.Document{}), filter).
		Preload("Items", orderByCreation).
		Preload("Items.Product").
		Preload("Items.Links").
		Preload("OutLinks", orderByCreation).
		Preload("OutLinks.Product").
		Preload("OutLinks.SourceItem").
		Order("documents.date DESC").
		Order("documents.created_at DESC").
		Find(&docs).Error
	return docs, err
}

// FindInItems returns every IN line of the given products, oldest first.
func (r *documentRepo) FindInItems(ctx context.Context, productIDs []uuid.UUID) ([]model.DocumentProductItem, error) {
	var items []model.DocumentProductItem
	if len(productIDs) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = document_product_items.document_id").
		Where("documents.direction = ? AND document_product_items.product_id IN ?", model.DirectionIn, productIDs).
		Preload("Document").
		Preload("Product").
		Preload("Links").
		Order("document_product_items.created_at ASC").
		Order("document_product_items.id ASC").
		Find(&items).Error
	return items, err
}

func (r *documentRepo) SumInQuantities(tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var agg quantityAggregate
	err := tx.Model(&model.DocumentProductItem{}).
		Joins("JOIN documents ON documents.id = document_product_items.document_id").
		Where("documents.direction = ? AND document_product_items.product_id = ?", model.DirectionIn, productID).
		Select("COALESCE(SUM(document_product_items.qty), 0) AS qty, " +
			"COALESCE(SUM(document_product_items.package_qty), 0) AS package_qty").
		Scan(&agg).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	qty, pkg := agg.rounded()
	return qty, pkg, nil
}

type quantityAggregate struct {
	Qty        decimal.Decimal
	PackageQty decimal.Decimal
}

// rounded trims a SUM back to the column scale. SQLite sums NUMERIC columns
// as floating point.
func (a quantityAggregate) rounded() (decimal.Decimal, decimal.Decimal) {
	return a.Qty.Round(model.QuantityScale), a.PackageQty.Round(model.QuantityScale)
}

func orderByCreation(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}
