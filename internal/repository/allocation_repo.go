package repository

import (
	"context"

	"go-customs-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AllocationRepository stores the IN-line consumption links of OUT documents.
type AllocationRepository interface {
	Create(tx *gorm.DB, link *model.InOutDocument) error
	DeleteByOutDocument(tx *gorm.DB, outDocumentID uuid.UUID) error
	CountByInDocument(tx *gorm.DB, inDocumentID uuid.UUID) (int64, error)
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]model.InOutDocument, error)
	SumUsed(tx *gorm.DB, productID uuid.UUID) (qty, packageQty decimal.Decimal, err error)
}

type allocationRepo struct {
	db *gorm.DB
}

func NewAllocationRepo(db *gorm.DB) AllocationRepository {
	return &allocationRepo{db}
}

func (r *allocationRepo) Create(tx *gorm.DB, link *model.InOutDocument) error {
	return tx.Omit("InDocument", "OutDocument", "Product", "SourceItem").Create(link).Error
}

func (r *allocationRepo) DeleteByOutDocument(tx *gorm.DB, outDocumentID uuid.UUID) error {
	return tx.Where("out_document_id = ?", outDocumentID).Delete(&model.InOutDocument{}).Error
}

func (r *allocationRepo) CountByInDocument(tx *gorm.DB, inDocumentID uuid.UUID) (int64, error) {
	var n int64
	err := tx.Model(&model.InOutDocument{}).Where("in_document_id = ?", inDocumentID).Count(&n).Error
	return n, err
}

func (r *allocationRepo) FindByProduct(ctx context.Context, productID uuid.UUID) ([]model.InOutDocument, error) {
	var links []model.InOutDocument
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Preload("OutDocument").
		Preload("SourceItem").
		Order("created_at ASC").
		Order("id ASC").
		Find(&links).Error
	return links, err
}

func (r *allocationRepo) SumUsed(tx *gorm.DB, productID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var agg quantityAggregate
	err := tx.Model(&model.InOutDocument{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(qty_used), 0) AS qty, COALESCE(SUM(package_qty_used), 0) AS package_qty").
		Scan(&agg).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	qty, pkg := agg.rounded()
	return qty, pkg, nil
}
