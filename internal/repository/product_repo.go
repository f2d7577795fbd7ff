package repository

import (
	"context"

	"go-customs-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Receipt is the registry side of one IN line.
type Receipt struct {
	ProductCode string
	ProductName string
	Qty         decimal.Decimal
	Unit        string
	PackageQty  decimal.NullDecimal
	PackageUnit *string
	Actor       string
}

type ProductRepository interface {
	FindAll(ctx context.Context) ([]model.Product, error)
	FindByCode(tx *gorm.DB, code string) (*model.Product, error)
	FindByCodePrefix(ctx context.Context, prefix string) ([]model.Product, error)
	UpsertOnReceipt(tx *gorm.DB, r Receipt) (*model.Product, error)
	DecrementOnDispatch(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal, packageQty decimal.NullDecimal) error
	ReverseReceipt(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal, packageQty decimal.NullDecimal) error
	ReverseDispatch(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal, packageQty decimal.NullDecimal) error
	FindByIDForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Product, error)
	SetStock(tx *gorm.DB, id uuid.UUID, qty, packageQty decimal.Decimal, updatedBy string) error
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepository {
	return &productRepo{db}
}

func (r *productRepo) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).Order("product_name ASC").Find(&products).Error
	return products, err
}

func (r *productRepo) FindByCode(tx *gorm.DB, code string) (*model.Product, error) {
	var product model.Product
	if err := tx.First(&product, "product_code = ?", code).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepo) FindByCodePrefix(ctx context.Context, prefix string) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where(`product_code LIKE ? ESCAPE '\'`, likePrefix(prefix)).
		Order("product_code ASC").
		Find(&products).Error
	return products, err
}

// UpsertOnReceipt creates the product on first receipt, otherwise adds the
// received quantities. The name follows the latest receipt; units stay as
// first registered.
func (r *productRepo) UpsertOnReceipt(tx *gorm.DB, rc Receipt) (*model.Product, error) {
	product := model.Product{
		ProductCode: rc.ProductCode,
		ProductName: rc.ProductName,
		Qty:         rc.Qty,
		Unit:        rc.Unit,
		PackageQty:  decimal.Zero,
		PackageUnit: rc.PackageUnit,
	}
	if rc.PackageQty.Valid {
		product.PackageQty = rc.PackageQty.Decimal
	}
	product.CreatedBy = rc.Actor
	product.UpdatedBy = rc.Actor

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_code"}},
		DoNothing: true,
	}).Create(&product)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return &product, nil
	}

	existing, err := r.lock(tx, "product_code = ?", rc.ProductCode)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"product_name": rc.ProductName,
		"qty":          existing.Qty.Add(rc.Qty),
		"updated_by":   rc.Actor,
	}
	if rc.PackageQty.Valid {
		updates["package_qty"] = existing.PackageQty.Add(rc.PackageQty.Decimal)
	}
	if err := tx.Model(&model.Product{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.FindByCode(tx, rc.ProductCode)
}

// DecrementOnDispatch does not reject negative results; balance validation
// belongs to the caller.
func (r *productRepo) DecrementOnDispatch(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal, packageQty decimal.NullDecimal) error {
	return r.adjust(tx, id, qty.Neg(), model.Negate(packageQty))
}

func (r *productRepo) ReverseReceipt(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal, packageQty decimal.NullDecimal) error {
	return r.adjust(tx, id, qty.Neg(), model.Negate(packageQty))
}

func (r *productRepo) ReverseDispatch(tx *gorm.DB, id uuid.UUID, qty decimal.Decimal, packageQty decimal.NullDecimal) error {
	return r.adjust(tx, id, qty, packageQty)
}

// FindByIDForUpdate locks the product row for the rest of the transaction.
func (r *productRepo) FindByIDForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	return r.lock(tx, "id = ?", id)
}

func (r *productRepo) SetStock(tx *gorm.DB, id uuid.UUID, qty, packageQty decimal.Decimal, updatedBy string) error {
	res := tx.Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"qty":         qty,
			"package_qty": packageQty,
			"updated_by":  updatedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// adjust reads the locked row and writes the new totals, so the sum is taken
// in decimal rather than in the column's storage type.
func (r *productRepo) adjust(tx *gorm.DB, id uuid.UUID, qtyDelta decimal.Decimal, packageDelta decimal.NullDecimal) error {
	product, err := r.lock(tx, "id = ?", id)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"qty": product.Qty.Add(qtyDelta),
	}
	if packageDelta.Valid {
		updates["package_qty"] = product.PackageQty.Add(packageDelta.Decimal)
	}
	return tx.Model(&model.Product{}).Where("id = ?", id).Updates(updates).Error
}

func (r *productRepo) lock(tx *gorm.DB, query string, args ...interface{}) (*model.Product, error) {
	var product model.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, append([]interface{}{query}, args...)...).Error; err != nil {
		return nil, err
	}
	return &product, nil
}
