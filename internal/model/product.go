package model

import "github.com/shopspring/decimal"

// QuantityScale is the number of decimal places every quantity column keeps.
const QuantityScale int32 = 4

// Product is the registry row for one product code. Qty and PackageQty are a
// cache of the ledger: IN line quantities minus allocated quantities.
type Product struct {
	BaseModel
	ProductCode string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"productCode"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"productName"`
	Qty         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty"`
	Unit        string          `gorm:"type:varchar(20);not null" json:"unit"`
	PackageQty  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"packageQty"`
	PackageUnit *string         `gorm:"type:varchar(20)" json:"packageUnit,omitempty"`
}

// Negate flips the sign of an optional quantity, leaving an absent one absent.
func Negate(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NullDecimal{Decimal: d.Decimal.Neg(), Valid: true}
}
