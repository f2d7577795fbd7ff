package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// DocumentCategory is the customs form a document was filed under.
type DocumentCategory string

const (
	CategoryBC16  DocumentCategory = "BC_1_6"
	CategoryBC27  DocumentCategory = "BC_2_7"
	CategoryBC33  DocumentCategory = "BC_3_3"
	CategoryBC40  DocumentCategory = "BC_4_0"
	CategoryP3BET DocumentCategory = "P3BET"
)

type Document struct {
	BaseModel
	DocumentNumber     string              `gorm:"type:varchar(100);not null;index" json:"documentNumber"`
	RegistrationNumber *string             `gorm:"type:varchar(100)" json:"registrationNumber,omitempty"`
	Date               time.Time           `gorm:"not null;index" json:"date"`
	Direction          Direction           `gorm:"type:varchar(3);not null;index" json:"direction"`
	Category           DocumentCategory    `gorm:"type:varchar(10);not null" json:"category"`
	CompanyName        *string             `gorm:"type:varchar(255)" json:"companyName,omitempty"`
	Price              decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"price"`

	Items    []DocumentProductItem `gorm:"foreignKey:DocumentID" json:"items,omitempty"`
	OutLinks []InOutDocument       `gorm:"foreignKey:OutDocumentID" json:"allocations,omitempty"`
}

// DocumentProductItem is one product line of a document. On an IN document
// it is a depletable pool that OUT allocations draw on.
type DocumentProductItem struct {
	BaseModel
	DocumentID  uuid.UUID           `gorm:"type:uuid;not null;index" json:"documentId"`
	Document    *Document           `gorm:"foreignKey:DocumentID" json:"document,omitempty"`
	ProductID   uuid.UUID           `gorm:"type:uuid;not null;index" json:"productId"`
	Product     *Product            `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Qty         decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"qty"`
	Unit        string              `gorm:"type:varchar(20);not null" json:"unit"`
	PackageQty  decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"packageQty"`
	PackageUnit *string             `gorm:"type:varchar(20)" json:"packageUnit,omitempty"`

	// Allocations drawing on this line; only populated for IN lines.
	Links []InOutDocument `gorm:"foreignKey:SourceItemID" json:"links,omitempty"`
}

// QtyUsed sums the loaded allocation links.
func (i *DocumentProductItem) QtyUsed() decimal.Decimal {
	used := decimal.Zero
	for _, l := range i.Links {
		used = used.Add(l.QtyUsed)
	}
	return used
}

// Balance is the unconsumed primary quantity. Links must be loaded.
func (i *DocumentProductItem) Balance() decimal.Decimal {
	return i.Qty.Sub(i.QtyUsed())
}

// PackageBalance is the unconsumed package quantity, invalid when the line
// carries no package quantity. Links without a package amount count as zero.
func (i *DocumentProductItem) PackageBalance() decimal.NullDecimal {
	if !i.PackageQty.Valid {
		return decimal.NullDecimal{}
	}
	used := decimal.Zero
	for _, l := range i.Links {
		if l.PackageQtyUsed.Valid {
			used = used.Add(l.PackageQtyUsed.Decimal)
		}
	}
	return decimal.NullDecimal{Decimal: i.PackageQty.Decimal.Sub(used), Valid: true}
}

// InOutDocument links an OUT document's consumption to the IN line it drew from.
type InOutDocument struct {
	BaseModel
	InDocumentID   uuid.UUID            `gorm:"type:uuid;not null;index" json:"inDocumentId"`
	InDocument     *Document            `gorm:"foreignKey:InDocumentID" json:"inDocument,omitempty"`
	OutDocumentID  uuid.UUID            `gorm:"type:uuid;not null;index" json:"outDocumentId"`
	OutDocument    *Document            `gorm:"foreignKey:OutDocumentID" json:"outDocument,omitempty"`
	ProductID      uuid.UUID            `gorm:"type:uuid;not null;index" json:"productId"`
	Product        *Product             `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	SourceItemID   uuid.UUID            `gorm:"type:uuid;not null;index" json:"sourceItemId"`
	SourceItem     *DocumentProductItem `gorm:"foreignKey:SourceItemID" json:"sourceItem,omitempty"`
	QtyUsed        decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"qtyUsed"`
	PackageQtyUsed decimal.NullDecimal  `gorm:"type:decimal(20,4)" json:"packageQtyUsed"`
}

// TableName keeps the historical table name.
func (InOutDocument) TableName() string {
	return "in_out_documents"
}
