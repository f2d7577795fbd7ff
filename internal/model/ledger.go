package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HistoryEvent is one signed movement of a product with running balances.
type HistoryEvent struct {
	Date           time.Time           `json:"date"`
	DocumentID     uuid.UUID           `json:"documentId"`
	DocumentNumber string              `json:"documentNumber"`
	Category       DocumentCategory    `json:"category"`
	Type           Direction           `json:"type"`
	Qty            decimal.Decimal     `json:"qty"`
	Unit           string              `json:"unit"`
	PackageQty     decimal.NullDecimal `json:"packageQty"`
	PackageUnit    *string             `json:"packageUnit,omitempty"`
	Balance        decimal.Decimal     `json:"balance"`
	PackageBalance decimal.Decimal     `json:"packageBalance"`
}

// SourceBalance is an IN line that still has quantity to allocate.
type SourceBalance struct {
	LineItemID     uuid.UUID           `json:"lineItemId"`
	DocumentID     uuid.UUID           `json:"documentId"`
	DocumentNumber string              `json:"documentNumber"`
	Date           time.Time           `json:"date"`
	ProductCode    string              `json:"productCode"`
	Balance        decimal.Decimal     `json:"balance"`
	PackageBalance decimal.NullDecimal `json:"packageBalance"`
	Unit           string              `json:"unit"`
	PackageUnit    *string             `json:"packageUnit,omitempty"`
}

// StockSnapshot compares the registry cache with the ledger-derived stock.
type StockSnapshot struct {
	ProductID         uuid.UUID       `json:"productId"`
	ProductCode       string          `json:"productCode"`
	CachedQty         decimal.Decimal `json:"cachedQty"`
	DerivedQty        decimal.Decimal `json:"derivedQty"`
	CachedPackageQty  decimal.Decimal `json:"cachedPackageQty"`
	DerivedPackageQty decimal.Decimal `json:"derivedPackageQty"`
	Drifted           bool            `json:"drifted"`
}

// Drift reports whether the cache disagrees with the ledger.
func (s StockSnapshot) Drift() bool {
	return !s.CachedQty.Equal(s.DerivedQty) || !s.CachedPackageQty.Equal(s.DerivedPackageQty)
}

// RemainingFilter selects IN documents by whether any line still has balance.
type RemainingFilter string

const (
	RemainingAny     RemainingFilter = ""
	RemainingZero    RemainingFilter = "zero"
	RemainingNonZero RemainingFilter = "nonzero"
)

// DocumentFilter drives the document list and the Excel export.
type DocumentFilter struct {
	Direction          Direction
	DocumentNumber     string
	RegistrationNumber string
	ProductCode        string
	Category           DocumentCategory
	StartDate          *time.Time
	EndDate            *time.Time
	Remaining          RemainingFilter
	Page               int
	PageSize           int
}

// ExportRow is one spreadsheet line.
type ExportRow struct {
	DocumentNumber     string
	RegistrationNumber *string
	Date               time.Time
	Category           DocumentCategory
	ProductName        string
	ProductCode        string
	Qty                decimal.Decimal
	Unit               string
	PackageQty         decimal.NullDecimal
	PackageUnit        *string
	RemainingBalance   decimal.Decimal
	RemainingPackage   decimal.NullDecimal
}
