package service

import (
	"fmt"
	"strings"

	"go-customs-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateDocumentRequest is the structured payload for a new IN or OUT document.
type CreateDocumentRequest struct {
	Direction          model.Direction        `json:"direction" validate:"required,oneof=IN OUT"`
	DocumentNumber     string                 `json:"documentNumber" validate:"required"`
	RegistrationNumber string                 `json:"registrationNumber"`
	Date               string                 `json:"date" validate:"required,datetime=2006-01-02"` // YYYY-MM-DD
	Category           model.DocumentCategory `json:"category" validate:"required,oneof=BC_1_6 BC_2_7 BC_3_3 BC_4_0 P3BET"`
	CompanyName        string                 `json:"companyName"`
	Price              decimal.NullDecimal    `json:"price" validate:"omitempty,dgte0,dscale4"`
	Items              []LineItemRequest      `json:"items" validate:"required,min=1,dive"`
}

type LineItemRequest struct {
	ProductName string              `json:"productName" validate:"required"`
	ProductCode string              `json:"productCode" validate:"required"`
	Qty         decimal.Decimal     `json:"qty" validate:"dgt0,dscale4"`
	Unit        string              `json:"unit" validate:"required"`
	PackageQty  decimal.NullDecimal `json:"packageQty" validate:"omitempty,dgte0,dscale4"`
	PackageUnit string              `json:"packageUnit"`

	// OUT only: the IN lines this item draws on.
	Sources []AllocationRequest `json:"sources" validate:"omitempty,dive"`
}

type AllocationRequest struct {
	SourceItemID   uuid.UUID           `json:"sourceItemId" validate:"uuid_required"`
	QtyUsed        decimal.Decimal     `json:"qtyUsed" validate:"dgt0,dscale4"`
	PackageQtyUsed decimal.NullDecimal `json:"packageQtyUsed" validate:"omitempty,dgte0,dscale4"`
}

// normalize trims text fields and drops allocations with a zero quantity,
// which forms submit for sources the user left untouched.
func (r *CreateDocumentRequest) normalize() {
	r.Direction = model.Direction(strings.ToUpper(strings.TrimSpace(string(r.Direction))))
	r.DocumentNumber = strings.TrimSpace(r.DocumentNumber)
	r.RegistrationNumber = strings.TrimSpace(r.RegistrationNumber)
	r.Date = strings.TrimSpace(r.Date)
	r.CompanyName = strings.TrimSpace(r.CompanyName)

	for i := range r.Items {
		it := &r.Items[i]
		it.ProductName = strings.TrimSpace(it.ProductName)
		it.ProductCode = strings.TrimSpace(it.ProductCode)
		it.Unit = strings.TrimSpace(it.Unit)
		it.PackageUnit = strings.TrimSpace(it.PackageUnit)

		sources := it.Sources[:0]
		for _, s := range it.Sources {
			if s.QtyUsed.IsZero() {
				continue
			}
			sources = append(sources, s)
		}
		it.Sources = sources
	}
}

// checkShape covers the rules that depend on the direction.
func (r *CreateDocumentRequest) checkShape() *ValidationError {
	verr := &ValidationError{}
	if r.Direction == model.DirectionIn {
		for i, it := range r.Items {
			if len(it.Sources) > 0 {
				verr.add(fmt.Sprintf("items[%d].sources", i), "is not allowed on IN documents")
			}
		}
	}
	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
