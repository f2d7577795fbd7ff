package service

import (
	"context"
	"fmt"

	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var exportHeadings = []string{
	"Document Number",
	"Registration Number",
	"Date",
	"Category",
	"Product Name",
	"Product Code",
	"Qty",
	"Unit",
	"Package Qty",
	"Package Unit",
	"Remaining Balance",
	"Remaining Package",
}

type ExportService interface {
	Rows(ctx context.Context, filter model.DocumentFilter) ([]model.ExportRow, error)
	Workbook(ctx context.Context, filter model.DocumentFilter) (*excelize.File, error)
}

type exportService struct {
	documentRepo repository.DocumentRepository
}

func NewExportService(dRepo repository.DocumentRepository) ExportService {
	return &exportService{documentRepo: dRepo}
}

// Rows flattens the filtered documents of one direction. IN rows are line
// items with their remaining balance; OUT rows are allocation links.
func (s *exportService) Rows(ctx context.Context, filter model.DocumentFilter) ([]model.ExportRow, error) {
	if filter.Direction == "" {
		filter.Direction = model.DirectionIn
	}
	docs, err := s.documentRepo.FindForExport(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := make([]model.ExportRow, 0)
	for _, doc := range docs {
		if filter.Direction == model.DirectionIn {
			if !matchesRemaining(doc, filter.Remaining) {
				continue
			}
			for _, item := range doc.Items {
				row := exportRow(doc)
				if item.Product != nil {
					row.ProductName = item.Product.ProductName
					row.ProductCode = item.Product.ProductCode
				}
				row.Qty = item.Qty
				row.Unit = item.Unit
				row.PackageQty = item.PackageQty
				row.PackageUnit = item.PackageUnit
				row.RemainingBalance = item.Balance()
				row.RemainingPackage = item.PackageBalance()
				rows = append(rows, row)
			}
			continue
		}

		for _, link := range doc.OutLinks {
			row := exportRow(doc)
			if link.Product != nil {
				row.ProductName = link.Product.ProductName
				row.ProductCode = link.Product.ProductCode
			}
			row.Qty = link.QtyUsed
			row.PackageQty = link.PackageQtyUsed
			if link.SourceItem != nil {
				row.Unit = link.SourceItem.Unit
				row.PackageUnit = link.SourceItem.PackageUnit
			}
			row.RemainingBalance = decimal.Zero
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func exportRow(doc model.Document) model.ExportRow {
	return model.ExportRow{
		DocumentNumber:     doc.DocumentNumber,
		RegistrationNumber: doc.RegistrationNumber,
		Date:               doc.Date,
		Category:           doc.Category,
	}
}

// matchesRemaining applies the zero/nonzero filter at document level: a
// document has balance when any of its lines does.
func matchesRemaining(doc model.Document, f model.RemainingFilter) bool {
	if f != model.RemainingZero && f != model.RemainingNonZero {
		return true
	}
	hasBalance := false
	for _, item := range doc.Items {
		if item.Balance().IsPositive() {
			hasBalance = true
			break
		}
	}
	if f == model.RemainingZero {
		return !hasBalance
	}
	return hasBalance
}

// Workbook renders Rows into a single sheet named after the direction.
func (s *exportService) Workbook(ctx context.Context, filter model.DocumentFilter) (*excelize.File, error) {
	rows, err := s.Rows(ctx, filter)
	if err != nil {
		return nil, err
	}

	sheet := string(filter.Direction)
	if sheet == "" {
		sheet = string(model.DirectionIn)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headings := make([]interface{}, len(exportHeadings))
	for i, h := range exportHeadings {
		headings[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headings); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := cellValues(row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f, nil
}

func cellValues(r model.ExportRow) []interface{} {
	return []interface{}{
		r.DocumentNumber,
		deref(r.RegistrationNumber),
		r.Date.Format(dateLayout),
		string(r.Category),
		r.ProductName,
		r.ProductCode,
		r.Qty.InexactFloat64(),
		r.Unit,
		nullable(r.PackageQty),
		deref(r.PackageUnit),
		r.RemainingBalance.InexactFloat64(),
		nullable(r.RemainingPackage),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
