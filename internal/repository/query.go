package repository

import (
	"strings"

	"go-customs-ledger/internal/model"

	"gorm.io/gorm"
)

const defaultPageSize = 10

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Patterns built here are matched with ESCAPE '\'.
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

func likePrefix(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s)) + "%"
}

// applyDocumentFilter narrows a documents query. Text filters are
// case-insensitive contains; the date range is inclusive.
func applyDocumentFilter(q *gorm.DB, f model.DocumentFilter) *gorm.DB {
	if f.Direction != "" {
		q = q.Where("documents.direction = ?", f.Direction)
	}
	if f.DocumentNumber != "" {
		q = q.Where(`LOWER(documents.document_number) LIKE ? ESCAPE '\'`, likeContains(f.DocumentNumber))
	}
	if f.RegistrationNumber != "" {
		q = q.Where(`LOWER(documents.registration_number) LIKE ? ESCAPE '\'`, likeContains(f.RegistrationNumber))
	}
	if f.Category != "" {
		q = q.Where("documents.category = ?", f.Category)
	}
	if f.StartDate != nil {
		q = q.Where("documents.date >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("documents.date <= ?", *f.EndDate)
	}
	if f.ProductCode != "" {
		q = q.Where(`EXISTS (
			SELECT 1 FROM document_product_items dpi
			JOIN products p ON p.id = dpi.product_id
			WHERE dpi.document_id = documents.id AND LOWER(p.product_code) LIKE ? ESCAPE '\')`,
			likeContains(f.ProductCode))
	}
	return q
}

func paginate(page, pageSize int) (offset, limit int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return (page - 1) * pageSize, pageSize
}
