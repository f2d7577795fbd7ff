package handler

import (
	"fmt"
	"strings"
	"time"

	"go-customs-ledger/internal/model"
	"go-customs-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type DocumentHandler struct {
	ledger   service.LedgerService
	export   service.ExportService
	location *time.Location
}

func NewDocumentHandler(ledger service.LedgerService, export service.ExportService, loc *time.Location) *DocumentHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &DocumentHandler{ledger: ledger, export: export, location: loc}
}

// CreateDocument records an IN or OUT document
// POST /api/v1/documents
func (h *DocumentHandler) CreateDocument(c *fiber.Ctx) error {
	var req service.CreateDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	doc, err := h.ledger.CreateDocument(c.UserContext(), &req, getUsername(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(201).JSON(fiber.Map{"success": true, "documentId": doc.ID, "data": doc})
}

// DeleteDocument reverses and removes a document
// DELETE /api/v1/documents/:id
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid document ID"})
	}

	if err := h.ledger.DeleteDocument(c.UserContext(), id, getUsername(c)); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// GET /api/v1/documents/:id
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid document ID"})
	}

	doc, err := h.ledger.GetDocument(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(doc)
}

// GET /api/v1/documents?direction=IN&documentNumber=&productCode=&startDate=&endDate=&page=1&pageSize=10
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	filter, err := h.parseFilter(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	docs, total, err := h.ledger.ListDocuments(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"data":     docs,
		"total":    total,
		"page":     max(filter.Page, 1),
		"pageSize": filter.PageSize,
	})
}

// ExportDocuments streams an Excel workbook of one direction
// GET /api/v1/documents/export?direction=IN&remaining=nonzero
func (h *DocumentHandler) ExportDocuments(c *fiber.Ctx) error {
	filter, err := h.parseFilter(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	if filter.Direction == "" {
		filter.Direction = model.DirectionIn
	}

	f, err := h.export.Workbook(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return respondError(c, err)
	}

	filename := fmt.Sprintf("documents-%s-%s.xlsx", strings.ToLower(string(filter.Direction)), time.Now().In(h.location).Format("20060102"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Send(buf.Bytes())
}

func (h *DocumentHandler) parseFilter(c *fiber.Ctx) (model.DocumentFilter, error) {
	filter := model.DocumentFilter{
		Direction:          model.Direction(strings.ToUpper(c.Query("direction"))),
		DocumentNumber:     c.Query("documentNumber"),
		RegistrationNumber: c.Query("registrationNumber"),
		ProductCode:        c.Query("productCode"),
		Category:           model.DocumentCategory(c.Query("category")),
		Remaining:          model.RemainingFilter(strings.ToLower(c.Query("remaining"))),
		Page:               c.QueryInt("page", 1),
		PageSize:           c.QueryInt("pageSize", 10),
	}

	switch filter.Direction {
	case "", model.DirectionIn, model.DirectionOut:
	default:
		return filter, fmt.Errorf("direction must be IN or OUT")
	}
	switch filter.Remaining {
	case model.RemainingAny, model.RemainingZero, model.RemainingNonZero:
	default:
		return filter, fmt.Errorf("remaining must be zero or nonzero")
	}

	for key, dst := range map[string]**time.Time{"startDate": &filter.StartDate, "endDate": &filter.EndDate} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			return filter, fmt.Errorf("%s must be a date in YYYY-MM-DD format", key)
		}
		*dst = &t
	}
	return filter, nil
}
