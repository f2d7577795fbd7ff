package handler

import (
	"slices"

	"go-customs-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ProductHandler struct {
	balance service.BalanceService
}

func NewProductHandler(balance service.BalanceService) *ProductHandler {
	return &ProductHandler{balance: balance}
}

// GET /api/v1/products
func (h *ProductHandler) GetProducts(c *fiber.Ctx) error {
	products, err := h.balance.ListProducts(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(products)
}

// GET /api/v1/products/:code/stock
func (h *ProductHandler) GetStock(c *fiber.Ctx) error {
	snap, err := h.balance.ProductStock(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(snap)
}

// GET /api/v1/products/:code/history
func (h *ProductHandler) GetHistory(c *fiber.Ctx) error {
	events, err := h.balance.ProductHistory(c.UserContext(), c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"productCode": c.Params("code"), "history": slices.Collect(events)})
}

// GET /api/v1/products/:code/sources?prefix=true
func (h *ProductHandler) GetSources(c *fiber.Ctx) error {
	sources, err := h.balance.AvailableSources(c.UserContext(), c.Params("code"), c.QueryBool("prefix", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sources)
}

// GET /api/v1/ledger/consistency
func (h *ProductHandler) GetConsistency(c *fiber.Ctx) error {
	drifted, err := h.balance.CheckConsistency(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"consistent": len(drifted) == 0, "drifted": drifted})
}
