package handler

import (
	"go-customs-ledger/internal/middleware"
	"go-customs-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the ledger API on api (usually /api/v1).
func RegisterRoutes(api fiber.Router, secret []byte, auth *AuthHandler, docs *DocumentHandler, products *ProductHandler) {
	// ============ PUBLIC ROUTES ============
	authGroup := api.Group("/auth")
	authGroup.Post("/login", auth.Login)
	authGroup.Post("/logout", auth.Logout)

	// ============ PROTECTED ROUTES ============
	protected := api.Group("", middleware.RequireAuth(secret))

	protected.Get("/products", products.GetProducts)
	protected.Get("/products/:code/stock", products.GetStock)
	protected.Get("/products/:code/history", products.GetHistory)
	protected.Get("/products/:code/sources", products.GetSources)

	// export must precede :id
	protected.Get("/documents", docs.ListDocuments)
	protected.Get("/documents/export", docs.ExportDocuments)
	protected.Get("/documents/:id", docs.GetDocument)
	protected.Post("/documents", middleware.RequireRole(service.RoleAdmin), docs.CreateDocument)
	protected.Delete("/documents/:id", middleware.RequireRole(service.RoleAdmin), docs.DeleteDocument)

	protected.Get("/ledger/consistency", products.GetConsistency)
}
