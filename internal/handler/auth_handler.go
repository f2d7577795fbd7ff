package handler

import (
	"errors"
	"time"

	"go-customs-ledger/internal/middleware"
	"go-customs-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles operator authentication
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Username and password are required"})
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.Status(401).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return respondError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.authService.TTL()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"token": token})
}

// Logout clears the session cookie
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.ClearCookie(middleware.SessionCookie)
	return c.JSON(fiber.Map{"message": "Logged out"})
}
