package middleware

import (
	"strings"

	"go-customs-ledger/pkg/jwt"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie is set on login and accepted in place of a bearer token.
const SessionCookie = "admin_session"

// RequireAuth validates the session token and stores the operator in context.
func RequireAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(SessionCookie)

		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return c.Status(401).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
			}
			tokenString = parts[1]
		}

		if tokenString == "" {
			return c.Status(401).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		claims, err := jwt.ValidateToken(secret, tokenString)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
		}

		c.Locals("username", claims.Username)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// RequireRole rejects operators whose token carries none of the given roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("role").(string)
		if !ok {
			return c.Status(403).JSON(fiber.Map{"error": "No role found"})
		}

		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}

		return c.Status(403).JSON(fiber.Map{
			"error": "Forbidden: requires one of " + strings.Join(roles, ", ") + " roles",
		})
	}
}
