package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-customs-ledger/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("middleware-test")

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireAuth(secret), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("username").(string))
	})
	app.Delete("/admin", RequireAuth(secret), RequireRole("ADMIN"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.GenerateToken(secret, "operator", role, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestRequireAuth(t *testing.T) {
	app := newApp()
	valid := token(t, "ADMIN")

	tests := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"missing token", func(*http.Request) {}, 401},
		{"bad scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, 401},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, 401},
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, 200},
		{"session cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: valid}) }, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := newApp()

	req := httptest.NewRequest(http.MethodDelete, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "VIEWER"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)

	req = httptest.NewRequest(http.MethodDelete, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "ADMIN"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
}
