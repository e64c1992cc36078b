package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func adminApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/admin/status", RequireAdminJWT(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func mintToken(t *testing.T, secret string) string {
	t.Helper()
	claims := &AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "admin",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func adminStatus(t *testing.T, app *fiber.App, authorization string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/admin/status", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRequireAdminJWT(t *testing.T) {
	secret := "test-secret"
	app := adminApp(secret)

	if code := adminStatus(t, app, "Bearer "+mintToken(t, secret)); code != fiber.StatusOK {
		t.Errorf("valid token: status = %d, want 200", code)
	}
	if code := adminStatus(t, app, ""); code != fiber.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want 401", code)
	}
	if code := adminStatus(t, app, "Basic deadbeef"); code != fiber.StatusUnauthorized {
		t.Errorf("non-bearer scheme: status = %d, want 401", code)
	}
	if code := adminStatus(t, app, "Bearer "+mintToken(t, "other-secret")); code != fiber.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", code)
	}
}

func TestRequireAdminJWTEmptySecretFailsClosed(t *testing.T) {
	app := adminApp("")

	// Without a configured secret nothing gets through, not even a token
	// signed with the empty key.
	if code := adminStatus(t, app, ""); code != fiber.StatusServiceUnavailable {
		t.Errorf("no token: status = %d, want 503", code)
	}
	if code := adminStatus(t, app, "Bearer "+mintToken(t, "")); code != fiber.StatusServiceUnavailable {
		t.Errorf("empty-key token: status = %d, want 503", code)
	}
}
