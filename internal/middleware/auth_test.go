package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"voxmeter/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func testApp(cfg config.AuthConfig) *fiber.App {
	app := fiber.New()
	app.Get("/protected", AuthenticatedToken(cfg), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": UserID(c)})
	})
	return app
}

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticatedToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: testSecret}

	t.Run("valid token passes", func(t *testing.T) {
		app := testApp(cfg)
		token := mintToken(t, testSecret, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		app := testApp(cfg)

		resp, err := app.Test(httptest.NewRequest("GET", "/protected", nil))

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		app := testApp(cfg)

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Basic abc123")
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		app := testApp(cfg)
		token := mintToken(t, "other-secret", jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		app := testApp(cfg)
		token := mintToken(t, testSecret, jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		app := testApp(cfg)
		token := mintToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("empty secret rejects even empty-key tokens", func(t *testing.T) {
		app := testApp(config.AuthConfig{JWTSecret: ""})
		token := mintToken(t, "", jwt.MapClaims{
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("wrong issuer rejected", func(t *testing.T) {
		app := testApp(config.AuthConfig{JWTSecret: testSecret, Issuer: "voxmeter"})
		token := mintToken(t, testSecret, jwt.MapClaims{
			"sub": "user-1",
			"iss": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}
