package middleware

import (
	"strings"

	"voxmeter/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AuthenticatedToken verifies the bearer token minted by the identity
// provider and stores the subject as user_id in request locals.
func AuthenticatedToken(cfg config.AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// An unset secret would verify tokens signed with the empty key.
		if cfg.JWTSecret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Authentication is not configured",
			})
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Authorization header",
			})
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid Authorization header",
			})
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims := jwt.MapClaims{}
		parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
		if cfg.Issuer != "" {
			parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
		}

		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		}, parserOpts...)
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		subject, err := claims.GetSubject()
		if err != nil || subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token subject",
			})
		}

		c.Locals("user_id", subject)
		return c.Next()
	}
}

// UserID reads the authenticated user id set by AuthenticatedToken.
func UserID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}
