package middleware

import (
	"strings"

	"catalog/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuthRequired rejects requests without a valid "Bearer <jwt>" header.
// The token's user_id and username claims are stored in Locals.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, msg := bearerToken(c.Get(fiber.HeaderAuthorization))
		if msg != "" {
			return unauthorized(c, fiber.Map{"message": msg})
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			return unauthorized(c, fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}

		userID, _ := claims["user_id"].(string)
		c.Locals("user_id", userID)
		c.Locals("username", claims["username"])
		trace.SpanFromContext(c.UserContext()).SetAttributes(attribute.String("enduser.id", userID))

		return c.Next()
	}
}

func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "Authorization header is required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", "Authorization header format must be 'Bearer <token>'"
	}
	return token, ""
}

func unauthorized(c *fiber.Ctx, body fiber.Map) error {
	return c.Status(fiber.StatusUnauthorized).JSON(body)
}
