package middleware

import (
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v2"
	"github.com/golang-jwt/jwt/v4"

	"conference-central/model"
)

// IdentityKey is the fiber.Locals key holding the verified token.
const IdentityKey = "identity"

// Authorize verifies the bearer token when one is sent. Requests without an
// Authorization header pass through anonymously; operations that need a
// caller reject them themselves.
func Authorize(signingKey string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:    []byte(signingKey),
		SigningMethod: "HS256",
		ErrorHandler:  jwtError,
		ContextKey:    IdentityKey,
		Filter: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderAuthorization) == ""
		},
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusUnauthorized).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

// Identity returns the caller of a request, or nil for anonymous requests.
func Identity(c *fiber.Ctx) *model.Identity {
	token, ok := c.Locals(IdentityKey).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	email, _ := claims["email"].(string)
	return &model.Identity{UserID: sub, Email: email}
}
