package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

const localSubject = "subject"

// RequireJWT accepts HS256 tokens signed with secret, sent as a bearer
// header or, for EventSource clients that cannot set headers, as the
// access_token query parameter.
func RequireJWT(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = c.Query("access_token")
		}
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{Error: "Missing bearer token"})
		}

		token, err := parser.Parse(raw, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(types.ErrorResponse{Error: "Invalid token"})
		}

		if subject, err := token.Claims.GetSubject(); err == nil && subject != "" {
			c.Locals(localSubject, subject)
		}
		return c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
