package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/moving-chat/internal/domain"
)

// RequireAccount ensures the principal belongs to one of the allowed account types.
func RequireAccount(allowed ...domain.AccountType) fiber.Handler {
	allowedSet := make(map[domain.AccountType]struct{}, len(allowed))
	for _, account := range allowed {
		allowedSet[account] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Account]; !exists {
			return fiber.NewError(http.StatusForbidden, "account type not allowed")
		}
		return c.Next()
	}
}

