package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/moving-chat/internal/domain"
	apperrors "github.com/spec-kit/moving-chat/pkg/util/errorutil"
)

func newProtectedApp(tm *TokenManager, allowed ...domain.AccountType) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/me", NewAuthMiddleware(tm).Handle, RequireAccount(allowed...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.SessionContext().UserID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("s3cret", 15)
	customer, _, err := tm.GenerateToken("7", domain.AccountTypeCustomer)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		allowed []domain.AccountType
		want    int
	}{
		{name: "valid token", header: "Bearer " + customer, want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + customer, want: http.StatusOK},
		{name: "missing header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "account not allowed", header: "Bearer " + customer, allowed: []domain.AccountType{domain.AccountTypeCompany}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newProtectedApp(tm, tt.allowed...)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
