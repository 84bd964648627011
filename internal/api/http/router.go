package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/moving-chat/internal/api/http/handlers"
	"github.com/spec-kit/moving-chat/internal/auth"
	"github.com/spec-kit/moving-chat/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Chat           *handlers.ChatHandler
	AuthMiddleware *auth.AuthMiddleware
}

// NewApp builds the fiber app. Route params are stored by chat sessions beyond the
// request, so values must be immutable.
func NewApp(name string, bodyLimit int) *fiber.App {
	cfg := fiber.Config{
		AppName:   name,
		Immutable: true,
	}
	if bodyLimit > 0 {
		cfg.BodyLimit = bodyLimit
	}
	return fiber.New(cfg)
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	chats := app.Group("/chats", cfg.AuthMiddleware.Handle,
		auth.RequireAccount(domain.AccountTypeCustomer, domain.AccountTypeCompany))

	chats.Delete("/session", cfg.Chat.CloseSession)
	chats.Post("/:id/session", cfg.Chat.OpenSession)
	chats.Get("/:id/state", cfg.Chat.GetState)
	chats.Post("/:id/scroll", cfg.Chat.Scroll)
	chats.Post("/:id/jump-to-bottom", cfg.Chat.JumpToBottom)
	chats.Put("/:id/draft", cfg.Chat.SetDraft)
	chats.Delete("/:id/draft", cfg.Chat.CancelDraft)
	chats.Post("/:id/draft/files", cfg.Chat.AddFiles)
	chats.Delete("/:id/draft/files", cfg.Chat.ClearFiles)
	chats.Delete("/:id/draft/files/:fileID", cfg.Chat.RemoveFile)
	chats.Post("/:id/keys", cfg.Chat.Key)
	chats.Post("/:id/send", cfg.Chat.Send)
	chats.Delete("/:id/error", cfg.Chat.DismissError)
	chats.Get("/:id/read-cursor", cfg.Chat.ReadCursor)
}
