package http

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat-service/internal/api/http/handlers"
	"github.com/spec-kit/support-chat-service/internal/auth"
	"github.com/spec-kit/support-chat-service/internal/gateway"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Chat           *handlers.ChatHandler
	Gateway        *gateway.Handler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP and websocket routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/customer/login", cfg.Auth.CustomerLogin)
	authGroup.Post("/staff/login", cfg.Auth.StaffLogin)

	chat := app.Group("/support-chat", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	chat.Get("/", cfg.Chat.ListSessions)
	chat.Post("/", cfg.Chat.CreateSession)
	chat.Post("/message", cfg.Chat.AppendMessage)
	chat.Post("/read-messages", cfg.Chat.MarkRead)
	chat.Get("/:id", cfg.Chat.GetSession)
	chat.Put("/:id", cfg.Chat.UpdateStatus)
	chat.Get("/:id/online", cfg.Gateway.Online)

	app.Get("/ws/support-chat",
		gateway.Upgrade,
		cfg.AuthMiddleware.Handle,
		websocket.New(cfg.Gateway.Handle),
	)
}
