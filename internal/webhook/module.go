// Package webhook provides the inbound gateway callback bounded context.
// This file defines the module that encapsulates all webhook setup and route registration.
package webhook

import (
	"zapflow_backend/internal/events"
	apphttp "zapflow_backend/internal/http"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler     *Handler
	connections ConnectionStore
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(pool *pgxpool.Pool, connections ConnectionStore, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, eventBus, log)
	handler := NewHandler(service, val, log)

	return &Module{
		handler:     handler,
		connections: connections,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public gateway callback (token-per-connection auth, rate limited)
	group := ctx.V1.Group("/webhook")
	group.Use(ctx.WebhookRateLimiter.RateLimit())
	group.Use(TokenAuthMiddleware(m.connections))
	group.POST("/wa/:token", m.handler.HandleInbound)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
