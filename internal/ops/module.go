// Package ops exposes the token-protected operational surface: dispatch
// progress counters and connection pairing.
package ops

import (
	apphttp "zapflow_backend/internal/http"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/logger"
)

// Module is the ops bounded context module implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates and initializes the ops module.
func NewModule(campaigns CampaignStore, enrollments EnrollmentStore, connections ConnectionStore, senders whatsapp.SenderFactory, dispatches DispatchTrigger, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(campaigns, enrollments, connections, senders, dispatches, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ops"
}

// RegisterRoutes mounts ops routes on the token-protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Ops.GET("/campaigns/:campaignId/progress", m.handler.HandleCampaignProgress)
	ctx.Ops.GET("/enrollments/:enrollmentId/logs", m.handler.HandleEnrollmentLogs)
	ctx.Ops.GET("/connections/:connectionId/pairing-qr", m.handler.HandlePairingQR)
	ctx.Ops.POST("/dispatch/:kind/run", m.handler.HandleTriggerDispatch)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
