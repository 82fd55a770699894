package ops

import (
	"context"
	"errors"
	"net/http"

	campaignrepo "zapflow_backend/internal/campaign/repository"
	connrepo "zapflow_backend/internal/connection/repository"
	nurturingrepo "zapflow_backend/internal/nurturing/repository"
	"zapflow_backend/internal/scheduler"
	"zapflow_backend/internal/whatsapp"
	"zapflow_backend/platform/apperr"
	"zapflow_backend/platform/httpkit"
	"zapflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// CampaignStore resolves campaign progress counters.
type CampaignStore interface {
	GetProgress(ctx context.Context, id uuid.UUID) (campaignrepo.Campaign, error)
}

// EnrollmentStore resolves nurturing step logs.
type EnrollmentStore interface {
	StepLogs(ctx context.Context, enrollmentID uuid.UUID) ([]nurturingrepo.StepLogEntry, error)
}

// ConnectionStore resolves connections for pairing.
type ConnectionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (connrepo.Connection, error)
}

// DispatchTrigger enqueues an immediate dispatch pass.
type DispatchTrigger interface {
	TriggerDispatch(ctx context.Context, taskType string) error
}

type Handler struct {
	campaigns   CampaignStore
	enrollments EnrollmentStore
	connections ConnectionStore
	senders     whatsapp.SenderFactory
	dispatches  DispatchTrigger
	log         *logger.Logger
}

func NewHandler(campaigns CampaignStore, enrollments EnrollmentStore, connections ConnectionStore, senders whatsapp.SenderFactory, dispatches DispatchTrigger, log *logger.Logger) *Handler {
	return &Handler{
		campaigns:   campaigns,
		enrollments: enrollments,
		connections: connections,
		senders:     senders,
		dispatches:  dispatches,
		log:         log,
	}
}

// HandleCampaignProgress returns the campaign's dispatch counters.
func (h *Handler) HandleCampaignProgress(c *gin.Context) {
	id, err := uuid.Parse(c.Param("campaignId"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid campaign id"))
		return
	}

	campaign, err := h.campaigns.GetProgress(c.Request.Context(), id)
	if err != nil {
		httpkit.HandleError(c, apperr.NotFound("campaign not found"))
		return
	}

	httpkit.OK(c, gin.H{
		"id":          campaign.ID,
		"name":        campaign.Name,
		"status":      campaign.Status,
		"sentCount":   campaign.SentCount,
		"failedCount": campaign.FailedCount,
		"pending":     campaign.Pending,
	})
}

// HandleEnrollmentLogs returns the enrollment's step audit trail.
func (h *Handler) HandleEnrollmentLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid enrollment id"))
		return
	}

	logs, err := h.enrollments.StepLogs(c.Request.Context(), id)
	if err != nil {
		h.log.DatabaseError("ops enrollment logs", err)
		httpkit.HandleError(c, apperr.Internal("internal error"))
		return
	}

	entries := make([]gin.H, 0, len(logs))
	for _, entry := range logs {
		entries = append(entries, gin.H{
			"stepId":       entry.StepID,
			"channel":      entry.Channel,
			"status":       entry.Status,
			"errorMessage": entry.ErrorMessage,
			"sentAt":       entry.SentAt,
		})
	}

	httpkit.OK(c, gin.H{"logs": entries})
}

// HandlePairingQR asks the gateway for a pairing code and renders it as a
// QR PNG, so operators can link a device without touching the gateway UI.
func (h *Handler) HandlePairingQR(c *gin.Context) {
	id, err := uuid.Parse(c.Param("connectionId"))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation("invalid connection id"))
		return
	}

	conn, err := h.connections.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, connrepo.ErrNotFound) {
			httpkit.HandleError(c, apperr.NotFound("connection not found"))
			return
		}
		h.log.DatabaseError("ops load connection", err)
		httpkit.HandleError(c, apperr.Internal("internal error"))
		return
	}

	sender, err := h.senders(conn.Gateway())
	if err != nil {
		httpkit.Error(c, http.StatusBadGateway, err.Error())
		return
	}

	code, err := sender.PairingCode(c.Request.Context())
	if err != nil {
		h.log.ProviderError(conn.Provider, conn.Name, err)
		httpkit.Error(c, http.StatusBadGateway, "gateway did not return a pairing code")
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		httpkit.HandleError(c, apperr.Internal("failed to render qr code"))
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

var dispatchKinds = map[string]string{
	"campaigns": scheduler.TaskCampaignDispatch,
	"scheduled": scheduler.TaskScheduledDispatch,
	"nurturing": scheduler.TaskNurturingDispatch,
	"billing":   scheduler.TaskBillingReminders,
	"crm":       scheduler.TaskCRMAutomation,
}

// HandleTriggerDispatch enqueues one immediate pass of the named dispatcher,
// ahead of its periodic schedule.
func (h *Handler) HandleTriggerDispatch(c *gin.Context) {
	taskType, ok := dispatchKinds[c.Param("kind")]
	if !ok {
		httpkit.HandleError(c, apperr.Validation("unknown dispatch kind"))
		return
	}

	if err := h.dispatches.TriggerDispatch(c.Request.Context(), taskType); err != nil {
		h.log.Error("ops trigger dispatch failed", "task", taskType, "error", err.Error())
		httpkit.HandleError(c, apperr.Internal("failed to enqueue dispatch"))
		return
	}

	httpkit.OK(c, gin.H{"enqueued": taskType})
}
