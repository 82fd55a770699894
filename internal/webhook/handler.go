package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the public gateway webhook endpoint.
type Handler struct {
	service *Service
	val     *validator.Validator
	log     *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

// HandleInbound accepts a gateway callback for one connection. Payloads that
// are not inbound messages (status updates, own messages) are acknowledged
// and dropped. The gateway is always answered 200 once the payload parses;
// processing failures are logged, not surfaced, so gateways do not retry
// into a broken state.
func (h *Handler) HandleInbound(c *gin.Context) {
	conn, ok := connectionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	msg, ok := h.extract(raw)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.service.ProcessInbound(c.Request.Context(), conn, msg); err != nil {
		h.log.Error("webhook: failed to process inbound message",
			"connectionId", conn.ID.String(),
			"error", err.Error(),
		)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) extract(raw []byte) (InboundMessage, bool) {
	var evo evolutionPayload
	if err := json.Unmarshal(raw, &evo); err == nil && evo.Event != "" {
		return extractEvolution(evo)
	}

	var wapi wapiPayload
	if err := json.Unmarshal(raw, &wapi); err != nil {
		return InboundMessage{}, false
	}
	if err := h.val.Struct(wapi); err != nil {
		return InboundMessage{}, false
	}
	return extractWAPI(wapi)
}
