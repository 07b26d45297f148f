package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ramsalab/survey-api/internal/dto"
	appErrors "github.com/ramsalab/survey-api/pkg/errors"
	"github.com/ramsalab/survey-api/pkg/response"
)

type webhookService interface {
	Verify(mode, token, challenge string) (string, error)
	HandleEvent(ctx context.Context, payload *dto.WebhookPayload) error
}

// WebhookHandler terminates the messaging channel's HTTP surface: the
// subscription handshake on GET and event deliveries on POST.
type WebhookHandler struct {
	webhooks webhookService
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(webhooks webhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Verify answers the channel's subscription handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	challenge, err := h.webhooks.Verify(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	// The challenge must be echoed back verbatim, not wrapped.
	c.String(http.StatusOK, challenge)
}

// Receive ingests one webhook delivery. The channel retries non-2xx
// responses, so per-message protocol violations are acknowledged with 200
// after being handled; only infrastructure failures surface as errors.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload dto.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid webhook payload"))
		return
	}

	if err := h.webhooks.HandleEvent(c.Request.Context(), &payload); err != nil {
		if appErr := appErrors.FromError(err); appErr.Status >= http.StatusInternalServerError {
			response.Error(c, err)
			return
		}
	}
	c.String(http.StatusOK, "OK")
}
