package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/application/billing/usecases"
	"github.com/meterline/meterline/internal/infrastructure/payment"
	"github.com/meterline/meterline/internal/shared/logger"
	"github.com/meterline/meterline/internal/shared/utils"
)

const webhookMaxBodyBytes = 64 * 1024

// WebhookHandler receives payment provider callbacks. The signature is
// verified over the raw body before any decoding.
type WebhookHandler struct {
	handleWebhookUseCase *usecases.HandlePaymentWebhookUseCase
	webhookSecret        string
	logger               logger.Interface
}

func NewWebhookHandler(
	handleWebhookUC *usecases.HandlePaymentWebhookUseCase,
	webhookSecret string,
	logger logger.Interface,
) *WebhookHandler {
	return &WebhookHandler{
		handleWebhookUseCase: handleWebhookUC,
		webhookSecret:        webhookSecret,
		logger:               logger,
	}
}

// HandlePaymentWebhook handles POST /api/v1/webhooks/payment
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookMaxBodyBytes))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := c.GetHeader("X-Webhook-Signature")
	if !payment.VerifyWebhookSignature(h.webhookSecret, body, signature) {
		h.logger.Warnw("webhook signature verification failed", "remote_addr", c.ClientIP())
		utils.ErrorResponse(c, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	event, err := payment.ParseWebhookEvent(body)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	err = h.handleWebhookUseCase.Execute(c.Request.Context(), usecases.HandlePaymentWebhookCommand{
		EventType:  event.Type,
		InvoiceRef: event.Data.InvoiceID,
	})
	if err != nil {
		// Non-2xx makes the provider redeliver, which is safe because the
		// paid transition is idempotent.
		utils.AppErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "webhook processed", nil)
}
