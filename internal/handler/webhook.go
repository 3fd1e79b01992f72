package handler

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/halodesk/support-platform/internal/chat"
	"github.com/halodesk/support-platform/internal/whatsapp"
	"github.com/halodesk/support-platform/pkg/logger"
)

// maxWebhookBody caps the webhook payload size.
const maxWebhookBody = 1 << 20

// WebhookHandler handles the WhatsApp webhook endpoints.
type WebhookHandler struct {
	dispatcher  *chat.Dispatcher
	verifyToken string
	logger      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(d *chat.Dispatcher, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  d,
		verifyToken: verifyToken,
		logger:      log,
	}
}

// Verify handles GET /webhook, the provider's subscription handshake. The
// hub.challenge is echoed back only when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(q.Get("hub.challenge")))
}

// Receive handles POST /webhook. The provider retries on non-2xx, so
// per-message failures are logged and the delivery is still acknowledged;
// idempotent dispatch makes the eventual retry safe.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	messages, statuses, err := whatsapp.Normalize(body)
	if err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	ctx := r.Context()
	for _, in := range messages {
		if _, err := h.dispatcher.HandleInboundWebhook(ctx, in); err != nil {
			h.logger.Error("inbound message handling failed",
				zap.String("external_id", in.ExternalID), zap.Error(err))
		}
	}
	for _, st := range statuses {
		if err := h.dispatcher.ApplyStatusUpdate(ctx, st); err != nil {
			h.logger.Warn("status update handling failed",
				zap.String("external_id", st.ExternalID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
