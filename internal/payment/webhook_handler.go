package payment

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/pagepay/internal/signature"
	"github.com/frahmantamala/pagepay/internal/transport"
)

// WebhookHandler serves the two gateway callback channels.
type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		logger:         logger,
	}
}

// HandleNotify handles POST /api/v1/payment/notify. The gateway keeps
// retrying until it reads the literal body "success".
func (h *WebhookHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("invalid notify callback body", "error", err)
		h.WriteText(w, http.StatusOK, NotifyAckFailure)
		return
	}

	params := signature.ParamsFromValues(r.PostForm)
	if len(params) == 0 {
		params = signature.ParamsFromValues(r.Form)
	}

	result := h.paymentService.HandleNotifyCallback(r.Context(), params)
	if !result.Success {
		h.logger.Warn("notify callback failed", "out_trade_no", params.Get("out_trade_no"), "reason", result.Message)
		h.WriteText(w, http.StatusOK, NotifyAckFailure)
		return
	}

	h.WriteText(w, http.StatusOK, NotifyAckSuccess)
}

// HandleReturn handles GET /api/v1/payment/return and reports the order's
// current status as JSON.
func (h *WebhookHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	params := signature.ParamsFromValues(r.URL.Query())

	result := h.paymentService.HandleReturnCallback(r.Context(), params)
	if !result.Success {
		h.WriteJSON(w, http.StatusBadRequest, result)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}
