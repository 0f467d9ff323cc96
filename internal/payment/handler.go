package payment

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/order"
	"github.com/frahmantamala/pagepay/internal/transport"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
	// BaseURL overrides the request host when deriving callback URLs.
	BaseURL string
}

func NewHandler(paymentService ServiceAPI, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    transport.BaseHandler{Logger: logger},
		PaymentService: paymentService,
		Logger:         logger,
		BaseURL:        baseURL,
	}
}

func (h *Handler) callbackBase(r *http.Request) string {
	if h.BaseURL != "" {
		return h.BaseURL
	}
	return transport.RequestBaseURL(r)
}

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.Logger.Warn("CreatePayment: failed to parse request body", "error", appErr)
		h.HandleError(w, appErr)
		return
	}

	result, err := h.PaymentService.CreatePaymentAndGenerateURL(r.Context(), req.ToDTO(), h.callbackBase(r))
	if err != nil {
		if result != nil && errors.Is(err, internal.ErrPaymentURLFailed) {
			appErr, _ := internal.IsAppError(err)
			h.Logger.Warn("CreatePayment: order created without payment url", "out_trade_no", result.Order.OutTradeNo, "error", err)
			h.WriteJSON(w, http.StatusAccepted, CreatePaymentResponse{Order: result.Order, Error: appErr})
			return
		}
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, CreatePaymentResponse{Order: result.Order, PaymentURL: result.PaymentURL})
}

// GetPaymentStatus handles GET /api/v1/payments/{outTradeNo}
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	outTradeNo := chi.URLParam(r, "outTradeNo")

	result := h.PaymentService.QueryPaymentStatus(r.Context(), outTradeNo)
	if !result.Success {
		h.HandleError(w, internal.NewOrderNotFoundError(outTradeNo))
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// RegeneratePaymentURL handles POST /api/v1/payments/{outTradeNo}/url
func (h *Handler) RegeneratePaymentURL(w http.ResponseWriter, r *http.Request) {
	outTradeNo := chi.URLParam(r, "outTradeNo")

	result, err := h.PaymentService.RegeneratePaymentURL(r.Context(), outTradeNo, h.callbackBase(r))
	if err != nil {
		h.Logger.Warn("RegeneratePaymentURL: service error", "out_trade_no", outTradeNo, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentURLResponse{OutTradeNo: outTradeNo, PaymentURL: result.PaymentURL})
}

// ListOrders handles GET /api/v1/admin/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := order.ListFilter{Limit: defaultListLimit}
	if raw := q.Get("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}
		filter.Status = status
	}

	var appErr *internal.AppError
	if filter.Limit, appErr = intQuery(q.Get("limit"), "limit", defaultListLimit, 1, maxListLimit); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	if filter.Offset, appErr = intQuery(q.Get("offset"), "offset", 0, 0, -1); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	orders := h.PaymentService.ListOrders(r.Context(), filter)
	h.WriteJSON(w, http.StatusOK, ListOrdersResponse{
		Orders: orders,
		Count:  len(orders),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// intQuery parses an optional integer query parameter. max < 0 means
// unbounded.
func intQuery(raw, field string, def, min, max int) (int, *internal.AppError) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || (max >= 0 && n > max) {
		message := fmt.Sprintf("%s must be an integer of at least %d", field, min)
		if max >= 0 {
			message = fmt.Sprintf("%s must be an integer between %d and %d", field, min, max)
		}
		return 0, internal.NewValidationFieldError(field, message, internal.ErrCodeValidationFailed)
	}
	return n, nil
}

// GetStats handles GET /api/v1/admin/orders/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.PaymentService.Stats(r.Context()))
}

// UpdateOrderStatus handles PATCH /api/v1/admin/orders/{id}/status
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	updated, err := h.PaymentService.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated)
}

// ClearOrders handles DELETE /api/v1/admin/orders
func (h *Handler) ClearOrders(w http.ResponseWriter, r *http.Request) {
	if err := h.PaymentService.ClearOrders(r.Context()); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
