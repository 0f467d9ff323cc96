package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/pagepay/internal/core/events"
)

// EventHandler writes an audit line for every payment outcome.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.Info("payment completed",
		"order_id", e.OrderID,
		"out_trade_no", e.OutTradeNo,
		"trade_no", e.TradeNo,
		"total_amount", e.TotalAmount,
		"paid_at", e.PaidAt,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	h.logger.Warn("payment failed",
		"order_id", e.OrderID,
		"out_trade_no", e.OutTradeNo,
		"trade_no", e.TradeNo,
		"trade_status", e.TradeStatus,
		"event_id", e.EventID())
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentCompleted, events.EventTypePaymentFailed})
}
