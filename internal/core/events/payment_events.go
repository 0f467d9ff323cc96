package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderCreated     = "order.created"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

// PaymentEventTypes lists every event the payment flow emits.
var PaymentEventTypes = []string{EventTypeOrderCreated, EventTypePaymentCompleted, EventTypePaymentFailed}

type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OutTradeNo  string `json:"out_trade_no"`
	TotalAmount string `json:"total_amount"`
}

func NewOrderCreatedEvent(orderID, outTradeNo, totalAmount string) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOrderCreated,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"order_id":     orderID,
				"out_trade_no": outTradeNo,
				"total_amount": totalAmount,
			},
		},
		OrderID:     orderID,
		OutTradeNo:  outTradeNo,
		TotalAmount: totalAmount,
	}
}

func (e *OrderCreatedEvent) PartitionKey() string {
	return e.OutTradeNo
}

type PaymentCompletedEvent struct {
	BaseEvent
	OrderID      string    `json:"order_id"`
	OutTradeNo   string    `json:"out_trade_no"`
	TradeNo      string    `json:"trade_no"`
	TotalAmount  string    `json:"total_amount"`
	BuyerLogonID string    `json:"buyer_logon_id"`
	PaidAt       time.Time `json:"paid_at"`
}

func NewPaymentCompletedEvent(orderID, outTradeNo, tradeNo, totalAmount, buyerLogonID string, paidAt time.Time) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"out_trade_no":   outTradeNo,
				"trade_no":       tradeNo,
				"total_amount":   totalAmount,
				"buyer_logon_id": buyerLogonID,
				"paid_at":        paidAt,
			},
		},
		OrderID:      orderID,
		OutTradeNo:   outTradeNo,
		TradeNo:      tradeNo,
		TotalAmount:  totalAmount,
		BuyerLogonID: buyerLogonID,
		PaidAt:       paidAt,
	}
}

func (e *PaymentCompletedEvent) PartitionKey() string {
	return e.OutTradeNo
}

type PaymentFailedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OutTradeNo  string `json:"out_trade_no"`
	TradeNo     string `json:"trade_no"`
	TotalAmount string `json:"total_amount"`
	TradeStatus string `json:"trade_status"`
}

func NewPaymentFailedEvent(orderID, outTradeNo, tradeNo, totalAmount, tradeStatus string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"order_id":     orderID,
				"out_trade_no": outTradeNo,
				"trade_no":     tradeNo,
				"total_amount": totalAmount,
				"trade_status": tradeStatus,
			},
		},
		OrderID:     orderID,
		OutTradeNo:  outTradeNo,
		TradeNo:     tradeNo,
		TotalAmount: totalAmount,
		TradeStatus: tradeStatus,
	}
}

func (e *PaymentFailedEvent) PartitionKey() string {
	return e.OutTradeNo
}
