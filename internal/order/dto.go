package order

import (
	"github.com/shopspring/decimal"
)

// CreateOrderDTO carries the caller-supplied fields of a new order. ID is
// optional and generated when empty.
type CreateOrderDTO struct {
	ID          string              `json:"id,omitempty"`
	OutTradeNo  string              `json:"out_trade_no"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body,omitempty"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
}

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

type Stats struct {
	Total       int            `json:"total"`
	ByStatus    map[Status]int `json:"by_status"`
	TotalAmount Amount         `json:"total_amount"`
	PaidAmount  Amount         `json:"paid_amount"`
}

// NotificationUpdate is what a verified gateway notification asks the store
// to apply. Target is nil when the trade status maps to no transition.
type NotificationUpdate struct {
	NotifyID     string
	TradeNo      string
	BuyerLogonID string
	TradeStatus  string
	Target       *Status
}

type NotificationOutcome struct {
	Order            *Order
	PreviousStatus   Status
	AlreadyProcessed bool
	Transitioned     bool
}
