package payment

import (
	"github.com/frahmantamala/pagepay/internal"
	gatewaytypes "github.com/frahmantamala/pagepay/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/order"
)

const (
	NotifyPath = "/api/v1/payment/notify"
	ReturnPath = "/api/v1/payment/return"

	// NotifyAckSuccess and NotifyAckFailure are the literal bodies the
	// gateway expects in reply to a notify callback.
	NotifyAckSuccess = "success"
	NotifyAckFailure = "failure"
)

const (
	MessageNotificationProcessed = "notification processed"
	MessageAlreadyProcessed      = "notification already processed"
	MessageOrderNotFound         = "order not found"
	MessageAppIDMismatch         = "app_id mismatch"
	MessageAmountMismatch        = "total_amount mismatch"
	MessageApplyFailed           = "failed to apply notification"
)

// CallbackResult is the soft outcome of every callback and status query.
// Callback paths never return an error value; Code tells failures apart,
// CALLBACK_AUTH_FAILED marking an unauthenticated callback.
type CallbackResult struct {
	Success bool               `json:"success"`
	Code    internal.ErrorCode `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
	Order   *order.Order       `json:"order,omitempty"`
}

func failed(code internal.ErrorCode, message string) CallbackResult {
	return CallbackResult{Success: false, Code: code, Message: message}
}

// PaymentResult pairs a created order with its redirect URL. PaymentURL is
// empty when URL generation failed after the order was persisted.
type PaymentResult struct {
	Order      *order.Order `json:"order"`
	PaymentURL string       `json:"payment_url,omitempty"`
}

// MapTradeStatus returns the order status a gateway trade status moves a
// pending order to. known is false for unrecognised trade statuses.
func MapTradeStatus(tradeStatus string) (target *order.Status, known bool) {
	switch gatewaytypes.TradeStatus(tradeStatus) {
	case gatewaytypes.TradeStatusSuccess, gatewaytypes.TradeStatusFinished:
		s := order.StatusPaid
		return &s, true
	case gatewaytypes.TradeStatusClosed:
		s := order.StatusFailed
		return &s, true
	case gatewaytypes.TradeStatusWaitBuyerPay:
		return nil, true
	default:
		return nil, false
	}
}
