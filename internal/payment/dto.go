package payment

import (
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/core/common/validation"
	"github.com/frahmantamala/pagepay/internal/order"
)

// CreatePaymentRequest is the body of POST /api/v1/payments. total_amount
// accepts a JSON number or a decimal string.
type CreatePaymentRequest struct {
	OutTradeNo  string              `json:"out_trade_no"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body,omitempty"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
}

func (r *CreatePaymentRequest) ToDTO() order.CreateOrderDTO {
	return order.CreateOrderDTO{
		OutTradeNo:  r.OutTradeNo,
		Subject:     r.Subject,
		Body:        r.Body,
		TotalAmount: r.TotalAmount,
	}
}

type CreatePaymentResponse struct {
	Order      *order.Order       `json:"order"`
	PaymentURL string             `json:"payment_url,omitempty"`
	Error      *internal.AppError `json:"error,omitempty"`
}

type PaymentURLResponse struct {
	OutTradeNo string `json:"out_trade_no"`
	PaymentURL string `json:"payment_url"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

func (r *UpdateStatusRequest) Validate() error {
	allowed := make([]string, 0, len(order.AllStatuses))
	for _, s := range order.AllStatuses {
		allowed = append(allowed, s.String())
	}

	v := validation.NewValidator()
	v.Field("status", r.Status).Required().OneOf(allowed, internal.ErrCodeUnknownStatus)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ListOrdersResponse struct {
	Orders []*order.Order `json:"orders"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
