package order

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/core/common/validation"
	orderDatamodel "github.com/frahmantamala/pagepay/internal/core/datamodel/order"
)

const (
	MaxSubjectLength = 256
	MaxBodyLength    = 400
)

var outTradeNoPattern = regexp.MustCompile(`^[A-Za-z0-9_]{6,64}$`)

// nowFunc stamps orders at microsecond precision, the resolution of the
// timestamp columns, so reloaded orders compare equal.
var nowFunc = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type Order struct {
	ID           string     `json:"id"`
	OutTradeNo   string     `json:"out_trade_no"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	TotalAmount  Amount     `json:"total_amount"`
	Status       Status     `json:"status"`
	TradeNo      string     `json:"trade_no,omitempty"`
	BuyerLogonID string     `json:"buyer_logon_id,omitempty"`
	PaymentTime  *time.Time `json:"payment_time,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// New validates every field rule at once and returns a pending order. All
// violations are reported together in one VALIDATION_FAILED error.
func New(dto CreateOrderDTO) (*Order, error) {
	if err := ValidateCreate(dto); err != nil {
		return nil, err
	}

	// precision was validated above
	amount, _ := AmountFromDecimal(dto.TotalAmount.Decimal)

	id := dto.ID
	if id == "" {
		id = uuid.NewString()
	}

	body := dto.Body
	if body == "" {
		body = dto.Subject
	}

	now := nowFunc()
	return &Order{
		ID:          id,
		OutTradeNo:  dto.OutTradeNo,
		Subject:     dto.Subject,
		Body:        body,
		TotalAmount: amount,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func ValidateCreate(dto CreateOrderDTO) *internal.AppError {
	v := validation.NewValidator()

	v.Field("out_trade_no", dto.OutTradeNo).
		Required().
		Matches(outTradeNoPattern, "out_trade_no must be 6-64 letters, digits or underscores", internal.ErrCodeInvalidOutTradeNo)

	v.Field("subject", dto.Subject).
		Required().
		MaxLength(MaxSubjectLength, internal.ErrCodeInvalidSubject)

	v.Field("body", dto.Body).
		MaxLength(MaxBodyLength, internal.ErrCodeInvalidBody)

	v.Field("total_amount", dto.TotalAmount).
		Custom(amountPresent).
		Custom(amountPrecision).
		Custom(amountRange)

	return v.Validate()
}

func amountPresent(value interface{}) *internal.AppError {
	if d, ok := value.(decimal.NullDecimal); !ok || !d.Valid {
		return internal.NewValidationFieldError("total_amount", "total_amount is required", internal.ErrCodeInvalidAmount)
	}
	return nil
}

func amountPrecision(value interface{}) *internal.AppError {
	d, ok := value.(decimal.NullDecimal)
	if !ok || !d.Valid {
		return nil
	}
	if _, err := AmountFromDecimal(d.Decimal); err != nil {
		return internal.NewValidationFieldError("total_amount", "total_amount must have max 2 decimal places", internal.ErrCodeAmountPrecision)
	}
	return nil
}

func amountRange(value interface{}) *internal.AppError {
	d, ok := value.(decimal.NullDecimal)
	if !ok || !d.Valid {
		return nil
	}
	if d.Decimal.LessThan(MinAmount.Decimal()) || d.Decimal.GreaterThan(MaxAmount.Decimal()) {
		message := fmt.Sprintf("total_amount out of range: must be between %s and %s", MinAmount, MaxAmount)
		return internal.NewValidationFieldError("total_amount", message, internal.ErrCodeAmountOutOfRange)
	}
	return nil
}

// UpdateStatus applies a transition from the ValidTransitions table. The
// first transition into paid stamps PaymentTime; it is never overwritten.
func (o *Order) UpdateStatus(newStatus Status) error {
	if !newStatus.IsValid() {
		return internal.NewUnknownStatusError(string(newStatus))
	}
	if !o.Status.CanTransitionTo(newStatus) {
		return internal.NewInvalidTransitionError(string(o.Status), string(newStatus))
	}

	now := nowFunc()
	o.Status = newStatus
	o.UpdatedAt = now
	if newStatus == StatusPaid && o.PaymentTime == nil {
		o.PaymentTime = &now
	}
	return nil
}

// SetGatewayInfo does not check tradeNo uniqueness; the store owns that.
func (o *Order) SetGatewayInfo(tradeNo, buyerLogonID string) {
	o.TradeNo = tradeNo
	o.BuyerLogonID = buyerLogonID
	o.UpdatedAt = nowFunc()
}

func (o *Order) CanPay() bool {
	return o.Status == StatusPending
}

func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

func (o *Order) Clone() *Order {
	c := *o
	if o.PaymentTime != nil {
		t := *o.PaymentTime
		c.PaymentTime = &t
	}
	return &c
}

func ToDataModel(o *Order) *orderDatamodel.Order {
	var paymentTime *time.Time
	if o.PaymentTime != nil {
		t := *o.PaymentTime
		paymentTime = &t
	}
	return &orderDatamodel.Order{
		ID:           o.ID,
		OutTradeNo:   o.OutTradeNo,
		Subject:      o.Subject,
		Body:         o.Body,
		TotalAmount:  o.TotalAmount.Decimal(),
		Status:       string(o.Status),
		TradeNo:      o.TradeNo,
		BuyerLogonID: o.BuyerLogonID,
		PaymentTime:  paymentTime,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

// FromDataModel re-checks the amount, status and keys so a corrupt row is
// reported instead of being loaded.
func FromDataModel(m *orderDatamodel.Order) (*Order, error) {
	if m.ID == "" || m.OutTradeNo == "" {
		return nil, fmt.Errorf("order record is missing id or out_trade_no")
	}

	status, err := ParseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", m.ID, err)
	}

	amount, err := AmountFromDecimal(m.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", m.ID, err)
	}

	var paymentTime *time.Time
	if m.PaymentTime != nil {
		t := m.PaymentTime.UTC()
		paymentTime = &t
	}

	return &Order{
		ID:           m.ID,
		OutTradeNo:   m.OutTradeNo,
		Subject:      m.Subject,
		Body:         m.Body,
		TotalAmount:  amount,
		Status:       status,
		TradeNo:      m.TradeNo,
		BuyerLogonID: m.BuyerLogonID,
		PaymentTime:  paymentTime,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}, nil
}
