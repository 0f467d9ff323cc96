package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the durable record of a payment order. Its JSON form is the
// snapshot format used by export/import.
type Order struct {
	ID           string          `json:"id" gorm:"column:id;primaryKey;type:varchar(36)"`
	OutTradeNo   string          `json:"out_trade_no" gorm:"column:out_trade_no;type:varchar(64);not null;uniqueIndex"`
	Subject      string          `json:"subject" gorm:"column:subject;type:varchar(1024);not null"`
	Body         string          `json:"body" gorm:"column:body;type:text"`
	TotalAmount  decimal.Decimal `json:"total_amount" gorm:"column:total_amount;type:decimal(12,2);not null"`
	Status       string          `json:"status" gorm:"column:status;type:varchar(16);not null;index"`
	TradeNo      string          `json:"trade_no" gorm:"column:trade_no;type:varchar(64);index"`
	BuyerLogonID string          `json:"buyer_logon_id" gorm:"column:buyer_logon_id;type:varchar(128)"`
	PaymentTime  *time.Time      `json:"payment_time" gorm:"column:payment_time"`
	CreatedAt    time.Time       `json:"created_at" gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (Order) TableName() string {
	return "orders"
}

// Notification records a gateway notification that has been applied, keyed
// by the gateway notify id.
type Notification struct {
	NotifyID    string    `json:"notify_id" gorm:"column:notify_id;primaryKey;type:varchar(128)"`
	OrderID     string    `json:"order_id" gorm:"column:order_id;type:varchar(36);not null;index"`
	OutTradeNo  string    `json:"out_trade_no" gorm:"column:out_trade_no;type:varchar(64);not null"`
	TradeNo     string    `json:"trade_no" gorm:"column:trade_no;type:varchar(64)"`
	TradeStatus string    `json:"trade_status" gorm:"column:trade_status;type:varchar(32)"`
	ProcessedAt time.Time `json:"processed_at" gorm:"column:processed_at;not null"`
}

func (Notification) TableName() string {
	return "payment_notifications"
}
