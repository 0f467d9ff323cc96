package paymentgateway

// Wire constants of the page-pay gateway API.
const (
	MethodPagePay          = "alipay.trade.page.pay"
	ProductCodeFastInstant = "FAST_INSTANT_TRADE_PAY"
	FormatJSON             = "JSON"
	CharsetUTF8            = "utf-8"
	SignTypeRSA2           = "RSA2"
	APIVersion             = "1.0"
	TimestampLayout        = "2006-01-02 15:04:05"
	DefaultTimeoutExpress  = "30m"
)

// Request parameter names.
const (
	ParamAppID      = "app_id"
	ParamMethod     = "method"
	ParamFormat     = "format"
	ParamCharset    = "charset"
	ParamSignType   = "sign_type"
	ParamTimestamp  = "timestamp"
	ParamVersion    = "version"
	ParamBizContent = "biz_content"
	ParamNotifyURL  = "notify_url"
	ParamReturnURL  = "return_url"
	ParamSign       = "sign"
)

// Callback field names.
const (
	FieldOutTradeNo   = "out_trade_no"
	FieldTradeNo      = "trade_no"
	FieldTradeStatus  = "trade_status"
	FieldTotalAmount  = "total_amount"
	FieldAppID        = "app_id"
	FieldBuyerLogonID = "buyer_logon_id"
	FieldNotifyID     = "notify_id"
)

type TradeStatus string

const (
	TradeStatusWaitBuyerPay TradeStatus = "WAIT_BUYER_PAY"
	TradeStatusSuccess      TradeStatus = "TRADE_SUCCESS"
	TradeStatusFinished     TradeStatus = "TRADE_FINISHED"
	TradeStatusClosed       TradeStatus = "TRADE_CLOSED"
)

// BizContent is the JSON payload nested in the biz_content parameter.
type BizContent struct {
	OutTradeNo     string `json:"out_trade_no"`
	ProductCode    string `json:"product_code"`
	TotalAmount    string `json:"total_amount"`
	Subject        string `json:"subject"`
	Body           string `json:"body,omitempty"`
	TimeoutExpress string `json:"timeout_express,omitempty"`
}
