package paymentgateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/pagepay/internal"
	gatewaytypes "github.com/frahmantamala/pagepay/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/signature"
)

type Signer interface {
	Sign(params signature.Params) (string, error)
}

type Config struct {
	AppID          string
	GatewayURL     string
	TimeoutExpress string
}

func ConfigFrom(cfg internal.GatewayConfig) Config {
	return Config{
		AppID:          cfg.AppID,
		GatewayURL:     cfg.BaseURL(),
		TimeoutExpress: cfg.TimeoutExpress,
	}
}

// PagePayRequest describes one page-pay redirect.
type PagePayRequest struct {
	OutTradeNo  string
	TotalAmount string
	Subject     string
	Body        string
	NotifyURL   string
	ReturnURL   string
}

// Client builds signed page-pay redirect URLs. It never talks to the
// gateway itself; the buyer's browser follows the URL.
type Client struct {
	appID          string
	gatewayURL     string
	timeoutExpress string
	signer         Signer
	logger         *slog.Logger
	now            func() time.Time
}

func NewClient(cfg Config, signer Signer, logger *slog.Logger) *Client {
	timeout := cfg.TimeoutExpress
	if timeout == "" {
		timeout = gatewaytypes.DefaultTimeoutExpress
	}
	return &Client{
		appID:          cfg.AppID,
		gatewayURL:     cfg.GatewayURL,
		timeoutExpress: timeout,
		signer:         signer,
		logger:         logger,
		now:            time.Now,
	}
}

// WithClock replaces the timestamp source.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func (c *Client) GatewayURL() string {
	return c.gatewayURL
}

// Params assembles the unsigned request parameters.
func (c *Client) Params(req PagePayRequest) (signature.Params, error) {
	biz, err := encodeBizContent(gatewaytypes.BizContent{
		OutTradeNo:     req.OutTradeNo,
		ProductCode:    gatewaytypes.ProductCodeFastInstant,
		TotalAmount:    req.TotalAmount,
		Subject:        req.Subject,
		Body:           req.Body,
		TimeoutExpress: c.timeoutExpress,
	})
	if err != nil {
		return nil, err
	}

	return signature.Params{
		gatewaytypes.ParamAppID:      c.appID,
		gatewaytypes.ParamMethod:     gatewaytypes.MethodPagePay,
		gatewaytypes.ParamFormat:     gatewaytypes.FormatJSON,
		gatewaytypes.ParamCharset:    gatewaytypes.CharsetUTF8,
		gatewaytypes.ParamSignType:   gatewaytypes.SignTypeRSA2,
		gatewaytypes.ParamTimestamp:  c.now().UTC().Format(gatewaytypes.TimestampLayout),
		gatewaytypes.ParamVersion:    gatewaytypes.APIVersion,
		gatewaytypes.ParamBizContent: biz,
		gatewaytypes.ParamNotifyURL:  req.NotifyURL,
		gatewaytypes.ParamReturnURL:  req.ReturnURL,
	}, nil
}

// BuildPagePayURL signs the parameters and appends them, sign included, as
// a sorted percent-encoded query string.
func (c *Client) BuildPagePayURL(req PagePayRequest) (string, error) {
	params, err := c.Params(req)
	if err != nil {
		return "", err
	}

	sig, err := c.signer.Sign(params)
	if err != nil {
		c.logger.Error("failed to sign page-pay request", "out_trade_no", req.OutTradeNo, "error", err)
		return "", err
	}

	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	values.Set(gatewaytypes.ParamSign, sig)

	sep := "?"
	if strings.Contains(c.gatewayURL, "?") {
		sep = "&"
	}

	c.logger.Debug("page-pay url built", "out_trade_no", req.OutTradeNo, "gateway", c.gatewayURL)
	return c.gatewayURL + sep + values.Encode(), nil
}

// encodeBizContent keeps &, < and > literal; the gateway signs the raw JSON.
func encodeBizContent(biz gatewaytypes.BizContent) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(biz); err != nil {
		return "", fmt.Errorf("encode biz_content: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
