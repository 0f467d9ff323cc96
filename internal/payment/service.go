package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frahmantamala/pagepay/internal"
	gatewaytypes "github.com/frahmantamala/pagepay/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/core/events"
	"github.com/frahmantamala/pagepay/internal/order"
	"github.com/frahmantamala/pagepay/internal/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/signature"
)

// StoreAPI is the part of *order.Store the service depends on.
type StoreAPI interface {
	Create(ctx context.Context, dto order.CreateOrderDTO) (*order.Order, error)
	GetByID(id string) (*order.Order, bool)
	GetByOutTradeNo(outTradeNo string) (*order.Order, bool)
	List(filter order.ListFilter) []*order.Order
	UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error)
	ApplyNotification(ctx context.Context, id string, update order.NotificationUpdate) (*order.NotificationOutcome, error)
	Stats() order.Stats
	Clear(ctx context.Context) error
}

type URLBuilder interface {
	BuildPagePayURL(req paymentgateway.PagePayRequest) (string, error)
}

type Verifier interface {
	VerifyCallback(params signature.Params) signature.CallbackVerification
}

// ServiceAPI is what the HTTP handlers call.
type ServiceAPI interface {
	CreatePayment(ctx context.Context, dto order.CreateOrderDTO) (*order.Order, error)
	GeneratePaymentURL(ctx context.Context, o *order.Order, callbackBaseURL string) (string, error)
	CreatePaymentAndGenerateURL(ctx context.Context, dto order.CreateOrderDTO, callbackBaseURL string) (*PaymentResult, error)
	RegeneratePaymentURL(ctx context.Context, outTradeNo, callbackBaseURL string) (*PaymentResult, error)
	HandleNotifyCallback(ctx context.Context, params signature.Params) CallbackResult
	HandleReturnCallback(ctx context.Context, params signature.Params) CallbackResult
	QueryPaymentStatus(ctx context.Context, outTradeNo string) CallbackResult
	UpdateOrderStatus(ctx context.Context, id, status string) (*order.Order, error)
	ListOrders(ctx context.Context, filter order.ListFilter) []*order.Order
	Stats(ctx context.Context) order.Stats
	ClearOrders(ctx context.Context) error
}

type Config struct {
	AppID      string
	NotifyURL  string
	ReturnURL  string
	AllowClear bool
}

func ConfigFrom(gateway internal.GatewayConfig, admin internal.AdminConfig) Config {
	return Config{
		AppID:      gateway.AppID,
		NotifyURL:  gateway.NotifyURL,
		ReturnURL:  gateway.ReturnURL,
		AllowClear: admin.AllowClear,
	}
}

type Option func(*Service)

// WithUnverifiedReturnCallbacks skips signature checks on the browser
// return path. Return callbacks stay read-only either way.
func WithUnverifiedReturnCallbacks() Option {
	return func(s *Service) {
		s.verifyReturn = false
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

type Service struct {
	store        StoreAPI
	gateway      URLBuilder
	verifier     Verifier
	publisher    events.Publisher
	config       Config
	logger       *slog.Logger
	verifyReturn bool
}

func NewService(store StoreAPI, gateway URLBuilder, verifier Verifier, config Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		gateway:      gateway,
		verifier:     verifier,
		config:       config,
		logger:       logger,
		verifyReturn: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.verifyReturn {
		s.logger.Warn("return callback signature verification is DISABLED; use only for local testing")
	}
	return s
}

func (s *Service) CreatePayment(ctx context.Context, dto order.CreateOrderDTO) (*order.Order, error) {
	created, err := s.store.Create(ctx, dto)
	if err != nil {
		switch {
		case errors.Is(err, internal.ErrValidationFailed):
			s.logger.Warn("order validation failed", "out_trade_no", dto.OutTradeNo, "error", err)
		case errors.Is(err, internal.ErrDuplicateOrder):
			s.logger.Warn("duplicate order rejected", "out_trade_no", dto.OutTradeNo)
		default:
			s.logger.Error("failed to create order", "out_trade_no", dto.OutTradeNo, "error", err)
		}
		return nil, err
	}

	s.logger.Info("order created",
		"order_id", created.ID,
		"out_trade_no", created.OutTradeNo,
		"total_amount", created.TotalAmount.String())

	s.publish(ctx, events.NewOrderCreatedEvent(created.ID, created.OutTradeNo, created.TotalAmount.String()))
	return created, nil
}

// GeneratePaymentURL signs a page-pay request for a pending order.
// Callback URLs come from configuration, else from callbackBaseURL.
func (s *Service) GeneratePaymentURL(ctx context.Context, o *order.Order, callbackBaseURL string) (string, error) {
	if o == nil {
		return "", internal.NewOrderNotFoundError("")
	}
	if !o.CanPay() {
		s.logger.Warn("payment url requested for non-payable order", "out_trade_no", o.OutTradeNo, "status", o.Status)
		return "", internal.NewConflictError(
			fmt.Sprintf("order %s is %s and cannot be paid", o.OutTradeNo, o.Status), internal.ErrCodeOrderNotPayable)
	}

	notifyURL, returnURL, err := s.callbackURLs(callbackBaseURL)
	if err != nil {
		s.logger.Error("no callback urls available", "out_trade_no", o.OutTradeNo, "error", err)
		return "", err
	}

	paymentURL, err := s.gateway.BuildPagePayURL(paymentgateway.PagePayRequest{
		OutTradeNo:  o.OutTradeNo,
		TotalAmount: o.TotalAmount.String(),
		Subject:     o.Subject,
		Body:        o.Body,
		NotifyURL:   notifyURL,
		ReturnURL:   returnURL,
	})
	if err != nil {
		if !errors.Is(err, internal.ErrSigningFailed) {
			err = internal.NewSigningError(err)
		}
		s.logger.Error("failed to generate payment url", "out_trade_no", o.OutTradeNo, "error", err)
		return "", err
	}

	s.logger.Info("payment url generated", "out_trade_no", o.OutTradeNo, "notify_url", notifyURL)
	return paymentURL, nil
}

func (s *Service) callbackURLs(callbackBaseURL string) (notifyURL, returnURL string, err error) {
	base := strings.TrimRight(strings.TrimSpace(callbackBaseURL), "/")

	notifyURL = s.config.NotifyURL
	if notifyURL == "" && base != "" {
		notifyURL = base + NotifyPath
	}
	returnURL = s.config.ReturnURL
	if returnURL == "" && base != "" {
		returnURL = base + ReturnPath
	}

	if notifyURL == "" || returnURL == "" {
		return "", "", internal.NewConfigError("notify_url and return_url are not configured and no callback base url was given", nil)
	}
	return notifyURL, returnURL, nil
}

// CreatePaymentAndGenerateURL creates the order and signs its URL. When
// signing fails the order stays pending and the result still carries it,
// alongside a PAYMENT_URL_FAILED error the caller can recover from with
// RegeneratePaymentURL.
func (s *Service) CreatePaymentAndGenerateURL(ctx context.Context, dto order.CreateOrderDTO, callbackBaseURL string) (*PaymentResult, error) {
	created, err := s.CreatePayment(ctx, dto)
	if err != nil {
		return nil, err
	}

	result := &PaymentResult{Order: created}
	paymentURL, err := s.GeneratePaymentURL(ctx, created, callbackBaseURL)
	if err != nil {
		s.logger.Warn("order left pending without payment url", "order_id", created.ID, "out_trade_no", created.OutTradeNo)
		return result, internal.NewPaymentURLError(err)
	}

	result.PaymentURL = paymentURL
	return result, nil
}

func (s *Service) RegeneratePaymentURL(ctx context.Context, outTradeNo, callbackBaseURL string) (*PaymentResult, error) {
	o, ok := s.store.GetByOutTradeNo(outTradeNo)
	if !ok {
		return nil, internal.NewOrderNotFoundError(outTradeNo)
	}

	paymentURL, err := s.GeneratePaymentURL(ctx, o, callbackBaseURL)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Order: o, PaymentURL: paymentURL}, nil
}

// HandleNotifyCallback authenticates and applies an asynchronous gateway
// notification. Duplicate deliveries are answered with success and leave
// the order untouched.
func (s *Service) HandleNotifyCallback(ctx context.Context, params signature.Params) CallbackResult {
	outTradeNo := params.Get(gatewaytypes.FieldOutTradeNo)
	tradeNo := params.Get(gatewaytypes.FieldTradeNo)
	tradeStatus := params.Get(gatewaytypes.FieldTradeStatus)

	log := s.logger.With("callback", "notify", "out_trade_no", outTradeNo, "trade_no", tradeNo, "trade_status", tradeStatus)

	if result, ok := s.checkCallback(params, log,
		gatewaytypes.FieldOutTradeNo, gatewaytypes.FieldTradeNo, gatewaytypes.FieldTradeStatus); !ok {
		return result
	}
	if res := s.verifier.VerifyCallback(params); !res.Valid {
		log.Warn("notify callback rejected", "reason", res.Reason)
		return failed(internal.ErrCodeCallbackAuthFailed, res.Reason)
	}

	current, ok := s.store.GetByOutTradeNo(outTradeNo)
	if !ok {
		log.Warn("notify callback for unknown order")
		return failed(internal.ErrCodeOrderNotFound, MessageOrderNotFound)
	}

	if raw := params.Get(gatewaytypes.FieldTotalAmount); raw != "" {
		amount, err := order.ParseAmount(raw)
		if err != nil || amount != current.TotalAmount {
			log.Warn("notify callback amount mismatch", "expected", current.TotalAmount.String(), "got", raw)
			return failed(internal.ErrCodeValidationFailed, MessageAmountMismatch)
		}
	}

	target, known := MapTradeStatus(tradeStatus)
	if !known {
		log.Warn("unrecognised trade status, recording gateway info only")
	}

	outcome, err := s.store.ApplyNotification(ctx, current.ID, order.NotificationUpdate{
		NotifyID:     notificationKey(params),
		TradeNo:      tradeNo,
		BuyerLogonID: params.Get(gatewaytypes.FieldBuyerLogonID),
		TradeStatus:  tradeStatus,
		Target:       target,
	})
	if err != nil {
		log.Error("failed to apply notification", "error", err)
		return failed(internal.ErrCodeStoreWriteFailed, MessageApplyFailed)
	}

	if outcome.AlreadyProcessed {
		log.Info("duplicate notification ignored", "status", outcome.Order.Status)
		return CallbackResult{Success: true, Message: MessageAlreadyProcessed, Order: outcome.Order}
	}

	if outcome.Transitioned {
		log.Info("order status updated from notification",
			"order_id", outcome.Order.ID,
			"from", outcome.PreviousStatus,
			"to", outcome.Order.Status)
		s.publishTransition(ctx, outcome.Order, tradeStatus)
	} else {
		log.Info("notification recorded without status change", "status", outcome.Order.Status)
	}

	return CallbackResult{Success: true, Message: MessageNotificationProcessed, Order: outcome.Order}
}

// HandleReturnCallback reports the current order status for a browser
// redirect. It never changes order state.
func (s *Service) HandleReturnCallback(ctx context.Context, params signature.Params) CallbackResult {
	outTradeNo := params.Get(gatewaytypes.FieldOutTradeNo)
	log := s.logger.With("callback", "return", "out_trade_no", outTradeNo)

	if result, ok := s.checkCallback(params, log, gatewaytypes.FieldOutTradeNo, gatewaytypes.FieldTradeNo); !ok {
		return result
	}

	if s.verifyReturn {
		if res := s.verifier.VerifyCallback(params); !res.Valid {
			log.Warn("return callback rejected", "reason", res.Reason)
			return failed(internal.ErrCodeCallbackAuthFailed, res.Reason)
		}
	} else {
		log.Warn("return callback accepted without signature verification")
	}

	o, ok := s.store.GetByOutTradeNo(outTradeNo)
	if !ok {
		log.Warn("return callback for unknown order")
		return failed(internal.ErrCodeOrderNotFound, MessageOrderNotFound)
	}

	log.Info("return callback handled", "status", o.Status)
	return CallbackResult{Success: true, Message: fmt.Sprintf("order is %s", o.Status), Order: o}
}

// checkCallback enforces required fields and the optional app_id match.
func (s *Service) checkCallback(params signature.Params, log *slog.Logger, required ...string) (CallbackResult, bool) {
	for _, field := range required {
		if strings.TrimSpace(params.Get(field)) == "" {
			log.Warn("callback missing required field", "field", field)
			return failed(internal.ErrCodeValidationFailed, "missing required field: "+field), false
		}
	}

	appID := params.Get(gatewaytypes.FieldAppID)
	if appID != "" && s.config.AppID != "" && appID != s.config.AppID {
		log.Warn("callback app_id mismatch", "app_id", appID)
		return failed(internal.ErrCodeCallbackAuthFailed, MessageAppIDMismatch), false
	}
	return CallbackResult{}, true
}

// notificationKey prefers the gateway notify_id and falls back to the
// trade number plus status.
func notificationKey(params signature.Params) string {
	if id := params.Get(gatewaytypes.FieldNotifyID); id != "" {
		return id
	}
	return params.Get(gatewaytypes.FieldTradeNo) + ":" + params.Get(gatewaytypes.FieldTradeStatus)
}

func (s *Service) QueryPaymentStatus(ctx context.Context, outTradeNo string) CallbackResult {
	o, ok := s.store.GetByOutTradeNo(outTradeNo)
	if !ok {
		return failed(internal.ErrCodeOrderNotFound, MessageOrderNotFound)
	}
	return CallbackResult{Success: true, Message: fmt.Sprintf("order is %s", o.Status), Order: o}
}

// UpdateOrderStatus applies an administrative transition.
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (*order.Order, error) {
	target, err := order.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, id, target)
	if err != nil {
		s.logger.Warn("admin status update failed", "order_id", id, "status", status, "error", err)
		return nil, err
	}

	s.logger.Info("order status updated by admin",
		"order_id", id,
		"status", updated.Status,
		"admin", internal.AdminFromContext(ctx))
	return updated, nil
}

func (s *Service) ListOrders(ctx context.Context, filter order.ListFilter) []*order.Order {
	return s.store.List(filter)
}

func (s *Service) Stats(ctx context.Context) order.Stats {
	return s.store.Stats()
}

func (s *Service) ClearOrders(ctx context.Context) error {
	if !s.config.AllowClear {
		return internal.ErrOperationDisabled
	}
	s.logger.Warn("clearing all orders", "admin", internal.AdminFromContext(ctx))
	return s.store.Clear(ctx)
}

func (s *Service) publishTransition(ctx context.Context, o *order.Order, tradeStatus string) {
	switch o.Status {
	case order.StatusPaid:
		paidAt := o.UpdatedAt
		if o.PaymentTime != nil {
			paidAt = *o.PaymentTime
		}
		s.publish(ctx, events.NewPaymentCompletedEvent(o.ID, o.OutTradeNo, o.TradeNo, o.TotalAmount.String(), o.BuyerLogonID, paidAt))
	case order.StatusFailed:
		s.publish(ctx, events.NewPaymentFailedEvent(o.ID, o.OutTradeNo, o.TradeNo, o.TotalAmount.String(), tradeStatus))
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "event_id", event.EventID(), "error", err)
	}
}
