package payment_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/core/events"
	"github.com/frahmantamala/pagepay/internal/order"
	paymentpkg "github.com/frahmantamala/pagepay/internal/payment"
	"github.com/frahmantamala/pagepay/internal/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/signature"
)

func validationCodes(err error) map[string]string {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue())
	details, ok := appErr.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())

	codes := make(map[string]string, len(details.Errors))
	for _, e := range details.Errors {
		codes[e.Field] = e.Code
	}
	return codes
}

var _ = Describe("PaymentService", func() {
	var (
		ctx       context.Context
		store     *order.Store
		signer    *signature.Service
		publisher *recordingPublisher
		cfg       paymentpkg.Config
		service   *paymentpkg.Service
	)

	newService := func(sig *signature.Service, opts ...paymentpkg.Option) *paymentpkg.Service {
		gateway := paymentgateway.NewClient(paymentgateway.Config{
			AppID:      testAppID,
			GatewayURL: testGatewayURL,
		}, sig, silentLogger())
		opts = append(opts, paymentpkg.WithPublisher(publisher))
		return paymentpkg.NewService(store, gateway, sig, cfg, silentLogger(), opts...)
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
		publisher = &recordingPublisher{}
		signer = signature.NewService(merchantKey, &gatewayKey.PublicKey)
		cfg = paymentpkg.Config{AppID: testAppID}
		service = newService(signer)
	})

	Describe("CreatePayment", func() {
		It("creates a pending order and rejects a duplicate out_trade_no", func() {
			// Given a valid order
			created, err := service.CreatePayment(ctx, createDTO("test_order_123456", "99.99"))

			// Then it is pending
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Status).To(Equal(order.StatusPending))
			Expect(created.Body).To(Equal("Test Product"))
			Expect(created.TotalAmount.String()).To(Equal("99.99"))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeOrderCreated}))

			// When the same out_trade_no is submitted again
			_, err = service.CreatePayment(ctx, createDTO("test_order_123456", "10.00"))

			// Then it is a duplicate
			Expect(errors.Is(err, internal.ErrDuplicateOrder)).To(BeTrue())
			Expect(store.Len()).To(Equal(1))
		})

		It("rejects an amount with three decimals", func() {
			_, err := service.CreatePayment(ctx, createDTO("test_order_123456", "10.123"))

			Expect(errors.Is(err, internal.ErrValidationFailed)).To(BeTrue())
			Expect(validationCodes(err)).To(HaveKeyWithValue("total_amount", string(internal.ErrCodeAmountPrecision)))
			Expect(err.Error()).To(ContainSubstring("max 2 decimal places"))
		})

		It("rejects an amount above the limit", func() {
			_, err := service.CreatePayment(ctx, createDTO("test_order_123456", "100001"))

			Expect(validationCodes(err)).To(HaveKeyWithValue("total_amount", string(internal.ErrCodeAmountOutOfRange)))
			Expect(err.Error()).To(ContainSubstring("out of range"))
		})

		It("reports every violated rule at once", func() {
			_, err := service.CreatePayment(ctx, order.CreateOrderDTO{OutTradeNo: "bad!", Subject: "  "})

			codes := validationCodes(err)
			Expect(codes).To(HaveKey("out_trade_no"))
			Expect(codes).To(HaveKey("subject"))
			Expect(codes).To(HaveKey("total_amount"))
			Expect(store.Len()).To(BeZero())
		})
	})

	Describe("GeneratePaymentURL", func() {
		var created *order.Order

		BeforeEach(func() {
			var err error
			created, err = service.CreatePayment(ctx, createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("derives callback URLs from the request base and signs with the merchant key", func() {
			raw, err := service.GeneratePaymentURL(ctx, created, "https://shop.example.com/")
			Expect(err).NotTo(HaveOccurred())

			parsed, err := url.Parse(raw)
			Expect(err).NotTo(HaveOccurred())
			q := parsed.Query()
			Expect(q.Get("notify_url")).To(Equal("https://shop.example.com/api/v1/payment/notify"))
			Expect(q.Get("return_url")).To(Equal("https://shop.example.com/api/v1/payment/return"))
			Expect(q.Get("biz_content")).To(ContainSubstring(`"total_amount":"99.99"`))

			params := signature.ParamsFromValues(q)
			Expect(signature.Verify(params, params.Get("sign"), &merchantKey.PublicKey)).To(BeTrue())
		})

		It("prefers configured callback URLs", func() {
			cfg.NotifyURL = "https://pay.example.com/n"
			cfg.ReturnURL = "https://pay.example.com/r"
			service = newService(signer)

			raw, err := service.GeneratePaymentURL(ctx, created, "https://ignored.example.com")
			Expect(err).NotTo(HaveOccurred())

			parsed, _ := url.Parse(raw)
			Expect(parsed.Query().Get("notify_url")).To(Equal("https://pay.example.com/n"))
			Expect(parsed.Query().Get("return_url")).To(Equal("https://pay.example.com/r"))
		})

		It("fails with a config error when no callback URL can be formed", func() {
			_, err := service.GeneratePaymentURL(ctx, created, "")
			Expect(errors.Is(err, internal.ErrConfigInvalid)).To(BeTrue())
		})

		It("fails with a signing error when the merchant key is missing", func() {
			service = newService(signature.NewService(nil, &gatewayKey.PublicKey))

			_, err := service.GeneratePaymentURL(ctx, created, "https://shop.example.com")
			Expect(errors.Is(err, internal.ErrSigningFailed)).To(BeTrue())
		})

		It("refuses orders that are no longer payable", func() {
			_, err := store.UpdateStatus(ctx, created.ID, order.StatusCancelled)
			Expect(err).NotTo(HaveOccurred())
			cancelled, _ := store.GetByID(created.ID)

			_, err = service.GeneratePaymentURL(ctx, cancelled, "https://shop.example.com")
			Expect(errors.Is(err, internal.ErrOrderNotPayable)).To(BeTrue())
		})
	})

	Describe("CreatePaymentAndGenerateURL", func() {
		It("returns the order and its URL", func() {
			result, err := service.CreatePaymentAndGenerateURL(ctx, createDTO("test_order_123456", "99.99"), "https://shop.example.com")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Order.OutTradeNo).To(Equal("test_order_123456"))
			Expect(result.PaymentURL).To(HavePrefix(testGatewayURL + "?"))
		})

		It("keeps the order pending when URL generation fails and allows a retry", func() {
			broken := newService(signature.NewService(nil, &gatewayKey.PublicKey))

			result, err := broken.CreatePaymentAndGenerateURL(ctx, createDTO("test_order_123456", "99.99"), "https://shop.example.com")

			Expect(errors.Is(err, internal.ErrPaymentURLFailed)).To(BeTrue())
			Expect(errors.Is(err, internal.ErrSigningFailed)).To(BeTrue())
			Expect(result).NotTo(BeNil())
			Expect(result.Order.Status).To(Equal(order.StatusPending))
			Expect(result.PaymentURL).To(BeEmpty())

			persisted, ok := store.GetByOutTradeNo("test_order_123456")
			Expect(ok).To(BeTrue())
			Expect(persisted.Status).To(Equal(order.StatusPending))

			retried, err := service.RegeneratePaymentURL(ctx, "test_order_123456", "https://shop.example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(retried.PaymentURL).NotTo(BeEmpty())
		})

		It("does not create anything on validation failure", func() {
			result, err := service.CreatePaymentAndGenerateURL(ctx, createDTO("test_order_123456", "0"), "https://shop.example.com")

			Expect(result).To(BeNil())
			Expect(errors.Is(err, internal.ErrValidationFailed)).To(BeTrue())
			Expect(store.Len()).To(BeZero())
		})

		It("reports an unknown order on regeneration", func() {
			_, err := service.RegeneratePaymentURL(ctx, "missing_order", "https://shop.example.com")
			Expect(errors.Is(err, internal.ErrOrderNotFound)).To(BeTrue())
		})
	})

	Describe("HandleNotifyCallback", func() {
		var created *order.Order

		BeforeEach(func() {
			var err error
			created, err = service.CreatePayment(ctx, createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("marks the order paid and treats a resubmission as a no-op", func() {
			// Given a verified TRADE_SUCCESS notification
			params := gatewaySigned(notifyParams("test_order_123456", "TRADE_SUCCESS"), gatewayKey)

			// When it is delivered
			result := service.HandleNotifyCallback(ctx, params)

			// Then the order is paid with gateway info recorded
			Expect(result.Success).To(BeTrue())
			Expect(result.Order.Status).To(Equal(order.StatusPaid))
			Expect(result.Order.TradeNo).To(Equal("2026030122001400001000000001"))
			Expect(result.Order.BuyerLogonID).To(Equal("buy***@example.com"))
			Expect(result.Order.PaymentTime).NotTo(BeNil())
			paidAt := *result.Order.PaymentTime

			// When the identical notification arrives again
			time.Sleep(5 * time.Millisecond)
			again := service.HandleNotifyCallback(ctx, params)

			// Then it succeeds without changing anything
			Expect(again.Success).To(BeTrue())
			Expect(again.Message).To(Equal(paymentpkg.MessageAlreadyProcessed))
			Expect(again.Order.Status).To(Equal(order.StatusPaid))
			Expect(*again.Order.PaymentTime).To(Equal(paidAt))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeOrderCreated, events.EventTypePaymentCompleted}))
		})

		It("uses trade_no and trade_status as the idempotency key when notify_id is absent", func() {
			params := notifyParams("test_order_123456", "TRADE_SUCCESS")
			delete(params, "notify_id")
			params = gatewaySigned(params, gatewayKey)

			Expect(service.HandleNotifyCallback(ctx, params).Message).To(Equal(paymentpkg.MessageNotificationProcessed))
			Expect(service.HandleNotifyCallback(ctx, params).Message).To(Equal(paymentpkg.MessageAlreadyProcessed))
		})

		It("rejects an invalid signature without touching the order", func() {
			params := gatewaySigned(notifyParams("test_order_123456", "TRADE_SUCCESS"), strangerKey)

			result := service.HandleNotifyCallback(ctx, params)

			Expect(result.Success).To(BeFalse())
			Expect(result.Message).To(Equal(signature.ReasonInvalidSignature))
			Expect(result.Code).To(Equal(internal.ErrCodeCallbackAuthFailed))
			current, _ := store.GetByID(created.ID)
			Expect(current.Status).To(Equal(order.StatusPending))
			Expect(current.TradeNo).To(BeEmpty())
		})

		It("rejects a tampered field", func() {
			params := gatewaySigned(notifyParams("test_order_123456", "TRADE_CLOSED"), gatewayKey)
			params["trade_status"] = "TRADE_SUCCESS"

			Expect(service.HandleNotifyCallback(ctx, params).Success).To(BeFalse())
		})

		It("rejects an unsigned notification", func() {
			result := service.HandleNotifyCallback(ctx, notifyParams("test_order_123456", "TRADE_SUCCESS"))

			Expect(result.Success).To(BeFalse())
			Expect(result.Message).To(Equal(signature.ReasonMissingSignature))
			Expect(result.Code).To(Equal(internal.ErrCodeCallbackAuthFailed))
		})

		DescribeTable("rejects malformed notifications",
			func(mutate func(signature.Params), message string, code internal.ErrorCode) {
				params := notifyParams("test_order_123456", "TRADE_SUCCESS")
				mutate(params)
				result := service.HandleNotifyCallback(ctx, gatewaySigned(params, gatewayKey))

				Expect(result.Success).To(BeFalse())
				Expect(result.Message).To(ContainSubstring(message))
				Expect(result.Code).To(Equal(code))
				current, _ := store.GetByID(created.ID)
				Expect(current.Status).To(Equal(order.StatusPending))
			},
			Entry("missing out_trade_no", func(p signature.Params) { delete(p, "out_trade_no") }, "out_trade_no", internal.ErrCodeValidationFailed),
			Entry("missing trade_no", func(p signature.Params) { delete(p, "trade_no") }, "trade_no", internal.ErrCodeValidationFailed),
			Entry("missing trade_status", func(p signature.Params) { delete(p, "trade_status") }, "trade_status", internal.ErrCodeValidationFailed),
			Entry("foreign app_id", func(p signature.Params) { p["app_id"] = "someone_else" }, paymentpkg.MessageAppIDMismatch, internal.ErrCodeCallbackAuthFailed),
			Entry("unknown order", func(p signature.Params) { p["out_trade_no"] = "other_order_1" }, paymentpkg.MessageOrderNotFound, internal.ErrCodeOrderNotFound),
			Entry("wrong amount", func(p signature.Params) { p["total_amount"] = "0.01" }, paymentpkg.MessageAmountMismatch, internal.ErrCodeValidationFailed),
			Entry("garbage amount", func(p signature.Params) { p["total_amount"] = "abc" }, paymentpkg.MessageAmountMismatch, internal.ErrCodeValidationFailed),
		)

		It("accepts a notification without total_amount", func() {
			params := notifyParams("test_order_123456", "TRADE_FINISHED")
			delete(params, "total_amount")

			result := service.HandleNotifyCallback(ctx, gatewaySigned(params, gatewayKey))
			Expect(result.Success).To(BeTrue())
			Expect(result.Order.Status).To(Equal(order.StatusPaid))
		})

		It("marks the order failed on TRADE_CLOSED", func() {
			result := service.HandleNotifyCallback(ctx, gatewaySigned(notifyParams("test_order_123456", "TRADE_CLOSED"), gatewayKey))

			Expect(result.Success).To(BeTrue())
			Expect(result.Order.Status).To(Equal(order.StatusFailed))
			Expect(result.Order.PaymentTime).To(BeNil())
			Expect(publisher.types()).To(ContainElement(events.EventTypePaymentFailed))
		})

		DescribeTable("records gateway info without a transition",
			func(tradeStatus string) {
				result := service.HandleNotifyCallback(ctx, gatewaySigned(notifyParams("test_order_123456", tradeStatus), gatewayKey))

				Expect(result.Success).To(BeTrue())
				Expect(result.Order.Status).To(Equal(order.StatusPending))
				Expect(result.Order.TradeNo).To(Equal("2026030122001400001000000001"))
				Expect(publisher.types()).To(Equal([]string{events.EventTypeOrderCreated}))
			},
			Entry("waiting for the buyer", "WAIT_BUYER_PAY"),
			Entry("unrecognised status", "TRADE_SOMETHING_NEW"),
		)

		It("does not revive an order cancelled before a late success arrives", func() {
			_, err := service.UpdateOrderStatus(ctx, created.ID, "cancelled")
			Expect(err).NotTo(HaveOccurred())

			result := service.HandleNotifyCallback(ctx, gatewaySigned(notifyParams("test_order_123456", "TRADE_SUCCESS"), gatewayKey))

			Expect(result.Success).To(BeTrue())
			Expect(result.Order.Status).To(Equal(order.StatusCancelled))
			Expect(result.Order.PaymentTime).To(BeNil())
		})

		It("transitions exactly once under concurrent deliveries", func() {
			params := gatewaySigned(notifyParams("test_order_123456", "TRADE_SUCCESS"), gatewayKey)

			var wg sync.WaitGroup
			results := make([]paymentpkg.CallbackResult, 16)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					results[i] = service.HandleNotifyCallback(ctx, params)
				}(i)
			}
			wg.Wait()

			processed := 0
			for _, r := range results {
				Expect(r.Success).To(BeTrue())
				if r.Message == paymentpkg.MessageNotificationProcessed {
					processed++
				}
			}
			Expect(processed).To(Equal(1))

			completed := 0
			for _, t := range publisher.types() {
				if t == events.EventTypePaymentCompleted {
					completed++
				}
			}
			Expect(completed).To(Equal(1))
		})
	})

	Describe("HandleReturnCallback", func() {
		BeforeEach(func() {
			_, err := service.CreatePayment(ctx, createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		returnParams := func() signature.Params {
			return signature.Params{
				"app_id":       testAppID,
				"out_trade_no": "test_order_123456",
				"trade_no":     "2026030122001400001000000001",
				"total_amount": "99.99",
				"method":       "alipay.trade.page.pay.return",
			}
		}

		It("reports the current status without changing it", func() {
			params := returnParams()
			params["trade_status"] = "TRADE_SUCCESS"

			result := service.HandleReturnCallback(ctx, gatewaySigned(params, gatewayKey))

			Expect(result.Success).To(BeTrue())
			Expect(result.Order.Status).To(Equal(order.StatusPending))
			Expect(result.Order.TradeNo).To(BeEmpty())
		})

		It("requires a valid signature by default", func() {
			result := service.HandleReturnCallback(ctx, returnParams())
			Expect(result.Success).To(BeFalse())
			Expect(result.Message).To(Equal(signature.ReasonMissingSignature))

			result = service.HandleReturnCallback(ctx, gatewaySigned(returnParams(), strangerKey))
			Expect(result.Success).To(BeFalse())
			Expect(result.Message).To(Equal(signature.ReasonInvalidSignature))
			Expect(result.Code).To(Equal(internal.ErrCodeCallbackAuthFailed))
		})

		It("skips verification only when built for it and still never mutates", func() {
			unverified := newService(signer, paymentpkg.WithUnverifiedReturnCallbacks())
			params := returnParams()
			params["trade_status"] = "TRADE_SUCCESS"

			result := unverified.HandleReturnCallback(ctx, params)

			Expect(result.Success).To(BeTrue())
			Expect(result.Order.Status).To(Equal(order.StatusPending))
			current, _ := store.GetByOutTradeNo("test_order_123456")
			Expect(current.Status).To(Equal(order.StatusPending))
		})

		It("fails for an unknown order", func() {
			params := returnParams()
			params["out_trade_no"] = "other_order_1"

			result := service.HandleReturnCallback(ctx, gatewaySigned(params, gatewayKey))
			Expect(result.Success).To(BeFalse())
			Expect(result.Message).To(Equal(paymentpkg.MessageOrderNotFound))
		})
	})

	Describe("QueryPaymentStatus", func() {
		It("finds existing orders and reports missing ones softly", func() {
			_, err := service.CreatePayment(ctx, createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())

			found := service.QueryPaymentStatus(ctx, "test_order_123456")
			Expect(found.Success).To(BeTrue())
			Expect(found.Order.OutTradeNo).To(Equal("test_order_123456"))

			missing := service.QueryPaymentStatus(ctx, "missing_order")
			Expect(missing.Success).To(BeFalse())
			Expect(missing.Order).To(BeNil())
		})
	})

	Describe("administration", func() {
		var created *order.Order

		BeforeEach(func() {
			var err error
			created, err = service.CreatePayment(ctx, createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("applies valid transitions and rejects others", func() {
			_, err := service.UpdateOrderStatus(ctx, created.ID, "refunded")
			Expect(errors.Is(err, internal.ErrUnknownStatus)).To(BeTrue())

			updated, err := service.UpdateOrderStatus(ctx, created.ID, "failed")
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(order.StatusFailed))

			_, err = service.UpdateOrderStatus(ctx, created.ID, "paid")
			Expect(errors.Is(err, internal.ErrInvalidTransition)).To(BeTrue())

			_, err = service.UpdateOrderStatus(ctx, "no-such-id", "cancelled")
			Expect(errors.Is(err, internal.ErrOrderNotFound)).To(BeTrue())
		})

		It("lists and aggregates orders", func() {
			_, err := service.CreatePayment(ctx, createDTO("test_order_654321", "100.00"))
			Expect(err).NotTo(HaveOccurred())

			Expect(service.ListOrders(ctx, order.ListFilter{})).To(HaveLen(2))
			Expect(service.ListOrders(ctx, order.ListFilter{Status: order.StatusPaid})).To(BeEmpty())

			stats := service.Stats(ctx)
			Expect(stats.Total).To(Equal(2))
			Expect(stats.TotalAmount.String()).To(Equal("199.99"))
		})

		It("clears orders only when allowed", func() {
			Expect(errors.Is(service.ClearOrders(ctx), internal.ErrOperationDisabled)).To(BeTrue())
			Expect(store.Len()).To(Equal(1))

			cfg.AllowClear = true
			service = newService(signer)
			Expect(service.ClearOrders(ctx)).To(Succeed())
			Expect(store.Len()).To(BeZero())
		})
	})
})
