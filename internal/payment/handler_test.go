package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/order"
	paymentpkg "github.com/frahmantamala/pagepay/internal/payment"
	"github.com/frahmantamala/pagepay/internal/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/signature"
	"github.com/frahmantamala/pagepay/internal/transport"
)

var _ = Describe("HTTP handlers", func() {
	var (
		store   *order.Store
		service *paymentpkg.Service
		router  *chi.Mux
	)

	build := func(sig *signature.Service, cfg paymentpkg.Config) {
		gateway := paymentgateway.NewClient(paymentgateway.Config{AppID: testAppID, GatewayURL: testGatewayURL}, sig, silentLogger())
		service = paymentpkg.NewService(store, gateway, sig, cfg, silentLogger())

		handler := paymentpkg.NewHandler(service, "", silentLogger())
		webhook := paymentpkg.NewWebhookHandler(transport.NewBaseHandler(silentLogger()), service, silentLogger())

		router = chi.NewRouter()
		router.Post("/api/v1/payments", handler.CreatePayment)
		router.Get("/api/v1/payments/{outTradeNo}", handler.GetPaymentStatus)
		router.Post("/api/v1/payments/{outTradeNo}/url", handler.RegeneratePaymentURL)
		router.Post("/api/v1/payment/notify", webhook.HandleNotify)
		router.Get("/api/v1/payment/return", webhook.HandleReturn)
		router.Get("/api/v1/admin/orders", handler.ListOrders)
		router.Get("/api/v1/admin/orders/stats", handler.GetStats)
		router.Patch("/api/v1/admin/orders/{id}/status", handler.UpdateOrderStatus)
		router.Delete("/api/v1/admin/orders", handler.ClearOrders)
	}

	do := func(method, target, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		store = newStore()
		build(signature.NewService(merchantKey, &gatewayKey.PublicKey), paymentpkg.Config{AppID: testAppID})
	})

	Describe("POST /api/v1/payments", func() {
		It("creates the order and returns a URL whose callbacks use the request host", func() {
			rec := do(http.MethodPost, "http://shop.example.com/api/v1/payments", "application/json",
				`{"out_trade_no":"test_order_123456","subject":"Test Product","total_amount":99.99}`)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			body := decode(rec)
			Expect(body["order"]).To(HaveKeyWithValue("status", "pending"))
			Expect(body["order"]).To(HaveKeyWithValue("total_amount", "99.99"))

			parsed, err := url.Parse(body["payment_url"].(string))
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed.Query().Get("notify_url")).To(Equal("http://shop.example.com/api/v1/payment/notify"))
		})

		It("accepts the amount as a string", func() {
			rec := do(http.MethodPost, "/api/v1/payments", "application/json",
				`{"out_trade_no":"test_order_123456","subject":"Test Product","total_amount":"0.01"}`)
			Expect(rec.Code).To(Equal(http.StatusCreated))
		})

		It("returns every validation failure", func() {
			rec := do(http.MethodPost, "/api/v1/payments", "application/json",
				`{"out_trade_no":"x","subject":"","total_amount":10.123}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			errBody := decode(rec)["error"].(map[string]interface{})
			Expect(errBody["code"]).To(Equal("VALIDATION_FAILED"))
			details := errBody["details"].(map[string]interface{})["errors"].([]interface{})
			Expect(details).To(HaveLen(3))
		})

		It("returns 409 for a duplicate", func() {
			payload := `{"out_trade_no":"test_order_123456","subject":"Test Product","total_amount":99.99}`
			Expect(do(http.MethodPost, "/api/v1/payments", "application/json", payload).Code).To(Equal(http.StatusCreated))

			rec := do(http.MethodPost, "/api/v1/payments", "application/json", payload)
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(decode(rec)["error"]).To(HaveKeyWithValue("code", "DUPLICATE_ORDER"))
		})

		It("returns 202 with the order when the URL cannot be signed", func() {
			build(signature.NewService(nil, &gatewayKey.PublicKey), paymentpkg.Config{AppID: testAppID})

			rec := do(http.MethodPost, "/api/v1/payments", "application/json",
				`{"out_trade_no":"test_order_123456","subject":"Test Product","total_amount":99.99}`)

			Expect(rec.Code).To(Equal(http.StatusAccepted))
			body := decode(rec)
			Expect(body["order"]).To(HaveKeyWithValue("status", "pending"))
			Expect(body["error"]).To(HaveKeyWithValue("code", "PAYMENT_URL_FAILED"))
			Expect(body).NotTo(HaveKey("payment_url"))
		})

		It("rejects malformed JSON", func() {
			rec := do(http.MethodPost, "/api/v1/payments", "application/json", `{"out_trade_no":`)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("status and URL regeneration", func() {
		BeforeEach(func() {
			_, err := service.CreatePayment(context.Background(), createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the order status", func() {
			rec := do(http.MethodGet, "/api/v1/payments/test_order_123456", "", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["order"]).To(HaveKeyWithValue("out_trade_no", "test_order_123456"))

			Expect(do(http.MethodGet, "/api/v1/payments/missing_order", "", "").Code).To(Equal(http.StatusNotFound))
		})

		It("regenerates a payment URL", func() {
			rec := do(http.MethodPost, "/api/v1/payments/test_order_123456/url", "", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)["payment_url"]).To(HavePrefix(testGatewayURL))
		})
	})

	Describe("gateway callbacks", func() {
		BeforeEach(func() {
			_, err := service.CreatePayment(context.Background(), createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		form := func(p signature.Params) string {
			values := url.Values{}
			for k, v := range p {
				values.Set(k, v)
			}
			return values.Encode()
		}

		It("answers a verified notification with the literal success", func() {
			params := gatewaySigned(notifyParams("test_order_123456", "TRADE_SUCCESS"), gatewayKey)

			rec := do(http.MethodPost, "/api/v1/payment/notify", "application/x-www-form-urlencoded", form(params))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("success"))
			current, _ := store.GetByOutTradeNo("test_order_123456")
			Expect(current.Status).To(Equal(order.StatusPaid))
		})

		It("answers a forged notification with the literal failure", func() {
			params := gatewaySigned(notifyParams("test_order_123456", "TRADE_SUCCESS"), strangerKey)

			rec := do(http.MethodPost, "/api/v1/payment/notify", "application/x-www-form-urlencoded", form(params))

			Expect(rec.Body.String()).To(Equal("failure"))
			current, _ := store.GetByOutTradeNo("test_order_123456")
			Expect(current.Status).To(Equal(order.StatusPending))
		})

		It("reports status on the return path", func() {
			params := gatewaySigned(signature.Params{
				"app_id":       testAppID,
				"out_trade_no": "test_order_123456",
				"trade_no":     "2026030122001400001000000001",
			}, gatewayKey)

			rec := do(http.MethodGet, "/api/v1/payment/return?"+form(params), "", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("success", true))
		})

		It("rejects an unsigned return", func() {
			rec := do(http.MethodGet, "/api/v1/payment/return?out_trade_no=test_order_123456&trade_no=1", "", "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(rec)).To(HaveKeyWithValue("message", signature.ReasonMissingSignature))
			Expect(decode(rec)).To(HaveKeyWithValue("code", string(internal.ErrCodeCallbackAuthFailed)))
		})
	})

	Describe("admin endpoints", func() {
		var created *order.Order

		BeforeEach(func() {
			var err error
			created, err = service.CreatePayment(context.Background(), createDTO("test_order_123456", "99.99"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists orders with filters", func() {
			rec := do(http.MethodGet, "/api/v1/admin/orders?status=pending&limit=10", "", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("count", BeNumerically("==", 1)))

			Expect(do(http.MethodGet, "/api/v1/admin/orders?status=bogus", "", "").Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodGet, "/api/v1/admin/orders?limit=-1", "", "").Code).To(Equal(http.StatusBadRequest))
		})

		It("keeps the page size between 1 and the cap", func() {
			Expect(do(http.MethodGet, "/api/v1/admin/orders?limit=0", "", "").Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodGet, "/api/v1/admin/orders?limit=501", "", "").Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodGet, "/api/v1/admin/orders?limit=500", "", "").Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodGet, "/api/v1/admin/orders?offset=0", "", "").Code).To(Equal(http.StatusOK))
		})

		It("returns stats", func() {
			rec := do(http.MethodGet, "/api/v1/admin/orders/stats", "", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("total_amount", "99.99"))
		})

		It("updates status and maps transition errors to 409", func() {
			rec := do(http.MethodPatch, "/api/v1/admin/orders/"+created.ID+"/status", "application/json", `{"status":"cancelled"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decode(rec)).To(HaveKeyWithValue("status", "cancelled"))

			rec = do(http.MethodPatch, "/api/v1/admin/orders/"+created.ID+"/status", "application/json", `{"status":"pending"}`)
			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(decode(rec)["error"]).To(HaveKeyWithValue("code", "INVALID_STATUS_TRANSITION"))
		})

		It("refuses to clear orders unless enabled", func() {
			Expect(do(http.MethodDelete, "/api/v1/admin/orders", "", "").Code).To(Equal(http.StatusForbidden))
		})
	})
})
