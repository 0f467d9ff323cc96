package rest

import (
	"database/sql"
	"log/slog"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/pagepay/internal/auth"
	"github.com/frahmantamala/pagepay/internal/payment"
	"github.com/frahmantamala/pagepay/internal/transport/middleware"
	"github.com/frahmantamala/pagepay/internal/transport/swagger"
)

// Handlers groups everything the router mounts. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Auth    *auth.Handler
	Payment *payment.Handler
	Webhook *payment.WebhookHandler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, handlers Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get(swagger.SpecPath, swagger.SpecHandler)
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if handlers.Webhook != nil {
			r.Post("/payment/notify", handlers.Webhook.HandleNotify)
			r.Get("/payment/return", handlers.Webhook.HandleReturn)
		}

		if handlers.Payment != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", handlers.Payment.CreatePayment)
				pr.Get("/{outTradeNo}", handlers.Payment.GetPaymentStatus)
				pr.Post("/{outTradeNo}/url", handlers.Payment.RegeneratePaymentURL)
			})
		}

		if handlers.Auth != nil {
			r.Post("/admin/login", handlers.Auth.Login)

			if handlers.Payment != nil {
				r.Group(func(ar chi.Router) {
					ar.Use(handlers.Auth.AuthMiddleware)

					ar.Route("/admin/orders", func(or chi.Router) {
						or.Get("/", handlers.Payment.ListOrders)
						or.Delete("/", handlers.Payment.ClearOrders)
						or.Get("/stats", handlers.Payment.GetStats)
						or.Patch("/{id}/status", handlers.Payment.UpdateOrderStatus)
					})
				})
			}
		}
	})
}
