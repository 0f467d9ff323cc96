package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/pagepay/api"
	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/auth"
	"github.com/frahmantamala/pagepay/internal/core/events"
	"github.com/frahmantamala/pagepay/internal/payment"
	"github.com/frahmantamala/pagepay/internal/paymentgateway"
	"github.com/frahmantamala/pagepay/internal/signature"
	"github.com/frahmantamala/pagepay/internal/transport"
	"github.com/frahmantamala/pagepay/internal/transport/rest"
	"github.com/frahmantamala/pagepay/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server serving the payment API and gateway callbacks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *Database
	EventBus  *events.EventBus
	KafkaSink *events.KafkaSink
	Router    *chi.Mux
	Logger    *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr, "gateway_url", deps.Config.Gateway.BaseURL())

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.shutdown(ctx)
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

// shutdown waits for in-flight event handlers before closing the sinks they
// write to.
func (d *Dependencies) shutdown(ctx context.Context) {
	if err := d.EventBus.Drain(ctx); err != nil {
		d.Logger.Warn("event handlers still running at shutdown", "error", err)
	}
	if d.KafkaSink != nil {
		if err := d.KafkaSink.Close(); err != nil {
			d.Logger.Error("kafka sink close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := setup()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log := logger.LoggerWrapper()

	if _, err := api.Load(ctx); err != nil {
		return nil, err
	}

	signer, err := signature.NewServiceFromConfig(config.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway keys: %w", err)
	}

	db, store, err := openStore(ctx, config.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize order store: %w", err)
	}

	eventBus := events.NewEventBus(log)
	payment.NewEventHandler(log).RegisterEventHandlers(eventBus)

	var sink *events.KafkaSink
	if config.Events.Kafka.Enabled() {
		sink = events.NewKafkaSink(events.NewKafkaWriter(config.Events.Kafka), log)
		sink.Attach(eventBus, events.PaymentEventTypes...)
		log.Info("forwarding payment events to kafka", "brokers", config.Events.Kafka.Brokers, "topic", config.Events.Kafka.Topic)
	}

	opts := []payment.Option{payment.WithPublisher(eventBus)}
	if config.Gateway.UnverifiedReturnCallbacks {
		opts = append(opts, payment.WithUnverifiedReturnCallbacks())
	}

	gateway := paymentgateway.NewClient(paymentgateway.ConfigFrom(config.Gateway), signer, log)
	paymentService := payment.NewService(store, gateway, signer, payment.ConfigFrom(config.Gateway, config.Admin), log, opts...)

	handlers := rest.Handlers{
		Payment: payment.NewHandler(paymentService, config.Server.BaseURL, log),
		Webhook: payment.NewWebhookHandler(transport.NewBaseHandler(log), paymentService, log),
	}
	if len(config.Admin.Users) > 0 {
		handlers.Auth = auth.NewHandler(auth.NewServiceFromConfig(config.Admin, log))
	} else {
		log.Warn("no admin users configured, admin API disabled")
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.SQL.DB, handlers, log)

	return &Dependencies{
		Config:    config,
		DB:        db,
		EventBus:  eventBus,
		KafkaSink: sink,
		Router:    router,
		Logger:    log,
	}, nil
}
