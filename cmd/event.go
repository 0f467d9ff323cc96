package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/pagepay/internal/core/events"
	"github.com/frahmantamala/pagepay/internal/payment"
	"github.com/frahmantamala/pagepay/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish sample payment events to check handlers and the kafka sink`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a sample payment event",
	Long:  `Publish a sample payment event through the configured handlers and, when enabled, the kafka sink`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var eventOutTradeNo string

func publishTestEvent(eventType string) {
	cfg, err := setup()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg := logger.LoggerWrapper()

	event, err := sampleEvent(eventType)
	if err != nil {
		log.Fatal(err)
	}

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	if cfg.Events.Kafka.Enabled() {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Events.Kafka), lg)
		sink.Attach(eventBus, eventType)
		defer sink.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())
	if err := eventBus.PublishSync(ctx, event); err != nil {
		lg.Error("failed to publish event", "error", err)
		return
	}
	lg.Info("test event published successfully")
}

func sampleEvent(eventType string) (events.Event, error) {
	orderID := fmt.Sprintf("test-%d", time.Now().Unix())
	switch eventType {
	case events.EventTypeOrderCreated:
		return events.NewOrderCreatedEvent(orderID, eventOutTradeNo, "0.01"), nil
	case events.EventTypePaymentCompleted:
		return events.NewPaymentCompletedEvent(orderID, eventOutTradeNo, "cli-trade", "0.01", "cli@example.com", time.Now()), nil
	case events.EventTypePaymentFailed:
		return events.NewPaymentFailedEvent(orderID, eventOutTradeNo, "cli-trade", "0.01", "TRADE_CLOSED"), nil
	default:
		return nil, fmt.Errorf("unknown event type %q, want one of %v", eventType, events.PaymentEventTypes)
	}
}

func init() {
	publishEventCmd.Flags().StringVar(&eventOutTradeNo, "out-trade-no", "cli_test_order", "out_trade_no carried by the sample event")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
