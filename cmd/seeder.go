package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/pagepay/internal/order"
	"github.com/frahmantamala/pagepay/pkg/logger"
)

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo orders",
	Long:  `Seed the database with demo payment orders for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := setup()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, store, err := openStore(ctx, cfg.Database, logger.LoggerWrapper())
		if err != nil {
			log.Fatalf("failed to open order store: %v", err)
		}
		defer db.Close()

		if clearData {
			if err := store.Clear(ctx); err != nil {
				log.Fatalf("failed to clear orders: %v", err)
			}
			fmt.Println("Cleared existing orders")
		}

		demo := []struct {
			OutTradeNo string
			Subject    string
			Amount     string
			Status     order.Status
		}{
			{"demo_order_000001", "Annual subscription", "99.99", order.StatusPending},
			{"demo_order_000002", "Conference ticket", "450.00", order.StatusPaid},
			{"demo_order_000003", "Coffee beans 1kg", "23.50", order.StatusFailed},
			{"demo_order_000004", "Gift card", "50.00", order.StatusCancelled},
		}

		for _, d := range demo {
			if _, exists := store.GetByOutTradeNo(d.OutTradeNo); exists {
				fmt.Println("order already exists:", d.OutTradeNo)
				continue
			}

			o, err := store.Create(ctx, order.CreateOrderDTO{
				OutTradeNo:  d.OutTradeNo,
				Subject:     d.Subject,
				Body:        "seeded demo order",
				TotalAmount: decimal.NewNullDecimal(decimal.RequireFromString(d.Amount)),
			})
			if err != nil {
				log.Fatalf("failed to create order %s: %v", d.OutTradeNo, err)
			}

			if d.Status != order.StatusPending {
				if _, err := store.UpdateStatus(ctx, o.ID, d.Status); err != nil {
					log.Fatalf("failed to move order %s to %s: %v", d.OutTradeNo, d.Status, err)
				}
			}
			fmt.Printf("Seeded order %s (%s, %s)\n", d.OutTradeNo, d.Amount, d.Status)
		}

		fmt.Println("Demo orders seeded successfully")
	},
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing orders before seeding")
}
