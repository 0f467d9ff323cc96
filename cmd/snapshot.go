package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/pagepay/internal/order"
	"github.com/frahmantamala/pagepay/pkg/logger"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write every order to a JSON snapshot",
	Args:  cobra.ExactArgs(1),
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

		f, err := os.Create(args[0])
		if err != nil {
			log.Fatalf("failed to create %s: %v", args[0], err)
		}
		defer f.Close()

		orders := store.All()
		if err := order.WriteSnapshot(f, orders); err != nil {
			log.Fatalf("failed to write snapshot: %v", err)
		}
		fmt.Printf("Exported %d orders to %s\n", len(orders), args[0])
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load orders from a JSON snapshot",
	Long:  `Load orders from a JSON snapshot. The whole file is rejected when any record is invalid or collides with an existing order.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := setup()
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		f, err := os.Open(args[0])
		if err != nil {
			log.Fatalf("failed to open %s: %v", args[0], err)
		}
		defer f.Close()

		orders, err := order.ReadSnapshot(f)
		if err != nil {
			log.Fatalf("invalid snapshot: %v", err)
		}

		db, store, err := openStore(ctx, cfg.Database, logger.LoggerWrapper())
		if err != nil {
			log.Fatalf("failed to open order store: %v", err)
		}
		defer db.Close()

		if err := store.Import(ctx, orders); err != nil {
			log.Fatalf("failed to import orders: %v", err)
		}
		fmt.Printf("Imported %d orders from %s\n", len(orders), args[0])
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
