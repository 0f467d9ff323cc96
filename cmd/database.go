package cmd

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/pagepay/internal"
	"github.com/frahmantamala/pagepay/internal/order"
	orderRepository "github.com/frahmantamala/pagepay/internal/order/postgres"
)

// Database bundles the pooled connection with the gorm session built on top
// of it. Both share one *sql.DB.
type Database struct {
	SQL  *sqlx.DB
	Gorm *gorm.DB
}

func (d *Database) Close() error {
	return d.SQL.Close()
}

// initDB opens the configured database. Postgres goes through the pgx stdlib
// driver and is expected to be migrated with goose; sqlite is migrated in
// place.
func initDB(cfg internal.DatabaseConfig) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}

	switch cfg.Driver {
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(cfg.GetDSN()), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)

		if err := orderRepository.AutoMigrate(gdb); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		return &Database{SQL: sqlx.NewDb(sqlDB, "sqlite3"), Gorm: gdb}, nil

	default:
		const driver = "pgx"

		dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open db connection: %w", err)
		}

		dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
		dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
		dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

		gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), gormConfig)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("failed to open gorm session: %w", err)
		}
		return &Database{SQL: dbConn, Gorm: gdb}, nil
	}
}

// openStore connects to the database and loads every order into a new
// store.
func openStore(ctx context.Context, cfg internal.DatabaseConfig, logger *slog.Logger) (*Database, *order.Store, error) {
	db, err := initDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	store := order.NewStore(orderRepository.NewOrderRepository(db.Gorm), logger)
	if err := store.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, store, nil
}
