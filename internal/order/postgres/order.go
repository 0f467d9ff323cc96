package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/pagepay/internal"
	orderDatamodel "github.com/frahmantamala/pagepay/internal/core/datamodel/order"
	orderpkg "github.com/frahmantamala/pagepay/internal/order"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) orderpkg.RepositoryAPI {
	return &OrderRepository{
		db: db,
	}
}

// AutoMigrate creates the tables on databases not managed by goose (sqlite).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&orderDatamodel.Order{}, &orderDatamodel.Notification{})
}

func (r *OrderRepository) LoadOrders(ctx context.Context) ([]*orderDatamodel.Order, error) {
	var orders []*orderDatamodel.Order
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) LoadNotificationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&orderDatamodel.Notification{}).Pluck("notify_id", &ids).Error
	return ids, err
}

func (r *OrderRepository) Insert(ctx context.Context, o *orderDatamodel.Order) error {
	err := r.db.WithContext(ctx).Create(o).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.NewDuplicateOrderError(o.OutTradeNo)
	}
	return err
}

func (r *OrderRepository) InsertMany(ctx context.Context, orders []*orderDatamodel.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(orders, 100).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return internal.NewConflictError("imported orders collide with existing rows", internal.ErrCodeDuplicateOrder).WithCause(err)
			}
			return err
		}
		return nil
	})
}

func (r *OrderRepository) Update(ctx context.Context, o *orderDatamodel.Order) error {
	return updateOrder(r.db.WithContext(ctx), o)
}

func (r *OrderRepository) UpdateWithNotification(ctx context.Context, o *orderDatamodel.Order, n *orderDatamodel.Notification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateOrder(tx, o); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(n).Error
	})
}

func (r *OrderRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&orderDatamodel.Notification{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&orderDatamodel.Order{}).Error
	})
}

// updateOrder writes every column, zero values included, and reports a
// missing row as gorm.ErrRecordNotFound.
func updateOrder(db *gorm.DB, o *orderDatamodel.Order) error {
	result := db.Model(&orderDatamodel.Order{}).
		Where("id = ?", o.ID).
		Select("out_trade_no", "subject", "body", "total_amount", "status", "trade_no", "buyer_logon_id", "payment_time", "created_at", "updated_at").
		Updates(o)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
