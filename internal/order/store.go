package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/frahmantamala/pagepay/internal"
	orderDatamodel "github.com/frahmantamala/pagepay/internal/core/datamodel/order"
)

// RepositoryAPI is the durable side of the store.
type RepositoryAPI interface {
	LoadOrders(ctx context.Context) ([]*orderDatamodel.Order, error)
	LoadNotificationIDs(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, o *orderDatamodel.Order) error
	InsertMany(ctx context.Context, orders []*orderDatamodel.Order) error
	Update(ctx context.Context, o *orderDatamodel.Order) error
	UpdateWithNotification(ctx context.Context, o *orderDatamodel.Order, n *orderDatamodel.Notification) error
	DeleteAll(ctx context.Context) error
}

// Store owns all order state. The maps are a cache of the repository and
// are only changed after the corresponding repository write succeeded.
// One RWMutex serialises every mutation.
type Store struct {
	repo   RepositoryAPI
	logger *slog.Logger

	mu            sync.RWMutex
	byID          map[string]*Order
	byOutTradeNo  map[string]string
	byTradeNo     map[string]string
	notifications map[string]struct{}
}

func NewStore(repo RepositoryAPI, logger *slog.Logger) *Store {
	s := &Store{
		repo:   repo,
		logger: logger,
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.byID = make(map[string]*Order)
	s.byOutTradeNo = make(map[string]string)
	s.byTradeNo = make(map[string]string)
	s.notifications = make(map[string]struct{})
}

// Initialize rebuilds the in-memory index from the repository. An empty
// repository yields an empty store; an unreadable or inconsistent one fails
// without touching the current index.
func (s *Store) Initialize(ctx context.Context) error {
	records, err := s.repo.LoadOrders(ctx)
	if err != nil {
		s.logger.Error("failed to load orders", "error", err)
		return internal.NewStoreInitError("failed to load orders", err)
	}

	notifyIDs, err := s.repo.LoadNotificationIDs(ctx)
	if err != nil {
		s.logger.Error("failed to load processed notifications", "error", err)
		return internal.NewStoreInitError("failed to load processed notifications", err)
	}

	byID := make(map[string]*Order, len(records))
	byOutTradeNo := make(map[string]string, len(records))
	byTradeNo := make(map[string]string)
	for _, rec := range records {
		o, err := FromDataModel(rec)
		if err != nil {
			s.logger.Error("corrupt order record", "order_id", rec.ID, "error", err)
			return internal.NewStoreInitError("corrupt order record", err)
		}
		if _, dup := byID[o.ID]; dup {
			return internal.NewStoreInitError(fmt.Sprintf("duplicate order id %s", o.ID), nil)
		}
		if _, dup := byOutTradeNo[o.OutTradeNo]; dup {
			return internal.NewStoreInitError(fmt.Sprintf("duplicate out_trade_no %s", o.OutTradeNo), nil)
		}
		byID[o.ID] = o
		byOutTradeNo[o.OutTradeNo] = o.ID
		if o.TradeNo != "" {
			byTradeNo[o.TradeNo] = o.ID
		}
	}

	notifications := make(map[string]struct{}, len(notifyIDs))
	for _, id := range notifyIDs {
		notifications[id] = struct{}{}
	}

	s.mu.Lock()
	s.byID = byID
	s.byOutTradeNo = byOutTradeNo
	s.byTradeNo = byTradeNo
	s.notifications = notifications
	s.mu.Unlock()

	s.logger.Info("order store initialized", "orders", len(byID), "processed_notifications", len(notifications))
	return nil
}

// Create checks for duplicates, constructs the order and persists it while
// holding the write lock, so two concurrent creates for the same
// out_trade_no cannot both succeed.
func (s *Store) Create(ctx context.Context, dto CreateOrderDTO) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOutTradeNo[dto.OutTradeNo]; exists {
		return nil, internal.NewDuplicateOrderError(dto.OutTradeNo)
	}

	o, err := New(dto)
	if err != nil {
		return nil, err
	}

	if _, exists := s.byID[o.ID]; exists {
		return nil, internal.NewConflictError(fmt.Sprintf("order id %s already exists", o.ID), internal.ErrCodeDuplicateOrder)
	}

	if err := s.repo.Insert(ctx, ToDataModel(o)); err != nil {
		if errors.Is(err, internal.ErrDuplicateOrder) {
			return nil, err
		}
		s.logger.Error("failed to persist order", "out_trade_no", o.OutTradeNo, "error", err)
		return nil, internal.NewStoreWriteError("failed to persist order", err)
	}

	s.index(o)
	return o.Clone(), nil
}

// Import inserts already-built orders in one repository write, rejecting the
// whole batch when any out_trade_no or id collides.
func (s *Store) Import(ctx context.Context, orders []*Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seenIDs := make(map[string]struct{}, len(orders))
	seenNos := make(map[string]struct{}, len(orders))
	records := make([]*orderDatamodel.Order, 0, len(orders))
	for _, o := range orders {
		if _, exists := s.byOutTradeNo[o.OutTradeNo]; exists {
			return internal.NewDuplicateOrderError(o.OutTradeNo)
		}
		if _, exists := seenNos[o.OutTradeNo]; exists {
			return internal.NewDuplicateOrderError(o.OutTradeNo)
		}
		_, existsID := s.byID[o.ID]
		_, seenID := seenIDs[o.ID]
		if existsID || seenID {
			return internal.NewConflictError(fmt.Sprintf("order id %s already exists", o.ID), internal.ErrCodeDuplicateOrder)
		}
		seenIDs[o.ID] = struct{}{}
		seenNos[o.OutTradeNo] = struct{}{}
		records = append(records, ToDataModel(o))
	}

	if len(records) == 0 {
		return nil
	}

	if err := s.repo.InsertMany(ctx, records); err != nil {
		s.logger.Error("failed to import orders", "count", len(records), "error", err)
		return internal.NewStoreWriteError("failed to import orders", err)
	}

	for _, o := range orders {
		s.index(o.Clone())
	}
	s.logger.Info("orders imported", "count", len(records))
	return nil
}

func (s *Store) GetByID(id string) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

func (s *Store) GetByOutTradeNo(outTradeNo string) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(s.byOutTradeNo, outTradeNo)
}

func (s *Store) GetByTradeNo(tradeNo string) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lookup(s.byTradeNo, tradeNo)
}

func (s *Store) lookup(index map[string]string, key string) (*Order, bool) {
	id, ok := index[key]
	if !ok {
		return nil, false
	}
	o, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// List returns copies sorted by CreatedAt descending, then sliced by
// Offset/Limit. A non-positive Limit means no limit.
func (s *Store) List(filter ListFilter) []*Order {
	s.mu.RLock()
	orders := make([]*Order, 0, len(s.byID))
	for _, o := range s.byID {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, o.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].OutTradeNo > orders[j].OutTradeNo
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(orders) {
			return []*Order{}
		}
		orders = orders[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(orders) {
		orders = orders[:filter.Limit]
	}
	return orders
}

// All returns every order oldest first, the order used for snapshots.
func (s *Store) All() []*Order {
	orders := s.List(ListFilter{})
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}
	return orders
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		return o.UpdateStatus(status)
	})
}

func (s *Store) SetGatewayInfo(ctx context.Context, id, tradeNo, buyerLogonID string) (*Order, error) {
	return s.mutate(ctx, id, func(o *Order) error {
		o.SetGatewayInfo(tradeNo, buyerLogonID)
		return nil
	})
}

// mutate applies fn to a copy, persists the copy and only then swaps it into
// the index. A failed write leaves memory untouched.
func (s *Store) mutate(ctx context.Context, id string, fn func(o *Order) error) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, internal.NewOrderNotFoundError(id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, ToDataModel(next)); err != nil {
		s.logger.Error("failed to persist order update", "order_id", id, "error", err)
		return nil, internal.NewStoreWriteError("failed to persist order update", err)
	}

	s.swap(current, next)
	return next.Clone(), nil
}

// ApplyNotification records gateway info, applies the target transition
// only when the order is still pending, and stores the notify id, all in
// one repository transaction. A notify id seen before short-circuits with
// AlreadyProcessed regardless of the order's current status.
func (s *Store) ApplyNotification(ctx context.Context, id string, update NotificationUpdate) (*NotificationOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, internal.NewOrderNotFoundError(id)
	}

	outcome := &NotificationOutcome{PreviousStatus: current.Status}

	if _, seen := s.notifications[update.NotifyID]; seen {
		outcome.Order = current.Clone()
		outcome.AlreadyProcessed = true
		return outcome, nil
	}

	next := current.Clone()
	buyer := update.BuyerLogonID
	if buyer == "" {
		buyer = next.BuyerLogonID
	}
	next.SetGatewayInfo(update.TradeNo, buyer)

	if update.Target != nil && next.Status == StatusPending {
		if err := next.UpdateStatus(*update.Target); err != nil {
			return nil, err
		}
		outcome.Transitioned = true
	}

	record := &orderDatamodel.Notification{
		NotifyID:    update.NotifyID,
		OrderID:     next.ID,
		OutTradeNo:  next.OutTradeNo,
		TradeNo:     update.TradeNo,
		TradeStatus: update.TradeStatus,
		ProcessedAt: nowFunc(),
	}

	if err := s.repo.UpdateWithNotification(ctx, ToDataModel(next), record); err != nil {
		s.logger.Error("failed to persist notification", "order_id", id, "notify_id", update.NotifyID, "error", err)
		return nil, internal.NewStoreWriteError("failed to persist notification", err)
	}

	s.swap(current, next)
	s.notifications[update.NotifyID] = struct{}{}

	outcome.Order = next.Clone()
	return outcome, nil
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByStatus: make(map[Status]int, len(AllStatuses))}
	for _, st := range AllStatuses {
		stats.ByStatus[st] = 0
	}
	for _, o := range s.byID {
		stats.Total++
		stats.ByStatus[o.Status]++
		stats.TotalAmount += o.TotalAmount
		if o.IsPaid() {
			stats.PaidAmount += o.TotalAmount
		}
	}
	return stats
}

// Clear wipes orders and processed notifications. Administrative use only.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteAll(ctx); err != nil {
		s.logger.Error("failed to clear orders", "error", err)
		return internal.NewStoreWriteError("failed to clear orders", err)
	}

	count := len(s.byID)
	s.reset()
	s.logger.Warn("order store cleared", "removed", count)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// callers hold the write lock

func (s *Store) index(o *Order) {
	s.byID[o.ID] = o
	s.byOutTradeNo[o.OutTradeNo] = o.ID
	if o.TradeNo != "" {
		s.byTradeNo[o.TradeNo] = o.ID
	}
}

func (s *Store) swap(prev, next *Order) {
	if prev.TradeNo != "" && prev.TradeNo != next.TradeNo && s.byTradeNo[prev.TradeNo] == prev.ID {
		delete(s.byTradeNo, prev.TradeNo)
	}
	s.index(next)
}
