package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Josef-Cakes/IndustryE/internal/interfaces"
	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// MemoryStore keeps products, orders and the outbox in process memory. Writers of the
// same product or order are serialized by a per-record mutex; writers of different
// records proceed in parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[int64]models.Product
	orders   map[int64]models.Order
	outbox   []models.OutboxEvent

	locks sync.Map // record key -> *sync.Mutex

	nextProductID int64
	nextOrderID   int64
	nextItemID    int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]models.Product),
		orders:   make(map[int64]models.Order),
	}
}

func (s *MemoryStore) recordLock(key string) *sync.Mutex {
	lock, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// GetProduct returns a copy of the product
func (s *MemoryStore) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	return &product, nil
}

func (s *MemoryStore) ProductExists(ctx context.Context, productID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.products[productID]
	return ok, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]models.Product, 0, len(s.products))
	for _, product := range s.products {
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, product *models.Product, event *models.InventoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	now := time.Now().UTC()
	product.ID = s.nextProductID
	product.Version = 1
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = *product

	if event != nil {
		event.ProductID = product.ID
		event.Version = product.Version
		return s.appendOutboxLocked(event)
	}
	return nil
}

func (s *MemoryStore) DeleteProduct(ctx context.Context, productID int64, event *models.InventoryEvent) (bool, error) {
	lock := s.recordLock(productKey(productID))
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// ids are never reused; waiters on this lock find the product gone
	defer s.locks.Delete(productKey(productID))

	if _, ok := s.products[productID]; !ok {
		return false, nil
	}
	delete(s.products, productID)

	if event != nil {
		event.ProductID = productID
		return true, s.appendOutboxLocked(event)
	}
	return true, nil
}

// MutateProduct applies fn to a copy of the product while holding the product lock
func (s *MemoryStore) MutateProduct(ctx context.Context, productID int64, fn interfaces.ProductMutation) (*models.Product, error) {
	lock := s.recordLock(productKey(productID))
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	product, ok := s.products[productID]
	s.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFoundError(models.ResourceProduct, strconv.FormatInt(productID, 10))
	}

	event, err := fn(&product)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &product, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, models.NewConflictError(models.ResourceProduct, "product deleted during update")
	}

	product.Version++
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product

	event.ProductID = productID
	event.Version = product.Version
	if err := s.appendOutboxLocked(event); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *MemoryStore) CreateOrder(ctx context.Context, order *models.Order, event *models.InventoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrderID++
	now := time.Now().UTC()
	order.ID = s.nextOrderID
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		s.nextItemID++
		order.Items[i].ID = s.nextItemID
		order.Items[i].OrderID = order.ID
	}
	s.orders[order.ID] = cloneOrder(*order)

	if event != nil {
		event.OrderID = order.ID
		event.Version = order.Version
		return s.appendOutboxLocked(event)
	}
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	clone := cloneOrder(order)
	return &clone, nil
}

func (s *MemoryStore) MutateOrder(ctx context.Context, orderID int64, fn interfaces.OrderMutation) (*models.Order, error) {
	lock := s.recordLock(orderKey(orderID))
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	stored, ok := s.orders[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFoundError(models.ResourceOrder, strconv.FormatInt(orderID, 10))
	}

	order := cloneOrder(stored)
	event, err := fn(&order)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return &order, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order.Version++
	order.UpdatedAt = time.Now().UTC()
	s.orders[orderID] = cloneOrder(order)

	event.OrderID = orderID
	event.Version = order.Version
	if err := s.appendOutboxLocked(event); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *MemoryStore) ListOrdersByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.Order{}
	for _, order := range s.orders {
		if order.Status == status {
			orders = append(orders, cloneOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, nil
}

func (s *MemoryStore) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.OrderStatus]int64)
	for _, order := range s.orders {
		counts[order.Status]++
	}
	return counts, nil
}

// InsertEvent appends an event to the outbox
func (s *MemoryStore) InsertEvent(ctx context.Context, event *models.InventoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendOutboxLocked(event)
}

// Events returns the events recorded in the outbox, in insertion order
func (s *MemoryStore) Events() []models.InventoryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]models.InventoryEvent, 0, len(s.outbox))
	for _, row := range s.outbox {
		var event models.InventoryEvent
		if err := json.Unmarshal([]byte(row.Payload), &event); err == nil {
			events = append(events, event)
		}
	}
	return events
}

// The memory store has a single process as its only publisher.

func (s *MemoryStore) TryAcquireOutboxLock(ctx context.Context, lockKey int64) (bool, error) {
	return true, nil
}

func (s *MemoryStore) ReleaseOutboxLock(ctx context.Context, lockKey int64) error {
	return nil
}

func (s *MemoryStore) FetchOutboxBatchOrdered(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := []models.OutboxEvent{}
	for _, row := range s.outbox {
		if len(batch) >= limit {
			break
		}
		if !row.Published {
			batch = append(batch, row)
		}
	}
	return batch, nil
}

func (s *MemoryStore) MarkOutboxPublished(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i := range s.outbox {
		if slices.Contains(ids, s.outbox[i].ID) {
			s.outbox[i].Published = true
			s.outbox[i].PublishedAt = &now
		}
	}
	return nil
}

func (s *MemoryStore) IncrementPublishAttempts(ctx context.Context, id int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			s.outbox[i].PublishAttempts++
			s.outbox[i].LastError = &lastError
		}
	}
	return nil
}

func (s *MemoryStore) appendOutboxLocked(event *models.InventoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	s.outbox = append(s.outbox, models.OutboxEvent{
		ID:        int64(len(s.outbox) + 1),
		EventType: event.EventType,
		Key:       event.Key(),
		Payload:   string(payload),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func cloneOrder(order models.Order) models.Order {
	order.Items = slices.Clone(order.Items)
	return order
}

func productKey(id int64) string { return "product:" + strconv.FormatInt(id, 10) }
func orderKey(id int64) string   { return "order:" + strconv.FormatInt(id, 10) }

var (
	_ interfaces.ProductRepository = (*MemoryStore)(nil)
	_ interfaces.OrderRepository   = (*MemoryStore)(nil)
	_ interfaces.OutboxRepository  = (*MemoryStore)(nil)
	_ interfaces.OutboxWriter      = (*MemoryStore)(nil)

	_ interfaces.ProductRepository = (*ProductRepository)(nil)
	_ interfaces.OrderRepository   = (*OrderRepository)(nil)
	_ interfaces.OutboxRepository  = (*OutboxRepository)(nil)
	_ interfaces.OutboxWriter      = (*OutboxRepository)(nil)
)
