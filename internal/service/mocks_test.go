package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Josef-Cakes/IndustryE/internal/models"
)

// MockCacheRepository implements interfaces.CacheRepository for testing
type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) GetInventoryState(ctx context.Context, productID int64) (*models.InventoryState, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryState), args.Error(1)
}

func (m *MockCacheRepository) SetInventoryState(ctx context.Context, state *models.InventoryState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockCacheRepository) DeleteInventoryState(ctx context.Context, productID int64) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *MockCacheRepository) UpdateInventoryFromState(ctx context.Context, state *models.InventoryState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockCacheRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockMessagePublisher implements interfaces.MessagePublisher for testing
type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) PublishEvent(ctx context.Context, event *models.InventoryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockMessagePublisher) PublishState(ctx context.Context, state *models.InventoryState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockInventoryService implements interfaces.InventoryService for testing order side effects
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) view(args mock.Arguments) (*models.SizeInventoryView, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SizeInventoryView), args.Error(1)
}

func (m *MockInventoryService) GetInventory(ctx context.Context, productID int64) (*models.InventoryResponse, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryResponse), args.Error(1)
}

func (m *MockInventoryService) GetSizeInventory(ctx context.Context, productID int64, size string) (*models.SizeInventoryView, error) {
	return m.view(m.Called(ctx, productID, size))
}

func (m *MockInventoryService) CheckAvailability(ctx context.Context, productID int64, size string, qty int) (bool, error) {
	args := m.Called(ctx, productID, size, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryService) HasAnyAvailability(ctx context.Context, productID int64) (bool, error) {
	args := m.Called(ctx, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryService) Reserve(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error) {
	return m.view(m.Called(ctx, productID, size, qty))
}

func (m *MockInventoryService) Release(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error) {
	return m.view(m.Called(ctx, productID, size, qty))
}

func (m *MockInventoryService) ConfirmSale(ctx context.Context, productID int64, size string, qty int) (*models.SizeInventoryView, error) {
	return m.view(m.Called(ctx, productID, size, qty))
}

func (m *MockInventoryService) SetQuantity(ctx context.Context, productID int64, size string, quantity int) (*models.SizeInventoryView, error) {
	return m.view(m.Called(ctx, productID, size, quantity))
}

func (m *MockInventoryService) InitializeSizes(ctx context.Context, productID int64, sizes []string, quantityPerSize int) ([]models.SizeInventoryView, error) {
	args := m.Called(ctx, productID, sizes, quantityPerSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SizeInventoryView), args.Error(1)
}

// permissiveCache accepts every background cache call
func permissiveCache() *MockCacheRepository {
	cache := new(MockCacheRepository)
	cache.On("GetInventoryState", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	cache.On("SetInventoryState", mock.Anything, mock.Anything).Return(nil).Maybe()
	cache.On("DeleteInventoryState", mock.Anything, mock.Anything).Return(nil).Maybe()
	return cache
}
