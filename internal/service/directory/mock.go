package directory

import (
	"context"
	"sync"

	"github.com/lojalivre/orders/internal/domain"
)

// MockUserDirectory is a configurable UserDirectory stub for tests and local
// runs. Unknown ids return ErrBuyerNotFound.
type MockUserDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.User

	FindErr   error
	FindCalls int
}

// NewMockUserDirectory returns an empty directory.
func NewMockUserDirectory() *MockUserDirectory {
	return &MockUserDirectory{users: make(map[string]domain.User)}
}

// Seed registers or replaces a user.
func (m *MockUserDirectory) Seed(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

// FindByID returns the seeded user, the configured error, or ErrBuyerNotFound.
func (m *MockUserDirectory) FindByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	m.FindCalls++
	err := m.FindErr
	m.mu.Unlock()

	if err != nil {
		return domain.User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrBuyerNotFound
	}
	return user, nil
}

// MockStoreDirectory is a configurable StoreDirectory stub for tests and local
// runs. Unknown ids return ErrStoreNotFound.
type MockStoreDirectory struct {
	mu     sync.RWMutex
	stores map[string]domain.Store

	FindErr   error
	FindCalls int
}

// NewMockStoreDirectory returns an empty directory.
func NewMockStoreDirectory() *MockStoreDirectory {
	return &MockStoreDirectory{stores: make(map[string]domain.Store)}
}

// Seed registers or replaces a store.
func (m *MockStoreDirectory) Seed(store domain.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[store.ID] = store
}

// FindByID returns the seeded store, the configured error, or ErrStoreNotFound.
func (m *MockStoreDirectory) FindByID(_ context.Context, id string) (domain.Store, error) {
	m.mu.Lock()
	m.FindCalls++
	err := m.FindErr
	m.mu.Unlock()

	if err != nil {
		return domain.Store{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.stores[id]
	if !ok {
		return domain.Store{}, domain.ErrStoreNotFound
	}
	return store, nil
}

var _ domain.UserDirectory = (*MockUserDirectory)(nil)
var _ domain.StoreDirectory = (*MockStoreDirectory)(nil)
