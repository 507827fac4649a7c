package notification

import (
	"context"
	"sync"

	"github.com/lojalivre/orders/internal/domain"
)

// MockDispatcher is a configurable NotificationDispatcher stub that records
// every delivered notification.
type MockDispatcher struct {
	mu   sync.Mutex
	sent []domain.Notification

	CreateErr   error
	CreateCalls int
}

// NewMockDispatcher returns a dispatcher with a successful default scenario.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Create records the notification and returns the configured error.
func (m *MockDispatcher) Create(_ context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of every successfully delivered notification.
func (m *MockDispatcher) Sent() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.sent...)
}

var _ domain.NotificationDispatcher = (*MockDispatcher)(nil)
