package userdir

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

// MockDirectory — конфигурируемая заглушка справочника пользователей для тестов
// и локального запуска. Безопасна для конкурентного использования.
type MockDirectory struct {
	mu     sync.RWMutex
	users  map[int64]domain.Identity
	emails map[string]int64

	// ByIDErr/ByEmailErr возвращаются вместо ответа, если заданы.
	ByIDErr    error
	ByEmailErr error
	// Delay имитирует медленный справочник; вызов прерывается отменой контекста.
	Delay time.Duration

	ByIDCalls    atomic.Int64
	ByEmailCalls atomic.Int64
}

// NewMockDirectory возвращает пустой справочник: любой пользователь не найден.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		users:  make(map[int64]domain.Identity),
		emails: make(map[string]int64),
	}
}

// AddUser регистрирует пользователя и, если указан, его email.
func (m *MockDirectory) AddUser(user domain.Identity, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users[user.ID] = user
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		m.emails[email] = user.ID
	}
}

// GetUserByID возвращает пользователя, настроенную ошибку или ErrUserNotFound.
func (m *MockDirectory) GetUserByID(ctx context.Context, id int64) (domain.Identity, error) {
	m.ByIDCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return domain.Identity{}, err
	}
	if m.ByIDErr != nil {
		return domain.Identity{}, m.ByIDErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return domain.Identity{}, domain.ErrUserNotFound
	}
	return user, nil
}

// GetUserByEmail для неизвестного email возвращает запись без id.
func (m *MockDirectory) GetUserByEmail(ctx context.Context, email string) (domain.Identity, error) {
	m.ByEmailCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return domain.Identity{}, err
	}
	if m.ByEmailErr != nil {
		return domain.Identity{}, m.ByEmailErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return domain.Identity{}, nil
	}
	return m.users[id], nil
}

func (m *MockDirectory) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.UserDirectory = (*MockDirectory)(nil)
