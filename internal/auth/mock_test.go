package auth_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// memUserRepo is a small in-memory domain.UserRepository for service tests.
type memUserRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	keys     map[uuid.UUID]*domain.APIKey
	lastUsed int
	listErr  error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		users: make(map[uuid.UUID]*domain.User),
		keys:  make(map[uuid.UUID]*domain.APIKey),
	}
}

func (m *memUserRepo) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email {
			return domain.ErrDuplicate
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) GetByEmail(_ context.Context, tenantID uuid.UUID, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) Update(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUserRepo) List(_ context.Context, tenantID uuid.UUID) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*domain.User
	for _, u := range m.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUserRepo) CreateAPIKey(_ context.Context, key *domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.keys[key.ID] = &cp
	return nil
}

func (m *memUserRepo) GetAPIKeyByPrefix(_ context.Context, _ uuid.UUID, prefix string) (*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Prefix == prefix {
			cp := *k
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) ListAPIKeys(_ context.Context, tenantID, userID uuid.UUID) ([]*domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.APIKey
	for _, k := range m.keys {
		if k.TenantID == tenantID && k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memUserRepo) DeleteAPIKey(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.TenantID != tenantID {
		return domain.ErrNotFound
	}
	delete(m.keys, id)
	return nil
}

func (m *memUserRepo) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return errors.New("no such key")
	}
	now := time.Now()
	k.LastUsedAt = &now
	m.lastUsed++
	return nil
}
