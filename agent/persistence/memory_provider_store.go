package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryProviderStore is an in-memory ProviderStore.
type MemoryProviderStore struct {
	mu        sync.RWMutex
	providers map[uuid.UUID]*Provider
	byCode    map[string]uuid.UUID
	closed    bool
}

func NewMemoryProviderStore() *MemoryProviderStore {
	return &MemoryProviderStore{
		providers: make(map[uuid.UUID]*Provider),
		byCode:    make(map[string]uuid.UUID),
	}
}

var _ ProviderStore = (*MemoryProviderStore)(nil)

func (s *MemoryProviderStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryProviderStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryProviderStore) Create(ctx context.Context, provider *Provider) error {
	if provider == nil {
		return NewError(ErrKindQuery, "Create", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Create", ErrStoreClosed)
	}
	if _, exists := s.byCode[provider.Code]; exists {
		return NewError(ErrKindQuery, "Create", ErrAlreadyExists)
	}
	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	now := time.Now()
	if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	provider.UpdatedAt = now
	cp := *provider
	s.providers[provider.ID] = &cp
	s.byCode[provider.Code] = provider.ID
	return nil
}

func (s *MemoryProviderStore) Get(ctx context.Context, id uuid.UUID) (*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "Get", ErrStoreClosed)
	}
	p, ok := s.providers[id]
	if !ok {
		return nil, NewError(ErrKindNotFound, "Get", ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryProviderStore) GetByCode(ctx context.Context, code string) (*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "GetByCode", ErrStoreClosed)
	}
	id, ok := s.byCode[code]
	if !ok {
		return nil, NewError(ErrKindNotFound, "GetByCode", ErrNotFound)
	}
	cp := *s.providers[id]
	return &cp, nil
}

func (s *MemoryProviderStore) Update(ctx context.Context, provider *Provider) error {
	if provider == nil {
		return NewError(ErrKindQuery, "Update", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Update", ErrStoreClosed)
	}
	if _, ok := s.providers[provider.ID]; !ok {
		return NewError(ErrKindNotFound, "Update", ErrNotFound)
	}
	provider.UpdatedAt = time.Now()
	cp := *provider
	s.providers[provider.ID] = &cp
	s.byCode[provider.Code] = provider.ID
	return nil
}

func (s *MemoryProviderStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Delete", ErrStoreClosed)
	}
	p, ok := s.providers[id]
	if !ok {
		return NewError(ErrKindNotFound, "Delete", ErrNotFound)
	}
	delete(s.providers, id)
	delete(s.byCode, p.Code)
	return nil
}

func (s *MemoryProviderStore) List(ctx context.Context) ([]*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "List", ErrStoreClosed)
	}
	out := make([]*Provider, 0, len(s.providers))
	for _, p := range s.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}
