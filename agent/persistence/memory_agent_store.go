package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAgentStore is an in-memory AgentStore.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]*Agent
	byCode map[string]uuid.UUID
	closed bool
}

func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{
		agents: make(map[uuid.UUID]*Agent),
		byCode: make(map[string]uuid.UUID),
	}
}

var _ AgentStore = (*MemoryAgentStore)(nil)

func (s *MemoryAgentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryAgentStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryAgentStore) Create(ctx context.Context, agent *Agent) error {
	if agent == nil {
		return NewError(ErrKindQuery, "Create", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Create", ErrStoreClosed)
	}
	if _, exists := s.byCode[agent.Code]; exists {
		return NewError(ErrKindQuery, "Create", ErrAlreadyExists)
	}
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	cp := *agent
	s.agents[agent.ID] = &cp
	s.byCode[agent.Code] = agent.ID
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id uuid.UUID) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "Get", ErrStoreClosed)
	}
	a, ok := s.agents[id]
	if !ok {
		return nil, NewError(ErrKindNotFound, "Get", ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAgentStore) GetByCode(ctx context.Context, code string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "GetByCode", ErrStoreClosed)
	}
	id, ok := s.byCode[code]
	if !ok {
		return nil, NewError(ErrKindNotFound, "GetByCode", ErrNotFound)
	}
	cp := *s.agents[id]
	return &cp, nil
}

func (s *MemoryAgentStore) Update(ctx context.Context, agent *Agent) error {
	if agent == nil {
		return NewError(ErrKindQuery, "Update", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Update", ErrStoreClosed)
	}
	if _, ok := s.agents[agent.ID]; !ok {
		return NewError(ErrKindNotFound, "Update", ErrNotFound)
	}
	agent.UpdatedAt = time.Now()
	cp := *agent
	s.agents[agent.ID] = &cp
	s.byCode[agent.Code] = agent.ID
	return nil
}

func (s *MemoryAgentStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Delete", ErrStoreClosed)
	}
	a, ok := s.agents[id]
	if !ok {
		return NewError(ErrKindNotFound, "Delete", ErrNotFound)
	}
	delete(s.agents, id)
	delete(s.byCode, a.Code)
	return nil
}

func (s *MemoryAgentStore) List(ctx context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "List", ErrStoreClosed)
	}
	out := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryAgentStore) GetAgentWithProvider(ctx context.Context, id uuid.UUID, providers ProviderStore) (*Agent, *Provider, error) {
	agent, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	provider, err := providers.Get(ctx, agent.ProviderID)
	if err != nil {
		return nil, nil, err
	}
	return agent, provider, nil
}
