package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySessionStore is an in-memory SessionStore.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*ChatSession
	closed   bool
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[uuid.UUID]*ChatSession)}
}

var _ SessionStore = (*MemorySessionStore)(nil)

func (s *MemorySessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemorySessionStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemorySessionStore) Create(ctx context.Context, session *ChatSession) error {
	if session == nil {
		return NewError(ErrKindQuery, "Create", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Create", ErrStoreClosed)
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id uuid.UUID) (*ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "Get", ErrStoreClosed)
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, NewError(ErrKindNotFound, "Get", ErrNotFound)
	}
	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, session *ChatSession) error {
	if session == nil {
		return NewError(ErrKindQuery, "Update", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Update", ErrStoreClosed)
	}
	if _, ok := s.sessions[session.ID]; !ok {
		return NewError(ErrKindNotFound, "Update", ErrNotFound)
	}
	session.UpdatedAt = time.Now()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Delete", ErrStoreClosed)
	}
	if _, ok := s.sessions[id]; !ok {
		return NewError(ErrKindNotFound, "Delete", ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) List(ctx context.Context, filter SessionFilter) ([]*ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "List", ErrStoreClosed)
	}

	var matched []*ChatSession
	for _, sess := range s.sessions {
		if filter.UserID != "" && sess.UserID != filter.UserID {
			continue
		}
		if filter.AgentID != uuid.Nil && sess.AgentID != filter.AgentID {
			continue
		}
		cp := *sess
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 0 {
			page = 0
		}
		start := page * filter.PageSize
		if start >= len(matched) {
			return []*ChatSession{}, nil
		}
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, nil
}
