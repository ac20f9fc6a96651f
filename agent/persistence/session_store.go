package persistence

import (
	"context"

	"github.com/google/uuid"
)

// SessionFilter narrows SessionStore.List results.
type SessionFilter struct {
	UserID  string
	AgentID uuid.UUID
	Page    int
	PageSize int
}

// SessionStore persists ChatSession rows: CRUD plus listing by owner
// (spec §4.6).
type SessionStore interface {
	Store

	Create(ctx context.Context, session *ChatSession) error
	Get(ctx context.Context, id uuid.UUID) (*ChatSession, error)
	Update(ctx context.Context, session *ChatSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter SessionFilter) ([]*ChatSession, error)
}
