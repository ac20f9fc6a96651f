package persistence

import (
	"context"

	"github.com/google/uuid"
)

// AgentStore persists Agent rows: CRUD by id plus lookup by Code, and a
// join with ProviderStore for runtime materialization (spec §4.6).
type AgentStore interface {
	Store

	Create(ctx context.Context, agent *Agent) error
	Get(ctx context.Context, id uuid.UUID) (*Agent, error)
	GetByCode(ctx context.Context, code string) (*Agent, error)
	Update(ctx context.Context, agent *Agent) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Agent, error)

	// GetAgentWithProvider resolves an Agent and its Provider in one call,
	// the "joined lookup" the runtime uses to materialize a callable agent.
	GetAgentWithProvider(ctx context.Context, id uuid.UUID, providers ProviderStore) (*Agent, *Provider, error)
}
