package persistence

import (
	"context"

	"github.com/google/uuid"
)

// ProviderStore persists Provider rows: CRUD by id plus lookup by the
// stable Code (spec §4.6).
type ProviderStore interface {
	Store

	Create(ctx context.Context, provider *Provider) error
	Get(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetByCode(ctx context.Context, code string) (*Provider, error)
	Update(ctx context.Context, provider *Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Provider, error)
}
