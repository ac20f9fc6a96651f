package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryApiCallStore_SaveAndQuery(t *testing.T) {
	store := NewMemoryApiCallStore()
	ctx := context.Background()

	call := &ApiCall{UserID: "u1", Model: "gpt-4o", Status: "success", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, LatencyMS: 100}
	require.NoError(t, store.Save(ctx, call))
	assert.NotEqual(t, uuid.Nil, call.ID)

	got, err := store.Query(ctx, ApiCallFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gpt-4o", got[0].Model)
}

func TestMemoryApiCallStore_UsageStats(t *testing.T) {
	store := NewMemoryApiCallStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &ApiCall{UserID: "u1", TotalTokens: 10, LatencyMS: 50}))
	require.NoError(t, store.Save(ctx, &ApiCall{UserID: "u1", TotalTokens: 20, LatencyMS: 150}))

	usage, err := store.UsageStats(ctx, ApiCallFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, usage.CallCount)
	assert.Equal(t, int64(30), usage.TotalTokens)
	assert.Equal(t, 100.0, usage.AvgLatencyMS)
}

func TestMemoryApiCallStore_Cleanup(t *testing.T) {
	store := NewMemoryApiCallStore()
	ctx := context.Background()

	old := &ApiCall{UserID: "u1", CreatedAt: time.Now().Add(-48 * time.Hour)}
	old.ID = uuid.New()
	store.calls[old.ID] = old

	removed, err := store.Cleanup(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestMemorySessionStore_CRUD(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	session := &ChatSession{UserID: "u1", Title: "test"}
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "test", got.Title)

	got.Title = "updated"
	require.NoError(t, store.Update(ctx, got))

	got2, _ := store.Get(ctx, session.ID)
	assert.Equal(t, "updated", got2.Title)

	require.NoError(t, store.Delete(ctx, session.ID))
	_, err = store.Get(ctx, session.ID)
	assert.Equal(t, ErrKindNotFound, KindOf(err))
}

func TestMemoryProviderStore_GetByCode(t *testing.T) {
	store := NewMemoryProviderStore()
	ctx := context.Background()

	p := &Provider{Code: "openai", Name: "OpenAI"}
	require.NoError(t, store.Create(ctx, p))

	got, err := store.GetByCode(ctx, "openai")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI", got.Name)

	_, err = store.Create(ctx, &Provider{Code: "openai"})
	assert.Equal(t, ErrKindQuery, KindOf(err))
}

func TestMemoryAgentStore_GetAgentWithProvider(t *testing.T) {
	providers := NewMemoryProviderStore()
	agents := NewMemoryAgentStore()
	ctx := context.Background()

	provider := &Provider{Code: "openai", Name: "OpenAI"}
	require.NoError(t, providers.Create(ctx, provider))

	agent := &Agent{Code: "assistant", ProviderID: provider.ID, Model: "gpt-4o"}
	require.NoError(t, agents.Create(ctx, agent))

	gotAgent, gotProvider, err := agents.GetAgentWithProvider(ctx, agent.ID, providers)
	require.NoError(t, err)
	assert.Equal(t, "assistant", gotAgent.Code)
	assert.Equal(t, "OpenAI", gotProvider.Name)
}

func TestMemoryAgentStore_GetAgentWithProvider_MissingProvider(t *testing.T) {
	providers := NewMemoryProviderStore()
	agents := NewMemoryAgentStore()
	ctx := context.Background()

	agent := &Agent{Code: "assistant", ProviderID: uuid.New()}
	require.NoError(t, agents.Create(ctx, agent))

	_, _, err := agents.GetAgentWithProvider(ctx, agent.ID, providers)
	assert.Equal(t, ErrKindNotFound, KindOf(err))
}

func TestErrKind_String(t *testing.T) {
	assert.Equal(t, "not_found", ErrKindNotFound.String())
	assert.Equal(t, "other", ErrKindOther.String())
}
