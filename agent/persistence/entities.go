package persistence

import (
	"time"

	"github.com/google/uuid"
)

// LLMMessage is a single chat message persisted against a ChatSession
// (spec §3.7). Content is stored as an opaque JSON blob by implementations
// (e.g. a `jsonb`/`json` column), so the Go struct keeps it as a raw string
// rather than trying to model every provider's message shape.
type LLMMessage struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;index"`
	SessionID uuid.UUID `json:"session_id" gorm:"type:uuid;index"`
	Role      string    `json:"role" gorm:"size:32"`
	Content   string    `json:"content" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// ApiCall records a single LLM provider invocation for usage accounting
// and audit (spec §3.7/§4.6). Request/response message ids are nullable
// foreign keys into LLMMessage since not every call persists both sides.
type ApiCall struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index"`
	UserID         string     `json:"user_id" gorm:"size:128;index"`
	SessionID      uuid.UUID  `json:"session_id" gorm:"type:uuid;index"`
	AgentID        uuid.UUID  `json:"agent_id" gorm:"type:uuid;index"`
	ProviderID     uuid.UUID  `json:"provider_id" gorm:"type:uuid;index"`
	Model          string     `json:"model" gorm:"size:128;index"`
	Status         string     `json:"status" gorm:"size:32;index"` // pending, success, error
	RequestMsgID   *uuid.UUID `json:"request_msg_id,omitempty" gorm:"type:uuid"`
	ResponseMsgID  *uuid.UUID `json:"response_msg_id,omitempty" gorm:"type:uuid"`
	PromptTokens   int        `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens    int        `json:"total_tokens"`
	CostUSD        *float64   `json:"cost_usd,omitempty"`
	LatencyMS      int64      `json:"latency_ms"`
	ErrorMessage   string     `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt      time.Time  `json:"created_at" gorm:"index"`
}

// ChatSession groups LLMMessages and ApiCalls under a single conversation
// (spec §3.7).
type ChatSession struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID  `json:"tenant_id" gorm:"type:uuid;index"`
	UserID    string     `json:"user_id" gorm:"size:128;index"`
	AgentID   uuid.UUID  `json:"agent_id" gorm:"type:uuid;index"`
	Title     string     `json:"title" gorm:"size:256"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Provider is a configured LLM backend (spec §3.7). Code is the stable
// lookup key (e.g. "openai", "anthropic") separate from the opaque ID.
type Provider struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;index"`
	Code      string    `json:"code" gorm:"size:64;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128"`
	BaseURL   string    `json:"base_url" gorm:"size:256"`
	Enabled   bool      `json:"enabled" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentConfig holds the tunable parameters for an Agent row, kept as a
// nested struct (rather than flattened columns) so new knobs don't require
// a migration.
type AgentConfig struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// Agent is a configured agent identity bound to a Provider (spec §3.7).
type Agent struct {
	ID         uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID   `json:"tenant_id" gorm:"type:uuid;index"`
	Code       string      `json:"code" gorm:"size:64;uniqueIndex"`
	Name       string      `json:"name" gorm:"size:128"`
	ProviderID uuid.UUID   `json:"provider_id" gorm:"type:uuid;index"`
	Model      string      `json:"model" gorm:"size:128"`
	Config     AgentConfig `json:"config" gorm:"serializer:json"`
	Enabled    bool        `json:"enabled" gorm:"default:true"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
