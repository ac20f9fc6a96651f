// Package sql provides GORM-backed implementations of the
// agent/persistence store contracts, for deployments that need a durable
// Postgres or MySQL backend instead of the in-memory stores used for
// development (spec §4.6, §10 SQL backing).
package sql

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mofa-run/mofa/agent/persistence"
)

// classify maps a gorm error to the package's typed ErrKind, preferring
// gorm.ErrRecordNotFound over a blind "query failed" classification.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.NewError(persistence.ErrKindNotFound, op, persistence.ErrNotFound)
	}
	return persistence.NewError(persistence.ErrKindQuery, op, err)
}

// SessionStore is a GORM-backed persistence.SessionStore.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore wraps an already-connected *gorm.DB. Migrations are the
// caller's responsibility (gorm.DB.AutoMigrate(&persistence.ChatSession{})).
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

var _ persistence.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Close() error { return nil }

func (s *SessionStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("Ping", err)
	}
	return classify("Ping", sqlDB.PingContext(ctx))
}

func (s *SessionStore) Create(ctx context.Context, session *persistence.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	return classify("Create", s.db.WithContext(ctx).Create(session).Error)
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID) (*persistence.ChatSession, error) {
	var out persistence.ChatSession
	err := s.db.WithContext(ctx).First(&out, "id = ?", id).Error
	if err != nil {
		return nil, classify("Get", err)
	}
	return &out, nil
}

func (s *SessionStore) Update(ctx context.Context, session *persistence.ChatSession) error {
	session.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&persistence.ChatSession{}).Where("id = ?", session.ID).Updates(session)
	if res.Error != nil {
		return classify("Update", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("Update", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&persistence.ChatSession{}, "id = ?", id)
	if res.Error != nil {
		return classify("Delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return classify("Delete", gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *SessionStore) List(ctx context.Context, filter persistence.SessionFilter) ([]*persistence.ChatSession, error) {
	q := s.db.WithContext(ctx).Model(&persistence.ChatSession{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.AgentID != uuid.Nil {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	q = q.Order("created_at DESC")
	if filter.PageSize > 0 {
		q = q.Limit(filter.PageSize).Offset(filter.Page * filter.PageSize)
	}

	var out []*persistence.ChatSession
	if err := q.Find(&out).Error; err != nil {
		return nil, classify("List", err)
	}
	return out, nil
}

// ApiCallStore is a GORM-backed persistence.ApiCallStore.
type ApiCallStore struct {
	db *gorm.DB
}

func NewApiCallStore(db *gorm.DB) *ApiCallStore {
	return &ApiCallStore{db: db}
}

var _ persistence.ApiCallStore = (*ApiCallStore)(nil)

func (s *ApiCallStore) Close() error { return nil }

func (s *ApiCallStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("Ping", err)
	}
	return classify("Ping", sqlDB.PingContext(ctx))
}

func (s *ApiCallStore) Save(ctx context.Context, call *persistence.ApiCall) error {
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}
	return classify("Save", s.db.WithContext(ctx).Save(call).Error)
}

func (s *ApiCallStore) scoped(ctx context.Context, filter persistence.ApiCallFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&persistence.ApiCall{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.SessionID != uuid.Nil {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.AgentID != uuid.Nil {
		q = q.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Model != "" {
		q = q.Where("model = ?", filter.Model)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}
	return q
}

func (s *ApiCallStore) Query(ctx context.Context, filter persistence.ApiCallFilter) ([]*persistence.ApiCall, error) {
	q := s.scoped(ctx, filter).Order("created_at DESC")
	if filter.PageSize > 0 {
		q = q.Limit(filter.PageSize).Offset(filter.Page * filter.PageSize)
	}
	var out []*persistence.ApiCall
	if err := q.Find(&out).Error; err != nil {
		return nil, classify("Query", err)
	}
	return out, nil
}

func (s *ApiCallStore) UsageStats(ctx context.Context, filter persistence.ApiCallFilter) (*persistence.ApiCallUsage, error) {
	type row struct {
		CallCount        int
		PromptTokens     int64
		CompletionTokens int64
		TotalTokens      int64
		TotalCostUSD     float64
		AvgLatencyMS     float64
	}
	var r row
	err := s.scoped(ctx, filter).Select(
		"COUNT(*) AS call_count",
		"COALESCE(SUM(prompt_tokens),0) AS prompt_tokens",
		"COALESCE(SUM(completion_tokens),0) AS completion_tokens",
		"COALESCE(SUM(total_tokens),0) AS total_tokens",
		"COALESCE(SUM(cost_usd),0) AS total_cost_usd",
		"COALESCE(AVG(latency_ms),0) AS avg_latency_ms",
	).Scan(&r).Error
	if err != nil {
		return nil, classify("UsageStats", err)
	}
	return &persistence.ApiCallUsage{
		CallCount:        r.CallCount,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		TotalCostUSD:     r.TotalCostUSD,
		AvgLatencyMS:     r.AvgLatencyMS,
	}, nil
}

func (s *ApiCallStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", olderThan).Delete(&persistence.ApiCall{})
	if res.Error != nil {
		return 0, classify("Cleanup", res.Error)
	}
	return int(res.RowsAffected), nil
}
