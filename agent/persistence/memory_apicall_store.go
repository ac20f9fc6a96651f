package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryApiCallStore is an in-memory ApiCallStore. Suitable for development
// and testing; data is lost on restart.
type MemoryApiCallStore struct {
	mu     sync.RWMutex
	calls  map[uuid.UUID]*ApiCall
	closed bool
}

// NewMemoryApiCallStore creates an empty in-memory ApiCallStore.
func NewMemoryApiCallStore() *MemoryApiCallStore {
	return &MemoryApiCallStore{calls: make(map[uuid.UUID]*ApiCall)}
}

var _ ApiCallStore = (*MemoryApiCallStore)(nil)

func (s *MemoryApiCallStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryApiCallStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryApiCallStore) Save(ctx context.Context, call *ApiCall) error {
	if call == nil {
		return NewError(ErrKindQuery, "Save", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewError(ErrKindConnection, "Save", ErrStoreClosed)
	}
	if call.ID == uuid.Nil {
		call.ID = uuid.New()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}
	cp := *call
	s.calls[call.ID] = &cp
	return nil
}

func (s *MemoryApiCallStore) matches(c *ApiCall, f ApiCallFilter) bool {
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.SessionID != uuid.Nil && c.SessionID != f.SessionID {
		return false
	}
	if f.AgentID != uuid.Nil && c.AgentID != f.AgentID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Model != "" && c.Model != f.Model {
		return false
	}
	if !f.Since.IsZero() && c.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && c.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

func (s *MemoryApiCallStore) Query(ctx context.Context, filter ApiCallFilter) ([]*ApiCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "Query", ErrStoreClosed)
	}

	var matched []*ApiCall
	for _, c := range s.calls {
		if s.matches(c, filter) {
			cp := *c
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 0 {
			page = 0
		}
		start := page * filter.PageSize
		if start >= len(matched) {
			return []*ApiCall{}, nil
		}
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, nil
}

func (s *MemoryApiCallStore) UsageStats(ctx context.Context, filter ApiCallFilter) (*ApiCallUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, NewError(ErrKindConnection, "UsageStats", ErrStoreClosed)
	}

	usage := &ApiCallUsage{}
	var totalLatency int64
	var earliest, latest time.Time
	for _, c := range s.calls {
		if !s.matches(c, filter) {
			continue
		}
		usage.CallCount++
		usage.PromptTokens += int64(c.PromptTokens)
		usage.CompletionTokens += int64(c.CompletionTokens)
		usage.TotalTokens += int64(c.TotalTokens)
		if c.CostUSD != nil {
			usage.TotalCostUSD += *c.CostUSD
		}
		totalLatency += c.LatencyMS
		if earliest.IsZero() || c.CreatedAt.Before(earliest) {
			earliest = c.CreatedAt
		}
		if latest.IsZero() || c.CreatedAt.After(latest) {
			latest = c.CreatedAt
		}
	}
	if usage.CallCount > 0 {
		usage.AvgLatencyMS = float64(totalLatency) / float64(usage.CallCount)
		if span := latest.Sub(earliest).Seconds(); span > 0 {
			usage.CallsPerSecond = float64(usage.CallCount) / span
		}
	}
	return usage, nil
}

func (s *MemoryApiCallStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, NewError(ErrKindConnection, "Cleanup", ErrStoreClosed)
	}
	removed := 0
	for id, c := range s.calls {
		if c.CreatedAt.Before(olderThan) {
			delete(s.calls, id)
			removed++
		}
	}
	return removed, nil
}
