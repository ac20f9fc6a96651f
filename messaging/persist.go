package messaging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// persistedEnvelope is the on-disk shape of one JSONL line. Unexported
// fields of Envelope (attempt, hopCount) are included explicitly since
// json.Marshal cannot see them.
type persistedEnvelope struct {
	MessageID   string   `json:"message_id"`
	SenderID    string   `json:"sender_id"`
	RecipientID *string  `json:"recipient_id,omitempty"`
	Topic       *string  `json:"topic,omitempty"`
	Payload     []byte   `json:"payload"`
	Headers     []Header `json:"headers,omitempty"`
	MessageType string   `json:"message_type"`
	TimestampMs int64    `json:"timestamp_ms"`
	TTLMs       *int64   `json:"ttl_ms,omitempty"`
	Attempt     int      `json:"attempt"`
	HopCount    uint16   `json:"hop_count"`
}

func toPersisted(e *Envelope) persistedEnvelope {
	return persistedEnvelope{
		MessageID:   e.MessageID,
		SenderID:    e.SenderID,
		RecipientID: e.RecipientID,
		Topic:       e.Topic,
		Payload:     e.Payload,
		Headers:     e.Headers,
		MessageType: e.MessageType,
		TimestampMs: e.TimestampMs,
		TTLMs:       e.TTLMs,
		Attempt:     e.Attempt(),
		HopCount:    e.HopCount(),
	}
}

func (p persistedEnvelope) toEnvelope() *Envelope {
	e := &Envelope{
		MessageID:   p.MessageID,
		SenderID:    p.SenderID,
		RecipientID: p.RecipientID,
		Topic:       p.Topic,
		Payload:     p.Payload,
		Headers:     p.Headers,
		MessageType: p.MessageType,
		TimestampMs: p.TimestampMs,
		TTLMs:       p.TTLMs,
	}
	for i := 0; i < p.Attempt; i++ {
		e.IncrementAttempt()
	}
	for i := uint16(0); i < p.HopCount; i++ {
		e.IncrementHop()
	}
	return e
}

// persister appends one JSON line per envelope to <dir>/<channel_id>.jsonl,
// matching spec §6.1. It does not redeliver on restart; replay is driven by
// the caller via LoadJSONL.
type persister struct {
	dir string
	mu  sync.Mutex
}

func newPersister(dir string) *persister {
	return &persister{dir: dir}
}

func (p *persister) append(channelID string, env *Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("messaging: create persistence dir: %w", err)
	}
	path := filepath.Join(p.dir, channelID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("messaging: open %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(toPersisted(env))
	if err != nil {
		return fmt.Errorf("messaging: marshal envelope: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("messaging: write %s: %w", path, err)
	}
	return nil
}

// LoadJSONL replays a persisted channel log back into envelopes, in append
// order. Callers use this to recover undelivered messages after a restart.
func LoadJSONL(path string) ([]*Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("messaging: open %s: %w", path, err)
	}
	defer f.Close()

	var out []*Envelope
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var pe persistedEnvelope
		if err := json.Unmarshal(line, &pe); err != nil {
			return nil, fmt.Errorf("messaging: unmarshal line: %w", err)
		}
		out = append(out, pe.toEnvelope())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("messaging: scan %s: %w", path, err)
	}
	return out, nil
}
