// Package messaging implements the MoFA message bus: a typed, in-process
// pub/sub and point-to-point transport with at-least-once delivery,
// dead-letter handling, and retry/ack semantics.
package messaging

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryGuarantee selects the ack semantics of a subscription.
type DeliveryGuarantee string

const (
	AtMostOnce  DeliveryGuarantee = "at_most_once"
	AtLeastOnce DeliveryGuarantee = "at_least_once"
)

// Header is a single ordered key/value pair. Headers preserve insertion
// order so that route predicates relying on first-match evaluate
// deterministically; a plain map would not guarantee that.
type Header struct {
	Key   string
	Value string
}

// Envelope is the canonical unit of message transfer: payload plus routing
// metadata plus retry state.
type Envelope struct {
	MessageID   string
	SenderID    string
	RecipientID *string
	Topic       *string
	Payload     []byte
	Headers     []Header
	MessageType string
	TimestampMs int64
	TTLMs       *int64

	attempt  int
	hopCount uint16
}

// NewEnvelope builds an envelope with a time-ordered message id and the
// current wall-clock timestamp. SenderID and MessageType are required by
// callers; everything else defaults to zero values.
func NewEnvelope(senderID, messageType string, payload []byte) *Envelope {
	return &Envelope{
		MessageID:   newMessageID(),
		SenderID:    senderID,
		MessageType: messageType,
		Payload:     payload,
		TimestampMs: time.Now().UnixMilli(),
	}
}

func newMessageID() string {
	return uuid.NewString()
}

// Attempt returns the number of times this envelope has been requeued.
// Starts at 0; advanced only by the bus.
func (e *Envelope) Attempt() int { return e.attempt }

// HopCount returns the number of message-graph edges this envelope has
// traversed. Advanced only by the message-graph executor.
func (e *Envelope) HopCount() uint16 { return e.hopCount }

// IncrementAttempt advances the retry counter. Called only by the bus on
// requeue; handler code must never call this.
func (e *Envelope) IncrementAttempt() { e.attempt++ }

// IncrementHop advances the hop counter. Called only by the message-graph
// executor on edge traversal; handler code must never call this.
func (e *Envelope) IncrementHop() { e.hopCount++ }

// IsExpired reports whether the envelope has outlived its TTL relative to
// now. An envelope with no TTL never expires.
func (e *Envelope) IsExpired(now time.Time) bool {
	if e.TTLMs == nil {
		return false
	}
	age := now.UnixMilli() - e.TimestampMs
	return age >= *e.TTLMs
}

// Header looks up the first value for key, honoring insertion order.
func (e *Envelope) Header(key string) (string, bool) {
	for _, h := range e.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader appends or overwrites (in place) the first header matching key.
func (e *Envelope) SetHeader(key, value string) {
	for i, h := range e.Headers {
		if h.Key == key {
			e.Headers[i].Value = value
			return
		}
	}
	e.Headers = append(e.Headers, Header{Key: key, Value: value})
}

// Clone returns a deep copy of the envelope suitable for independent
// delivery to multiple subscribers or graph branches.
func (e *Envelope) Clone() *Envelope {
	cp := *e
	if e.RecipientID != nil {
		rid := *e.RecipientID
		cp.RecipientID = &rid
	}
	if e.Topic != nil {
		t := *e.Topic
		cp.Topic = &t
	}
	if e.TTLMs != nil {
		ttl := *e.TTLMs
		cp.TTLMs = &ttl
	}
	if e.Payload != nil {
		cp.Payload = append([]byte(nil), e.Payload...)
	}
	if e.Headers != nil {
		cp.Headers = append([]Header(nil), e.Headers...)
	}
	return &cp
}

// Receipt identifies a single in-flight delivery for ack/nack purposes.
type Receipt struct {
	MessageID  string
	ConsumerID string
}

// SubscribeOptions configures delivery semantics for a single subscription.
type SubscribeOptions struct {
	DeliveryGuarantee DeliveryGuarantee
	MaxRetries        *int
	DeadLetterTopic   *string
}

// DefaultSubscribeOptions returns AtMostOnce delivery with no retry/DLQ,
// the least surprising default for a fresh subscription.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{DeliveryGuarantee: AtMostOnce}
}
