package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Errors returned by bus operations.
var (
	ErrMessageExpired   = errors.New("messaging: envelope expired")
	ErrUnknownRecipient = errors.New("messaging: unknown recipient")
	ErrMailboxClosed    = errors.New("messaging: mailbox closed")
	ErrNoReceipt        = errors.New("messaging: no in-flight entry for receipt")
)

// NackOutcome reports what nack did with the envelope.
type NackOutcome string

const (
	Requeued     NackOutcome = "requeued"
	DeadLettered NackOutcome = "dead_lettered"
	Discarded    NackOutcome = "discarded"
)

// Config configures a Bus.
type Config struct {
	// BufferSize is the per-consumer mailbox capacity.
	BufferSize int
	// MessageTimeout is the default Receive wait when no timeout is given.
	MessageTimeout time.Duration
	// Persistent enables the JSONL append log described in spec §6.1.
	Persistent bool
	// PersistenceDir holds one <channel_id>.jsonl file per topic/recipient.
	PersistenceDir string
}

// DefaultConfig returns the bus defaults named in spec §6.3.
func DefaultConfig() Config {
	return Config{
		BufferSize:     1024,
		MessageTimeout: 5 * time.Second,
	}
}

type mailbox struct {
	id     string
	ch     chan *Envelope
	recvMu sync.Mutex // only one Receive in flight per consumer
	closed bool
	mu     sync.Mutex
}

func newMailbox(id string, size int) *mailbox {
	return &mailbox{id: id, ch: make(chan *Envelope, size)}
}

func (m *mailbox) trySend(env *Envelope) bool {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return false
	}
	select {
	case m.ch <- env:
		return true
	default:
		return false
	}
}

// blockingSend enqueues env, blocking until space is available, ctx is
// canceled, or the mailbox closes.
func (m *mailbox) blockingSend(ctx context.Context, env *Envelope) error {
	select {
	case m.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

type subscription struct {
	consumerID string
	opts       SubscribeOptions
}

type inFlightEntry struct {
	env *Envelope
	sub SubscribeOptions
}

// Bus is a concurrent, single-process pub/sub and directed-send transport.
// Each consumer owns exactly one bounded mailbox; each topic owns a list of
// subscriptions.
type Bus struct {
	id     string
	cfg    Config
	logger *zap.Logger
	m      *metrics

	mu            sync.RWMutex
	mailboxes     map[string]*mailbox
	subscriptions map[string][]subscription // topic -> subs

	inFlightMu sync.Mutex
	inFlight   map[Receipt]inFlightEntry

	dlqMu sync.Mutex
	dlq   map[string][]*Envelope // topic -> stored dead letters, for tests/inspection

	persist *persister
}

// New constructs a Bus identified by id (used as a metrics label and a
// logging field).
func New(id string, cfg Config, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		id:            id,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "bus"), zap.String("bus_id", id)),
		m:             newMetrics(id),
		mailboxes:     make(map[string]*mailbox),
		subscriptions: make(map[string][]subscription),
		inFlight:      make(map[Receipt]inFlightEntry),
		dlq:           make(map[string][]*Envelope),
	}
	if cfg.Persistent {
		b.persist = newPersister(cfg.PersistenceDir)
	}
	return b
}

func (b *Bus) ensureMailbox(consumerID string) *mailbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, ok := b.mailboxes[consumerID]
	if !ok {
		mb = newMailbox(consumerID, b.cfg.BufferSize)
		b.mailboxes[consumerID] = mb
	}
	return mb
}

// Subscribe registers consumerID on topic with opts. Idempotent: calling it
// again for the same (topic, consumerID) replaces the options.
func (b *Bus) Subscribe(topic, consumerID string, opts SubscribeOptions) {
	b.ensureMailbox(consumerID)

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscriptions[topic]
	for i, s := range subs {
		if s.consumerID == consumerID {
			subs[i].opts = opts
			return
		}
	}
	b.subscriptions[topic] = append(subs, subscription{consumerID: consumerID, opts: opts})
}

// Publish fans env out to every subscriber of topic. Mailbox-full drops are
// per-subscriber and never block the publisher or affect other subscribers.
func (b *Bus) Publish(ctx context.Context, topic string, env *Envelope) error {
	if env.IsExpired(time.Now()) {
		b.m.incDropped()
		return ErrMessageExpired
	}
	if b.persist != nil {
		if err := b.persist.append(topic, env); err != nil {
			return fmt.Errorf("messaging: persist publish: %w", err)
		}
	}
	b.m.incPublished()

	b.mu.RLock()
	subs := append([]subscription(nil), b.subscriptions[topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		out := env.Clone()
		out.Topic = &topic
		mb := b.ensureMailbox(s.consumerID)

		if s.opts.DeliveryGuarantee == AtLeastOnce {
			receipt := Receipt{MessageID: out.MessageID, ConsumerID: s.consumerID}
			b.inFlightMu.Lock()
			b.inFlight[receipt] = inFlightEntry{env: out, sub: s.opts}
			b.inFlightMu.Unlock()
		}

		if mb.trySend(out) {
			b.m.incDelivered()
		} else {
			b.m.incDropped()
			if s.opts.DeliveryGuarantee == AtLeastOnce {
				receipt := Receipt{MessageID: out.MessageID, ConsumerID: s.consumerID}
				b.inFlightMu.Lock()
				delete(b.inFlight, receipt)
				b.inFlightMu.Unlock()
			}
			b.logger.Warn("mailbox full, dropped message",
				zap.String("topic", topic), zap.String("consumer_id", s.consumerID))
		}
	}
	return nil
}

// Send enqueues env directly to recipientID's mailbox, blocking until space
// is available or ctx is canceled.
func (b *Bus) Send(ctx context.Context, recipientID string, env *Envelope) error {
	if env.IsExpired(time.Now()) {
		b.m.incDropped()
		return ErrMessageExpired
	}
	if b.persist != nil {
		if err := b.persist.append(recipientID, env); err != nil {
			return fmt.Errorf("messaging: persist send: %w", err)
		}
	}
	b.m.incPublished()

	out := env.Clone()
	out.RecipientID = &recipientID
	mb := b.ensureMailbox(recipientID)

	if err := mb.blockingSend(ctx, out); err != nil {
		return fmt.Errorf("messaging: send to %s: %w", recipientID, err)
	}
	b.m.incDelivered()
	return nil
}

// ReceiveOptions configures a single Receive call.
type ReceiveOptions struct {
	Timeout     time.Duration
	MaxMessages int
}

// Receive blocks up to opts.Timeout for the first message for consumerID,
// then drains up to MaxMessages-1 more without blocking. A timeout returns
// an empty, non-error result.
func (b *Bus) Receive(ctx context.Context, consumerID string, opts ReceiveOptions) ([]*Envelope, error) {
	mb := b.ensureMailbox(consumerID)

	mb.recvMu.Lock()
	defer mb.recvMu.Unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.cfg.MessageTimeout
	}
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = 1
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out []*Envelope
	select {
	case env, ok := <-mb.ch:
		if !ok {
			return nil, ErrMailboxClosed
		}
		out = append(out, env)
	case <-timer.C:
		return out, nil
	case <-ctx.Done():
		return out, ctx.Err()
	}

	for len(out) < maxMessages {
		select {
		case env, ok := <-mb.ch:
			if !ok {
				return out, nil
			}
			out = append(out, env)
		default:
			return out, nil
		}
	}
	return out, nil
}

// Ack removes the in-flight entry for receipt.
func (b *Bus) Ack(receipt Receipt) error {
	b.inFlightMu.Lock()
	_, ok := b.inFlight[receipt]
	delete(b.inFlight, receipt)
	b.inFlightMu.Unlock()
	if !ok {
		return ErrNoReceipt
	}
	b.m.incAcked()
	return nil
}

// Nack looks up the in-flight entry for receipt and either requeues it
// (attempt < max_retries), dead-letters it (DLQ configured), or discards it.
func (b *Bus) Nack(receipt Receipt) (NackOutcome, error) {
	b.inFlightMu.Lock()
	entry, ok := b.inFlight[receipt]
	if ok {
		delete(b.inFlight, receipt)
	}
	b.inFlightMu.Unlock()
	if !ok {
		return "", ErrNoReceipt
	}
	b.m.incNacked()

	maxRetries := 0
	if entry.sub.MaxRetries != nil {
		maxRetries = *entry.sub.MaxRetries
	}

	if entry.env.Attempt() < maxRetries {
		entry.env.IncrementAttempt()
		newReceipt := Receipt{MessageID: entry.env.MessageID, ConsumerID: receipt.ConsumerID}
		b.inFlightMu.Lock()
		b.inFlight[newReceipt] = entry
		b.inFlightMu.Unlock()

		mb := b.ensureMailbox(receipt.ConsumerID)
		if mb.trySend(entry.env) {
			b.m.incRetries()
			return Requeued, nil
		}
		b.inFlightMu.Lock()
		delete(b.inFlight, newReceipt)
		b.inFlightMu.Unlock()
		b.m.incDropped()
		return Discarded, nil
	}

	if entry.sub.DeadLetterTopic != nil {
		b.dlqMu.Lock()
		b.dlq[*entry.sub.DeadLetterTopic] = append(b.dlq[*entry.sub.DeadLetterTopic], entry.env)
		b.dlqMu.Unlock()
		b.m.incDeadLettered()
		return DeadLettered, nil
	}

	b.m.incDropped()
	return Discarded, nil
}

// DeadLettered returns a snapshot of the envelopes dead-lettered onto topic.
func (b *Bus) DeadLettered(topic string) []*Envelope {
	b.dlqMu.Lock()
	defer b.dlqMu.Unlock()
	return append([]*Envelope(nil), b.dlq[topic]...)
}

// Metrics returns the current counter snapshot.
func (b *Bus) Metrics() MetricsSnapshot {
	return b.m.snapshot()
}

// Close closes every consumer mailbox. Subsequent Receive calls on a closed
// mailbox return ErrMailboxClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, mb := range b.mailboxes {
		mb.close()
	}
}
