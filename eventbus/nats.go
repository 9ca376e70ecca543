package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/metrics"
)

// NATSBus is the broker-backed bus implementation. Events are JSON
// payloads on core NATS subjects; subject naming and wildcard semantics
// are identical to the in-process bus.
//
// Redelivery republishes to the original subject, so with multiple
// matching subscriptions a retry is observed by all of them. That
// mirrors the fan-out semantics of broker pub/sub and is acceptable for
// idempotent handlers; exactly-once handling is not a goal here.
type NATSBus struct {
	conn       *nats.Conn
	prefix     string
	retryBase  time.Duration
	maxRetries int

	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	closed bool

	published    atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

// NewNATSBus connects to the broker at url.
func NewNATSBus(url, prefix string, retryBase time.Duration, maxRetries int) (*NATSBus, error) {
	if prefix == "" {
		prefix = "events"
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	conn, err := nats.Connect(url,
		nats.Name("campaign-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSBus{
		conn:       conn,
		prefix:     prefix,
		retryBase:  retryBase,
		maxRetries: maxRetries,
		subs:       make(map[string]*nats.Subscription),
	}, nil
}

func (b *NATSBus) Publish(ctx context.Context, ev *domain.AgentEvent) (string, error) {
	return b.publish(ev, 0)
}

func (b *NATSBus) PublishWithRetry(ctx context.Context, ev *domain.AgentEvent, maxRetries int) (string, error) {
	if maxRetries <= 0 {
		maxRetries = b.maxRetries
	}
	return b.publish(ev, maxRetries)
}

func (b *NATSBus) publish(ev *domain.AgentEvent, maxRetries int) (string, error) {
	if ev == nil {
		return "", fmt.Errorf("eventbus: nil event")
	}
	if ev.TenantID == "" {
		return "", fmt.Errorf("eventbus: tenant_id is required")
	}
	if ev.Type == "" {
		return "", fmt.Errorf("eventbus: event type is required")
	}

	ev.ID = "evt_" + uuid.New().String()
	ev.Timestamp = time.Now()
	ev.RetryCount = 0
	ev.MaxRetries = maxRetries

	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(eventSubject(b.prefix, ev), data); err != nil {
		return "", fmt.Errorf("publish event: %w", err)
	}

	b.published.Add(1)
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	return ev.ID, nil
}

func (b *NATSBus) Subscribe(pattern string, h Handler, opts ...SubscribeOption) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("eventbus: pattern is required")
	}
	if h == nil {
		return "", fmt.Errorf("eventbus: handler is required")
	}

	o := defaultSubOptions()
	for _, opt := range opts {
		opt(&o)
	}
	var sem *semaphore.Weighted
	if o.concurrency > 0 {
		sem = semaphore.NewWeighted(o.concurrency)
	}

	id := "sub_" + uuid.New().String()[:8]
	natsSub, err := b.conn.Subscribe(pattern, func(m *nats.Msg) {
		var ev domain.AgentEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Printf("WARN: dropping malformed event on %s: %v", m.Subject, err)
			return
		}

		if sem != nil {
			if err := sem.Acquire(context.Background(), 1); err != nil {
				return
			}
			defer sem.Release(1)
		}

		if err := b.invoke(h, &ev); err != nil {
			b.failed.Add(1)
			metrics.EventsFailed.Inc()
			if o.autoAck && ev.MaxRetries > 0 {
				b.handleFailed(m.Subject, &ev)
			}
			return
		}
		b.delivered.Add(1)
		metrics.EventsDelivered.Inc()
	})
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", pattern, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = natsSub.Unsubscribe()
		return "", fmt.Errorf("eventbus: bus is closed")
	}
	b.subs[id] = natsSub
	metrics.Subscriptions.Set(float64(len(b.subs)))
	return id, nil
}

func (b *NATSBus) invoke(h Handler, ev *domain.AgentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(context.Background(), ev)
}

// handleFailed republishes the event after backoff, or routes it to the
// dead-letter subject once the retry budget is exhausted.
func (b *NATSBus) handleFailed(subject string, ev *domain.AgentEvent) {
	ev.RetryCount++
	if ev.RetryCount > ev.MaxRetries {
		b.sendToDLQ(ev)
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("ERROR: failed to marshal retry event %s: %v", ev.ID, err)
		return
	}
	time.AfterFunc(retryDelay(b.retryBase, ev.RetryCount), func() {
		if err := b.conn.Publish(subject, data); err != nil {
			log.Printf("ERROR: failed to republish event %s: %v", ev.ID, err)
		}
	})
}

func (b *NATSBus) sendToDLQ(ev *domain.AgentEvent) {
	b.deadLettered.Add(1)
	metrics.EventsDeadLettered.Inc()

	dlq := *ev
	dlq.Destination = "dlq"
	dlq.MaxRetries = 0
	data, err := json.Marshal(&dlq)
	if err != nil {
		log.Printf("ERROR: failed to marshal DLQ event %s: %v", ev.ID, err)
		return
	}
	if err := b.conn.Publish(DLQSubject(b.prefix, ev.TenantID, ev.Type), data); err != nil {
		log.Printf("ERROR: failed to publish DLQ event %s: %v", ev.ID, err)
	}
	log.Printf("WARN: event %s (%s) dead-lettered after %d retries", ev.ID, ev.Type, ev.RetryCount-1)
}

func (b *NATSBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return fmt.Errorf("eventbus: unknown subscription %s", id)
	}
	delete(b.subs, id)
	metrics.Subscriptions.Set(float64(len(b.subs)))
	return sub.Unsubscribe()
}

func (b *NATSBus) Stats() Stats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return Stats{
		Subscriptions: n,
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Failed:        b.failed.Load(),
		DeadLettered:  b.deadLettered.Load(),
	}
}

// Close drains the connection so in-flight messages are handled before
// the process exits.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*nats.Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	return b.conn.Drain()
}
