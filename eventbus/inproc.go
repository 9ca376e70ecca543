package eventbus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/launchsignal/orchestrator/domain"
	"github.com/launchsignal/orchestrator/metrics"
)

// InProc is the process-local bus implementation. Handlers run in their
// own goroutines; one failing or slow handler never blocks delivery to
// other subscriptions.
type InProc struct {
	prefix     string
	retryBase  time.Duration
	maxRetries int

	mu     sync.RWMutex
	subs   map[string]*inprocSub
	closed bool

	wg sync.WaitGroup

	published    atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

type inprocSub struct {
	id      string
	pattern string
	handler Handler
	sem     *semaphore.Weighted
	autoAck bool
}

// NewInProc creates an in-process bus. retryBase seeds the exponential
// backoff; maxRetries is the default budget for PublishWithRetry.
func NewInProc(prefix string, retryBase time.Duration, maxRetries int) *InProc {
	if prefix == "" {
		prefix = "events"
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &InProc{
		prefix:     prefix,
		retryBase:  retryBase,
		maxRetries: maxRetries,
		subs:       make(map[string]*inprocSub),
	}
}

// Publish delivers the event to all matching subscriptions without a
// retry budget.
func (b *InProc) Publish(ctx context.Context, ev *domain.AgentEvent) (string, error) {
	return b.publish(ctx, ev, 0)
}

// PublishWithRetry delivers the event with a redelivery budget.
func (b *InProc) PublishWithRetry(ctx context.Context, ev *domain.AgentEvent, maxRetries int) (string, error) {
	if maxRetries <= 0 {
		maxRetries = b.maxRetries
	}
	return b.publish(ctx, ev, maxRetries)
}

func (b *InProc) publish(ctx context.Context, ev *domain.AgentEvent, maxRetries int) (string, error) {
	if ev == nil {
		return "", fmt.Errorf("eventbus: nil event")
	}
	if ev.TenantID == "" {
		return "", fmt.Errorf("eventbus: tenant_id is required")
	}
	if ev.Type == "" {
		return "", fmt.Errorf("eventbus: event type is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return "", fmt.Errorf("eventbus: bus is closed")
	}
	b.mu.RUnlock()

	ev.ID = "evt_" + uuid.New().String()
	ev.Timestamp = time.Now()
	ev.RetryCount = 0
	ev.MaxRetries = maxRetries

	b.published.Add(1)
	metrics.EventsPublished.WithLabelValues(ev.Type).Inc()

	b.fanOut(eventSubject(b.prefix, ev), ev)
	return ev.ID, nil
}

// fanOut dispatches an event to every subscription matching subject.
// Each subscription receives its own copy so per-subscription retry
// state never interferes across subscribers.
func (b *InProc) fanOut(subject string, ev *domain.AgentEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		cp := *ev
		b.wg.Add(1)
		go b.deliver(sub, subject, &cp)
	}
}

func (b *InProc) deliver(sub *inprocSub, subject string, ev *domain.AgentEvent) {
	defer b.wg.Done()

	if sub.sem != nil {
		if err := sub.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer sub.sem.Release(1)
	}

	err := b.invoke(sub, ev)
	if err == nil {
		b.delivered.Add(1)
		metrics.EventsDelivered.Inc()
		return
	}

	b.failed.Add(1)
	metrics.EventsFailed.Inc()
	log.Printf("WARN: handler failed for %s (sub %s, retry %d/%d): %v",
		subject, sub.id, ev.RetryCount, ev.MaxRetries, err)

	if !sub.autoAck || ev.MaxRetries <= 0 {
		return
	}
	b.handleFailed(sub, subject, ev)
}

// invoke runs the handler, containing panics so a misbehaving
// subscriber cannot crash the bus.
func (b *InProc) invoke(sub *inprocSub, ev *domain.AgentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sub.handler(context.Background(), ev)
}

// handleFailed increments the retry count and either schedules a
// redelivery to the failing subscription after backoff, or routes the
// event to the dead-letter subject once the budget is exhausted.
func (b *InProc) handleFailed(sub *inprocSub, subject string, ev *domain.AgentEvent) {
	ev.RetryCount++
	if ev.RetryCount > ev.MaxRetries {
		b.sendToDLQ(ev)
		return
	}

	delay := retryDelay(b.retryBase, ev.RetryCount)
	b.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer b.wg.Done()

		b.mu.RLock()
		_, alive := b.subs[sub.id]
		closed := b.closed
		b.mu.RUnlock()
		if closed || !alive {
			return
		}

		b.wg.Add(1)
		b.deliver(sub, subject, ev)
	})
}

// sendToDLQ publishes the exhausted event to the dead-letter subject.
// The event itself is not redelivered again.
func (b *InProc) sendToDLQ(ev *domain.AgentEvent) {
	b.deadLettered.Add(1)
	metrics.EventsDeadLettered.Inc()

	dlq := *ev
	dlq.Destination = "dlq"
	dlq.MaxRetries = 0
	b.fanOut(DLQSubject(b.prefix, ev.TenantID, ev.Type), &dlq)

	log.Printf("WARN: event %s (%s) dead-lettered after %d retries", ev.ID, ev.Type, ev.RetryCount-1)
}

// Subscribe registers a handler for subjects matching pattern.
func (b *InProc) Subscribe(pattern string, h Handler, opts ...SubscribeOption) (string, error) {
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

	sub := &inprocSub{
		id:      "sub_" + uuid.New().String()[:8],
		pattern: pattern,
		handler: h,
		autoAck: o.autoAck,
	}
	if o.concurrency > 0 {
		sub.sem = semaphore.NewWeighted(o.concurrency)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("eventbus: bus is closed")
	}
	b.subs[sub.id] = sub
	metrics.Subscriptions.Set(float64(len(b.subs)))
	return sub.id, nil
}

// Unsubscribe removes a subscription. In-flight deliveries finish;
// pending redeliveries to the removed subscription are dropped.
func (b *InProc) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return fmt.Errorf("eventbus: unknown subscription %s", id)
	}
	delete(b.subs, id)
	metrics.Subscriptions.Set(float64(len(b.subs)))
	return nil
}

// Stats returns a snapshot of bus counters.
func (b *InProc) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Subscriptions: n,
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Failed:        b.failed.Load(),
		DeadLettered:  b.deadLettered.Load(),
	}
}

// Close stops accepting publishes and waits for in-flight deliveries,
// including scheduled redeliveries, to drain.
func (b *InProc) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
