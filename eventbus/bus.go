// Package eventbus provides typed publish/subscribe for agent events
// over keyed subjects of the form {prefix}.{tenant_id}.{type}, with
// bounded retry and dead-letter routing on exhaustion.
//
// Two implementations exist: InProc (process-local, the default) and
// NATS (broker-backed, selected when NATS_URL is configured). Both
// share subject naming and pattern semantics: "*" matches exactly one
// token, ">" matches the rest of the subject.
package eventbus

import (
	"context"
	"strings"
	"time"

	"github.com/launchsignal/orchestrator/domain"
)

// Handler processes one delivered event. Returning an error marks the
// delivery failed; whether that triggers redelivery depends on the
// subscription's ack mode and the event's retry budget.
type Handler func(ctx context.Context, ev *domain.AgentEvent) error

// Stats is a point-in-time snapshot of bus counters.
type Stats struct {
	Subscriptions int   `json:"subscriptions"`
	Published     int64 `json:"published"`
	Delivered     int64 `json:"delivered"`
	Failed        int64 `json:"failed"`
	DeadLettered  int64 `json:"dead_lettered"`
}

// Bus is the publish/subscribe contract used by the planner, the saga
// engine, and the audit recorder.
type Bus interface {
	// Publish assigns the event's ID and timestamp, resets its retry
	// count, and delivers it to every matching subscription. It returns
	// the generated ID, unique within the process lifetime.
	Publish(ctx context.Context, ev *domain.AgentEvent) (string, error)

	// PublishWithRetry is Publish with a redelivery budget: a failing
	// handler sees the event again after an exponential backoff, up to
	// maxRetries times, after which the event goes to the dead-letter
	// subject exactly once. maxRetries <= 0 uses the bus default.
	PublishWithRetry(ctx context.Context, ev *domain.AgentEvent, maxRetries int) (string, error)

	// Subscribe registers a handler for every event whose subject
	// matches pattern. It returns a subscription ID for Unsubscribe.
	Subscribe(pattern string, h Handler, opts ...SubscribeOption) (string, error)

	Unsubscribe(id string) error

	Stats() Stats

	Close() error
}

type subOptions struct {
	concurrency int64
	autoAck     bool
}

func defaultSubOptions() subOptions {
	return subOptions{concurrency: 0, autoAck: true}
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subOptions)

// WithConcurrency bounds how many handler invocations run concurrently
// for this subscription. Zero or negative means unbounded.
func WithConcurrency(n int) SubscribeOption {
	return func(o *subOptions) { o.concurrency = int64(n) }
}

// WithAutoAck controls failure handling. When true (the default), a
// handler error consumes the event's retry budget and may dead-letter
// it. When false the delivery is fire-and-forget.
func WithAutoAck(ack bool) SubscribeOption {
	return func(o *subOptions) { o.autoAck = ack }
}

// Subject builds the bus subject for an event.
func Subject(prefix, tenantID, eventType string) string {
	return prefix + "." + tenantID + "." + eventType
}

// DLQSubject builds the dead-letter subject for an event.
func DLQSubject(prefix, tenantID, eventType string) string {
	return prefix + ".dlq." + tenantID + "." + eventType
}

// eventSubject derives the subject an event is published on.
func eventSubject(prefix string, ev *domain.AgentEvent) string {
	return Subject(prefix, ev.TenantID, ev.Type)
}

// matchSubject reports whether subject matches pattern. Tokens are
// dot-separated; "*" matches one token, ">" matches one or more
// trailing tokens.
func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, p := range pt {
		if p == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// retryDelay computes the exponential backoff before the given attempt.
// attempt is the retry count after incrementing (1-based).
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
