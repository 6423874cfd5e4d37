package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/webitel/im-chat-hub/infra/pubsub"
	"github.com/webitel/im-chat-hub/internal/domain/event"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"github.com/webitel/im-chat-hub/internal/service"
	"go.opentelemetry.io/otel/trace"
)

const (
	MetaKind    = "kind"
	MetaOrigin  = "origin"
	MetaTraceID = "trace_id"

	DefaultOutboxSize = 1024
)

var _ service.EventPublisher = (*EventDispatcher)(nil)

// EventDispatcher is the outgoing side of the bus. Publish never blocks on the
// broker: envelopes wait in a bounded outbox drained by a single goroutine.
type EventDispatcher struct {
	publisher message.Publisher
	origin    string
	logger    *slog.Logger
	box       *outbox

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewEventDispatcher(pub message.Publisher, origin infrapubsub.InstanceID, size int, logger *slog.Logger) *EventDispatcher {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &EventDispatcher{
		publisher: pub,
		origin:    string(origin),
		logger:    logger,
		box:       newOutbox(size),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (d *EventDispatcher) PublishActivity(ctx context.Context, act model.Activity) error {
	return d.Publish(ctx, event.KindActivity, act)
}

func (d *EventDispatcher) PublishNewMessage(ctx context.Context, n model.NewMessageNotice) error {
	return d.Publish(ctx, event.KindNewMessage, n)
}

// Publish queues a locally produced event, stamped with this instance as origin.
func (d *EventDispatcher) Publish(ctx context.Context, kind event.Kind, payload any) error {
	return d.enqueue(ctx, kind, d.origin, payload)
}

// Forward queues an event produced outside the hub. It carries no origin, so
// every instance, this one included, delivers it.
func (d *EventDispatcher) Forward(ctx context.Context, kind event.Kind, raw json.RawMessage) error {
	return d.enqueue(ctx, kind, "", raw)
}

func (d *EventDispatcher) enqueue(ctx context.Context, kind event.Kind, origin string, payload any) error {
	if payload == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil %s payload", kind)
	}
	env, err := event.NewEnvelope(kind, origin, payload)
	if err != nil {
		return err
	}

	p := pending{env: env}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		p.traceID = sc.TraceID().String()
	}

	if evicted, ok := d.box.push(p); ok {
		// [BACKPRESSURE] drop-oldest
		d.logger.Warn("OUTBOX_OVERFLOW", "dropped_id", evicted.env.ID, "dropped_kind", evicted.env.Kind)
	}
	return nil
}

// Start launches the drain loop. Safe to call more than once.
func (d *EventDispatcher) Start() {
	d.startOnce.Do(func() { go d.run() })
}

// Close flushes what is queued and stops the drain loop, bounded by ctx.
func (d *EventDispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stopCh) })
	// Never started: nothing to wait for, and Start becomes a no-op.
	d.startOnce.Do(func() { close(d.doneCh) })

	select {
	case <-d.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of queued envelopes.
func (d *EventDispatcher) Pending() int { return d.box.len() }

// Dropped is the number of envelopes evicted by overflow.
func (d *EventDispatcher) Dropped() uint64 { return d.box.droppedCount() }

func (d *EventDispatcher) Publisher() message.Publisher {
	return d.publisher
}

func (d *EventDispatcher) run() {
	defer close(d.doneCh)
	for {
		select {
		case <-d.box.ready:
			d.flush()
		case <-d.stopCh:
			d.flush()
			return
		}
	}
}

func (d *EventDispatcher) flush() {
	for _, p := range d.box.drain() {
		if err := d.send(p); err != nil {
			d.logger.Warn("EVENT_PUBLISH_FAILED", "event_id", p.env.ID, "kind", p.env.Kind, "err", err)
		}
	}
}

func (d *EventDispatcher) send(p pending) error {
	data, err := json.Marshal(p.env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := message.NewMessage(p.env.ID, data)
	msg.Metadata.Set(MetaKind, string(p.env.Kind))
	if p.env.Origin != "" {
		msg.Metadata.Set(MetaOrigin, p.env.Origin)
	}
	if p.traceID != "" {
		msg.Metadata.Set(MetaTraceID, p.traceID)
	}

	topic := p.env.Kind.Topic()
	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

type pending struct {
	env     *event.Envelope
	traceID string
}

// outbox is a bounded FIFO; a push into a full box evicts the oldest entry.
type outbox struct {
	mu      sync.Mutex
	items   []pending
	size    int
	dropped uint64
	ready   chan struct{}
}

func newOutbox(size int) *outbox {
	return &outbox{
		items: make([]pending, 0, size),
		size:  size,
		ready: make(chan struct{}, 1),
	}
}

func (o *outbox) push(p pending) (evicted pending, overflow bool) {
	o.mu.Lock()
	if len(o.items) == o.size {
		evicted, overflow = o.items[0], true
		o.items = append(o.items[:0], o.items[1:]...)
		o.dropped++
	}
	o.items = append(o.items, p)
	o.mu.Unlock()

	// [SIGNAL] coalesced wake-up for the drain loop
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return evicted, overflow
}

func (o *outbox) drain() []pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return nil
	}
	out := make([]pending, len(o.items))
	copy(out, o.items)
	o.items = o.items[:0]
	return out
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *outbox) droppedCount() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}
