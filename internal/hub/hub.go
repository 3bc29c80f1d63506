// Package hub fans serialized telemetry snapshots out to live
// subscribers and forwards inbound subscriber commands to a sink.
//
// The hub moves opaque byte payloads; serialization happens once per
// publish, upstream. Transport adapters (the SSE handler, tests) attach
// by draining a subscriber channel.
package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/CarletonURocketry/ground-station/pkg/log"
)

var ErrClosed = errors.New("hub: closed")

// DefaultSendBuffer is the per-subscriber queue depth. A subscriber that
// falls this far behind is considered stalled and is dropped.
const DefaultSendBuffer = 16

// CommandSink receives free-text commands from subscribers. The hub does
// not interpret command content, only frames and forwards it.
type CommandSink interface {
	HandleCommand(ctx context.Context, subscriber uint64, text string) error
}

// CommandSinkFunc adapts a function to CommandSink.
type CommandSinkFunc func(ctx context.Context, subscriber uint64, text string) error

func (f CommandSinkFunc) HandleCommand(ctx context.Context, subscriber uint64, text string) error {
	return f(ctx, subscriber, text)
}

// Metrics receives hub observations; the default discards them.
type Metrics interface {
	Published(subscribers int)
	SubscriberDropped()
}

type noopMetrics struct{}

func (noopMetrics) Published(int)     {}
func (noopMetrics) SubscriberDropped() {}

// Options configures a Hub.
type Options struct {
	Logger log.Logger
	Metrics Metrics
	// SendBuffer is the per-subscriber queue depth; 0 takes the default.
	SendBuffer int
	// Snapshot supplies the current serialized state for join-time replay.
	// Without it a late joiner waits for the next publish.
	Snapshot func() []byte
	// Commands receives SubmitCommand traffic. Without it commands are
	// acknowledged and dropped with a log line.
	Commands CommandSink
}

type subscriber struct {
	id uint64
	ch chan []byte
}

// Hub is the live distribution registry. All methods are safe for
// concurrent use.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]*subscriber
	nextID  uint64
	closed  bool

	buffer   int
	snapshot func() []byte
	commands CommandSink
	logger   log.Logger
	metrics  Metrics
}

func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	return &Hub{
		subs:     make(map[uint64]*subscriber),
		buffer:   opts.SendBuffer,
		snapshot: opts.Snapshot,
		commands: opts.Commands,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The current snapshot, when a provider is configured, is
// queued first so a late joiner starts from live state instead of
// waiting for the next update. The channel is closed on Unsubscribe,
// drop, or hub Close.
func (h *Hub) Subscribe() (uint64, <-chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, ErrClosed
	}
	h.nextID++
	sub := &subscriber{id: h.nextID, ch: make(chan []byte, h.buffer)}
	if h.snapshot != nil {
		// Buffer is empty; this send cannot block.
		sub.ch <- h.snapshot()
	}
	h.subs[sub.id] = sub
	h.logger.Debug("subscriber joined", log.Uint64("subscriber", sub.id))
	return sub.id, sub.ch, nil
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are ignored, so it is idempotent.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id uint64) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	h.logger.Debug("subscriber left", log.Uint64("subscriber", id))
}

// Publish enqueues one serialized snapshot to every subscriber. A
// subscriber whose queue is full is stalled: it is dropped and the
// publish proceeds to the rest.
func (h *Hub) Publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	var stalled []uint64
	for id, sub := range h.subs {
		select {
		case sub.ch <- payload:
		default:
			stalled = append(stalled, id)
		}
	}
	for _, id := range stalled {
		h.logger.Warn("dropping stalled subscriber", log.Uint64("subscriber", id))
		h.metrics.SubscriberDropped()
		h.removeLocked(id)
	}
	h.metrics.Published(len(h.subs))
}

// SubmitCommand forwards one free-text command from a subscriber to the
// command sink.
func (h *Hub) SubmitCommand(ctx context.Context, id uint64, text string) error {
	h.mu.Lock()
	sink := h.commands
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if sink == nil {
		h.logger.Warn("command dropped, no sink configured",
			log.Uint64("subscriber", id), log.Str("command", text))
		return nil
	}
	return sink.HandleCommand(ctx, id, text)
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber and rejects further use.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id := range h.subs {
		h.removeLocked(id)
	}
}
