// Package hub fans ingested packets out to live subscribers. Delivery is
// best-effort: a subscriber whose buffer is full has the message dropped
// rather than delaying the ingest path or other subscribers. There is no
// replay; a subscriber only sees packets broadcast after it registers.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/saviobatista/telemetry-server/internal/types"
)

// DefaultBufferSize is the per-subscriber outbound buffer when none is
// configured.
const DefaultBufferSize = 64

// Subscriber is a handle to one live stream consumer.
type Subscriber struct {
	ID string
	ch chan types.AnnotatedPacket
}

// Packets returns the subscriber's delivery channel. The channel is closed
// when the subscriber is unsubscribed.
func (s *Subscriber) Packets() <-chan types.AnnotatedPacket {
	return s.ch
}

// Hub maintains the set of live subscribers. The registry mutex is held only
// for the map operation or the non-blocking channel send, keeping hold time
// minimal on the ingest path.
type Hub struct {
	logger     logrus.FieldLogger
	bufferSize int

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}

	dropped uint64
}

// New creates a hub. bufferSize <= 0 selects DefaultBufferSize.
func New(logger logrus.FieldLogger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		logger:      logger,
		bufferSize:  bufferSize,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID: uuid.New().String(),
		ch: make(chan types.AnnotatedPacket, h.bufferSize),
	}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{"subscriber": sub.ID, "subscribers": count}).Info("Subscriber connected")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. It is idempotent;
// unsubscribing an already-removed subscriber is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.logger.WithFields(logrus.Fields{"subscriber": sub.ID, "subscribers": count}).Info("Subscriber disconnected")
	}
}

// Broadcast delivers a packet to every current subscriber without blocking.
// A full subscriber buffer drops the packet for that subscriber only.
func (h *Hub) Broadcast(pkt types.AnnotatedPacket) {
	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- pkt:
		default:
			atomic.AddUint64(&h.dropped, 1)
		}
	}
	h.mu.Unlock()
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Dropped returns the total number of per-subscriber drops since start.
func (h *Hub) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}
