// Package streaming publishes live execution events to in-process subscribers.
package streaming

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dominossauro/lowcode/pkg/schema"
)

// Event kinds.
const (
	KindNode    = "node"
	KindRequest = "request"
)

const subscriberBuffer = 64

// Event is one node execution or one completed request.
type Event struct {
	Kind       string    `json:"kind"`
	Controller string    `json:"controller"`
	NodeType   string    `json:"node_type,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     int       `json:"status,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Controller string
	Kinds      []string
}

func (f Filter) match(e Event) bool {
	if f.Controller != "" && f.Controller != e.Controller {
		return false
	}
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, e.Kind)
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event. Hub satisfies engine.Observer.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	dropped atomic.Uint64
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber), now: time.Now}
}

// Publish delivers e to every matching subscriber.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.filter.match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. cancel removes it and closes the channel.
func (h *Hub) Subscribe(f Filter) (events <-chan Event, cancel func()) {
	id := h.seq.Add(1)
	s := &subscriber{ch: make(chan Event, subscriberBuffer), filter: f}

	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber lagged.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) NodeExecuted(controller, nodeType string, output schema.OutputKey, d time.Duration, err error) {
	e := Event{
		Kind:       KindNode,
		Controller: controller,
		NodeType:   nodeType,
		Output:     string(output),
		DurationMs: millis(d),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.Publish(e)
}

func (h *Hub) RequestCompleted(controller string, status int, d time.Duration) {
	h.Publish(Event{Kind: KindRequest, Controller: controller, Status: status, DurationMs: millis(d)})
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
