// README: Hub of per-order rooms; subscriber registry and fan-out.
package tracking

import (
	"sync"
	"time"

	"porter/internal/types"
)

// Per-subscriber buffer. A subscriber that falls this far behind starts
// losing intermediate updates; the latest position always arrives.
const subscriberBuffer = 16

// Tombstones only need to outlive late packets still in flight for a
// cancelled order; durable enforcement comes from the order status.
const tombstoneTTL = time.Hour

type room struct {
	orderID types.ID

	// mu guards this order's state only; rooms never share locks, so
	// operations on different orders do not contend.
	mu   sync.Mutex
	gone bool // removed from the hub; holders must re-fetch
	subs map[types.ID]chan Event
	last map[Role]Position
}

func newRoom(orderID types.ID) *room {
	return &room{
		orderID: orderID,
		subs:    make(map[types.ID]chan Event),
		last:    make(map[Role]Position),
	}
}

// broadcastLocked fans an immutable event out to every subscriber except the
// publisher. Sends never block: a full buffer drops the event for that
// subscriber instead of stalling the publish path.
func (r *room) broadcastLocked(e Event, exclude types.ID) {
	for id, ch := range r.subs {
		if id == exclude {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// Hub owns the rooms. The hub lock covers only the registry maps and is
// never held while waiting on a room lock during Join, so a slow operation
// on one order cannot stall membership changes or publishes for another.
// Torn-down orders are tombstoned so a cancelled order does not re-enter
// tracking while late packets are still arriving.
type Hub struct {
	mu      sync.Mutex
	rooms   map[types.ID]*room
	stopped map[types.ID]time.Time
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[types.ID]*room),
		stopped: make(map[types.ID]time.Time),
	}
}

// stoppedLocked reports whether the order was recently torn down. Expired
// tombstones are pruned on sight.
func (h *Hub) stoppedLocked(orderID types.ID) bool {
	at, ok := h.stopped[orderID]
	if !ok {
		return false
	}
	if time.Since(at) > tombstoneTTL {
		delete(h.stopped, orderID)
		return false
	}
	return true
}

// room returns the order's room, creating it on demand. The created flag
// tells the caller to rehydrate last-known positions. Callers must re-fetch
// when they observe r.gone under the room lock.
func (h *Hub) room(orderID types.ID) (r *room, created bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stoppedLocked(orderID) {
		return nil, false, ErrTrackingInactive
	}
	r, ok := h.rooms[orderID]
	if !ok {
		r = newRoom(orderID)
		h.rooms[orderID] = r
		created = true
	}
	return r, created, nil
}

// peek returns the room without creating one.
func (h *Hub) peek(orderID types.ID) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[orderID]
}

// seed fills last-known slots that are still empty, without clobbering
// positions published since the room came up.
func (h *Hub) seed(orderID types.ID, last map[Role]Position) {
	r := h.peek(orderID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for role, pos := range last {
		if _, ok := r.last[role]; !ok {
			r.last[role] = pos
		}
	}
}

// Join registers a subscriber and returns its event channel. Idempotent:
// joining twice returns the existing channel. The hub lock is released
// before the room lock is taken; a room that went away in between is
// re-fetched.
func (h *Hub) Join(orderID, subscriberID types.ID) (<-chan Event, bool, error) {
	for {
		h.mu.Lock()
		if h.stoppedLocked(orderID) {
			h.mu.Unlock()
			return nil, false, ErrTrackingInactive
		}
		r, ok := h.rooms[orderID]
		created := false
		if !ok {
			r = newRoom(orderID)
			h.rooms[orderID] = r
			created = true
		}
		h.mu.Unlock()

		r.mu.Lock()
		if r.gone {
			r.mu.Unlock()
			continue
		}
		if ch, ok := r.subs[subscriberID]; ok {
			r.mu.Unlock()
			return ch, created, nil
		}
		ch := make(chan Event, subscriberBuffer)
		r.subs[subscriberID] = ch
		r.mu.Unlock()
		return ch, created, nil
	}
}

// Leave deregisters a subscriber and garbage-collects the room when the last
// subscriber is gone. Last-known coordinates survive in the store.
func (h *Hub) Leave(orderID, subscriberID types.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[orderID]
	if !ok {
		return
	}

	r.mu.Lock()
	if ch, ok := r.subs[subscriberID]; ok {
		delete(r.subs, subscriberID)
		close(ch)
	}
	if len(r.subs) == 0 {
		r.gone = true
		delete(h.rooms, orderID)
	}
	r.mu.Unlock()
}

// dropIfIdle garbage-collects a room with no subscribers, so publishes from
// orders nobody is watching do not accumulate rooms. The room is rebuilt
// from the store on the next join or publish.
func (h *Hub) dropIfIdle(orderID types.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[orderID]
	if !ok {
		return
	}
	r.mu.Lock()
	if len(r.subs) == 0 {
		r.gone = true
		delete(h.rooms, orderID)
	}
	r.mu.Unlock()
}

// Teardown closes every subscriber channel and tombstones the order.
// Expired tombstones are pruned while the map is already in hand.
func (h *Hub) Teardown(orderID types.ID) {
	h.mu.Lock()
	r := h.rooms[orderID]
	delete(h.rooms, orderID)
	h.stopped[orderID] = time.Now()
	for id, at := range h.stopped {
		if time.Since(at) > tombstoneTTL {
			delete(h.stopped, id)
		}
	}
	h.mu.Unlock()

	if r == nil {
		return
	}
	r.mu.Lock()
	r.gone = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	r.mu.Unlock()
}
