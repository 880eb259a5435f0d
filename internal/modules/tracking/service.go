// README: Tracking façade: join/leave, location publishing, enrichment, teardown.
package tracking

import (
	"context"
	"log"
	"time"

	"porter/internal/modules/geo"
	"porter/internal/modules/order"
	"porter/internal/modules/routes"
	"porter/internal/types"
)

// RouteResolver enriches broadcasts with a polyline; failures are
// best-effort and never block a broadcast.
type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination types.Point) (routes.Route, error)
}

// LastStore persists last-known positions so rooms survive restarts.
type LastStore interface {
	SaveLast(ctx context.Context, orderID types.ID, role Role, pos Position) error
	LoadLast(ctx context.Context, orderID types.ID) (map[Role]Position, error)
}

type Service struct {
	hub    *Hub
	store  LastStore
	routes RouteResolver
}

func NewService(store LastStore, resolver RouteResolver) *Service {
	return &Service{hub: NewHub(), store: store, routes: resolver}
}

// Join subscribes to an order's room. Rehydrates last-known positions when
// the room is freshly created.
func (s *Service) Join(ctx context.Context, orderID, subscriberID types.ID) (<-chan Event, error) {
	ch, created, err := s.hub.Join(orderID, subscriberID)
	if err != nil {
		return nil, err
	}
	if created {
		s.rehydrate(ctx, orderID)
	}
	return ch, nil
}

func (s *Service) Leave(orderID, subscriberID types.ID) {
	s.hub.Leave(orderID, subscriberID)
}

// PublishLocation stores a role's position (last write wins per role slot),
// enriches with distance, ETA band, and a best-effort route polyline when
// the counterpart's position is known, then broadcasts to every subscriber
// except the publisher. Updates older than the stored position are dropped
// with ErrStaleUpdate and trigger no broadcast. The room lock covers only
// the slot update and the fan-out; store writes and route resolution run
// outside it, so a slow provider never stalls operations on other orders.
func (s *Service) PublishLocation(ctx context.Context, orderID, publisherID types.ID, role Role, coord types.Point, at time.Time) (Event, error) {
	if !ValidRole(role) {
		return Event{}, ErrBadRole
	}
	if at.IsZero() {
		at = time.Now()
	}

	var r *room
	var other Position
	var hasOther bool
	for {
		var created bool
		var err error
		r, created, err = s.hub.room(orderID)
		if err != nil {
			return Event{}, err
		}
		if created {
			s.rehydrate(ctx, orderID)
		}

		r.mu.Lock()
		if r.gone {
			r.mu.Unlock()
			continue
		}
		if last, ok := r.last[role]; ok && !at.After(last.At) {
			r.mu.Unlock()
			return Event{}, ErrStaleUpdate
		}
		r.last[role] = Position{Coord: coord, At: at}
		other, hasOther = r.last[Counterpart(role)]
		r.mu.Unlock()
		break
	}

	if s.store != nil {
		if err := s.store.SaveLast(ctx, orderID, role, Position{Coord: coord, At: at}); err != nil {
			log.Printf("tracking: save last position for %s/%s: %v", orderID, role, err)
		}
	}

	ev := Event{
		Kind:    EventLocationUpdated,
		OrderID: orderID,
		Role:    role,
		Coord:   &coord,
		At:      &at,
	}
	if hasOther {
		d := geo.DistanceKm(coord, other.Coord)
		ev.DistanceKm = &d
		ev.ETA = geo.ETABucket(d)
		if s.routes != nil {
			if rt, err := s.routes.Resolve(ctx, coord, other.Coord); err == nil {
				ev.RoutePolyline = rt.Polyline
			}
		}
	}

	// Broadcast only if this is still the newest position for the role, so
	// a faster concurrent publish is never shadowed by an older one whose
	// route resolve took longer.
	r.mu.Lock()
	if last, ok := r.last[role]; ok && last.At.Equal(at) {
		r.broadcastLocked(ev, publisherID)
	}
	r.mu.Unlock()

	// Nobody watching: let the room go; the store rebuilds it on demand.
	if s.store != nil {
		s.hub.dropIfIdle(orderID)
	}
	return ev, nil
}

// Snapshot returns the last-known positions for an order, falling back to
// the store when no room is live.
func (s *Service) Snapshot(ctx context.Context, orderID types.ID) (map[Role]Position, error) {
	if r := s.hub.peek(orderID); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		out := make(map[Role]Position, len(r.last))
		for role, pos := range r.last {
			out[role] = pos
		}
		return out, nil
	}
	if s.store == nil {
		return map[Role]Position{}, nil
	}
	return s.store.LoadLast(ctx, orderID)
}

// NotifyStatus implements order.StatusNotifier: transition events are
// broadcast into the order's room, and entering cancelled tears the channel
// down.
func (s *Service) NotifyStatus(orderID types.ID, from, to order.Status) {
	if r := s.hub.peek(orderID); r != nil {
		ev := Event{
			Kind:    EventStatusUpdated,
			OrderID: orderID,
			From:    string(from),
			To:      string(to),
		}
		r.mu.Lock()
		r.broadcastLocked(ev, "")
		r.mu.Unlock()
	}
	if order.Normalize(to) == order.StatusCancelled {
		s.hub.Teardown(orderID)
	}
}

// Deactivate tears an order's room down directly.
func (s *Service) Deactivate(orderID types.ID) {
	s.hub.Teardown(orderID)
}

func (s *Service) rehydrate(ctx context.Context, orderID types.ID) {
	if s.store == nil {
		return
	}
	last, err := s.store.LoadLast(ctx, orderID)
	if err != nil {
		log.Printf("tracking: rehydrate %s: %v", orderID, err)
		return
	}
	if len(last) > 0 {
		s.hub.seed(orderID, last)
	}
}
