// README: Tracking channel types: roles, positions, broadcast events.
package tracking

import (
	"errors"
	"time"

	"porter/internal/types"
)

type Role string

const (
	RoleMover    Role = "mover"
	RoleCustomer Role = "customer"
)

func ValidRole(r Role) bool {
	return r == RoleMover || r == RoleCustomer
}

// Counterpart returns the opposite role slot.
func Counterpart(r Role) Role {
	if r == RoleMover {
		return RoleCustomer
	}
	return RoleMover
}

// Position is the last-known coordinate for one role on one order.
type Position struct {
	Coord types.Point `json:"coord"`
	At    time.Time   `json:"at"`
}

const (
	EventLocationUpdated = "location-updated"
	EventStatusUpdated   = "status-updated"
)

// Event is the enriched broadcast delivered to subscribers.
type Event struct {
	Kind    string   `json:"event"`
	OrderID types.ID `json:"order_id"`

	// location-updated fields
	Role          Role         `json:"role,omitempty"`
	Coord         *types.Point `json:"coord,omitempty"`
	At            *time.Time   `json:"at,omitempty"`
	DistanceKm    *float64     `json:"distance_km,omitempty"`
	ETA           string       `json:"eta,omitempty"`
	RoutePolyline string       `json:"route_polyline,omitempty"`

	// status-updated fields
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

var (
	// ErrStaleUpdate marks an out-of-order location packet. Dropped, not
	// surfaced to the remote caller: at-least-once delivery upstream makes
	// reordering routine.
	ErrStaleUpdate = errors.New("stale location update")

	ErrBadRole = errors.New("unknown role")

	// ErrTrackingInactive means the order's channel was torn down; a
	// cancelled order never re-enters tracking.
	ErrTrackingInactive = errors.New("tracking inactive for order")
)
