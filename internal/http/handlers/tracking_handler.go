// README: Tracking handlers: last-known snapshot and REST location updates.
package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"porter/internal/modules/order"
	"porter/internal/modules/tracking"
	"porter/internal/types"
)

type TrackingHandler struct {
	tracking *tracking.Service
	orders   *order.Service
}

func NewTrackingHandler(svc *tracking.Service, orders *order.Service) *TrackingHandler {
	return &TrackingHandler{tracking: svc, orders: orders}
}

func (h *TrackingHandler) Snapshot(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if _, err := h.orders.Get(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	snap, err := h.tracking.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "locations": snap})
}

type locationReq struct {
	Lat float64    `json:"lat"`
	Lng float64    `json:"lng"`
	At  *time.Time `json:"at"`
}

// UpdateLocation accepts a location over REST. Idempotent given timestamp
// ordering: replays and reordered retries resolve to the newest position.
func (h *TrackingHandler) UpdateLocation(c *gin.Context) {
	id := types.ID(c.Param("id"))
	role := tracking.Role(c.Param("role"))
	if !tracking.ValidRole(role) {
		writeError(c, http.StatusBadRequest, "role must be mover or customer")
		return
	}

	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}

	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if order.Normalize(o.Status) == order.StatusCancelled {
		writeDomainError(c, tracking.ErrTrackingInactive)
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	ev, err := h.tracking.PublishLocation(c.Request.Context(), id, "", role,
		types.Point{Lat: req.Lat, Lng: req.Lng}, at)
	if errors.Is(err, tracking.ErrStaleUpdate) {
		// Dropped, not an error: at-least-once delivery upstream makes
		// reordering routine.
		writeJSON(c, http.StatusOK, gin.H{"accepted": false, "reason": "stale"})
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if role == tracking.RoleMover && !o.TrackingOn {
		// First accepted mover position turns the order's tracking flag on.
		if err := h.orders.ActivateTracking(c.Request.Context(), id); err != nil {
			log.Printf("tracking: activate flag for %s: %v", id, err)
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"accepted": true, "distance_km": ev.DistanceKm, "eta": ev.ETA})
}
