// README: Route resolver with short-TTL caching over an external routing provider.
package routes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"porter/internal/config"
	"porter/internal/types"
)

// ErrRouteUnavailable means the provider failed or timed out. Callers must
// treat it as "no route" and proceed without a polyline.
var ErrRouteUnavailable = errors.New("route unavailable")

type Route struct {
	Polyline       string
	DistanceMeters int
	Duration       time.Duration
}

// Provider is the external routing service.
type Provider interface {
	Directions(ctx context.Context, origin, destination types.Point) (Route, error)
}

type cacheEntry struct {
	route   Route
	expires time.Time
}

// Resolver caches provider results per coarse-rounded (origin, destination)
// pair so rapid re-publishes during live tracking do not hammer the
// provider.
type Resolver struct {
	provider Provider
	ttl      time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewResolver(provider Provider, cfg config.RouteConfig) *Resolver {
	return &Resolver{
		provider: provider,
		ttl:      time.Duration(cfg.TTLSeconds) * time.Second,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		cache:    make(map[string]cacheEntry),
	}
}

func (r *Resolver) Resolve(ctx context.Context, origin, destination types.Point) (Route, error) {
	key := cacheKey(origin, destination)
	now := time.Now()

	r.mu.Lock()
	if e, ok := r.cache[key]; ok && now.Before(e.expires) {
		r.mu.Unlock()
		return e.route, nil
	}
	r.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	route, err := r.provider.Directions(cctx, origin, destination)
	if err != nil {
		return Route{}, ErrRouteUnavailable
	}

	r.mu.Lock()
	r.pruneLocked(now)
	r.cache[key] = cacheEntry{route: route, expires: now.Add(r.ttl)}
	r.mu.Unlock()
	return route, nil
}

// pruneLocked drops expired entries opportunistically on insert. The key
// space is bounded by active orders so this stays cheap.
func (r *Resolver) pruneLocked(now time.Time) {
	for k, e := range r.cache {
		if now.After(e.expires) {
			delete(r.cache, k)
		}
	}
}

// cacheKey rounds coordinates to 4 decimal places (~11 m), so GPS jitter
// between publishes still hits the same entry.
func cacheKey(origin, destination types.Point) string {
	return fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", origin.Lat, origin.Lng, destination.Lat, destination.Lng)
}
