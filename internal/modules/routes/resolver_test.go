package routes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"porter/internal/config"
	"porter/internal/types"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
	route Route
}

func (p *countingProvider) Directions(context.Context, types.Point, types.Point) (Route, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return Route{}, p.err
	}
	return p.route, nil
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testConfig() config.RouteConfig {
	return config.RouteConfig{TTLSeconds: 30, TimeoutSeconds: 3}
}

var (
	origin = types.Point{Lat: 19.0596, Lng: 72.8295}
	dest   = types.Point{Lat: 19.0176, Lng: 72.8562}
)

func TestResolve_CacheHit(t *testing.T) {
	provider := &countingProvider{route: Route{Polyline: "poly", DistanceMeters: 5200, Duration: 14 * time.Minute}}
	r := NewResolver(provider, testConfig())
	ctx := context.Background()

	first, err := r.Resolve(ctx, origin, dest)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, origin, dest)
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if first != second {
		t.Fatalf("cache returned a different route: %+v vs %+v", first, second)
	}
	if got := provider.callCount(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
}

// GPS jitter below the rounding granularity must hit the same cache entry.
func TestResolve_CoarseKeyAbsorbsJitter(t *testing.T) {
	provider := &countingProvider{route: Route{Polyline: "poly"}}
	r := NewResolver(provider, testConfig())
	ctx := context.Background()

	if _, err := r.Resolve(ctx, origin, dest); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	jittered := types.Point{Lat: origin.Lat + 0.00001, Lng: origin.Lng - 0.00001}
	if _, err := r.Resolve(ctx, jittered, dest); err != nil {
		t.Fatalf("resolve jittered: %v", err)
	}
	if got := provider.callCount(); got != 1 {
		t.Fatalf("expected jittered lookup to hit cache, got %d calls", got)
	}
}

func TestResolve_DistinctPairsMiss(t *testing.T) {
	provider := &countingProvider{route: Route{Polyline: "poly"}}
	r := NewResolver(provider, testConfig())
	ctx := context.Background()

	if _, err := r.Resolve(ctx, origin, dest); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	far := types.Point{Lat: origin.Lat + 0.01, Lng: origin.Lng}
	if _, err := r.Resolve(ctx, far, dest); err != nil {
		t.Fatalf("resolve far: %v", err)
	}
	if got := provider.callCount(); got != 2 {
		t.Fatalf("expected 2 provider calls for distinct pairs, got %d", got)
	}
}

func TestResolve_ProviderFailure(t *testing.T) {
	provider := &countingProvider{err: errors.New("upstream 500")}
	r := NewResolver(provider, testConfig())

	_, err := r.Resolve(context.Background(), origin, dest)
	if !errors.Is(err, ErrRouteUnavailable) {
		t.Fatalf("expected ErrRouteUnavailable, got %v", err)
	}
}

// Failures must not be cached: the next resolve retries the provider.
func TestResolve_FailureNotCached(t *testing.T) {
	provider := &countingProvider{err: errors.New("upstream 500")}
	r := NewResolver(provider, testConfig())
	ctx := context.Background()

	_, _ = r.Resolve(ctx, origin, dest)
	provider.mu.Lock()
	provider.err = nil
	provider.route = Route{Polyline: "recovered"}
	provider.mu.Unlock()

	route, err := r.Resolve(ctx, origin, dest)
	if err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
	if route.Polyline != "recovered" {
		t.Fatalf("expected fresh route after recovery, got %+v", route)
	}
}
