// README: Google Maps Directions adapter for the route provider interface.
package routes

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"porter/internal/types"
)

type GoogleProvider struct {
	client *maps.Client
}

func NewGoogleProvider(client *maps.Client) *GoogleProvider {
	return &GoogleProvider{client: client}
}

// Directions fetches a driving route and returns its overview polyline plus
// the first leg's distance and duration.
func (p *GoogleProvider) Directions(ctx context.Context, origin, destination types.Point) (Route, error) {
	req := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
	}

	result, _, err := p.client.Directions(ctx, req)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(result) == 0 || len(result[0].Legs) == 0 {
		return Route{}, fmt.Errorf("no route found")
	}

	leg := result[0].Legs[0]
	return Route{
		Polyline:       result[0].OverviewPolyline.Points,
		DistanceMeters: leg.Distance.Meters,
		Duration:       leg.Duration,
	}, nil
}
