// README: Driving route estimates via Google Maps Directions, with a straight-line fallback.
package maps

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"flashfood/internal/types"
)

// AverageSpeedKmH is used when no routing provider is available.
const AverageSpeedKmH = 40.0

// Estimator returns travel time and distance in kilometres between two points.
type Estimator interface {
	Estimate(ctx context.Context, from, to types.Point) (time.Duration, float64, error)
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := newClient(apiKey)
	if err != nil {
		return nil, err
	}
	return &RouteService{client: client}, nil
}

func newClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// Estimate assumes driving mode.
func (s *RouteService) Estimate(ctx context.Context, from, to types.Point) (time.Duration, float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      "VN",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	return leg.Duration, float64(leg.Distance.Meters) / 1000, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// StraightLine estimates from haversine distance at AverageSpeedKmH.
type StraightLine struct{}

func (StraightLine) Estimate(_ context.Context, from, to types.Point) (time.Duration, float64, error) {
	km := from.DistanceKm(to)
	hours := km / AverageSpeedKmH
	return time.Duration(hours * float64(time.Hour)), km, nil
}

// Fallback tries primary and falls back to StraightLine on error.
type Fallback struct {
	primary Estimator
	log     *zap.Logger
}

// NewFallback accepts a nil primary, in which case only StraightLine is used.
func NewFallback(primary Estimator, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{primary: primary, log: log}
}

func (f *Fallback) Estimate(ctx context.Context, from, to types.Point) (time.Duration, float64, error) {
	if f.primary != nil {
		d, km, err := f.primary.Estimate(ctx, from, to)
		if err == nil {
			return d, km, nil
		}
		f.log.Warn("route estimate failed, using straight line", zap.Error(err))
	}
	return StraightLine{}.Estimate(ctx, from, to)
}
