// README: Address geocoding for snapshot rows that lack coordinates.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"flashfood/internal/types"
)

// GeocodeService resolves a free-form address to a point.
type GeocodeService struct {
	client *maps.Client
}

func NewGeocodeService(apiKey string) (*GeocodeService, error) {
	client, err := newClient(apiKey)
	if err != nil {
		return nil, err
	}
	return &GeocodeService{client: client}, nil
}

func (s *GeocodeService) Geocode(ctx context.Context, address string) (types.Point, error) {
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: address, Region: "vn"})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return types.Point{}, fmt.Errorf("geocode %q: no results", address)
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
