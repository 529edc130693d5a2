// README: Redis GEO index of driver positions.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"flashfood/internal/types"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) SetGeo(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, GeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *Store) RemoveGeo(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, GeoKey, string(id)).Err()
}

// Position returns the indexed position and whether the driver is indexed.
func (s *Store) Position(ctx context.Context, id types.ID) (types.Point, bool, error) {
	pos, err := s.redis.GeoPos(ctx, GeoKey, string(id)).Result()
	if err != nil {
		return types.Point{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}, true, nil
}
