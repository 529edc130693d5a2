// README: Matching store backed by Redis GEO and sets.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"flashfood/internal/modules/location"
	"flashfood/internal/types"
)

const (
	dispatchKeyPrefix = "matching:order:%s:dispatched_at"
	notifiedKeyPrefix = "matching:order:%s:notified"
	// defaultKeyTTL bounds dispatch bookkeeping; orders resolve well within it.
	defaultKeyTTL = 24 * time.Hour
)

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redis *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}
	return &Store{redis: redis, ttl: ttl}
}

// NearbyDrivers returns up to limit indexed drivers within radiusKm, closest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Candidate, error) {
	results, err := s.redis.GeoSearchLocation(ctx, location.GeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(results))
	for i, r := range results {
		out[i] = Candidate{DriverID: types.ID(r.Name), DistanceKm: r.Dist}
	}
	return out, nil
}

// RecordDispatch records the dispatch timestamp and the set of notified drivers for an order.
func (s *Store) RecordDispatch(ctx context.Context, orderID types.ID, driverIDs []types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, dispatchedAtKey(orderID), time.Now().UTC().Format(time.RFC3339), s.ttl)
	if len(driverIDs) > 0 {
		members := make([]interface{}, len(driverIDs))
		for i, d := range driverIDs {
			members[i] = string(d)
		}
		pipe.SAdd(ctx, notifiedKey(orderID), members...)
		pipe.Expire(ctx, notifiedKey(orderID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Notified returns the drivers already offered the order.
func (s *Store) Notified(ctx context.Context, orderID types.ID) (map[types.ID]bool, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]bool, len(members))
	for _, m := range members {
		out[types.ID(m)] = true
	}
	return out, nil
}

// GetDispatchedAt returns when the order was first dispatched, and whether it has been dispatched.
func (s *Store) GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(orderID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func dispatchedAtKey(orderID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(orderID))
}

func notifiedKey(orderID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(orderID))
}
