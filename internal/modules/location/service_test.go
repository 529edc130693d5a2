package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashfood/internal/types"
)

type fakeDrivers struct {
	points    map[types.ID]types.Point
	available map[types.ID]bool
	err       error
}

func newFakeDrivers() *fakeDrivers {
	return &fakeDrivers{points: map[types.ID]types.Point{}, available: map[types.ID]bool{}}
}

func (f *fakeDrivers) UpdateLocation(_ context.Context, id types.ID, p types.Point, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.points[id] = p
	return nil
}

func (f *fakeDrivers) SetAvailable(_ context.Context, id types.ID, available bool) error {
	f.available[id] = available
	return nil
}

type fakeGeo struct {
	indexed map[types.ID]types.Point
	err     error
}

func (g *fakeGeo) SetGeo(_ context.Context, id types.ID, p types.Point) error {
	if g.err != nil {
		return g.err
	}
	g.indexed[id] = p
	return nil
}

func (g *fakeGeo) RemoveGeo(_ context.Context, id types.ID) error {
	delete(g.indexed, id)
	return nil
}

var saigon = types.Point{Lat: 10.7769, Lng: 106.7009}

func TestUpdateDriverLocationIndexesDriver(t *testing.T) {
	drivers, geo := newFakeDrivers(), &fakeGeo{indexed: map[types.ID]types.Point{}}
	svc := NewService(drivers, geo, zap.NewNop())

	require.NoError(t, svc.UpdateDriverLocation(context.Background(), Update{DriverID: "d1", Point: saigon}))
	assert.Equal(t, saigon, drivers.points["d1"])
	assert.Equal(t, saigon, geo.indexed["d1"])
}

func TestUpdateDriverLocationGoingOfflineLeavesIndex(t *testing.T) {
	drivers, geo := newFakeDrivers(), &fakeGeo{indexed: map[types.ID]types.Point{"d1": saigon}}
	svc := NewService(drivers, geo, nil)
	off := false

	require.NoError(t, svc.UpdateDriverLocation(context.Background(), Update{DriverID: "d1", Point: saigon, Available: &off}))
	assert.NotContains(t, geo.indexed, types.ID("d1"))
	assert.False(t, drivers.available["d1"])
}

func TestUpdateDriverLocationRejectsBadPoint(t *testing.T) {
	svc := NewService(newFakeDrivers(), nil, nil)
	err := svc.UpdateDriverLocation(context.Background(), Update{DriverID: "d1", Point: types.Point{Lat: 91, Lng: 0}})
	assert.ErrorIs(t, err, ErrInvalidPoint)
}

func TestUpdateDriverLocationIndexFailureIsNotFatal(t *testing.T) {
	geo := &fakeGeo{indexed: map[types.ID]types.Point{}, err: errors.New("redis down")}
	svc := NewService(newFakeDrivers(), geo, zap.NewNop())
	assert.NoError(t, svc.UpdateDriverLocation(context.Background(), Update{DriverID: "d1", Point: saigon}))
}

func TestUpdateDriverLocationStoreFailure(t *testing.T) {
	drivers := newFakeDrivers()
	drivers.err = errors.New("no such driver")
	svc := NewService(drivers, nil, nil)
	assert.Error(t, svc.UpdateDriverLocation(context.Background(), Update{DriverID: "d1", Point: saigon}))
}

func TestStoreGeoRoundTrip(t *testing.T) {
	redisAddr := os.Getenv("FLASHFOOD_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("FLASHFOOD_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := NewStore(rdb)
	ctx := context.Background()
	id := types.ID(fmt.Sprintf("driver_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = store.RemoveGeo(ctx, id) })

	require.NoError(t, store.SetGeo(ctx, id, saigon))
	got, ok, err := store.Position(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, saigon.Lat, got.Lat, 1e-4)
	assert.InDelta(t, saigon.Lng, got.Lng, 1e-4)

	require.NoError(t, store.RemoveGeo(ctx, id))
	_, ok, err = store.Position(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}
