// README: Driver location updates written to Postgres and the Redis GEO index.
package location

import (
	"errors"

	"flashfood/internal/types"
)

// GeoKey is the Redis GEO set of available drivers read by matching.
const GeoKey = "geo:drivers"

var ErrInvalidPoint = errors.New("invalid coordinates")

type Update struct {
	DriverID types.ID    `json:"driver_id"`
	Point    types.Point `json:"point"`
	// Available toggles whether the driver receives offers; nil keeps the current value.
	Available *bool `json:"available,omitempty"`
}
