// README: Driver model and capacity rules.
package driver

import (
	"errors"
	"time"

	"flashfood/internal/types"
)

// MaxActiveOrders is the default number of orders a driver may carry at once.
const MaxActiveOrders = 3

var ErrNotFound = errors.New("driver not found")

type Driver struct {
	ID              types.ID    `json:"id"`
	FirstName       string      `json:"first_name"`
	LastName        string      `json:"last_name"`
	Avatar          *string     `json:"avatar,omitempty"`
	Available       bool        `json:"available"`
	CurrentLocation types.Point `json:"current_location"`
	// CurrentOrders is ordered by the time each order was added.
	CurrentOrders []types.ID `json:"current_orders"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasCapacity reports whether one more order fits under limit.
func (d *Driver) HasCapacity(limit int) bool {
	if limit <= 0 {
		limit = MaxActiveOrders
	}
	return len(d.CurrentOrders) < limit
}

func (d *Driver) Carries(orderID types.ID) bool {
	for _, id := range d.CurrentOrders {
		if id == orderID {
			return true
		}
	}
	return false
}
