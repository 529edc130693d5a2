// README: Offer candidates and the tuning constants for nearby-driver offers.
package matching

import (
	"errors"

	"flashfood/internal/types"
)

const (
	// selectPoolSize is how many nearby drivers to sample before picking the offer count.
	selectPoolSize = 10
	// defaultOfferCount applies when the configured count is not positive.
	defaultOfferCount = 5
)

var (
	ErrAlreadyAssigned      = errors.New("order already has a driver")
	ErrNotOfferable         = errors.New("order status does not accept offers")
	ErrNoRestaurantLocation = errors.New("restaurant location unknown")
)

// Candidate is a driver found in the GEO index.
type Candidate struct {
	DriverID   types.ID
	DistanceKm float64
}

// OfferResult reports who was offered the order and how it reached them.
type OfferResult struct {
	OrderID   types.ID   `json:"order_id"`
	Offered   []types.ID `json:"offered"`
	Delivered int        `json:"delivered"`
	Pushed    int        `json:"pushed"`
}
