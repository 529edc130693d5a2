// README: Reads restaurant, customer and driver contact data used to fill stage details at claim time.
package snapshot

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"flashfood/internal/infra"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

var ErrOrderNotFound = errors.New("order not found")

// Geocoder resolves addresses stored without coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

type Store struct {
	db       infra.DBTX
	geocoder Geocoder
	log      *zap.Logger
}

// NewStore accepts a nil geocoder; addresses without coordinates then have no location.
func NewStore(db infra.DBTX, geocoder Geocoder, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, geocoder: geocoder, log: log}
}

type addressRow struct {
	street, city *string
	lat, lng     *float64
}

func (a addressRow) text() string {
	var parts []string
	for _, p := range []*string{a.street, a.city} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, ", ")
}

// Contacts returns the snapshot for orderID; driverID may be empty.
func (s *Store) Contacts(ctx context.Context, orderID, driverID types.ID) (progress.Contacts, error) {
	var (
		restID, restName, restPhone, restAvatar *string
		custID, custFirst, custLast, custAvatar *string
		restAddr, custAddr                      addressRow
		driverLat, driverLng                    *float64
	)
	err := s.db.QueryRow(ctx, `
		SELECT r.id, r.restaurant_name, r.contact_phone, r.avatar_url,
		       ra.street, ra.city, ra.lat, ra.lng,
		       c.id, c.first_name, c.last_name, c.avatar_url,
		       ca.street, ca.city, ca.lat, ca.lng,
		       d.current_lat, d.current_lng
		FROM orders o
		LEFT JOIN restaurants r ON r.id = o.restaurant_id
		LEFT JOIN address_book ra ON ra.id = COALESCE(o.restaurant_location_id, r.address_id)
		LEFT JOIN customers c ON c.id = o.customer_id
		LEFT JOIN address_book ca ON ca.id = COALESCE(o.customer_location_id, c.address_id)
		LEFT JOIN drivers d ON d.id = $2
		WHERE o.id = $1`,
		string(orderID), string(driverID),
	).Scan(
		&restID, &restName, &restPhone, &restAvatar,
		&restAddr.street, &restAddr.city, &restAddr.lat, &restAddr.lng,
		&custID, &custFirst, &custLast, &custAvatar,
		&custAddr.street, &custAddr.city, &custAddr.lat, &custAddr.lng,
		&driverLat, &driverLng,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return progress.Contacts{}, ErrOrderNotFound
	}
	if err != nil {
		return progress.Contacts{}, err
	}

	var c progress.Contacts
	if restID != nil {
		c.Restaurant = &progress.RestaurantSnapshot{
			ID:           types.ID(*restID),
			Name:         deref(restName),
			Address:      restAddr.text(),
			Avatar:       restAvatar,
			ContactPhone: deref(restPhone),
		}
		c.RestaurantLocation = s.locate(ctx, restAddr)
	}
	if custID != nil {
		c.Customer = &progress.CustomerSnapshot{
			ID:        types.ID(*custID),
			FirstName: deref(custFirst),
			LastName:  deref(custLast),
			Address:   custAddr.text(),
			Avatar:    custAvatar,
		}
		c.CustomerLocation = s.locate(ctx, custAddr)
	}
	if driverLat != nil && driverLng != nil {
		c.DriverLocation = &types.Point{Lat: *driverLat, Lng: *driverLng}
	}
	return c, nil
}

func (s *Store) locate(ctx context.Context, a addressRow) *types.Point {
	if a.lat != nil && a.lng != nil {
		return &types.Point{Lat: *a.lat, Lng: *a.lng}
	}
	addr := a.text()
	if s.geocoder == nil || addr == "" {
		return nil
	}
	p, err := s.geocoder.Geocode(ctx, addr)
	if err != nil {
		s.log.Warn("geocode address failed", zap.String("address", addr), zap.Error(err))
		return nil
	}
	return &p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
