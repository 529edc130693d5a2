// README: Party identities and the group names connections join.
package realtime

import (
	"strings"

	"flashfood/internal/types"
)

type PartyKind string

const (
	KindCustomer     PartyKind = "customer"
	KindDriver       PartyKind = "driver"
	KindRestaurant   PartyKind = "restaurant"
	KindCustomerCare PartyKind = "customer_care"
)

// ParseKind accepts the role claim in any case.
func ParseKind(role string) (PartyKind, bool) {
	switch k := PartyKind(strings.ToLower(strings.TrimSpace(role))); k {
	case KindCustomer, KindDriver, KindRestaurant, KindCustomerCare:
		return k, true
	default:
		return "", false
	}
}

// Identity is the authenticated party behind a connection.
type Identity struct {
	Kind PartyKind
	ID   types.ID
}

// Group is the room every connection of the identity joins, e.g. driver_<id>.
func (i Identity) Group() string {
	return GroupOf(i.Kind, i.ID)
}

func (i Identity) String() string {
	return i.Group()
}

func GroupOf(kind PartyKind, id types.ID) string {
	return string(kind) + "_" + id.String()
}
