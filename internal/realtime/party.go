// README: Notifiable parties: the public face of a customer, driver, restaurant or agent.
package realtime

import "flashfood/internal/types"

// PartyPayload is what other parties see about a participant.
type PartyPayload struct {
	ID     types.ID  `json:"id"`
	Kind   PartyKind `json:"kind"`
	Name   string    `json:"name,omitempty"`
	Avatar *string   `json:"avatar,omitempty"`
}

type Notifiable interface {
	NotificationPayload() PartyPayload
}

type CustomerParty struct {
	ID     types.ID
	Name   string
	Avatar *string
}

func (p CustomerParty) NotificationPayload() PartyPayload {
	return PartyPayload{ID: p.ID, Kind: KindCustomer, Name: p.Name, Avatar: p.Avatar}
}

type DriverParty struct {
	ID     types.ID
	Name   string
	Avatar *string
}

func (p DriverParty) NotificationPayload() PartyPayload {
	return PartyPayload{ID: p.ID, Kind: KindDriver, Name: p.Name, Avatar: p.Avatar}
}

type RestaurantParty struct {
	ID     types.ID
	Name   string
	Avatar *string
}

func (p RestaurantParty) NotificationPayload() PartyPayload {
	return PartyPayload{ID: p.ID, Kind: KindRestaurant, Name: p.Name, Avatar: p.Avatar}
}

// CustomerCareParty has no avatar.
type CustomerCareParty struct {
	ID   types.ID
	Name string
}

func (p CustomerCareParty) NotificationPayload() PartyPayload {
	return PartyPayload{ID: p.ID, Kind: KindCustomerCare, Name: p.Name}
}

// PartyFor builds the bare party for an identity, used in connection greetings.
func PartyFor(id Identity) Notifiable {
	switch id.Kind {
	case KindDriver:
		return DriverParty{ID: id.ID}
	case KindRestaurant:
		return RestaurantParty{ID: id.ID}
	case KindCustomerCare:
		return CustomerCareParty{ID: id.ID}
	default:
		return CustomerParty{ID: id.ID}
	}
}
