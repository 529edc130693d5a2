// README: Dispatch error sentinels and their classification.
package dispatch

import (
	"errors"

	"flashfood/internal/modules/progress"
)

// Kind classifies errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindConsistency
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindConsistency:
		return "consistency"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

var (
	ErrBadRequest               = errors.New("bad request")
	ErrClaimInFlight            = errors.New("claim already in progress for this driver and order")
	ErrOrderNotFound            = errors.New("order not found")
	ErrAlreadyAssigned          = errors.New("order is already assigned to another driver")
	ErrOrderInProgressElsewhere = errors.New("order is already linked to another driver progress")
	ErrDriverNotFound           = errors.New("driver not found")
	ErrCapacityExceeded         = errors.New("driver has reached the maximum number of active orders")
	ErrLinkMissing              = errors.New("driver progress has no linked orders after claim")
	ErrAggregateNotFound        = errors.New("driver progress not found")
	ErrNoLinkedOrders           = errors.New("no orders linked to driver progress")
	ErrNegativeTip              = errors.New("tip amount cannot be negative")
	ErrNoDriverAssigned         = errors.New("no driver assigned to this order")
	ErrTipWindowClosed          = errors.New("order status does not allow tipping")
	ErrNotProgressOwner         = errors.New("driver progress belongs to another driver")
	ErrOrderNotClaimable        = errors.New("order status does not allow claiming")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrBadRequest, KindValidation},
	{ErrNegativeTip, KindValidation},
	{progress.ErrAllSlotsComplete, KindValidation},
	{progress.ErrSlotComplete, KindValidation},
	{progress.ErrSlotQueued, KindValidation},
	{ErrClaimInFlight, KindConflict},
	{ErrAlreadyAssigned, KindConflict},
	{ErrOrderInProgressElsewhere, KindConflict},
	{ErrCapacityExceeded, KindConflict},
	{ErrTipWindowClosed, KindConflict},
	{ErrOrderNotClaimable, KindConflict},
	{ErrNotProgressOwner, KindForbidden},
	{ErrOrderNotFound, KindNotFound},
	{ErrDriverNotFound, KindNotFound},
	{ErrAggregateNotFound, KindNotFound},
	{ErrNoLinkedOrders, KindNotFound},
	{ErrNoDriverAssigned, KindNotFound},
	{ErrLinkMissing, KindConsistency},
	{progress.ErrSlotNotFound, KindConsistency},
}

// KindOf returns the kind of the first registered sentinel err wraps.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
