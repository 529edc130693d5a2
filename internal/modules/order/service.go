// README: Order service: reads and checked status updates for collaborators outside delivery.
package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"flashfood/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("order not found")
	ErrConflict     = errors.New("order state conflict")
	ErrBadRequest   = errors.New("bad request")
)

// Repository is the subset of Store the service needs.
type Repository interface {
	Get(ctx context.Context, id types.ID) (*Order, error)
	CompareAndSetProgress(ctx context.Context, id types.ID, from Status, p Progress, at time.Time) (bool, error)
}

// Notifier receives the order after every persisted status change.
type Notifier interface {
	NotifyOnce(ctx context.Context, o *Order)
}

type Service struct {
	store    Repository
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Repository, notifier Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, log: log, now: time.Now}
}

type UpdateStatusCommand struct {
	OrderID types.ID
	Status  Status
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	if id.Empty() {
		return nil, ErrBadRequest
	}
	return s.store.Get(ctx, id)
}

// UpdateStatus applies a lifecycle transition and writes the matching
// tracking info in the same statement.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Order, error) {
	if cmd.OrderID.Empty() {
		return nil, ErrBadRequest
	}
	if _, ok := TrackingFor(cmd.Status); !ok {
		return nil, ErrBadRequest
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == cmd.Status {
		return o, nil
	}
	if !CanTransition(o.Status, cmd.Status) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.CompareAndSetProgress(ctx, o.ID, o.Status, ProgressFor(cmd.Status), s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	updated, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status updated",
		zap.String("order_id", o.ID.String()),
		zap.String("from", string(o.Status)),
		zap.String("to", string(updated.Status)),
	)
	if s.notifier != nil {
		s.notifier.NotifyOnce(ctx, updated)
	}
	return updated, nil
}
