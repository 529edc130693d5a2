// README: Interfaces dispatch consumes: transactional repositories and post-commit collaborators.
package dispatch

import (
	"context"
	"time"

	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/modules/stats"
	"flashfood/internal/types"
)

type OrderRepo interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	GetForUpdate(ctx context.Context, id types.ID) (*order.Order, error)
	Assign(ctx context.Context, id, driverID types.ID, p order.Progress, at time.Time) (bool, error)
	SetProgress(ctx context.Context, id types.ID, p order.Progress, at time.Time) error
	AddTip(ctx context.Context, id types.ID, amount int64, at time.Time) (int64, error)
}

type DriverRepo interface {
	GetForUpdate(ctx context.Context, id types.ID) (*driver.Driver, error)
	AddCurrentOrder(ctx context.Context, driverID, orderID types.ID) error
	RemoveCurrentOrder(ctx context.Context, driverID, orderID types.ID) error
}

type ProgressRepo interface {
	Create(ctx context.Context, a *progress.Aggregate) error
	Save(ctx context.Context, a *progress.Aggregate) error
	GetForUpdate(ctx context.Context, id types.ID) (*progress.Aggregate, error)
	FindActiveByDriver(ctx context.Context, driverID types.ID) (*progress.Aggregate, error)
	FindByOrder(ctx context.Context, orderID types.ID) (*progress.Aggregate, error)
	LinkExists(ctx context.Context, orderID types.ID) (bool, error)
	AddOrderLink(ctx context.Context, aggregateID, orderID types.ID) error
	AddTips(ctx context.Context, driverID, orderID types.ID, amount int64) (bool, error)
}

// Tx groups the repositories bound to one transaction.
type Tx interface {
	Orders() OrderRepo
	Drivers() DriverRepo
	Progress() ProgressRepo
}

// TxManager runs fn in a transaction; any error from fn rolls it back.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OrderReader reads committed orders with relations for notifications.
type OrderReader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type SnapshotProvider interface {
	Contacts(ctx context.Context, orderID, driverID types.ID) (progress.Contacts, error)
}

type RouteEstimator interface {
	Estimate(ctx context.Context, from, to types.Point) (time.Duration, float64, error)
}

type StatsRecomputer interface {
	Recompute(ctx context.Context, driverID types.ID, period stats.Period) error
}

// Notifier is called only after commit and never fails the operation.
type Notifier interface {
	NotifyOnce(ctx context.Context, o *order.Order)
	StagesUpdated(ctx context.Context, a *progress.Aggregate)
}
