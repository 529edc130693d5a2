// README: pgx-backed TxManager composing the order, driver and progress stores in one transaction.
package dispatch

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
)

// Postgres error codes that are safe to retry from the top of the transaction.
const (
	codeDeadlock      = "40P01"
	codeSerialization = "40001"
)

const maxTxAttempts = 3

type PgTxManager struct {
	pool     *pgxpool.Pool
	orders   *order.Store
	drivers  *driver.Store
	progress *progress.Store
	log      *zap.Logger
}

func NewPgTxManager(pool *pgxpool.Pool, log *zap.Logger) *PgTxManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &PgTxManager{
		pool:     pool,
		orders:   order.NewStore(pool),
		drivers:  driver.NewStore(pool),
		progress: progress.NewStore(pool),
		log:      log,
	}
}

func (m *PgTxManager) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = m.once(ctx, fn)
		if !retryable(err) {
			return err
		}
		m.log.Warn("retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (m *PgTxManager) once(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{
		orders:   m.orders.WithTx(tx),
		drivers:  m.drivers.WithTx(tx),
		progress: m.progress.WithTx(tx),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDeadlock || pgErr.Code == codeSerialization
}

type pgTx struct {
	orders   *order.Store
	drivers  *driver.Store
	progress *progress.Store
}

func (t *pgTx) Orders() OrderRepo      { return t.orders }
func (t *pgTx) Drivers() DriverRepo    { return t.drivers }
func (t *pgTx) Progress() ProgressRepo { return t.progress }
