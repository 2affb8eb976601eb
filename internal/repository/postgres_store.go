package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/database"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/retry"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations returns the schema migrations
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Querier is implemented by *pgxpool.Pool and pgx.Tx
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Lock namespaces for pg_advisory_xact_lock(int, int)
const (
	lockNamespaceRoom    = 1
	lockNamespaceBooking = 2
)

// PostgresStore implements Store on a pgx pool
type PostgresStore struct {
	pool    *pgxpool.Pool
	retrier *retry.Retrier
	postgresRepositories
}

// NewPostgresStore creates a store on pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:                 pool,
		retrier:              newTxRetrier(),
		postgresRepositories: newPostgresRepositories(pool),
	}
}

// newTxRetrier retries transactions aborted by a serialization failure or a
// deadlock. Anything else fails on the first attempt.
func newTxRetrier() *retry.Retrier {
	return retry.New(&retry.Config{
		MaxRetries:      2,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.5,
		ShouldRetry:     database.IsRetryable,
	})
}

// WithTx runs fn in a read-committed transaction. fn may run more than once.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tx")
	defer span.End()

	err := runWithRetry(ctx, s.retrier, func(ctx context.Context) error {
		return s.runTx(ctx, fn)
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.StorageError("begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&postgresTx{tx: tx, postgresRepositories: newPostgresRepositories(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapWriteError("commit transaction", err)
	}
	return nil
}

// runWithRetry returns the error of the last attempt rather than the
// retrier's own sentinels.
func runWithRetry(ctx context.Context, retrier *retry.Retrier, attempt retry.Operation) error {
	result := retrier.DoWithCallback(ctx, attempt, func(n int, err error, wait time.Duration) {
		telemetry.AddSpanEvent(ctx, "tx.retry",
			attribute.Int("attempt", n),
			attribute.String("sqlstate", database.PgErrorCode(err)),
		)
	})
	switch {
	case result.Err == nil:
		return nil
	case result.LastError != nil:
		return result.LastError
	default:
		return domain.StorageError("run transaction", ctx.Err())
	}
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return domain.StorageError("ping database", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
	postgresRepositories
}

func (t *postgresTx) LockRoom(ctx context.Context, roomID string) error {
	return advisoryLock(ctx, t.tx, lockNamespaceRoom, roomID)
}

func (t *postgresTx) LockBooking(ctx context.Context, bookingID string) error {
	return advisoryLock(ctx, t.tx, lockNamespaceBooking, bookingID)
}

func advisoryLock(ctx context.Context, q Querier, namespace int, key string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.advisory_lock")
	defer span.End()

	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, namespace, key); err != nil {
		telemetry.RecordError(span, err)
		return domain.StorageError("acquire lock", err)
	}
	return nil
}

type postgresRepositories struct {
	bookings *PostgresBookingRepository
	payments *PostgresPaymentRepository
	hotels   *PostgresHotelRepository
	outbox   *PostgresOutboxRepository
}

func newPostgresRepositories(q Querier) postgresRepositories {
	return postgresRepositories{
		bookings: NewPostgresBookingRepository(q),
		payments: NewPostgresPaymentRepository(q),
		hotels:   NewPostgresHotelRepository(q),
		outbox:   NewPostgresOutboxRepository(q),
	}
}

func (r postgresRepositories) Bookings() BookingRepository { return r.bookings }
func (r postgresRepositories) Payments() PaymentRepository { return r.payments }
func (r postgresRepositories) Hotels() HotelRepository     { return r.hotels }
func (r postgresRepositories) Outbox() OutboxRepository    { return r.outbox }

// mapWriteError classifies constraint violations and wraps the rest as
// storage failures.
func mapWriteError(op string, err error) error {
	if database.IsUniqueViolation(err) {
		switch database.ConstraintName(err) {
		case "payments_one_active_per_booking":
			return domain.ErrPaymentAlreadyActive
		case "payments_receipt_number_key":
			return domain.ErrDuplicateReceipt
		}
		return fmt.Errorf("%w: %s", domain.ErrConflict, op)
	}
	return domain.StorageError(op, err)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*postgresTx)(nil)
)
