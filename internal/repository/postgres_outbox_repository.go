package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrOutboxMessageNotFound is returned when an outbox row is missing
var ErrOutboxMessageNotFound = errors.New("outbox message not found")

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type,
	payload, topic, partition_key, status,
	retry_count, max_retries, last_error,
	created_at, processed_at, published_at,
	COALESCE(trace_context, '{}'::jsonb)`

// PostgresOutboxRepository implements OutboxRepository on PostgreSQL
type PostgresOutboxRepository struct {
	db Querier
}

// NewPostgresOutboxRepository creates a new PostgresOutboxRepository
func NewPostgresOutboxRepository(db Querier) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// Create inserts an outbox message. Called on the transaction of the
// state change it describes.
func (r *PostgresOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("outbox_id", msg.ID),
		attribute.String("event_type", string(msg.EventType)),
	)

	query := `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type,
			payload, topic, partition_key, status,
			retry_count, max_retries, created_at, trace_context
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	traceContext := msg.TraceContext
	if traceContext == nil {
		traceContext = map[string]string{}
	}

	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.AggregateType,
		msg.AggregateID,
		string(msg.EventType),
		msg.Payload,
		msg.Topic,
		msg.PartitionKey,
		msg.Status.String(),
		msg.RetryCount,
		msg.MaxRetries,
		msg.CreatedAt,
		traceContext,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return domain.StorageError("create outbox message", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetPendingMessages locks pending messages, oldest first
func (r *PostgresOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	return r.query(ctx, "get pending messages", query, limit)
}

// GetFailedMessages locks failed messages that can be retried
func (r *PostgresOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = 'failed' AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	return r.query(ctx, "get failed messages", query, limit)
}

// MarkAsPublished marks a message as successfully published
func (r *PostgresOutboxRepository) MarkAsPublished(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_messages SET
			status = 'published',
			processed_at = $2,
			published_at = $2
		WHERE id = $1
	`
	return r.exec(ctx, "mark message as published", query, id, time.Now().UTC())
}

// MarkAsFailed records a failed publish attempt
func (r *PostgresOutboxRepository) MarkAsFailed(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE outbox_messages SET
			status = 'failed',
			last_error = $2,
			retry_count = retry_count + 1,
			processed_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, "mark message as failed", query, id, errMsg, time.Now().UTC())
}

// ResetForRetry puts a failed message back to pending
func (r *PostgresOutboxRepository) ResetForRetry(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_messages SET
			status = 'pending',
			processed_at = NULL
		WHERE id = $1 AND status = 'failed'
	`
	return r.exec(ctx, "reset message for retry", query, id)
}

// DeletePublished purges published messages older than the retention window
func (r *PostgresOutboxRepository) DeletePublished(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM outbox_messages
		WHERE status = 'published' AND published_at < $1
	`

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, domain.StorageError("delete published messages", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresOutboxRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return domain.StorageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

func (r *PostgresOutboxRepository) query(ctx context.Context, op, query string, limit int) ([]*domain.OutboxMessage, error) {
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	defer rows.Close()

	msgs, err := scanOutboxMessages(rows)
	if err != nil {
		return nil, domain.StorageError(op, err)
	}
	return msgs, nil
}

func scanOutboxMessages(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var (
			eventType, status string
			lastError         *string
		)

		err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&eventType,
			&msg.Payload,
			&msg.Topic,
			&msg.PartitionKey,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&lastError,
			&msg.CreatedAt,
			&msg.ProcessedAt,
			&msg.PublishedAt,
			&msg.TraceContext,
		)
		if err != nil {
			return nil, err
		}

		msg.EventType = domain.EventType(eventType)
		msg.Status = domain.OutboxStatus(status)
		msg.LastError = derefString(lastError)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
