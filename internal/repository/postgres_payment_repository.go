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
	"go.opentelemetry.io/otel/trace"
)

const paymentColumns = `
	id, booking_id, user_id, hotel_id, amount, currency, method, status,
	transaction_id, card_last4, card_brand, notes,
	refund_amount, refund_reason, refund_date, receipt_number, paid_at,
	created_at, updated_at`

// PostgresPaymentRepository implements PaymentRepository on PostgreSQL
type PostgresPaymentRepository struct {
	db Querier
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(db Querier) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// Create inserts a payment. A second active payment for the booking fails
// with domain.ErrPaymentAlreadyActive.
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", payment.ID),
		attribute.String("booking_id", payment.BookingID),
		attribute.String("status", payment.Status.String()),
	)

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.UserID,
		payment.HotelID,
		payment.Amount,
		string(payment.Currency),
		string(payment.Method),
		payment.Status.String(),
		nullString(payment.TransactionID),
		nullString(payment.CardLast4),
		nullString(payment.CardBrand),
		nullString(payment.Notes),
		payment.RefundAmount,
		nullString(payment.RefundReason),
		payment.RefundDate,
		nullString(payment.ReceiptNumber),
		payment.PaidAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return mapWriteError("create payment", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a payment by its ID
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", id))

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.getOne(ctx, span, "get payment", query, id)
}

// GetActiveByBooking returns the booking's pending or completed payment
func (r *PostgresPaymentRepository) GetActiveByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_active_by_booking")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE booking_id = $1 AND status IN ('pending', 'completed')
		LIMIT 1
	`
	return r.getOne(ctx, span, "get active payment", query, bookingID)
}

// GetLatestByBooking returns the booking's newest payment
func (r *PostgresPaymentRepository) GetLatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_latest_by_booking")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	query := `
		SELECT ` + paymentColumns + ` FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, span, "get booking payment", query, bookingID)
}

// HasCompleted reports whether the booking has a completed payment
func (r *PostgresPaymentRepository) HasCompleted(ctx context.Context, bookingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.has_completed")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE booking_id = $1 AND status = 'completed')`
	if err := r.db.QueryRow(ctx, query, bookingID).Scan(&exists); err != nil {
		telemetry.RecordError(span, err)
		return false, domain.StorageError("check completed payment", err)
	}

	span.SetStatus(codes.Ok, "")
	return exists, nil
}

// Update writes every mutable column of payment
func (r *PostgresPaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_id", payment.ID),
		attribute.String("status", payment.Status.String()),
	)

	query := `
		UPDATE payments SET
			status = $2,
			transaction_id = $3,
			notes = $4,
			refund_amount = $5,
			refund_reason = $6,
			refund_date = $7,
			receipt_number = $8,
			paid_at = $9,
			updated_at = $10
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.Status.String(),
		nullString(payment.TransactionID),
		nullString(payment.Notes),
		payment.RefundAmount,
		nullString(payment.RefundReason),
		payment.RefundDate,
		nullString(payment.ReceiptNumber),
		payment.PaidAt,
		payment.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return mapWriteError("update payment", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrPaymentNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete removes a payment
func (r *PostgresPaymentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.delete")
	defer span.End()

	span.SetAttributes(attribute.String("payment_id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return mapWriteError("delete payment", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrPaymentNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListByUser returns a user's payments, newest first
func (r *PostgresPaymentRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.list_by_user")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, span, "list user payments", query, userID)
}

// ListByHotels returns the payments of the given hotels, newest first
func (r *PostgresPaymentRepository) ListByHotels(ctx context.Context, hotelIDs []string) ([]*domain.Payment, error) {
	if len(hotelIDs) == 0 {
		return []*domain.Payment{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.list_by_hotels")
	defer span.End()

	span.SetAttributes(attribute.Int("hotel_count", len(hotelIDs)))

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE hotel_id = ANY($1) ORDER BY created_at DESC`
	return r.list(ctx, span, "list hotel payments", query, hotelIDs)
}

// ListAll pages through every payment and returns the total count
func (r *PostgresPaymentRepository) ListAll(ctx context.Context, limit, offset int) ([]*domain.Payment, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.list_all")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit), attribute.Int("offset", offset))

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM payments`).Scan(&total); err != nil {
		telemetry.RecordError(span, err)
		return nil, 0, domain.StorageError("count payments", err)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	payments, err := r.list(ctx, span, "list payments", query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *PostgresPaymentRepository) getOne(ctx context.Context, span trace.Span, op, query string, args ...any) (*domain.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrPaymentNotFound
		}
		telemetry.RecordError(span, err)
		return nil, domain.StorageError(op, err)
	}

	span.SetStatus(codes.Ok, "")
	return payment, nil
}

func (r *PostgresPaymentRepository) list(ctx context.Context, span trace.Span, op, query string, args ...any) ([]*domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError(op, err)
	}
	defer rows.Close()

	payments := []*domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, domain.StorageError(op, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, domain.StorageError(op, err)
	}

	span.SetStatus(codes.Ok, "")
	return payments, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var (
		currency, method, status string
		transactionID            *string
		cardLast4                *string
		cardBrand                *string
		notes                    *string
		refundReason             *string
		receiptNumber            *string
		refundDate               *time.Time
		paidAt                   *time.Time
	)

	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.UserID,
		&p.HotelID,
		&p.Amount,
		&currency,
		&method,
		&status,
		&transactionID,
		&cardLast4,
		&cardBrand,
		&notes,
		&p.RefundAmount,
		&refundReason,
		&refundDate,
		&receiptNumber,
		&paidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Currency = domain.Currency(currency)
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.TransactionID = derefString(transactionID)
	p.CardLast4 = derefString(cardLast4)
	p.CardBrand = derefString(cardBrand)
	p.Notes = derefString(notes)
	p.RefundReason = derefString(refundReason)
	p.ReceiptNumber = derefString(receiptNumber)
	p.RefundDate = refundDate
	p.PaidAt = paidAt
	return p, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
