package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/kafka"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/retry"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Consumer is the part of *kafka.Consumer the reconciler needs
type Consumer interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// BookingReconciler recomputes a booking's paid flag from its payments.
// service.PaymentService satisfies it.
type BookingReconciler interface {
	ReconcileBooking(ctx context.Context, bookingID string) (bool, error)
}

const commitTimeout = 5 * time.Second

// ReconcilerConfig holds configuration for the reconciler worker
type ReconcilerConfig struct {
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// Reconciler consumes payment events and repairs the paid flag of the
// booking each one names. Records that keep failing are parked on the DLQ.
type Reconciler struct {
	consumer   Consumer
	reconciler BookingReconciler
	dlq        *retry.DLQHandler
	config     *ReconcilerConfig
	log        *logger.Logger
}

// NewReconciler creates a reconciler worker
func NewReconciler(consumer Consumer, reconciler BookingReconciler, dlq *retry.DLQHandler, cfg *ReconcilerConfig) *Reconciler {
	if cfg == nil {
		cfg = &ReconcilerConfig{}
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = time.Second
	}
	return &Reconciler{
		consumer:   consumer,
		reconciler: reconciler,
		dlq:        dlq,
		config:     cfg,
		log:        logger.Get(),
	}
}

// Run consumes until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	r.log.Info("Starting reconciler")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reconciler stopped")
			return nil
		default:
		}

		records, err := r.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, kafka.ErrClientClosed) {
				return err
			}
			r.log.Error("Failed to poll payment events", zap.Int("records", len(records)), zap.Error(err))
			if len(records) == 0 {
				sleep(ctx, r.config.PollBackoff)
				continue
			}
		}

		if len(records) == 0 {
			continue
		}

		if err := r.processBatch(ctx, records); err != nil && ctx.Err() == nil {
			sleep(ctx, r.config.PollBackoff)
		}
	}
}

// processBatch handles records in order. The consumer never hands a record
// out twice, so a record that can be neither reconciled nor parked is
// retried in place until it succeeds or ctx is done; nothing after it is
// touched meanwhile. Handled records are committed before each wait and at
// the end.
func (r *Reconciler) processBatch(ctx context.Context, records []*kafka.Record) error {
	committed := 0
	commit := func(ctx context.Context, upto int) error {
		if upto <= committed {
			return nil
		}
		if err := r.consumer.CommitRecords(ctx, records[committed:upto]); err != nil {
			r.log.Error("Failed to commit offsets", zap.Error(err))
			return err
		}
		committed = upto
		return nil
	}

	for i, record := range records {
		for attempt := 1; ; attempt++ {
			err := r.processRecord(ctx, record)
			if err == nil {
				break
			}
			r.log.Error("Failed to handle payment event",
				zap.String("topic", record.Topic),
				zap.Int32("partition", record.Partition),
				zap.Int64("offset", record.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				// the rest is redelivered from the committed offset after a rebalance or restart
				commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
				_ = commit(commitCtx, i)
				cancel()
				return ctx.Err()
			}
			if attempt == 1 {
				_ = commit(ctx, i)
			}
			sleep(ctx, r.config.PollBackoff)
		}
	}

	return commit(ctx, len(records))
}

// processRecord reconciles one record. A nil return means the offset may be
// committed: the booking is consistent, gone, or the record is on the DLQ.
func (r *Reconciler) processRecord(ctx context.Context, record *kafka.Record) (err error) {
	ctx = telemetry.ExtractMap(ctx, record.Headers)
	ctx, span := telemetry.StartSpan(ctx, "worker.reconciler.process")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	span.SetAttributes(
		attribute.String("messaging.destination", record.Topic),
		attribute.Int("messaging.partition", int(record.Partition)),
		attribute.Int64("messaging.offset", record.Offset),
	)

	msgCtx := &retry.MessageContext{
		ID:      record.Headers["outbox_id"],
		Topic:   record.Topic,
		Key:     string(record.Key),
		Payload: json.RawMessage(record.Value),
		Headers: record.Headers,
	}
	if msgCtx.ID == "" {
		msgCtx.ID = record.Topic + "/" + strconv.Itoa(int(record.Partition)) + "/" + strconv.FormatInt(record.Offset, 10)
	}

	var event domain.PaymentEvent
	decodeErr := json.Unmarshal(record.Value, &event)
	if decodeErr == nil && event.BookingID == "" {
		decodeErr = errors.New("payment event has no booking id")
	}

	err = r.dlq.ProcessWithDLQ(ctx, msgCtx, func(ctx context.Context) error {
		if decodeErr != nil {
			return retry.Permanent(fmt.Errorf("failed to decode payment event: %w", decodeErr))
		}

		telemetry.SetSpanAttributes(ctx, attribute.String("booking_id", event.BookingID))
		changed, err := r.reconciler.ReconcileBooking(ctx, event.BookingID)
		if err != nil {
			if domain.IsNotFound(err) {
				// booking deleted since the event was written
				return nil
			}
			return err
		}
		if changed {
			telemetry.AddSpanEvent(ctx, "booking.reconciled", attribute.String("event_type", string(event.EventType)))
			r.log.Info("Reconciled booking paid flag",
				zap.String("booking_id", event.BookingID),
				zap.String("event_type", string(event.EventType)),
			)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, retry.ErrContextCanceled) || errors.Is(err, retry.ErrDLQPublish) || ctx.Err() != nil {
		return err
	}
	r.log.Warn("Payment event moved to DLQ", zap.String("message_id", msgCtx.ID), zap.Error(err))
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
