package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/internal/metrics"
	"github.com/prohmpiriya/hotel-booking-engine/internal/repository"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/kafka"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Publisher writes one record to the broker. *kafka.Producer satisfies it.
type Publisher interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to fetch in each poll
	BatchSize int
	// RetryInterval is the interval between retrying failed messages
	RetryInterval time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// CleanupRetentionDays is the number of days to retain published messages
	CleanupRetentionDays int
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:         100 * time.Millisecond,
		BatchSize:            100,
		RetryInterval:        5 * time.Second,
		CleanupInterval:      time.Hour,
		CleanupRetentionDays: 7,
	}
}

// OutboxWorker relays outbox rows to Kafka. Each batch runs in one
// transaction so concurrent workers skip the rows another one holds.
type OutboxWorker struct {
	store     repository.Store
	publisher Publisher
	config    *OutboxWorkerConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(store repository.Store, publisher Publisher, config *OutboxWorkerConfig) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.CleanupRetentionDays <= 0 {
		config.CleanupRetentionDays = defaults.CleanupRetentionDays
	}

	return &OutboxWorker{
		store:     store,
		publisher: publisher,
		config:    config,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Start starts the poll, retry and cleanup loops
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting outbox worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(3)
	go w.loop(ctx, w.config.PollInterval, func(ctx context.Context) { w.processPendingMessages(ctx) })
	go w.loop(ctx, w.config.RetryInterval, func(ctx context.Context) { w.processFailedMessages(ctx) })
	go w.loop(ctx, w.config.CleanupInterval, w.cleanup)

	return nil
}

// Stop stops the worker and waits for in-flight batches
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Outbox worker stopped")
}

// IsRunning reports whether Start has been called without Stop
func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *OutboxWorker) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// processPendingMessages publishes one batch of pending messages and
// returns how many were delivered
func (w *OutboxWorker) processPendingMessages(ctx context.Context) int {
	return w.relay(ctx, "pending", func(repo repository.OutboxRepository) ([]*domain.OutboxMessage, error) {
		return repo.GetPendingMessages(ctx, w.config.BatchSize)
	})
}

// processFailedMessages retries one batch of failed messages that still
// have attempts left
func (w *OutboxWorker) processFailedMessages(ctx context.Context) int {
	return w.relay(ctx, "failed", func(repo repository.OutboxRepository) ([]*domain.OutboxMessage, error) {
		return repo.GetFailedMessages(ctx, w.config.BatchSize)
	})
}

func (w *OutboxWorker) relay(ctx context.Context, kind string, fetch func(repository.OutboxRepository) ([]*domain.OutboxMessage, error)) int {
	published := 0

	err := w.store.WithTx(ctx, func(tx repository.Tx) error {
		repo := tx.Outbox()

		messages, err := fetch(repo)
		if err != nil {
			return err
		}

		for _, msg := range messages {
			if err := w.publishMessage(ctx, msg); err != nil {
				metrics.RecordOutboxFailed(msg.Topic)
				w.log.Warn("Failed to publish outbox message",
					zap.String("kind", kind),
					zap.String("message_id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Int("attempt", msg.RetryCount+1),
					zap.Int("max_retries", msg.MaxRetries),
					zap.Error(err),
				)
				if markErr := repo.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
					return markErr
				}
				continue
			}

			if err := repo.MarkAsPublished(ctx, msg.ID); err != nil {
				return err
			}
			metrics.RecordOutboxPublished(msg.Topic)
			published++
		}
		return nil
	})
	if err != nil {
		w.log.Error("Outbox batch failed", zap.String("kind", kind), zap.Error(err))
		return 0
	}

	if kind == "failed" && published > 0 {
		w.log.Info("Retried outbox messages", zap.Int("count", published))
	}
	return published
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	deleted, err := w.store.Outbox().DeletePublished(ctx, w.config.CleanupRetentionDays)
	if err != nil {
		w.log.Error("Failed to cleanup old messages", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.log.Info("Cleaned up old published messages", zap.Int64("count", deleted))
	}
}

// publishMessage publishes a message to Kafka
// publishMessage continues the trace of the request that wrote msg
func (w *OutboxWorker) publishMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	ctx = telemetry.ExtractMap(ctx, msg.TraceContext)
	ctx, span := telemetry.StartSpan(ctx, "worker.outbox.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(
		attribute.String("outbox_id", msg.ID),
		attribute.String("messaging.destination", msg.Topic),
	)

	headers := msg.Headers()
	for k, v := range telemetry.InjectMap(ctx) {
		headers[k] = v
	}
	headers["content_type"] = "application/json"
	headers["source"] = "outbox-worker"

	err := w.publisher.Produce(ctx, &kafka.Message{
		Topic:     msg.Topic,
		Key:       msg.PartitionKey,
		Value:     msg.Payload,
		Headers:   headers,
		Timestamp: time.Now(),
	})
	telemetry.RecordError(span, err)
	return err
}
