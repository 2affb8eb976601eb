package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/di"
	"github.com/prohmpiriya/hotel-booking-engine/internal/worker"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/config"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/kafka"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/logger"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/retry"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := di.InitRuntime(ctx, cfg, "reconciler")
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer shutdown()

	appLog := logger.Get()
	appLog.Info("Starting payment reconciler...")

	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	defer container.Close()

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup,
		Topics:         []string{cfg.Kafka.PaymentTopic},
		ClientID:       cfg.Kafka.ClientID + "-reconciler",
		SessionTimeout: 30 * time.Second,
		MaxPollRecords: 500,
	})
	if err != nil {
		appLog.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID + "-dlq",
	})
	if err != nil {
		appLog.Fatal("Failed to create DLQ producer", zap.Error(err))
	}
	defer producer.Close()

	dlq := retry.NewDLQHandler(
		retry.NewKafkaDLQPublisher(producer, "", "reconciler"),
		retry.DefaultConfig(),
		"reconciler",
		func(msg *retry.DLQMessage) {
			appLog.Warn("Parking payment event",
				zap.String("message_id", msg.ID),
				zap.Int("attempts", msg.Attempts),
				zap.String("error", msg.Error),
			)
		},
	)

	reconciler := worker.NewReconciler(consumer, container.PaymentService, dlq, nil)
	if err := reconciler.Run(ctx); err != nil {
		appLog.Error("Reconciler exited", zap.Error(err))
	}
	appLog.Info("Reconciler stopped")
}
