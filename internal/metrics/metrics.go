package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Booking counters
	BookingsCreated   *prometheus.CounterVec
	BookingsUpdated   prometheus.Counter
	BookingsCancelled prometheus.Counter
	BookingsDeleted   prometheus.Counter
	BookingsRejected  *prometheus.CounterVec

	// Availability checks by result
	AvailabilityChecks *prometheus.CounterVec

	// Payment counters by status
	PaymentsCreated  *prometheus.CounterVec
	PaymentsRefunded prometheus.Counter
	PaymentAmount    *prometheus.CounterVec
	GatewayCharges   *prometheus.CounterVec

	// Outbox and reconciler
	OutboxPublished   *prometheus.CounterVec
	OutboxFailed      *prometheus.CounterVec
	Reconciliations   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	initOnce sync.Once
	initErr  error
)

// Init registers every collector on reg. Later calls are no-ops.
func Init(reg prometheus.Registerer) error {
	initOnce.Do(func() {
		initErr = initMetrics(reg)
	})
	return initErr
}

func initMetrics(reg prometheus.Registerer) error {
	BookingsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_created_total",
		Help: "Total number of bookings created",
	}, []string{"hotel_id"})
	BookingsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_updated_total",
		Help: "Total number of booking updates",
	})
	BookingsCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_cancelled_total",
		Help: "Total number of bookings cancelled",
	})
	BookingsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_deleted_total",
		Help: "Total number of bookings deleted",
	})
	BookingsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_rejected_total",
		Help: "Booking writes rejected, by reason",
	}, []string{"reason"})
	AvailabilityChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_availability_checks_total",
		Help: "Availability checks, by result",
	}, []string{"result"})

	PaymentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_created_total",
		Help: "Total number of payments created, by method and status",
	}, []string{"method", "status"})
	PaymentsRefunded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_refunded_total",
		Help: "Total number of refunds",
	})
	PaymentAmount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_amount_total",
		Help: "Sum of completed payment amounts, by currency",
	}, []string{"currency"})
	GatewayCharges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_charges_total",
		Help: "Gateway charge attempts, by gateway and result",
	}, []string{"gateway", "result"})

	OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox messages published, by topic",
	}, []string{"topic"})
	OutboxFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_failed_total",
		Help: "Outbox publish failures, by topic",
	}, []string{"topic"})
	Reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Booking paid-flag reconciliations, by outcome",
	}, []string{"outcome"})
	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "booking_operation_duration_seconds",
		Help:    "Duration of service operations",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation"})

	collectors := []prometheus.Collector{
		BookingsCreated, BookingsUpdated, BookingsCancelled, BookingsDeleted, BookingsRejected,
		AvailabilityChecks, PaymentsCreated, PaymentsRefunded, PaymentAmount, GatewayCharges,
		OutboxPublished, OutboxFailed, Reconciliations, OperationDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func ready() bool {
	return BookingsCreated != nil
}

// RecordBookingCreated records a created booking
func RecordBookingCreated(hotelID string) {
	if ready() {
		BookingsCreated.WithLabelValues(hotelID).Inc()
	}
}

// RecordBookingUpdated records a booking update
func RecordBookingUpdated() {
	if ready() {
		BookingsUpdated.Inc()
	}
}

// RecordBookingCancelled records a cancellation
func RecordBookingCancelled() {
	if ready() {
		BookingsCancelled.Inc()
	}
}

// RecordBookingDeleted records a deletion
func RecordBookingDeleted() {
	if ready() {
		BookingsDeleted.Inc()
	}
}

// RecordBookingRejected records a rejected booking write
func RecordBookingRejected(reason string) {
	if ready() {
		BookingsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordAvailabilityCheck records the outcome of an availability check
func RecordAvailabilityCheck(available bool, cached bool) {
	if !ready() {
		return
	}
	result := "unavailable"
	if available {
		result = "available"
	}
	if cached {
		result += "_cached"
	}
	AvailabilityChecks.WithLabelValues(result).Inc()
}

// RecordPaymentCreated records a new payment
func RecordPaymentCreated(method, status, currency string, amount float64) {
	if !ready() {
		return
	}
	PaymentsCreated.WithLabelValues(method, status).Inc()
	if status == "completed" {
		PaymentAmount.WithLabelValues(currency).Add(amount)
	}
}

// RecordPaymentConfirmed adds a confirmed payment to the revenue counter
func RecordPaymentConfirmed(currency string, amount float64) {
	if ready() {
		PaymentAmount.WithLabelValues(currency).Add(amount)
	}
}

// RecordRefund records a refund
func RecordRefund() {
	if ready() {
		PaymentsRefunded.Inc()
	}
}

// RecordGatewayCharge records a gateway charge attempt
func RecordGatewayCharge(gateway, result string) {
	if ready() {
		GatewayCharges.WithLabelValues(gateway, result).Inc()
	}
}

// RecordOutboxPublished records a published outbox message
func RecordOutboxPublished(topic string) {
	if ready() {
		OutboxPublished.WithLabelValues(topic).Inc()
	}
}

// RecordOutboxFailed records a failed outbox publish
func RecordOutboxFailed(topic string) {
	if ready() {
		OutboxFailed.WithLabelValues(topic).Inc()
	}
}

// RecordReconciliation records a reconcile outcome: changed, unchanged or error
func RecordReconciliation(outcome string) {
	if ready() {
		Reconciliations.WithLabelValues(outcome).Inc()
	}
}

// ObserveDuration records how long operation took since start
func ObserveDuration(operation string, start time.Time) {
	if ready() {
		OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
