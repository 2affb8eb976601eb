package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/hotel-booking-engine/internal/domain"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/kafka"
	"github.com/prohmpiriya/hotel-booking-engine/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockBookingReconciler struct {
	ReconcileBookingFunc func(ctx context.Context, bookingID string) (bool, error)
}

func (m *MockBookingReconciler) ReconcileBooking(ctx context.Context, bookingID string) (bool, error) {
	if m.ReconcileBookingFunc != nil {
		return m.ReconcileBookingFunc(ctx, bookingID)
	}
	return false, nil
}

// fakeConsumer hands every record out once, like a franz-go client that
// keeps its own fetch position regardless of commits.
type fakeConsumer struct {
	mu        sync.Mutex
	batches   [][]*kafka.Record
	pollErrs  []error
	polls     int
	committed []*kafka.Record
	commitErr error
}

func (c *fakeConsumer) Poll(ctx context.Context) ([]*kafka.Record, error) {
	c.mu.Lock()
	if len(c.batches) > 0 {
		batch := c.batches[0]
		c.batches = c.batches[1:]
		var err error
		if c.polls < len(c.pollErrs) {
			err = c.pollErrs[c.polls]
		}
		c.polls++
		c.mu.Unlock()
		return batch, err
	}
	c.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConsumer) CommitRecords(ctx context.Context, records []*kafka.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = append(c.committed, records...)
	return nil
}

func (c *fakeConsumer) committedOffsets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.committed))
	for _, r := range c.committed {
		out = append(out, r.Offset)
	}
	return out
}

type fakeDLQ struct {
	mu     sync.Mutex
	parked []*retry.DLQMessage
	err    error
	// failures makes that many publishes fail before they start succeeding
	failures int
}

func (d *fakeDLQ) PublishToDLQ(ctx context.Context, msg *retry.DLQMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	if d.failures > 0 {
		d.failures--
		return errors.New("broker down")
	}
	d.parked = append(d.parked, msg)
	return nil
}

func (d *fakeDLQ) parkedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.parked))
	for _, m := range d.parked {
		ids = append(ids, m.OriginalKey)
	}
	return ids
}

// callLog records reconcile calls from the worker goroutine
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, id)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(id string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == id {
			n++
		}
	}
	return n
}

func (d *fakeDLQ) GetDLQTopic(originalTopic string) string { return originalTopic + ".dlq" }

func paymentRecord(t *testing.T, offset int64, bookingID string) *kafka.Record {
	t.Helper()
	value, err := json.Marshal(&domain.PaymentEvent{
		EventID:   "evt",
		EventType: domain.EventPaymentConfirmed,
		BookingID: bookingID,
	})
	require.NoError(t, err)
	return &kafka.Record{
		Topic:   domain.TopicPaymentEvents,
		Offset:  offset,
		Key:     []byte(bookingID),
		Value:   value,
		Headers: map[string]string{"event_type": string(domain.EventPaymentConfirmed)},
	}
}

func newTestReconciler(consumer Consumer, rec BookingReconciler, dlq *fakeDLQ) *Reconciler {
	cfg := &retry.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	return NewReconciler(consumer, rec, retry.NewDLQHandler(dlq, cfg, "reconciler", nil), &ReconcilerConfig{PollBackoff: time.Millisecond})
}

func TestReconciler_ProcessBatch(t *testing.T) {
	var seen []string
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			seen = append(seen, bookingID)
			return bookingID == "booking-1", nil
		},
	}
	consumer := &fakeConsumer{}
	r := newTestReconciler(consumer, rec, &fakeDLQ{})

	records := []*kafka.Record{paymentRecord(t, 1, "booking-1"), paymentRecord(t, 2, "booking-2")}
	require.NoError(t, r.processBatch(context.Background(), records))

	assert.Equal(t, []string{"booking-1", "booking-2"}, seen)
	assert.Equal(t, []int64{1, 2}, consumer.committedOffsets())
}

func TestReconciler_DeletedBookingIsSkipped(t *testing.T) {
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			return false, domain.ErrBookingNotFound
		},
	}
	consumer := &fakeConsumer{}
	dlq := &fakeDLQ{}
	r := newTestReconciler(consumer, rec, dlq)

	require.NoError(t, r.processBatch(context.Background(), []*kafka.Record{paymentRecord(t, 7, "gone")}))
	assert.Equal(t, []int64{7}, consumer.committedOffsets())
	assert.Empty(t, dlq.parked)
}

func TestReconciler_MalformedRecordGoesToDLQ(t *testing.T) {
	calls := 0
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			calls++
			return false, nil
		},
	}
	consumer := &fakeConsumer{}
	dlq := &fakeDLQ{}
	r := newTestReconciler(consumer, rec, dlq)

	bad := &kafka.Record{Topic: domain.TopicPaymentEvents, Offset: 3, Value: []byte("{not json")}
	noBooking := &kafka.Record{Topic: domain.TopicPaymentEvents, Offset: 4, Value: []byte(`{"event_type":"payment.created"}`)}

	require.NoError(t, r.processBatch(context.Background(), []*kafka.Record{bad, noBooking}))

	assert.Zero(t, calls)
	require.Len(t, dlq.parked, 2)
	assert.Equal(t, "payment-events/0/3", dlq.parked[0].ID)
	assert.Equal(t, 1, dlq.parked[0].Attempts)
	assert.Equal(t, []int64{3, 4}, consumer.committedOffsets())
}

func TestReconciler_RetriesThenParks(t *testing.T) {
	calls := 0
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			calls++
			return false, domain.StorageError("reconcile", errors.New("connection reset"))
		},
	}
	consumer := &fakeConsumer{}
	dlq := &fakeDLQ{}
	r := newTestReconciler(consumer, rec, dlq)

	require.NoError(t, r.processBatch(context.Background(), []*kafka.Record{paymentRecord(t, 1, "booking-1")}))

	assert.Equal(t, 3, calls)
	require.Len(t, dlq.parked, 1)
	assert.Equal(t, domain.TopicPaymentEvents, dlq.parked[0].OriginalTopic)
	assert.Equal(t, "booking-1", dlq.parked[0].OriginalKey)
	assert.Equal(t, []int64{1}, consumer.committedOffsets())
}

func TestReconciler_UnparkableRecordIsRetriedInPlace(t *testing.T) {
	log := &callLog{}
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			log.add(bookingID)
			if bookingID == "booking-2" {
				return false, errors.New("db down")
			}
			return true, nil
		},
	}
	consumer := &fakeConsumer{batches: [][]*kafka.Record{
		{paymentRecord(t, 1, "booking-1"), paymentRecord(t, 2, "booking-2"), paymentRecord(t, 3, "booking-3")},
		{paymentRecord(t, 4, "booking-4")},
	}}
	dlq := &fakeDLQ{failures: 2}
	r := newTestReconciler(consumer, rec, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(consumer.committedOffsets()) == 4 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4}, consumer.committedOffsets())
	assert.Equal(t, []string{"booking-2"}, dlq.parkedIDs())
	// three handling attempts of three reconcile calls each
	assert.Equal(t, 9, log.count("booking-2"))

	calls := log.snapshot()
	assert.Equal(t, []string{"booking-1"}, calls[:1])
	assert.Equal(t, []string{"booking-3", "booking-4"}, calls[len(calls)-2:])
}

func TestReconciler_StopsWithoutSkippingOnCancel(t *testing.T) {
	log := &callLog{}
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			log.add(bookingID)
			if bookingID == "booking-2" {
				return false, errors.New("db down")
			}
			return false, nil
		},
	}
	consumer := &fakeConsumer{}
	r := newTestReconciler(consumer, rec, &fakeDLQ{err: errors.New("broker down")})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	records := []*kafka.Record{
		paymentRecord(t, 1, "booking-1"),
		paymentRecord(t, 2, "booking-2"),
		paymentRecord(t, 3, "booking-3"),
	}
	err := r.processBatch(ctx, records)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []int64{1}, consumer.committedOffsets())
	assert.Zero(t, log.count("booking-3"))
}

func TestReconciler_PollErrorKeepsRecords(t *testing.T) {
	log := &callLog{}
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			log.add(bookingID)
			return false, nil
		},
	}
	consumer := &fakeConsumer{
		batches:  [][]*kafka.Record{{paymentRecord(t, 1, "booking-1")}},
		pollErrs: []error{errors.New("fetch error: topic=payment-events partition=3")},
	}
	r := newTestReconciler(consumer, rec, &fakeDLQ{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(consumer.committedOffsets()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"booking-1"}, log.snapshot())
}

func TestReconciler_RunUntilCancelled(t *testing.T) {
	reconciled := make(chan string, 2)
	rec := &MockBookingReconciler{
		ReconcileBookingFunc: func(ctx context.Context, bookingID string) (bool, error) {
			reconciled <- bookingID
			return true, nil
		},
	}
	consumer := &fakeConsumer{batches: [][]*kafka.Record{
		{paymentRecord(t, 1, "booking-1")},
		{paymentRecord(t, 2, "booking-2")},
	}}
	r := newTestReconciler(consumer, rec, &fakeDLQ{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Equal(t, "booking-1", <-reconciled)
	assert.Equal(t, "booking-2", <-reconciled)
	assert.Eventually(t, func() bool { return len(consumer.committedOffsets()) == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
