package retry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type producedMessage struct {
	topic   string
	key     string
	data    interface{}
	headers map[string]string
}

type mockProducer struct {
	mu       sync.Mutex
	messages []producedMessage
	err      error
}

func (m *mockProducer) ProduceJSON(ctx context.Context, topic string, key string, data interface{}, headers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, producedMessage{topic: topic, key: key, data: data, headers: headers})
	return nil
}

func TestKafkaDLQPublisher_PublishToDLQ(t *testing.T) {
	producer := &mockProducer{}
	pub := NewKafkaDLQPublisher(producer, "", "reconciler")

	err := pub.PublishToDLQ(context.Background(), &DLQMessage{
		ID:            "evt-1",
		OriginalTopic: "payment-events",
		OriginalKey:   "booking-1",
		Payload:       json.RawMessage(`{"bookingId":"booking-1"}`),
		Headers:       map[string]string{"event_type": "payment.confirmed", "source": "api"},
		Error:         "storage unavailable",
		Attempts:      4,
	})
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, "payment-events.dlq", msg.topic)
	assert.Equal(t, "booking-1", msg.key)
	assert.Equal(t, "4", msg.headers["attempts"])
	assert.Equal(t, "payment.confirmed", msg.headers["original_event_type"])
	assert.Equal(t, "reconciler", msg.headers["source"])

	sent := msg.data.(*DLQMessage)
	assert.False(t, sent.MovedToDLQAt.IsZero())
}

func TestKafkaDLQPublisher_NilMessage(t *testing.T) {
	pub := NewKafkaDLQPublisher(&mockProducer{}, ".dead", "test")
	assert.Error(t, pub.PublishToDLQ(context.Background(), nil))
	assert.Equal(t, "payment-events.dead", pub.GetDLQTopic("payment-events"))
}

func TestDLQHandler_ProcessWithDLQ(t *testing.T) {
	tests := []struct {
		name        string
		op          func(calls *int) Operation
		wantErr     bool
		wantCalls   int
		wantParked  bool
		wantDLQErr  bool
		producerErr error
	}{
		{
			name: "success",
			op: func(calls *int) Operation {
				return func(ctx context.Context) error { *calls++; return nil }
			},
			wantCalls: 1,
		},
		{
			name: "retries exhausted",
			op: func(calls *int) Operation {
				return func(ctx context.Context) error { *calls++; return errors.New("db down") }
			},
			wantErr:    true,
			wantCalls:  3,
			wantParked: true,
		},
		{
			name: "permanent goes straight to dlq",
			op: func(calls *int) Operation {
				return func(ctx context.Context) error { *calls++; return Permanent(errors.New("bad json")) }
			},
			wantErr:    true,
			wantCalls:  1,
			wantParked: true,
		},
		{
			name: "dlq write fails",
			op: func(calls *int) Operation {
				return func(ctx context.Context) error { *calls++; return Permanent(errors.New("bad json")) }
			},
			wantErr:     true,
			wantCalls:   1,
			wantDLQErr:  true,
			producerErr: errors.New("broker down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer := &mockProducer{err: tt.producerErr}
			var parked *DLQMessage
			h := NewDLQHandler(NewKafkaDLQPublisher(producer, "", "test"), fastConfig(2), "test", func(msg *DLQMessage) {
				parked = msg
			})

			calls := 0
			err := h.ProcessWithDLQ(context.Background(), &MessageContext{ID: "m1", Topic: "payment-events"}, tt.op(&calls))

			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantParked, len(producer.messages) == 1)
			assert.Equal(t, tt.wantDLQErr, errors.Is(err, ErrDLQPublish))
			if tt.wantParked {
				require.NotNil(t, parked)
				assert.Equal(t, tt.wantCalls, parked.Attempts)
				assert.False(t, parked.FirstAttemptAt.IsZero())
			}
		})
	}
}
