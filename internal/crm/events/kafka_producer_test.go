package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// MockKafkaWriter implements KafkaWriter for testing
type MockKafkaWriter struct {
	mock.Mock
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func testEvent() Event {
	return Event{
		Type:       CustomerCreated,
		Entity:     "customer",
		ID:         uuid.New(),
		Number:     "CUS-000001",
		OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Payload:    map[string]string{"display_name": "Dana Levi"},
	}
}

func TestNewProducer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	producer := NewProducer([]string{"localhost:9092"}, logger, "crm.events")
	defer close(producer.closeChan)

	assert.NotNil(t, producer.writer)
	assert.Equal(t, defaultQueueSize, cap(producer.events))
	assert.Equal(t, "kafka_producer", producer.logger.Check(zap.InfoLevel, "").LoggerName)
}

func TestProducer_Produce(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		producer := &Producer{events: make(chan Event, 2), logger: zaptest.NewLogger(t)}

		producer.Produce(testEvent())

		assert.Equal(t, 1, len(producer.events))
	})

	t.Run("dropped event when queue full", func(t *testing.T) {
		core, recorded := observer.New(zap.WarnLevel)
		producer := &Producer{events: make(chan Event, 1), logger: zap.New(core)}

		producer.Produce(testEvent())
		producer.Produce(testEvent())

		assert.Equal(t, 1, recorded.FilterMessage("Kafka producer queue full, dropping event").Len())
	})
}

func TestProducer_SendEvent(t *testing.T) {
	event := testEvent()

	t.Run("successful send", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
		producer := &Producer{writer: mockWriter, logger: zaptest.NewLogger(t)}

		producer.sendEvent(context.Background(), event)

		require.Len(t, mockWriter.Calls, 1)
		msgs := mockWriter.Calls[0].Arguments.Get(1).([]kafka.Message)
		require.Len(t, msgs, 1)
		assert.Equal(t, []byte(event.ID.String()), msgs[0].Key)
		assert.Equal(t, "event_type", msgs[0].Headers[0].Key)
		assert.Equal(t, []byte(CustomerCreated), msgs[0].Headers[0].Value)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
		assert.Equal(t, "customer_created", decoded["type"])
		assert.Equal(t, "CUS-000001", decoded["number"])
		assert.Equal(t, "2024-05-01T10:00:00Z", decoded["occurred_at"])
	})

	t.Run("serialization error", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		producer := &Producer{writer: new(MockKafkaWriter), logger: zap.New(core)}

		oldMarshal := jsonMarshal
		jsonMarshal = func(_ interface{}) ([]byte, error) {
			return nil, errors.New("mock marshal error")
		}
		defer func() { jsonMarshal = oldMarshal }()

		producer.sendEvent(context.Background(), event)

		assert.Equal(t, 1, recorded.FilterMessage("Failed to serialize event").Len())
		assert.Equal(t, 1, recorded.FilterField(zap.String("entity_id", event.ID.String())).Len())
	})

	t.Run("write error", func(t *testing.T) {
		core, recorded := observer.New(zap.ErrorLevel)
		mockWriter := new(MockKafkaWriter)
		mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("kafka error"))
		producer := &Producer{writer: mockWriter, logger: zap.New(core)}

		producer.sendEvent(context.Background(), event)

		assert.Equal(t, 1, recorded.FilterMessage("Failed to produce event").Len())
	})
}

func TestProducer_CloseFlushesQueue(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil)
	mockWriter.On("Close").Return(nil)

	producer := newProducer(mockWriter, zaptest.NewLogger(t), 10)
	for i := 0; i < 3; i++ {
		producer.Produce(testEvent())
	}

	producer.Close()
	producer.Close()

	mockWriter.AssertNumberOfCalls(t, "WriteMessages", 3)
	mockWriter.AssertNumberOfCalls(t, "Close", 1)
}

func TestProducer_EventLoop(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	written := make(chan struct{}, 1)
	mockWriter.On("WriteMessages", mock.Anything, mock.Anything).Return(nil).
		Run(func(mock.Arguments) { written <- struct{}{} })
	mockWriter.On("Close").Return(nil)

	producer := newProducer(mockWriter, zaptest.NewLogger(t), 1)
	defer producer.Close()

	producer.Produce(testEvent())

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("event was not written")
	}
}

func TestNopProducer(t *testing.T) {
	assert.NotPanics(t, func() { NopProducer{}.Produce(testEvent()) })
}

func TestEnsureTopicWithoutBrokers(t *testing.T) {
	assert.Error(t, EnsureTopic(nil, "crm.events", 1))
}
