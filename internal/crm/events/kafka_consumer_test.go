package events

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type MockKafkaReader struct {
	mock.Mock
}

func (m *MockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	args := m.Called(ctx)
	return args.Get(0).(kafka.Message), args.Error(1)
}

func (m *MockKafkaReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockKafkaReader) Close() error {
	args := m.Called()
	return args.Error(0)
}

// feed makes reader return msgs in order, then cancel ctx.
func feed(reader *MockKafkaReader, cancel context.CancelFunc, msgs ...kafka.Message) {
	for _, msg := range msgs {
		reader.On("FetchMessage", mock.Anything).Return(msg, nil).Once()
	}
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, context.Canceled).
		Run(func(mock.Arguments) { cancel() })
}

// testConsumer retries without waiting.
func testConsumer(reader KafkaReader, logger *zap.Logger, handler LeadHandler) *Consumer {
	c := newConsumer(reader, logger, handler)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func committedOffsets(reader *MockKafkaReader) []int64 {
	var offsets []int64
	for _, call := range reader.Calls {
		if call.Method != "CommitMessages" {
			continue
		}
		for _, msg := range call.Arguments.Get(1).([]kafka.Message) {
			offsets = append(offsets, msg.Offset)
		}
	}
	return offsets
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := new(MockKafkaReader)
	reader.On("CommitMessages", mock.Anything, mock.Anything).Return(nil)
	feed(reader, cancel, kafka.Message{
		Offset: 7,
		Value:  []byte(`{"contact_name":"Dana Levi","phone":"0521234567","source":"website","estimated_system_size":"10.5"}`),
	})

	var got []LeadSubmission
	consumer := testConsumer(reader, zaptest.NewLogger(t), func(_ context.Context, s LeadSubmission) error {
		got = append(got, s)
		return nil
	})
	consumer.Run(ctx)

	require.Len(t, got, 1)
	assert.Equal(t, "Dana Levi", got[0].ContactName)
	assert.Equal(t, "website", got[0].Source)
	assert.True(t, got[0].EstimatedSystemSize.Valid)
	assert.True(t, got[0].EstimatedSystemSize.Decimal.Equal(decimal.RequireFromString("10.5")))
	assert.Equal(t, []int64{7}, committedOffsets(reader))
}

func TestConsumer_CommitsOnlyAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := new(MockKafkaReader)
	reader.On("CommitMessages", mock.Anything, mock.Anything).Return(nil)
	feed(reader, cancel,
		kafka.Message{Offset: 1, Value: []byte(`{"contact_name":"ok"}`)},
		kafka.Message{Offset: 2, Value: []byte(`{"contact_name":"db down"}`)},
		kafka.Message{Offset: 3, Value: []byte(`{"contact_name":""}`)},
		kafka.Message{Offset: 4, Value: []byte(`not json`)},
	)

	var handled []string
	failures := 2
	core, recorded := observer.New(zap.WarnLevel)
	consumer := testConsumer(reader, zap.New(core), func(_ context.Context, s LeadSubmission) error {
		handled = append(handled, s.ContactName)
		switch {
		case s.ContactName == "db down" && failures > 0:
			failures--
			return errors.New("connection refused")
		case s.ContactName == "":
			return fmt.Errorf("%w: contact_name is required", e.ErrInvalidInput)
		}
		return nil
	})
	consumer.Run(ctx)

	assert.Equal(t, []string{"ok", "db down", "db down", "db down", ""}, handled, "transient failures are retried in place")
	assert.Equal(t, []int64{1, 2, 3, 4}, committedOffsets(reader))
	assert.Equal(t, 2, recorded.FilterMessage("Failed to handle lead submission").Len())
	assert.Equal(t, 1, recorded.FilterMessage("Rejected lead submission").Len())
	assert.Equal(t, 1, recorded.FilterMessage("Failed to parse lead submission").Len())
}

func TestConsumer_CancelDuringRetryLeavesMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{Offset: 5, Value: []byte(`{"contact_name":"Dana"}`)}, nil).Once()

	attempts := 0
	consumer := testConsumer(reader, zaptest.NewLogger(t), func(context.Context, LeadSubmission) error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("connection refused")
	})
	consumer.Run(ctx)

	assert.Equal(t, 3, attempts)
	reader.AssertNotCalled(t, "CommitMessages", mock.Anything, mock.Anything)
	reader.AssertNumberOfCalls(t, "FetchMessage", 1)
}

func TestConsumer_FetchErrorIsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, errors.New("broker gone")).Twice()
	feed(reader, cancel)

	core, recorded := observer.New(zap.ErrorLevel)
	consumer := testConsumer(reader, zap.New(core), func(context.Context, LeadSubmission) error { return nil })
	consumer.Run(ctx)

	assert.Equal(t, 2, recorded.FilterMessage("Failed to fetch message").Len())
	reader.AssertNotCalled(t, "CommitMessages", mock.Anything, mock.Anything)
}

func TestConsumer_FetchErrorsBackOffUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	reader := new(MockKafkaReader)
	reader.On("FetchMessage", mock.Anything).Return(kafka.Message{}, errors.New("reader closed"))

	consumer := newConsumer(reader, zaptest.NewLogger(t), nil)
	consumer.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) }

	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	reader.AssertNumberOfCalls(t, "FetchMessage", 1)
}

func TestConsumer_Close(t *testing.T) {
	reader := new(MockKafkaReader)
	reader.On("Close").Return(errors.New("already closed"))

	core, recorded := observer.New(zap.ErrorLevel)
	consumer := newConsumer(reader, zap.New(core), nil)
	consumer.Close()

	reader.AssertCalled(t, "Close")
	assert.Equal(t, 1, recorded.FilterMessage("Failed to close Kafka reader").Len())
}
