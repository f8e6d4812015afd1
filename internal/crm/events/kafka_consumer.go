package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LeadSubmission is a lead captured by an external form or campaign tool.
type LeadSubmission struct {
	ContactName         string              `json:"contact_name"`
	Email               string              `json:"email"`
	Phone               string              `json:"phone"`
	Source              string              `json:"source"`
	Street              string              `json:"street"`
	City                string              `json:"city"`
	PostalCode          string              `json:"postal_code"`
	Country             string              `json:"country"`
	EstimatedSystemSize decimal.NullDecimal `json:"estimated_system_size"`
	Notes               string              `json:"notes"`
}

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LeadHandler stores a submission. Returning an error matching
// ErrInvalidInput rejects the message for good; any other error is retried
// with backoff and the message stays uncommitted until it succeeds.
type LeadHandler func(context.Context, LeadSubmission) error

type Consumer struct {
	reader     KafkaReader
	logger     *zap.Logger
	handler    LeadHandler
	newBackOff func() backoff.BackOff
}

// NewConsumer reads lead submissions from topic as member of groupID.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger, handler LeadHandler) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
		Dialer:  kafka.DefaultDialer,
	}), logger, handler)
}

func newConsumer(reader KafkaReader, logger *zap.Logger, handler LeadHandler) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger.Named("kafka_consumer"),
		handler:    handler,
		newBackOff: retryPolicy,
	}
}

// retryPolicy retries until the context ends.
func retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	return policy
}

// Start runs the consumer in the background until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go c.Run(ctx)
}

// Run fetches and handles messages one at a time until ctx is cancelled.
// A message is committed once it is stored or rejected; transient handler
// failures are retried before the next message is fetched.
func (c *Consumer) Run(ctx context.Context) {
	fetchBackOff := backoff.WithContext(c.newBackOff(), ctx)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := fetchBackOff.NextBackOff()
			c.logger.Error("Failed to fetch message", zap.Error(err), zap.Duration("retry_in", wait))
			if wait == backoff.Stop || !sleep(ctx, wait) {
				return
			}
			continue
		}
		fetchBackOff.Reset()

		var submission LeadSubmission
		if err := json.Unmarshal(msg.Value, &submission); err != nil {
			metrics.LeadsIntake.WithLabelValues("malformed").Inc()
			c.logger.Error("Failed to parse lead submission",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
			)
			c.commit(ctx, msg)
			continue
		}

		err = c.handle(ctx, msg, submission)
		switch {
		case err == nil:
			metrics.LeadsIntake.WithLabelValues("created").Inc()
		case errors.Is(err, e.ErrInvalidInput):
			metrics.LeadsIntake.WithLabelValues("rejected").Inc()
			c.logger.Warn("Rejected lead submission",
				zap.Error(err),
				zap.String("contact_name", submission.ContactName),
			)
		default:
			// Only cancellation ends the retries; the message stays uncommitted.
			return
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, submission LeadSubmission) error {
	return backoff.RetryNotify(func() error {
		err := c.handler(ctx, submission)
		if errors.Is(err, e.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(c.newBackOff(), ctx), func(err error, wait time.Duration) {
		metrics.LeadsIntake.WithLabelValues("failed").Inc()
		c.logger.Error("Failed to handle lead submission",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.Duration("retry_in", wait),
		)
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit message",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
