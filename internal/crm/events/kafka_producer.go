// Package events publishes CRM domain events to Kafka and consumes lead
// submissions from it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type EventType string

const (
	CustomerCreated     EventType = "customer_created"
	CustomerUpdated     EventType = "customer_updated"
	CustomerDeactivated EventType = "customer_deactivated"
	CustomerRestored    EventType = "customer_restored"
	CustomerDeleted     EventType = "customer_deleted"

	InstallerSaved   EventType = "installer_saved"
	InstallerDeleted EventType = "installer_deleted"
	SupplierSaved    EventType = "supplier_saved"
	SupplierDeleted  EventType = "supplier_deleted"

	ContactSaved   EventType = "contact_saved"
	ContactDeleted EventType = "contact_deleted"

	LeadCreated       EventType = "lead_created"
	LeadUpdated       EventType = "lead_updated"
	LeadConverted     EventType = "lead_converted"
	LeadStatusChanged EventType = "lead_status_changed"

	ContractCreated          EventType = "contract_created"
	ContractUpdated          EventType = "contract_updated"
	ContractDocumentAttached EventType = "contract_document_attached"
)

// Event is the message written for every committed change. Payload holds
// the record as the API renders it.
type Event struct {
	Type       EventType   `json:"type"`
	Entity     string      `json:"entity"`
	ID         uuid.UUID   `json:"id"`
	Number     string      `json:"number,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultQueueSize = 1000

type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewProducer returns a producer writing to topic on brokers. Messages are
// queued and written by a background loop; the connection is established
// lazily by the writer.
func NewProducer(brokers []string, logger *zap.Logger, topic string) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Topic:                  topic,
		AllowAutoTopicCreation: true,
	}, logger, defaultQueueSize)
}

func newProducer(writer KafkaWriter, logger *zap.Logger, queueSize int) *Producer {
	p := &Producer{
		writer:    writer,
		events:    make(chan Event, queueSize),
		logger:    logger.Named("kafka_producer"),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.eventLoop()
	return p
}

// EnsureTopic creates topic through the cluster controller. An existing
// topic is not an error.
func EnsureTopic(brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	ctrlConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer ctrlConn.Close()

	return ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
}

// Produce queues event without blocking. When the queue is full the event
// is dropped and a warning logged.
func (p *Producer) Produce(event Event) {
	select {
	case p.events <- event:
	default:
		metrics.EventsDropped.Inc()
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("entity_id", event.ID.String()),
		)
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain writes what is still queued at shutdown.
func (p *Producer) drain() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		metrics.EventsDropped.Inc()
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("entity_id", event.ID.String()),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		metrics.EventsDropped.Inc()
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("entity_id", event.ID.String()),
		)
		return
	}
	metrics.EventsProduced.WithLabelValues(string(event.Type)).Inc()
}

// Close flushes the queue and closes the writer. It is safe to call more
// than once.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		close(p.closeChan)
		<-p.done
		if err := p.writer.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer", zap.Error(err))
		}
	})
}

// NopProducer discards events. It is used when Kafka is not configured.
type NopProducer struct{}

func (NopProducer) Produce(Event) {}
