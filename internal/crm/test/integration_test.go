package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/solarcrm/internal/crm/controller"
	"github.com/gartstein/solarcrm/internal/crm/db"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

var kafkaBrokers = []string{"localhost:9092"}

const (
	eventsTopic = "crm-events-it"
	intakeTopic = "crm-lead-intake-it"
)

// IntegrationTestSuite runs the services against PostgreSQL and Kafka on
// localhost. Set CRM_INTEGRATION=1 to enable it.
type IntegrationTestSuite struct {
	suite.Suite
	repo        *db.Repository
	producer    *events.Producer
	reader      *kafka.Reader
	services    *controller.Services
	logger      *zap.Logger
	testTimeout time.Duration
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() || os.Getenv("CRM_INTEGRATION") == "" {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.logger = zap.NewNop()
	s.testTimeout = 30 * time.Second

	var err error
	s.repo, err = initializeDBWithRetry()
	s.Require().NoError(err, "database initialization failed")

	for _, topic := range []string{eventsTopic, intakeTopic} {
		err = backoff.Retry(func() error {
			return events.EnsureTopic(kafkaBrokers, topic, 1)
		}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
		s.Require().NoError(err, "kafka topic %s", topic)
	}

	s.producer = events.NewProducer(kafkaBrokers, s.logger, eventsTopic)
	s.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkaBrokers,
		Topic:       eventsTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	s.services = controller.New(controller.Dependencies{
		Repo:     s.repo,
		Producer: s.producer,
		Logger:   s.logger,
	})
}

func initializeDBWithRetry() (*db.Repository, error) {
	cfg := &db.Config{
		Driver:   db.DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		User:     "test",
		Password: "test",
		DBName:   "test",
		SSLMode:  "disable",
	}

	var repo *db.Repository
	err := backoff.Retry(func() error {
		var err error
		repo, err = db.NewRepository(cfg)
		return err
	}, backoff.NewExponentialBackOff())
	return repo, err
}

func (s *IntegrationTestSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
	if s.reader != nil {
		_ = s.reader.Close()
	}
	if s.repo != nil {
		_ = s.repo.Close()
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	err := s.repo.Exec(ctx, "TRUNCATE TABLE contracts, contacts, leads, customers, installers, suppliers CASCADE")
	s.Require().NoError(err, "failed to clean database")
}

func (s *IntegrationTestSuite) TestCustomerCreate() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	created, err := s.services.Customers.CreateCustomer(ctx, &models.Customer{
		FirstName: "Dana",
		LastName:  "Levi",
		Phone:     "0521234567",
	})
	s.Require().NoError(err)
	assert.Regexp(s.T(), `^CUS-\d{6}$`, created.CustomerNumber)

	event := s.consumeEvent(ctx, events.CustomerCreated, created.ID)
	assert.Equal(s.T(), created.CustomerNumber, event.Number)
	assert.Equal(s.T(), "customer", event.Entity)
}

func (s *IntegrationTestSuite) TestLeadConversion() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	lead, err := s.services.Leads.CreateLead(ctx, &models.Lead{
		ContactName: "Noa Cohen",
		Email:       "noa@example.com",
		Address:     models.Address{City: "Haifa"},
	})
	s.Require().NoError(err)

	conv, err := s.services.Leads.ConvertLead(ctx, lead.ID)
	s.Require().NoError(err)
	assert.True(s.T(), conv.Created)
	assert.Equal(s.T(), models.LeadWon, conv.Lead.Status)

	again, err := s.services.Leads.ConvertLead(ctx, lead.ID)
	s.Require().NoError(err)
	assert.False(s.T(), again.Created)
	assert.Equal(s.T(), conv.Customer.ID, again.Customer.ID)

	s.consumeEvent(ctx, events.LeadConverted, lead.ID)
}

func (s *IntegrationTestSuite) TestContractProtectsCustomer() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	customer, err := s.services.Customers.CreateCustomer(ctx, &models.Customer{FirstName: "Avi"})
	s.Require().NoError(err)
	_, err = s.services.Contracts.CreateContract(ctx, &models.Contract{
		ContractType: models.ContractMaintenance,
		CustomerID:   customer.ID,
		StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	err = s.services.Customers.DeleteCustomer(ctx, customer.ID)
	assert.Error(s.T(), err)
	_, err = s.services.Customers.GetCustomer(ctx, customer.ID)
	assert.NoError(s.T(), err)
}

func (s *IntegrationTestSuite) TestLeadIntake() {
	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	consumer := events.NewConsumer(kafkaBrokers, "crm-it-"+uuid.NewString(), intakeTopic, s.logger, s.services.Leads.IntakeLead)
	defer func() {
		cancel()
		consumer.Close()
	}()
	consumer.Start(ctx)

	name := "Intake " + uuid.NewString()[:8]
	value, err := json.Marshal(events.LeadSubmission{ContactName: name, Source: "Campaign", City: "Eilat"})
	s.Require().NoError(err)

	writer := &kafka.Writer{Addr: kafka.TCP(kafkaBrokers...), Topic: intakeTopic}
	defer writer.Close()
	s.Require().NoError(writer.WriteMessages(ctx, kafka.Message{Value: value}))

	err = backoff.Retry(func() error {
		found, _, err := s.services.Leads.ListLeads(ctx, db.LeadFilter{ListOptions: db.ListOptions{Search: name}})
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(found) == 0 {
			return fmt.Errorf("lead %q not stored yet", name)
		}
		assert.Equal(s.T(), models.SourceCampaign, found[0].LeadSource)
		return nil
	}, backoff.WithContext(backoff.NewConstantBackOff(500*time.Millisecond), ctx))
	require.NoError(s.T(), err)
}

// consumeEvent reads the events topic until the event of type t for id
// arrives.
func (s *IntegrationTestSuite) consumeEvent(ctx context.Context, t events.EventType, id uuid.UUID) events.Event {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			s.T().Fatalf("No %s event received for %s: %v", t, id, err)
		}
		if string(msg.Key) != id.String() {
			s.T().Logf("Skipping message with unmatched key: %s", string(msg.Key))
			continue
		}
		var event events.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			s.T().Fatalf("Failed to unmarshal Kafka message: %v", err)
		}
		if event.Type != t {
			s.T().Logf("Skipping %s event", event.Type)
			continue
		}
		return event
	}
}
