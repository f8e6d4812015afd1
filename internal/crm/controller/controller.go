// Package controller implements the business logic (service layer) of the
// CRM: it validates input, orchestrates repository operations inside
// transactions and emits domain events once changes are committed.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gartstein/solarcrm/internal/crm/db"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/gartstein/solarcrm/internal/crm/storage"
	"github.com/google/uuid"
	"github.com/raulk/clock"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(event events.Event)
}

// DocumentStore keeps uploaded contract documents.
type DocumentStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// Repository defines the storage operations the services use outside of
// transactions. Multi-row changes run through WithTransaction on the
// concrete repository.
type Repository interface {
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	SetCustomerActive(ctx context.Context, id uuid.UUID, active bool) error
	ListCustomers(ctx context.Context, f db.CustomerFilter) ([]models.Customer, int64, error)

	CreateInstaller(ctx context.Context, i *models.Installer) error
	GetInstaller(ctx context.Context, id uuid.UUID) (*models.Installer, error)
	UpdateInstaller(ctx context.Context, i *models.Installer) error
	SetInstallerActive(ctx context.Context, id uuid.UUID, active bool) error
	ListInstallers(ctx context.Context, f db.InstallerFilter) ([]models.Installer, int64, error)

	CreateSupplier(ctx context.Context, s *models.Supplier) error
	GetSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	UpdateSupplier(ctx context.Context, s *models.Supplier) error
	SetSupplierActive(ctx context.Context, id uuid.UUID, active bool) error
	ListSuppliers(ctx context.Context, f db.SupplierFilter) ([]models.Supplier, int64, error)

	GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	DeleteContact(ctx context.Context, id uuid.UUID) error
	ListContacts(ctx context.Context, f db.ContactFilter) ([]models.Contact, int64, error)
	RelatedEntity(ctx context.Context, parent models.ParentRef) (interface{}, error)

	CreateLead(ctx context.Context, l *models.Lead) error
	GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	UpdateLead(ctx context.Context, l *models.Lead) error
	SetLeadActive(ctx context.Context, id uuid.UUID, active bool) error
	ListLeads(ctx context.Context, f db.LeadFilter) ([]models.Lead, int64, error)
	SetLeadsStatus(ctx context.Context, ids []uuid.UUID, status models.LeadStatus) ([]uuid.UUID, error)
	UnassignLeads(ctx context.Context, user string) (int64, error)

	CreateContract(ctx context.Context, c *models.Contract) error
	GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	UpdateContract(ctx context.Context, c *models.Contract) error
	SetContractActive(ctx context.Context, id uuid.UUID, active bool) error
	SetContractDocument(ctx context.Context, id uuid.UUID, path string) error
	ListContracts(ctx context.Context, f db.ContractFilter) ([]models.Contract, int64, error)

	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
	Ping(ctx context.Context) error
}

// Dependencies are shared by every service. Store may be nil when no
// object store is configured; Clock defaults to the wall clock.
type Dependencies struct {
	Repo     Repository
	Producer EventProducer
	Store    DocumentStore
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Services groups the CRM services built on one set of dependencies.
type Services struct {
	Customers *CustomerService
	Vendors   *VendorService
	Contacts  *ContactService
	Leads     *LeadService
	Contracts *ContractService
}

func New(d Dependencies) *Services {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Producer == nil {
		d.Producer = events.NopProducer{}
	}
	svc := func(name string) service {
		return service{repo: d.Repo, producer: d.Producer, clock: d.Clock, logger: d.Logger.Named(name)}
	}
	return &Services{
		Customers: &CustomerService{service: svc("customer_service")},
		Vendors:   &VendorService{service: svc("vendor_service")},
		Contacts:  &ContactService{service: svc("contact_service")},
		Leads:     &LeadService{service: svc("lead_service")},
		Contracts: &ContractService{service: svc("contract_service"), store: d.Store},
	}
}

// Ping checks that storage is reachable.
func (s *Services) Ping(ctx context.Context) error {
	return s.Customers.repo.Ping(ctx)
}

type service struct {
	repo     Repository
	producer EventProducer
	clock    clock.Clock
	logger   *zap.Logger
}

func (s *service) emit(t events.EventType, entity string, id uuid.UUID, number string, payload interface{}) {
	s.producer.Produce(events.Event{
		Type:       t,
		Entity:     entity,
		ID:         id,
		Number:     number,
		OccurredAt: s.clock.Now().UTC(),
		Payload:    payload,
	})
}

// wrap adds context to unexpected repository errors and passes domain
// errors through unchanged.
func wrap(err error, action string) error {
	switch {
	case errors.Is(err, e.ErrNotFound),
		errors.Is(err, e.ErrInvalidInput),
		errors.Is(err, e.ErrProtected),
		errors.Is(err, e.ErrConflict),
		errors.Is(err, e.ErrUnavailable):
		return err
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func requireID(id uuid.UUID, entity string) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: invalid %s ID", e.ErrInvalidInput, entity)
	}
	return nil
}

func defaultCountry(a *models.Address) {
	if a.Country == "" {
		a.Country = models.DefaultCountry
	}
}
