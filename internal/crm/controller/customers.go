package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/solarcrm/internal/crm/db"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const entityCustomer = "customer"

// CustomerService manages customers and the records that depend on them.
type CustomerService struct {
	service
}

// CreateCustomer validates c, assigns it a customer number and stores it.
func (s *CustomerService) CreateCustomer(ctx context.Context, c *models.Customer) (*models.Customer, error) {
	if c.CustomerType == "" {
		c.CustomerType = models.CustomerPrivate
	}
	defaultCountry(&c.Address)
	c.ID = uuid.New()
	c.IsActive = true
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateCustomer(ctx, c); err != nil {
		return nil, wrap(err, "create customer")
	}
	metrics.RecordsCreated.WithLabelValues(entityCustomer).Inc()
	s.logger.Info("Created customer",
		zap.String("customer_id", c.ID.String()),
		zap.String("customer_number", c.CustomerNumber),
	)
	s.emit(events.CustomerCreated, entityCustomer, c.ID, c.CustomerNumber, customerPayload(c))
	return c, nil
}

func (s *CustomerService) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, wrap(err, "get customer")
	}
	return c, nil
}

// UpdateCustomer applies a partial change and returns the stored customer.
func (s *CustomerService) UpdateCustomer(ctx context.Context, id uuid.UUID, update *models.CustomerUpdate) (*models.Customer, error) {
	if err := requireID(id, entityCustomer); err != nil {
		return nil, err
	}
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, wrap(err, "get customer")
	}
	update.Apply(c)
	defaultCountry(&c.Address)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCustomer(ctx, c); err != nil {
		return nil, wrap(err, "update customer")
	}

	updated, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get customer for event",
			zap.Error(err),
			zap.String("customer_id", id.String()),
		)
		return nil, wrap(err, "get customer")
	}
	s.emit(events.CustomerUpdated, entityCustomer, updated.ID, updated.CustomerNumber, customerPayload(updated))
	return updated, nil
}

// DeactivateCustomer soft deletes the customer. Dependants are untouched.
func (s *CustomerService) DeactivateCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return s.setActive(ctx, id, false)
}

func (s *CustomerService) RestoreCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return s.setActive(ctx, id, true)
}

func (s *CustomerService) setActive(ctx context.Context, id uuid.UUID, active bool) (*models.Customer, error) {
	if err := s.repo.SetCustomerActive(ctx, id, active); err != nil {
		return nil, wrap(err, "change customer state")
	}
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, wrap(err, "get customer")
	}
	t := events.CustomerRestored
	if !active {
		t = events.CustomerDeactivated
		metrics.RecordsDeleted.WithLabelValues(entityCustomer, "soft").Inc()
	}
	s.emit(t, entityCustomer, c.ID, c.CustomerNumber, customerPayload(c))
	return c, nil
}

// DeleteCustomer removes the customer for good. It fails with ErrProtected
// while any contract references the customer. Its contacts are deleted
// and leads converted into it lose the link, in the same transaction.
func (s *CustomerService) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	var (
		c        *models.Customer
		contacts int64
		leads    int64
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		if c, err = tx.GetCustomer(ctx, id); err != nil {
			return err
		}
		count, err := tx.CountContracts(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: customer %s has %d contracts", e.ErrProtected, c.CustomerNumber, count)
		}
		if contacts, err = tx.DeleteContactsOf(ctx, models.CustomerRef(id)); err != nil {
			return err
		}
		if leads, err = tx.DetachLeadsFromCustomer(ctx, id); err != nil {
			return err
		}
		return tx.DeleteCustomer(ctx, id)
	})
	if err != nil {
		return wrap(err, "delete customer")
	}

	metrics.RecordsDeleted.WithLabelValues(entityCustomer, "hard").Inc()
	s.logger.Info("Deleted customer",
		zap.String("customer_id", id.String()),
		zap.String("customer_number", c.CustomerNumber),
		zap.Int64("contacts_deleted", contacts),
		zap.Int64("leads_detached", leads),
	)
	s.emit(events.CustomerDeleted, entityCustomer, c.ID, c.CustomerNumber, customerPayload(c))
	return nil
}

func (s *CustomerService) ListCustomers(ctx context.Context, f db.CustomerFilter) ([]models.Customer, int64, error) {
	found, total, err := s.repo.ListCustomers(ctx, f)
	if err != nil {
		return nil, 0, wrap(err, "list customers")
	}
	return found, total, nil
}

func customerPayload(c *models.Customer) map[string]interface{} {
	return map[string]interface{}{
		"customer_type": c.CustomerType,
		"display_name":  c.DisplayName(),
		"email":         c.Email,
		"phone":         c.Phone,
		"city":          c.City,
		"is_active":     c.IsActive,
	}
}
