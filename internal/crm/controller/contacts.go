package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/solarcrm/internal/crm/db"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const entityContact = "contact"

// ContactService manages the contacts of customers, installers and
// suppliers. A parent has at most one primary contact: saving a primary
// contact demotes its siblings in the same transaction.
type ContactService struct {
	service
}

func (s *ContactService) CreateContact(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	c.ID = uuid.New()
	c.IsActive = true
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var demoted int64
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		if demoted, err = claimParent(ctx, tx, c); err != nil {
			return err
		}
		return tx.CreateContact(ctx, c)
	})
	if err != nil {
		return nil, wrap(err, "create contact")
	}

	metrics.RecordsCreated.WithLabelValues(entityContact).Inc()
	s.logSaved(c, demoted)
	s.emit(events.ContactSaved, entityContact, c.ID, "", contactPayload(c))
	return c, nil
}

func (s *ContactService) GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	c, err := s.repo.GetContact(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contact")
	}
	return c, nil
}

// UpdateContact applies a partial change. The parent never changes.
func (s *ContactService) UpdateContact(ctx context.Context, id uuid.UUID, update *models.ContactUpdate) (*models.Contact, error) {
	if err := requireID(id, entityContact); err != nil {
		return nil, err
	}

	var (
		c       *models.Contact
		demoted int64
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		if c, err = tx.GetContact(ctx, id); err != nil {
			return err
		}
		update.Apply(c)
		if err := c.Validate(); err != nil {
			return err
		}
		if demoted, err = claimParent(ctx, tx, c); err != nil {
			return err
		}
		if err := tx.UpdateContact(ctx, c); err != nil {
			return err
		}
		c, err = tx.GetContact(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrap(err, "update contact")
	}

	s.logSaved(c, demoted)
	s.emit(events.ContactSaved, entityContact, c.ID, "", contactPayload(c))
	return c, nil
}

// claimParent locks the contact's parent and, for a primary contact,
// demotes the other primary contacts of that parent.
func claimParent(ctx context.Context, tx *db.Repository, c *models.Contact) (int64, error) {
	if err := tx.LockParent(ctx, c.Parent); err != nil {
		if errors.Is(err, e.ErrNotFound) {
			var v e.ValidationError
			v.Add("parent", fmt.Sprintf("%s does not exist", c.Parent.Kind))
			return 0, v.Err()
		}
		return 0, err
	}
	if !c.IsPrimary {
		return 0, nil
	}
	return tx.DemotePrimaryContacts(ctx, c.Parent, c.ID)
}

func (s *ContactService) logSaved(c *models.Contact, demoted int64) {
	fields := []zap.Field{
		zap.String("contact_id", c.ID.String()),
		zap.String("parent", c.Parent.String()),
	}
	if demoted > 0 {
		fields = append(fields, zap.Int64("primary_demoted", demoted))
	}
	s.logger.Info("Saved contact", fields...)
}

func (s *ContactService) DeleteContact(ctx context.Context, id uuid.UUID) error {
	c, err := s.repo.GetContact(ctx, id)
	if err != nil {
		return wrap(err, "get contact for deletion")
	}
	if err := s.repo.DeleteContact(ctx, id); err != nil {
		return wrap(err, "delete contact")
	}
	metrics.RecordsDeleted.WithLabelValues(entityContact, "hard").Inc()
	s.emit(events.ContactDeleted, entityContact, id, "", contactPayload(c))
	return nil
}

func (s *ContactService) ListContacts(ctx context.Context, f db.ContactFilter) ([]models.Contact, int64, error) {
	found, total, err := s.repo.ListContacts(ctx, f)
	if err != nil {
		return nil, 0, wrap(err, "list contacts")
	}
	return found, total, nil
}

// RelatedEntity returns the record the contact belongs to.
func (s *ContactService) RelatedEntity(ctx context.Context, id uuid.UUID) (interface{}, error) {
	c, err := s.repo.GetContact(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contact")
	}
	related, err := s.repo.RelatedEntity(ctx, c.Parent)
	if err != nil {
		return nil, wrap(err, "get related entity")
	}
	return related, nil
}

func contactPayload(c *models.Contact) map[string]interface{} {
	return map[string]interface{}{
		"entity_type": c.EntityType(),
		"entity_id":   c.Parent.ID,
		"full_name":   c.FullName(),
		"is_primary":  c.IsPrimary,
	}
}
