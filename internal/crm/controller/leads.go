package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/gartstein/solarcrm/internal/crm/db"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const entityLead = "lead"

// LeadService manages leads and their conversion into customers.
type LeadService struct {
	service
}

// Conversion is the outcome of ConvertLead. Created is false when the lead
// had already been converted and nothing was written.
type Conversion struct {
	Lead     *models.Lead
	Customer *models.Customer
	Contact  *models.Contact
	Created  bool
}

func (s *LeadService) CreateLead(ctx context.Context, l *models.Lead) (*models.Lead, error) {
	if l.Status == "" {
		l.Status = models.LeadNew
	}
	defaultCountry(&l.Address)
	l.ID = uuid.New()
	l.IsActive = true
	if l.Converted() {
		var v e.ValidationError
		v.Add("customer_id", "set by lead conversion only")
		return nil, v.Err()
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateLead(ctx, l); err != nil {
		return nil, wrap(err, "create lead")
	}
	metrics.RecordsCreated.WithLabelValues(entityLead).Inc()
	s.logger.Info("Created lead",
		zap.String("lead_id", l.ID.String()),
		zap.String("lead_number", l.LeadNumber),
		zap.String("lead_source", string(l.LeadSource)),
	)
	s.emit(events.LeadCreated, entityLead, l.ID, l.LeadNumber, leadPayload(l))
	return l, nil
}

// IntakeLead stores a lead submitted through the intake topic.
func (s *LeadService) IntakeLead(ctx context.Context, sub events.LeadSubmission) error {
	_, err := s.CreateLead(ctx, &models.Lead{
		LeadSource:  models.LeadSource(strings.ToLower(strings.TrimSpace(sub.Source))),
		ContactName: strings.TrimSpace(sub.ContactName),
		Email:       strings.TrimSpace(sub.Email),
		Phone:       strings.TrimSpace(sub.Phone),
		Address: models.Address{
			Street:     sub.Street,
			City:       sub.City,
			PostalCode: sub.PostalCode,
			Country:    sub.Country,
		},
		EstimatedSystemSize: sub.EstimatedSystemSize,
		Notes:               sub.Notes,
	})
	return err
}

func (s *LeadService) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	l, err := s.repo.GetLead(ctx, id)
	if err != nil {
		return nil, wrap(err, "get lead")
	}
	return l, nil
}

// UpdateLead applies a partial change. A converted lead keeps the won status.
func (s *LeadService) UpdateLead(ctx context.Context, id uuid.UUID, update *models.LeadUpdate) (*models.Lead, error) {
	if err := requireID(id, entityLead); err != nil {
		return nil, err
	}

	var updated *models.Lead
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		l, err := tx.LockLead(ctx, id)
		if err != nil {
			return err
		}
		update.Apply(l)
		defaultCountry(&l.Address)
		if err := l.Validate(); err != nil {
			return err
		}
		if err := tx.UpdateLead(ctx, l); err != nil {
			return err
		}
		updated, err = tx.GetLead(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrap(err, "update lead")
	}
	s.emit(events.LeadUpdated, entityLead, updated.ID, updated.LeadNumber, leadPayload(updated))
	return updated, nil
}

func (s *LeadService) SetLeadActive(ctx context.Context, id uuid.UUID, active bool) (*models.Lead, error) {
	if err := s.repo.SetLeadActive(ctx, id, active); err != nil {
		return nil, wrap(err, "change lead state")
	}
	if !active {
		metrics.RecordsDeleted.WithLabelValues(entityLead, "soft").Inc()
	}
	l, err := s.repo.GetLead(ctx, id)
	if err != nil {
		return nil, wrap(err, "get lead")
	}
	s.emit(events.LeadUpdated, entityLead, l.ID, l.LeadNumber, leadPayload(l))
	return l, nil
}

func (s *LeadService) ListLeads(ctx context.Context, f db.LeadFilter) ([]models.Lead, int64, error) {
	found, total, err := s.repo.ListLeads(ctx, f)
	if err != nil {
		return nil, 0, wrap(err, "list leads")
	}
	return found, total, nil
}

// ConvertLead turns a lead into a private customer with a primary contact
// and marks the lead won. Converting an already converted lead returns
// its customer without writing anything.
func (s *LeadService) ConvertLead(ctx context.Context, id uuid.UUID) (*Conversion, error) {
	if err := requireID(id, entityLead); err != nil {
		return nil, err
	}

	var conv Conversion
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		lead, err := tx.LockLead(ctx, id)
		if err != nil {
			return err
		}
		conv.Lead = lead

		if lead.Converted() {
			conv.Customer, err = tx.GetCustomer(ctx, *lead.CustomerID)
			return err
		}

		first, last := models.SplitName(lead.ContactName)
		customer := &models.Customer{
			Base:         models.Base{ID: uuid.New(), IsActive: true},
			Address:      lead.Address,
			CustomerType: models.CustomerPrivate,
			FirstName:    first,
			LastName:     last,
			Email:        lead.Email,
			Phone:        lead.Phone,
		}
		defaultCountry(&customer.Address)
		if err := customer.Validate(); err != nil {
			return err
		}
		if err := tx.CreateCustomer(ctx, customer); err != nil {
			return err
		}

		contact := &models.Contact{
			Base:      models.Base{ID: uuid.New(), IsActive: true},
			Parent:    models.CustomerRef(customer.ID),
			FirstName: first,
			LastName:  last,
			Email:     lead.Email,
			Phone:     lead.Phone,
			IsPrimary: true,
		}
		if err := contact.Validate(); err != nil {
			return err
		}
		if err := tx.CreateContact(ctx, contact); err != nil {
			return err
		}

		if err := tx.MarkLeadConverted(ctx, lead.ID, customer.ID); err != nil {
			return err
		}
		lead.CustomerID = &customer.ID
		lead.Status = models.LeadWon

		conv.Customer = customer
		conv.Contact = contact
		conv.Created = true
		return nil
	})
	if err != nil {
		return nil, wrap(err, "convert lead")
	}

	if !conv.Created {
		s.logger.Info("Lead already converted",
			zap.String("lead_number", conv.Lead.LeadNumber),
			zap.String("customer_number", conv.Customer.CustomerNumber),
		)
		return &conv, nil
	}

	metrics.LeadsConverted.Inc()
	metrics.RecordsCreated.WithLabelValues(entityCustomer).Inc()
	metrics.RecordsCreated.WithLabelValues(entityContact).Inc()
	s.logger.Info("Converted lead",
		zap.String("lead_number", conv.Lead.LeadNumber),
		zap.String("customer_id", conv.Customer.ID.String()),
		zap.String("customer_number", conv.Customer.CustomerNumber),
	)
	s.emit(events.CustomerCreated, entityCustomer, conv.Customer.ID, conv.Customer.CustomerNumber, customerPayload(conv.Customer))
	s.emit(events.ContactSaved, entityContact, conv.Contact.ID, "", contactPayload(conv.Contact))
	s.emit(events.LeadConverted, entityLead, conv.Lead.ID, conv.Lead.LeadNumber, leadPayload(conv.Lead))
	return &conv, nil
}

// BulkStatuses are the statuses SetLeadStatus accepts. Won is reached
// through conversion only.
var BulkStatuses = []models.LeadStatus{models.LeadNew, models.LeadQuote, models.LeadLost}

// SetLeadStatus moves many leads to status at once and returns the IDs
// that changed. Converted leads are skipped.
func (s *LeadService) SetLeadStatus(ctx context.Context, ids []uuid.UUID, status models.LeadStatus) ([]uuid.UUID, error) {
	allowed := false
	for _, st := range BulkStatuses {
		if st == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: status %q cannot be set in bulk", e.ErrInvalidInput, status)
	}

	changed, err := s.repo.SetLeadsStatus(ctx, ids, status)
	if err != nil {
		return nil, wrap(err, "set lead status")
	}
	s.logger.Info("Changed lead status",
		zap.String("status", string(status)),
		zap.Int("requested", len(ids)),
		zap.Int("changed", len(changed)),
	)
	for _, id := range changed {
		s.emit(events.LeadStatusChanged, entityLead, id, "", map[string]interface{}{"status": status})
	}
	return changed, nil
}

// UnassignLeads releases the leads owned by a removed user.
func (s *LeadService) UnassignLeads(ctx context.Context, user string) (int64, error) {
	if strings.TrimSpace(user) == "" {
		return 0, fmt.Errorf("%w: user is required", e.ErrInvalidInput)
	}
	n, err := s.repo.UnassignLeads(ctx, user)
	if err != nil {
		return 0, wrap(err, "unassign leads")
	}
	s.logger.Info("Unassigned leads", zap.String("user", user), zap.Int64("leads", n))
	return n, nil
}

func leadPayload(l *models.Lead) map[string]interface{} {
	payload := map[string]interface{}{
		"status":       l.Status,
		"lead_source":  l.LeadSource,
		"contact_name": l.ContactName,
		"is_active":    l.IsActive,
	}
	if l.CustomerID != nil {
		payload["customer_id"] = *l.CustomerID
	}
	if l.AssignedTo != nil {
		payload["assigned_to"] = *l.AssignedTo
	}
	return payload
}
