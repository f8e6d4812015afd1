package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gartstein/solarcrm/internal/crm/db"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/gartstein/solarcrm/internal/crm/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const entityContract = "contract"

// ContractService manages contracts and their signed documents.
type ContractService struct {
	service
	store DocumentStore
}

// Today is the current calendar date the derived contract properties are
// evaluated against.
func (s *ContractService) Today() time.Time {
	return models.DateOf(s.clock.Now())
}

// IsExpired reports whether c ended before today.
func (s *ContractService) IsExpired(c *models.Contract) bool {
	return c.IsExpired(s.clock.Now())
}

func (s *ContractService) CreateContract(ctx context.Context, c *models.Contract) (*models.Contract, error) {
	if c.Status == "" {
		c.Status = models.ContractDraft
	}
	c.ID = uuid.New()
	c.IsActive = true
	c.Document = ""
	normalizeDates(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireCustomer(ctx, c.CustomerID); err != nil {
		return nil, err
	}

	if err := s.repo.CreateContract(ctx, c); err != nil {
		return nil, wrap(err, "create contract")
	}
	metrics.RecordsCreated.WithLabelValues(entityContract).Inc()
	s.logger.Info("Created contract",
		zap.String("contract_id", c.ID.String()),
		zap.String("contract_number", c.ContractNumber),
		zap.String("customer_id", c.CustomerID.String()),
	)
	s.emit(events.ContractCreated, entityContract, c.ID, c.ContractNumber, s.contractPayload(c))
	return c, nil
}

func (s *ContractService) requireCustomer(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.GetCustomer(ctx, id)
	if errors.Is(err, e.ErrNotFound) {
		var v e.ValidationError
		v.Add("customer_id", "customer does not exist")
		return v.Err()
	}
	return err
}

func (s *ContractService) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contract")
	}
	return c, nil
}

// UpdateContract applies a partial change. The customer and the number are fixed.
func (s *ContractService) UpdateContract(ctx context.Context, id uuid.UUID, update *models.ContractUpdate) (*models.Contract, error) {
	if err := requireID(id, entityContract); err != nil {
		return nil, err
	}
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contract")
	}
	update.Apply(c)
	normalizeDates(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateContract(ctx, c); err != nil {
		return nil, wrap(err, "update contract")
	}

	updated, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contract")
	}
	s.emit(events.ContractUpdated, entityContract, updated.ID, updated.ContractNumber, s.contractPayload(updated))
	return updated, nil
}

func (s *ContractService) SetContractActive(ctx context.Context, id uuid.UUID, active bool) (*models.Contract, error) {
	if err := s.repo.SetContractActive(ctx, id, active); err != nil {
		return nil, wrap(err, "change contract state")
	}
	if !active {
		metrics.RecordsDeleted.WithLabelValues(entityContract, "soft").Inc()
	}
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contract")
	}
	s.emit(events.ContractUpdated, entityContract, c.ID, c.ContractNumber, s.contractPayload(c))
	return c, nil
}

func (s *ContractService) ListContracts(ctx context.Context, f db.ContractFilter) ([]models.Contract, int64, error) {
	found, total, err := s.repo.ListContracts(ctx, f)
	if err != nil {
		return nil, 0, wrap(err, "list contracts")
	}
	return found, total, nil
}

// UploadContractDocument stores the signed contract and records its path.
// A second upload replaces the recorded path.
func (s *ContractService) UploadContractDocument(ctx context.Context, id uuid.UUID, filename string, size int64, contentType string, r io.Reader) (*models.Contract, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: document storage is not configured", e.ErrUnavailable)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: document is empty", e.ErrInvalidInput)
	}
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contract")
	}

	key := storage.ContractKey(c.ContractNumber, filename)
	if err := s.store.Put(ctx, key, r, size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store contract document: %w", err)
	}
	if err := s.repo.SetContractDocument(ctx, id, key); err != nil {
		return nil, wrap(err, "record contract document")
	}
	metrics.DocumentBytes.Add(float64(size))

	updated, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap(err, "get contract")
	}
	s.logger.Info("Attached contract document",
		zap.String("contract_number", updated.ContractNumber),
		zap.String("document", key),
		zap.Int64("size", size),
	)
	s.emit(events.ContractDocumentAttached, entityContract, updated.ID, updated.ContractNumber, s.contractPayload(updated))
	return updated, nil
}

// OpenContractDocument streams the stored document of a contract. The
// caller closes the returned object.
func (s *ContractService) OpenContractDocument(ctx context.Context, id uuid.UUID) (*storage.Object, string, error) {
	if s.store == nil {
		return nil, "", fmt.Errorf("%w: document storage is not configured", e.ErrUnavailable)
	}
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, "", wrap(err, "get contract")
	}
	if c.Document == "" {
		return nil, "", fmt.Errorf("%w: contract %s has no document", e.ErrNotFound, c.ContractNumber)
	}
	obj, err := s.store.Get(ctx, c.Document)
	if err != nil {
		if errors.Is(err, storage.ErrNoSuchObject) {
			return nil, "", fmt.Errorf("%w: %v", e.ErrNotFound, err)
		}
		return nil, "", fmt.Errorf("failed to open contract document: %w", err)
	}
	return obj, c.Document, nil
}

func normalizeDates(c *models.Contract) {
	if !c.StartDate.IsZero() {
		c.StartDate = models.DateOf(c.StartDate)
	}
	if c.EndDate != nil {
		end := models.DateOf(*c.EndDate)
		c.EndDate = &end
	}
}

func (s *ContractService) contractPayload(c *models.Contract) map[string]interface{} {
	payload := map[string]interface{}{
		"contract_type": c.ContractType,
		"status":        c.Status,
		"customer_id":   c.CustomerID,
		"start_date":    c.StartDate.Format(time.DateOnly),
		"is_expired":    s.IsExpired(c),
		"is_active":     c.IsActive,
	}
	if c.EndDate != nil {
		payload["end_date"] = c.EndDate.Format(time.DateOnly)
	}
	if c.Value.Valid {
		payload["value"] = c.Value.Decimal.StringFixed(2)
	}
	if c.Document != "" {
		payload["document"] = c.Document
	}
	return payload
}
