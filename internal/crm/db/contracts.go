package db

import (
	"context"
	"time"

	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContractFilter struct {
	ListOptions
	Type       models.ContractType
	Status     models.ContractStatus
	CustomerID *uuid.UUID
}

// CreateContract inserts c and assigns its contract number.
func (r *Repository) CreateContract(ctx context.Context, c *models.Contract) error {
	row := contractRow(c)
	if err := r.createNumbered(ctx, ContractNumbers, row, func(n string) { row.ContractNumber = n }); err != nil {
		return err
	}
	*c = *contractModel(row)
	return nil
}

func (r *Repository) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var row rows.Contract
	if err := r.first(ctx, &row, id); err != nil {
		return nil, err
	}
	return contractModel(&row), nil
}

// UpdateContract stores every mutable field of c. The number and the
// customer are kept.
func (r *Repository) UpdateContract(ctx context.Context, c *models.Contract) error {
	row := contractRow(c)
	if err := r.update(ctx, row, "contract_number", "customer_id"); err != nil {
		return err
	}
	c.UpdatedAt = row.UpdatedAt
	return nil
}

// SetContractDocument records the storage path of the contract document.
func (r *Repository) SetContractDocument(ctx context.Context, id uuid.UUID, path string) error {
	result := r.db.WithContext(ctx).Model(&rows.Contract{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"document": path, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) SetContractActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.setActive(ctx, &rows.Contract{}, id, active)
}

func (r *Repository) ListContracts(ctx context.Context, f ContractFilter) ([]models.Contract, int64, error) {
	var found []rows.Contract
	total, err := list(r.db.WithContext(ctx), &rows.Contract{}, &found, f.ListOptions, "created_at DESC",
		func(db *gorm.DB) *gorm.DB {
			if f.Type != "" {
				db = db.Where("contract_type = ?", f.Type)
			}
			if f.Status != "" {
				db = db.Where("status = ?", f.Status)
			}
			if f.CustomerID != nil {
				db = db.Where("customer_id = ?", *f.CustomerID)
			}
			return db
		},
		"contract_number", "payment_terms", "notes")
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Contract, 0, len(found))
	for i := range found {
		out = append(out, *contractModel(&found[i]))
	}
	return out, total, nil
}

// CountContracts returns how many contracts, active or not, reference the
// customer.
func (r *Repository) CountContracts(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&rows.Contract{}).
		Where("customer_id = ?", customerID).
		Count(&count).Error
	return count, err
}
