package db

import (
	"context"

	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerFilter narrows ListCustomers.
type CustomerFilter struct {
	ListOptions
	Type models.CustomerType
	City string
}

// CreateCustomer inserts c and assigns its customer number.
func (r *Repository) CreateCustomer(ctx context.Context, c *models.Customer) error {
	row := customerRow(c)
	if err := r.createNumbered(ctx, CustomerNumbers, row, func(n string) { row.CustomerNumber = n }); err != nil {
		return err
	}
	*c = *customerModel(row)
	return nil
}

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var row rows.Customer
	if err := r.first(ctx, &row, id); err != nil {
		return nil, err
	}
	return customerModel(&row), nil
}

// UpdateCustomer stores every mutable field of c. The customer number is kept.
func (r *Repository) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	row := customerRow(c)
	if err := r.update(ctx, row, "customer_number"); err != nil {
		return err
	}
	c.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *Repository) SetCustomerActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.setActive(ctx, &rows.Customer{}, id, active)
}

// DeleteCustomer removes the customer row only; dependants are the
// caller's concern.
func (r *Repository) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, &rows.Customer{}, id)
}

func (r *Repository) ListCustomers(ctx context.Context, f CustomerFilter) ([]models.Customer, int64, error) {
	var found []rows.Customer
	total, err := list(r.db.WithContext(ctx), &rows.Customer{}, &found, f.ListOptions, "created_at DESC",
		func(db *gorm.DB) *gorm.DB {
			if f.Type != "" {
				db = db.Where("customer_type = ?", f.Type)
			}
			if f.City != "" {
				db = db.Where("city = ?", f.City)
			}
			return db
		},
		"customer_number", "first_name", "last_name", "company_name", "email", "phone")
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Customer, 0, len(found))
	for i := range found {
		out = append(out, *customerModel(&found[i]))
	}
	return out, total, nil
}
