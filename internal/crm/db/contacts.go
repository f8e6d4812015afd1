package db

import (
	"context"
	"fmt"

	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactFilter narrows ListContacts. A nil Parent lists contacts of every
// record; Kind restricts to one kind of parent.
type ContactFilter struct {
	ListOptions
	Parent  *models.ParentRef
	Kind    models.EntityKind
	Primary *bool
}

func (r *Repository) CreateContact(ctx context.Context, c *models.Contact) error {
	row := contactRow(c)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return translate(err)
	}
	*c = *contactModel(row)
	return nil
}

func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	var row rows.Contact
	if err := r.first(ctx, &row, id); err != nil {
		return nil, err
	}
	return contactModel(&row), nil
}

func (r *Repository) UpdateContact(ctx context.Context, c *models.Contact) error {
	row := contactRow(c)
	if err := r.update(ctx, row, "customer_id", "installer_id", "supplier_id"); err != nil {
		return err
	}
	c.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *Repository) DeleteContact(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, &rows.Contact{}, id)
}

func (r *Repository) ListContacts(ctx context.Context, f ContactFilter) ([]models.Contact, int64, error) {
	var found []rows.Contact
	total, err := list(r.db.WithContext(ctx), &rows.Contact{}, &found, f.ListOptions,
		"is_primary DESC, first_name ASC, last_name ASC",
		func(db *gorm.DB) *gorm.DB {
			if f.Parent != nil {
				db = db.Where(parentColumn(f.Parent.Kind)+" = ?", f.Parent.ID)
			} else if f.Kind != "" {
				db = db.Where(parentColumn(f.Kind) + " IS NOT NULL")
			}
			if f.Primary != nil {
				db = db.Where("is_primary = ?", *f.Primary)
			}
			return db
		},
		"first_name", "last_name", "email", "phone", "role")
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Contact, 0, len(found))
	for i := range found {
		out = append(out, *contactModel(&found[i]))
	}
	return out, total, nil
}

// DemotePrimaryContacts clears the primary flag on every contact of parent
// except the one with id except. It returns the number of demoted contacts.
func (r *Repository) DemotePrimaryContacts(ctx context.Context, parent models.ParentRef, except uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).Model(&rows.Contact{}).
		Where(parentColumn(parent.Kind)+" = ?", parent.ID).
		Where("is_primary = ?", true)
	if except != uuid.Nil {
		query = query.Where("id <> ?", except)
	}
	result := query.Update("is_primary", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to demote primary contacts of %s: %w", parent, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteContactsOf removes every contact of parent.
func (r *Repository) DeleteContactsOf(ctx context.Context, parent models.ParentRef) (int64, error) {
	result := r.db.WithContext(ctx).
		Where(parentColumn(parent.Kind)+" = ?", parent.ID).
		Delete(&rows.Contact{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete contacts of %s: %w", parent, result.Error)
	}
	return result.RowsAffected, nil
}

// LockParent locks the row parent points at for the rest of the
// transaction and fails with ErrNotFound when it does not exist. SQLite
// has no row locks and relies on its single writer instead.
func (r *Repository) LockParent(ctx context.Context, parent models.ParentRef) error {
	model, err := parentModel(parent.Kind)
	if err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if db.Dialector.Name() != DriverSQLite {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ids []uuid.UUID
	if err := db.Model(model).Where("id = ?", parent.ID).Limit(1).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("failed to lock %s: %w", parent, err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s", e.ErrNotFound, parent)
	}
	return nil
}

// RelatedEntity loads the record a contact belongs to. The result is a
// *models.Customer, *models.Installer or *models.Supplier.
func (r *Repository) RelatedEntity(ctx context.Context, parent models.ParentRef) (interface{}, error) {
	switch parent.Kind {
	case models.KindCustomer:
		return r.GetCustomer(ctx, parent.ID)
	case models.KindInstaller:
		return r.GetInstaller(ctx, parent.ID)
	case models.KindSupplier:
		return r.GetSupplier(ctx, parent.ID)
	}
	return nil, fmt.Errorf("%w: unknown parent kind %q", e.ErrInvalidInput, parent.Kind)
}

func parentModel(k models.EntityKind) (interface{}, error) {
	switch k {
	case models.KindCustomer:
		return &rows.Customer{}, nil
	case models.KindInstaller:
		return &rows.Installer{}, nil
	case models.KindSupplier:
		return &rows.Supplier{}, nil
	}
	return nil, fmt.Errorf("%w: unknown parent kind %q", e.ErrInvalidInput, k)
}
