package db

import (
	"context"

	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InstallerFilter struct {
	ListOptions
	City string
}

type SupplierFilter struct {
	ListOptions
	Type models.SupplierType
}

func (r *Repository) CreateInstaller(ctx context.Context, i *models.Installer) error {
	row := installerRow(i)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error; err != nil {
		return translate(err)
	}
	*i = *installerModel(row)
	return nil
}

func (r *Repository) GetInstaller(ctx context.Context, id uuid.UUID) (*models.Installer, error) {
	var row rows.Installer
	if err := r.first(ctx, &row, id); err != nil {
		return nil, err
	}
	return installerModel(&row), nil
}

func (r *Repository) UpdateInstaller(ctx context.Context, i *models.Installer) error {
	row := installerRow(i)
	if err := r.update(ctx, row); err != nil {
		return err
	}
	i.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *Repository) SetInstallerActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.setActive(ctx, &rows.Installer{}, id, active)
}

func (r *Repository) DeleteInstaller(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, &rows.Installer{}, id)
}

func (r *Repository) ListInstallers(ctx context.Context, f InstallerFilter) ([]models.Installer, int64, error) {
	var found []rows.Installer
	total, err := list(r.db.WithContext(ctx), &rows.Installer{}, &found, f.ListOptions, "company_name ASC",
		func(db *gorm.DB) *gorm.DB {
			if f.City != "" {
				db = db.Where("city = ?", f.City)
			}
			return db
		},
		"company_name", "email", "phone")
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Installer, 0, len(found))
	for i := range found {
		out = append(out, *installerModel(&found[i]))
	}
	return out, total, nil
}

func (r *Repository) CreateSupplier(ctx context.Context, s *models.Supplier) error {
	row := supplierRow(s)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error; err != nil {
		return translate(err)
	}
	*s = *supplierModel(row)
	return nil
}

func (r *Repository) GetSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var row rows.Supplier
	if err := r.first(ctx, &row, id); err != nil {
		return nil, err
	}
	return supplierModel(&row), nil
}

func (r *Repository) UpdateSupplier(ctx context.Context, s *models.Supplier) error {
	row := supplierRow(s)
	if err := r.update(ctx, row); err != nil {
		return err
	}
	s.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *Repository) SetSupplierActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.setActive(ctx, &rows.Supplier{}, id, active)
}

func (r *Repository) DeleteSupplier(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, &rows.Supplier{}, id)
}

func (r *Repository) ListSuppliers(ctx context.Context, f SupplierFilter) ([]models.Supplier, int64, error) {
	var found []rows.Supplier
	total, err := list(r.db.WithContext(ctx), &rows.Supplier{}, &found, f.ListOptions, "name ASC",
		func(db *gorm.DB) *gorm.DB {
			if f.Type != "" {
				db = db.Where("supplier_type = ?", f.Type)
			}
			return db
		},
		"name", "email")
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.Supplier, 0, len(found))
	for i := range found {
		out = append(out, *supplierModel(&found[i]))
	}
	return out, total, nil
}
