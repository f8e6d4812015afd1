package controller

import (
	"context"

	"github.com/gartstein/solarcrm/internal/crm/db"
	"github.com/gartstein/solarcrm/internal/crm/events"
	"github.com/gartstein/solarcrm/internal/crm/metrics"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	entityInstaller = "installer"
	entitySupplier  = "supplier"
)

// VendorService manages installers and suppliers.
type VendorService struct {
	service
}

func (s *VendorService) CreateInstaller(ctx context.Context, i *models.Installer) (*models.Installer, error) {
	defaultCountry(&i.Address)
	i.ID = uuid.New()
	i.IsActive = true
	if err := i.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateInstaller(ctx, i); err != nil {
		return nil, wrap(err, "create installer")
	}
	metrics.RecordsCreated.WithLabelValues(entityInstaller).Inc()
	s.emit(events.InstallerSaved, entityInstaller, i.ID, "", installerPayload(i))
	return i, nil
}

func (s *VendorService) GetInstaller(ctx context.Context, id uuid.UUID) (*models.Installer, error) {
	i, err := s.repo.GetInstaller(ctx, id)
	if err != nil {
		return nil, wrap(err, "get installer")
	}
	return i, nil
}

func (s *VendorService) UpdateInstaller(ctx context.Context, id uuid.UUID, update *models.InstallerUpdate) (*models.Installer, error) {
	if err := requireID(id, entityInstaller); err != nil {
		return nil, err
	}
	i, err := s.repo.GetInstaller(ctx, id)
	if err != nil {
		return nil, wrap(err, "get installer")
	}
	update.Apply(i)
	defaultCountry(&i.Address)
	if err := i.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInstaller(ctx, i); err != nil {
		return nil, wrap(err, "update installer")
	}
	updated, err := s.repo.GetInstaller(ctx, id)
	if err != nil {
		return nil, wrap(err, "get installer")
	}
	s.emit(events.InstallerSaved, entityInstaller, updated.ID, "", installerPayload(updated))
	return updated, nil
}

func (s *VendorService) SetInstallerActive(ctx context.Context, id uuid.UUID, active bool) (*models.Installer, error) {
	if err := s.repo.SetInstallerActive(ctx, id, active); err != nil {
		return nil, wrap(err, "change installer state")
	}
	if !active {
		metrics.RecordsDeleted.WithLabelValues(entityInstaller, "soft").Inc()
	}
	i, err := s.repo.GetInstaller(ctx, id)
	if err != nil {
		return nil, wrap(err, "get installer")
	}
	s.emit(events.InstallerSaved, entityInstaller, i.ID, "", installerPayload(i))
	return i, nil
}

// DeleteInstaller removes the installer and its contacts.
func (s *VendorService) DeleteInstaller(ctx context.Context, id uuid.UUID) error {
	var contacts int64
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.GetInstaller(ctx, id); err != nil {
			return err
		}
		var err error
		if contacts, err = tx.DeleteContactsOf(ctx, models.InstallerRef(id)); err != nil {
			return err
		}
		return tx.DeleteInstaller(ctx, id)
	})
	if err != nil {
		return wrap(err, "delete installer")
	}
	metrics.RecordsDeleted.WithLabelValues(entityInstaller, "hard").Inc()
	s.logger.Info("Deleted installer",
		zap.String("installer_id", id.String()),
		zap.Int64("contacts_deleted", contacts),
	)
	s.emit(events.InstallerDeleted, entityInstaller, id, "", nil)
	return nil
}

func (s *VendorService) ListInstallers(ctx context.Context, f db.InstallerFilter) ([]models.Installer, int64, error) {
	found, total, err := s.repo.ListInstallers(ctx, f)
	if err != nil {
		return nil, 0, wrap(err, "list installers")
	}
	return found, total, nil
}

func (s *VendorService) CreateSupplier(ctx context.Context, sup *models.Supplier) (*models.Supplier, error) {
	if sup.SupplierType == "" {
		sup.SupplierType = models.SupplierEquipment
	}
	defaultCountry(&sup.Address)
	sup.ID = uuid.New()
	sup.IsActive = true
	if err := sup.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateSupplier(ctx, sup); err != nil {
		return nil, wrap(err, "create supplier")
	}
	metrics.RecordsCreated.WithLabelValues(entitySupplier).Inc()
	s.emit(events.SupplierSaved, entitySupplier, sup.ID, "", supplierPayload(sup))
	return sup, nil
}

func (s *VendorService) GetSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	sup, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return nil, wrap(err, "get supplier")
	}
	return sup, nil
}

func (s *VendorService) UpdateSupplier(ctx context.Context, id uuid.UUID, update *models.SupplierUpdate) (*models.Supplier, error) {
	if err := requireID(id, entitySupplier); err != nil {
		return nil, err
	}
	sup, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return nil, wrap(err, "get supplier")
	}
	update.Apply(sup)
	defaultCountry(&sup.Address)
	if err := sup.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSupplier(ctx, sup); err != nil {
		return nil, wrap(err, "update supplier")
	}
	updated, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return nil, wrap(err, "get supplier")
	}
	s.emit(events.SupplierSaved, entitySupplier, updated.ID, "", supplierPayload(updated))
	return updated, nil
}

func (s *VendorService) SetSupplierActive(ctx context.Context, id uuid.UUID, active bool) (*models.Supplier, error) {
	if err := s.repo.SetSupplierActive(ctx, id, active); err != nil {
		return nil, wrap(err, "change supplier state")
	}
	if !active {
		metrics.RecordsDeleted.WithLabelValues(entitySupplier, "soft").Inc()
	}
	sup, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return nil, wrap(err, "get supplier")
	}
	s.emit(events.SupplierSaved, entitySupplier, sup.ID, "", supplierPayload(sup))
	return sup, nil
}

// DeleteSupplier removes the supplier and its contacts.
func (s *VendorService) DeleteSupplier(ctx context.Context, id uuid.UUID) error {
	var contacts int64
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.GetSupplier(ctx, id); err != nil {
			return err
		}
		var err error
		if contacts, err = tx.DeleteContactsOf(ctx, models.SupplierRef(id)); err != nil {
			return err
		}
		return tx.DeleteSupplier(ctx, id)
	})
	if err != nil {
		return wrap(err, "delete supplier")
	}
	metrics.RecordsDeleted.WithLabelValues(entitySupplier, "hard").Inc()
	s.logger.Info("Deleted supplier",
		zap.String("supplier_id", id.String()),
		zap.Int64("contacts_deleted", contacts),
	)
	s.emit(events.SupplierDeleted, entitySupplier, id, "", nil)
	return nil
}

func (s *VendorService) ListSuppliers(ctx context.Context, f db.SupplierFilter) ([]models.Supplier, int64, error) {
	found, total, err := s.repo.ListSuppliers(ctx, f)
	if err != nil {
		return nil, 0, wrap(err, "list suppliers")
	}
	return found, total, nil
}

func installerPayload(i *models.Installer) map[string]interface{} {
	return map[string]interface{}{
		"company_name":   i.CompanyName,
		"license_number": i.LicenseNumber,
		"is_active":      i.IsActive,
	}
}

func supplierPayload(s *models.Supplier) map[string]interface{} {
	return map[string]interface{}{
		"name":          s.Name,
		"supplier_type": s.SupplierType,
		"is_active":     s.IsActive,
	}
}
