package db

import (
	"time"

	rows "github.com/gartstein/solarcrm/internal/crm/db/models"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
)

func baseRow(b models.Base) rows.Base {
	return rows.Base{ID: b.ID, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt, IsActive: b.IsActive}
}

func baseModel(b rows.Base) models.Base {
	return models.Base{ID: b.ID, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt, IsActive: b.IsActive}
}

func addressRow(a models.Address) rows.Address {
	return rows.Address{Street: a.Street, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
}

func addressModel(a rows.Address) models.Address {
	return models.Address{Street: a.Street, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
}

func customerRow(c *models.Customer) *rows.Customer {
	return &rows.Customer{
		Base:           baseRow(c.Base),
		Address:        addressRow(c.Address),
		CustomerNumber: c.CustomerNumber,
		CustomerType:   string(c.CustomerType),
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		IDNumber:       c.IDNumber,
		CompanyName:    c.CompanyName,
		BusinessNumber: c.BusinessNumber,
		Email:          c.Email,
		Phone:          c.Phone,
		Mobile:         c.Mobile,
		Notes:          c.Notes,
	}
}

func customerModel(r *rows.Customer) *models.Customer {
	return &models.Customer{
		Base:           baseModel(r.Base),
		Address:        addressModel(r.Address),
		CustomerNumber: r.CustomerNumber,
		CustomerType:   models.CustomerType(r.CustomerType),
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		IDNumber:       r.IDNumber,
		CompanyName:    r.CompanyName,
		BusinessNumber: r.BusinessNumber,
		Email:          r.Email,
		Phone:          r.Phone,
		Mobile:         r.Mobile,
		Notes:          r.Notes,
	}
}

func installerRow(i *models.Installer) *rows.Installer {
	return &rows.Installer{
		Base:          baseRow(i.Base),
		Address:       addressRow(i.Address),
		CompanyName:   i.CompanyName,
		Email:         i.Email,
		Phone:         i.Phone,
		LicenseNumber: i.LicenseNumber,
		Notes:         i.Notes,
	}
}

func installerModel(r *rows.Installer) *models.Installer {
	return &models.Installer{
		Base:          baseModel(r.Base),
		Address:       addressModel(r.Address),
		CompanyName:   r.CompanyName,
		Email:         r.Email,
		Phone:         r.Phone,
		LicenseNumber: r.LicenseNumber,
		Notes:         r.Notes,
	}
}

func supplierRow(s *models.Supplier) *rows.Supplier {
	return &rows.Supplier{
		Base:         baseRow(s.Base),
		Address:      addressRow(s.Address),
		Name:         s.Name,
		SupplierType: string(s.SupplierType),
		Email:        s.Email,
		Phone:        s.Phone,
		Notes:        s.Notes,
	}
}

func supplierModel(r *rows.Supplier) *models.Supplier {
	return &models.Supplier{
		Base:         baseModel(r.Base),
		Address:      addressModel(r.Address),
		Name:         r.Name,
		SupplierType: models.SupplierType(r.SupplierType),
		Email:        r.Email,
		Phone:        r.Phone,
		Notes:        r.Notes,
	}
}

// parentColumns spreads the tagged parent onto the three foreign keys.
func parentColumns(p models.ParentRef) (customer, installer, supplier *uuid.UUID) {
	id := p.ID
	switch p.Kind {
	case models.KindCustomer:
		customer = &id
	case models.KindInstaller:
		installer = &id
	case models.KindSupplier:
		supplier = &id
	}
	return customer, installer, supplier
}

func parentRef(r *rows.Contact) models.ParentRef {
	switch {
	case r.CustomerID != nil:
		return models.CustomerRef(*r.CustomerID)
	case r.InstallerID != nil:
		return models.InstallerRef(*r.InstallerID)
	case r.SupplierID != nil:
		return models.SupplierRef(*r.SupplierID)
	}
	return models.ParentRef{}
}

// parentColumn is the foreign key column that holds a parent of kind k.
func parentColumn(k models.EntityKind) string {
	switch k {
	case models.KindInstaller:
		return "installer_id"
	case models.KindSupplier:
		return "supplier_id"
	}
	return "customer_id"
}

func contactRow(c *models.Contact) *rows.Contact {
	customer, installer, supplier := parentColumns(c.Parent)
	return &rows.Contact{
		Base:        baseRow(c.Base),
		CustomerID:  customer,
		InstallerID: installer,
		SupplierID:  supplier,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Role:        c.Role,
		Email:       c.Email,
		Phone:       c.Phone,
		IsPrimary:   c.IsPrimary,
	}
}

func contactModel(r *rows.Contact) *models.Contact {
	return &models.Contact{
		Base:      baseModel(r.Base),
		Parent:    parentRef(r),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      r.Role,
		Email:     r.Email,
		Phone:     r.Phone,
		IsPrimary: r.IsPrimary,
	}
}

func leadRow(l *models.Lead) *rows.Lead {
	return &rows.Lead{
		Base:                baseRow(l.Base),
		Address:             addressRow(l.Address),
		LeadNumber:          l.LeadNumber,
		LeadSource:          string(l.LeadSource),
		Status:              string(l.Status),
		ContactName:         l.ContactName,
		Email:               l.Email,
		Phone:               l.Phone,
		EstimatedSystemSize: l.EstimatedSystemSize,
		AssignedTo:          l.AssignedTo,
		CustomerID:          l.CustomerID,
		Notes:               l.Notes,
	}
}

func leadModel(r *rows.Lead) *models.Lead {
	return &models.Lead{
		Base:                baseModel(r.Base),
		Address:             addressModel(r.Address),
		LeadNumber:          r.LeadNumber,
		LeadSource:          models.LeadSource(r.LeadSource),
		Status:              models.LeadStatus(r.Status),
		ContactName:         r.ContactName,
		Email:               r.Email,
		Phone:               r.Phone,
		EstimatedSystemSize: r.EstimatedSystemSize,
		AssignedTo:          r.AssignedTo,
		CustomerID:          r.CustomerID,
		Notes:               r.Notes,
	}
}

func contractRow(c *models.Contract) *rows.Contract {
	return &rows.Contract{
		Base:           baseRow(c.Base),
		ContractNumber: c.ContractNumber,
		ContractType:   string(c.ContractType),
		Status:         string(c.Status),
		CustomerID:     c.CustomerID,
		StartDate:      models.DateOf(c.StartDate),
		EndDate:        datePtr(c.EndDate),
		Value:          c.Value,
		PaymentTerms:   c.PaymentTerms,
		Document:       c.Document,
		Notes:          c.Notes,
	}
}

func contractModel(r *rows.Contract) *models.Contract {
	return &models.Contract{
		Base:           baseModel(r.Base),
		ContractNumber: r.ContractNumber,
		ContractType:   models.ContractType(r.ContractType),
		Status:         models.ContractStatus(r.Status),
		CustomerID:     r.CustomerID,
		StartDate:      models.DateOf(r.StartDate),
		EndDate:        datePtr(r.EndDate),
		Value:          r.Value,
		PaymentTerms:   r.PaymentTerms,
		Document:       r.Document,
		Notes:          r.Notes,
	}
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOf(*t)
	return &d
}
