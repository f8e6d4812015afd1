package models

import "github.com/gartstein/solarcrm/internal/crm/validators"

// Installer is a company or person installing solar systems.
type Installer struct {
	Base
	Address
	CompanyName   string
	Email         string
	Phone         string
	LicenseNumber string
	Notes         string
}

func (i *Installer) String() string { return i.CompanyName }

func (i *Installer) Validate() error {
	var chk validators.Checker
	chk.Required("company_name", i.CompanyName).
		MaxLen("company_name", i.CompanyName, 200).
		Email("email", i.Email).
		Phone("phone", i.Phone).
		MaxLen("license_number", i.LicenseNumber, 50)
	checkAddress(&chk, i.Address)
	return chk.Err()
}

// InstallerUpdate is a partial Installer change.
type InstallerUpdate struct {
	AddressUpdate
	CompanyName   *string
	Email         *string
	Phone         *string
	LicenseNumber *string
	Notes         *string
}

func (u *InstallerUpdate) Apply(i *Installer) {
	setString(&i.CompanyName, u.CompanyName)
	setString(&i.Email, u.Email)
	setString(&i.Phone, u.Phone)
	setString(&i.LicenseNumber, u.LicenseNumber)
	setString(&i.Notes, u.Notes)
	u.AddressUpdate.apply(&i.Address)
}

// SupplierType categorizes what a supplier provides.
type SupplierType string

const (
	SupplierEquipment SupplierType = "equipment"
	SupplierServices  SupplierType = "services"
	SupplierSoftware  SupplierType = "software"
	SupplierOther     SupplierType = "other"
)

func (t SupplierType) Valid() bool {
	switch t {
	case SupplierEquipment, SupplierServices, SupplierSoftware, SupplierOther:
		return true
	}
	return false
}

// Supplier provides goods or services.
type Supplier struct {
	Base
	Address
	Name         string
	SupplierType SupplierType
	Email        string
	Phone        string
	Notes        string
}

func (s *Supplier) String() string { return s.Name }

func (s *Supplier) Validate() error {
	var chk validators.Checker
	chk.Required("name", s.Name).
		MaxLen("name", s.Name, 200).
		Check(s.SupplierType.Valid(), "supplier_type", "unknown supplier type").
		Email("email", s.Email).
		Phone("phone", s.Phone)
	checkAddress(&chk, s.Address)
	return chk.Err()
}

// SupplierUpdate is a partial Supplier change.
type SupplierUpdate struct {
	AddressUpdate
	Name         *string
	SupplierType *SupplierType
	Email        *string
	Phone        *string
	Notes        *string
}

func (u *SupplierUpdate) Apply(s *Supplier) {
	setString(&s.Name, u.Name)
	if u.SupplierType != nil {
		s.SupplierType = *u.SupplierType
	}
	setString(&s.Email, u.Email)
	setString(&s.Phone, u.Phone)
	setString(&s.Notes, u.Notes)
	u.AddressUpdate.apply(&s.Address)
}
