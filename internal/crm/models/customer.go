package models

import (
	"strings"

	"github.com/gartstein/solarcrm/internal/crm/validators"
)

// CustomerType distinguishes private customers from businesses.
type CustomerType string

const (
	CustomerPrivate  CustomerType = "private"
	CustomerBusiness CustomerType = "business"
)

// Customer is a private person or a company the business sells to.
type Customer struct {
	Base
	Address
	// CustomerNumber is assigned once, on insert (CUS-NNNNNN).
	CustomerNumber string
	CustomerType   CustomerType

	// Private customer identity.
	FirstName string
	LastName  string
	IDNumber  string

	// Business customer identity.
	CompanyName    string
	BusinessNumber string

	Email  string
	Phone  string
	Mobile string
	Notes  string
}

// DisplayName is the company name for businesses and "first last" otherwise.
func (c *Customer) DisplayName() string {
	if c.CustomerType == CustomerBusiness {
		return c.CompanyName
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Customer) String() string {
	return c.CustomerNumber + " | " + c.DisplayName()
}

// Validate checks field formats and that only the identity fields matching
// the customer type are populated.
func (c *Customer) Validate() error {
	var chk validators.Checker
	switch c.CustomerType {
	case CustomerPrivate:
		chk.Check(c.FirstName != "" || c.LastName != "", "first_name", "private customer requires a name").
			Check(c.CompanyName == "" && c.BusinessNumber == "", "company_name", "company fields are not allowed for a private customer")
	case CustomerBusiness:
		chk.Required("company_name", c.CompanyName).
			Check(c.FirstName == "" && c.LastName == "" && c.IDNumber == "", "first_name", "personal fields are not allowed for a business customer")
	default:
		chk.Check(false, "customer_type", "unknown customer type")
	}
	chk.MaxLen("first_name", c.FirstName, NameMaxLen).
		MaxLen("last_name", c.LastName, NameMaxLen).
		IDNumber("id_number", c.IDNumber).
		MaxLen("company_name", c.CompanyName, 200).
		MaxLen("business_number", c.BusinessNumber, 20).
		Email("email", c.Email).
		Phone("phone", c.Phone).
		Phone("mobile", c.Mobile)
	checkAddress(&chk, c.Address)
	return chk.Err()
}

// CustomerUpdate represents the fields that can be updated for a Customer.
// Pointer types are used to allow partial updates.
type CustomerUpdate struct {
	AddressUpdate
	CustomerType   *CustomerType
	FirstName      *string
	LastName       *string
	IDNumber       *string
	CompanyName    *string
	BusinessNumber *string
	Email          *string
	Phone          *string
	Mobile         *string
	Notes          *string
}

// Apply copies the set fields of u onto c.
func (u *CustomerUpdate) Apply(c *Customer) {
	if u.CustomerType != nil {
		c.CustomerType = *u.CustomerType
	}
	setString(&c.FirstName, u.FirstName)
	setString(&c.LastName, u.LastName)
	setString(&c.IDNumber, u.IDNumber)
	setString(&c.CompanyName, u.CompanyName)
	setString(&c.BusinessNumber, u.BusinessNumber)
	setString(&c.Email, u.Email)
	setString(&c.Phone, u.Phone)
	setString(&c.Mobile, u.Mobile)
	setString(&c.Notes, u.Notes)
	u.AddressUpdate.apply(&c.Address)
}

func checkAddress(chk *validators.Checker, a Address) {
	chk.MaxLen("street", a.Street, 200).
		MaxLen("city", a.City, 100).
		MaxLen("postal_code", a.PostalCode, 20).
		MaxLen("country", a.Country, 100)
}
