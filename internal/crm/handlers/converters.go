package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// date is a calendar date in YYYY-MM-DD form.
type date struct {
	time.Time
}

func (d *date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", e.ErrInvalidInput)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", e.ErrInvalidInput, s)
	}
	d.Time = t
	return nil
}

func (d *date) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return lo.ToPtr(t.Format(time.DateOnly))
}

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func newList[M any, T any](items []M, total int64, convert func(*M) T) listResponse[T] {
	return listResponse[T]{
		Items: lo.Map(items, func(m M, _ int) T { return convert(&m) }),
		Total: total,
	}
}

type baseDTO struct {
	ID        uuid.UUID `json:"id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toBaseDTO(b models.Base) baseDTO {
	return baseDTO{ID: b.ID, IsActive: b.IsActive, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

type addressDTO struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	FullAddress string `json:"full_address"`
}

func toAddressDTO(a models.Address) addressDTO {
	return addressDTO{
		Street:      a.Street,
		City:        a.City,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
		FullAddress: a.FullAddress(),
	}
}

type addressInput struct {
	Street     *string `json:"street"`
	City       *string `json:"city"`
	PostalCode *string `json:"postal_code"`
	Country    *string `json:"country"`
}

func (in addressInput) update() models.AddressUpdate {
	return models.AddressUpdate{Street: in.Street, City: in.City, PostalCode: in.PostalCode, Country: in.Country}
}

type customerDTO struct {
	baseDTO
	addressDTO
	CustomerNumber string              `json:"customer_number"`
	CustomerType   models.CustomerType `json:"customer_type"`
	DisplayName    string              `json:"display_name"`
	FirstName      string              `json:"first_name"`
	LastName       string              `json:"last_name"`
	IDNumber       string              `json:"id_number"`
	CompanyName    string              `json:"company_name"`
	BusinessNumber string              `json:"business_number"`
	Email          string              `json:"email"`
	Phone          string              `json:"phone"`
	Mobile         string              `json:"mobile"`
	Notes          string              `json:"notes"`
}

func toCustomerDTO(c *models.Customer) customerDTO {
	return customerDTO{
		baseDTO:        toBaseDTO(c.Base),
		addressDTO:     toAddressDTO(c.Address),
		CustomerNumber: c.CustomerNumber,
		CustomerType:   c.CustomerType,
		DisplayName:    c.DisplayName(),
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

// customerInput is the body of create and update requests. Absent fields
// are left unchanged on update.
type customerInput struct {
	addressInput
	CustomerType   *models.CustomerType `json:"customer_type"`
	FirstName      *string              `json:"first_name"`
	LastName       *string              `json:"last_name"`
	IDNumber       *string              `json:"id_number"`
	CompanyName    *string              `json:"company_name"`
	BusinessNumber *string              `json:"business_number"`
	Email          *string              `json:"email"`
	Phone          *string              `json:"phone"`
	Mobile         *string              `json:"mobile"`
	Notes          *string              `json:"notes"`
}

func (in *customerInput) update() *models.CustomerUpdate {
	return &models.CustomerUpdate{
		AddressUpdate:  in.addressInput.update(),
		CustomerType:   in.CustomerType,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		IDNumber:       in.IDNumber,
		CompanyName:    in.CompanyName,
		BusinessNumber: in.BusinessNumber,
		Email:          in.Email,
		Phone:          in.Phone,
		Mobile:         in.Mobile,
		Notes:          in.Notes,
	}
}

func (in *customerInput) model() *models.Customer {
	c := &models.Customer{}
	in.update().Apply(c)
	return c
}

type installerDTO struct {
	baseDTO
	addressDTO
	CompanyName   string `json:"company_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"license_number"`
	Notes         string `json:"notes"`
}

func toInstallerDTO(i *models.Installer) installerDTO {
	return installerDTO{
		baseDTO:       toBaseDTO(i.Base),
		addressDTO:    toAddressDTO(i.Address),
		CompanyName:   i.CompanyName,
		Email:         i.Email,
		Phone:         i.Phone,
		LicenseNumber: i.LicenseNumber,
		Notes:         i.Notes,
	}
}

type installerInput struct {
	addressInput
	CompanyName   *string `json:"company_name"`
	Email         *string `json:"email"`
	Phone         *string `json:"phone"`
	LicenseNumber *string `json:"license_number"`
	Notes         *string `json:"notes"`
}

func (in *installerInput) update() *models.InstallerUpdate {
	return &models.InstallerUpdate{
		AddressUpdate: in.addressInput.update(),
		CompanyName:   in.CompanyName,
		Email:         in.Email,
		Phone:         in.Phone,
		LicenseNumber: in.LicenseNumber,
		Notes:         in.Notes,
	}
}

func (in *installerInput) model() *models.Installer {
	i := &models.Installer{}
	in.update().Apply(i)
	return i
}

type supplierDTO struct {
	baseDTO
	addressDTO
	Name         string              `json:"name"`
	SupplierType models.SupplierType `json:"supplier_type"`
	Email        string              `json:"email"`
	Phone        string              `json:"phone"`
	Notes        string              `json:"notes"`
}

func toSupplierDTO(s *models.Supplier) supplierDTO {
	return supplierDTO{
		baseDTO:      toBaseDTO(s.Base),
		addressDTO:   toAddressDTO(s.Address),
		Name:         s.Name,
		SupplierType: s.SupplierType,
		Email:        s.Email,
		Phone:        s.Phone,
		Notes:        s.Notes,
	}
}

type supplierInput struct {
	addressInput
	Name         *string              `json:"name"`
	SupplierType *models.SupplierType `json:"supplier_type"`
	Email        *string              `json:"email"`
	Phone        *string              `json:"phone"`
	Notes        *string              `json:"notes"`
}

func (in *supplierInput) update() *models.SupplierUpdate {
	return &models.SupplierUpdate{
		AddressUpdate: in.addressInput.update(),
		Name:          in.Name,
		SupplierType:  in.SupplierType,
		Email:         in.Email,
		Phone:         in.Phone,
		Notes:         in.Notes,
	}
}

func (in *supplierInput) model() *models.Supplier {
	s := &models.Supplier{}
	in.update().Apply(s)
	return s
}

type contactDTO struct {
	baseDTO
	EntityType models.EntityKind `json:"entity_type"`
	EntityID   uuid.UUID         `json:"entity_id"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	FullName   string            `json:"full_name"`
	Role       string            `json:"role"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	IsPrimary  bool              `json:"is_primary"`
}

func toContactDTO(c *models.Contact) contactDTO {
	return contactDTO{
		baseDTO:    toBaseDTO(c.Base),
		EntityType: c.EntityType(),
		EntityID:   c.Parent.ID,
		FirstName:  c.FirstName,
		LastName:   c.LastName,
		FullName:   c.FullName(),
		Role:       c.Role,
		Email:      c.Email,
		Phone:      c.Phone,
		IsPrimary:  c.IsPrimary,
	}
}

type contactInput struct {
	EntityType *models.EntityKind `json:"entity_type"`
	EntityID   *uuid.UUID         `json:"entity_id"`
	FirstName  *string            `json:"first_name"`
	LastName   *string            `json:"last_name"`
	Role       *string            `json:"role"`
	Email      *string            `json:"email"`
	Phone      *string            `json:"phone"`
	IsPrimary  *bool              `json:"is_primary"`
}

func (in *contactInput) update() (*models.ContactUpdate, error) {
	if in.EntityType != nil || in.EntityID != nil {
		var v e.ValidationError
		v.Add("entity_type", "the parent of a contact cannot be changed")
		return nil, v.Err()
	}
	return &models.ContactUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		Email:     in.Email,
		Phone:     in.Phone,
		IsPrimary: in.IsPrimary,
	}, nil
}

// model builds a new contact. The parent may also come from the URL.
func (in *contactInput) model(parent *models.ParentRef) *models.Contact {
	c := &models.Contact{}
	switch {
	case parent != nil:
		c.Parent = *parent
	case in.EntityType != nil && in.EntityID != nil:
		c.Parent = models.ParentRef{Kind: *in.EntityType, ID: *in.EntityID}
	}
	u := models.ContactUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		Email:     in.Email,
		Phone:     in.Phone,
		IsPrimary: in.IsPrimary,
	}
	u.Apply(c)
	return c
}

type leadDTO struct {
	baseDTO
	addressDTO
	LeadNumber          string              `json:"lead_number"`
	LeadSource          models.LeadSource   `json:"lead_source"`
	Status              models.LeadStatus   `json:"status"`
	ContactName         string              `json:"contact_name"`
	Email               string              `json:"email"`
	Phone               string              `json:"phone"`
	EstimatedSystemSize decimal.NullDecimal `json:"estimated_system_size"`
	AssignedTo          *string             `json:"assigned_to"`
	CustomerID          *uuid.UUID          `json:"customer_id"`
	Converted           bool                `json:"converted"`
	Notes               string              `json:"notes"`
}

func toLeadDTO(l *models.Lead) leadDTO {
	return leadDTO{
		baseDTO:             toBaseDTO(l.Base),
		addressDTO:          toAddressDTO(l.Address),
		LeadNumber:          l.LeadNumber,
		LeadSource:          l.LeadSource,
		Status:              l.Status,
		ContactName:         l.ContactName,
		Email:               l.Email,
		Phone:               l.Phone,
		EstimatedSystemSize: l.EstimatedSystemSize,
		AssignedTo:          l.AssignedTo,
		CustomerID:          l.CustomerID,
		Converted:           l.Converted(),
		Notes:               l.Notes,
	}
}

type leadInput struct {
	addressInput
	LeadSource          *models.LeadSource   `json:"lead_source"`
	Status              *models.LeadStatus   `json:"status"`
	ContactName         *string              `json:"contact_name"`
	Email               *string              `json:"email"`
	Phone               *string              `json:"phone"`
	EstimatedSystemSize *decimal.NullDecimal `json:"estimated_system_size"`
	AssignedTo          *string              `json:"assigned_to"`
	Notes               *string              `json:"notes"`
}

func (in *leadInput) update() *models.LeadUpdate {
	return &models.LeadUpdate{
		AddressUpdate:       in.addressInput.update(),
		LeadSource:          in.LeadSource,
		Status:              in.Status,
		ContactName:         in.ContactName,
		Email:               in.Email,
		Phone:               in.Phone,
		EstimatedSystemSize: in.EstimatedSystemSize,
		AssignedTo:          in.AssignedTo,
		Notes:               in.Notes,
	}
}

func (in *leadInput) model() *models.Lead {
	l := &models.Lead{}
	in.update().Apply(l)
	return l
}

type relatedDTO struct {
	EntityType models.EntityKind `json:"entity_type"`
	Entity     interface{}       `json:"entity"`
}

type conversionDTO struct {
	Lead     leadDTO     `json:"lead"`
	Customer customerDTO `json:"customer"`
	Contact  *contactDTO `json:"contact,omitempty"`
	Created  bool        `json:"created"`
}

type statusChangeInput struct {
	IDs    []uuid.UUID       `json:"ids"`
	Status models.LeadStatus `json:"status"`
}

type contractDTO struct {
	baseDTO
	ContractNumber string                `json:"contract_number"`
	ContractType   models.ContractType   `json:"contract_type"`
	Status         models.ContractStatus `json:"status"`
	CustomerID     uuid.UUID             `json:"customer_id"`
	StartDate      *string               `json:"start_date"`
	EndDate        *string               `json:"end_date"`
	Value          decimal.NullDecimal   `json:"value"`
	PaymentTerms   string                `json:"payment_terms"`
	Document       string                `json:"document"`
	Notes          string                `json:"notes"`
	IsExpired      bool                  `json:"is_expired"`
	DurationDays   *int                  `json:"duration_days"`
}

func toContractDTO(c *models.Contract, now time.Time) contractDTO {
	return contractDTO{
		baseDTO:        toBaseDTO(c.Base),
		ContractNumber: c.ContractNumber,
		ContractType:   c.ContractType,
		Status:         c.Status,
		CustomerID:     c.CustomerID,
		StartDate:      formatDate(&c.StartDate),
		EndDate:        formatDate(c.EndDate),
		Value:          c.Value,
		PaymentTerms:   c.PaymentTerms,
		Document:       c.Document,
		Notes:          c.Notes,
		IsExpired:      c.IsExpired(now),
		DurationDays:   c.DurationDays(),
	}
}

type contractInput struct {
	ContractType *models.ContractType   `json:"contract_type"`
	Status       *models.ContractStatus `json:"status"`
	CustomerID   *uuid.UUID             `json:"customer_id"`
	StartDate    *date                  `json:"start_date"`
	EndDate      *date                  `json:"end_date"`
	// ClearEndDate removes the end date on update.
	ClearEndDate bool                 `json:"clear_end_date"`
	Value        *decimal.NullDecimal `json:"value"`
	PaymentTerms *string              `json:"payment_terms"`
	Notes        *string              `json:"notes"`
}

func (in *contractInput) update() (*models.ContractUpdate, error) {
	if in.CustomerID != nil {
		var v e.ValidationError
		v.Add("customer_id", "the customer of a contract cannot be changed")
		return nil, v.Err()
	}
	return in.changes(), nil
}

func (in *contractInput) changes() *models.ContractUpdate {
	return &models.ContractUpdate{
		ContractType: in.ContractType,
		Status:       in.Status,
		StartDate:    in.StartDate.ptr(),
		EndDate:      in.EndDate.ptr(),
		ClearEndDate: in.ClearEndDate,
		Value:        in.Value,
		PaymentTerms: in.PaymentTerms,
		Notes:        in.Notes,
	}
}

func (in *contractInput) model() *models.Contract {
	c := &models.Contract{}
	in.changes().Apply(c)
	if in.CustomerID != nil {
		c.CustomerID = *in.CustomerID
	}
	return c
}
