package models

import (
	"time"

	"github.com/gartstein/solarcrm/internal/crm/validators"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractType is the service a contract covers.
type ContractType string

const (
	ContractMonitoring  ContractType = "monitoring"
	ContractLeads       ContractType = "leads"
	ContractMaintenance ContractType = "maintenance"
)

func (t ContractType) Valid() bool {
	switch t {
	case ContractMonitoring, ContractLeads, ContractMaintenance:
		return true
	}
	return false
}

// ContractStatus is the negotiation state of a contract.
type ContractStatus string

const (
	ContractDraft    ContractStatus = "draft"
	ContractSent     ContractStatus = "sent"
	ContractApproved ContractStatus = "approved"
	ContractRevise   ContractStatus = "revise"
	ContractLost     ContractStatus = "lost"
)

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractDraft, ContractSent, ContractApproved, ContractRevise, ContractLost:
		return true
	}
	return false
}

// Contract binds a customer to a service for a period.
type Contract struct {
	Base
	// ContractNumber is assigned once, on insert (CON-NNNNNN).
	ContractNumber string
	ContractType   ContractType
	Status         ContractStatus
	CustomerID     uuid.UUID
	// StartDate and EndDate are calendar dates (midnight UTC).
	StartDate    time.Time
	EndDate      *time.Time
	Value        decimal.NullDecimal
	PaymentTerms string
	// Document is the storage path of the signed contract, if uploaded.
	Document string
	Notes    string
}

// IsExpired reports whether the contract ended strictly before the calendar
// day of now.
func (c *Contract) IsExpired(now time.Time) bool {
	if c.EndDate == nil {
		return false
	}
	return DateOf(*c.EndDate).Before(DateOf(now))
}

// DurationDays is the number of days between start and end, or nil when
// the contract is open ended.
func (c *Contract) DurationDays() *int {
	if c.EndDate == nil {
		return nil
	}
	days := int(DateOf(*c.EndDate).Sub(DateOf(c.StartDate)).Hours() / 24)
	return &days
}

func (c *Contract) Validate() error {
	var chk validators.Checker
	chk.Check(c.ContractType.Valid(), "contract_type", "unknown contract type").
		Check(c.Status.Valid(), "status", "unknown contract status").
		Check(c.CustomerID != uuid.Nil, "customer_id", "this field is required").
		Check(!c.StartDate.IsZero(), "start_date", "this field is required")
	if c.EndDate != nil && !c.StartDate.IsZero() {
		chk.Check(!DateOf(*c.EndDate).Before(DateOf(c.StartDate)), "end_date", "must not be before the start date")
	}
	if c.Value.Valid {
		chk.Check(!c.Value.Decimal.IsNegative(), "value", "must not be negative")
	}
	return chk.Err()
}

// ContractUpdate is a partial Contract change. The customer is fixed.
type ContractUpdate struct {
	ContractType *ContractType
	Status       *ContractStatus
	StartDate    *time.Time
	// EndDate replaces the end date when set; ClearEndDate removes it.
	EndDate      *time.Time
	ClearEndDate bool
	Value        *decimal.NullDecimal
	PaymentTerms *string
	Notes        *string
}

func (u *ContractUpdate) Apply(c *Contract) {
	if u.ContractType != nil {
		c.ContractType = *u.ContractType
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.StartDate != nil {
		c.StartDate = DateOf(*u.StartDate)
	}
	if u.ClearEndDate {
		c.EndDate = nil
	} else if u.EndDate != nil {
		end := DateOf(*u.EndDate)
		c.EndDate = &end
	}
	if u.Value != nil {
		c.Value = *u.Value
	}
	setString(&c.PaymentTerms, u.PaymentTerms)
	setString(&c.Notes, u.Notes)
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
