package models

import (
	"github.com/gartstein/solarcrm/internal/crm/validators"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LeadStatus is the sales stage of a lead.
type LeadStatus string

const (
	LeadNew   LeadStatus = "new"
	LeadQuote LeadStatus = "quote"
	LeadWon   LeadStatus = "won"
	LeadLost  LeadStatus = "lost"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadQuote, LeadWon, LeadLost:
		return true
	}
	return false
}

// LeadSource records where a lead came from. Empty means unknown.
type LeadSource string

const (
	SourceWebsite  LeadSource = "website"
	SourceReferral LeadSource = "referral"
	SourcePhone    LeadSource = "phone"
	SourceCampaign LeadSource = "campaign"
	SourceOther    LeadSource = "other"
)

func (s LeadSource) Valid() bool {
	switch s {
	case "", SourceWebsite, SourceReferral, SourcePhone, SourceCampaign, SourceOther:
		return true
	}
	return false
}

// Lead is a prospective customer prior to signing.
type Lead struct {
	Base
	Address
	// LeadNumber is assigned once, on insert (LED-NNNNNN).
	LeadNumber  string
	LeadSource  LeadSource
	Status      LeadStatus
	ContactName string
	Email       string
	Phone       string
	// EstimatedSystemSize is the expected system size in kWp.
	EstimatedSystemSize decimal.NullDecimal
	// AssignedTo is the subject of the user owning the lead.
	AssignedTo *string
	// CustomerID is set once the lead has been converted.
	CustomerID *uuid.UUID
	Notes      string
}

// Converted reports whether the lead already produced a customer.
func (l *Lead) Converted() bool {
	return l.CustomerID != nil
}

func (l *Lead) String() string {
	return l.LeadNumber + " | " + l.ContactName
}

func (l *Lead) Validate() error {
	var chk validators.Checker
	chk.Required("contact_name", l.ContactName).
		MaxLen("contact_name", l.ContactName, 200).
		Check(l.LeadSource.Valid(), "lead_source", "unknown lead source").
		Check(l.Status.Valid(), "status", "unknown lead status").
		Check(!l.Converted() || l.Status == LeadWon, "status", "a converted lead must stay won").
		Email("email", l.Email).
		Phone("phone", l.Phone)
	if l.EstimatedSystemSize.Valid {
		chk.Check(!l.EstimatedSystemSize.Decimal.IsNegative(), "estimated_system_size", "must not be negative")
	}
	checkAddress(&chk, l.Address)
	return chk.Err()
}

// LeadUpdate is a partial Lead change. Conversion is not an update.
type LeadUpdate struct {
	AddressUpdate
	LeadSource  *LeadSource
	Status      *LeadStatus
	ContactName *string
	Email       *string
	Phone       *string
	// EstimatedSystemSize replaces the stored value when non-nil; an invalid
	// NullDecimal clears it.
	EstimatedSystemSize *decimal.NullDecimal
	// AssignedTo replaces the assignee when non-nil; a pointer to "" clears it.
	AssignedTo *string
	Notes      *string
}

func (u *LeadUpdate) Apply(l *Lead) {
	if u.LeadSource != nil {
		l.LeadSource = *u.LeadSource
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	setString(&l.ContactName, u.ContactName)
	setString(&l.Email, u.Email)
	setString(&l.Phone, u.Phone)
	if u.EstimatedSystemSize != nil {
		l.EstimatedSystemSize = *u.EstimatedSystemSize
	}
	if u.AssignedTo != nil {
		if *u.AssignedTo == "" {
			l.AssignedTo = nil
		} else {
			assignee := *u.AssignedTo
			l.AssignedTo = &assignee
		}
	}
	setString(&l.Notes, u.Notes)
	u.AddressUpdate.apply(&l.Address)
}
