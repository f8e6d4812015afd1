// Package models contains the persistence rows of the CRM,
// configured to work using GORM as the ORM.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Base holds the columns present on every table. IsActive is the
// soft-delete flag; rows are never hidden by the ORM.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool `gorm:"not null;index"`
}

// BeforeCreate assigns a random ID to rows inserted without one.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Address columns shared by customers, vendors and leads.
type Address struct {
	Street     string `gorm:"size:200"`
	City       string `gorm:"size:100;index"`
	PostalCode string `gorm:"size:20"`
	Country    string `gorm:"size:100"`
}

type Customer struct {
	Base
	Address
	CustomerNumber string `gorm:"size:20;not null;uniqueIndex;<-:create"`
	CustomerType   string `gorm:"size:20;not null;index"`
	FirstName      string `gorm:"size:100"`
	LastName       string `gorm:"size:100"`
	IDNumber       string `gorm:"size:9"`
	CompanyName    string `gorm:"size:200"`
	BusinessNumber string `gorm:"size:20"`
	Email          string `gorm:"size:254"`
	Phone          string `gorm:"size:20"`
	Mobile         string `gorm:"size:20"`
	Notes          string `gorm:"type:text"`

	Contacts  []Contact  `gorm:"constraint:OnDelete:CASCADE"`
	Leads     []Lead     `gorm:"constraint:OnDelete:SET NULL"`
	Contracts []Contract `gorm:"constraint:OnDelete:RESTRICT"`
}

type Installer struct {
	Base
	Address
	CompanyName   string `gorm:"size:200;not null;index"`
	Email         string `gorm:"size:254"`
	Phone         string `gorm:"size:20"`
	LicenseNumber string `gorm:"size:50"`
	Notes         string `gorm:"type:text"`

	Contacts []Contact `gorm:"constraint:OnDelete:CASCADE"`
}

type Supplier struct {
	Base
	Address
	Name         string `gorm:"size:200;not null;index"`
	SupplierType string `gorm:"size:20;not null;index"`
	Email        string `gorm:"size:254"`
	Phone        string `gorm:"size:20"`
	Notes        string `gorm:"type:text"`

	Contacts []Contact `gorm:"constraint:OnDelete:CASCADE"`
}

// Contact stores its parent as three nullable foreign keys; the check
// constraint guarantees exactly one is set.
type Contact struct {
	Base
	CustomerID  *uuid.UUID `gorm:"type:uuid;index;check:chk_contacts_single_parent,(CASE WHEN customer_id IS NULL THEN 0 ELSE 1 END) + (CASE WHEN installer_id IS NULL THEN 0 ELSE 1 END) + (CASE WHEN supplier_id IS NULL THEN 0 ELSE 1 END) = 1"`
	InstallerID *uuid.UUID `gorm:"type:uuid;index"`
	SupplierID  *uuid.UUID `gorm:"type:uuid;index"`
	FirstName   string     `gorm:"size:100;not null"`
	LastName    string     `gorm:"size:100"`
	Role        string     `gorm:"size:100"`
	Email       string     `gorm:"size:254"`
	Phone       string     `gorm:"size:20"`
	IsPrimary   bool       `gorm:"not null;index"`
}

type Lead struct {
	Base
	Address
	LeadNumber          string              `gorm:"size:20;not null;uniqueIndex;<-:create"`
	LeadSource          string              `gorm:"size:20;index"`
	Status              string              `gorm:"size:20;not null;index"`
	ContactName         string              `gorm:"size:200;not null"`
	Email               string              `gorm:"size:254"`
	Phone               string              `gorm:"size:20"`
	EstimatedSystemSize decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	AssignedTo          *string             `gorm:"size:64;index"`
	CustomerID          *uuid.UUID          `gorm:"type:uuid;index"`
	Notes               string              `gorm:"type:text"`
}

type Contract struct {
	Base
	ContractNumber string              `gorm:"size:20;not null;uniqueIndex;<-:create"`
	ContractType   string              `gorm:"size:20;not null;index"`
	Status         string              `gorm:"size:20;not null;index"`
	CustomerID     uuid.UUID           `gorm:"type:uuid;not null;index"`
	StartDate      time.Time           `gorm:"type:date;not null;index"`
	EndDate        *time.Time          `gorm:"type:date"`
	Value          decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	PaymentTerms   string              `gorm:"type:text"`
	Document       string              `gorm:"size:500"`
	Notes          string              `gorm:"type:text"`
}

// NumberSequence is the per-prefix counter behind record numbers.
type NumberSequence struct {
	Prefix    string `gorm:"size:10;primaryKey"`
	Value     int64  `gorm:"not null"`
	UpdatedAt time.Time
}

// All lists every row type for migration.
func All() []interface{} {
	return []interface{}{
		&NumberSequence{},
		&Customer{},
		&Installer{},
		&Supplier{},
		&Contact{},
		&Lead{},
		&Contract{},
	}
}
