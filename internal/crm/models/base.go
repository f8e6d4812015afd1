// Package models defines the core domain models of the CRM: customers,
// installers, suppliers and their contacts, and the sales entities leads
// and contracts. Derived values (display names, addresses, expiry) are
// computed from stored fields and never persisted.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Base carries the identity, timestamps and soft-delete flag common to
// every entity.
type Base struct {
	// ID is the internal record key.
	ID uuid.UUID
	// CreatedAt records when the record was inserted.
	CreatedAt time.Time
	// UpdatedAt records the last write.
	UpdatedAt time.Time
	// IsActive is false once the record has been soft deleted.
	IsActive bool
}

// EntityKind tags the kind of a record that can own contacts.
type EntityKind string

const (
	KindCustomer  EntityKind = "customer"
	KindInstaller EntityKind = "installer"
	KindSupplier  EntityKind = "supplier"
)

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindCustomer, KindInstaller, KindSupplier:
		return true
	}
	return false
}
