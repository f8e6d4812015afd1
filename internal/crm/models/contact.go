package models

import (
	"strings"
	"unicode"

	"github.com/gartstein/solarcrm/internal/crm/validators"
	"github.com/google/uuid"
)

// ParentRef points at the single record a contact belongs to.
// The zero value references nothing and fails validation.
type ParentRef struct {
	Kind EntityKind
	ID   uuid.UUID
}

func CustomerRef(id uuid.UUID) ParentRef  { return ParentRef{Kind: KindCustomer, ID: id} }
func InstallerRef(id uuid.UUID) ParentRef { return ParentRef{Kind: KindInstaller, ID: id} }
func SupplierRef(id uuid.UUID) ParentRef  { return ParentRef{Kind: KindSupplier, ID: id} }

// IsZero reports whether the reference is unset.
func (p ParentRef) IsZero() bool {
	return p.Kind == "" && p.ID == uuid.Nil
}

// Valid reports whether p names exactly one known parent.
func (p ParentRef) Valid() bool {
	return p.Kind.Valid() && p.ID != uuid.Nil
}

func (p ParentRef) String() string {
	return string(p.Kind) + ":" + p.ID.String()
}

// Contact is a person reachable at a customer, installer or supplier.
type Contact struct {
	Base
	Parent    ParentRef
	FirstName string
	LastName  string
	Role      string
	Email     string
	Phone     string
	// IsPrimary marks the main point of contact; at most one per parent.
	IsPrimary bool
}

// EntityType returns the kind of record the contact belongs to.
func (c *Contact) EntityType() EntityKind {
	return c.Parent.Kind
}

func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

func (c *Contact) Validate() error {
	var chk validators.Checker
	chk.Check(c.Parent.Valid(), "", "contact must belong to a customer, installer or supplier").
		Required("first_name", c.FirstName).
		MaxLen("first_name", c.FirstName, NameMaxLen).
		MaxLen("last_name", c.LastName, NameMaxLen).
		MaxLen("role", c.Role, 100).
		Email("email", c.Email).
		Phone("phone", c.Phone)
	return chk.Err()
}

// ContactUpdate is a partial Contact change. The parent cannot be changed.
type ContactUpdate struct {
	FirstName *string
	LastName  *string
	Role      *string
	Email     *string
	Phone     *string
	IsPrimary *bool
}

func (u *ContactUpdate) Apply(c *Contact) {
	setString(&c.FirstName, u.FirstName)
	setString(&c.LastName, u.LastName)
	setString(&c.Role, u.Role)
	setString(&c.Email, u.Email)
	setString(&c.Phone, u.Phone)
	if u.IsPrimary != nil {
		c.IsPrimary = *u.IsPrimary
	}
}

// NameMaxLen is the longest first or last name of a person.
const NameMaxLen = 100

// SplitName splits a full name on its first run of whitespace. Each part
// is cut to NameMaxLen characters.
func SplitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	i := strings.IndexFunc(name, unicode.IsSpace)
	if i < 0 {
		return truncate(name, NameMaxLen), ""
	}
	return truncate(name[:i], NameMaxLen), truncate(strings.TrimLeftFunc(name[i:], unicode.IsSpace), NameMaxLen)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRightFunc(string(runes[:n]), unicode.IsSpace)
}
