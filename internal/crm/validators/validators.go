// Package validators holds the format checks shared by the CRM entities.
// Empty values are accepted by every check; required-ness is decided by
// the entity that owns the field.
package validators

import (
	"net/mail"
	"regexp"
	"unicode/utf8"

	e "github.com/gartstein/solarcrm/internal/crm/errors"
)

const (
	PhoneMessage    = "invalid phone number, expected format 05XXXXXXXX"
	IDNumberMessage = "israeli id number must contain 9 digits"
	EmailMessage    = "invalid email address"
)

var (
	phonePattern    = regexp.MustCompile(`^05\d{8}$`)
	idNumberPattern = regexp.MustCompile(`^\d{9}$`)
)

// ValidPhone reports whether s is an Israeli mobile number (05XXXXXXXX).
func ValidPhone(s string) bool {
	return s == "" || phonePattern.MatchString(s)
}

// ValidIDNumber reports whether s is a nine digit Israeli ID number.
func ValidIDNumber(s string) bool {
	return s == "" || idNumberPattern.MatchString(s)
}

// ValidEmail reports whether s is a bare email address.
func ValidEmail(s string) bool {
	if s == "" {
		return true
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Checker accumulates field problems into a ValidationError.
type Checker struct {
	v e.ValidationError
}

func (c *Checker) Phone(field, value string) *Checker {
	if !ValidPhone(value) {
		c.v.Add(field, PhoneMessage)
	}
	return c
}

func (c *Checker) IDNumber(field, value string) *Checker {
	if !ValidIDNumber(value) {
		c.v.Add(field, IDNumberMessage)
	}
	return c
}

func (c *Checker) Email(field, value string) *Checker {
	if !ValidEmail(value) {
		c.v.Add(field, EmailMessage)
	}
	return c
}

func (c *Checker) Required(field, value string) *Checker {
	if value == "" {
		c.v.Add(field, "this field is required")
	}
	return c
}

// MaxLen limits value to n characters.
func (c *Checker) MaxLen(field, value string, n int) *Checker {
	if utf8.RuneCountInString(value) > n {
		c.v.Add(field, "too long")
	}
	return c
}

// Check records message on field when ok is false.
func (c *Checker) Check(ok bool, field, message string) *Checker {
	if !ok {
		c.v.Add(field, message)
	}
	return c
}

// Err returns the accumulated *e.ValidationError or nil.
func (c *Checker) Err() error {
	if len(c.v.Fields) == 0 {
		return nil
	}
	out := c.v
	return &out
}
