package models

import "strings"

// DefaultCountry is used when an address does not name a country.
const DefaultCountry = "Israel"

// Address holds the postal address fields shared by customers, vendors and leads.
type Address struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

// FullAddress renders the non-empty parts as "street, city postal, country".
func (a Address) FullAddress() string {
	cityLine := strings.TrimSpace(a.City + " " + a.PostalCode)
	parts := make([]string, 0, 3)
	for _, p := range []string{strings.TrimSpace(a.Street), cityLine, strings.TrimSpace(a.Country)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// AddressUpdate carries a partial address change.
type AddressUpdate struct {
	Street     *string
	City       *string
	PostalCode *string
	Country    *string
}

func (u AddressUpdate) apply(a *Address) {
	setString(&a.Street, u.Street)
	setString(&a.City, u.City)
	setString(&a.PostalCode, u.PostalCode)
	setString(&a.Country, u.Country)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
