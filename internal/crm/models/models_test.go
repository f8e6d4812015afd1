package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomer_DisplayName(t *testing.T) {
	private := &Customer{CustomerNumber: "CUS-000001", CustomerType: CustomerPrivate, FirstName: "Dana", LastName: "Levi"}
	assert.Equal(t, "Dana Levi", private.DisplayName())
	assert.Equal(t, "CUS-000001 | Dana Levi", private.String())

	onlyFirst := &Customer{CustomerType: CustomerPrivate, FirstName: "Dana"}
	assert.Equal(t, "Dana", onlyFirst.DisplayName())

	business := &Customer{CustomerNumber: "CUS-000002", CustomerType: CustomerBusiness, CompanyName: "Sun Ltd"}
	assert.Equal(t, "Sun Ltd", business.DisplayName())
	assert.Equal(t, "CUS-000002 | Sun Ltd", business.String())
}

func TestCustomer_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Customer
		wantErr bool
	}{
		{"private ok", Customer{CustomerType: CustomerPrivate, FirstName: "Dana", IDNumber: "123456789", Phone: "0501234567"}, false},
		{"private without name", Customer{CustomerType: CustomerPrivate}, true},
		{"private with company", Customer{CustomerType: CustomerPrivate, FirstName: "Dana", CompanyName: "Sun"}, true},
		{"business ok", Customer{CustomerType: CustomerBusiness, CompanyName: "Sun", BusinessNumber: "515151515"}, false},
		{"business without company", Customer{CustomerType: CustomerBusiness}, true},
		{"business with personal fields", Customer{CustomerType: CustomerBusiness, CompanyName: "Sun", FirstName: "Dana"}, true},
		{"bad phone", Customer{CustomerType: CustomerPrivate, FirstName: "Dana", Phone: "12345"}, true},
		{"bad mobile", Customer{CustomerType: CustomerPrivate, FirstName: "Dana", Mobile: "0601234567"}, true},
		{"bad id", Customer{CustomerType: CustomerPrivate, FirstName: "Dana", IDNumber: "1234"}, true},
		{"bad email", Customer{CustomerType: CustomerPrivate, FirstName: "Dana", Email: "dana"}, true},
		{"unknown type", Customer{CustomerType: "other", FirstName: "Dana"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, e.ErrInvalidInput), "expected invalid input, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCustomerUpdate_Apply(t *testing.T) {
	c := &Customer{CustomerType: CustomerPrivate, FirstName: "Dana", Address: Address{City: "Haifa"}}
	business := CustomerBusiness
	city := "Eilat"
	empty := ""
	company := "Sun Ltd"
	u := &CustomerUpdate{CustomerType: &business, FirstName: &empty, CompanyName: &company, AddressUpdate: AddressUpdate{City: &city}}
	u.Apply(c)

	assert.Equal(t, CustomerBusiness, c.CustomerType)
	assert.Equal(t, "", c.FirstName)
	assert.Equal(t, "Sun Ltd", c.CompanyName)
	assert.Equal(t, "Eilat", c.City)
	assert.NoError(t, c.Validate())
}

func TestAddress_FullAddress(t *testing.T) {
	assert.Equal(t, "Herzl 1, Tel Aviv 6100000, Israel",
		Address{Street: "Herzl 1", City: "Tel Aviv", PostalCode: "6100000", Country: "Israel"}.FullAddress())
	assert.Equal(t, "Haifa", Address{City: "Haifa"}.FullAddress())
	assert.Equal(t, "Herzl 1, Israel", Address{Street: "Herzl 1", Country: "Israel"}.FullAddress())
	assert.Equal(t, "", Address{}.FullAddress())
}

func TestParentRef(t *testing.T) {
	id := uuid.New()
	assert.True(t, CustomerRef(id).Valid())
	assert.True(t, InstallerRef(id).Valid())
	assert.True(t, SupplierRef(id).Valid())
	assert.False(t, ParentRef{}.Valid())
	assert.True(t, ParentRef{}.IsZero())
	assert.False(t, ParentRef{Kind: KindCustomer}.Valid())
	assert.False(t, ParentRef{Kind: "lead", ID: id}.Valid())
	assert.Equal(t, "supplier:"+id.String(), SupplierRef(id).String())
}

func TestContact_Validate(t *testing.T) {
	ok := &Contact{Parent: CustomerRef(uuid.New()), FirstName: "Dana"}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, KindCustomer, ok.EntityType())

	orphan := &Contact{FirstName: "Dana"}
	err := orphan.Validate()
	require.Error(t, err)
	var v *e.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "", v.Fields[0].Field, "missing parent is a record level error")

	badPhone := &Contact{Parent: InstallerRef(uuid.New()), FirstName: "Dana", Phone: "abc"}
	assert.Error(t, badPhone.Validate())
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Dana Levi", "Dana", "Levi"},
		{"  Dana   Bat  Levi ", "Dana", "Bat  Levi"},
		{"Dana", "Dana", ""},
		{"", "", ""},
		{"Dana\tLevi", "Dana", "Levi"},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, "first of %q", tt.in)
		assert.Equal(t, tt.last, last, "last of %q", tt.in)
	}
}

func TestSplitName_CutsLongParts(t *testing.T) {
	word := strings.Repeat("ש", 150)
	first, last := SplitName(word)
	assert.Equal(t, NameMaxLen, len([]rune(first)))
	assert.Empty(t, last)

	first, last = SplitName("Dana " + word)
	assert.Equal(t, "Dana", first)
	assert.Equal(t, NameMaxLen, len([]rune(last)))

	c := &Customer{CustomerType: CustomerPrivate}
	c.FirstName, c.LastName = SplitName(strings.Repeat("a", 99) + " " + strings.Repeat("b", 180))
	assert.NoError(t, c.Validate())
}

func TestLead_Validate(t *testing.T) {
	l := &Lead{ContactName: "Dana Levi", Status: LeadNew, LeadSource: SourceWebsite}
	assert.NoError(t, l.Validate())

	l.EstimatedSystemSize = decimal.NewNullDecimal(decimal.RequireFromString("-1.5"))
	assert.Error(t, l.Validate())
	l.EstimatedSystemSize = decimal.NullDecimal{}

	id := uuid.New()
	l.CustomerID = &id
	assert.Error(t, l.Validate(), "converted lead that is not won is invalid")
	l.Status = LeadWon
	assert.NoError(t, l.Validate())

	assert.Error(t, (&Lead{Status: LeadNew}).Validate(), "contact name is required")
	assert.Error(t, (&Lead{ContactName: "x", Status: "contacted"}).Validate())
}

func TestLeadUpdate_Apply(t *testing.T) {
	owner := "user-1"
	l := &Lead{ContactName: "Dana", Status: LeadNew, AssignedTo: &owner}
	unassign := ""
	quote := LeadQuote
	size := decimal.NewNullDecimal(decimal.RequireFromString("10.50"))
	(&LeadUpdate{AssignedTo: &unassign, Status: &quote, EstimatedSystemSize: &size}).Apply(l)

	assert.Nil(t, l.AssignedTo)
	assert.Equal(t, LeadQuote, l.Status)
	assert.True(t, l.EstimatedSystemSize.Decimal.Equal(decimal.RequireFromString("10.5")))
}

func TestContract_IsExpired(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	today := DateOf(now)
	tomorrow := now.AddDate(0, 0, 1)

	c := &Contract{StartDate: DateOf(now.AddDate(-1, 0, 0))}
	assert.False(t, c.IsExpired(now), "open ended contract never expires")

	c.EndDate = &yesterday
	assert.True(t, c.IsExpired(now))

	c.EndDate = &today
	assert.False(t, c.IsExpired(now), "contract ending today is not expired yet")

	c.EndDate = &tomorrow
	assert.False(t, c.IsExpired(now))
}

func TestContract_DurationDays(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Contract{StartDate: start}
	assert.Nil(t, c.DurationDays())

	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	c.EndDate = &end
	require.NotNil(t, c.DurationDays())
	assert.Equal(t, 364, *c.DurationDays())
}

func TestContract_Validate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := start.AddDate(0, 0, -1)
	c := &Contract{ContractType: ContractMonitoring, Status: ContractDraft, CustomerID: uuid.New(), StartDate: start}
	assert.NoError(t, c.Validate())

	c.EndDate = &before
	assert.Error(t, c.Validate())
	c.EndDate = nil

	c.ContractType = ""
	assert.Error(t, c.Validate())
	c.ContractType = ContractLeads

	c.CustomerID = uuid.Nil
	assert.Error(t, c.Validate())
}
