package handlers

import (
	"encoding/json"
	"testing"
	"time"

	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_UnmarshalJSON(t *testing.T) {
	var d date
	require.NoError(t, json.Unmarshal([]byte(`"2024-02-29"`), &d))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d.Time)

	for _, raw := range []string{`"2024-02-30"`, `"29/02/2024"`, `20240229`} {
		err := json.Unmarshal([]byte(raw), &d)
		assert.ErrorIs(t, err, e.ErrInvalidInput, raw)
	}

	var none *date
	assert.Nil(t, none.ptr())
}

func TestContactInput_Update(t *testing.T) {
	kind := models.KindInstaller
	_, err := (&contactInput{EntityType: &kind}).update()
	assert.ErrorIs(t, err, e.ErrInvalidInput)

	role := "Site manager"
	u, err := (&contactInput{Role: &role}).update()
	require.NoError(t, err)
	assert.Equal(t, &role, u.Role)
	assert.Nil(t, u.FirstName)
}

func TestContactInput_ModelPrefersURLParent(t *testing.T) {
	kind, bodyID := models.KindCustomer, uuid.New()
	urlParent := models.ParentRef{Kind: models.KindSupplier, ID: uuid.New()}

	c := (&contactInput{EntityType: &kind, EntityID: &bodyID}).model(&urlParent)
	assert.Equal(t, urlParent, c.Parent)

	c = (&contactInput{EntityType: &kind, EntityID: &bodyID}).model(nil)
	assert.Equal(t, models.ParentRef{Kind: kind, ID: bodyID}, c.Parent)
}

func TestContractInput(t *testing.T) {
	customerID := uuid.New()
	var in contractInput
	require.NoError(t, json.Unmarshal([]byte(`{
		"contract_type": "leads",
		"customer_id": "`+customerID.String()+`",
		"start_date": "2024-03-01",
		"value": "1200.50"
	}`), &in))

	c := in.model()
	assert.Equal(t, customerID, c.CustomerID)
	assert.Equal(t, models.ContractLeads, c.ContractType)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), c.StartDate)
	assert.Equal(t, "1200.5", c.Value.Decimal.String())

	_, err := in.update()
	assert.ErrorIs(t, err, e.ErrInvalidInput, "customer cannot change on update")
}

func TestToContractDTO(t *testing.T) {
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	c := &models.Contract{
		ContractNumber: "CON-000004",
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        &end,
	}

	dto := toContractDTO(c, time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-01-01", *dto.StartDate)
	assert.Equal(t, "2024-01-31", *dto.EndDate)
	require.NotNil(t, dto.DurationDays)
	assert.Equal(t, 30, *dto.DurationDays)
	assert.False(t, dto.IsExpired, "expires after its last day")

	assert.True(t, toContractDTO(c, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)).IsExpired)

	c.EndDate = nil
	dto = toContractDTO(c, time.Now())
	assert.Nil(t, dto.EndDate)
	assert.Nil(t, dto.DurationDays)
	assert.False(t, dto.IsExpired)
}

func TestNewList(t *testing.T) {
	found := []models.Supplier{{Name: "A"}, {Name: "B"}}
	out := newList(found, 7, toSupplierDTO)
	assert.EqualValues(t, 7, out.Total)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "B", out.Items[1].Name)
}
