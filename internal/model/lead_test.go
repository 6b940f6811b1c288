package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadFromEvent_RequiresCRMLeadID(t *testing.T) {
	_, err := LeadFromEvent(map[string]any{"leadEmail": "a@b.com"})
	require.Error(t, err)

	_, err = LeadFromEvent(map[string]any{"crmLeadId": ""})
	require.Error(t, err)
}

func TestLeadFromEvent_FullMapping(t *testing.T) {
	data := map[string]any{
		"crmLeadId":               "L1",
		"leadEmail":               "jan@acme.example",
		"leadStatus":              "new",
		"leadSource":              "web",
		"sourceName":              "quote-form",
		"leadTopic":               "freight",
		"leadReferenceNumber":     "REF-7",
		"userId":                  "u-1",
		"anonymousUserId":         "anon-1",
		"phoneNumber":             "+31 20 123",
		"firstName":               " Jan ",
		"lastName":                " Visser ",
		"companyName":             "Acme BV",
		"companyCity":             "Amsterdam",
		"companyCountry":          "Netherlands (the)",
		"companyCountryAlpha2":    "NL",
		"collectionCity":          "Rotterdam",
		"collectionCountry":       "Netherlands",
		"collectionCountryAlpha2": "NL",
		"deliveryCity":            "Hamburg",
		"deliveryCountry":         "Germany",
		"deliveryCountryAlpha2":   "DE",
		"formTitle":               "Freight Quote Form",
		"requestNumber":           "Q-42",
		"cargoDescription":        "12 pallets of parts",
		"cargoType":               "palletized",
	}

	lead, err := LeadFromEvent(data)
	require.NoError(t, err)

	assert.Equal(t, "L1", lead.ID)
	assert.Equal(t, LeadFreightShipping, lead.Type)
	assert.Equal(t, "new", lead.Status)
	assert.Equal(t, "REF-7", lead.Reference)
	assert.Equal(t, "u-1", lead.Identifiers.UserID)
	assert.Equal(t, "Jan Visser", lead.User.FullName())
	assert.Equal(t, "acme.example", lead.Company.Domain)
	assert.Equal(t, "NL", lead.Collection.CountryAlpha2)
	assert.Equal(t, "DE", lead.Delivery.CountryAlpha2)
	assert.Equal(t, "Q-42", lead.Quote.Number)
	assert.Equal(t, "12 pallets of parts", lead.Quote.Description)
	assert.Equal(t, data, lead.Payload, "raw payload retained for archival")
}

func TestLeadFromEvent_UnknownFormTitle(t *testing.T) {
	lead, err := LeadFromEvent(map[string]any{"crmLeadId": "L1", "formTitle": "Mystery Form"})
	require.NoError(t, err)
	assert.Equal(t, LeadType(""), lead.Type)
}

func TestLeadFromEvent_NonStringValuesIgnored(t *testing.T) {
	lead, err := LeadFromEvent(map[string]any{
		"crmLeadId":  "L1",
		"leadStatus": 42,
		"leadEmail":  nil,
	})
	require.NoError(t, err)
	assert.Empty(t, lead.Status)
	assert.Empty(t, lead.Identifiers.Email)
}

func TestDomainFromEmail(t *testing.T) {
	assert.Equal(t, "acme.example", domainFromEmail("jan@acme.example"))
	assert.Equal(t, "b.com", domainFromEmail("weird@user@b.com"))
	assert.Empty(t, domainFromEmail("no-at-sign"))
	assert.Empty(t, domainFromEmail("trailing@"))
}

func TestLocationEmpty(t *testing.T) {
	assert.True(t, Location{}.Empty())
	assert.False(t, Location{City: "Rotterdam"}.Empty())
}
