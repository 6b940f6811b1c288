package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// LeadType categorizes a lead by the quote form it came from.
type LeadType string

const (
	LeadLogisticsSolutions LeadType = "logistics_solutions"
	LeadCustomsClearance   LeadType = "customs_clearance"
	LeadFreightShipping    LeadType = "freight_shipping"
	LeadContractLogistics  LeadType = "contract_logistics"
)

// formTypeMapping maps CRM form titles onto lead types.
var formTypeMapping = map[string]LeadType{
	"Logistics Quote Form":          LeadLogisticsSolutions,
	"Customs Clearance Quote Form":  LeadCustomsClearance,
	"Freight Quote Form":            LeadFreightShipping,
	"Contract Logistics Quote Form": LeadContractLogistics,
}

// Identifiers carries the user identities attached to a lead.
type Identifiers struct {
	UserID      string `json:"userId,omitempty"`
	AnonymousID string `json:"anonymousId,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// User holds the contact person on the lead.
type User struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Company holds the company details captured on the lead.
type Company struct {
	Name          string `json:"name,omitempty"`
	Domain        string `json:"domain,omitempty"`
	City          string `json:"city,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country,omitempty"`
	CountryAlpha2 string `json:"countryAlpha2,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// Location is one end of the requested transport route.
type Location struct {
	City          string `json:"city,omitempty"`
	Country       string `json:"country,omitempty"`
	CountryAlpha2 string `json:"countryAlpha2,omitempty"`
}

// Empty reports whether no location information was provided.
func (l Location) Empty() bool {
	return l.City == "" && l.Country == "" && l.CountryAlpha2 == ""
}

// Quote holds the quote request details from the lead form.
type Quote struct {
	FormTitle   string `json:"formTitle,omitempty"`
	Number      string `json:"number,omitempty"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CargoType   string `json:"cargoType,omitempty"`
	RequestType string `json:"requestType,omitempty"`
}

// Lead is the domain entity built from an incoming event payload. It owns no
// external resources; its lifetime is a single message-processing task.
type Lead struct {
	ID          string
	Type        LeadType
	Status      string
	Source      string
	SourceName  string
	Topic       string
	Reference   string
	Identifiers Identifiers
	User        User
	Company     Company
	Collection  Location
	Delivery    Location
	Quote       Quote

	// Payload retains the raw event data for archival projection.
	Payload map[string]any
}

// LeadFromEvent builds a Lead from the data payload of an incoming event.
// crmLeadId is the only required field.
func LeadFromEvent(data map[string]any) (*Lead, error) {
	id := getString(data, "crmLeadId")
	if id == "" {
		return nil, eris.New("model: event data missing crmLeadId")
	}

	email := getString(data, "leadEmail")

	lead := &Lead{
		ID:         id,
		Type:       formTypeMapping[getString(data, "formTitle")],
		Status:     getString(data, "leadStatus"),
		Source:     getString(data, "leadSource"),
		SourceName: getString(data, "sourceName"),
		Topic:      getString(data, "leadTopic"),
		Reference:  getString(data, "leadReferenceNumber"),
		Identifiers: Identifiers{
			UserID:      getString(data, "userId"),
			AnonymousID: getString(data, "anonymousUserId"),
			Email:       email,
			Phone:       getString(data, "phoneNumber"),
		},
		User: User{
			FirstName: strings.TrimSpace(getString(data, "firstName")),
			LastName:  strings.TrimSpace(getString(data, "lastName")),
		},
		Company: Company{
			Name:          getString(data, "companyName"),
			Domain:        domainFromEmail(email),
			City:          getString(data, "companyCity"),
			PostalCode:    getString(data, "companyPostalCode"),
			Country:       getString(data, "companyCountry"),
			CountryAlpha2: getString(data, "companyCountryAlpha2"),
			Phone:         getString(data, "phoneNumber"),
		},
		Collection: Location{
			City:          getString(data, "collectionCity"),
			Country:       getString(data, "collectionCountry"),
			CountryAlpha2: getString(data, "collectionCountryAlpha2"),
		},
		Delivery: Location{
			City:          getString(data, "deliveryCity"),
			Country:       getString(data, "deliveryCountry"),
			CountryAlpha2: getString(data, "deliveryCountryAlpha2"),
		},
		Quote: Quote{
			FormTitle:   getString(data, "formTitle"),
			Number:      getString(data, "requestNumber"),
			Description: getString(data, "cargoDescription"),
			Notes:       getString(data, "quoteNotes"),
			CargoType:   getString(data, "cargoType"),
			RequestType: getString(data, "requestType"),
		},
		Payload: data,
	}

	return lead, nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func domainFromEmail(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		return email[at+1:]
	}
	return ""
}
