package lead

import (
	"regexp"
	"strings"

	"github.com/sells-group/lead-enrichment/internal/model"
)

// RouteType classifies the requested transport route geographically.
type RouteType string

const (
	RouteEuropeNational    RouteType = "europe_national"
	RouteEuropeCrossBorder RouteType = "europe_cross_border"
	RouteEuropeImport      RouteType = "europe_import"
	RouteEuropeExport      RouteType = "europe_export"
	RouteOutsideEurope     RouteType = "outside_europe"
	RouteUnknown           RouteType = "unknown"
)

// europeanISOCodes holds EU member states, EEA countries, Switzerland, and
// the United Kingdom (treated as Europe for customs routing).
var europeanISOCodes = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true,
	"NO": true, "IS": true, "LI": true,
	"CH": true,
	"GB": true,
}

var parentheticalSuffix = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// NormalizeCountryName strips parenthetical suffixes CRM country names carry,
// e.g. "Netherlands (the)" -> "Netherlands".
func NormalizeCountryName(name string) string {
	return strings.TrimSpace(parentheticalSuffix.ReplaceAllString(name, ""))
}

// isEuropean reports whether a location is in Europe; known is false when no
// usable country information is present.
func isEuropean(loc model.Location) (european, known bool) {
	code := strings.ToUpper(strings.TrimSpace(loc.CountryAlpha2))
	if code == "" {
		return false, false
	}
	return europeanISOCodes[code], true
}

// ClassifyRoute buckets a collection/delivery pair into a route type.
// Imports and exports are from Europe's point of view.
func ClassifyRoute(collection, delivery model.Location) RouteType {
	fromEU, fromKnown := isEuropean(collection)
	toEU, toKnown := isEuropean(delivery)

	if !fromKnown || !toKnown {
		return RouteUnknown
	}

	switch {
	case fromEU && toEU:
		from := strings.ToUpper(collection.CountryAlpha2)
		to := strings.ToUpper(delivery.CountryAlpha2)
		if from == to {
			return RouteEuropeNational
		}
		return RouteEuropeCrossBorder
	case !fromEU && toEU:
		return RouteEuropeImport
	case fromEU && !toEU:
		return RouteEuropeExport
	default:
		return RouteOutsideEurope
	}
}

// Features are the computed lead-level attributes.
type Features struct {
	RouteType         RouteType      `json:"routeType"`
	LeadType          model.LeadType `json:"leadType,omitempty"`
	EmailDomain       string         `json:"emailDomain,omitempty"`
	FreeEmail         bool           `json:"freeEmail"`
	HasPhone          bool           `json:"hasPhone"`
	HasCargoDetails   bool           `json:"hasCargoDetails"`
	CollectionCountry string         `json:"collectionCountry,omitempty"`
	DeliveryCountry   string         `json:"deliveryCountry,omitempty"`
}

// freeEmailProviders are consumer mail domains; a company-domain email is a
// quality signal for B2B leads.
var freeEmailProviders = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"icloud.com":  true,
	"aol.com":     true,
	"gmx.com":     true,
	"gmx.de":      true,
	"web.de":      true,
	"mail.com":    true,
	"proton.me":   true,
}

// ExtractFeatures computes lead features. Pure function, no I/O.
func ExtractFeatures(l *model.Lead) Features {
	domain := strings.ToLower(l.Company.Domain)
	return Features{
		RouteType:         ClassifyRoute(l.Collection, l.Delivery),
		LeadType:          l.Type,
		EmailDomain:       domain,
		FreeEmail:         freeEmailProviders[domain],
		HasPhone:          strings.TrimSpace(l.Identifiers.Phone) != "",
		HasCargoDetails:   strings.TrimSpace(l.Quote.Description) != "" || l.Quote.CargoType != "",
		CollectionCountry: NormalizeCountryName(l.Collection.Country),
		DeliveryCountry:   NormalizeCountryName(l.Delivery.Country),
	}
}
