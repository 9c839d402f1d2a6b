package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Declaration is a quarterly CBAM report for one declarant.
type Declaration struct {
	EORI            string      `json:"eori,omitempty" doc:"Economic Operators Registration and Identification number"`
	DeclarantName   string      `json:"declarant_name,omitempty" maxLength:"200"`
	ReportingPeriod string      `json:"reporting_period,omitempty" doc:"Quarter as YYYYQn, e.g. 2026Q1"`
	Goods           []GoodsLine `json:"goods,omitempty" maxItems:"1000"`
}

// GoodsLine is one imported good and the evidence backing its emissions.
type GoodsLine struct {
	CNCode                 string      `json:"cn_code,omitempty" doc:"8-digit Combined Nomenclature code"`
	OriginCountry          string      `json:"origin_country,omitempty" doc:"ISO 3166-1 alpha-2 country of origin"`
	NetMassTonnes          float64     `json:"net_mass_tonnes,omitempty"`
	DirectEmissionsTCO2e   float64     `json:"direct_emissions_tco2e,omitempty"`
	IndirectEmissionsTCO2e float64     `json:"indirect_emissions_tco2e,omitempty"`
	EvidenceIDs            []uuid.UUID `json:"evidence_ids,omitempty" maxItems:"100"`
}

// Issue is a single validation finding.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	eoriPattern   = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{1,15}$`)
	periodPattern = regexp.MustCompile(`^\d{4}Q[1-4]$`)
	cnPattern     = regexp.MustCompile(`^\d{8}$`)
	countryCode   = regexp.MustCompile(`^[A-Z]{2}$`)
)

// cbamPrefixes are the CN headings in scope of the mechanism: cement,
// electricity, fertilisers, iron and steel, aluminium and hydrogen.
var cbamPrefixes = []string{
	"2507", "2523", "2716", "2804", "2808", "2814", "2834",
	"3102", "3105", "72", "73", "76",
}

// euMembers are exempt origins; their goods are not CBAM imports.
var euMembers = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "CY": {}, "CZ": {}, "DE": {}, "DK": {}, "EE": {}, "ES": {},
	"FI": {}, "FR": {}, "GR": {}, "HR": {}, "HU": {}, "IE": {}, "IT": {}, "LT": {}, "LU": {},
	"LV": {}, "MT": {}, "NL": {}, "PL": {}, "PT": {}, "RO": {}, "SE": {}, "SI": {}, "SK": {},
}

func isCBAMGood(cn string) bool {
	for _, p := range cbamPrefixes {
		if strings.HasPrefix(cn, p) {
			return true
		}
	}
	return false
}

// Normalize trims and upper-cases the identifier fields in place.
func (d *Declaration) Normalize() {
	d.EORI = strings.ToUpper(strings.TrimSpace(d.EORI))
	d.DeclarantName = strings.TrimSpace(d.DeclarantName)
	d.ReportingPeriod = strings.ToUpper(strings.TrimSpace(d.ReportingPeriod))
	for i := range d.Goods {
		g := &d.Goods[i]
		g.CNCode = strings.ReplaceAll(strings.TrimSpace(g.CNCode), " ", "")
		g.OriginCountry = strings.ToUpper(strings.TrimSpace(g.OriginCountry))
	}
}

// Check reports shape problems. It does not look at evidence.
func (d *Declaration) Check() []Issue {
	var issues []Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case d.EORI == "":
		add("eori", "eori is required")
	case !eoriPattern.MatchString(d.EORI):
		add("eori", "eori %q is not a valid EORI number", d.EORI)
	}
	if d.DeclarantName == "" {
		add("declarant_name", "declarant_name is required")
	}
	switch {
	case d.ReportingPeriod == "":
		add("reporting_period", "reporting_period is required")
	case !periodPattern.MatchString(d.ReportingPeriod):
		add("reporting_period", "reporting_period %q must look like 2026Q1", d.ReportingPeriod)
	}
	if len(d.Goods) == 0 {
		add("goods", "at least one goods line is required")
	}

	for i, g := range d.Goods {
		prefix := fmt.Sprintf("goods[%d]", i)
		switch {
		case !cnPattern.MatchString(g.CNCode):
			add(prefix+".cn_code", "cn_code %q must be 8 digits", g.CNCode)
		case !isCBAMGood(g.CNCode):
			add(prefix+".cn_code", "cn_code %s is not covered by CBAM", g.CNCode)
		}
		switch {
		case !countryCode.MatchString(g.OriginCountry):
			add(prefix+".origin_country", "origin_country %q must be an ISO alpha-2 code", g.OriginCountry)
		default:
			if _, eu := euMembers[g.OriginCountry]; eu {
				add(prefix+".origin_country", "goods originating in %s are not imports", g.OriginCountry)
			}
		}
		if g.NetMassTonnes <= 0 {
			add(prefix+".net_mass_tonnes", "net_mass_tonnes must be positive")
		}
		if g.DirectEmissionsTCO2e < 0 {
			add(prefix+".direct_emissions_tco2e", "direct_emissions_tco2e cannot be negative")
		}
		if g.IndirectEmissionsTCO2e < 0 {
			add(prefix+".indirect_emissions_tco2e", "indirect_emissions_tco2e cannot be negative")
		}
		if len(g.EvidenceIDs) == 0 {
			add(prefix+".evidence_ids", "each goods line needs at least one sealed evidence record")
		}
	}

	return issues
}
