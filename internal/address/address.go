// Package address validates and normalizes postal addresses. Canonical forms
// also produce a stable property key used for address-based matching.
package address

import (
	"regexp"
	"strings"
)

type Components struct {
	StreetNumber string `json:"street_number,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	StreetSuffix string `json:"street_suffix,omitempty"`
	Unit         string `json:"unit,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty"`
}

type Validation struct {
	IsValid    bool       `json:"is_valid"`
	Formatted  string     `json:"formatted,omitempty"`
	Components Components `json:"components"`
	Errors     []string   `json:"errors,omitempty"`
}

var (
	rePunct    = regexp.MustCompile(`[^A-Za-z0-9\s]`)
	reZip      = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	reStateZip = regexp.MustCompile(`^([A-Za-z]{2})[\s,]+(\d{5}(?:-\d{4})?)$`)
	reLeadNum  = regexp.MustCompile(`^(\d+[A-Za-z]?)\s+(.*)$`)
)

// Validator parses loosely structured address strings and rejects postal
// codes outside the configured service area. An empty prefix set accepts any
// well-formed ZIP.
type Validator struct {
	zipPrefixes []string
}

func NewValidator(zipPrefixes []string) *Validator {
	return &Validator{zipPrefixes: zipPrefixes}
}

func (v *Validator) Validate(raw string) Validation {
	out := Validation{}
	comp, ok := parse(raw)
	out.Components = comp
	if !ok {
		out.Errors = append(out.Errors, "unparseable address; expected 'street, city, ST zip'")
		return out
	}
	if comp.StreetNumber == "" {
		out.Errors = append(out.Errors, "missing street number")
	}
	if comp.City == "" {
		out.Errors = append(out.Errors, "missing city")
	}
	if comp.Zip == "" || !reZip.MatchString(comp.Zip) {
		out.Errors = append(out.Errors, "postal code must be 5 or 5+4 digits")
	} else if !v.zipInService(comp.Zip) {
		out.Errors = append(out.Errors, "postal code outside service area")
	}
	if len(out.Errors) > 0 {
		return out
	}
	out.IsValid = true
	out.Formatted = format(comp)
	return out
}

func (v *Validator) zipInService(zip string) bool {
	if len(v.zipPrefixes) == 0 {
		return true
	}
	for _, p := range v.zipPrefixes {
		if strings.HasPrefix(zip, p) {
			return true
		}
	}
	return false
}

// parse splits "123 Main St Apt 4, Columbus, OH 43215" into components.
func parse(raw string) (Components, bool) {
	var c Components
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	cleaned := parts[:0]
	for _, p := range parts {
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) < 3 {
		return c, false
	}

	last := cleaned[len(cleaned)-1]
	m := reStateZip.FindStringSubmatch(last)
	if m == nil {
		// Tolerate "OH, 43215" split across the final two segments.
		if len(cleaned) >= 4 {
			joined := cleaned[len(cleaned)-2] + " " + last
			if m = reStateZip.FindStringSubmatch(joined); m != nil {
				cleaned = cleaned[:len(cleaned)-1]
			}
		}
		if m == nil {
			return c, false
		}
	}
	c.State = strings.ToUpper(m[1])
	c.Zip = m[2]
	c.City = titleCase(cleaned[len(cleaned)-2])

	street := strings.Join(cleaned[:len(cleaned)-2], " ")
	street, c.Unit = splitUnit(street)
	if m := reLeadNum.FindStringSubmatch(street); m != nil {
		c.StreetNumber = m[1]
		street = m[2]
	}
	street, c.StreetSuffix = splitSuffix(street)
	c.StreetName = titleCase(street)
	return c, true
}

func format(c Components) string {
	street := strings.TrimSpace(strings.Join([]string{c.StreetNumber, c.StreetName, c.StreetSuffix}, " "))
	street = strings.Join(strings.Fields(street), " ")
	if c.Unit != "" {
		street += " #" + c.Unit
	}
	return street + ", " + c.City + ", " + c.State + " " + c.Zip
}

// Canonicalize normalizes an address and computes a stable property key. It
// intentionally ignores unit/suite to stabilize identity per parcel.
func Canonicalize(line1, city, state, zip string) (normLine1, normCity, normState, normZip, propertyKey string) {
	n1 := strings.TrimSpace(strings.ToUpper(line1))
	n1, _ = splitUnit(n1)
	n1 = rePunct.ReplaceAllString(n1, " ")
	n1 = abbreviateSuffix(n1)
	n1 = collapseSpaces(n1)

	c := collapseSpaces(rePunct.ReplaceAllString(strings.ToUpper(strings.TrimSpace(city)), " "))
	st := strings.ToUpper(strings.TrimSpace(state))
	if len(st) > 2 {
		st = stateAbbrev(st)
	}
	z := trimZIP(zip)

	key := strings.ToLower(n1 + "|" + c + "|" + st + "|" + z)
	return n1, c, st, z, key
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimZIP(z string) string {
	z = strings.TrimSpace(z)
	if len(z) >= 5 {
		return z[:5]
	}
	return z
}

// splitUnit removes trailing unit designators like APT, UNIT, STE, SUITE, #.
func splitUnit(s string) (string, string) {
	up := " " + strings.ToUpper(s) + " " // padded; up index i maps to s index i-1
	for _, t := range []string{" APT ", " UNIT ", " STE ", " SUITE ", " #"} {
		i := strings.Index(up, t)
		if i < 0 {
			continue
		}
		head := strings.TrimSpace(s[:max(i-1, 0)])
		unit := ""
		if j := i - 1 + len(t); j < len(s) {
			unit = strings.TrimSpace(s[j:])
		}
		return head, unit
	}
	return strings.TrimSpace(s), ""
}

var suffixAbbrev = map[string]string{
	"STREET": "ST", "ROAD": "RD", "AVENUE": "AVE", "BOULEVARD": "BLVD",
	"DRIVE": "DR", "LANE": "LN", "COURT": "CT", "CIRCLE": "CIR",
	"TERRACE": "TER", "PLACE": "PL", "PARKWAY": "PKWY", "HIGHWAY": "HWY",
}

var knownSuffixes = func() map[string]bool {
	m := make(map[string]bool, 2*len(suffixAbbrev))
	for long, short := range suffixAbbrev {
		m[long] = true
		m[short] = true
	}
	return m
}()

func splitSuffix(street string) (string, string) {
	fields := strings.Fields(street)
	if len(fields) < 2 {
		return street, ""
	}
	last := strings.ToUpper(fields[len(fields)-1])
	if !knownSuffixes[last] {
		return street, ""
	}
	if short, ok := suffixAbbrev[last]; ok {
		last = short
	}
	return strings.Join(fields[:len(fields)-1], " "), titleCase(last)
}

func abbreviateSuffix(s string) string {
	out := s
	for long, short := range suffixAbbrev {
		out = strings.ReplaceAll(out, " "+long, " "+short)
	}
	return out
}

func titleCase(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		if f == "" {
			continue
		}
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}

func stateAbbrev(s string) string {
	m := map[string]string{
		"ALABAMA": "AL", "ALASKA": "AK", "ARIZONA": "AZ", "ARKANSAS": "AR", "CALIFORNIA": "CA", "COLORADO": "CO", "CONNECTICUT": "CT", "DELAWARE": "DE", "FLORIDA": "FL", "GEORGIA": "GA", "HAWAII": "HI", "IDAHO": "ID", "ILLINOIS": "IL", "INDIANA": "IN", "IOWA": "IA", "KANSAS": "KS", "KENTUCKY": "KY", "LOUISIANA": "LA", "MAINE": "ME", "MARYLAND": "MD", "MASSACHUSETTS": "MA", "MICHIGAN": "MI", "MINNESOTA": "MN", "MISSISSIPPI": "MS", "MISSOURI": "MO", "MONTANA": "MT", "NEBRASKA": "NE", "NEVADA": "NV", "NEW HAMPSHIRE": "NH", "NEW JERSEY": "NJ", "NEW MEXICO": "NM", "NEW YORK": "NY", "NORTH CAROLINA": "NC", "NORTH DAKOTA": "ND", "OHIO": "OH", "OKLAHOMA": "OK", "OREGON": "OR", "PENNSYLVANIA": "PA", "RHODE ISLAND": "RI", "SOUTH CAROLINA": "SC", "SOUTH DAKOTA": "SD", "TENNESSEE": "TN", "TEXAS": "TX", "UTAH": "UT", "VERMONT": "VT", "VIRGINIA": "VA", "WASHINGTON": "WA", "WEST VIRGINIA": "WV", "WISCONSIN": "WI", "WYOMING": "WY",
	}
	if v, ok := m[s]; ok {
		return v
	}
	return s
}
