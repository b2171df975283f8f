package mls

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Normalize maps one raw provider record into the canonical schema. Provider
// feeds disagree on casing and naming, so every field carries an explicit
// alias list. Returns nil on unrecoverable input (no listing identity, or a
// negative price) so batch operations can skip one bad record without
// failing the page.
func Normalize(raw map[string]any) *Property {
	if len(raw) == 0 {
		return nil
	}
	p := &Property{}

	p.ListingID = str(raw, "ListingId", "ListingID", "listingId", "listing_id", "mlsNumber", "MlsNumber", "mls_number", "id")
	p.ListingKey = str(raw, "ListingKey", "listingKey", "listing_key")
	if p.ListingID == "" {
		if p.ListingKey == "" {
			return nil
		}
		p.ListingID = p.ListingKey
	}

	p.PropertyType = normalizeType(str(raw, "PropertyType", "propertyType", "property_type", "type", "propClass"))
	p.PropertySubType = str(raw, "PropertySubType", "propertySubType", "property_sub_type", "subtype")

	p.Address = normalizeAddress(raw)
	if lat, ok := num(raw, "Latitude", "latitude", "lat"); ok && lat != 0 {
		p.Latitude = &lat
	}
	if lon, ok := num(raw, "Longitude", "longitude", "lon", "lng"); ok && lon != 0 {
		p.Longitude = &lon
	}

	p.Bedrooms = integer(raw, "BedroomsTotal", "bedrooms", "beds", "Beds", "bedrooms_total")
	p.BathroomsFull = integer(raw, "BathroomsFull", "bathroomsFull", "bathrooms_full", "full_baths")
	p.BathroomsHalf = integer(raw, "BathroomsHalf", "bathroomsHalf", "bathrooms_half", "half_baths")
	if p.BathroomsFull == 0 {
		// Some feeds only carry a decimal total, e.g. 2.5.
		if total, ok := num(raw, "BathroomsTotalDecimal", "bathrooms", "baths"); ok && total > 0 {
			p.BathroomsFull = int(total)
			if total > math.Trunc(total) {
				p.BathroomsHalf = 1
			}
		}
	}
	p.SquareFeet = integer(raw, "LivingArea", "livingArea", "living_area", "sqft", "square_feet", "size")
	p.LotSizeSqFt = integer(raw, "LotSizeSquareFeet", "lotSizeSquareFeet", "lot_size_sqft", "lot_sqft")
	p.YearBuilt = integer(raw, "YearBuilt", "yearBuilt", "year_built", "year")

	if v, ok := num(raw, "ListPrice", "listPrice", "list_price", "price", "Price", "currentPrice"); ok {
		p.ListPrice = v
	}
	if p.ListPrice < 0 {
		return nil
	}
	if v, ok := num(raw, "OriginalListPrice", "originalListPrice", "original_list_price"); ok {
		p.OriginalListPrice = v
	}
	if v, ok := num(raw, "PreviousListPrice", "previousListPrice", "previous_list_price"); ok {
		p.PreviousListPrice = v
	}
	if t, ok := timestamp(raw, "PriceChangeTimestamp", "priceChangeTimestamp", "price_changed_at"); ok {
		p.PriceChangedAt = &t
	}

	p.StandardStatus = normalizeStatus(str(raw, "StandardStatus", "standardStatus", "standard_status", "status", "Status", "MlsStatus"))
	p.Remarks = str(raw, "PublicRemarks", "publicRemarks", "remarks", "description")
	p.Photos = normalizePhotos(raw)
	p.ListAgentKey = str(raw, "ListAgentKey", "listAgentKey", "list_agent_key", "agent_id", "ListAgentMlsId")
	p.ListOfficeKey = str(raw, "ListOfficeKey", "listOfficeKey", "list_office_key", "office_id", "ListOfficeMlsId")

	if t, ok := timestamp(raw, "ModificationTimestamp", "modificationTimestamp", "modification_timestamp", "modified", "lastModified", "updated_at", "updatedAt"); ok {
		p.ModificationTimestamp = t
	}
	return p
}

var zipRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// ValidPostalCode reports whether zip matches the 5 or 5+4 digit pattern.
func ValidPostalCode(zip string) bool {
	return zipRe.MatchString(zip)
}

func normalizeAddress(raw map[string]any) Address {
	src := raw
	// Some providers nest the address block.
	if nested, ok := raw["address"].(map[string]any); ok {
		src = merged(raw, nested)
	} else if nested, ok := raw["Address"].(map[string]any); ok {
		src = merged(raw, nested)
	}
	a := Address{
		StreetNumber: str(src, "StreetNumber", "streetNumber", "street_number"),
		StreetName:   str(src, "StreetName", "streetName", "street_name"),
		StreetSuffix: str(src, "StreetSuffix", "streetSuffix", "street_suffix"),
		UnitNumber:   str(src, "UnitNumber", "unitNumber", "unit_number", "unit"),
		City:         str(src, "City", "city", "locality"),
		State:        str(src, "StateOrProvince", "stateOrProvince", "state", "State", "region"),
		PostalCode:   str(src, "PostalCode", "postalCode", "postal_code", "zip", "postal1"),
		County:       str(src, "CountyOrParish", "countyOrParish", "county"),
	}
	if a.StreetName == "" {
		// Fall back to a one-line form; leave it unsplit in StreetName.
		if line := str(src, "UnparsedAddress", "unparsedAddress", "oneLine", "line1"); line != "" {
			a.StreetName = line
		}
	}
	if a.PostalCode != "" && !ValidPostalCode(a.PostalCode) {
		a.PostalCode = ""
	}
	return a
}

var photoSizeRe = regexp.MustCompile(`-w\d+_h\d+`)

// upgradePhotoURL rewrites size-constrained CDN photo URLs to the large
// variant.
func upgradePhotoURL(href string) string {
	if href == "" {
		return href
	}
	return photoSizeRe.ReplaceAllString(href, "-w2048_h1536")
}

func normalizePhotos(raw map[string]any) []string {
	var out []string
	add := func(href string) {
		if href != "" {
			out = append(out, upgradePhotoURL(href))
		}
	}
	for _, key := range []string{"Media", "media", "photos", "Photos", "images"} {
		items, ok := raw[key].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			switch v := item.(type) {
			case string:
				add(v)
			case map[string]any:
				add(str(v, "MediaURL", "mediaUrl", "media_url", "href", "url"))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

var statusAliases = map[string]StandardStatus{
	"active":                StatusActive,
	"for sale":              StatusActive,
	"for_sale":              StatusActive,
	"activeundercontract":   StatusActiveUnderContract,
	"active under contract": StatusActiveUnderContract,
	"under contract":        StatusActiveUnderContract,
	"pending":               StatusPending,
	"closed":                StatusClosed,
	"sold":                  StatusClosed,
	"expired":               StatusExpired,
	"canceled":              StatusCanceled,
	"cancelled":             StatusCanceled,
	"withdrawn":             StatusWithdrawn,
	"hold":                  StatusHold,
	"incomplete":            StatusIncomplete,
}

func normalizeStatus(v string) StandardStatus {
	if v == "" {
		return ""
	}
	key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(v, "_", " ")))
	if s, ok := statusAliases[key]; ok {
		return s
	}
	key = strings.ReplaceAll(key, " ", "")
	if s, ok := statusAliases[key]; ok {
		return s
	}
	return ""
}

var typeAliases = map[string]PropertyType{
	"residential":   TypeResidential,
	"single family": TypeResidential,
	"singlefamily":  TypeResidential,
	"house":         TypeResidential,
	"sfr":           TypeResidential,
	"condominium":   TypeCondominium,
	"condo":         TypeCondominium,
	"townhouse":     TypeTownhouse,
	"townhome":      TypeTownhouse,
	"multifamily":   TypeMultiFamily,
	"multi family":  TypeMultiFamily,
	"duplex":        TypeMultiFamily,
	"land":          TypeLand,
	"lot":           TypeLand,
	"commercial":    TypeCommercial,
}

func normalizeType(v string) PropertyType {
	if v == "" {
		return ""
	}
	key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(v, "_", " ")))
	if t, ok := typeAliases[key]; ok {
		return t
	}
	key = strings.ReplaceAll(key, " ", "")
	if t, ok := typeAliases[key]; ok {
		return t
	}
	return ""
}

// str returns the first non-empty string value among the aliases.
func str(raw map[string]any, aliases ...string) string {
	for _, k := range aliases {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			if t := strings.TrimSpace(s); t != "" {
				return t
			}
		case json.Number:
			return s.String()
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

// num coerces the first present alias to a float, stripping currency symbols
// and thousands separators from string forms.
func num(raw map[string]any, aliases ...string) (float64, bool) {
	for _, k := range aliases {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		case string:
			cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "", " ", "").Replace(n))
			if cleaned == "" {
				continue
			}
			if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func integer(raw map[string]any, aliases ...string) int {
	if v, ok := num(raw, aliases...); ok && v > 0 {
		return int(v)
	}
	return 0
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func timestamp(raw map[string]any, aliases ...string) (time.Time, bool) {
	s := str(raw, aliases...)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func merged(outer, inner map[string]any) map[string]any {
	out := make(map[string]any, len(outer)+len(inner))
	for k, v := range outer {
		out[k] = v
	}
	for k, v := range inner {
		out[k] = v
	}
	return out
}
