// Package mls holds the canonical listing schema and the integration client
// that fronts the upstream provider.
package mls

import (
	"strings"
	"time"
)

// StandardStatus is the RESO listing lifecycle status.
type StandardStatus string

const (
	StatusActive              StandardStatus = "Active"
	StatusActiveUnderContract StandardStatus = "ActiveUnderContract"
	StatusPending             StandardStatus = "Pending"
	StatusClosed              StandardStatus = "Closed"
	StatusExpired             StandardStatus = "Expired"
	StatusCanceled            StandardStatus = "Canceled"
	StatusWithdrawn           StandardStatus = "Withdrawn"
	StatusHold                StandardStatus = "Hold"
	StatusIncomplete          StandardStatus = "Incomplete"
)

// Terminal reports whether the listing can no longer change hands. Terminal
// listings rarely change at all, which is why they get the long cache TTL.
func (s StandardStatus) Terminal() bool {
	switch s {
	case StatusClosed, StatusExpired, StatusCanceled, StatusWithdrawn:
		return true
	}
	return false
}

type PropertyType string

const (
	TypeResidential PropertyType = "Residential"
	TypeCondominium PropertyType = "Condominium"
	TypeTownhouse   PropertyType = "Townhouse"
	TypeMultiFamily PropertyType = "MultiFamily"
	TypeLand        PropertyType = "Land"
	TypeCommercial  PropertyType = "Commercial"
)

type Address struct {
	StreetNumber string `json:"street_number,omitempty"`
	StreetName   string `json:"street_name,omitempty"`
	StreetSuffix string `json:"street_suffix,omitempty"`
	UnitNumber   string `json:"unit_number,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	County       string `json:"county,omitempty"`
}

// OneLine renders the street portion plus city/state/zip.
func (a Address) OneLine() string {
	street := strings.TrimSpace(strings.Join(nonEmptyStrings(a.StreetNumber, a.StreetName, a.StreetSuffix), " "))
	if a.UnitNumber != "" {
		street += " #" + a.UnitNumber
	}
	parts := nonEmptyStrings(street, a.City, a.State)
	line := strings.Join(parts, ", ")
	if a.PostalCode != "" {
		line += " " + a.PostalCode
	}
	return strings.TrimSpace(line)
}

// Property is the normalized listing record every provider payload maps into.
type Property struct {
	ListingID       string       `json:"listing_id"`
	ListingKey      string       `json:"listing_key,omitempty"`
	PropertyType    PropertyType `json:"property_type,omitempty"`
	PropertySubType string       `json:"property_sub_type,omitempty"`

	Address   Address  `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Bedrooms      int `json:"bedrooms,omitempty"`
	BathroomsFull int `json:"bathrooms_full,omitempty"`
	BathroomsHalf int `json:"bathrooms_half,omitempty"`
	SquareFeet    int `json:"square_feet,omitempty"`
	LotSizeSqFt   int `json:"lot_size_sqft,omitempty"`
	YearBuilt     int `json:"year_built,omitempty"`

	ListPrice         float64    `json:"list_price"`
	OriginalListPrice float64    `json:"original_list_price,omitempty"`
	PreviousListPrice float64    `json:"previous_list_price,omitempty"`
	PriceChangedAt    *time.Time `json:"price_changed_at,omitempty"`

	StandardStatus StandardStatus `json:"standard_status,omitempty"`
	Remarks        string         `json:"remarks,omitempty"`
	Photos         []string       `json:"photos,omitempty"`
	ListAgentKey   string         `json:"list_agent_key,omitempty"`
	ListOfficeKey  string         `json:"list_office_key,omitempty"`

	// Incremental sync watermarks key off this field.
	ModificationTimestamp time.Time `json:"modification_timestamp"`
}

type BoundingBox struct {
	MinLat float64 `json:"min_lat" validate:"gte=-90,lte=90"`
	MaxLat float64 `json:"max_lat" validate:"gte=-90,lte=90"`
	MinLon float64 `json:"min_lon" validate:"gte=-180,lte=180"`
	MaxLon float64 `json:"max_lon" validate:"gte=-180,lte=180"`
}

// SearchCriteria is validated before any network call; every min/max pair
// must be order-consistent.
type SearchCriteria struct {
	Cities      []string     `json:"cities,omitempty"`
	PostalCodes []string     `json:"postal_codes,omitempty"`
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`

	PropertyType  PropertyType `json:"property_type,omitempty"`
	MinBedrooms   *int         `json:"min_bedrooms,omitempty" validate:"omitempty,gte=0"`
	MaxBedrooms   *int         `json:"max_bedrooms,omitempty" validate:"omitempty,gte=0"`
	MinBathrooms  *int         `json:"min_bathrooms,omitempty" validate:"omitempty,gte=0"`
	MaxBathrooms  *int         `json:"max_bathrooms,omitempty" validate:"omitempty,gte=0"`
	MinSquareFeet *int         `json:"min_square_feet,omitempty" validate:"omitempty,gte=0"`
	MaxSquareFeet *int         `json:"max_square_feet,omitempty" validate:"omitempty,gte=0"`
	MinLotSize    *int         `json:"min_lot_size,omitempty" validate:"omitempty,gte=0"`
	MaxLotSize    *int         `json:"max_lot_size,omitempty" validate:"omitempty,gte=0"`
	MinYearBuilt  *int         `json:"min_year_built,omitempty" validate:"omitempty,gte=1700"`
	MaxYearBuilt  *int         `json:"max_year_built,omitempty" validate:"omitempty,gte=1700"`
	MinListPrice  *float64     `json:"min_list_price,omitempty" validate:"omitempty,gte=0"`
	MaxListPrice  *float64     `json:"max_list_price,omitempty" validate:"omitempty,gte=0"`

	Statuses      []StandardStatus `json:"statuses,omitempty"`
	ModifiedSince *time.Time       `json:"modified_since,omitempty"`

	Limit    int    `json:"limit,omitempty" validate:"gte=0,lte=1000"`
	Offset   int    `json:"offset,omitempty" validate:"gte=0"`
	SortBy   string `json:"sort_by,omitempty"`
	SortDesc bool   `json:"sort_desc,omitempty"`
}

// SearchResult is constructed once per search call and never mutated after
// return.
type SearchResult struct {
	Properties []*Property `json:"properties"`
	TotalCount int         `json:"total_count"`
	HasMore    bool        `json:"has_more"`
	NextOffset int         `json:"next_offset"`
	RequestID  string      `json:"request_id"`
}

type Comparable struct {
	Property      *Property `json:"property"`
	DistanceMiles float64   `json:"distance_miles"`
}

type PriceEstimate struct {
	Low        float64 `json:"low"`
	Value      float64 `json:"value"`
	High       float64 `json:"high"`
	Confidence float64 `json:"confidence"`
}

type MarketAnalysis struct {
	Address          string         `json:"address"`
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	Comparables      []Comparable   `json:"comparables"`
	MeanListPrice    float64        `json:"mean_list_price"`
	MedianListPrice  float64        `json:"median_list_price"`
	MeanPricePerSqFt float64        `json:"mean_price_per_sqft"`
	ActiveListings   int            `json:"active_listings"`
	PriceEstimate    *PriceEstimate `json:"price_estimate,omitempty"`
}

type AnalysisOptions struct {
	RadiusMiles float64          `json:"radius_miles,omitempty"`
	MaxComps    int              `json:"max_comps,omitempty"`
	Statuses    []StandardStatus `json:"statuses,omitempty"`
}

type IntegrationStatus struct {
	AuthValid     bool       `json:"auth_valid"`
	RateRemaining int        `json:"rate_remaining"`
	Connectivity  string     `json:"connectivity"` // healthy | degraded | down
	LastSync      *time.Time `json:"last_sync,omitempty"`
}

func nonEmptyStrings(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
