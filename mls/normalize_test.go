package mls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRESORecord(t *testing.T) {
	raw := map[string]any{
		"ListingId":             "MLS123",
		"ListingKey":            "key-abc",
		"PropertyType":          "Residential",
		"StandardStatus":        "Active",
		"StreetNumber":          "123",
		"StreetName":            "Main",
		"StreetSuffix":          "St",
		"City":                  "Columbus",
		"StateOrProvince":       "OH",
		"PostalCode":            "43215",
		"Latitude":              39.9612,
		"Longitude":             -82.9988,
		"BedroomsTotal":         float64(3),
		"BathroomsFull":         float64(2),
		"LivingArea":            float64(1850),
		"YearBuilt":             float64(1998),
		"ListPrice":             float64(350000),
		"PublicRemarks":         "Charming cape cod",
		"ModificationTimestamp": "2025-06-01T12:00:00Z",
	}
	p := Normalize(raw)
	require.NotNil(t, p)
	assert.Equal(t, "MLS123", p.ListingID)
	assert.Equal(t, TypeResidential, p.PropertyType)
	assert.Equal(t, StatusActive, p.StandardStatus)
	assert.Equal(t, "Columbus", p.Address.City)
	assert.Equal(t, "43215", p.Address.PostalCode)
	require.NotNil(t, p.Latitude)
	assert.InDelta(t, 39.9612, *p.Latitude, 1e-9)
	assert.Equal(t, 3, p.Bedrooms)
	assert.Equal(t, 1850, p.SquareFeet)
	assert.Equal(t, 350000.0, p.ListPrice)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), p.ModificationTimestamp)
}

func TestNormalizeAliasesAndCoercions(t *testing.T) {
	raw := map[string]any{
		"mls_number": "AB-9",
		"status":     "for_sale",
		"type":       "condo",
		"price":      "$425,000",
		"beds":       "4",
		"baths":      2.5,
		"zip":        "43004",
	}
	p := Normalize(raw)
	require.NotNil(t, p)
	assert.Equal(t, "AB-9", p.ListingID)
	assert.Equal(t, StatusActive, p.StandardStatus)
	assert.Equal(t, TypeCondominium, p.PropertyType)
	assert.Equal(t, 425000.0, p.ListPrice)
	assert.Equal(t, 4, p.Bedrooms)
	assert.Equal(t, 2, p.BathroomsFull, "decimal bath total splits")
	assert.Equal(t, 1, p.BathroomsHalf)
	assert.Equal(t, "43004", p.Address.PostalCode)
}

func TestNormalizeRejectsBadRecords(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Nil(t, Normalize(map[string]any{"City": "Columbus"}), "no listing identity")
	assert.Nil(t, Normalize(map[string]any{"ListingId": "X1", "ListPrice": float64(-5)}), "negative price")
}

func TestNormalizeListingKeyFallback(t *testing.T) {
	p := Normalize(map[string]any{"ListingKey": "key-only"})
	require.NotNil(t, p)
	assert.Equal(t, "key-only", p.ListingID)
}

func TestNormalizeInvalidZipBlanked(t *testing.T) {
	p := Normalize(map[string]any{"ListingId": "Z1", "PostalCode": "4321"})
	require.NotNil(t, p)
	assert.Empty(t, p.Address.PostalCode)

	p = Normalize(map[string]any{"ListingId": "Z2", "PostalCode": "43215-1234"})
	require.NotNil(t, p)
	assert.Equal(t, "43215-1234", p.Address.PostalCode)
}

func TestNormalizeNestedAddress(t *testing.T) {
	p := Normalize(map[string]any{
		"ListingId": "N1",
		"address": map[string]any{
			"city": "Westerville",
			"zip":  "43081",
		},
	})
	require.NotNil(t, p)
	assert.Equal(t, "Westerville", p.Address.City)
	assert.Equal(t, "43081", p.Address.PostalCode)
}

func TestNormalizePhotoUpgrade(t *testing.T) {
	p := Normalize(map[string]any{
		"ListingId": "P1",
		"Media": []any{
			map[string]any{"MediaURL": "https://cdn.example.com/img-w480_h360.jpg"},
			"https://cdn.example.com/plain.jpg",
		},
	})
	require.NotNil(t, p)
	require.Len(t, p.Photos, 2)
	assert.Equal(t, "https://cdn.example.com/img-w2048_h1536.jpg", p.Photos[0])
	assert.Equal(t, "https://cdn.example.com/plain.jpg", p.Photos[1])
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusExpired.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusPending.Terminal())
}
