package propertysvc

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/mls-sync/internal/address"
	"github.com/yourorg/mls-sync/mls"
)

type fakeSearcher struct {
	result *mls.SearchResult
	err    error
	calls  []mls.SearchCriteria
}

func (f *fakeSearcher) SearchProperties(_ context.Context, c *mls.SearchCriteria) (*mls.SearchResult, error) {
	f.calls = append(f.calls, *c)
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &mls.SearchResult{}, nil
	}
	return f.result, nil
}

type fixedGeo struct {
	lat, lon float64
}

func (g fixedGeo) Geocode(context.Context, string) (float64, float64, error) {
	return g.lat, g.lon, nil
}

func listing(id, number, name, suffix, city, state, zip string) *mls.Property {
	return &mls.Property{
		ListingID: id,
		Address: mls.Address{
			StreetNumber: number,
			StreetName:   name,
			StreetSuffix: suffix,
			City:         city,
			State:        state,
			PostalCode:   zip,
		},
		ListPrice:      250000,
		StandardStatus: mls.StatusActive,
	}
}

func TestParseQueryFull(t *testing.T) {
	c := ParseQuery("3 bed 2 bath condo in Columbus under 400k")
	require.NotNil(t, c.MinBedrooms)
	assert.Equal(t, 3, *c.MinBedrooms)
	require.NotNil(t, c.MinBathrooms)
	assert.Equal(t, 2, *c.MinBathrooms)
	require.NotNil(t, c.MaxListPrice)
	assert.Equal(t, 400000.0, *c.MaxListPrice)
	assert.Equal(t, mls.TypeCondominium, c.PropertyType)
	assert.Equal(t, []string{"Columbus"}, c.Cities)
	assert.Nil(t, c.MinListPrice)
}

func TestParseQueryBetweenAndZip(t *testing.T) {
	c := ParseQuery("sold homes in 43215 between $200,000 and 350k")
	require.NotNil(t, c.MinListPrice)
	assert.Equal(t, 200000.0, *c.MinListPrice)
	require.NotNil(t, c.MaxListPrice)
	assert.Equal(t, 350000.0, *c.MaxListPrice)
	assert.Equal(t, []string{"43215"}, c.PostalCodes)
	assert.Empty(t, c.Cities, "zip beats city extraction")
	assert.Equal(t, []mls.StandardStatus{mls.StatusClosed}, c.Statuses)
	assert.Equal(t, mls.TypeResidential, c.PropertyType)
}

func TestParseQueryOverPrice(t *testing.T) {
	c := ParseQuery("land over 1.5m")
	require.NotNil(t, c.MinListPrice)
	assert.Equal(t, 1500000.0, *c.MinListPrice)
	assert.Equal(t, mls.TypeLand, c.PropertyType)
}

func TestParseQueryEmpty(t *testing.T) {
	c := ParseQuery("   ")
	assert.Nil(t, c.MinBedrooms)
	assert.Empty(t, c.Cities)
	assert.Empty(t, c.Statuses)
}

func TestAutoPopulateMatches(t *testing.T) {
	search := &fakeSearcher{result: &mls.SearchResult{Properties: []*mls.Property{
		listing("L1", "125", "Main", "St", "Columbus", "OH", "43215"),
		listing("L2", "123", "Main", "Street", "Columbus", "OH", "43215"),
	}}}
	svc := New(search, address.NewValidator(nil), fixedGeo{}, zerolog.Nop())

	out, err := svc.AutoPopulateFromAddress(context.Background(), "123 Main St, Columbus, OH 43215")
	require.NoError(t, err)
	require.True(t, out.Validation.IsValid)
	require.NotNil(t, out.Match)
	assert.Equal(t, "L2", out.Match.ListingID, "suffix spelling must not block the match")

	require.Len(t, search.calls, 1)
	assert.Equal(t, []string{"43215"}, search.calls[0].PostalCodes)
}

func TestAutoPopulateInvalidAddress(t *testing.T) {
	search := &fakeSearcher{}
	svc := New(search, address.NewValidator(nil), fixedGeo{}, zerolog.Nop())

	out, err := svc.AutoPopulateFromAddress(context.Background(), "gibberish")
	require.Error(t, err)
	assert.False(t, out.Validation.IsValid)
	assert.Empty(t, search.calls, "invalid addresses never hit the provider")
}

func TestAutoPopulateNoMatch(t *testing.T) {
	search := &fakeSearcher{result: &mls.SearchResult{Properties: []*mls.Property{
		listing("L1", "999", "Elsewhere", "Ave", "Columbus", "OH", "43215"),
	}}}
	svc := New(search, address.NewValidator(nil), fixedGeo{}, zerolog.Nop())

	out, err := svc.AutoPopulateFromAddress(context.Background(), "123 Main St, Columbus, OH 43215")
	require.NoError(t, err)
	assert.Nil(t, out.Match)
}

func TestSuggestions(t *testing.T) {
	search := &fakeSearcher{result: &mls.SearchResult{Properties: []*mls.Property{
		listing("L1", "123", "Main", "St", "Columbus", "OH", "43215"),
		listing("L2", "123", "Maple", "Ave", "Columbus", "OH", "43215"),
		listing("L3", "77", "Oak", "Dr", "Columbus", "OH", "43215"),
	}}}
	svc := New(search, address.NewValidator(nil), fixedGeo{}, zerolog.Nop())

	got, err := svc.Suggestions(context.Background(), "123 Ma", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"123 Main St, Columbus, OH 43215",
		"123 Maple Ave, Columbus, OH 43215",
	}, got)
}

func TestSuggestionsShortInput(t *testing.T) {
	search := &fakeSearcher{}
	svc := New(search, address.NewValidator(nil), fixedGeo{}, zerolog.Nop())
	got, err := svc.Suggestions(context.Background(), "12", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, search.calls)
}

func TestRecentComparablesSorted(t *testing.T) {
	far := listing("FAR", "1", "Far", "St", "Columbus", "OH", "43215")
	lat, lon := 39.99, -83.05
	far.Latitude, far.Longitude = &lat, &lon
	near := listing("NEAR", "2", "Near", "St", "Columbus", "OH", "43215")
	nlat, nlon := 39.9615, -82.999
	near.Latitude, near.Longitude = &nlat, &nlon
	noCoords := listing("NOPE", "3", "Null", "Island", "Columbus", "OH", "43215")

	search := &fakeSearcher{result: &mls.SearchResult{Properties: []*mls.Property{far, near, noCoords}}}
	svc := New(search, address.NewValidator(nil), fixedGeo{lat: 39.9612, lon: -82.9988}, zerolog.Nop())

	comps, err := svc.RecentComparables(context.Background(), "123 Main St, Columbus, OH 43215", 2.0, 10)
	require.NoError(t, err)
	require.Len(t, comps, 2, "records without coordinates are excluded")
	assert.Equal(t, "NEAR", comps[0].Property.ListingID)
	assert.Equal(t, "FAR", comps[1].Property.ListingID)

	require.Len(t, search.calls, 1)
	assert.Equal(t, []mls.StandardStatus{mls.StatusClosed}, search.calls[0].Statuses)
	require.NotNil(t, search.calls[0].BoundingBox)
}
