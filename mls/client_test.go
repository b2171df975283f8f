package mls

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/internal/executor"
	"github.com/yourorg/mls-sync/internal/mlserr"
	"github.com/yourorg/mls-sync/internal/ratelimit"
)

type wireErr struct {
	status int
}

func (e *wireErr) Error() string   { return fmt.Sprintf("provider status %d", e.status) }
func (e *wireErr) HTTPStatus() int { return e.status }

type fakeAPI struct {
	searchBody  []byte
	searchErr   error
	searchCalls int

	detailBody  []byte
	detailErr   error
	detailCalls int
}

func (f *fakeAPI) SearchQuery(context.Context, string, *SearchCriteria) ([]byte, error) {
	f.searchCalls++
	return f.searchBody, f.searchErr
}

func (f *fakeAPI) Detail(context.Context, string, string) ([]byte, error) {
	f.detailCalls++
	return f.detailBody, f.detailErr
}

func (f *fakeAPI) Probe(context.Context, string) error { return nil }

type fakeTokens struct {
	invalidated int
}

func (f *fakeTokens) EnsureValidToken(context.Context) (string, error) { return "tok", nil }
func (f *fakeTokens) Invalidate()                                     { f.invalidated++ }
func (f *fakeTokens) Valid() bool                                     { return true }

type fixedGeo struct {
	lat, lon float64
}

func (g fixedGeo) Geocode(context.Context, string) (float64, float64, error) {
	return g.lat, g.lon, nil
}

func newTestClient(t *testing.T, api *fakeAPI, perMinute int) (*Client, *fakeTokens, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	exec := executor.New(executor.Options{Log: zerolog.Nop()}).
		WithSleep(func(context.Context, time.Duration) error { return nil }).
		WithJitter(func() time.Duration { return 0 })
	tokens := &fakeTokens{}
	c := NewClient(ClientDeps{
		API:      api,
		Auth:     tokens,
		Cache:    cache.NewMemory().WithClock(clock),
		Limiter:  ratelimit.NewSlidingWindow(perMinute).WithClock(clock),
		Exec:     exec,
		Geocoder: fixedGeo{lat: 39.9612, lon: -82.9988},
		Log:      zerolog.Nop(),
	})
	return c, tokens, &now
}

func searchPayload(count int, rows string) []byte {
	return []byte(fmt.Sprintf(`{"@odata.count":%d,"value":[%s]}`, count, rows))
}

const activeRow = `{"ListingId":"L1","StandardStatus":"Active","ListPrice":300000,"City":"Columbus","Latitude":39.96,"Longitude":-82.99,"LivingArea":1500}`

func TestSearchServedFromCache(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(1, activeRow)}
	c, _, _ := newTestClient(t, api, 60)

	first, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.NoError(t, err)
	require.Len(t, first.Properties, 1)
	assert.Equal(t, 1, first.TotalCount)
	assert.False(t, first.HasMore)

	second, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.NoError(t, err)
	assert.Equal(t, 1, api.searchCalls, "identical criteria must hit the cache")
	assert.Equal(t, first.RequestID, second.RequestID, "cached response is returned verbatim")
}

func TestSearchFullPageWithoutCountHasMore(t *testing.T) {
	api := &fakeAPI{searchBody: []byte(`{"value":[` + activeRow + `]}`)}
	c, _, _ := newTestClient(t, api, 60)

	res, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}, Limit: 1})
	require.NoError(t, err)
	assert.True(t, res.HasMore, "a full page with no declared total implies another page")
	assert.Equal(t, 1, res.NextOffset)

	api.searchBody = []byte(`{"value":[` + activeRow + `]}`)
	res, err = c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Dublin"}, Limit: 5})
	require.NoError(t, err)
	assert.False(t, res.HasMore, "a short page ends the walk")
}

func TestSearchLeavesCallerCriteriaUntouched(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(1, activeRow)}
	c, _, _ := newTestClient(t, api, 60)

	crit := &SearchCriteria{Cities: []string{"Columbus"}}
	_, err := c.SearchProperties(context.Background(), crit)
	require.NoError(t, err)
	assert.Zero(t, crit.Limit)
	assert.Empty(t, crit.SortBy)
}

func TestSearchValidationSkipsNetwork(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(0, "")}
	c, _, _ := newTestClient(t, api, 60)

	_, err := c.SearchProperties(context.Background(), &SearchCriteria{
		MinListPrice: floatp(500000),
		MaxListPrice: floatp(100000),
	})
	require.Error(t, err)
	assert.True(t, mlserr.IsType(err, mlserr.TypeValidation))
	assert.Zero(t, api.searchCalls)
}

func TestSearchStaleFallback(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(1, activeRow)}
	c, _, now := newTestClient(t, api, 60)

	first, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.NoError(t, err)

	// Entry expires, provider goes down.
	*now = now.Add(10 * time.Minute)
	api.searchErr = &wireErr{status: 503}

	res, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.NoError(t, err, "stale cache must mask the outage")
	assert.Equal(t, first.RequestID, res.RequestID)
}

func TestSearchRateLimited(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(1, activeRow)}
	c, _, _ := newTestClient(t, api, 1)

	_, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.NoError(t, err)

	// Different criteria, no cache entry, quota spent.
	_, err = c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Dublin"}})
	require.Error(t, err)
	assert.True(t, mlserr.IsType(err, mlserr.TypeRateLimit))
	var typed *mlserr.Error
	require.ErrorAs(t, err, &typed)
	assert.True(t, typed.Retryable)
	assert.Equal(t, 1, api.searchCalls)
}

func TestSearchAuthFailureInvalidatesToken(t *testing.T) {
	api := &fakeAPI{searchErr: &wireErr{status: 401}}
	c, tokens, _ := newTestClient(t, api, 60)

	_, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.Error(t, err)
	assert.True(t, mlserr.IsType(err, mlserr.TypeAuthentication))
	assert.Equal(t, 1, tokens.invalidated)
}

func TestSearchSkipsUnnormalizableRecords(t *testing.T) {
	rows := activeRow + `,{"City":"NoIdentity"}`
	api := &fakeAPI{searchBody: searchPayload(2, rows)}
	c, _, _ := newTestClient(t, api, 60)

	res, err := c.SearchProperties(context.Background(), &SearchCriteria{Cities: []string{"Columbus"}})
	require.NoError(t, err)
	assert.Len(t, res.Properties, 1, "bad record dropped, batch survives")
	assert.Equal(t, 2, res.TotalCount)
}

func TestGetPropertyNotFoundNegativeCached(t *testing.T) {
	api := &fakeAPI{detailErr: &wireErr{status: 404}}
	c, _, _ := newTestClient(t, api, 60)

	_, err := c.GetProperty(context.Background(), "MISSING")
	require.Error(t, err)
	var typed *mlserr.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "PROPERTY_NOT_FOUND", typed.Code)

	_, err = c.GetProperty(context.Background(), "MISSING")
	require.Error(t, err)
	assert.Equal(t, 1, api.detailCalls, "repeat lookups are served by the negative cache")
}

func TestGetPropertyCached(t *testing.T) {
	api := &fakeAPI{detailBody: []byte(activeRow)}
	c, _, _ := newTestClient(t, api, 60)

	p, err := c.GetProperty(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, "L1", p.ListingID)

	_, err = c.GetProperty(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, 1, api.detailCalls)
}

func TestGetPropertyRequiresID(t *testing.T) {
	api := &fakeAPI{}
	c, _, _ := newTestClient(t, api, 60)
	_, err := c.GetProperty(context.Background(), "")
	require.Error(t, err)
	assert.True(t, mlserr.IsType(err, mlserr.TypeValidation))
}

func TestMarketAnalysisZeroComps(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(0, "")}
	c, _, _ := newTestClient(t, api, 60)

	analysis, err := c.GetMarketAnalysis(context.Background(), "123 Main St, Columbus, OH 43215", AnalysisOptions{})
	require.NoError(t, err)
	assert.Empty(t, analysis.Comparables)
	assert.Nil(t, analysis.PriceEstimate)
	assert.Zero(t, analysis.MeanListPrice)
}

func TestMarketAnalysisEstimate(t *testing.T) {
	rows := `{"ListingId":"C1","StandardStatus":"Active","ListPrice":200000,"Latitude":39.9620,"Longitude":-82.9990,"LivingArea":1000},` +
		`{"ListingId":"C2","StandardStatus":"Closed","ListPrice":300000,"Latitude":39.9700,"Longitude":-83.0100,"LivingArea":1500},` +
		`{"ListingId":"C3","StandardStatus":"Closed","ListPrice":400000,"Latitude":39.9500,"Longitude":-82.9800,"LivingArea":2000}`
	api := &fakeAPI{searchBody: searchPayload(3, rows)}
	c, _, _ := newTestClient(t, api, 60)

	analysis, err := c.GetMarketAnalysis(context.Background(), "123 Main St, Columbus, OH 43215", AnalysisOptions{})
	require.NoError(t, err)
	require.Len(t, analysis.Comparables, 3)
	// Nearest first.
	assert.Equal(t, "C1", analysis.Comparables[0].Property.ListingID)
	assert.InDelta(t, 300000, analysis.MeanListPrice, 1e-6)
	assert.InDelta(t, 300000, analysis.MedianListPrice, 1e-6)
	assert.Equal(t, 1, analysis.ActiveListings)
	require.NotNil(t, analysis.PriceEstimate)
	assert.InDelta(t, 270000, analysis.PriceEstimate.Low, 1e-6)
	assert.InDelta(t, 330000, analysis.PriceEstimate.High, 1e-6)
	assert.InDelta(t, 0.3, analysis.PriceEstimate.Confidence, 1e-9)
}

func TestStatusReportsHeadroom(t *testing.T) {
	api := &fakeAPI{searchBody: searchPayload(0, "")}
	c, _, _ := newTestClient(t, api, 60)

	st := c.Status(context.Background())
	assert.True(t, st.AuthValid)
	assert.Equal(t, 60, st.RateRemaining)
	assert.Equal(t, "healthy", st.Connectivity)
	assert.Nil(t, st.LastSync)

	c.RecordSync(time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC))
	st = c.Status(context.Background())
	require.NotNil(t, st.LastSync)
}
