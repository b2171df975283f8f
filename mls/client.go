package mls

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourorg/mls-sync/internal/cache"
	"github.com/yourorg/mls-sync/internal/geocode"
	"github.com/yourorg/mls-sync/internal/metrics"
	"github.com/yourorg/mls-sync/internal/mlserr"
	"github.com/yourorg/mls-sync/internal/ratelimit"
)

// ProviderAPI is the wire surface the client drives. reso.Client satisfies
// it; tests substitute fakes.
type ProviderAPI interface {
	SearchQuery(ctx context.Context, token string, criteria *SearchCriteria) ([]byte, error)
	Detail(ctx context.Context, token, listingID string) ([]byte, error)
	Probe(ctx context.Context, token string) error
}

// TokenSource is the auth manager surface.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (string, error)
	Invalidate()
	Valid() bool
}

// Runner is the retrying request executor surface.
type Runner interface {
	Execute(ctx context.Context, name, endpoint string, fn func(context.Context) ([]byte, error)) ([]byte, error)
}

// fillLocker is the optional stampede guard a cache backend may provide.
// The Redis cache implements it; the in-memory cache does not need to.
type fillLocker interface {
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type ClientDeps struct {
	API      ProviderAPI
	Auth     TokenSource
	Cache    cache.Cache
	Limiter  *ratelimit.SlidingWindow
	Exec     Runner
	Geocoder geocode.Geocoder
	TTL      TTLPolicy
	Log      zerolog.Logger
}

// Client orchestrates authenticated provider access: cache check, rate-limit
// check, serialized retried fetch, normalization, cache write. Every public
// operation returns a typed error; nothing panics across this boundary.
type Client struct {
	api     ProviderAPI
	auth    TokenSource
	cache   cache.Cache
	limiter *ratelimit.SlidingWindow
	exec    Runner
	geo     geocode.Geocoder
	ttl     TTLPolicy
	log     zerolog.Logger
	newID   func() string

	mu       sync.Mutex
	lastSync *time.Time
}

func NewClient(d ClientDeps) *Client {
	if d.TTL == (TTLPolicy{}) {
		d.TTL = DefaultTTLPolicy()
	}
	return &Client{
		api:     d.API,
		auth:    d.Auth,
		cache:   d.Cache,
		limiter: d.Limiter,
		exec:    d.Exec,
		geo:     d.Geocoder,
		ttl:     d.TTL,
		log:     d.Log,
		newID:   func() string { return uuid.NewString() },
	}
}

// Initialize authenticates and runs a connectivity probe. Fails if either
// step fails.
func (c *Client) Initialize(ctx context.Context) error {
	token, err := c.auth.EnsureValidToken(ctx)
	if err != nil {
		return err
	}
	_, err = c.exec.Execute(ctx, "probe", "/Property", func(ctx context.Context) ([]byte, error) {
		return nil, c.api.Probe(ctx, token)
	})
	return err
}

// SearchProperties runs the full pipeline for criteria-based search. Records
// failing normalization are dropped rather than failing the batch; a stale
// cache entry is preferred over an outage-triggered error.
func (c *Client) SearchProperties(ctx context.Context, criteria *SearchCriteria) (*SearchResult, error) {
	if criteria == nil {
		criteria = &SearchCriteria{}
	}
	// Defaults apply to a copy; the caller's struct stays untouched.
	cp := *criteria
	criteria = &cp
	criteria.ApplyDefaults()
	if verr := criteria.Validate(); verr != nil {
		return nil, verr
	}

	key := "search:" + criteria.CacheKey()
	cached, haveCached, fresh := c.cache.GetStale(ctx, key)
	if haveCached && fresh {
		if res := decodeResult(cached); res != nil {
			metrics.CacheHits.WithLabelValues("search").Inc()
			return res, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("search").Inc()

	if locker, ok := c.cache.(fillLocker); ok {
		if acquired, lerr := locker.SetNX(ctx, key, 10*time.Second); lerr == nil && !acquired {
			// Another instance is already filling this key. Give it a
			// moment, then re-check before spending provider quota.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(150 * time.Millisecond):
			}
			if data, ok, fresh := c.cache.GetStale(ctx, key); ok && fresh {
				if res := decodeResult(data); res != nil {
					metrics.CacheHits.WithLabelValues("search").Inc()
					return res, nil
				}
			}
		}
	}

	res, err := c.fetchSearch(ctx, criteria)
	if err != nil {
		if haveCached {
			if stale := decodeResult(cached); stale != nil {
				metrics.StaleServed.Inc()
				c.log.Warn().Err(err).Str("key", key).Msg("search refresh failed, serving stale cache")
				return stale, nil
			}
		}
		return nil, err
	}

	if b, merr := json.Marshal(res); merr == nil {
		_ = c.cache.Set(ctx, key, b, c.ttl.Search)
	}
	return res, nil
}

// GetProperty fetches one listing by id through the same
// cache-limit-fetch-normalize pipeline. Provider 404s are negative-cached
// briefly so repeated lookups of a bad id do not burn quota.
func (c *Client) GetProperty(ctx context.Context, listingID string) (*Property, error) {
	if listingID == "" {
		return nil, mlserr.Validation("MISSING_LISTING_ID", "listing id is required")
	}
	key := "property:" + listingID
	missKey := "property:miss:" + listingID

	if _, ok, fresh := c.cache.GetStale(ctx, missKey); ok && fresh {
		return nil, mlserr.NotFound(listingID)
	}

	cached, haveCached, fresh := c.cache.GetStale(ctx, key)
	if haveCached && fresh {
		var p Property
		if err := json.Unmarshal(cached, &p); err == nil {
			metrics.CacheHits.WithLabelValues("property").Inc()
			return &p, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("property").Inc()

	p, err := c.fetchProperty(ctx, listingID)
	if err != nil {
		if mlserr.IsType(err, mlserr.TypeAPI) {
			if typed, ok := err.(*mlserr.Error); ok && typed.Code == "PROPERTY_NOT_FOUND" {
				negTTL := c.ttl.Negative
				if b, merr := json.Marshal(struct{}{}); merr == nil {
					_ = c.cache.Set(ctx, missKey, b, negTTL)
				}
				return nil, err
			}
		}
		if haveCached {
			var stale Property
			if uerr := json.Unmarshal(cached, &stale); uerr == nil {
				metrics.StaleServed.Inc()
				c.log.Warn().Err(err).Str("listing_id", listingID).Msg("property refresh failed, serving stale cache")
				return &stale, nil
			}
		}
		return nil, err
	}

	if b, merr := json.Marshal(p); merr == nil {
		_ = c.cache.Set(ctx, key, b, c.ttl.ForStatus(p.StandardStatus))
	}
	return p, nil
}

// GetMarketAnalysis geocodes the subject address, pulls candidates from a
// radius-sized bounding box, ranks them by haversine distance and derives
// aggregate statistics plus a price estimate.
func (c *Client) GetMarketAnalysis(ctx context.Context, address string, opts AnalysisOptions) (*MarketAnalysis, error) {
	if address == "" {
		return nil, mlserr.Validation("MISSING_ADDRESS", "address is required")
	}
	lat, lon, err := c.geo.Geocode(ctx, address)
	if err != nil {
		// Terminal for this operation: transient geocoder faults were
		// already retried below us.
		return nil, mlserr.New(mlserr.TypeAPI, "GEOCODE_FAILED", err.Error())
	}

	radius := opts.RadiusMiles
	if radius <= 0 {
		radius = 1.0
	}
	maxComps := opts.MaxComps
	if maxComps <= 0 {
		maxComps = 10
	}
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []StandardStatus{StatusActive, StatusPending, StatusClosed}
	}

	box := BoundingBoxAround(lat, lon, radius)
	criteria := &SearchCriteria{
		BoundingBox: &box,
		Statuses:    statuses,
		Limit:       200,
	}
	res, err := c.SearchProperties(ctx, criteria)
	if err != nil {
		return nil, err
	}

	comps := make([]Comparable, 0, len(res.Properties))
	for _, p := range res.Properties {
		if p.Latitude == nil || p.Longitude == nil {
			continue
		}
		comps = append(comps, Comparable{
			Property:      p,
			DistanceMiles: Haversine(lat, lon, *p.Latitude, *p.Longitude),
		})
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].DistanceMiles < comps[j].DistanceMiles })
	if len(comps) > maxComps {
		comps = comps[:maxComps]
	}

	analysis := &MarketAnalysis{
		Address:     address,
		Latitude:    lat,
		Longitude:   lon,
		Comparables: comps,
	}
	if len(comps) == 0 {
		return analysis, nil
	}

	prices := make([]float64, 0, len(comps))
	var priceSum, ppsfSum float64
	ppsfCount := 0
	for _, cmp := range comps {
		p := cmp.Property
		prices = append(prices, p.ListPrice)
		priceSum += p.ListPrice
		if p.SquareFeet > 0 && p.ListPrice > 0 {
			ppsfSum += p.ListPrice / float64(p.SquareFeet)
			ppsfCount++
		}
		if p.StandardStatus == StatusActive {
			analysis.ActiveListings++
		}
	}
	mean := priceSum / float64(len(prices))
	analysis.MeanListPrice = mean
	analysis.MedianListPrice = median(prices)
	if ppsfCount > 0 {
		analysis.MeanPricePerSqFt = ppsfSum / float64(ppsfCount)
	}
	analysis.PriceEstimate = &PriceEstimate{
		Low:        mean * 0.9,
		Value:      mean,
		High:       mean * 1.1,
		Confidence: math.Min(0.9, 0.1*float64(len(comps))),
	}
	return analysis, nil
}

// Status reports auth validity, rate-limit headroom, a live probe verdict
// and the last sync timestamp.
func (c *Client) Status(ctx context.Context) IntegrationStatus {
	st := IntegrationStatus{
		AuthValid:     c.auth.Valid(),
		RateRemaining: c.limiter.Remaining(),
		LastSync:      c.LastSync(),
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st.Connectivity = c.probe(probeCtx)
	return st
}

// RecordSync marks the completion time of the latest sync job. Called by the
// sync engine.
func (c *Client) RecordSync(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSync = &t
}

func (c *Client) LastSync() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

func (c *Client) probe(ctx context.Context) string {
	token, err := c.auth.EnsureValidToken(ctx)
	if err != nil {
		return "down"
	}
	_, err = c.exec.Execute(ctx, "probe", "/Property", func(ctx context.Context) ([]byte, error) {
		return nil, c.api.Probe(ctx, token)
	})
	switch {
	case err == nil:
		return "healthy"
	case mlserr.IsType(err, mlserr.TypeServiceUnavailable),
		mlserr.IsType(err, mlserr.TypeTimeout),
		mlserr.IsType(err, mlserr.TypeRateLimit):
		return "degraded"
	default:
		return "down"
	}
}

func (c *Client) fetchSearch(ctx context.Context, criteria *SearchCriteria) (*SearchResult, error) {
	if lr := c.limiter.Check(); !lr.Allowed {
		metrics.RateLimitDenied.Inc()
		return nil, mlserr.RateLimited(time.Until(lr.ResetTime))
	}
	token, err := c.auth.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.exec.Execute(ctx, "search", "/Property", func(ctx context.Context) ([]byte, error) {
		return c.api.SearchQuery(ctx, token, criteria)
	})
	if err != nil {
		if mlserr.IsType(err, mlserr.TypeAuthentication) {
			c.auth.Invalidate()
		}
		return nil, err
	}
	return c.decodeSearch(raw, criteria)
}

func (c *Client) fetchProperty(ctx context.Context, listingID string) (*Property, error) {
	if lr := c.limiter.Check(); !lr.Allowed {
		metrics.RateLimitDenied.Inc()
		return nil, mlserr.RateLimited(time.Until(lr.ResetTime))
	}
	token, err := c.auth.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.exec.Execute(ctx, "property_detail", "/Property('id')", func(ctx context.Context) ([]byte, error) {
		return c.api.Detail(ctx, token, listingID)
	})
	if err != nil {
		if mlserr.IsType(err, mlserr.TypeAuthentication) {
			c.auth.Invalidate()
		}
		if typed, ok := err.(*mlserr.Error); ok && typed.Code == "NOT_FOUND" {
			return nil, mlserr.NotFound(listingID)
		}
		return nil, err
	}

	var row map[string]any
	if uerr := json.Unmarshal(raw, &row); uerr != nil {
		return nil, mlserr.New(mlserr.TypeDataFormat, "MALFORMED_PAYLOAD", uerr.Error())
	}
	// Some providers wrap single records in a one-element value array.
	if vals, ok := row["value"].([]any); ok {
		if len(vals) == 0 {
			return nil, mlserr.NotFound(listingID)
		}
		if first, ok := vals[0].(map[string]any); ok {
			row = first
		}
	}
	p := Normalize(row)
	if p == nil {
		return nil, mlserr.NotFound(listingID)
	}
	return p, nil
}

func (c *Client) decodeSearch(raw []byte, criteria *SearchCriteria) (*SearchResult, error) {
	var root struct {
		Value      []map[string]any `json:"value"`
		Property   []map[string]any `json:"property"`
		Count      *int             `json:"@odata.count"`
		Total      *int             `json:"total"`
		TotalCount *int             `json:"totalCount"`
	}
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, mlserr.New(mlserr.TypeDataFormat, "MALFORMED_PAYLOAD", err.Error())
	}
	rows := root.Value
	if len(rows) == 0 {
		rows = root.Property
	}

	props := make([]*Property, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		p := Normalize(row)
		if p == nil {
			dropped++
			continue
		}
		props = append(props, p)
	}
	if dropped > 0 {
		c.log.Warn().Int("dropped", dropped).Msg("skipped records failing normalization")
	}

	next := criteria.Offset + len(rows)
	total := next
	hasMore := false
	switch {
	case root.Count != nil:
		total = *root.Count
	case root.Total != nil:
		total = *root.Total
	case root.TotalCount != nil:
		total = *root.TotalCount
	default:
		// No declared total: a full page implies another page exists.
		hasMore = criteria.Limit > 0 && len(rows) == criteria.Limit
	}
	if len(rows) > 0 && next < total {
		hasMore = true
	}
	return &SearchResult{
		Properties: props,
		TotalCount: total,
		HasMore:    hasMore,
		NextOffset: next,
		RequestID:  c.newID(),
	}, nil
}

func decodeResult(data []byte) *SearchResult {
	var res SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil
	}
	return &res
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
