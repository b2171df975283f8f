// Package geocode wraps the geocoding collaborator used by market analysis.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
)

type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// HTTP talks to a geocoding service expecting GET {base}?address=...&key=...
// returning {"latitude": .., "longitude": ..}. Transient faults are retried
// by retryablehttp below the caller's visibility.
type HTTP struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

func NewHTTP(baseURL, apiKey string) *HTTP {
	rc := retryablehttp.NewClient()
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.RetryMax = 3
	rc.HTTPClient.Timeout = 6 * time.Second
	rc.Logger = nil
	return &HTTP{baseURL: baseURL, apiKey: apiKey, http: rc}
}

func (g *HTTP) Geocode(ctx context.Context, address string) (float64, float64, error) {
	q := url.Values{}
	q.Set("address", address)
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, 0, fmt.Errorf("geocoder error %d", resp.StatusCode)
	}
	var body struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, 0, err
	}
	if body.Latitude == 0 && body.Longitude == 0 {
		return 0, 0, fmt.Errorf("geocoder returned no match for %q", address)
	}
	return body.Latitude, body.Longitude, nil
}

// Static always resolves to one coordinate. Wiring for tests and sandbox
// environments without a geocoding backend.
type Static struct {
	Lat, Lon float64
}

func (s Static) Geocode(context.Context, string) (float64, float64, error) {
	return s.Lat, s.Lon, nil
}
