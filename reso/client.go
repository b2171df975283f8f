// Package reso is the wire client for the upstream listings API. It speaks
// the provider's OData-style query surface and returns raw payload bytes;
// classification, normalization and caching happen above it.
package reso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError carries the provider's HTTP failure so the classifier can map
// it to the typed taxonomy.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider error %d on %s: %s", e.Status, e.Endpoint, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Status }

func (e *StatusError) RetryAfterHint() time.Duration { return e.RetryAfter }

type Config struct {
	BaseURL      string
	LoginURL     string
	ClientID     string
	ClientSecret string
	// Some providers augment client credentials with a resource-owner grant.
	Username string
	Password string

	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Token performs the OAuth2 token request and returns the raw response body.
func (c *Client) Token(ctx context.Context) ([]byte, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	if c.cfg.Username != "" {
		form.Set("grant_type", "password")
		form.Set("username", c.cfg.Username)
		form.Set("password", c.cfg.Password)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, "token")
}

// Search queries the property resource with the prepared OData parameters.
func (c *Client) Search(ctx context.Context, token string, q url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/Property?%s", strings.TrimRight(c.cfg.BaseURL, "/"), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.authz(req, token)
	return c.do(req, "/Property")
}

// Detail fetches one record by listing id.
func (c *Client) Detail(ctx context.Context, token, listingID string) ([]byte, error) {
	u := fmt.Sprintf("%s/Property('%s')", strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(listingID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.authz(req, token)
	return c.do(req, "/Property('id')")
}

// Probe is the lightweight connectivity check used by initialize and status
// reporting: a single-record fetch with no filter.
func (c *Client) Probe(ctx context.Context, token string) error {
	q := url.Values{}
	q.Set("$top", "1")
	q.Set("$select", "ListingId")
	_, err := c.Search(ctx, token, q)
	return err
}

func (c *Client) authz(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := readAllLimit(resp.Body, 64<<10)
		return nil, &StatusError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Endpoint:   endpoint,
		}
	}
	return readAllLimit(resp.Body, 4<<20) // 4MB guard
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
