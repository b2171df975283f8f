// Package auth owns the provider bearer token lifecycle.
package auth

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/yourorg/mls-sync/internal/executor"
	"github.com/yourorg/mls-sync/internal/mlserr"
)

// TokenAPI is the wire call that performs the credential exchange.
type TokenAPI interface {
	Token(ctx context.Context) ([]byte, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Manager acquires and refreshes the bearer token, tracked by expiry. The
// token never leaves the client orchestration path; callers of the public
// API cannot observe it.
type Manager struct {
	api  TokenAPI
	exec *executor.Executor
	log  zerolog.Logger
	now  func() time.Time
	skew time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewManager(api TokenAPI, exec *executor.Executor, log zerolog.Logger) *Manager {
	return &Manager{
		api:  api,
		exec: exec,
		log:  log,
		now:  time.Now,
		skew: 30 * time.Second,
	}
}

// WithClock overrides the time source. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// EnsureValidToken returns a live token, refreshing it when expired or about
// to expire. Credential failures are not a transient condition: the returned
// error is Authentication-typed and never retryable.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Add(m.skew).Before(m.expiry) {
		return m.token, nil
	}

	raw, err := m.exec.Execute(ctx, "token", "token", m.api.Token)
	if err != nil {
		m.token = ""
		return "", mlserr.New(mlserr.TypeAuthentication, "TOKEN_REQUEST_FAILED", err.Error())
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		m.token = ""
		return "", mlserr.New(mlserr.TypeAuthentication, "TOKEN_MALFORMED", err.Error())
	}
	if tr.AccessToken == "" {
		m.token = ""
		return "", mlserr.New(mlserr.TypeAuthentication, "TOKEN_EMPTY", "provider returned no access token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}
	m.token = tr.AccessToken
	m.expiry = m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	m.log.Info().Time("expiry", m.expiry).Msg("provider token refreshed")
	return m.token, nil
}

// Invalidate drops the current token so the next call re-authenticates. The
// client calls this after a 401 instead of retrying blindly.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
}

// Valid reports whether an unexpired token is held.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != "" && m.now().Before(m.expiry)
}
