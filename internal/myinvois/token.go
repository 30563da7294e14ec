package myinvois

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"einvoice/internal/logger"
)

// Base URLs per environment.
const (
	sandboxBaseURL    = "https://preprod-api.myinvois.hasil.gov.my"
	productionBaseURL = "https://api.myinvois.hasil.gov.my"

	tokenScope = "InvoicingAPI"

	// Tokens are treated as expired this long before their real expiry so an
	// in-flight request never crosses the boundary with a stale token.
	tokenExpiryBuffer = 60 * time.Second
)

// BaseURL returns the authority API base URL for an environment. Anything
// other than "production" resolves to the sandbox.
func BaseURL(environment string) string {
	if environment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// TokenConfig holds the OAuth2 client-credentials configuration. BaseURL
// overrides the environment-derived authority URL when set.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	Environment  string
	BaseURL      string
	Timeout      time.Duration
}

// Token is an ephemeral access token. Never persisted.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Scope     string
}

// TokenManager obtains and caches bearer tokens for the authority API.
// Concurrent callers during a refresh share a single outstanding request.
type TokenManager struct {
	mu         sync.RWMutex
	cfg        TokenConfig
	cfgGen     uint64 // bumped on UpdateConfig; stale refreshes are discarded
	cached     *Token
	onRefresh  func(Token)
	httpClient *http.Client
	group      singleflight.Group
	now        func() time.Time
	log        zerolog.Logger
}

// NewTokenManager creates a token manager for the given credentials.
func NewTokenManager(cfg TokenConfig) *TokenManager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TokenManager{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		log:        logger.WithComponent("token-manager"),
	}
}

// SetRefreshObserver registers a callback invoked after every successful
// refresh. Intended for metrics/diagnostics, not control flow.
func (m *TokenManager) SetRefreshObserver(fn func(Token)) {
	m.mu.Lock()
	m.onRefresh = fn
	m.mu.Unlock()
}

// AccessToken returns a valid bearer token, refreshing the cache if needed.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.cached != nil && m.now().Before(m.cached.ExpiresAt.Add(-tokenExpiryBuffer)) {
		value := m.cached.Value
		m.mu.RUnlock()
		return value, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		m.mu.RLock()
		gen := m.cfgGen
		m.mu.RUnlock()

		token, err := m.requestToken(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		var observer func(Token)
		// A config swap mid-refresh means this token was minted with retired
		// credentials; hand it to the caller but never cache it.
		if m.cfgGen == gen {
			m.cached = token
			observer = m.onRefresh
		}
		m.mu.Unlock()
		if observer != nil {
			observer(*token)
		}
		return token.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForceRefresh drops the cached token and fetches a new one. Used after the
// API reports an auth failure on a token we believed valid.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	m.ClearCache()
	return m.AccessToken(ctx)
}

// ClearCache invalidates the cached token without fetching a replacement.
func (m *TokenManager) ClearCache() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// UpdateConfig swaps credentials (settings rotation) and invalidates the
// cache so the next caller authenticates with the new client.
func (m *TokenManager) UpdateConfig(cfg TokenConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m.mu.Lock()
	m.cfg = cfg
	m.cfgGen++
	m.cached = nil
	m.httpClient = &http.Client{Timeout: cfg.Timeout}
	m.mu.Unlock()
}

func (m *TokenManager) requestToken(ctx context.Context) (*Token, error) {
	m.mu.RLock()
	cfg := m.cfg
	client := m.httpClient
	m.mu.RUnlock()

	base := cfg.BaseURL
	if base == "" {
		base = BaseURL(cfg.Environment)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("scope", tokenScope)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, newTokenError(0, err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	started := m.now()
	resp, err := client.Do(req)
	if err != nil {
		// Keep the transport classification: a token endpoint outage is as
		// retryable as any other transport failure.
		return nil, classifyTransport("token request", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newTokenError(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newTokenError(resp.StatusCode, "malformed token response: "+err.Error())
	}
	if payload.AccessToken == "" {
		return nil, newTokenError(resp.StatusCode, "token response missing access_token")
	}

	token := &Token{
		Value:     payload.AccessToken,
		ExpiresAt: m.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		Scope:     payload.Scope,
	}
	m.log.Debug().
		Str("environment", cfg.Environment).
		Dur("took", m.now().Sub(started)).
		Time("expires_at", token.ExpiresAt).
		Msg("access token refreshed")
	return token, nil
}
