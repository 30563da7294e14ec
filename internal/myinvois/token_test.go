package myinvois

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, requests *int32, expiresIn int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/connect/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		if got := r.PostForm.Get("scope"); got != "InvoicingAPI" {
			t.Errorf("scope = %q, want InvoicingAPI", got)
		}

		n := atomic.AddInt32(requests, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"Bearer","expires_in":%d,"scope":"InvoicingAPI"}`, n, expiresIn)
	}))
}

func newTestTokenManager(serverURL string) *TokenManager {
	return NewTokenManager(TokenConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		Environment:  "sandbox",
		BaseURL:      serverURL,
		Timeout:      5 * time.Second,
	})
}

func TestAccessTokenCachesUntilExpiry(t *testing.T) {
	var requests int32
	server := newTokenServer(t, &requests, 3600)
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	first, err := tm.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	second, err := tm.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	if first != second {
		t.Errorf("expected cached token, got %q then %q", first, second)
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}
}

func TestAccessTokenRefreshesInsideExpiryBuffer(t *testing.T) {
	var requests int32
	// expires_in of 30s is inside the 60s safety buffer, so every call must
	// fetch a fresh token.
	server := newTokenServer(t, &requests, 30)
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	if _, err := tm.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if _, err := tm.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("token endpoint hit %d times, want 2", got)
	}
}

func TestAccessTokenSingleFlight(t *testing.T) {
	var requests int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"shared","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tm.AccessToken(context.Background())
		}(i)
	}

	// Give all goroutines time to pile onto the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if tokens[i] != "shared" {
			t.Errorf("caller %d got token %q", i, tokens[i])
		}
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("token endpoint hit %d times, want 1", got)
	}
}

func TestForceRefreshDropsCache(t *testing.T) {
	var requests int32
	server := newTokenServer(t, &requests, 3600)
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	first, err := tm.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	second, err := tm.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}

	if first == second {
		t.Errorf("ForceRefresh returned the cached token %q", first)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("token endpoint hit %d times, want 2", got)
	}
}

func TestUpdateConfigInvalidatesCache(t *testing.T) {
	var requests int32
	server := newTokenServer(t, &requests, 3600)
	defer server.Close()

	tm := newTestTokenManager(server.URL)
	if _, err := tm.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	tm.UpdateConfig(TokenConfig{ClientID: "rotated", ClientSecret: "new", Environment: "sandbox", BaseURL: server.URL})

	if _, err := tm.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken after rotation: %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Errorf("token endpoint hit %d times, want 2", got)
	}
}

func TestAccessTokenAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	_, err := tm.AccessToken(context.Background())
	if err == nil {
		t.Fatal("expected an error for rejected credentials")
	}
	submissionErr := AsError(err)
	if submissionErr.Kind != KindToken {
		t.Errorf("error kind = %v, want %v", submissionErr.Kind, KindToken)
	}
	if submissionErr.Retryable() {
		t.Error("credential rejection must not be retryable")
	}
}

func TestAccessTokenTransportFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		conn.Close()
	}))
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	_, err := tm.AccessToken(context.Background())
	if err == nil {
		t.Fatal("expected an error for a dropped connection")
	}
	submissionErr := AsError(err)
	if submissionErr.Kind != KindNetwork {
		t.Errorf("error kind = %v, want %v", submissionErr.Kind, KindNetwork)
	}
	if !submissionErr.Retryable() {
		t.Error("a token endpoint outage must be retryable")
	}
}

func TestUpdateConfigDiscardsInFlightRefresh(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	stale := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"stale","token_type":"Bearer","expires_in":3600}`))
	}))
	defer stale.Close()

	var freshRequests int32
	fresh := newTokenServer(t, &freshRequests, 3600)
	defer fresh.Close()

	tm := newTestTokenManager(stale.URL)

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := tm.AccessToken(context.Background())
		done <- result{token, err}
	}()

	// Rotate credentials while the first refresh is blocked in flight.
	<-entered
	tm.UpdateConfig(TokenConfig{
		ClientID:     "client-2",
		ClientSecret: "secret-2",
		Environment:  "sandbox",
		BaseURL:      fresh.URL,
	})
	close(release)

	first := <-done
	if first.err != nil {
		t.Fatalf("AccessToken: %v", first.err)
	}
	if first.token != "stale" {
		t.Errorf("in-flight caller got %q, want the token its request minted", first.token)
	}

	// The stale token must not have been cached past the rotation.
	second, err := tm.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken after rotation: %v", err)
	}
	if second == "stale" {
		t.Error("stale pre-rotation token served from the cache")
	}
	if got := atomic.LoadInt32(&freshRequests); got != 1 {
		t.Errorf("rotated endpoint hit %d times, want 1", got)
	}
}

func TestRefreshObserver(t *testing.T) {
	var requests int32
	server := newTokenServer(t, &requests, 3600)
	defer server.Close()

	tm := newTestTokenManager(server.URL)

	var observed []Token
	tm.SetRefreshObserver(func(tok Token) { observed = append(observed, tok) })

	if _, err := tm.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if _, err := tm.AccessToken(context.Background()); err != nil {
		t.Fatalf("AccessToken: %v", err)
	}

	if len(observed) != 1 {
		t.Fatalf("observer called %d times, want 1", len(observed))
	}
	if observed[0].Value == "" || !observed[0].ExpiresAt.After(time.Now()) {
		t.Errorf("observer saw an invalid token: %+v", observed[0])
	}
}

func TestBaseURLPerEnvironment(t *testing.T) {
	tests := []struct {
		environment string
		want        string
	}{
		{"production", "https://api.myinvois.hasil.gov.my"},
		{"sandbox", "https://preprod-api.myinvois.hasil.gov.my"},
		{"", "https://preprod-api.myinvois.hasil.gov.my"},
	}
	for _, tt := range tests {
		if got := BaseURL(tt.environment); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.environment, got, tt.want)
		}
	}
}
