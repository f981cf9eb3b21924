package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T, issued *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token` + string(rune('0'+n)) + `","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenIsCached(t *testing.T) {
	var issued atomic.Int32
	srv := tokenServer(t, &issued)
	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL})

	tok, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if tok.AccessToken != "token1" {
		t.Fatalf("unexpected token %s", tok.AccessToken)
	}
	if _, err := client.Token(context.Background()); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if issued.Load() != 1 {
		t.Fatalf("token fetched %d times, want 1", issued.Load())
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := client.SetAuthHeader(req); err != nil {
		t.Fatalf("SetAuthHeader returned error: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer token1" {
		t.Fatalf("Authorization header = %q", got)
	}
}

func TestTransportRefreshesOnUnauthorized(t *testing.T) {
	var issued atomic.Int32
	tokens := tokenServer(t, &issued)

	var calls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer token2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	cred := NewClientCred(Conf{ClientID: "id", TokenURL: tokens.URL})
	hc := &http.Client{Transport: cred.Transport(nil)}
	resp, err := hc.Post(api.URL, "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if calls.Load() != 2 || issued.Load() != 2 {
		t.Fatalf("calls=%d tokens=%d, want 2 and 2", calls.Load(), issued.Load())
	}
}

func TestConfValidate(t *testing.T) {
	if err := (Conf{}).Validate(); err != nil {
		t.Fatalf("disabled conf should be valid: %v", err)
	}
	if err := (Conf{TokenURL: "ftp://x", ClientID: "id"}).Validate(); err == nil {
		t.Fatal("expected scheme error")
	}
	if err := (Conf{TokenURL: "https://idp/token"}).Validate(); err == nil {
		t.Fatal("expected client_id error")
	}
}
