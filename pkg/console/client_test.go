package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestTokens(t *testing.T) *TokenStore {
	t.Helper()
	return NewTokenStore(filepath.Join(t.TempDir(), "token"))
}

func TestTokenStorePersistsWithOwnerOnlyMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := NewTokenStore(path)
	if store.Get() != "" {
		t.Fatalf("expected no token initially")
	}
	if err := store.Set("abc"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
	if got := NewTokenStore(path).Get(); got != "abc" {
		t.Fatalf("expected persisted token, got %q", got)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear token: %v", err)
	}
	if got := NewTokenStore(path).Get(); got != "" {
		t.Fatalf("expected token removed, got %q", got)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clearing twice must succeed: %v", err)
	}
}

func TestClientLoginStoresTokenAndSendsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var req LoginRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Host != "10.0.0.5" || req.Password != "pw" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(Token{AccessToken: "tok-1", TokenType: "bearer"})
		case "/api/auth/me":
			gotAuth = r.Header.Get("Authorization")
			json.NewEncoder(w).Encode(ServerInfo{Host: "10.0.0.5", Port: 22, Username: "root"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tokens := newTestTokens(t)
	client := NewClient(srv.URL+"/", tokens)

	if _, err := client.Login(context.Background(), LoginRequest{Host: "10.0.0.5", Port: 22, Username: "root", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.Get() != "tok-1" {
		t.Fatalf("token not stored")
	}

	info, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if info.Host != "10.0.0.5" || info.Port != 22 {
		t.Fatalf("unexpected server info: %+v", info)
	}
}

func TestClientUnauthorizedClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid or expired token"}`))
	}))
	defer srv.Close()

	tokens := newTestTokens(t)
	if err := tokens.Set("stale"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	_, err := NewClient(srv.URL, tokens).Dashboard(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err.Error() != "Invalid or expired token" {
		t.Fatalf("expected server detail, got %q", err.Error())
	}
	if tokens.Get() != "" {
		t.Fatalf("401 must clear the stored token")
	}
}

func TestClientErrorDetailFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", http.StatusNotFound, `{"detail":"Config file not found on server"}`, "Config file not found on server"},
		{"message", http.StatusInternalServerError, `{"message":"boom"}`, "boom"},
		{"error", http.StatusBadRequest, `{"error":"bad"}`, "bad"},
		{"status text", http.StatusBadGateway, `<html>`, "Bad Gateway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, newTestTokens(t)).Config(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Status != tc.status || apiErr.Detail != tc.want {
				t.Fatalf("got %d %q, want %d %q", apiErr.Status, apiErr.Detail, tc.status, tc.want)
			}
			if errors.Is(err, ErrUnauthorized) {
				t.Fatalf("non-401 must not match ErrUnauthorized")
			}
		})
	}
}

func TestClientSendsSectionEnvelope(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/channels/telegram" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, newTestTokens(t)).UpdateChannel(context.Background(), "telegram", map[string]any{"enabled": true})
	if err != nil {
		t.Fatalf("update channel: %v", err)
	}
	data, _ := body["data"].(map[string]any)
	if data["enabled"] != true {
		t.Fatalf("expected {data: {...}} envelope, got %+v", body)
	}
}
