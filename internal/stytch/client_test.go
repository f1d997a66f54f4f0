package stytch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIssueMagicLink(t *testing.T) {
	var gotPath, gotProject, gotSecret string
	var received loginOrCreateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotProject, gotSecret, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"request_id":"req-1","user_id":"user-1","email_id":"email-1"}`))
	}))
	defer server.Close()

	client := NewClient("project-test", "secret-test", WithBaseURL(server.URL))

	result, err := client.IssueMagicLink(context.Background(), "alice@example.com",
		"https://app.test/verify-magic-link", "https://app.test/verify-magic-link")
	if err != nil {
		t.Fatalf("issue magic link: %v", err)
	}

	if gotPath != "/magic_links/email/login_or_create" {
		t.Errorf("path = %q, want /magic_links/email/login_or_create", gotPath)
	}
	if gotProject != "project-test" || gotSecret != "secret-test" {
		t.Errorf("basic auth = %q/%q, want project-test/secret-test", gotProject, gotSecret)
	}
	if received.Email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", received.Email)
	}
	if received.LoginMagicLinkURL != "https://app.test/verify-magic-link" {
		t.Errorf("login url = %q", received.LoginMagicLinkURL)
	}
	if result.UserID != "user-1" || result.RequestID != "req-1" {
		t.Errorf("result = %+v, want user-1/req-1", result)
	}
}

func TestAuthenticate(t *testing.T) {
	var received authenticateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/magic_links/authenticate" {
			t.Errorf("path = %q, want /magic_links/authenticate", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"request_id": "req-2",
			"user_id": "user-1",
			"session_token": "sess-token",
			"session_jwt": "sess-jwt",
			"user": {"emails": [{"email": "alice@example.com", "verified": true}]}
		}`))
	}))
	defer server.Close()

	client := NewClient("project-test", "secret-test", WithBaseURL(server.URL))

	result, err := client.Authenticate(context.Background(), "one-time-token")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if received.Token != "one-time-token" {
		t.Errorf("token = %q, want one-time-token", received.Token)
	}
	if result.Email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", result.Email)
	}
	if result.SessionToken != "sess-token" || result.SessionJWT != "sess-jwt" {
		t.Errorf("session material = %q/%q", result.SessionToken, result.SessionJWT)
	}
}

func TestAuthenticateNoEmails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"request_id":"req-3","user_id":"user-1","user":{"emails":[]}}`))
	}))
	defer server.Close()

	client := NewClient("project-test", "secret-test", WithBaseURL(server.URL))

	result, err := client.Authenticate(context.Background(), "one-time-token")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Email != "" {
		t.Errorf("email = %q, want empty", result.Email)
	}
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status_code":401,"error_type":"unable_to_auth_magic_link","error_message":"The magic link could not be authenticated."}`))
	}))
	defer server.Close()

	client := NewClient("project-test", "secret-test", WithBaseURL(server.URL))

	_, err := client.Authenticate(context.Background(), "expired-token")
	if err == nil {
		t.Fatal("expected error for rejected token")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.ErrorType != "unable_to_auth_magic_link" {
		t.Errorf("error_type = %q", apiErr.ErrorType)
	}
}

func TestNotConfigured(t *testing.T) {
	client := NewClient("", "")

	if _, err := client.IssueMagicLink(context.Background(), "a@b.co", "", ""); err == nil {
		t.Error("expected error for unconfigured client on issue")
	}
	if _, err := client.Authenticate(context.Background(), "token"); err == nil {
		t.Error("expected error for unconfigured client on authenticate")
	}
}
