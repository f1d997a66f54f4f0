// Package stytch is a minimal client for the Stytch email magic links API,
// covering the two calls the auth service depends on.
package stytch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dukerupert/linkauth/internal/auth"
)

const defaultBaseURL = "https://test.stytch.com/v1"

type Client struct {
	projectID  string
	secret     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(url string) Option {
	return func(cl *Client) {
		cl.baseURL = url
	}
}

func NewClient(projectID, secret string, opts ...Option) *Client {
	c := &Client{
		projectID:  projectID,
		secret:     secret,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if project credentials are set.
func (c *Client) Configured() bool {
	return c.projectID != "" && c.secret != ""
}

// APIError is a non-2xx response from the Stytch API.
type APIError struct {
	StatusCode   int    `json:"status_code"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stytch API error: status %d type %q: %s", e.StatusCode, e.ErrorType, e.ErrorMessage)
}

type loginOrCreateRequest struct {
	Email              string `json:"email"`
	LoginMagicLinkURL  string `json:"login_magic_link_url,omitempty"`
	SignupMagicLinkURL string `json:"signup_magic_link_url,omitempty"`
}

type loginOrCreateResponse struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	EmailID   string `json:"email_id"`
}

type authenticateRequest struct {
	Token string `json:"token"`
}

type authenticateResponse struct {
	RequestID    string `json:"request_id"`
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token"`
	SessionJWT   string `json:"session_jwt"`
	User         struct {
		Emails []struct {
			Email    string `json:"email"`
			Verified bool   `json:"verified"`
		} `json:"emails"`
	} `json:"user"`
}

// IssueMagicLink sends a one-time login-or-create link to the email address.
func (c *Client) IssueMagicLink(ctx context.Context, email, loginURL, signupURL string) (*auth.IssueResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stytch client not configured: missing project credentials")
	}

	payload := loginOrCreateRequest{
		Email:              email,
		LoginMagicLinkURL:  loginURL,
		SignupMagicLinkURL: signupURL,
	}

	var resp loginOrCreateResponse
	if err := c.post(ctx, "/magic_links/email/login_or_create", payload, &resp); err != nil {
		return nil, err
	}

	return &auth.IssueResult{
		UserID:    resp.UserID,
		RequestID: resp.RequestID,
	}, nil
}

// Authenticate exchanges a one-time magic link token for the verified
// identity. A rejected or expired token comes back as an *APIError.
func (c *Client) Authenticate(ctx context.Context, token string) (*auth.AuthenticateResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stytch client not configured: missing project credentials")
	}

	var resp authenticateResponse
	if err := c.post(ctx, "/magic_links/authenticate", authenticateRequest{Token: token}, &resp); err != nil {
		return nil, err
	}

	var email string
	if len(resp.User.Emails) > 0 {
		email = resp.User.Emails[0].Email
	}

	return &auth.AuthenticateResult{
		Email:        email,
		UserID:       resp.UserID,
		SessionToken: resp.SessionToken,
		SessionJWT:   resp.SessionJWT,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.projectID, c.secret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call stytch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
			return fmt.Errorf("stytch API error: status %d", resp.StatusCode)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
