package auth

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/linkauth/internal/model"
	"github.com/dukerupert/linkauth/internal/store"
)

// sessionTTL is the fixed lifetime of every minted session.
const sessionTTL = 30 * 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserStore is the persistence capability for user accounts. Lookups return
// (nil, nil) when no row matches.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Insert(ctx context.Context, name, email string) (*model.User, error)
}

// SessionStore is the persistence capability for sessions.
type SessionStore interface {
	Insert(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (*model.Session, error)
	FindWithUserByToken(ctx context.Context, token string) (*model.Session, *model.User, error)
}

// IssueResult carries the provider's correlation ids for an issued magic link.
type IssueResult struct {
	UserID    string
	RequestID string
}

// AuthenticateResult is the identity the provider vouches for after verifying
// a one-time token. SessionToken and SessionJWT are the provider's own session
// material, passed through to clients opaquely.
type AuthenticateResult struct {
	Email        string
	UserID       string
	SessionToken string
	SessionJWT   string
}

// MagicLinkProvider wraps the external passwordless-auth service. Both calls
// are network calls that may fail or time out; the service never retries them.
type MagicLinkProvider interface {
	IssueMagicLink(ctx context.Context, email, loginURL, signupURL string) (*IssueResult, error)
	Authenticate(ctx context.Context, token string) (*AuthenticateResult, error)
}

// RequestMeta is optional provenance captured on the session at verification
// time. It is informational only and never used in authorization decisions.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type SignUpResult struct {
	User              *model.User
	ProviderUserID    string
	ProviderRequestID string
}

type SignInResult struct {
	ProviderUserID    string
	ProviderRequestID string
}

type VerifyResult struct {
	User                 *model.User
	Session              *model.Session
	ProviderUserID       string
	ProviderSessionToken string
	ProviderSessionJWT   string
}

type AuthenticatedUser struct {
	User    *model.User
	Session *model.Session
}

// Service coordinates sign-up, sign-in, magic-link verification, and session
// lookup. It owns input validation, the error taxonomy, and the session
// expiry policy; storage and the provider sit behind interfaces.
type Service struct {
	users        UserStore
	sessions     SessionStore
	provider     MagicLinkProvider
	magicLinkURL string
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates the auth service. magicLinkURL is the front-end page
// that receives the one-time token; it is used for both the login and signup
// redirect targets of issued links.
func NewService(users UserStore, sessions SessionStore, provider MagicLinkProvider, magicLinkURL string, logger *slog.Logger) *Service {
	return &Service{
		users:        users,
		sessions:     sessions,
		provider:     provider,
		magicLinkURL: magicLinkURL,
		logger:       logger,
		now:          time.Now,
	}
}

// SignUp creates a user account and sends a magic link to its email. The
// account is created before the link is sent: a provider failure leaves the
// row in place and is reported as KindProvider.
func (s *Service) SignUp(ctx context.Context, name, email string) (*SignUpResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" {
		return nil, newError(KindValidation, "Please provide both name and email address")
	}
	if !emailPattern.MatchString(email) {
		return nil, newError(KindValidation, "Please provide a valid email address")
	}
	if utf8.RuneCountInString(name) < 2 {
		return nil, newError(KindValidation, "Name must be at least 2 characters long")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, wrapError(KindInternal, "An unexpected error occurred while creating your account", err)
	}
	if existing != nil {
		return nil, newError(KindAlreadyExists, "An account with this email address already exists")
	}

	user, err := s.users.Insert(ctx, name, email)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			// Lost the race between the existence check and the insert;
			// the unique index is the authoritative answer.
			return nil, newError(KindAlreadyExists, "An account with this email address already exists")
		}
		return nil, wrapError(KindInternal, "Failed to create user account", err)
	}

	issued, err := s.provider.IssueMagicLink(ctx, email, s.magicLinkURL, s.magicLinkURL)
	if err != nil {
		// The user row is intentionally kept: an account can exist without
		// ever having received a usable link.
		s.logger.Error("issue magic link", "email", email, "error", err)
		return nil, wrapError(KindProvider, "Failed to send magic link", err)
	}

	return &SignUpResult{
		User:              user,
		ProviderUserID:    issued.UserID,
		ProviderRequestID: issued.RequestID,
	}, nil
}

// SignIn sends a magic link to an existing account's email.
func (s *Service) SignIn(ctx context.Context, email string) (*SignInResult, error) {
	email = normalizeEmail(email)

	if email == "" {
		return nil, newError(KindValidation, "Please provide an email address")
	}
	if !emailPattern.MatchString(email) {
		return nil, newError(KindValidation, "Please provide a valid email address")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, wrapError(KindInternal, "An unexpected error occurred", err)
	}
	if user == nil {
		return nil, newError(KindNotFound, "No account found with this email address")
	}

	issued, err := s.provider.IssueMagicLink(ctx, user.Email, s.magicLinkURL, s.magicLinkURL)
	if err != nil {
		s.logger.Error("issue magic link", "email", user.Email, "error", err)
		return nil, wrapError(KindProvider, "Failed to send magic link", err)
	}

	return &SignInResult{
		ProviderUserID:    issued.UserID,
		ProviderRequestID: issued.RequestID,
	}, nil
}

// VerifyMagicLink authenticates a one-time token with the provider and mints
// a session for the matching local account. Every provider rejection maps to
// KindInvalidToken; the raw detail is only logged.
func (s *Service) VerifyMagicLink(ctx context.Context, token string, meta RequestMeta) (*VerifyResult, error) {
	if token == "" {
		return nil, newError(KindValidation, "Magic link token is missing")
	}

	verified, err := s.provider.Authenticate(ctx, token)
	if err != nil {
		s.logger.Warn("authenticate magic link", "error", err)
		return nil, wrapError(KindInvalidToken, "The magic link is invalid or has expired", err)
	}
	if verified.Email == "" {
		return nil, newError(KindProviderData, "Unable to retrieve user email from verification")
	}

	user, err := s.users.FindByEmail(ctx, normalizeEmail(verified.Email))
	if err != nil {
		return nil, wrapError(KindInternal, "An unexpected error occurred during verification", err)
	}
	if user == nil {
		// The provider considers the identity valid but no local account
		// matches, e.g. the account was removed after link issuance.
		return nil, newError(KindNotFound, "User account not found")
	}

	sess, err := s.sessions.Insert(ctx, user.ID, s.now().Add(sessionTTL), meta.IPAddress, meta.UserAgent)
	if err != nil {
		return nil, wrapError(KindSessionPersist, "Failed to create user session", err)
	}
	if sess == nil {
		return nil, newError(KindSessionPersist, "Failed to create user session")
	}

	return &VerifyResult{
		User:                 user,
		Session:              sess,
		ProviderUserID:       verified.UserID,
		ProviderSessionToken: verified.SessionToken,
		ProviderSessionJWT:   verified.SessionJWT,
	}, nil
}

// AuthenticatedUser resolves a bearer session token to its user and session.
// Missing sessions, broken joins, and store failures all answer the same way
// so callers cannot distinguish them. A session expiring exactly now is still
// valid; the read never extends expiry.
func (s *Service) AuthenticatedUser(ctx context.Context, token string) (*AuthenticatedUser, error) {
	if token == "" {
		return nil, newError(KindUnauthorized, "Session token is required")
	}

	sess, user, err := s.sessions.FindWithUserByToken(ctx, token)
	if err != nil {
		s.logger.Error("session lookup", "error", err)
		return nil, newError(KindUnauthorized, "Invalid session token")
	}
	if sess == nil || user == nil {
		return nil, newError(KindUnauthorized, "Invalid session token")
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, newError(KindUnauthorized, "Session has expired")
	}

	return &AuthenticatedUser{User: user, Session: sess}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
