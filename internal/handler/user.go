package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/linkauth/internal/auth"
	"github.com/dukerupert/linkauth/internal/middleware"
	"github.com/dukerupert/linkauth/internal/model"
)

const bearerPrefix = "Bearer "

type UserHandler struct {
	svc    *auth.Service
	logger *slog.Logger
}

func NewUserHandler(svc *auth.Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

type signUpRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type signInRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type userDetailPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type sessionDetailPayload struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	IPAddress *string   `json:"ipAddress"`
	UserAgent *string   `json:"userAgent"`
}

func toUserPayload(u *model.User) userPayload {
	return userPayload{ID: u.ID, Name: u.Name, Email: u.Email}
}

// SignUp handles POST /users/sign-up.
func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "Request body must be valid JSON")
		return
	}

	result, err := h.svc.SignUp(r.Context(), req.Name, req.Email)
	if err != nil {
		h.error(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "Magic link sent to your email",
		"user":    toUserPayload(result.User),
		"stytch": map[string]string{
			"user_id":    result.ProviderUserID,
			"request_id": result.ProviderRequestID,
		},
	})
}

// SignIn handles POST /users/sign-in.
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "Request body must be valid JSON")
		return
	}

	result, err := h.svc.SignIn(r.Context(), req.Email)
	if err != nil {
		h.error(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Magic link sent successfully",
		"user_id":    result.ProviderUserID,
		"request_id": result.ProviderRequestID,
	})
}

// VerifyMagicLink handles POST /users/verify-magic-link.
func (h *UserHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "Request body must be valid JSON")
		return
	}

	meta := auth.RequestMeta{
		IPAddress: middleware.RealIP(r),
		UserAgent: r.UserAgent(),
	}

	result, err := h.svc.VerifyMagicLink(r.Context(), req.Token, meta)
	if err != nil {
		h.error(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Magic link verified successfully",
		"user":    toUserPayload(result.User),
		"session": map[string]any{
			"token":     result.Session.Token,
			"expiresAt": result.Session.ExpiresAt,
		},
		"stytch": map[string]string{
			"user_id":       result.ProviderUserID,
			"session_token": result.ProviderSessionToken,
			"session_jwt":   result.ProviderSessionJWT,
		},
	})
}

// Me handles GET /users/me, authorized by a bearer session token.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing or invalid authorization header")
		return
	}
	token := header[len(bearerPrefix):]

	result, err := h.svc.AuthenticatedUser(r.Context(), token)
	if err != nil {
		h.error(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": userDetailPayload{
			ID:        result.User.ID,
			Name:      result.User.Name,
			Email:     result.User.Email,
			CreatedAt: result.User.CreatedAt,
			UpdatedAt: result.User.UpdatedAt,
		},
		"session": sessionDetailPayload{
			ID:        result.Session.ID,
			Token:     result.Session.Token,
			ExpiresAt: result.Session.ExpiresAt,
			CreatedAt: result.Session.CreatedAt,
			IPAddress: result.Session.IPAddress,
			UserAgent: result.Session.UserAgent,
		},
	})
}

// error maps a service error to its HTTP status and client-safe body. Server
// faults are logged with their wrapped cause; the cause never reaches clients.
func (h *UserHandler) error(w http.ResponseWriter, err error) {
	status, label := statusFor(auth.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("auth operation failed", "error", err)
	}
	writeError(w, status, label, auth.Message(err))
}

func statusFor(kind auth.Kind) (int, string) {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest, "Invalid request"
	case auth.KindInvalidToken:
		return http.StatusBadRequest, "Invalid magic link"
	case auth.KindProviderData:
		return http.StatusBadRequest, "Invalid user data"
	case auth.KindUnauthorized:
		return http.StatusUnauthorized, "Unauthorized"
	case auth.KindNotFound:
		return http.StatusNotFound, "User not found"
	case auth.KindAlreadyExists:
		return http.StatusConflict, "User already exists"
	case auth.KindProvider:
		return http.StatusInternalServerError, "Authentication service error"
	case auth.KindSessionPersist:
		return http.StatusInternalServerError, "Session creation failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
