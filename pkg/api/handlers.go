package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/amorlabs/amorauth/pkg/auditlog"
	"github.com/amorlabs/amorauth/pkg/directory"
	"github.com/amorlabs/amorauth/pkg/login"
)

const stateCookieName = "amorauth_oauth_state"

// AuthFlow is the OAuth2/OIDC handshake collaborator.
type AuthFlow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (map[string]interface{}, error)
}

// LoginCompleter finishes a login from raw handshake claims.
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, raw map[string]interface{}, meta auditlog.RequestMeta) login.Result
}

// UserFinder serves user lookups and cache eviction.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*directory.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*directory.User, error)
	FindByEmail(ctx context.Context, email string) (*directory.User, error)
	Evict(ctx context.Context, user *directory.User)
}

// AuditReader serves the login-history endpoints.
type AuditReader interface {
	History(ctx context.Context, userID int64, limit int) ([]*auditlog.LoginAttempt, error)
	Recent(ctx context.Context, limit int) ([]*auditlog.LoginAttempt, error)
	Count(ctx context.Context, userID int64) (int64, error)
}

// Handlers serves the authentication and admin HTTP API.
type Handlers struct {
	flow   AuthFlow
	logins LoginCompleter
	users  UserFinder
	audit  AuditReader
	logger *logrus.Logger
}

// NewHandlers creates the API handlers.
func NewHandlers(flow AuthFlow, logins LoginCompleter, users UserFinder, audit AuditReader, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		flow:   flow,
		logins: logins,
		users:  users,
		audit:  audit,
		logger: logger,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/auth/login", h.initiateLogin).Methods("GET")
	router.HandleFunc("/api/auth/login-url", h.loginURL).Methods("GET")
	router.HandleFunc("/api/auth/google/callback", h.handleCallback).Methods("GET")
	router.HandleFunc("/api/auth/user", h.getUser).Methods("GET")
	router.HandleFunc("/api/auth/status", h.loginStatus).Methods("GET")
	router.HandleFunc("/api/auth/logout", h.logout).Methods("POST")

	router.HandleFunc("/api/admin/stats", h.adminStats).Methods("GET")
	router.HandleFunc("/api/admin/login-history", h.loginHistory).Methods("GET")
	router.HandleFunc("/api/admin/recent-logins", h.recentLogins).Methods("GET")

	router.HandleFunc("/api/session/cache/evict", h.evictUserCache).Methods("POST")
}

// initiateLogin redirects the browser to Google's authorization page.
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	h.setStateCookie(w, state)
	http.Redirect(w, r, h.flow.AuthCodeURL(state), http.StatusFound)
}

// loginURL returns the authorization URL for frontends that handle the
// redirect themselves.
func (h *Handlers) loginURL(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to generate state")
		return
	}

	h.setStateCookie(w, state)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"loginUrl": h.flow.AuthCodeURL(state),
	})
}

// handleCallback completes the Google login.
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.writeError(w, http.StatusUnauthorized, "authorization denied: "+errParam)
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || cookie.Value != state {
		h.writeError(w, http.StatusUnauthorized, "invalid state parameter")
		return
	}
	h.clearStateCookie(w)

	claims, err := h.flow.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.WithError(err).Warn("authorization code exchange failed")
		h.writeError(w, http.StatusUnauthorized, "failed to complete Google handshake")
		return
	}

	result := h.logins.CompleteLogin(r.Context(), claims, auditlog.MetaFromRequest(r))
	if !result.Succeeded() {
		status := http.StatusUnauthorized
		if result.Reason == login.ReasonStorage {
			status = http.StatusInternalServerError
		}
		h.writeJSON(w, status, map[string]interface{}{
			"success": false,
			"message": "login failed",
			"error":   result.Detail,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "login successful",
		"user":        result.User,
		"redirectUrl": "/dashboard",
	})
}

// getUser looks a user up by id, google_id, or email query parameter.
func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// loginStatus reports whether a user exists for the given google_id.
func (h *Handlers) loginStatus(w http.ResponseWriter, r *http.Request) {
	googleID := r.URL.Query().Get("google_id")
	if googleID == "" {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"isLoggedIn": false})
		return
	}

	user, err := h.users.FindByExternalID(r.Context(), googleID)
	if err != nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"isLoggedIn": false})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"isLoggedIn": true,
		"email":      user.Email,
		"name":       user.DisplayName,
	})
}

// logout acknowledges a logout. Sessions are managed outside this
// service, so there is no server-side state to clear.
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "logged out",
	})
}

// adminStats returns the login count and profile for a user.
func (h *Handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	count, err := h.audit.Count(r.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to count logins")
		h.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"totalLogins": count,
		"userInfo":    user,
	})
}

// loginHistory returns recent attempts for one user.
func (h *Handlers) loginHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	attempts, err := h.audit.History(r.Context(), user.ID, queryLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("failed to load login history")
		h.writeError(w, http.StatusInternalServerError, "failed to load login history")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"attempts": attempts,
	})
}

// recentLogins returns recent attempts across all users.
func (h *Handlers) recentLogins(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.audit.Recent(r.Context(), queryLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("failed to load recent logins")
		h.writeError(w, http.StatusInternalServerError, "failed to load recent logins")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"attempts": attempts,
	})
}

// evictUserCache drops a user's directory cache entries.
func (h *Handlers) evictUserCache(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}

	h.users.Evict(r.Context(), user)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "user cache cleared",
	})
}

// lookupUser resolves a user from id, google_id, or email parameters,
// writing the error response itself when the lookup fails.
func (h *Handlers) lookupUser(w http.ResponseWriter, r *http.Request) (*directory.User, bool) {
	ctx := r.Context()
	query := r.URL.Query()

	var user *directory.User
	var err error

	switch {
	case query.Get("id") != "":
		id, perr := strconv.ParseInt(query.Get("id"), 10, 64)
		if perr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid id parameter")
			return nil, false
		}
		user, err = h.users.FindByID(ctx, id)
	case query.Get("google_id") != "":
		user, err = h.users.FindByExternalID(ctx, query.Get("google_id"))
	case query.Get("email") != "":
		user, err = h.users.FindByEmail(ctx, query.Get("email"))
	default:
		h.writeError(w, http.StatusBadRequest, "one of id, google_id, or email is required")
		return nil, false
	}

	if errors.Is(err, directory.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).Error("user lookup failed")
		h.writeError(w, http.StatusInternalServerError, "user lookup failed")
		return nil, false
	}

	return user, true
}

func (h *Handlers) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// queryLimit parses the limit parameter; 0 lets the store defaults apply.
func queryLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			return limit
		}
	}
	return 0
}

// generateState creates a random OAuth2 state token.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
