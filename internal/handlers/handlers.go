package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"household-expenses/internal/apperr"
	"household-expenses/internal/logging"
	"household-expenses/internal/models"
	"household-expenses/internal/services"
	"household-expenses/internal/session"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// SessionContextKey is the context key for the validated session.
	SessionContextKey contextKey = "session"
	// DefaultCookieName is used when no cookie name is configured.
	DefaultCookieName = "sid"

	maxBodyBytes = 1 << 20
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CookieOptions controls the session cookie attributes.
type CookieOptions struct {
	Name string
	// Production cookies are SameSite=None and Secure so a separately
	// hosted frontend can send them.
	Production bool
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	credentials *services.CredentialService
	configs     *services.ConfigService
	expenses    *services.ExpenseService
	sessions    *session.Manager
	store       Pinger
	cookie      CookieOptions
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	credentials *services.CredentialService,
	configs *services.ConfigService,
	expenses *services.ExpenseService,
	sessions *session.Manager,
	store Pinger,
	cookie CookieOptions,
) *Handlers {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Handlers{
		credentials: credentials,
		configs:     configs,
		expenses:    expenses,
		sessions:    sessions,
		store:       store,
		cookie:      cookie,
	}
}

// GetSessionFromContext retrieves the authenticated session from request context.
func GetSessionFromContext(r *http.Request) *models.Session {
	if sess, ok := r.Context().Value(SessionContextKey).(*models.Session); ok {
		return sess
	}
	return nil
}

// AuthMiddleware wraps handlers to require a valid session. Every accepted
// request slides the session and refreshes the cookie lifetime.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(h.cookie.Name)
		if err != nil || cookie.Value == "" {
			writeError(w, r, apperr.Auth("Authentication required."))
			return
		}

		sess, ok := h.sessions.Validate(r.Context(), cookie.Value)
		if !ok {
			h.clearSessionCookie(w)
			writeError(w, r, apperr.Auth("Authentication required."))
			return
		}

		h.setSessionCookie(w, cookie.Value)

		entry := logging.FromContext(r.Context()).WithField(logging.FieldUserID, sess.UserID)
		ctx := logging.WithEntry(r.Context(), entry)
		ctx = context.WithValue(ctx, SessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) sameSite() http.SameSite {
	if h.cookie.Production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Production,
		SameSite: h.sameSite(),
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Production,
		SameSite: h.sameSite(),
	})
}

func (h *Handlers) cookieValue(r *http.Request) string {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil {
		return cookie.Value
	}
	return ""
}

// actor names the user behind a request for audit fields.
func actor(r *http.Request) string {
	if sess := GetSessionFromContext(r); sess != nil {
		return sess.User.Name
	}
	return ""
}

// Health answers liveness probes with the store status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("failed to encode response: %v", err)
	}
}

// writeError answers with the public message of err. Server-side failures
// are logged with their cause, which never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).Error("request failed")
	}
	writeJSON(w, status, messageResponse{Message: apperr.PublicMessage(err)})
}

// decodeJSON reads a single JSON value into v. Malformed bodies, trailing
// data and type mismatches become validation errors.
func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return apperr.Validation("Invalid JSON body.")
		}
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperr.Validation("Invalid value for " + typeErr.Field + ": expected " + typeErr.Type.String() + ".")
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("Request body too large.")
	}
	return apperr.Validation("Invalid JSON body.")
}
