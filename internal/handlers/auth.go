package handlers

import (
	"net/http"
	"strings"

	"household-expenses/internal/logging"
	"household-expenses/internal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Relation string `json:"relation"`
}

type loginRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a user and signs them in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.credentials.Register(r.Context(), req.Name, req.Password, req.Relation)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login authenticates by name. The email field is accepted as an alias for
// older clients.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, w, &req); err != nil {
		writeError(w, r, err)
		return
	}

	name := req.Name
	if strings.TrimSpace(name) == "" {
		name = req.Email
	}

	user, err := h.credentials.Authenticate(r.Context(), name, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// startSession replaces any session named by the request cookie with a new
// one and sets its cookie. It reports false after writing an error.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user models.UserSummary) bool {
	sess, err := h.sessions.Start(r.Context(), h.cookieValue(r), user.SessionUser)
	if err != nil {
		writeError(w, r, err)
		return false
	}
	h.setSessionCookie(w, sess.Token)
	return true
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookieValue(r); token != "" {
		if err := h.sessions.Destroy(r.Context(), token); err != nil {
			logging.FromContext(r.Context()).WithError(err).Error("Failed to delete session")
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully."})
}

// Me returns the user of the current session.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := GetSessionFromContext(r)
	writeJSON(w, http.StatusOK, sess.User)
}
