package handlers

import (
	"net/http"

	"household-expenses/internal/models"
)

// GetConfig returns the expense configuration, creating it on first use.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.GetOrCreate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig overwrites the fields present in the body.
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch models.ConfigPatch
	if err := decodeJSON(r, w, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	cfg, err := h.configs.Upsert(r.Context(), patch, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
