package handlers

import "net/http"

// Summary totals the current week or month, selected by ?type=.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.expenses.Summarize(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
