package handlers

import (
	"net/http"

	"household-expenses/internal/services"
)

// AddExpense stores a new expense.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	var in services.ExpenseInput
	if err := decodeJSON(r, w, &in); err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := h.expenses.Add(r.Context(), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

// FilterExpenses lists expenses narrowed by the query string.
func (h *Handlers) FilterExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.listExpenses(w, r, services.ListQuery{
		StartDate:   q.Get("startDate"),
		EndDate:     q.Get("endDate"),
		Category:    q.Get("category"),
		Subcategory: q.Get("subcategory"),
		Mode:        q.Get("mode"),
	})
}

// ListExpenses lists every expense.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	h.listExpenses(w, r, services.ListQuery{})
}

func (h *Handlers) listExpenses(w http.ResponseWriter, r *http.Request, q services.ListQuery) {
	expenses, err := h.expenses.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// DeleteExpense handles the removal of an existing expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.expenses.Remove(r.Context(), r.PathValue("id"), actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense deleted successfully."})
}
