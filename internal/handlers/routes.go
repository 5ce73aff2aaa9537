package handlers

import "net/http"

// Routes registers every endpoint. All /api routes except register, login
// and logout sit behind AuthMiddleware, including unknown ones.
func (h *Handlers) Routes() *http.ServeMux {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /api/{$}", h.FilterExpenses)
	protected.HandleFunc("GET /api/auth/me", h.Me)
	protected.HandleFunc("POST /api/addExpenses", h.AddExpense)
	protected.HandleFunc("GET /api/summary", h.Summary)
	protected.HandleFunc("GET /api/config", h.GetConfig)
	protected.HandleFunc("PUT /api/config", h.UpdateConfig)
	protected.HandleFunc("GET /api/expenses", h.ListExpenses)
	protected.HandleFunc("DELETE /api/expenses/{id}", h.DeleteExpense)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.Handle("/api/", h.AuthMiddleware(protected))
	mux.HandleFunc("GET /healthz", h.Health)

	return mux
}
