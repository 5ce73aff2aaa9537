package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"household-expenses/internal/events"
	"household-expenses/internal/logging"
	"household-expenses/internal/models"
	"household-expenses/internal/services"
	"household-expenses/internal/session"
	"household-expenses/internal/storage/sqlite"
)

// APITestSuite drives the full router over an in-memory database.
type APITestSuite struct {
	suite.Suite
	db     *sqlite.DB
	server *httptest.Server
	client *http.Client
}

func (suite *APITestSuite) SetupTest() {
	db, err := sqlite.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	h := NewHandlers(
		services.NewCredentialService(db),
		services.NewConfigService(db),
		services.NewExpenseService(db, events.Noop{}),
		session.NewManager(db),
		db,
		CookieOptions{Name: "sid"},
	)
	logger := logging.NewWithOutput(io.Discard, "info", "text")
	suite.server = httptest.NewServer(logging.Middleware(logger)(h.Routes()))

	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	suite.client = &http.Client{Jar: jar}
}

func (suite *APITestSuite) TearDownTest() {
	if suite.server != nil {
		suite.server.Close()
	}
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *APITestSuite) do(method, path string, body any) *http.Response {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(suite.T(), err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, suite.server.URL+path, r)
	require.NoError(suite.T(), err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (suite *APITestSuite) raw(method, path, body string) *http.Response {
	req, err := http.NewRequest(method, suite.server.URL+path, strings.NewReader(body))
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	suite.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			return c
		}
	}
	return nil
}

func (suite *APITestSuite) register(name string) {
	resp := suite.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "password": "pw123", "relation": "self",
	})
	require.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
}

func (suite *APITestSuite) TestExpenseLifecycle() {
	resp := suite.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "alice", "password": "pw123", "relation": "self",
	})
	require.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(resp)
	require.NotNil(suite.T(), cookie, "register sets the session cookie")
	assert.True(suite.T(), cookie.HttpOnly)
	assert.Equal(suite.T(), int(session.Duration.Seconds()), cookie.MaxAge)
	assert.Equal(suite.T(), http.SameSiteLaxMode, cookie.SameSite)

	user := decode[models.UserSummary](suite.T(), resp)
	assert.Equal(suite.T(), "alice", user.Name)
	assert.Equal(suite.T(), "self", user.Relation)
	assert.False(suite.T(), user.IsAdmin)

	resp = suite.do(http.MethodPost, "/api/addExpenses", map[string]any{
		"category": "House", "subcategory": "Rent", "mode": "Card", "amount": 1200, "date": "2024-01-05",
	})
	require.Equal(suite.T(), http.StatusCreated, resp.StatusCode)
	created := decode[models.Expense](suite.T(), resp)
	require.NotEmpty(suite.T(), created.ID)

	resp = suite.do(http.MethodGet, "/api/", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	list := decode[[]models.Expense](suite.T(), resp)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), created.ID, list[0].ID)
	assert.Equal(suite.T(), 1200.0, list[0].Amount)

	resp = suite.do(http.MethodDelete, "/api/expenses/"+created.ID, nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	assert.JSONEq(suite.T(), "[]", string(body))

	resp = suite.do(http.MethodDelete, "/api/expenses/"+created.ID, nil)
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
}

func (suite *APITestSuite) TestGateRejectsAnonymous() {
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/"},
		{http.MethodGet, "/api/auth/me"},
		{http.MethodPost, "/api/addExpenses"},
		{http.MethodGet, "/api/summary?type=weekly"},
		{http.MethodGet, "/api/config"},
		{http.MethodPut, "/api/config"},
		{http.MethodGet, "/api/expenses"},
		{http.MethodDelete, "/api/expenses/abc"},
		{http.MethodGet, "/api/unknown"},
	}
	for _, p := range paths {
		resp := suite.do(p.method, p.path, nil)
		assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode, "%s %s", p.method, p.path)
		msg := decode[messageResponse](suite.T(), resp)
		assert.Equal(suite.T(), "Authentication required.", msg.Message)
	}
}

func (suite *APITestSuite) TestGateRejectsForgedCookie() {
	req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/api/expenses", nil)
	require.NoError(suite.T(), err)
	req.AddCookie(&http.Cookie{Name: "sid", Value: strings.Repeat("x", 43)})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(suite.T(), cleared)
	assert.Equal(suite.T(), -1, cleared.MaxAge)
}

func (suite *APITestSuite) TestRegisterErrors() {
	resp := suite.do(http.MethodPost, "/api/auth/register", map[string]string{"name": "alice"})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.raw(http.MethodPost, "/api/auth/register", "{not json")
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.raw(http.MethodPost, "/api/auth/register", `{"name":"carol","password":"pw","relation":"self"} garbage`)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode, "trailing data after the body")

	resp = suite.raw(http.MethodPost, "/api/auth/register", `{"name":"carol","password":"pw","relation":"self"}`+"\n")
	assert.Equal(suite.T(), http.StatusCreated, resp.StatusCode, "trailing whitespace is fine")
	suite.do(http.MethodPost, "/api/auth/logout", nil)

	resp = suite.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "bob", "password": strings.Repeat("p", 80), "relation": "self",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode, "overlong password is a client error")
	msg := decode[messageResponse](suite.T(), resp)
	assert.Equal(suite.T(), "Password must be at most 72 bytes.", msg.Message)

	suite.register("alice")
	resp = suite.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "alice", "password": "other", "relation": "spouse",
	})
	assert.Equal(suite.T(), http.StatusConflict, resp.StatusCode)
	msg = decode[messageResponse](suite.T(), resp)
	assert.Equal(suite.T(), "User already exists.", msg.Message)
}

func (suite *APITestSuite) TestLoginLogout() {
	suite.register("alice")
	suite.do(http.MethodPost, "/api/auth/logout", nil)

	resp := suite.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode, "logout ends the session")

	resp = suite.do(http.MethodPost, "/api/auth/login", map[string]string{"name": "alice", "password": "wrong"})
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	wrong := decode[messageResponse](suite.T(), resp)

	resp = suite.do(http.MethodPost, "/api/auth/login", map[string]string{"name": "nobody", "password": "pw123"})
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
	unknown := decode[messageResponse](suite.T(), resp)
	assert.Equal(suite.T(), wrong, unknown)

	resp = suite.do(http.MethodPost, "/api/auth/login", map[string]string{"password": "pw123"})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.do(http.MethodPost, "/api/auth/login", map[string]string{"name": "  ", "email": "alice", "password": "pw123"})
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode, "blank name falls back to email")

	resp = suite.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "alice", "password": "pw123"})
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.NotNil(suite.T(), sessionCookie(resp))

	resp = suite.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	me := decode[models.SessionUser](suite.T(), resp)
	assert.Equal(suite.T(), "alice", me.Name)

	resp = suite.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), -1, sessionCookie(resp).MaxAge)

	resp = suite.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode, "logout is idempotent")
}

func (suite *APITestSuite) TestLoginRotatesSession() {
	suite.register("alice")
	serverURL, err := url.Parse(suite.server.URL)
	require.NoError(suite.T(), err)
	stored := suite.client.Jar.Cookies(serverURL)
	require.Len(suite.T(), stored, 1)
	first := stored[0].Value

	resp := suite.do(http.MethodPost, "/api/auth/login", map[string]string{"name": "alice", "password": "pw123"})
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	second := sessionCookie(resp).Value
	assert.NotEqual(suite.T(), first, second)

	req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/api/auth/me", nil)
	require.NoError(suite.T(), err)
	req.AddCookie(&http.Cookie{Name: "sid", Value: first})
	old, err := http.DefaultClient.Do(req)
	require.NoError(suite.T(), err)
	defer old.Body.Close()
	assert.Equal(suite.T(), http.StatusUnauthorized, old.StatusCode, "previous session is revoked")
}

func (suite *APITestSuite) TestSummary() {
	suite.register("alice")

	resp := suite.do(http.MethodGet, "/api/summary?type=weekly", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(suite.T(), err)
	assert.JSONEq(suite.T(), `{"total":0}`, string(body))

	resp = suite.do(http.MethodGet, "/api/summary?type=bogus", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
}

func (suite *APITestSuite) TestConfig() {
	suite.register("alice")

	resp := suite.do(http.MethodGet, "/api/config", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	first := decode[models.Config](suite.T(), resp)
	assert.Equal(suite.T(), []string{}, first.Categories)
	assert.Equal(suite.T(), map[string][]string{}, first.Subcategories)

	resp = suite.do(http.MethodPut, "/api/config", map[string]any{
		"categories":    []string{"House"},
		"subcategories": map[string][]string{"House": {"Rent"}},
	})
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	updated := decode[models.Config](suite.T(), resp)
	assert.Equal(suite.T(), first.ID, updated.ID)
	assert.Equal(suite.T(), []string{"House"}, updated.Categories)
	assert.Equal(suite.T(), []string{}, updated.Modes)
	assert.Equal(suite.T(), "alice", updated.UpdatedBy)

	resp = suite.raw(http.MethodPut, "/api/config", `{"categories":"House"}`)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	msg := decode[messageResponse](suite.T(), resp)
	assert.Contains(suite.T(), msg.Message, "categories")

	resp = suite.raw(http.MethodPut, "/api/config", `{"subcategories":{"House":[1]}}`)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
}

func (suite *APITestSuite) TestAddExpenseValidation() {
	suite.register("alice")

	resp := suite.do(http.MethodPost, "/api/addExpenses", map[string]any{"category": "House"})
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)

	resp = suite.raw(http.MethodPost, "/api/addExpenses", `{"category":"House","subcategory":"Rent","mode":"Card","amount":"a lot","date":"2024-01-05"}`)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
}

func (suite *APITestSuite) TestListFilters() {
	suite.register("alice")
	for _, e := range []map[string]any{
		{"category": "House", "subcategory": "Rent", "mode": "Card", "amount": 1200, "date": "2024-01-05"},
		{"category": "Food", "subcategory": "Groceries", "mode": "Cash", "amount": 40, "date": "2024-02-10"},
	} {
		require.Equal(suite.T(), http.StatusCreated, suite.do(http.MethodPost, "/api/addExpenses", e).StatusCode)
	}

	resp := suite.do(http.MethodGet, "/api/?category=Food&mode=all-modes", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Len(suite.T(), decode[[]models.Expense](suite.T(), resp), 1)

	resp = suite.do(http.MethodGet, "/api/?startDate=2024-01-01&endDate=2024-01-31&category=all-categories", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	list := decode[[]models.Expense](suite.T(), resp)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), "Rent", list[0].Subcategory)

	resp = suite.do(http.MethodGet, "/api/expenses", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	list = decode[[]models.Expense](suite.T(), resp)
	require.Len(suite.T(), list, 2)
	assert.Equal(suite.T(), "Groceries", list[0].Subcategory, "newest first")

	resp = suite.do(http.MethodGet, "/api/?startDate=garbage", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
}

func (suite *APITestSuite) TestHealth() {
	resp := suite.do(http.MethodGet, "/healthz", nil)
	require.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), map[string]string{"status": "ok"}, decode[map[string]string](suite.T(), resp))
	assert.NotEmpty(suite.T(), resp.Header.Get(logging.RequestIDHeader))
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthUnavailable(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, downStore{}, CookieOptions{})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestProductionCookie(t *testing.T) {
	h := NewHandlers(nil, nil, nil, session.NewManager(nil), downStore{}, CookieOptions{Name: "expense.sid", Production: true})
	rec := httptest.NewRecorder()
	h.setSessionCookie(rec, "token")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "expense.sid", cookies[0].Name)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := CORS(CORSOptions{Origin: "http://localhost:5173", Credentials: true})(next)

	preflight := httptest.NewRequest(http.MethodOptions, "/api/config", nil)
	preflight.Header.Set("Origin", "http://localhost:5173")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)

	other := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	other.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
