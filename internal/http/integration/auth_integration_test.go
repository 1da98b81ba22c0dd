package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/countryauth/internal/account"
	"github.com/geocoder89/countryauth/internal/auth"
	"github.com/geocoder89/countryauth/internal/config"
	"github.com/geocoder89/countryauth/internal/db"
	apphttp "github.com/geocoder89/countryauth/internal/http"
	"github.com/geocoder89/countryauth/internal/http/handlers"
	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/geocoder89/countryauth/internal/observability"
	"github.com/geocoder89/countryauth/internal/repo/memory"
	"github.com/geocoder89/countryauth/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const testSecret = "test-secret-key"

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		StoreDriver:        config.DriverMemory,
		JWTSecret:          testSecret,
		AuthRateLimit:      1000,
		AuthRateWindow:     time.Minute,
		CORSAllowedOrigins: []string{"*"},
		MaxBodyBytes:       1 << 20,
		AdminEmail:         "admin@example.com",
		AdminPassword:      "admin-pass",
		AdminName:          "Test Admin",
	}
}

type testApp struct {
	router http.Handler
	store  *memory.UsersRepo
	reg    *prometheus.Registry
}

func setupApp(t *testing.T, cfg config.Config) testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewUsersRepo()

	if _, err := db.EnsureAdminUser(context.Background(), store, cfg); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	tokens := auth.NewManager(cfg.JWTSecret)

	var limiter middlewares.Limiter
	if cfg.RateLimitEnabled() {
		limiter = middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	}

	router := apphttp.NewRouter(apphttp.Deps{
		Env:                cfg.Env,
		ServiceName:        "countryauth-test",
		Accounts:           account.NewService(store, security.NewHasher(), tokens, prom),
		Tokens:             tokens,
		Users:              store,
		Limiter:            limiter,
		Prom:               prom,
		Gatherer:           reg,
		ReadyChecks:        map[string]handlers.PingFunc{"store": store.Ping},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	return testApp{router: router, store: store, reg: reg}
}

// helpers

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type msgResponse struct {
	Msg string `json:"msg"`
}

func (a testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	if token != "" {
		req.Header.Set("x-auth-token", token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (a testApp) register(t *testing.T, name, email, password string) authResponse {
	t.Helper()

	w := a.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	return decode[authResponse](t, w)
}

func (a testApp) login(t *testing.T, email, password string) authResponse {
	t.Helper()

	w := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, w.Code, w.Body.String())
	}
	return decode[authResponse](t, w)
}

func TestWelcomeAndHealth(t *testing.T) {
	app := setupApp(t, testConfig())

	w := app.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || decode[msgResponse](t, w).Msg != "Welcome to the Auth API" {
		t.Fatalf("welcome: %d %s", w.Code, w.Body.String())
	}

	for _, path := range []string{"/healthz", "/readyz", "/docs", "/docs/openapi.yaml", "/metrics"} {
		if w := app.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, w.Code)
		}
	}

	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id on every response")
	}
}

func TestRegisterLoginProfile(t *testing.T) {
	app := setupApp(t, testConfig())

	// the role field is ignored on registration
	w := app.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "secret1", "role": "admin",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("response leaks password material: %s", w.Body.String())
	}

	reg := decode[authResponse](t, w)
	if reg.Token == "" || reg.User.Role != "user" || reg.User.Email != "ann@x.com" {
		t.Fatalf("unexpected register response: %+v", reg)
	}

	w = app.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": "secret2",
	})
	if w.Code != http.StatusBadRequest || decode[msgResponse](t, w).Msg != "User already exists" {
		t.Fatalf("duplicate register: %d %s", w.Code, w.Body.String())
	}

	logged := app.login(t, "ann@x.com", "secret1")
	if logged.User.ID != reg.User.ID {
		t.Fatalf("login returned a different user: %+v", logged.User)
	}

	w = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@x.com", "password": "wrong"})
	if w.Code != http.StatusBadRequest || decode[msgResponse](t, w).Msg != "Invalid credentials" {
		t.Fatalf("wrong password: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@x.com", "password": "secret1"})
	if w.Code != http.StatusBadRequest || decode[msgResponse](t, w).Msg != "Invalid credentials" {
		t.Fatalf("unknown email: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/api/auth/user", logged.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("profile leaks password material: %s", w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/api/auth/user", "", nil)
	if w.Code != http.StatusUnauthorized || decode[msgResponse](t, w).Msg != "No token, authorization denied" {
		t.Fatalf("no token: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/api/auth/user", "garbage", nil)
	if w.Code != http.StatusUnauthorized || decode[msgResponse](t, w).Msg != "Token is not valid" {
		t.Fatalf("bad token: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	app := setupApp(t, testConfig())

	w := app.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": "Ann", "email": "not-an-email", "password": "secret1",
	})
	if w.Code != http.StatusBadRequest || decode[msgResponse](t, w).Msg != "email must be a valid email address" {
		t.Fatalf("invalid email: %d %s", w.Code, w.Body.String())
	}

	// 40 runes pass max=72 but are 80 bytes, past what bcrypt accepts
	w = app.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": strings.Repeat("é", 40),
	})
	if w.Code != http.StatusBadRequest || decode[msgResponse](t, w).Msg != "password must be at most 72 bytes" {
		t.Fatalf("multibyte password: %d %s", w.Code, w.Body.String())
	}

	// exactly 72 bytes is still accepted
	w = app.do(t, http.MethodPost, "/api/users/register", "", map[string]string{
		"name": "Ann", "email": "ann@x.com", "password": strings.Repeat("é", 36),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("72-byte password: %d %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wrong content type: %d", rec.Code)
	}
}

func TestAdminFlow(t *testing.T) {
	app := setupApp(t, testConfig())

	ann := app.register(t, "Ann", "ann@x.com", "secret1")
	bob := app.register(t, "Bob", "bob@x.com", "secret1")

	// a user-role token is forbidden on admin routes
	w := app.do(t, http.MethodGet, "/api/users", ann.Token, nil)
	if w.Code != http.StatusForbidden || decode[msgResponse](t, w).Msg != "Access denied. Admin privileges required." {
		t.Fatalf("user on admin route: %d %s", w.Code, w.Body.String())
	}

	admin := app.login(t, "admin@example.com", "admin-pass")
	if admin.User.Role != "admin" {
		t.Fatalf("seeded admin has role %q", admin.User.Role)
	}

	w = app.do(t, http.MethodGet, "/api/users", admin.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("list leaks password material: %s", w.Body.String())
	}

	users := decode[[]userView](t, w)
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}

	w = app.do(t, http.MethodGet, "/api/users?limit=1&offset=1", admin.Token, nil)
	page := decode[[]userView](t, w)
	if len(page) != 1 || page[0].Email != "ann@x.com" {
		t.Fatalf("paged list: %+v", page)
	}

	// promote ann; her old token now passes the guard because the role is re-read
	w = app.do(t, http.MethodPut, "/api/users/"+ann.User.ID, admin.Token, map[string]string{"role": "admin"})
	if w.Code != http.StatusOK {
		t.Fatalf("promote: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Fatalf("update leaks password material: %s", w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/api/users", ann.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("promoted user on admin route: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodPut, "/api/users/"+ann.User.ID, admin.Token, map[string]string{"email": "bob@x.com"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("email collision: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodPut, "/api/users/does-not-exist", admin.Token, map[string]string{"name": "x"})
	if w.Code != http.StatusNotFound || decode[msgResponse](t, w).Msg != "User not found" {
		t.Fatalf("update missing: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodDelete, "/api/users/"+bob.User.ID, admin.Token, nil)
	if w.Code != http.StatusOK || decode[msgResponse](t, w).Msg != "User removed" {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodDelete, "/api/users/"+bob.User.ID, admin.Token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: %d %s", w.Code, w.Body.String())
	}

	// bob's token is still valid but his account is gone
	w = app.do(t, http.MethodGet, "/api/auth/user", bob.Token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted user profile: %d %s", w.Code, w.Body.String())
	}
}

func TestAuthIsCheckedBeforeContentType(t *testing.T) {
	app := setupApp(t, testConfig())

	req := httptest.NewRequest(http.MethodPut, "/api/users/abc", bytes.NewBufferString(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token, no content type: expected 401, got %d %s", rec.Code, rec.Body.String())
	}

	admin := app.login(t, "admin@example.com", "admin-pass")

	req = httptest.NewRequest(http.MethodPut, "/api/users/abc", bytes.NewBufferString(`{"name":"x"}`))
	req.Header.Set("x-auth-token", admin.Token)
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("admin, no content type: expected 415, got %d", rec.Code)
	}
}

func TestExpiredTokenOnAdminRouteIs401(t *testing.T) {
	app := setupApp(t, testConfig())

	admin := app.login(t, "admin@example.com", "admin-pass")

	old := auth.NewManagerWithClock(testSecret, func() time.Time {
		return time.Now().Add(-25 * time.Hour)
	})
	expired, err := old.Issue(admin.User.ID, "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := app.do(t, http.MethodGet, "/api/users", expired, nil)
	if w.Code != http.StatusUnauthorized || decode[msgResponse](t, w).Msg != "Token is not valid" {
		t.Fatalf("expired admin token: %d %s", w.Code, w.Body.String())
	}

	forged, _ := auth.NewManager("another-secret").Issue(admin.User.ID, "admin")
	w = app.do(t, http.MethodGet, "/api/users", forged, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign-secret token: %d", w.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 2
	app := setupApp(t, cfg)

	body := map[string]string{"email": "nobody@x.com", "password": "x"}

	for i := 0; i < 2; i++ {
		if w := app.do(t, http.MethodPost, "/api/auth/login", "", body); w.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: %d", i, w.Code)
		}
	}

	w := app.do(t, http.MethodPost, "/api/auth/login", "", body)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", w.Code)
	}

	// GET routes are not throttled
	if w := app.do(t, http.MethodGet, "/", "", nil); w.Code != http.StatusOK {
		t.Fatalf("welcome after limit: %d", w.Code)
	}
}

func TestLoginRateLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateLimit = 0
	app := setupApp(t, cfg)

	body := map[string]string{"email": "nobody@x.com", "password": "x"}

	for i := 0; i < 5; i++ {
		if w := app.do(t, http.MethodPost, "/api/auth/login", "", body); w.Code != http.StatusBadRequest {
			t.Fatalf("attempt %d: expected 400, got %d", i, w.Code)
		}
	}
}
