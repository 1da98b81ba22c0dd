package middlewares_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/countryauth/internal/actorctx"
	"github.com/geocoder89/countryauth/internal/auth"
	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	verifyFn func(token string) (auth.Identity, error)
}

func (f fakeVerifier) Verify(token string) (auth.Identity, error) {
	return f.verifyFn(token)
}

type fakeLookup struct {
	getFn func(ctx context.Context, id string) (user.User, error)
}

func (f fakeLookup) GetByID(ctx context.Context, id string) (user.User, error) {
	return f.getFn(ctx, id)
}

type countingRejections struct {
	reasons []string
}

func (c *countingRejections) ObserveRejection(reason string) {
	c.reasons = append(c.reasons, reason)
}

func decodeMsg(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body.Msg
}

func newAuthRouter(m *middlewares.AuthMiddleware, admin bool) *gin.Engine {
	r := gin.New()

	chain := []gin.HandlerFunc{m.RequireAuth()}
	if admin {
		chain = append(chain, m.RequireAdmin())
	}

	chain = append(chain, func(c *gin.Context) {
		id, _ := middlewares.UserIDFromContext(c)
		fromCtx, _ := actorctx.UserIDFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": id, "ctx": fromCtx})
	})

	r.GET("/p", chain...)
	return r
}

func TestRequireAuth_MissingAndInvalidToken(t *testing.T) {
	rej := &countingRejections{}
	m := middlewares.NewAuthMiddleware(fakeVerifier{verifyFn: func(string) (auth.Identity, error) {
		return auth.Identity{}, auth.ErrInvalidToken
	}}, nil, rej)

	r := newAuthRouter(m, false)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "No token, authorization denied"},
		{"blank header", "   ", "No token, authorization denied"},
		{"garbage token", "not-a-jwt", "Token is not valid"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tc.header != "" {
				req.Header.Set(middlewares.TokenHeader, tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
			if got := decodeMsg(t, w); got != tc.wantMsg {
				t.Fatalf("msg = %q, want %q", got, tc.wantMsg)
			}
		})
	}

	if len(rej.reasons) != 3 {
		t.Fatalf("expected 3 rejections recorded, got %v", rej.reasons)
	}
}

func TestRequireAuth_ValidTokenWithRealManager(t *testing.T) {
	mgr := auth.NewManager("test-secret")
	token, err := mgr.Issue("u-1", user.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	r := newAuthRouter(middlewares.NewAuthMiddleware(mgr, nil, nil), false)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(middlewares.TokenHeader, token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["id"] != "u-1" || body["ctx"] != "u-1" {
		t.Fatalf("identity not attached: %v", body)
	}

	// a Bearer prefix is not part of this contract
	req = httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(middlewares.TokenHeader, "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for Bearer-prefixed token, got %d", w.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	verifier := fakeVerifier{verifyFn: func(token string) (auth.Identity, error) {
		// the embedded role is ignored; only the stored one counts
		return auth.Identity{ID: token, Role: user.RoleAdmin}, nil
	}}

	users := fakeLookup{getFn: func(_ context.Context, id string) (user.User, error) {
		switch id {
		case "admin":
			return user.User{ID: id, Role: user.RoleAdmin}, nil
		case "demoted":
			return user.User{ID: id, Role: user.RoleUser}, nil
		case "broken":
			return user.User{}, errors.New("connection refused")
		default:
			return user.User{}, user.ErrNotFound
		}
	}}

	r := newAuthRouter(middlewares.NewAuthMiddleware(verifier, users, nil), true)

	tests := []struct {
		token      string
		wantStatus int
		wantMsg    string
	}{
		{"admin", http.StatusOK, ""},
		{"demoted", http.StatusForbidden, "Access denied. Admin privileges required."},
		{"deleted", http.StatusForbidden, "Access denied. Admin privileges required."},
		{"broken", http.StatusInternalServerError, "Server error"},
	}

	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			req.Header.Set(middlewares.TokenHeader, tc.token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if tc.wantMsg != "" && decodeMsg(t, w) != tc.wantMsg {
				t.Fatalf("msg = %q, want %q", decodeMsg(t, w), tc.wantMsg)
			}
		})
	}
}

func TestRequireAdmin_ExpiredTokenIsUnauthorized(t *testing.T) {
	mgr := auth.NewManager("test-secret")
	users := fakeLookup{getFn: func(context.Context, string) (user.User, error) {
		t.Fatalf("store must not be reached for an invalid token")
		return user.User{}, nil
	}}

	r := newAuthRouter(middlewares.NewAuthMiddleware(mgr, users, nil), true)

	expired := signExpired(t, "test-secret")
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(middlewares.TokenHeader, expired)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

// signExpired builds a token whose exp is already in the past by issuing
// from a manager with a shifted clock.
func signExpired(t *testing.T, secret string) string {
	t.Helper()

	old := auth.NewManagerWithClock(secret, func() time.Time {
		return time.Now().Add(-48 * time.Hour)
	})
	tok, err := old.Issue("admin", user.RoleAdmin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}
