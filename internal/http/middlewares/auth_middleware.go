package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/geocoder89/countryauth/internal/actorctx"
	"github.com/geocoder89/countryauth/internal/auth"
	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// TokenHeader carries the raw JWT. There is no Bearer prefix.
const TokenHeader = "x-auth-token"

// Keep these small interfaces so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type RejectionRecorder interface {
	ObserveRejection(reason string)
}

type nopRejections struct{}

func (nopRejections) ObserveRejection(string) {}

type AuthMiddleware struct {
	tokens     TokenVerifier
	users      UserLookup
	rejections RejectionRecorder
}

func NewAuthMiddleware(tokens TokenVerifier, users UserLookup, rejections RejectionRecorder) *AuthMiddleware {
	if rejections == nil {
		rejections = nopRejections{}
	}

	return &AuthMiddleware{
		tokens:     tokens,
		users:      users,
		rejections: rejections,
	}
}

// RequireAuth verifies x-auth-token and attaches the identity. It fails
// closed: anything but a valid, unexpired token is a 401.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(TokenHeader))
		if raw == "" {
			m.rejections.ObserveRejection("no_token")
			abortMsg(c, http.StatusUnauthorized, msgNoToken)
			return
		}

		id, err := m.tokens.Verify(raw)
		if err != nil {
			m.rejections.ObserveRejection("invalid_token")
			abortMsg(c, http.StatusUnauthorized, msgInvalidToken)
			return
		}

		SetIdentity(c, id)

		c.Next()
	}
}

// SetIdentity stashes identity on the gin context and on the request context.
func SetIdentity(c *gin.Context, id auth.Identity) {
	c.Set(ctxUserIDKey, id.ID)
	c.Set(ctxRoleKey, string(id.Role))
	c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))
}

// Optional helpers so handlers don’t need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// RoleFromContext is the role embedded in the token. It is informational;
// authorization decisions go through RequireAdmin.
func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
