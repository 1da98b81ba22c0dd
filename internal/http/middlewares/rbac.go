package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/gin-gonic/gin"
)

const roleLookupTimeout = 3 * time.Second

// RequireAdmin must run after RequireAuth. The role is re-read from the
// store on every request, so promotions and demotions apply to tokens that
// were issued before them.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := UserIDFromContext(c)

		if !ok {
			m.rejections.ObserveRejection("no_token")
			abortMsg(c, http.StatusUnauthorized, msgNoToken)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), roleLookupTimeout)
		defer cancel()

		u, err := m.users.GetByID(ctx, id)

		if err != nil && !errors.Is(err, user.ErrNotFound) {
			// infra failure, not a denial
			slog.Default().ErrorContext(c.Request.Context(), "admin role lookup failed",
				"user_id", id,
				"err", err,
			)
			abortServerError(c)
			return
		}

		if err != nil || u.Role != user.RoleAdmin {
			m.rejections.ObserveRejection("forbidden")
			abortMsg(c, http.StatusForbidden, msgAdminOnly)
			return
		}

		c.Next()
	}
}
