package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/countryauth/internal/account"
	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/geocoder89/countryauth/internal/security"
	"github.com/gin-gonic/gin"
)

// store and hash work for one request; bcrypt at cost 10 takes well under this
const requestTimeout = 3 * time.Second

type Authenticator interface {
	Register(ctx context.Context, in account.RegisterInput) (account.AuthResult, error)
	Login(ctx context.Context, email, password string) (account.AuthResult, error)
	GetProfile(ctx context.Context, id string) (user.View, error)
}

type AuthHandler struct {
	accounts Authenticator
}

func NewAuthHandler(accounts Authenticator) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register ignores any role in the body; new accounts are always users.
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// max=72 above counts runes
	if len(req.Password) > security.MaxPasswordBytes {
		RespondBadRequest(ctx, msgPasswordTooLong)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.accounts.Register(cctx, account.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})

	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			RespondBadRequest(ctx, msgUserExists)
			return
		}

		RespondInternal(ctx, "register", err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.accounts.Login(cctx, req.Email, req.Password)

	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			RespondBadRequest(ctx, msgInvalidCreds)
			return
		}

		RespondInternal(ctx, "login", err)
		return
	}

	ctx.JSON(http.StatusOK, res)
}

// CurrentUser returns the caller's stored profile, not the token claims.
func (h *AuthHandler) CurrentUser(ctx *gin.Context) {
	id, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnAuthorized(ctx, msgMissingIdentity)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	v, err := h.accounts.GetProfile(cctx, id)

	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			RespondNotFound(ctx, msgUserNotFound)
			return
		}

		RespondInternal(ctx, "current_user", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, v)
}
