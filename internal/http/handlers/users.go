package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/geocoder89/countryauth/internal/account"
	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/gin-gonic/gin"
)

const maxPageLimit = 100

type UserAdmin interface {
	ListUsers(ctx context.Context, page user.Page) ([]user.View, error)
	UpdateUser(ctx context.Context, id string, fields user.UpdateFields) (user.View, error)
	DeleteUser(ctx context.Context, id string) error
}

type UsersHandler struct {
	accounts UserAdmin
}

func NewUsersHandler(accounts UserAdmin) *UsersHandler {
	return &UsersHandler{accounts: accounts}
}

// UpdateUserRequest fields are all optional. An empty string is treated the
// same as an absent field.
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,max=100"`
	Email string `json:"email" binding:"omitempty,email"`
	Role  string `json:"role" binding:"omitempty,oneof=user admin"`
}

func (r UpdateUserRequest) fields() user.UpdateFields {
	var f user.UpdateFields

	if r.Name != "" {
		f.Name = &r.Name
	}
	if r.Email != "" {
		f.Email = &r.Email
	}
	if r.Role != "" {
		role := user.Role(r.Role)
		f.Role = &role
	}

	return f
}

// GET /api/users?limit=&offset=

func (h *UsersHandler) List(ctx *gin.Context) {
	page, ok := parsePage(ctx)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	users, err := h.accounts.ListUsers(cctx, page)

	if err != nil {
		RespondInternal(ctx, "list_users", err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, users)
}

func (h *UsersHandler) Update(ctx *gin.Context) {
	var req UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	v, err := h.accounts.UpdateUser(cctx, ctx.Param("id"), req.fields())

	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			RespondNotFound(ctx, msgUserNotFound)
		case errors.Is(err, account.ErrDuplicateEmail):
			RespondBadRequest(ctx, msgUserExists)
		case errors.Is(err, account.ErrInvalidRole):
			RespondBadRequest(ctx, "role must be one of user, admin")
		default:
			RespondInternal(ctx, "update_user", err)
		}
		return
	}

	ctx.JSON(http.StatusOK, v)
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), requestTimeout)
	defer cancel()

	err := h.accounts.DeleteUser(cctx, ctx.Param("id"))

	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			RespondNotFound(ctx, msgUserNotFound)
			return
		}

		RespondInternal(ctx, "delete_user", err)
		return
	}

	RespondMsg(ctx, http.StatusOK, msgUserRemoved)
}

func parsePage(ctx *gin.Context) (user.Page, bool) {
	var page user.Page

	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)

		if err != nil || n < 1 || n > maxPageLimit {
			RespondBadRequest(ctx, "limit must be a number between 1 and "+strconv.Itoa(maxPageLimit))
			return user.Page{}, false
		}
		page.Limit = n
	}

	if s := ctx.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)

		if err != nil || n < 0 {
			RespondBadRequest(ctx, "offset must be a non-negative number")
			return user.Page{}, false
		}
		page.Offset = n
	}

	return page, true
}
