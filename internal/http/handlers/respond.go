package handlers

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

const (
	msgServerError     = "Server error"
	msgUserNotFound    = "User not found"
	msgUserExists      = "User already exists"
	msgInvalidCreds    = "Invalid credentials"
	msgInvalidBody     = "Invalid request body"
	msgBodyTooLarge    = "Request body too large"
	msgUserRemoved     = "User removed"
	msgWelcome         = "Welcome to the Auth API"
	msgMissingIdentity = "No token, authorization denied"
	msgPasswordTooLong = "password must be at most 72 bytes"
)

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(middlewares.CtxRequestID)

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// RespondMsg writes the one error shape this API has: {"msg": "..."}.
func RespondMsg(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, gin.H{"msg": msg})
}

func RespondBadRequest(ctx *gin.Context, msg string) {
	RespondMsg(ctx, http.StatusBadRequest, msg)
}

func RespondNotFound(ctx *gin.Context, msg string) {
	RespondMsg(ctx, http.StatusNotFound, msg)
}

func RespondUnAuthorized(ctx *gin.Context, msg string) {
	RespondMsg(ctx, http.StatusUnauthorized, msg)
}

// RespondInternal logs the cause with the request id and route and answers
// with a generic message. The cause never reaches the client.
func RespondInternal(ctx *gin.Context, op string, err error) {
	slog.Default().ErrorContext(ctx.Request.Context(), "request failed",
		"op", op,
		"route", ctx.FullPath(),
		"request_id", requestIDFrom(ctx),
		"err", err,
	)

	RespondMsg(ctx, http.StatusInternalServerError, msgServerError)
}
