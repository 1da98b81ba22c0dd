package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	msgNoToken      = "No token, authorization denied"
	msgInvalidToken = "Token is not valid"
	msgAdminOnly    = "Access denied. Admin privileges required."
	msgServerError  = "Server error"
	msgRateLimited  = "Too many requests. Please try again shortly."
)

func abortMsg(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"msg": msg})
}

func abortServerError(c *gin.Context) {
	abortMsg(c, http.StatusInternalServerError, msgServerError)
}
