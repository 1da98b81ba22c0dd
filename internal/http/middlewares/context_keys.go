package middlewares

// gin context keys; values set here are read back through the helpers in
// auth_middleware.go
const (
	CtxRequestID = "request_id"
	ctxUserIDKey = "auth.userID"
	ctxRoleKey   = "auth.role"
)
