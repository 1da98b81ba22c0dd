package http

import (
	"github.com/geocoder89/countryauth/internal/http/handlers"
	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/geocoder89/countryauth/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Accounts interface {
	handlers.Authenticator
	handlers.UserAdmin
}

// Deps is everything the router wires together. Prom, Gatherer and Limiter
// are optional.
type Deps struct {
	Env         string
	ServiceName string

	Accounts Accounts
	Tokens   middlewares.TokenVerifier
	Users    middlewares.UserLookup
	Limiter  middlewares.Limiter

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	// ReadyChecks gate /readyz; OptionalChecks only report degraded.
	ReadyChecks    map[string]handlers.PingFunc
	OptionalChecks map[string]handlers.PingFunc

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	Tracing            bool
}

// Router is the engine plus the hook shutdown uses to fail readiness.
type Router struct {
	*gin.Engine
	health *handlers.HealthHandler
}

func (r *Router) Drain() {
	r.health.Drain()
}

func NewRouter(d Deps) *Router {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	var rejections middlewares.RejectionRecorder
	if d.Prom != nil {
		rejections = d.Prom
	}

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	if d.Tracing {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(middlewares.RequestLogger())
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))

	// health
	h := handlers.NewHealthHandler(d.ReadyChecks, d.OptionalChecks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	r.GET("/", handlers.Welcome)

	// Wire up handlers
	authMW := middlewares.NewAuthMiddleware(d.Tokens, d.Users, rejections)
	authHandler := handlers.NewAuthHandler(d.Accounts)
	usersHandler := handlers.NewUsersHandler(d.Accounts)

	var throttle gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if d.Limiter != nil {
		throttle = middlewares.RateLimit(d.Limiter, middlewares.KeyByIP, rejections)
	}

	// content type is checked per route, after auth, so a bad token is a 401
	requireJSON := middlewares.RequireJSON()

	api := r.Group("/api")

	api.POST("/users/register", throttle, requireJSON, authHandler.Register)
	api.POST("/auth/login", throttle, requireJSON, authHandler.Login)
	api.GET("/auth/user", authMW.RequireAuth(), authHandler.CurrentUser)

	admin := api.Group("/users", authMW.RequireAuth(), authMW.RequireAdmin())
	{
		admin.GET("", usersHandler.List)
		admin.PUT("/:id", requireJSON, usersHandler.Update)
		admin.DELETE("/:id", usersHandler.Delete)
	}

	return &Router{Engine: r, health: h}
}
