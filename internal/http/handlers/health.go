package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

const readyTimeout = 1 * time.Second

// PingFunc reports whether one dependency is reachable.
type PingFunc func(ctx context.Context) error

type HealthHandler struct {
	required map[string]PingFunc
	optional map[string]PingFunc
	draining atomic.Bool
}

// create a new instance of the health handler; every required check must
// pass for /readyz to report ready, optional ones only mark it degraded
func NewHealthHandler(required, optional map[string]PingFunc) *HealthHandler {
	return &HealthHandler{required: required, optional: optional}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Drain makes /readyz report not ready so load balancers stop routing here
// while in-flight requests finish.
func (h *HealthHandler) Drain() {
	h.draining.Store(true)
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.draining.Load() {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), readyTimeout)
	defer cancel()

	for name, ping := range h.required {
		if err := ping(cctx); err != nil {
			slog.Default().WarnContext(ctx.Request.Context(), "readiness check failed", "check", name, "err", err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
	}

	var degraded []string
	for name, ping := range h.optional {
		if err := ping(cctx); err != nil {
			slog.Default().WarnContext(ctx.Request.Context(), "optional dependency unavailable", "check", name, "err", err)
			degraded = append(degraded, name)
		}
	}

	if len(degraded) > 0 {
		sort.Strings(degraded)
		ctx.JSON(http.StatusOK, gin.H{"status": "ready", "degraded": degraded})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Welcome answers GET / so a browser hitting the API root sees it is alive.
func Welcome(ctx *gin.Context) {
	RespondMsg(ctx, http.StatusOK, msgWelcome)
}
