package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/countryauth/internal/account"
	"github.com/geocoder89/countryauth/internal/auth"
	"github.com/geocoder89/countryauth/internal/config"
	"github.com/geocoder89/countryauth/internal/db"
	httpx "github.com/geocoder89/countryauth/internal/http"
	"github.com/geocoder89/countryauth/internal/http/handlers"
	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/geocoder89/countryauth/internal/observability"
	"github.com/geocoder89/countryauth/internal/redisclient"
	"github.com/geocoder89/countryauth/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg, err := config.Load()

	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("config loaded", "config", cfg.String())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancelInit()

	shutdownTracer := func(context.Context) error { return nil }

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err = observability.InitTracer(initCtx, cfg.ServiceName, cfg.Env, cfg.OTLPEndpoint)
		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	store, closeStore, err := openStore(initCtx, cfg, prom, log)

	if err != nil {
		log.Error("credential store unavailable", "err", err)
		os.Exit(1)
	}

	created, err := db.EnsureAdminUser(initCtx, store, cfg)

	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	if created {
		log.Info("bootstrap admin created", "email", cfg.AdminEmail)
	}

	readyChecks := map[string]handlers.PingFunc{
		"store": store.Ping,
	}
	// the limiter fails open, so redis never gates readiness
	optionalChecks := map[string]handlers.PingFunc{}

	var limiter middlewares.Limiter

	var rdb *redisclient.Client

	switch {
	case !cfg.RateLimitEnabled():
		log.Info("auth rate limiting disabled")
	case cfg.RedisAddr != "":
		rdb = redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if err := rdb.Ping(initCtx); err != nil {
			// the limiter fails open, so keep serving
			log.Warn("redis ping failed", "addr", cfg.RedisAddr, "err", err)
		}

		limiter = redisclient.NewProtectedLimiter(
			redisclient.NewFixedWindowLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow),
			redisclient.BreakerConfig{},
		)
		optionalChecks["redis"] = rdb.Ping
	default:
		limiter = middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	}

	tokens := auth.NewManager(cfg.JWTSecret)
	accounts := account.NewService(store, security.NewHasher(), tokens, prom)

	// set up routers with the wired dependencies
	router := httpx.NewRouter(httpx.Deps{
		Env:                cfg.Env,
		ServiceName:        cfg.ServiceName,
		Accounts:           accounts,
		Tokens:             tokens,
		Users:              store,
		Limiter:            limiter,
		Prom:               prom,
		Gatherer:           reg,
		ReadyChecks:        readyChecks,
		OptionalChecks:     optionalChecks,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		Tracing:            cfg.OTLPEndpoint != "",
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	router.Drain()

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		closeStore()

		if rdb != nil {
			_ = rdb.Close()
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
