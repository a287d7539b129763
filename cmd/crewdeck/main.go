package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/retailops/crewdeck/pkg/apikey"
	"github.com/retailops/crewdeck/pkg/config"
	"github.com/retailops/crewdeck/pkg/keyguard"
	"github.com/retailops/crewdeck/pkg/middleware"
	"github.com/retailops/crewdeck/pkg/observability"
	"github.com/retailops/crewdeck/pkg/ownership"
	"github.com/retailops/crewdeck/pkg/principal"
	"github.com/retailops/crewdeck/pkg/repo"
	"github.com/retailops/crewdeck/pkg/scope"
	"github.com/retailops/crewdeck/pkg/tenancy"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	if err := repo.RunMigrations(ctx, db); err != nil {
		log.WithError(err).Error("failed to run migrations")
		os.Exit(1)
	}

	store := repo.New(db)

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	guard := keyguard.NewGuard(store)
	principals := principal.NewResolver(store, log, metrics)
	scopes := scope.NewResolver(store, guard, log, metrics)
	verifier := ownership.NewVerifier(store)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	limiter := middleware.NewKeyRateLimiter(redisClient, nil, "crewdeck")

	sweeper := apikey.NewSweeper(store, log, cfg.APIKeys.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Error("failed to start api key sweeper")
		os.Exit(1)
	}
	defer sweeper.Stop()

	auth := middleware.NewAuth(gatewayClaimsVerifier{}, principals, log, metrics)
	h := &handlers{repo: store, verifier: verifier, metrics: metrics}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	if metrics != nil {
		api.Use(observability.HTTPMetricsMiddleware(metrics))
	}
	api.Use(requestContext(log))
	api.Use(auth.Handler)
	api.Use(middleware.KeyRateLimit(limiter, log))

	overview := api.NewRoute().Subrouter()
	overview.Use(middleware.StoreContext(scopes, metrics, scope.ModeOptional))
	overview.HandleFunc("/overview", h.overview).Methods(http.MethodGet)

	sellers := api.NewRoute().Subrouter()
	sellers.Use(middleware.RequireScope(guard, metrics, tenancy.ScopeUsersRead))
	sellers.Use(middleware.StoreContext(scopes, metrics, scope.ModeRequired, scope.WithSellerAccess()))
	sellers.HandleFunc("/sellers/{seller_id}", h.getSeller).Methods(http.MethodGet)

	sellerWrites := api.NewRoute().Subrouter()
	sellerWrites.Use(middleware.RequireScope(guard, metrics, tenancy.ScopeUsersWrite))
	sellerWrites.Use(middleware.StoreContext(scopes, metrics, scope.ModeRequired))
	sellerWrites.HandleFunc("/stores/{store_id}/sellers", h.createSeller).Methods(http.MethodPost)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, metrics))
	if registry != nil {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		apiServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
