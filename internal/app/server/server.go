package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"hradmin/internal/domain/access"
	"hradmin/internal/domain/audit"
	"hradmin/internal/domain/auth"
	"hradmin/internal/domain/core"
	"hradmin/internal/domain/leave"
	"hradmin/internal/domain/masterdata"
	"hradmin/internal/domain/modules"
	"hradmin/internal/domain/organization"
	"hradmin/internal/domain/recruitment"
	"hradmin/internal/domain/roles"
	"hradmin/internal/platform/config"
	"hradmin/internal/platform/db"
	"hradmin/internal/platform/jobs"
	"hradmin/internal/platform/metrics"
	"hradmin/internal/transport/http/api"
	audithandler "hradmin/internal/transport/http/handlers/audit"
	authhandler "hradmin/internal/transport/http/handlers/auth"
	corehandler "hradmin/internal/transport/http/handlers/core"
	leavehandler "hradmin/internal/transport/http/handlers/leave"
	masterdatahandler "hradmin/internal/transport/http/handlers/masterdata"
	orghandler "hradmin/internal/transport/http/handlers/org"
	platformhandler "hradmin/internal/transport/http/handlers/platform"
	recruitmenthandler "hradmin/internal/transport/http/handlers/recruitment"
	roleshandler "hradmin/internal/transport/http/handlers/roles"
	"hradmin/internal/transport/http/middleware"
	"hradmin/migrations"
)

type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

// Deps is everything the router needs. Stores may be nil in tests that only
// exercise the gating layers.
type Deps struct {
	Config      config.Config
	Authz       *access.Service
	Authn       authhandler.Authenticator
	Sessions    middleware.SessionChecker
	Orgs        *organization.Store
	Roles       *roles.Service
	Core        *core.Store
	MasterData  *masterdata.Service
	Recruitment *recruitment.Service
	Leave       *leave.Store
	Audit       *audit.Service
	Idempotency middleware.IdempotencyStore
	Metrics     *metrics.Collector
	Ready       func(ctx context.Context) error
}

// New connects to the database, prepares the schema and wires every
// component. Close releases what New acquired.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	registry := modules.Default()
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg, registry); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	collector := metrics.New()
	orgStore := organization.NewStore(pool)
	authz := access.NewService(
		access.NewPGStore(pool, orgStore),
		registry,
		access.WithProfileCache(access.NewProfileCache(cfg.PermissionCacheSize, cfg.PermissionCacheTTL)),
		access.WithObserver(collector),
	)
	authSvc := auth.NewService(auth.NewStore(pool), cfg.JWTSecret, cfg.TokenTTL)

	idempotency := middleware.NewIdempotencyStore(pool)

	scheduler := jobs.New(jobs.NewPGRunStore(pool), collector)
	if err := scheduler.ScheduleExpirySweep(ctx, cfg.ExpirySweepSchedule, orgStore, authz.Cache()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}
	if err := scheduler.ScheduleIdempotencyCleanup(ctx, cfg.ExpirySweepSchedule, idempotency, cfg.IdempotencyTTL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schedule idempotency cleanup: %w", err)
	}

	router := NewRouter(Deps{
		Config:      cfg,
		Authz:       authz,
		Authn:       authSvc,
		Sessions:    authSvc,
		Orgs:        orgStore,
		Roles:       roles.NewService(roles.NewStore(pool), authz),
		Core:        core.NewStore(pool),
		MasterData:  masterdata.NewService(masterdata.NewStore(pool)),
		Recruitment: recruitment.NewService(recruitment.NewStore(pool)),
		Leave:       leave.NewStore(pool),
		Audit:       audit.New(pool),
		Idempotency: idempotency,
		Metrics:     collector,
		Ready:       pool.Ping,
	})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: scheduler, Metrics: collector}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	authz := d.Authz
	orgGuard := middleware.OrgGuard(authz)
	platformGuard := middleware.PlatformGuard(authz)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if d.Metrics != nil {
		router.Use(middleware.Metrics(d.Metrics))
	}
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, d.Sessions))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled && d.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", authhandler.NewHandler(d.Authn, authz, d.Orgs).RegisterRoutes)

		r.Route("/platform", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Idempotency(d.Idempotency))
			platform := &platformhandler.Handler{
				Orgs:     d.Orgs,
				Registry: authz.Registry(),
				Cache:    authz.Cache(),
				Audit:    d.Audit,
				Guard:    platformGuard,
			}
			platform.RegisterRoutes(r)
			r.Route("/roles", roleshandler.NewHandler(d.Roles, d.Audit, platformGuard, modules.PlatformRoles).RegisterRoutes)
			r.Route("/audit", audithandler.NewHandler(d.Audit, platformGuard, modules.Organizations).RegisterRoutes)
		})

		r.Route("/{"+middleware.OrgSlugParam+"}", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.TenantContext(authz))
			r.Use(middleware.Idempotency(d.Idempotency))

			org := &orghandler.Handler{
				Orgs:     d.Orgs,
				Profiles: authz,
				Summary:  d.Core,
				Events:   d.Audit,
				Audit:    d.Audit,
				Guard:    orgGuard,
			}
			org.RegisterRoutes(r)
			corehandler.NewHandler(d.Core, d.Audit, orgGuard).RegisterRoutes(r)
			r.Route("/roles", roleshandler.NewHandler(d.Roles, d.Audit, orgGuard, modules.Roles).RegisterRoutes)
			r.Route("/master-data", masterdatahandler.NewHandler(d.MasterData, d.Audit, orgGuard).RegisterRoutes)
			r.Route("/recruitment", recruitmenthandler.NewHandler(d.Recruitment, d.Audit, orgGuard).RegisterRoutes)
			r.Route("/leave", leavehandler.NewHandler(d.Leave, d.Audit, orgGuard).RegisterRoutes)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, "not_found", "route not found", middleware.GetRequestID(r.Context()))
	})

	return router
}

// Run serves until SIGINT or SIGTERM, then drains requests and background
// jobs.
func Run() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.Jobs.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "err", err)
	}
	app.Jobs.Stop(shutdownCtx)
	return nil
}
