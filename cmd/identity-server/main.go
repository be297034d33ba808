package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicops/identity/internal/config"
	"github.com/clinicops/identity/internal/domain/dedup"
	"github.com/clinicops/identity/internal/domain/identity"
	"github.com/clinicops/identity/internal/platform/auth"
	"github.com/clinicops/identity/internal/platform/db"
	"github.com/clinicops/identity/internal/platform/lock"
	"github.com/clinicops/identity/internal/platform/middleware"
	"github.com/clinicops/identity/internal/platform/websocket"
)

const mergeLockKey = "identity:dedup:commit"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "identity-server",
		Short:         "Patient identity resolution and duplicate merging",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(dedupCmd())
	root.AddCommand(matchCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the identity API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration and builds the logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg), nil
}

// backend bundles the storage components for the configured driver.
type backend struct {
	patients identity.PatientRepository
	store    dedup.Store
	health   echo.HandlerFunc
	close    func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return sqliteBackend(sqlDB), nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
		return &backend{
			patients: identity.NewPatientRepo(pool),
			store:    dedup.NewStore(pool),
			health:   db.HealthHandler(pool),
			close:    pool.Close,
		}, nil
	}
}

func sqliteBackend(sqlDB *sql.DB) *backend {
	return &backend{
		patients: identity.NewPatientRepoSQLite(sqlDB),
		store:    dedup.NewStoreSQLite(sqlDB),
		health:   db.SQLiteHealthHandler(sqlDB),
		close:    func() { sqlDB.Close() },
	}
}

// newLocker returns the Redis-backed merge lock when REDIS_URL is set, and an
// in-process lock otherwise.
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (dedup.Locker, func(), error) {
	if cfg.RedisURL == "" {
		return lock.NewLocal(), func() {}, nil
	}
	l, err := lock.NewRedis(ctx, cfg.RedisURL, mergeLockKey, cfg.DedupLockTTL, logger)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { l.Close() }, nil
}

// newDedupService wires the registry, merge lock and run options. When hub is
// non-nil every run's progress is published on websocket.TopicDedup.
func newDedupService(ctx context.Context, cfg *config.Config, store dedup.Store, logger zerolog.Logger, hub *websocket.Hub) (*dedup.Service, func(), error) {
	registry, err := dedup.LoadRegistry(cfg.DependentsFile)
	if err != nil {
		return nil, nil, err
	}
	locker, closeLock, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	opts := dedup.Options{
		Workers:      cfg.MergeWorkers,
		OpsPerSecond: cfg.MergeOpsPerSecond,
	}
	if hub != nil {
		opts.OnStart = func(total int) {
			hub.Publish(ctx, websocket.TopicDedup, "run.started", map[string]int{"clusters": total})
		}
		opts.OnCluster = func(cr dedup.ClusterReport) {
			if err := hub.Publish(ctx, websocket.TopicDedup, "cluster.done", cr); err != nil {
				logger.Warn().Err(err).Msg("publish merge progress")
			}
		}
	}
	svc := dedup.NewService(store, registry, locker, logger.With().Str("component", "dedup").Logger(), opts)
	return svc, closeLock, nil
}

func newEcho(cfg *config.Config, logger zerolog.Logger, b *backend, dedupSvc *dedup.Service, hub *websocket.Hub) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AdminJWTSecret),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", b.health)

	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rl))

	identitySvc := identity.NewService(b.patients, logger.With().Str("component", "identity").Logger())
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	dedup.NewHandler(dedupSvc).RegisterRoutes(apiV1)
	apiV1.GET("/admin/duplicates/events", websocket.NewHandler(hub).HandleConnect, auth.RequireRole(auth.RoleAdmin))

	return e
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.IsDev() {
		logger.Warn().Msg("ENV=development: unauthenticated requests are served as admin")
	}

	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer b.close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("connected to database")

	hub := websocket.NewHub(logger.With().Str("component", "websocket").Logger())
	dedupSvc, closeLock, err := newDedupService(ctx, cfg, b.store, logger, hub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up duplicate merging")
	}
	defer closeLock()

	e := newEcho(cfg, logger, b, dedupSvc, hub)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
