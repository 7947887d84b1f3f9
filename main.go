package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"currencyapi/config"
	"currencyapi/internal/cache"
	"currencyapi/internal/handler"
	"currencyapi/internal/middleware"
	"currencyapi/internal/model"
	"currencyapi/internal/service"
	"currencyapi/internal/util"
	"currencyapi/web"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type services struct {
	cache     cache.Store
	publisher service.RatePublisher
	updater   *service.RateUpdater
}

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	runJob := flag.String("run", "", "run one job and exit: fetch, apply or migrate")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := util.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	if *runJob != "" {
		if err := runOnce(cfg, *runJob); err != nil {
			slog.Error("job failed", "job", *runJob, "error", err)
			closeLog()
			os.Exit(1)
		}
		return
	}

	if err := model.InitDB(apiPool(cfg)); err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	if err := model.PrepareSchema(model.GetDB(), cfg.Database.Driver, cfg.Database.AutoMigrate); err != nil {
		slog.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	svc, err := initServices(cfg)
	if err != nil {
		slog.Error("failed to init services", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.Instrument())

	if err := web.LoadTemplates(r, template.FuncMap{}); err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}
	if err := web.SetupStatic(r); err != nil {
		slog.Error("failed to setup static files", "error", err)
		os.Exit(1)
	}
	if web.IsEmbedded() {
		slog.Info("serving embedded docs")
	} else {
		slog.Info("serving docs from the filesystem")
	}

	registerRoutes(r, cfg, svc)

	if svc.updater != nil {
		svc.updater.Start(cfg.Scheduler.RunOnStart)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("currency api starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	shutdownServices(ctx, svc)
	if err := model.CloseDB(model.GetDB()); err != nil {
		slog.Warn("close database", "error", err)
	}
	slog.Info("server exited")
}

// setupLogger installs a JSON slog handler writing to stdout and, when
// configured, a rotated file
func setupLogger(cfg config.LogConfig) func() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closer := func() {}
	if cfg.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = func() { _ = file.Close() }
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
	return closer
}

func apiPool(cfg *config.Config) model.DBConfig {
	pool := model.APIPool(
		cfg.Database.Driver,
		cfg.Database.DSN(),
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Minute,
	)
	pool.LogLevel = cfg.Log.DBLogLevel
	return pool
}

// jobPool opens a fresh pool for each job run; the reconciler closes it
func jobPool(cfg *config.Config) func(ctx context.Context) (*gorm.DB, error) {
	return func(ctx context.Context) (*gorm.DB, error) {
		pool := model.JobPool(cfg.Database.Driver, cfg.Database.DSN(), cfg.Database.JobMaxOpenConns)
		pool.LogLevel = cfg.Log.DBLogLevel
		return model.OpenDB(pool)
	}
}

func newRateUpdater(cfg *config.Config, publisher service.RatePublisher) (*service.RateUpdater, error) {
	feed, err := service.NewFeedClient(cfg.Feed)
	if err != nil {
		return nil, err
	}
	reconciler := service.NewReconciler(jobPool(cfg), publisher)
	return service.NewRateUpdater(feed, reconciler, cfg.Feed.SnapshotPath), nil
}

// runOnce executes a single job without starting the server
func runOnce(cfg *config.Config, job string) error {
	ctx := context.Background()

	switch job {
	case "migrate":
		db, err := model.OpenDB(apiPool(cfg))
		if err != nil {
			return err
		}
		defer model.CloseDB(db)
		return model.PrepareSchema(db, cfg.Database.Driver, cfg.Database.AutoMigrate)
	case service.JobFetch, service.JobApply:
		publisher := service.NewRatePublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()

		updater, err := newRateUpdater(cfg, publisher)
		if err != nil {
			return err
		}
		var st service.JobStatus
		if job == service.JobFetch {
			st, err = updater.RunFetch(ctx)
		} else {
			st, err = updater.RunApply(ctx)
		}
		if err != nil {
			return err
		}
		slog.Info("job finished", "job", job, "status", st.Status, "duration", st.Duration)
		return nil
	default:
		return fmt.Errorf("unknown job %q, expected fetch, apply or migrate", job)
	}
}

func initServices(cfg *config.Config) (*services, error) {
	store, err := cache.New(cfg.Cache.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	svc := &services{
		cache:     store,
		publisher: service.NewRatePublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic),
	}

	if cfg.Scheduler.Enabled {
		updater, err := newRateUpdater(cfg, svc.publisher)
		if err != nil {
			return nil, fmt.Errorf("feed: %w", err)
		}
		if err := updater.Schedule(cfg.Scheduler.FetchSpec, cfg.Scheduler.ApplySpec); err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
		svc.updater = updater
	}
	return svc, nil
}

func shutdownServices(ctx context.Context, svc *services) {
	if svc.updater != nil {
		svc.updater.Stop(ctx)
	}
	if err := svc.publisher.Close(); err != nil {
		slog.Warn("close publisher", "error", err)
	}
	if err := svc.cache.Close(); err != nil {
		slog.Warn("close cache", "error", err)
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config, svc *services) {
	r.Use(middleware.CORSWithConfig(cfg.Security.CORSAllowOrigins))
	if cfg.Security.RateLimitAPI > 0 {
		r.Use(middleware.RateLimit(util.NewRateLimiter(cfg.Security.RateLimitAPI, cfg.Security.RateLimitAPIBurst)))
	}

	cacheBackend := "memory"
	if cfg.Cache.URL != "" {
		cacheBackend = "redis"
	}

	routes := handler.Routes{
		Cache:        middleware.NewResponseCache(svc.cache, cfg.Cache.Prefix),
		CacheBackend: cacheBackend,
		ListTTL:      time.Duration(cfg.Cache.ListTTL) * time.Second,
		DetailTTL:    time.Duration(cfg.Cache.DetailTTL) * time.Second,
		Timeout:      time.Duration(cfg.Server.RequestTimeout) * time.Second,
		JWT:          cfg.JWT,
	}
	// an untyped nil keeps the job routes unregistered
	if svc.updater != nil {
		routes.Jobs = svc.updater
	}
	handler.RegisterRoutes(r, routes)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/docs", func(c *gin.Context) {
		c.HTML(http.StatusOK, "docs.html", gin.H{
			"Title":   "Currency API",
			"SpecURL": "/docs/openapi.yaml",
		})
	})
}
