package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-admission-api/api/swagger"
	"github.com/noah-isme/course-admission-api/internal/handler"
	internalmiddleware "github.com/noah-isme/course-admission-api/internal/middleware"
	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	"github.com/noah-isme/course-admission-api/internal/service"
	"github.com/noah-isme/course-admission-api/pkg/cache"
	"github.com/noah-isme/course-admission-api/pkg/config"
	"github.com/noah-isme/course-admission-api/pkg/database"
	"github.com/noah-isme/course-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-admission-api/pkg/middleware/requestid"
)

// @title Course Admission API
// @version 1.0.0
// @description Course enrollment and waitlist admission control
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := connectRedis(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	waitlistStore, err := newWaitlistStore(cfg.Waitlist.Store, db, redisClient)
	if err != nil {
		logr.Fatal("init waitlist store", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	var events service.EventPublisher
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		if cfg.Events.Enabled {
			events = repository.NewRedisEventPublisher(redisClient, cfg.Events.Channel)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled)

	locks := service.NewCourseLocks()
	if cfg.Waitlist.Store != config.WaitlistStoreMemory {
		locks = service.NewGuardedCourseLocks(repository.NewPostgresCourseGuard(db, cfg.Database.MaxOpenConns/2, logr))
	}
	admissionSvc := service.NewAdmissionService(
		repository.NewCourseRepository(db),
		repository.NewUserRepository(db),
		waitlistStore,
		locks,
		service.AdmissionOptions{Events: events, Metrics: metricsSvc, Cache: cacheSvc, Logger: logr},
	)
	waitlistSvc := service.NewWaitlistService(admissionSvc, waitlistStore, models.ParsePromotionPolicy(cfg.Waitlist.PromotionPolicy), logr)
	analyticsSvc := service.NewAnalyticsService(admissionSvc, waitlistSvc, cacheSvc, cfg.Analytics.CacheTTL, logr)
	exportSvc := service.NewExportService(admissionSvc, waitlistSvc, logr, nil, nil)

	dispatcher := service.NewPromotionDispatcher(waitlistSvc, service.PromotionConfig{
		Workers:    cfg.Promotion.Workers,
		MaxRetries: cfg.Promotion.Retries,
		RetryDelay: cfg.Promotion.RetryDelay,
	}, logr)
	var scheduler interface{ Schedule(courseID string) error }
	if cfg.Waitlist.AutoPromote {
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		scheduler = dispatcher
	}

	validate := validator.New()
	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/health", "/ready", "/metrics"))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Courses:     handler.NewCourseHandler(admissionSvc),
		Enrollments: handler.NewEnrollmentHandler(admissionSvc, scheduler, validate, logr),
		Waitlist:    handler.NewWaitlistHandler(waitlistSvc, validate, cfg.Waitlist.InactiveRetention),
		Analytics:   handler.NewAnalyticsHandler(analyticsSvc, exportSvc),
		Metrics:     handler.NewMetricsHandler(metricsSvc, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env,
			"waitlist_store", cfg.Waitlist.Store, "promotion_policy", waitlistSvc.Policy())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// connectRedis returns nil when no component needs redis or when an optional connection fails.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	required := cfg.Waitlist.Store == config.WaitlistStoreRedis
	if !required && !cfg.Analytics.Enabled && !cfg.Events.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		if required {
			logr.Fatal("connect redis", zap.Error(err))
		}
		logr.Warn("redis unavailable, caching and events disabled", zap.Error(err))
		return nil
	}
	return client
}

func newWaitlistStore(kind string, db *sqlx.DB, client *redis.Client) (service.WaitlistStore, error) {
	switch kind {
	case config.WaitlistStoreMemory:
		return repository.NewMemoryWaitlistStore(), nil
	case config.WaitlistStoreRedis:
		if client == nil {
			return nil, errors.New("redis waitlist store requires a redis connection")
		}
		return repository.NewRedisWaitlistStore(client), nil
	case config.WaitlistStorePostgres, "":
		return repository.NewPostgresWaitlistStore(db), nil
	default:
		return nil, fmt.Errorf("unknown waitlist store %q", kind)
	}
}
