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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/learnxy-api/api/swagger"
	"github.com/noah-isme/learnxy-api/internal/handler"
	"github.com/noah-isme/learnxy-api/internal/repository"
	"github.com/noah-isme/learnxy-api/internal/router"
	"github.com/noah-isme/learnxy-api/internal/service"
	"github.com/noah-isme/learnxy-api/pkg/cache"
	"github.com/noah-isme/learnxy-api/pkg/config"
	"github.com/noah-isme/learnxy-api/pkg/database"
	"github.com/noah-isme/learnxy-api/pkg/jobs"
	"github.com/noah-isme/learnxy-api/pkg/logger"
	"github.com/noah-isme/learnxy-api/pkg/mailer"
	"github.com/noah-isme/learnxy-api/pkg/otp"
)

// @title Learnxy API
// @version 1.0.0
// @description School accounts, subjects, class schedules and timetables.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.Migrations.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Fatal("migrations failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, caching and rate limiting disabled", zap.Error(err))
	} else {
		redisClient = client
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TimetableTTL, logr, cfg.Cache.Enabled)

	mailSvc := service.NewMailService(mailer.New(cfg.Mail, logr), cfg.Mail.SiteName, jobs.QueueConfig{
		Workers:    cfg.Mail.Workers,
		MaxRetries: cfg.Mail.Retries,
		RetryDelay: 2 * time.Second,
	}, logr)
	mailSvc.Start(ctx)
	defer mailSvc.Stop()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	slotRepo := repository.NewTimeSlotRepository(db)
	scheduleRepo := repository.NewClassScheduleRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)

	accountSvc := service.NewAccountService(userRepo, profileRepo, db, otp.NewGenerator(), mailSvc, metricsSvc, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "learnxy-api",
	}, accountSvc)
	userSvc := service.NewUserService(userRepo, profileRepo, db, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, cacheSvc, validate, logr)
	slotSvc := service.NewTimeSlotService(slotRepo, scheduleRepo, db, cacheSvc, validate, logr)
	scheduleSvc := service.NewClassScheduleService(service.ClassScheduleDeps{
		Repo:      scheduleRepo,
		Slots:     slotRepo,
		Subjects:  subjectRepo,
		Users:     userRepo,
		Profiles:  profileRepo,
		Tx:        db,
		Cache:     cacheSvc,
		Validator: validate,
		Logger:    logr,
	})
	timetableSvc := service.NewTimetableService(service.TimetableDeps{
		Repo:      timetableRepo,
		Schedules: scheduleRepo,
		Profiles:  profileRepo,
		Tx:        db,
		Cache:     cacheSvc,
		CacheTTL:  cfg.Cache.TimetableTTL,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	})

	engine := router.New(router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc, accountSvc, userSvc),
		Users:         handler.NewUserHandler(userSvc),
		Subjects:      handler.NewSubjectHandler(subjectSvc),
		TimeSlots:     handler.NewTimeSlotHandler(slotSvc),
		ClassSchedule: handler.NewClassScheduleHandler(scheduleSvc),
		Timetables:    handler.NewTimetableHandler(timetableSvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc, db),
	}, router.Options{
		APIPrefix:       cfg.APIPrefix,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		EnableDocs:      cfg.Env != config.EnvProduction,
		Auth:            authSvc,
		Metrics:         metricsSvc,
		Audit:           userRepo,
		RateCounter:     cacheRepo,
		VerifyRateLimit: cfg.Token.VerifyRateLimit,
		VerifyWindow:    cfg.Token.VerifyRateWindow,
		Logger:          logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}
