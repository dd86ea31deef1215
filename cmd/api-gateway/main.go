package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/geo-attendance-api/api/swagger"
	"github.com/noah-isme/geo-attendance-api/internal/handler"
	"github.com/noah-isme/geo-attendance-api/internal/middleware"
	"github.com/noah-isme/geo-attendance-api/internal/models"
	"github.com/noah-isme/geo-attendance-api/internal/repository"
	"github.com/noah-isme/geo-attendance-api/internal/scheduler"
	"github.com/noah-isme/geo-attendance-api/internal/service"
	"github.com/noah-isme/geo-attendance-api/internal/ws"
	"github.com/noah-isme/geo-attendance-api/pkg/cache"
	"github.com/noah-isme/geo-attendance-api/pkg/config"
	"github.com/noah-isme/geo-attendance-api/pkg/database"
	"github.com/noah-isme/geo-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/geo-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/geo-attendance-api/pkg/middleware/requestid"
)

// @title Geo Attendance API
// @version 1.0.0
// @description Geolocation-verified attendance session engine
// @BasePath /
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// Redis only backs the stats cache; the engine runs without it.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, stats caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	metrics := service.NewMetricsService()
	validate := validator.New()

	hub := ws.NewHub(logr)
	notifier := service.NewNotificationService(hub, cfg.Notifications, logr, metrics)
	notifier.Start(ctx)
	defer notifier.Stop()

	authSvc := service.NewAuthService(cfg.JWT.Secret)
	tokenSvc := service.NewTokenService(tokenRepo, service.TokenServiceConfig{
		Secret:         cfg.JWT.Secret,
		DefaultTTL:     cfg.Token.TTL,
		DefaultMaxUses: cfg.Token.MaxUses,
		QRCodeSize:     cfg.Token.QRCodeSize,
	}, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo,
		notifier, validate, logr, cfg.Attendance.LateThreshold)
	sessionSvc := service.NewSessionService(sessionRepo, enrollmentRepo, attendanceSvc,
		tokenSvc, notifier, validate, logr, redisClient, cfg.Attendance.StatsCacheTTL)

	autoEnd := scheduler.New(sessionRepo, sessionSvc, cfg.Scheduler.CheckInterval, logr, metrics)
	if cfg.Scheduler.Enabled {
		autoEnd.Start(ctx)
		defer autoEnd.Stop()
	}

	sessionHandler := handler.NewSessionHandler(sessionSvc, metrics)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, tokenSvc, sessionSvc, metrics)
	tokenHandler := handler.NewTokenHandler(tokenSvc, sessionSvc, metrics)
	notificationHandler := handler.NewNotificationHandler(notifier)
	var healthy func() bool
	if cfg.Scheduler.Enabled {
		healthy = autoEnd.Healthy
	}
	metricsHandler := handler.NewMetricsHandler(metrics, healthy)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	studentsOnly := middleware.RequireRoles(models.RoleStudent)
	adminsOnly := middleware.RequireRoles(models.RoleAdmin)

	sessions := api.Group("/sessions")
	{
		sessions.POST("", staff, sessionHandler.Create)
		sessions.GET("", sessionHandler.List)
		sessions.GET("/active", studentsOnly, sessionHandler.Active)
		sessions.GET("/stats", staff, sessionHandler.Stats)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.POST("/:id/end", staff, sessionHandler.End)
		sessions.POST("/:id/cancel", staff, sessionHandler.Cancel)
		sessions.GET("/:id/attendance", staff, attendanceHandler.Report)
		sessions.POST("/:id/token", staff, tokenHandler.Issue)
		sessions.POST("/:id/token/refresh", staff, tokenHandler.Refresh)
	}

	attendance := api.Group("/attendance")
	{
		attendance.POST("/mark", studentsOnly, attendanceHandler.MarkByLocation)
		attendance.POST("/scan", studentsOnly, attendanceHandler.MarkByToken)
		attendance.GET("/history", studentsOnly, attendanceHandler.History)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("/ws", ws.Handler(hub))
		webhooks := notifications.Group("/webhooks", adminsOnly)
		webhooks.POST("/session-started", notificationHandler.SessionStarted)
		webhooks.POST("/session-ended", notificationHandler.SessionEnded)
		webhooks.POST("/attendance-marked", notificationHandler.AttendanceMarked)
		webhooks.POST("/broadcast", notificationHandler.Broadcast)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
