package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-outpass-api/api/swagger"
	"github.com/noah-isme/campus-outpass-api/internal/handler"
	"github.com/noah-isme/campus-outpass-api/internal/middleware"
	"github.com/noah-isme/campus-outpass-api/internal/models"
	"github.com/noah-isme/campus-outpass-api/internal/repository"
	"github.com/noah-isme/campus-outpass-api/internal/service"
	"github.com/noah-isme/campus-outpass-api/pkg/cache"
	"github.com/noah-isme/campus-outpass-api/pkg/config"
	"github.com/noah-isme/campus-outpass-api/pkg/database"
	"github.com/noah-isme/campus-outpass-api/pkg/export"
	"github.com/noah-isme/campus-outpass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-outpass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-outpass-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-outpass-api/pkg/token"
)

// @title Campus Outpass API
// @version 1.0.0
// @description Outing-pass approval workflow: student request, guardian consent, faculty authorization, gate scans
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache and live feed", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outingRepo := repository.NewOutingRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	stream := repository.NewOutingStream(redisClient, logr)

	metrics := service.NewMetricsService()
	issuer := token.NewIssuer(cfg.Outing.TokenTTL)

	authService := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	outingService := service.NewOutingService(outingRepo, userRepo, stream, cacheRepo, issuer, nil, metrics, logr, service.OutingServiceConfig{
		PublicBaseURL:     cfg.Outing.PublicBaseURL,
		DashboardCacheTTL: cfg.Outing.DashboardCacheTTL,
	})
	guardianService := service.NewGuardianService(outingRepo, userRepo, stream, cacheRepo, metrics, logr)
	facultyService := service.NewFacultyService(outingRepo, userRepo, stream, cacheRepo, issuer, metrics, logr)
	scanService := service.NewScanService(outingRepo, userRepo, stream, cacheRepo, metrics, logr)

	sweeper := service.NewTokenSweeper(outingRepo, cfg.Outing.SweepInterval, logr)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	var streamHub *service.StreamService
	if redisClient != nil {
		streamHub = service.NewStreamService(stream, logr)
		if err := streamHub.Start(ctx); err != nil {
			logr.Sugar().Warnw("live feed disabled", "error", err)
			streamHub = nil
		}
	}

	authHandler := handler.NewAuthHandler(authService)
	outingHandler := handler.NewOutingHandler(outingService, export.NewPassRenderer())
	guardianHandler := handler.NewGuardianHandler(guardianService)
	facultyHandler := handler.NewFacultyHandler(facultyService)
	scanHandler := handler.NewScanHandler(scanService)
	streamHandler := handler.NewStreamHandler(streamHub)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Guardian approval surface: mounted at the root so distributed links
	// resolve directly; no JWT, the link token is the credential.
	guardian := r.Group("/guardian")
	guardian.GET("/approve/:token", guardianHandler.Resolve)
	guardian.POST("/approve/:token", guardianHandler.Decide)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", middleware.JWT(authService), authHandler.Me)

	outings := api.Group("/outings", middleware.JWT(authService))
	outings.POST("", middleware.RequireRoles(models.RoleStudent), outingHandler.Create)
	outings.GET("", outingHandler.List)
	outings.GET("/active", middleware.RequireRoles(models.RoleStudent), outingHandler.Active)
	outings.GET("/dashboard", middleware.RequireStaff(), outingHandler.Dashboard)
	outings.GET("/stream", streamHandler.Events)
	outings.GET("/:id", outingHandler.Get)
	outings.DELETE("/:id", middleware.RequireRoles(models.RoleStudent), outingHandler.Cancel)
	outings.POST("/:id/decision", middleware.RequireStaff(), facultyHandler.Decide)
	outings.GET("/:id/qr.png", outingHandler.QRImage)
	outings.GET("/:id/pass.pdf", outingHandler.PassPDF)

	gate := api.Group("/gate", middleware.JWT(authService))
	gate.POST("/scans",
		middleware.RequireRoles(models.RoleGate, models.RoleAdmin, models.RoleWarden, models.RoleFaculty),
		middleware.Audit(userRepo, models.AuditActionGateScan, "gate"),
		scanHandler.Record)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
