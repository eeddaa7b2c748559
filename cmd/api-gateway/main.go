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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/school-ops-api/api/swagger"
	"github.com/noah-isme/school-ops-api/internal/handler"
	"github.com/noah-isme/school-ops-api/internal/middleware"
	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/repository"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/cache"
	"github.com/noah-isme/school-ops-api/pkg/config"
	"github.com/noah-isme/school-ops-api/pkg/database"
	"github.com/noah-isme/school-ops-api/pkg/jobs"
	"github.com/noah-isme/school-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-ops-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-ops-api/pkg/storage"
)

// @title School Ops API
// @version 1.0.0
// @description Multi-tenant school operations: enrollment applications, approval pipeline, progress board and roster exports
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	childRepo := repository.NewChildRepository(db)
	parentRepo := repository.NewParentRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	accessLogRepo := repository.NewAccessLogRepository(db)
	boardRepo := repository.NewBoardRepository(db)

	authService := service.NewAuthService(userRepo, accessLogRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
	})

	notificationService := service.NewNotificationService(service.NewLogSender(logr), jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)

	parentLinker := service.NewParentLinker(parentRepo)
	approvalService := service.NewApprovalService(applicationRepo, childRepo, parentLinker, relationshipRepo,
		accessLogRepo, notificationService, db, logr)
	applicationService := service.NewApplicationService(applicationRepo, validate, logr)
	boardService := service.NewBoardService(boardRepo, accessLogRepo, cacheService, db, validate, logr,
		service.BoardServiceConfig{CacheTTL: cfg.Board.CacheTTL})
	rosterService := service.NewRosterService(childRepo, parentRepo, relationshipRepo, logr)
	accessLogService := service.NewAccessLogService(accessLogRepo, logr)

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportService := service.NewExportService(childRepo, accessLogRepo, exportStorage, signer, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	applicationHandler := handler.NewApplicationHandler(applicationService, approvalService)
	boardHandler := handler.NewBoardHandler(boardService)
	rosterHandler := handler.NewRosterHandler(rosterService)
	accessLogHandler := handler.NewAccessLogHandler(accessLogService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	// Intake submission stays public; a session is picked up when present so
	// staff-submitted applications still record an actor in the audit trail.
	api.POST("/applications", middleware.OptionalJWT(authService),
		middleware.Audit(accessLogRepo, models.AccessActionApplicationSubmitted, models.AccessTargetApplication),
		applicationHandler.Submit)

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	applications := api.Group("/applications", middleware.JWT(authService))
	{
		applications.GET("", staff, applicationHandler.List)
		applications.GET("/:id", staff, applicationHandler.Get)
		applications.POST("/:id/approve", admins, applicationHandler.Approve)
		applications.POST("/:id/reject", admins, applicationHandler.Reject)
	}

	board := api.Group("/progress-board", middleware.JWT(authService))
	{
		board.GET("", staff, boardHandler.GetBoard)
		board.PATCH("/cards/:id/move", staff, boardHandler.MoveCard)
		board.POST("/cards/:id/lock", staff, boardHandler.LockCard)
		board.POST("/cards/:id/unlock", staff, boardHandler.UnlockCard)
	}

	roster := api.Group("", middleware.JWT(authService), staff,
		middleware.Audit(accessLogRepo, models.AccessActionRosterViewed, models.AccessTargetRoster))
	{
		roster.GET("/children", rosterHandler.ListChildren)
		roster.GET("/children/:id", rosterHandler.GetChild)
		roster.GET("/parents", rosterHandler.ListParents)
		roster.GET("/parents/:id", rosterHandler.GetParent)
	}

	api.GET("/access-logs", middleware.JWT(authService), admins, accessLogHandler.List)

	exports := api.Group("/exports")
	{
		exports.POST("/roster", middleware.JWT(authService), admins, exportHandler.GenerateRoster)
		exports.GET("/download",
			middleware.Audit(accessLogRepo, models.AccessActionExportDownloaded, models.AccessTargetExport),
			exportHandler.Download)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationService.Start(rootCtx)
	defer notificationService.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Exports.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if removed, err := exportStorage.CleanupOlderThan(cfg.Exports.SignedURLTTL); err != nil {
					logr.Sugar().Warnw("export cleanup failed", "error", err)
				} else if len(removed) > 0 {
					logr.Sugar().Infow("expired exports removed", "count", len(removed))
				}
			}
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
