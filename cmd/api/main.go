package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/garasku/garasku-api/api/swagger"
	"github.com/garasku/garasku-api/internal/handler"
	"github.com/garasku/garasku-api/internal/middleware"
	"github.com/garasku/garasku-api/internal/models"
	"github.com/garasku/garasku-api/internal/repository"
	"github.com/garasku/garasku-api/internal/service"
	"github.com/garasku/garasku-api/pkg/cache"
	"github.com/garasku/garasku-api/pkg/config"
	"github.com/garasku/garasku-api/pkg/database"
	"github.com/garasku/garasku-api/pkg/export"
	"github.com/garasku/garasku-api/pkg/logger"
	corsmiddleware "github.com/garasku/garasku-api/pkg/middleware/cors"
	reqidmiddleware "github.com/garasku/garasku-api/pkg/middleware/requestid"
	"github.com/garasku/garasku-api/pkg/storage"
)

// @title Garasku API
// @version 1.0.0
// @description Vehicle service marketplace API
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and notifications disabled", "error", err)
		redisClient = nil
	}

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare uploads directory", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	bookingRepo := repository.NewBookingRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	auditSvc := service.NewAuditService(auditRepo, logr)
	metricsSvc := service.NewMetricsService()

	var bookingCache *service.BookingCache
	if cfg.Cache.Enabled && redisClient != nil {
		bookingCache = service.NewBookingCache(redisClient, cfg.Cache.BookingTTL, logr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier service.StatusNotifier
	if cfg.Notifications.Enabled && redisClient != nil {
		redisNotifier := service.NewRedisNotifier(redisClient, cfg.Notifications, logr)
		redisNotifier.Start(ctx)
		defer redisNotifier.Stop()
		notifier = redisNotifier
	}
	notifier = withTransitionMetrics(notifier, metricsSvc)

	validate := validator.New()
	authSvc := service.NewAuthService(userRepo, validate, auditSvc, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "garasku-api",
	})

	bookingSvc := service.NewBookingService(bookingRepo, userRepo, bookingCache, auditSvc, logr)
	approvalSvc := service.NewApprovalService(approvalRepo, bookingRepo, userRepo, bookingCache, auditSvc, logr)
	bookingSvc.SetApprovalFiler(approvalSvc)
	workflowSvc := service.NewWorkflowService(bookingRepo, auditSvc, notifier, logr)
	userSvc := service.NewUserService(userRepo, approvalSvc, auditSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc, workflowSvc, export.NewInvoicePDFExporter())
	approvalHandler := handler.NewApprovalHandler(approvalSvc, metricsSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	userHandler := handler.NewUserHandler(userSvc)
	uploadHandler := handler.NewUploadHandler(uploadStore, signer, cfg.Uploads)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authRequired := middleware.JWT(authSvc)

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authRequired, authHandler.Logout)
			auth.PUT("/password", authRequired, authHandler.ChangePassword)
			auth.GET("/me", authRequired, authHandler.Me)
		}

		bookings := api.Group("/bookings", authRequired)
		{
			bookings.POST("", middleware.RequireRoles(models.RoleCustomer), bookingHandler.Create)
			bookings.GET("", bookingHandler.List)
			bookings.GET("/:id", bookingHandler.Get)
			bookings.GET("/:id/progress", bookingHandler.Progress)
			bookings.GET("/:id/invoice", bookingHandler.Invoice)
			bookings.PATCH("/:id/status",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				middleware.Audit(auditSvc, "BOOKING_STATUS_REQUEST", "booking"),
				bookingHandler.UpdateStatus)
			bookings.POST("/:id/assign",
				middleware.RequireRoles(models.RoleAdmin),
				middleware.Audit(auditSvc, "BOOKING_ASSIGN_REQUEST", "booking"),
				bookingHandler.Assign)
			bookings.POST("/:id/delay",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				middleware.Audit(auditSvc, "BOOKING_DELAY_REQUEST", "booking"),
				bookingHandler.Delay)
			bookings.POST("/:id/resume",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				middleware.Audit(auditSvc, "BOOKING_RESUME_REQUEST", "booking"),
				bookingHandler.Resume)
			bookings.PUT("/:id/inspection",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				bookingHandler.SubmitInspection)
			bookings.PUT("/:id/qc",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				bookingHandler.UpdateQC)
			bookings.PUT("/:id/billing",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				bookingHandler.UpsertBilling)
			bookings.POST("/:id/media",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				bookingHandler.AddServiceMedia)
		}

		approvals := api.Group("/approvals", authRequired)
		{
			approvals.POST("",
				middleware.RequireRoles(models.RoleMerchant, models.RoleStaff, models.RoleAdmin),
				approvalHandler.Create)
			approvals.GET("", approvalHandler.List)
			approvals.GET("/:id", approvalHandler.Get)
			approvals.POST("/:id/resolve", approvalHandler.Resolve)
		}

		users := api.Group("/users", authRequired)
		{
			users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
			users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
			users.POST("",
				middleware.RequireRoles(models.RoleAdmin),
				middleware.Audit(auditSvc, "USER_CREATE_REQUEST", "user"),
				userHandler.Create)
			users.PATCH("/:id",
				middleware.RBAC(string(models.RoleAdmin), "SELF"),
				middleware.Audit(auditSvc, "USER_UPDATE_REQUEST", "user"),
				userHandler.Update)
			users.POST("/staff", middleware.RequireRoles(models.RoleMerchant), userHandler.RegisterStaff)
		}

		uploads := api.Group("/uploads")
		{
			uploads.POST("", authRequired, uploadHandler.Upload)
			uploads.GET("/file", uploadHandler.Download)
		}

		api.GET("/audit", authRequired, middleware.RequireRoles(models.RoleAdmin), auditHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// withTransitionMetrics fans status change events out to Prometheus before
// the optional push notifier.
func withTransitionMetrics(next service.StatusNotifier, metrics *service.MetricsService) service.StatusNotifier {
	return service.StatusNotifierFunc(func(bookingID string, from, to models.BookingStatus) {
		metrics.ObserveStatusTransition(from, to)
		if next != nil {
			next.NotifyStatusChange(bookingID, from, to)
		}
	})
}
