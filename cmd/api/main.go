package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "freightdesk/api/swagger" // swagger docs
	"freightdesk/internal/cache"
	"freightdesk/internal/config"
	"freightdesk/internal/database"
	"freightdesk/internal/handler"
	"freightdesk/internal/middleware"
	"freightdesk/internal/repository"
	"freightdesk/internal/service"
	"freightdesk/internal/websocket"
	"freightdesk/internal/worker"
	"freightdesk/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Freight Desk Approvals API
// @version         1.0
// @description     Multi-stage approval workflows for void bills, contracts and user administration.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/config.yaml", "configs/.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database.DSN(), database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogSQL:          cfg.Database.LogSQL,
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Database connection failed", zap.Error(err))
	}
	zapLogger.Info("Connected to PostgreSQL successfully")

	var store cache.Cache = cache.NewMemory()
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "freightdesk:")
		if err != nil {
			zapLogger.Fatal("Redis connection failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer func() { _ = redisCache.Close() }()
		store = redisCache
		zapLogger.Info("Using redis cache", zap.String("addr", cfg.Redis.Addr))
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(zapLogger)
	go wsHub.Run()
	defer wsHub.Stop()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	configRepo := repository.NewSystemConfigRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	roleService := service.NewRoleService(txManager, roleRepo, zapLogger)
	userService := service.NewUserService(userRepo, service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	}, zapLogger)
	auditService := service.NewAuditService(auditRepo)
	configService := service.NewConfigService(txManager, configRepo, auditRepo, store, cfg.Workflow.SnapshotTTL, zapLogger)
	approvalService := service.NewApprovalService(txManager, approvalRepo, historyRepo, configService, store, zapLogger,
		service.ApprovalOptions{PendingCountTTL: cfg.Workflow.PendingCountTTL})

	if err := roleService.SeedDefaultRolesAndPermissions(ctx); err != nil {
		zapLogger.Fatal("Failed to seed roles", zap.Error(err))
	}
	if err := configService.SeedDefaults(ctx); err != nil {
		zapLogger.Fatal("Failed to seed approval routes", zap.Error(err))
	}
	if cfg.Seed.AdminEmail != "" {
		if err := userService.SeedAdmin(ctx, cfg.Seed.AdminUsername, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword); err != nil {
			zapLogger.Fatal("Failed to seed admin user", zap.Error(err))
		}
	}

	auth := middleware.NewAuth(cfg.JWT.Secret, roleService, cfg.Server.Mode == gin.ReleaseMode)
	notifier := service.NewNotifier(wsHub, store, zapLogger)
	effects := service.NewSubjectEffects(txManager, auditRepo, userRepo, roleRepo, auth, zapLogger)

	sweeper := worker.NewExpirySweeper(approvalService, notifier, effects, zapLogger, cfg.Workflow.SweepInterval, cfg.Workflow.SweepBatch)
	if err := sweeper.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start sweeper", zap.Error(err))
	}

	// Initialize Handlers
	approvalHandler := handler.NewApprovalHandler(approvalService, auth, notifier, effects, zapLogger)
	handlers := []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewUserHandler(userService, auth, zapLogger),
		approvalHandler,
		handler.NewVoidApplicationHandler(approvalHandler),
		handler.NewSystemConfigHandler(configService, auth, zapLogger),
		handler.NewAuditHandler(auditService, auth, zapLogger),
	}

	// Set up Gin Router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth)
	})

	for _, h := range handlers {
		h.RegisterRoutes(router.Group(""))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down")

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server shutdown failed", zap.Error(err))
	}
}
