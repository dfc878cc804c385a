package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opencoe/exam-paper-api/internal/contentstore"
	"github.com/opencoe/exam-paper-api/internal/crypto"
	"github.com/opencoe/exam-paper-api/internal/handler"
	"github.com/opencoe/exam-paper-api/internal/ledger"
	"github.com/opencoe/exam-paper-api/internal/middleware"
	"github.com/opencoe/exam-paper-api/internal/models"
	"github.com/opencoe/exam-paper-api/internal/repository"
	"github.com/opencoe/exam-paper-api/internal/service"
	"github.com/opencoe/exam-paper-api/pkg/cache"
	"github.com/opencoe/exam-paper-api/pkg/config"
	"github.com/opencoe/exam-paper-api/pkg/database"
	"github.com/opencoe/exam-paper-api/pkg/export"
	"github.com/opencoe/exam-paper-api/pkg/jobs"
	"github.com/opencoe/exam-paper-api/pkg/logger"
	corsmiddleware "github.com/opencoe/exam-paper-api/pkg/middleware/cors"
	reqidmiddleware "github.com/opencoe/exam-paper-api/pkg/middleware/requestid"
	"github.com/opencoe/exam-paper-api/pkg/storage"
)

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
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	encryptedStore, err := storage.NewLocalStorage(cfg.Storage.EncryptedDir)
	if err != nil {
		logr.Fatal("failed to init encrypted storage", zap.Error(err))
	}
	finalizedStore, err := storage.NewLocalStorage(cfg.Storage.FinalizedDir)
	if err != nil {
		logr.Fatal("failed to init finalized storage", zap.Error(err))
	}

	contentStore := contentstore.NewIPFSStore(cfg.ContentStore)

	metricsService := service.NewMetricsService()

	recorder, err := ledger.NewRecorder(cfg.Ledger, metricsService)
	if err != nil {
		logr.Fatal("failed to init ledger recorder", zap.Error(err))
	}
	defer recorder.Close()

	userRepo := repository.NewUserRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	paperRepo := repository.NewPaperRepository(db)

	cleanup := jobs.NewQueue("staged-artifacts", func(ctx context.Context, task jobs.Task) error {
		for _, path := range task.Paths {
			if err := encryptedStore.Delete(path); err != nil {
				return err
			}
		}
		return requestRepo.ClearEncryptedPath(ctx, task.ID)
	}, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
	})
	cleanup.Start(context.Background())
	defer cleanup.Stop()

	validate := validator.New()
	cipher := crypto.NewDocumentCipher()
	wrapper := crypto.NewKeyWrapper()

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})
	requestService := service.NewRequestService(requestRepo, subjectRepo, userRepo, encryptedStore, cipher, wrapper, validate, logr)
	finalizeService := service.NewFinalizeService(requestRepo, paperRepo, userRepo, contentStore, recorder, encryptedStore, finalizedStore, wrapper, cipher, cleanup, logr)
	releaseService := service.NewReleaseService(paperRepo, recorder, finalizedStore, cfg.Release.Window, logr)
	auditService := service.NewAuditService(recorder, redisClient, export.NewPDFExporter(), cfg.Audit.CacheTTL, logr)

	authHandler := handler.NewAuthHandler(authService)
	requestHandler := handler.NewRequestHandler(requestService)
	coeHandler := handler.NewCOEHandler(requestService, finalizeService, metricsService)
	releaseHandler := handler.NewReleaseHandler(releaseService, metricsService)
	auditHandler := handler.NewAuditHandler(auditService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	authed.GET("/auth/me", authHandler.Me)

	setter := authed.Group("/requests")
	setter.Use(middleware.RequireRoles(models.RoleTeacher))
	setter.GET("", requestHandler.List)
	setter.POST("/:id/accept", requestHandler.Accept)
	setter.POST("/:id/paper", requestHandler.UploadPaper)

	coe := authed.Group("/coe")
	coe.Use(middleware.RequireRoles(models.RoleCOE))
	coe.GET("/setters", coeHandler.EligibleSetters)
	coe.POST("/requests", coeHandler.CreateAssignment)
	coe.GET("/requests", coeHandler.Overview)
	coe.POST("/requests/:id/finalize", coeHandler.Finalize)
	coe.GET("/audit", auditHandler.History)
	coe.GET("/audit/export", auditHandler.Export)

	papers := authed.Group("/papers")
	papers.Use(middleware.RequireRoles(models.RoleSuperintendent))
	papers.GET("", releaseHandler.List)
	papers.GET("/:id/download", releaseHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
