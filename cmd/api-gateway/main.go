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

	_ "github.com/noah-isme/rec-workflow-api/api/swagger"
	"github.com/noah-isme/rec-workflow-api/internal/handler"
	"github.com/noah-isme/rec-workflow-api/internal/middleware"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/internal/repository"
	"github.com/noah-isme/rec-workflow-api/internal/service"
	"github.com/noah-isme/rec-workflow-api/pkg/cache"
	"github.com/noah-isme/rec-workflow-api/pkg/config"
	"github.com/noah-isme/rec-workflow-api/pkg/database"
	"github.com/noah-isme/rec-workflow-api/pkg/jobs"
	"github.com/noah-isme/rec-workflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/rec-workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/rec-workflow-api/pkg/middleware/requestid"
	"github.com/noah-isme/rec-workflow-api/pkg/storage"
)

// @title REC Workflow API
// @version 1.0.0
// @description Research ethics committee submission workflow service
// @BasePath /
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, reviewer pool cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	blobs, err := storage.NewBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		logr.Fatal("failed to init blob store", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	revisionRepo := repository.NewRevisionRepository(db)
	draftRepo := repository.NewDraftRepository(db)

	locks := service.NewSubmissionLocks()

	authService := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "rec-workflow-api",
	})
	metricsService := service.NewMetricsService()

	consolidationService := service.NewConsolidationService(documentRepo, blobs, signer, cfg.Consolidation.RetainOldBlobs, logr)
	verificationService := service.NewVerificationService(documentRepo, submissionRepo, consolidationService, userRepo, locks, logr)
	poolService := service.NewReviewerPoolService(userRepo, redisClient, cfg.Review.PoolCacheTTL, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, submissionRepo, poolService, userRepo, locks, cfg.Review, logr)
	reviewService := service.NewReviewService(reviewRepo, assignmentRepo, submissionRepo, userRepo, locks, cfg.Review, logr)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, reviewRepo, revisionRepo, userRepo, locks, cfg.Review, logr)
	revisionService := service.NewRevisionService(revisionRepo, submissionRepo, documentRepo, blobs, userRepo, locks, cfg.Storage.MaxFileSizeBytes, logr)
	draftService := service.NewDraftService(draftRepo, submissionRepo, documentRepo, blobs, db, userRepo, cfg.Storage, cfg.Review, logr)
	documentService := service.NewDocumentService(documentRepo, submissionRepo, assignmentRepo, blobs, signer, "/files", logr)

	queue := jobs.NewQueue("consolidation", consolidationService.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Consolidation.WorkerConcurrency,
		MaxRetries: cfg.Consolidation.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})

	authHandler := handler.NewAuthHandler(authService)
	draftHandler := handler.NewDraftHandler(draftService, cfg.Storage.MaxFileSizeBytes)
	submissionHandler := handler.NewSubmissionHandler(submissionService)
	verificationHandler := handler.NewVerificationHandler(verificationService, queue)
	reviewHandler := handler.NewReviewHandler(assignmentService, reviewService, poolService)
	revisionHandler := handler.NewRevisionHandler(revisionService, cfg.Storage.MaxFileSizeBytes)
	documentHandler := handler.NewDocumentHandler(documentService)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Signed downloads carry their own authorization in the token.
	r.GET("/files/:token",
		middleware.Audit(userRepo, "download", "document"),
		documentHandler.Download)

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

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	drafts := authed.Group("/drafts")
	drafts.Use(middleware.RequireRoles(models.RoleResearcher, models.RoleAdmin))
	{
		drafts.POST("", draftHandler.Create)
		drafts.GET("", draftHandler.List)
		drafts.GET("/:id", draftHandler.Get)
		drafts.PUT("/:id/steps", draftHandler.UpdateStep)
		drafts.POST("/:id/submit", draftHandler.Submit)
	}

	submissions := authed.Group("/submissions")
	{
		staff := middleware.RequireRoles(models.RoleStaff, models.RoleSecretariat, models.RoleAdmin)
		secretariat := middleware.RequireRoles(models.RoleSecretariat, models.RoleAdmin)

		submissions.GET("", submissionHandler.List)
		submissions.GET("/track/:code", submissionHandler.Track)
		submissions.GET("/:id", submissionHandler.Get)
		submissions.GET("/:id/history", submissionHandler.History)
		submissions.GET("/:id/documents", documentHandler.List)

		submissions.POST("/:id/verification/complete", staff, verificationHandler.Complete)
		submissions.POST("/:id/classify", secretariat, submissionHandler.Classify)
		submissions.POST("/:id/decision", secretariat, submissionHandler.Decide)
		submissions.POST("/:id/consolidate", secretariat, verificationHandler.Reconsolidate)

		submissions.POST("/:id/reviewers", secretariat, reviewHandler.Assign)
		submissions.GET("/:id/reviewers", staff, reviewHandler.ListAssignments)

		submissions.POST("/:id/revisions", secretariat, revisionHandler.Request)
		submissions.POST("/:id/resubmit", middleware.RequireRoles(models.RoleResearcher, models.RoleAdmin), revisionHandler.Resubmit)

		submissions.GET("/:id/reviews", middleware.RequireRoles(models.RoleReviewer, models.RoleSecretariat, models.RoleAdmin), reviewHandler.ListReviews)
		submissions.GET("/:id/reviews/progress", reviewHandler.Progress)
		submissions.POST("/:id/reviews", middleware.RequireRoles(models.RoleReviewer), reviewHandler.SubmitReview)
	}

	documents := authed.Group("/documents")
	{
		staff := middleware.RequireRoles(models.RoleStaff, models.RoleSecretariat, models.RoleAdmin)

		documents.GET("/:id/download-url", documentHandler.DownloadURL)
		documents.POST("/:id/verify", staff, verificationHandler.Verify)
		documents.POST("/:id/verify/undo", staff, verificationHandler.Undo)
	}

	authed.GET("/reviewers/pool", middleware.RequireRoles(models.RoleSecretariat, models.RoleAdmin), reviewHandler.Pool)
	authed.GET("/assignments", middleware.RequireRoles(models.RoleReviewer), reviewHandler.MyAssignments)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
