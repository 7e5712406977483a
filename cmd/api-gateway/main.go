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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lexiread/lexiread-api/api/swagger"
	"github.com/lexiread/lexiread-api/internal/handler"
	"github.com/lexiread/lexiread-api/internal/metadata"
	"github.com/lexiread/lexiread-api/internal/middleware"
	"github.com/lexiread/lexiread-api/internal/models"
	"github.com/lexiread/lexiread-api/internal/repository"
	"github.com/lexiread/lexiread-api/internal/service"
	"github.com/lexiread/lexiread-api/internal/ws"
	"github.com/lexiread/lexiread-api/pkg/cache"
	"github.com/lexiread/lexiread-api/pkg/config"
	"github.com/lexiread/lexiread-api/pkg/database"
	"github.com/lexiread/lexiread-api/pkg/jobs"
	"github.com/lexiread/lexiread-api/pkg/logger"
	corsmiddleware "github.com/lexiread/lexiread-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lexiread/lexiread-api/pkg/middleware/requestid"
)

// @title LexiRead API
// @version 1.0.0
// @description Reading tracker for schools: book logs, verification, points and lexile progress
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	hub := ws.NewHub(logr, metricsSvc.SetWebsocketClients)
	go hub.Run()

	userRepo := repository.NewUserRepository(db)
	bookRepo := repository.NewBookRepository(db)
	pointRepo := repository.NewPointRepository(db)
	lexileRepo := repository.NewLexileRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lexiread-api",
		Audience:           []string{"lexiread"},
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	lexileSvc := service.NewLexileService(lexileRepo, userRepo, validate, logr)
	leaderboardSvc := service.NewLeaderboardService(pointRepo, cacheRepo, hub, cfg.Leaderboard.Size, cfg.Leaderboard.CacheTTL, logr)
	leaderboardSvc.SetMetrics(metricsSvc)
	pointSvc := service.NewPointService(pointRepo, userRepo, leaderboardSvc, userRepo, validate, logr)
	commentSvc := service.NewCommentService(commentRepo, bookRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, hub, validate, logr)

	enrichmentSvc := service.NewEnrichmentService(
		bookRepo,
		metadata.NewOpenLibraryClient("", cfg.Enrichment.CatalogTimeout),
		metadata.NewReadingLengthClient("", cfg.Enrichment.SearchTimeout),
		metadata.NewInstantAnswerClient("", cfg.Enrichment.SearchTimeout),
		metadata.NewWebSearchClient("", cfg.Enrichment.SearchTimeout),
		logr,
	)
	enrichmentSvc.SetMetrics(metricsSvc)

	var queue *jobs.Queue
	if cfg.Enrichment.Enabled {
		queue = jobs.NewQueue("enrichment", enrichmentSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Enrichment.Workers,
			BufferSize: cfg.Enrichment.QueueSize,
			Logger:     logr,
		})
		queue.Start(context.Background())
		enrichmentSvc.SetQueue(queue)
	}

	bookSvc := service.NewBookService(bookRepo, lexileSvc, enrichmentSvc, leaderboardSvc, userRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	bookHandler := handler.NewBookHandler(bookSvc)
	lexileHandler := handler.NewLexileHandler(lexileSvc)
	pointHandler := handler.NewPointHandler(pointSvc)
	commentHandler := handler.NewCommentHandler(commentSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardSvc)
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

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		staff := middleware.RequireRoles(models.RoleTeacher, models.RoleLibrarian)
		librarian := middleware.RequireRoles(models.RoleLibrarian)

		protected.GET("/users", staff, userHandler.List)
		protected.POST("/users", librarian, userHandler.Create)
		protected.GET("/users/:id", userHandler.Get)
		protected.PUT("/users/:id", librarian, userHandler.Update)
		protected.DELETE("/users/:id", librarian, userHandler.Delete)

		protected.POST("/books", bookHandler.Create)
		protected.GET("/books", bookHandler.List)
		protected.GET("/books/summary", bookHandler.Summary)
		protected.GET("/books/:id", bookHandler.Get)
		protected.PUT("/books/:id", bookHandler.Update)
		protected.DELETE("/books/:id", bookHandler.Delete)
		protected.PATCH("/books/:id/verification", librarian, bookHandler.Verify)

		protected.GET("/books/:id/comments", commentHandler.ListByBook)
		protected.POST("/books/:id/comments", staff, commentHandler.Create)
		protected.POST("/comments/:id/reactions", commentHandler.React)
		protected.DELETE("/comments/:id", commentHandler.Delete)

		protected.GET("/lexile/students/:id", middleware.RequireRolesOrSelf(models.RoleTeacher, models.RoleLibrarian), lexileHandler.GetStudent)
		protected.PUT("/lexile/students/:id", librarian, lexileHandler.Upsert)
		protected.POST("/lexile/bulk", librarian, lexileHandler.BulkUpload)
		protected.GET("/lexile/class", staff, lexileHandler.ClassOverview)
		protected.GET("/lexile/class/export", staff, lexileHandler.ExportClassOverview)

		protected.GET("/points/:id", pointHandler.Get)
		protected.PUT("/points/:id", librarian, pointHandler.Adjust)

		protected.GET("/leaderboard", leaderboardHandler.Top)

		protected.GET("/announcements", announcementHandler.List)
		protected.POST("/announcements", librarian, announcementHandler.Create)
		protected.DELETE("/announcements/:id", librarian, announcementHandler.Delete)
	}

	r.GET("/ws", ws.Handler(hub, logr))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	if queue != nil {
		queue.Stop()
	}
}
