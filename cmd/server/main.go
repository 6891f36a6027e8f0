package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	commonmw "codearena/internal/common/http/middleware"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/judge"
	problemController "codearena/internal/problem/controller"
	problemRepo "codearena/internal/problem/repository"
	problemService "codearena/internal/problem/service"
	submissionController "codearena/internal/submission/controller"
	submissionRepo "codearena/internal/submission/repository"
	submissionService "codearena/internal/submission/service"
	userController "codearena/internal/user/controller"
	userMiddleware "codearena/internal/user/middleware"
	userRepo "codearena/internal/user/repository"
	userService "codearena/internal/user/service"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(context.Background(), "init minio failed", zap.Error(err))
		return
	}

	judgeClient, err := judge.NewClient(judge.ClientConfig{
		BaseURL:      appCfg.Judge.BaseURL,
		AuthToken:    appCfg.Judge.AuthToken,
		MaxBatchSize: appCfg.Judge.MaxBatchSize,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge client failed", zap.Error(err))
		return
	}
	runner, err := judge.NewRunner(judge.RunnerConfig{
		Judge:        judgeClient,
		PollInterval: appCfg.Judge.PollInterval,
		PollDeadline: appCfg.Judge.PollDeadline,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge runner failed", zap.Error(err))
		return
	}

	problems := problemRepo.NewProblemRepository(mysqlDB, redisCache)
	problemSvc, err := problemService.NewProblemService(problemService.ProblemServiceConfig{
		Repo:      problems,
		DB:        mysqlDB,
		Evaluator: runner,
	})
	if err != nil {
		logger.Error(context.Background(), "init problem service failed", zap.Error(err))
		return
	}

	statusRepo, err := submissionRepo.NewStatusRepository(redisCache)
	if err != nil {
		logger.Error(context.Background(), "init status repository failed", zap.Error(err))
		return
	}
	verdictEvents, err := submissionService.NewVerdictEventPublisher(mqClient, appCfg.Submit.VerdictTopic)
	if err != nil {
		logger.Error(context.Background(), "init verdict publisher failed", zap.Error(err))
		return
	}
	submitSvc, err := submissionService.NewSubmitService(submissionService.Config{
		SubmissionRepo:  submissionRepo.NewSubmissionRepository(mysqlDB),
		StatusRepo:      statusRepo,
		ProblemRepo:     problems,
		Storage:         objStorage,
		Cache:           redisCache,
		Events:          verdictEvents,
		Evaluator:       runner,
		SourceBucket:    appCfg.Submit.SourceBucket,
		SourceKeyPrefix: appCfg.Submit.SourceKeyPrefix,
		MaxCodeBytes:    appCfg.Submit.MaxCodeBytes,
		RateLimit:       appCfg.Submit.RateLimit,
	})
	if err != nil {
		logger.Error(context.Background(), "init submit service failed", zap.Error(err))
		return
	}

	statsRepo, err := submissionRepo.NewStatsRepository(redisCache)
	if err != nil {
		logger.Error(context.Background(), "init stats repository failed", zap.Error(err))
		return
	}
	statsSvc, err := submissionService.NewStatsService(submissionService.StatsServiceConfig{
		Queue: mqClient,
		Stats: statsRepo,
		Topic: appCfg.Submit.VerdictTopic,
	})
	if err != nil {
		logger.Error(context.Background(), "init stats service failed", zap.Error(err))
		return
	}
	if err := statsSvc.Subscribe(context.Background()); err != nil {
		logger.Error(context.Background(), "subscribe verdict events failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start message consumers failed", zap.Error(err))
		return
	}

	blocklist, err := userRepo.NewTokenBlocklistRepository(redisCache)
	if err != nil {
		logger.Error(context.Background(), "init token blocklist failed", zap.Error(err))
		return
	}
	authSvc, err := userService.NewAuthService(userService.AuthServiceConfig{
		DB:             mysqlDB,
		Users:          userRepo.NewUserRepository(mysqlDB),
		Blocklist:      blocklist,
		JWTSecret:      []byte(appCfg.Auth.JWTSecret),
		JWTIssuer:      appCfg.Auth.JWTIssuer,
		AccessTokenTTL: appCfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		logger.Error(context.Background(), "init auth service failed", zap.Error(err))
		return
	}

	router := buildRouter(authSvc, problemSvc, submitSvc, statsSvc)
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Int("languages", len(judge.Languages())))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildRouter(
	authSvc *userService.AuthService,
	problemSvc *problemService.ProblemService,
	submitSvc *submissionService.SubmitService,
	statsSvc *submissionService.StatsService,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContext())
	router.Use(requestLogger())

	authCtl := userController.NewAuthController(authSvc)
	problemCtl := problemController.NewProblemController(problemSvc)
	submissionCtl := submissionController.NewSubmissionController(submitSvc)
	statsCtl := submissionController.NewStatsController(statsSvc)

	requireAuth := userMiddleware.AuthMiddleware(authSvc)
	requireAdmin := userMiddleware.AuthMiddleware(authSvc, string(userRepo.UserRoleAdmin))

	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", authCtl.Register)
	auth.POST("/login", authCtl.Login)
	auth.POST("/logout", requireAuth, authCtl.Logout)
	auth.GET("/profile", requireAuth, authCtl.Profile)
	auth.DELETE("/profile", requireAuth, authCtl.DeleteAccount)

	problems := api.Group("/problems")
	problems.GET("", problemCtl.List)
	problems.GET("/:id", problemCtl.Get)
	problems.POST("", requireAdmin, problemCtl.Create)
	problems.PUT("/:id", requireAdmin, problemCtl.Update)
	problems.DELETE("/:id", requireAdmin, problemCtl.Delete)
	problems.GET("/:id/submissions", requireAuth, submissionCtl.History)
	problems.GET("/:id/stats", statsCtl.Get)

	submissions := api.Group("/submissions")
	submissions.POST("", requireAuth, submissionCtl.Submit)
	submissions.GET("/:id", requireAuth, submissionCtl.GetVerdict)
	submissions.GET("/:id/source", requireAuth, submissionCtl.GetSource)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
