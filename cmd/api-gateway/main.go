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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/bibleschool-api/api/swagger"
	"github.com/noah-isme/bibleschool-api/internal/handler"
	"github.com/noah-isme/bibleschool-api/internal/middleware"
	"github.com/noah-isme/bibleschool-api/internal/models"
	"github.com/noah-isme/bibleschool-api/internal/repository"
	"github.com/noah-isme/bibleschool-api/internal/service"
	"github.com/noah-isme/bibleschool-api/pkg/cache"
	"github.com/noah-isme/bibleschool-api/pkg/config"
	"github.com/noah-isme/bibleschool-api/pkg/database"
	"github.com/noah-isme/bibleschool-api/pkg/export"
	"github.com/noah-isme/bibleschool-api/pkg/jobs"
	"github.com/noah-isme/bibleschool-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bibleschool-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bibleschool-api/pkg/middleware/requestid"
	"github.com/noah-isme/bibleschool-api/pkg/storage"
)

// @title Bible School API
// @version 1.0.0
// @description Academic progression workflow for the church training program
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(db.DB, logr)
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, program cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	programRepo := repository.NewProgramRepository(db)
	programs := repository.NewProgramCache(redisClient, programRepo, cfg.Academy.ProgramCacheTTL, logr)
	if cfg.Database.AutoMigrate {
		if err := programs.Invalidate(ctx); err != nil {
			logr.Warn("failed to invalidate program cache", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()

	auditQueue, auditRecorder := buildAudit(cfg, db, logr)
	auditQueue.Start(ctx)
	defer auditQueue.Stop()

	objectStore, credentials, err := buildCredentials(cfg, logr)
	if err != nil {
		return err
	}

	ladder, err := service.NewLevelLadder(cfg.Academy.ProgramLevels)
	if err != nil {
		return fmt.Errorf("program levels: %w", err)
	}
	rules := service.NewPromotionRules(ladder, cfg.Academy.MinAttendance)

	workflow := buildWorkflow(cfg, db, programs, rules, credentials, auditRecorder, metrics, logr)

	rolePrivileges, err := service.RolePrivilegesFromConfig(cfg.JWT.RolePrivileges)
	if err != nil {
		return fmt.Errorf("role privileges: %w", err)
	}
	authService := service.NewAuthService(service.NewRolePrivilegeResolver(rolePrivileges), logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	router.Use(corsmiddleware.New(cfg.CORS))
	router.Use(middleware.Metrics(metrics, "/health", "/ready", "/metrics"))

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	router.GET("/health", metricsHandler.Health)
	router.GET("/ready", metricsHandler.Ready)
	router.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group(cfg.APIPrefix)
	api.GET("/certificates/:token", handler.NewCertificateHandler(objectStore, logr).Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authService))
	secured.GET("/auth/me", handler.NewAuthHandler().Me)
	secured.GET("/programs", middleware.RequirePrivilege(models.PrivilegeStandard), handler.NewProgramHandler(programRepo, rules.Ladder()).List)
	secured.POST("/commands", handler.NewCommandHandler(workflow, metrics, logr).Dispatch)

	return serve(ctx, router, cfg, logr)
}

func buildAudit(cfg *config.Config, db *sqlx.DB, logr *zap.Logger) (*jobs.Queue, *service.AuditRecorder) {
	recorder := service.NewAuditRecorder(repository.NewAuditRepository(db), logr)
	queue := jobs.NewQueue("audit-retry", recorder.HandleRetry, jobs.QueueConfig{
		Workers:     cfg.Audit.RetryWorkers,
		MaxRetries:  cfg.Audit.RetryMax,
		RetryDelay:  cfg.Audit.RetryDelay,
		OnExhausted: recorder.DropExhausted,
		Logger:      logr,
	})
	recorder.UseRetryQueue(queue)
	return queue, recorder
}

func buildCredentials(cfg *config.Config, logr *zap.Logger) (*storage.ObjectStore, *service.CredentialService, error) {
	files, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	objectStore := storage.NewObjectStore(files, signer, cfg.Certificates.PublicBaseURL)

	signatories := make([]export.Signatory, 0, len(cfg.Certificates.Signatories))
	for _, s := range cfg.Certificates.Signatories {
		signatories = append(signatories, export.Signatory{Title: s.Title, Name: s.Name})
	}
	renderer := export.NewCertificateRenderer(export.WithCompression(true))
	return objectStore, service.NewCredentialService(renderer, objectStore, signatories, logr), nil
}

func buildWorkflow(
	cfg *config.Config,
	db *sqlx.DB,
	programs *repository.ProgramCache,
	rules *service.PromotionRules,
	credentials *service.CredentialService,
	audit *service.AuditRecorder,
	metrics *service.MetricsService,
	logr *zap.Logger,
) *service.WorkflowService {
	stores := service.WorkflowStores{
		Programs:     programs,
		Applications: repository.NewApplicationRepository(db),
		Students:     repository.NewStudentRepository(db),
		Enrollments:  repository.NewEnrollmentRepository(db),
		Records:      repository.NewRecordRepository(db),
		Progression:  repository.NewProgressionRepository(db),
		Members:      repository.NewMemberRepository(db),
	}

	return service.NewWorkflowService(db, stores, rules, credentials, audit, metrics, validator.New(), logr, service.WorkflowConfig{
		ExamPassMark:  cfg.Academy.ExamPassMark,
		TerminalRoles: service.NewTerminalCredentialPolicy(cfg.Academy.TerminalRoleByProgram),
	})
}

func serve(ctx context.Context, router http.Handler, cfg *config.Config, logr *zap.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.Strings("program_levels", cfg.Academy.ProgramLevels),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
