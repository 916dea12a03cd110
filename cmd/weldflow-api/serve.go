package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"weldflow-api/internal/auth"
	"weldflow-api/internal/config"
	"weldflow-api/internal/database"
	"weldflow-api/internal/http/handler"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/ratelimit"
	"weldflow-api/internal/repo"
	"weldflow-api/internal/service"
	"weldflow-api/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// idempotencyTTL is how long a replayable response is kept.
const idempotencyTTL = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the WeldFlow API HTTP server with all middlewares and observability`,
	RunE:  runServe,
}

var skipMigrations bool

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.OTELServiceName, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info(ctx, "starting weldflow api",
		logger.Module("server"),
		logger.Action("start"),
		zap.String("version", telemetry.ServiceVersion),
		zap.String("app_env", cfg.AppEnv),
	)

	if !skipMigrations {
		log.Info(ctx, "running database migrations", logger.Module("database"), logger.Action("migrate"))
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Telemetry is strictly opt-in
	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled() {
		metrics = initTelemetry(ctx, cfg, log)
	} else {
		log.Info(ctx, "telemetry disabled (opt-in only or missing endpoint)", logger.Module("telemetry"), logger.Action("init"))
	}
	domainMetrics := telemetry.NewDomainMetrics(prometheus.DefaultRegisterer)

	// Connect to database
	pool, err := database.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg, log))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Info(ctx, "database connected", logger.Module("database"), logger.Action("connect"))

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info(ctx, "redis connected", logger.Module("redis"), logger.Action("connect"))

	resolver, err := buildTokenResolver(ctx, cfg, log)
	if err != nil {
		return err
	}

	// Repositories
	idempotencyRepo := repo.NewIdempotencyRepo(pool, idempotencyTTL)
	auditRepo := repo.NewAuditRepo(pool)
	userRepo := repo.NewUserRepository(pool)
	companyRepo := repo.NewCompanyRepository(pool)
	employeeRepo := repo.NewEmployeeRepository(pool)
	roleRepo := repo.NewRoleRepository(pool)
	recordRepo := repo.NewRecordRepository(pool)
	workflowRepo := repo.NewWorkflowRepository(pool)
	approvalRepo := repo.NewApprovalRepository(pool)

	// Services
	workspaceService := service.NewWorkspaceService(userRepo, companyRepo, employeeRepo, cfg.DefaultMemberTier, log)
	permissions := service.NewPermissionChecker(companyRepo, employeeRepo, roleRepo, log)
	quotaService := service.NewQuotaService(recordRepo, userRepo, companyRepo, domainMetrics, log)
	recordService := service.NewRecordService(recordRepo, approvalRepo, quotaService, permissions, auditRepo, domainMetrics, log)
	approvalService := service.NewApprovalService(approvalRepo, workflowRepo, recordRepo, permissions, auditRepo, domainMetrics, log)
	workflowService := service.NewWorkflowService(workflowRepo, roleRepo, permissions, auditRepo, log)
	enterpriseService := service.NewEnterpriseService(companyRepo, employeeRepo, roleRepo, userRepo, permissions, auditRepo, cfg.DefaultMemberTier, log)

	// Rate limiter
	var rateLimitCounter metric.Int64Counter
	if metrics != nil {
		rateLimitCounter = metrics.RateLimitRejections
	}
	rateLimiter := ratelimit.NewRedisRateLimiter(redisClient, rateLimitCounter)

	r := buildRouter(RouterDeps{
		Cfg:              cfg,
		Log:              log,
		Resolver:         resolver,
		Workspaces:       workspaceService,
		IdempotencyStore: idempotencyRepo,
		RateLimiter:      rateLimiter,
		Metrics:          metrics,
		Readiness: []ReadinessCheck{
			{Name: "database", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		WorkspaceHandler:  handler.NewWorkspaceHandler(workspaceService, quotaService),
		RecordHandler:     handler.NewRecordHandler(recordService, approvalService),
		ApprovalHandler:   handler.NewApprovalHandler(approvalService),
		WorkflowHandler:   handler.NewWorkflowHandler(workflowService),
		EnterpriseHandler: handler.NewEnterpriseHandler(enterpriseService),
		DebugHandler:      handler.NewDebugHandler(cfg.AppEnv, pool, quotaService, permissions),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", logger.Module("server"), logger.Action("listen"), zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutdown signal received, starting graceful shutdown", logger.Module("server"), logger.Action("shutdown"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown error", logger.Module("server"), logger.Action("shutdown"), zap.Error(err))
	}

	log.Info(shutdownCtx, "shutdown complete", logger.Module("server"), logger.Action("shutdown"))
	return nil
}

// initTelemetry starts the OTLP trace and metric pipelines. Failures are
// logged and the server keeps running without them. Pipelines are flushed
// when ctx is canceled.
func poolOptions(cfg *config.Config, log *logger.Logger) database.PoolOptions {
	return database.PoolOptions{
		MaxConns:           cfg.DBMaxConns,
		MinConns:           cfg.DBMinConns,
		SlowQueryThreshold: cfg.SlowQueryThreshold(),
		Log:                log,
	}
}

func initTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) *telemetry.Metrics {
	fields := []zap.Field{logger.Module("telemetry"), logger.Action("init"), zap.String("endpoint", cfg.OTELExporterEndpoint)}

	provider, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:   cfg.OTELServiceName,
		Environment:   cfg.AppEnv,
		Endpoint:      cfg.OTELExporterEndpoint,
		SamplingRatio: cfg.OTELSamplingRatio,
	})
	if err != nil {
		log.Warn(ctx, "failed to initialize telemetry, continuing without it", append(fields, zap.Error(err))...)
		return nil
	}
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "failed to shutdown telemetry", append(fields, zap.Error(err))...)
		}
	})

	log.Info(ctx, "telemetry initialized", fields...)
	return provider.Metrics
}

// buildTokenResolver registers an HS256 validator for every allowed issuer and
// an optional RS256 validator for the SSO issuer.
func buildTokenResolver(ctx context.Context, cfg *config.Config, log *logger.Logger) (*auth.KeyResolver, error) {
	keyStore := auth.NewKeyStore()

	// JWT_HS256_SECRET must be Base64-encoded
	secretBytes, err := base64.StdEncoding.DecodeString(cfg.JWTHS256Secret)
	if err != nil {
		return nil, fmt.Errorf("JWT_HS256_SECRET must be valid Base64-encoded: %w", err)
	}
	if len(secretBytes) < 32 {
		return nil, fmt.Errorf("JWT_HS256_SECRET decoded bytes must be at least 32 bytes (256 bits), got %d bytes", len(secretBytes))
	}

	hsIssuers := cfg.GetAllowedIssuers()
	allowedIssuers := slices.Clone(hsIssuers)

	rsIssuer := ""
	if cfg.JWTPublicKeyRS256 != "" {
		rsIssuer = cfg.JWTRS256Issuer
		if err := keyStore.LoadRS256Key(rsIssuer, "v1", cfg.JWTPublicKeyRS256); err != nil {
			return nil, fmt.Errorf("failed to load RS256 public key: %w", err)
		}
		if !slices.Contains(allowedIssuers, rsIssuer) {
			allowedIssuers = append(allowedIssuers, rsIssuer)
		}
	}

	clockSkew := time.Duration(cfg.JWTClockSkewSeconds) * time.Second
	resolver := auth.NewKeyResolver(allowedIssuers, []string{cfg.JWTAudience})

	for _, issuer := range hsIssuers {
		if issuer == rsIssuer {
			continue
		}
		keyStore.LoadHS256Key(issuer, "v1", secretBytes)
		resolver.RegisterValidator(issuer, auth.NewHS256Validator(keyStore, issuer, clockSkew))
	}
	if rsIssuer != "" {
		resolver.RegisterValidator(rsIssuer, auth.NewRS256Validator(keyStore, rsIssuer, clockSkew))
	}

	log.Info(ctx, "JWT authentication initialized",
		logger.Module("auth"),
		logger.Action("init"),
		zap.Strings("allowed_issuers", allowedIssuers),
		zap.Bool("rs256", rsIssuer != ""),
		zap.Int("clock_skew_seconds", cfg.JWTClockSkewSeconds),
	)
	return resolver, nil
}
