package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"workflowguard/backend/internal/api"
	"workflowguard/backend/internal/auth"
	"workflowguard/backend/internal/backup"
	"workflowguard/backend/internal/config"
	"workflowguard/backend/internal/logging"
	"workflowguard/backend/internal/mcp"
	"workflowguard/backend/internal/repository"
	"workflowguard/backend/internal/services"
)

type serveOptions struct {
	Migrate bool
}

func newServeCommand(configPath *string) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the MCP endpoint and the backup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runServe(cfg, logger, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func runServe(cfg *config.Config, logger *logging.Logger, opts *serveOptions) error {
	ctx := context.Background()

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"okta_domain", cfg.Auth.OktaDomain,
		"okta_client_id", cfg.Auth.ClientID,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
		"backup_enabled", cfg.Backup.Enabled,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client ID matches the backend client ID; PKCE login from /docs will fail if the backend app requires a secret")
	}

	logger.Info("Starting WorkflowGuard")

	if opts.Migrate && cfg.DB.Driver == "postgres" {
		if err := migrateDatabase(cfg, logger); err != nil {
			return err
		}
	}

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	// Initialize service layer
	audit := services.NewAuditRecorder(repo, services.SystemClock, logger)
	workflows := services.NewWorkflowService(repo, audit, services.SystemClock, logger)
	versions := services.NewVersionService(repo, audit, services.SystemClock, logger)
	compliance := services.NewComplianceService(workflows, versions, audit, services.SystemClock, services.ComplianceOptions{
		StaleBackupDays: cfg.Compliance.StaleBackupDays,
		TargetScore:     cfg.Compliance.TargetScore,
	})
	stats := services.NewStatsService(repo, newBillingClient(cfg), services.SystemClock, cfg.Stats.RecentActivityWindow, logger)
	source := services.NewHubSpotClient(cfg.HubSpot.BaseURL, cfg.HubSpot.AccessToken, cfg.HubSpot.PortalID, cfg.HubSpot.Timeout)
	webhooks := services.NewWebhookIngestor(repo, workflows, versions, source, logger)

	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, repo, logger.Named("auth"))
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	if authz.Bypassed() {
		logger.Warn("Authentication bypass is enabled; every request acts as the dev account", "email", auth.DevEmail)
	}

	var verifier *api.WebhookVerifier
	if cfg.HubSpot.ClientSecret != "" {
		verifier = api.NewWebhookVerifier(cfg.HubSpot.ClientSecret, cfg.Server.PublicURL, services.SystemClock)
	} else {
		logger.Warn("hubspot.client_secret is not set; HubSpot webhooks will be rejected")
	}

	handler := api.NewHandler(api.Deps{
		Repo:            repo,
		Workflows:       workflows,
		Versions:        versions,
		Audit:           audit,
		Compliance:      compliance,
		Stats:           stats,
		Webhooks:        webhooks,
		WebhookVerifier: verifier,
		Logger:          logger,
	})
	e := api.NewRouter(handler, api.RouterConfig{
		Auth:            echo.WrapMiddleware(authz.RequireAuth),
		OktaDomain:      cfg.Auth.OktaDomain,
		SwaggerClientID: cfg.Auth.SwaggerClientID,
		Logger:          logger,
	})

	// Register auth handlers
	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(mcp.Deps{
		Workflows:  workflows,
		Versions:   versions,
		Compliance: compliance,
		Stats:      stats,
	})
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(authz.RequireAuth(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	logger.Info("MCP protocol handlers mounted")

	var scheduler *backup.Scheduler
	if cfg.Backup.Enabled {
		job := backup.NewJob(repo, versions, source, logger)
		scheduler, err = backup.NewScheduler(job, cfg.Backup.Schedule, logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start backup scheduler: %w", err)
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr, "public_url", cfg.Server.PublicURL)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("Server close error", "error", err)
		}
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("Backup scheduler did not stop cleanly", "error", err)
		}
	}

	if serveErr == nil {
		logger.Info("Server stopped gracefully")
	}
	return serveErr
}

// openRepository connects the configured store. The returned func releases it.
func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, func(), error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("Using the in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	logger.Info("Database connected", "host", cfg.DB.Host, "name", cfg.DB.Name)
	return repository.NewPostgresStore(pool), pool.Close, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.DB.MaxConns > 0 {
		poolConfig.MaxConns = cfg.DB.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// newBillingClient prefers the billing service when one is configured and
// falls back to the static plan catalog.
func newBillingClient(cfg *config.Config) services.BillingClient {
	if cfg.Billing.URL != "" {
		return services.NewHTTPBillingClient(cfg.Billing.URL, cfg.HubSpot.Timeout)
	}
	return services.NewPlanCatalog(cfg.Billing.Plans, cfg.Billing.DefaultPlan)
}
