package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainapsis/oko-tss/internal/orchestrator/handler"
	"github.com/chainapsis/oko-tss/internal/orchestrator/registry"
	"github.com/chainapsis/oko-tss/internal/orchestrator/service"
	"github.com/chainapsis/oko-tss/internal/orchestrator/tssstore"
	"github.com/chainapsis/oko-tss/pkg/audit"
	"github.com/chainapsis/oko-tss/pkg/auth"
	"github.com/chainapsis/oko-tss/pkg/config"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/messaging"
	"github.com/chainapsis/oko-tss/pkg/oauth"
	"github.com/chainapsis/oko-tss/pkg/quorum"
)

// NewStartCmd creates the start command.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator",
		RunE:  runOrchestrator,
	}

	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().StringP("listen", "l", ":8100", "Listen address")
	cmd.Flags().Bool("debug", false, "Enable debug logging")

	return cmd
}

func runOrchestrator(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	listen, _ := cmd.Flags().GetString("listen")
	debug, _ := cmd.Flags().GetBool("debug")

	config.SetEnvConfigPath(configPath)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Environment, debug)

	if cfg.Postgres == nil {
		return fmt.Errorf("orchestrator requires a postgres configuration")
	}

	reg, err := registry.NewGormRegistry(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	sessions := tssstore.NewGormStore(reg.DB())

	gateway, err := encryption.NewGateway(cfg.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("init encryption gateway: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, config.JWTExpiry())
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	nodeAPI := quorum.NewHTTPNodeAPI(config.NodeTimeout(), cfg.NodeRetryAttempts, cfg.NodeAuthToken)
	client := quorum.NewClient(nodeAPI)

	auditPub, closeAudit, err := buildAuditPublisher(cfg)
	if err != nil {
		return fmt.Errorf("init audit publisher: %w", err)
	}
	defer closeAudit()

	verifier := buildVerifier(cfg)

	keygen := service.NewKeygenService(reg, sessions, gateway, client, tokens, auditPub, cfg.SSSThreshold)
	presign := service.NewPresignService(reg, sessions, gateway)
	users := service.NewUserService(reg, tokens, verifier, cfg.SSSThreshold)
	reshares := service.NewReshareService(reg, sessions, client, cfg.SSSThreshold)
	admin := service.NewNodeAdminService(reg, auditPub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthPeriod := time.Duration(cfg.HealthCheckPeriodSeconds) * time.Second
	service.NewHealthChecker(reg, config.NodeTimeout(), healthPeriod).Start(ctx)

	router := handler.NewRouter(handler.RouterDeps{
		Users:      handler.NewUserHandler(users, reshares),
		TSS:        handler.NewTSSHandler(keygen, presign),
		Nodes:      handler.NewNodeHandler(admin),
		Tokens:     tokens,
		Verifier:   verifier,
		AdminToken: cfg.AdminToken,
		Production: config.IsProduction(),
	})

	srv := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Warn("Shutdown signal received, draining...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", err)
		}
	}()

	logger.Info("Orchestrator is running", "listen", listen, "threshold", cfg.SSSThreshold)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("Orchestrator stopped")
	return nil
}

// buildAuditPublisher returns a NATS-backed publisher when NATS is configured
// and a no-op otherwise. Audit delivery is an optional collaborator: the
// orchestrator runs without it.
func buildAuditPublisher(cfg *config.Config) (audit.Publisher, func(), error) {
	if cfg.NATs == nil {
		return audit.NoopPublisher{}, func() {}, nil
	}

	nc, err := messaging.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	qm, err := messaging.NewQueueManager(messaging.AuditStreamName, []string{messaging.AuditSubjectWildcard}, nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create audit stream: %w", err)
	}

	return audit.NewNATSPublisher(qm.NewPublisherQueue()), nc.Close, nil
}

func buildVerifier(cfg *config.Config) oauth.Verifier {
	verifiers := make(map[oauth.AuthType]oauth.Verifier)
	if cfg.OAuth != nil && cfg.OAuth.GoogleClientID != "" {
		verifiers[oauth.AuthTypeGoogle] = oauth.NewGoogleVerifier(cfg.OAuth.GoogleClientID)
	}
	if len(verifiers) == 0 {
		logger.Warn("No identity providers configured; oauth-protected endpoints will reject all tokens")
	}
	return oauth.NewMultiVerifier(verifiers)
}
