package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainapsis/oko-tss/internal/ksnode/handler"
	"github.com/chainapsis/oko-tss/internal/ksnode/identity"
	"github.com/chainapsis/oko-tss/internal/ksnode/service"
	"github.com/chainapsis/oko-tss/internal/ksnode/store"
	"github.com/chainapsis/oko-tss/pkg/config"
	"github.com/chainapsis/oko-tss/pkg/encryption"
	"github.com/chainapsis/oko-tss/pkg/logger"
)

const sweepPeriod = time.Minute

// NewStartCmd creates the start command.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a key-share node",
		Long:  "Start a key-share node with the specified configuration",
		RunE:  runNode,
	}

	cmd.Flags().StringP("name", "n", "", "Node name (required)")
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().StringP("listen", "l", ":8200", "Listen address")
	cmd.Flags().BoolP("decrypt-private-key", "d", false, "Decrypt node private key")
	cmd.Flags().StringP("password-file", "f", "", "Path to file containing the share store password")
	cmd.Flags().StringP("identity-password-file", "k", "", "Path to file containing password for decrypting the .age encrypted node private key")
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runNode(cmd *cobra.Command, _ []string) error {
	nodeName, _ := cmd.Flags().GetString("name")
	configPath, _ := cmd.Flags().GetString("config")
	listen, _ := cmd.Flags().GetString("listen")
	decryptPrivateKey, _ := cmd.Flags().GetBool("decrypt-private-key")
	passwordFile, _ := cmd.Flags().GetString("password-file")
	agePasswordFile, _ := cmd.Flags().GetString("identity-password-file")
	debug, _ := cmd.Flags().GetBool("debug")

	config.SetEnvConfigPath(configPath)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Environment, debug)

	if passwordFile != "" {
		if err := loadPasswordFromFile(passwordFile); err != nil {
			return fmt.Errorf("load share store password: %w", err)
		}
		cfg = config.GetConfig()
	}

	st, err := store.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("open share store: %w", err)
	}
	defer st.Close()

	gateway, err := encryption.NewGateway(cfg.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("init encryption gateway: %w", err)
	}

	signer, err := identity.NewSigner(cfg.IdentityDir, nodeName, decryptPrivateKey, agePasswordFile)
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}

	keyshareSvc := service.NewKeyShareService(st, gateway)
	commitSvc := service.NewCommitRevealService(st, signer, config.CommitTTL())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	commitSvc.StartSweeper(ctx, sweepPeriod)

	router := handler.NewRouter(
		handler.NewKeyShareHandler(keyshareSvc),
		handler.NewCommitRevealHandler(commitSvc),
		cfg.NodeAuthToken,
		config.IsProduction(),
	)

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

	logger.Info("Key-share node is running", "name", nodeName, "listen", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("Key-share node stopped", "name", nodeName)
	return nil
}

func loadPasswordFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	password := strings.TrimSpace(string(data))
	if password == "" {
		return fmt.Errorf("password file %s is empty", path)
	}
	config.SetDBPassword(password)
	return nil
}
