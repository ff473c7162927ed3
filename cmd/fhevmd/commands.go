package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/layer-3/fhevm/adapters/tokenizer"
	"github.com/layer-3/fhevm/config"
	httpapi "github.com/layer-3/fhevm/transport/http"
)

const shutdownTimeout = 10 * time.Second

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fhevmd",
		Short:        "HTTP gateway to an FHE confidential-computation session",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.AddFlags(root.Flags())

	root.AddCommand(tokenCmd(), versionCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return config.Config{}, fmt.Errorf("couldn't configure flags: %w", err)
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("couldn't build config: %w", err)
	}
	return cfg, nil
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build gateway", zap.Error(err))
		return err
	}
	defer app.close()

	// A failed start is retried through the gateway, so it does not stop the daemon
	if err := app.client.Initialize(ctx, cfg.Session()); err != nil {
		logger.Warn("session not initialized at startup", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRouter(app.client, app.router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("dev", cfg.Dev))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("gateway stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return app.client.Reset(shutdownCtx)
}

func tokenCmd() *cobra.Command {
	var (
		subject  string
		audience string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the auth key",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			keyFile := v.GetString(config.AuthKeyFileKey)
			if keyFile == "" {
				return fmt.Errorf("%s is required to issue tokens", config.AuthKeyFileKey)
			}
			key, err := tokenizer.LoadKey(keyFile)
			if err != nil {
				return err
			}

			token, err := tokenizer.NewJWTTokenizer(key).Issue(audience, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String(config.ConfigFileKey, "", "Path to a config file")
	cmd.Flags().String(config.AuthKeyFileKey, "", "PEM EC key signing the token")
	cmd.Flags().StringVar(&subject, "subject", "operator", "Subject of the token")
	cmd.Flags().StringVar(&audience, "audience", tokenizer.AudienceGateway, "Audience of the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Lifetime of the token")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
