// Package main is the entry point for the gateway.
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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zyeon-ai/realtime-gateway/internal/app"
	"github.com/zyeon-ai/realtime-gateway/internal/config"
	"github.com/zyeon-ai/realtime-gateway/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "2.0.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := newServeCommand()
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "ZYEON AI realtime assistant gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newCleanupCommand())
	return root
}

func newServeCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and push channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.ServerPort = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func newCleanupCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored turns older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if !cmd.Flags().Changed("days") {
				days = cfg.RetentionDays
			}
			return cleanup(cmd.Context(), cfg, days)
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "retention period in days")
	return cmd
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.ForEnvironment(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting gateway", zap.String("version", version), zap.String("environment", cfg.Environment))

	a, err := app.New(ctx, cfg, log, version)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.Router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.Orchestrator.RunVoice(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		if err := a.Close(shutdownCtx); err != nil {
			log.Error("failed to release resources", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

func cleanup(ctx context.Context, cfg *config.Config, days int) error {
	if days < 1 {
		return fmt.Errorf("days must be at least 1, got %d", days)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if !st.Available() {
		return errors.New("no store configured: set STORE_DSN")
	}

	deleted, err := st.CleanupOldConversations(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to clean up conversations: %w", err)
	}
	log.Info("cleanup complete", zap.Int("retention_days", days), zap.Int64("deleted", deleted))
	return nil
}
