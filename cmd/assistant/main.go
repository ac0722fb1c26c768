package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astro-web3/ai-virtual-assistant/internal/config"
	httptransport "github.com/astro-web3/ai-virtual-assistant/internal/transport/http"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/otel"
	"github.com/spf13/cobra"
)

const shutdownTimeoutSeconds = 10

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "assistant",
		Short:             "AI virtual assistant backend",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config file (defaults to ./config/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and run the startup sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			return serve(config.MustLoad(path))
		},
	})

	return rootCmd
}

func serve(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := httptransport.NewServer(ctx, cfg)
	if err != nil {
		log.Printf("Failed to create server: %v", err)
		return err
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server",
			slog.String("addr", cfg.Server.Addr),
			slog.String("mode", cfg.Server.Mode),
		)
		if listenErr := srv.ListenAndServe(); listenErr != nil &&
			!errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "server failed", logger.Err(listenErr))
			serverErrChan <- listenErr
		}
	}()

	go func() {
		report := srv.RunStartup(ctx)
		if err := report.Err(); err != nil {
			logger.WarnContext(ctx, "startup finished with errors", logger.Err(err))
			return
		}
		logger.InfoContext(ctx, "startup finished")
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
		logger.InfoContext(ctx, "shutting down server")
	case serveErr = <-serverErrChan:
		logger.ErrorContext(ctx, "server error, shutting down", logger.Err(serveErr))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		shutdownTimeoutSeconds*time.Second,
	)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.ErrorContext(shutdownCtx, "server forced to shutdown", logger.Err(shutdownErr))
	} else {
		logger.InfoContext(shutdownCtx, "server stopped gracefully")
	}

	if shutdownErr := otel.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", logger.Err(shutdownErr))
	}

	return serveErr
}
