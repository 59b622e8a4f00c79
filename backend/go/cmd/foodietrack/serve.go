package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"foodietrack/backend/go/internal/config"
	httpserver "foodietrack/backend/go/pkg/http"
	"foodietrack/backend/go/pkg/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		logger.Init(cfg.Logger.Level)
		appLogger := logger.New(cfg.App.Name, "", "")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := httpserver.NewServer(a.Router, httpserver.WithAddress(cfg.Server.Address))
		errCh := make(chan error, 1)
		go func() {
			appLogger.Info("Starting server on " + srv.Addr())
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		appLogger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.WithErr(err).Error("Server forced to shutdown")
			return err
		}
		appLogger.Info("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
