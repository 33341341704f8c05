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

	"github.com/parkscan/parkscan/internal/api"
	"github.com/parkscan/parkscan/internal/jobs"
	"github.com/parkscan/parkscan/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the parking analysis HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := initRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		scheduler := jobs.NewScheduler(ctx, jobs.NewMemoryRegistry(), rt.analyzer, rt.results,
			cfg.Jobs, cfg.Analysis, rt.metrics, log)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}

		router := api.NewRouter(rt.analyzer, scheduler, rt.results, rt.metrics, cfg, log)

		srv := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router.Routes(),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			log.Info("Shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("Server shutdown failed", logger.Error(err))
			}
		}()

		log.Info("Starting server",
			logger.String("addr", srv.Addr),
			logger.Int("workers", cfg.Jobs.Workers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}

		// Drain in-flight jobs before closing the database.
		if err := scheduler.Stop(); err != nil {
			log.Warn("Scheduler stop failed", logger.Error(err))
		}
		log.Info("Shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
