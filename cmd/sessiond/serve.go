package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Morditux/sessionstore"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session demo and run the reaper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := sessionstore.NewMetrics("sessiond")
		if err := metrics.Register(registry); err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := openStore(ctx, cfg, logger, metrics)
		if err != nil {
			return err
		}
		defer store.Close()

		mgr := sessionstore.NewManager(sessionstore.ManagerConfig{
			Store:      store,
			TTL:        cfg.Session.TTL,
			CookieName: cfg.Session.CookieName,
			Secure:     cfg.Session.Secure,
		})
		reaper := sessionstore.NewReaper(store, sessionstore.ReaperConfig{
			Interval: cfg.Reaper.Interval,
			Logger:   logger,
		})

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           newRouter(mgr, registry, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("starting sessiond", "addr", srv.Addr, "backend", cfg.Backend.Type)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			return reaper.Run(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				return srv.Close()
			}
			logger.Info("sessiond stopped")
			return nil
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (overrides config)")
}
