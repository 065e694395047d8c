package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/opscore/internal/api"
	"github.com/gyaneshwarpardhi/opscore/internal/config"
	"github.com/gyaneshwarpardhi/opscore/internal/logging"
	"github.com/gyaneshwarpardhi/opscore/internal/store/sqlite"
	"github.com/gyaneshwarpardhi/opscore/internal/system"
	"github.com/gyaneshwarpardhi/opscore/internal/tracing"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event core with its HTTP API",
	Long:  "Loads the config, starts agents, rules, schedules and the HTTP API, and hot-reloads rules when the config file changes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	// ── Config and logging ──────────────────────────────────────────────────
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	loader.SetLogger(logger)
	log := logger.With("component", "cmd.serve")

	shutdownTracing, err := tracing.Init(ctx, cfg.Service, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracing shutdown failed", "err", err)
		}
	}()

	// ── Store and runtime ───────────────────────────────────────────────────
	st, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := system.New(runCtx, cfg, st, logger)
	if err != nil {
		return err
	}
	hub := api.NewHub(rt.Bus, logger)
	go hub.Run(runCtx)
	hub.Attach(rt.Bus)

	if err := rt.Start(runCtx); err != nil {
		return err
	}
	go rt.Scheduler.Run(runCtx)

	// ── Hot reload ──────────────────────────────────────────────────────────
	deps := api.Deps{
		Bus:        rt.Bus,
		Agents:     rt.Agents,
		Engine:     rt.Engine,
		Dispatcher: rt.Dispatcher,
		Stream:     hub,
		Ready:      st.Ping,
		Log:        logger,
	}
	if configPath != "" {
		loader.OnChange(rt.Apply)
		deps.Reloader = loader
		stopWatch, err := loader.Watch()
		if err != nil {
			log.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.HTTP.Addr, "store", cfg.Store.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	if err := rt.Stop(shutCtx, "signal"); err != nil {
		log.Warn("runtime stop failed", "err", err)
	}
	cancel()
	log.Info("goodbye")
	return runErr
}
