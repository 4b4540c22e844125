package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"facet/internal/deps"
	"facet/internal/httpapi"
	"facet/internal/logging"
	"facet/internal/recon"
	"facet/internal/session"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reconstruction service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			lockPath := filepath.Join(cfg.Paths.LogDir, "facet.lock")
			lock := flock.New(lockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return errors.New("another facet instance is already running")
			}
			defer func() { _ = lock.Unlock() }()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

			for _, status := range deps.Missing(deps.CheckBinaries(deps.For(cfg))) {
				logger.Warn("external dependency unavailable",
					logging.String("dependency", status.Name),
					logging.String("detail", status.Detail))
			}

			sessions, err := session.Open(cfg, logger)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer sessions.Close()

			jobs, err := recon.OpenStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer jobs.Close()

			manager := recon.NewManager(cfg, sessions, jobs,
				recon.DefaultEngineFactory(cfg.Engine), logger)
			manager.Start()
			defer manager.Stop()

			server := httpapi.New(cfg, sessions, manager, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", logging.Error(err))
			}
			return nil
		},
	}
}
