package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillforge-network/skillforge/internal/api"
	"github.com/skillforge-network/skillforge/internal/app/credit"
	"github.com/skillforge-network/skillforge/internal/app/exchange"
	"github.com/skillforge-network/skillforge/internal/app/sweeper"
	"github.com/skillforge-network/skillforge/internal/infra/health"
	"github.com/skillforge-network/skillforge/internal/infra/notify"
	"github.com/skillforge-network/skillforge/internal/infra/presence"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SkillForge node",
	Long: `Start the SkillForge node: the HTTP API, the WebSocket notification
feed, and the autonomous completion sweeper that settles overdue
exchanges in the background.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Presence + live notifications
	tracker := presence.NewTracker()
	hub := notify.NewHub(tracker, logger)
	go hub.Run(ctx)

	// Core services
	credits := credit.New(db, hub, logger)
	exchanges := exchange.New(db, db, hub, logger)

	// Autonomous completion sweeper
	sweeperHealth := health.NewTracker()
	sw := sweeper.New(sweeper.Options{
		Enabled:       cfg.Sweeper.Enabled,
		CheckInterval: cfg.Sweeper.CheckInterval(),
		GracePeriod:   cfg.Sweeper.GracePeriod(),
		BatchSize:     cfg.Sweeper.BatchSize,
	}, db, sweeperHealth, hub, logger)
	go sw.Run(ctx)

	srv := api.NewServer(exchanges, credits)
	srv.EnableMetrics()
	srv.SetHub(hub, tracker)
	if cfg.Sweeper.Enabled {
		srv.SetSweeperHealth(sweeperHealth)
	}

	httpSrv := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.API.Addr()).Msg("SkillForge node listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
