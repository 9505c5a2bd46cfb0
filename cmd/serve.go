package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"applypilot/pipeline-service/internal/channel"
	"applypilot/pipeline-service/internal/compose"
	"applypilot/pipeline-service/internal/config"
	"applypilot/pipeline-service/internal/db"
	"applypilot/pipeline-service/internal/dispatch"
	"applypilot/pipeline-service/internal/formfill"
	"applypilot/pipeline-service/internal/httpapi"
	"applypilot/pipeline-service/internal/logger"
	"applypilot/pipeline-service/internal/queue"
	"applypilot/pipeline-service/internal/retry"
	"applypilot/pipeline-service/internal/scheduler"
	"applypilot/pipeline-service/internal/scoring"
	"applypilot/pipeline-service/internal/store"
	"applypilot/pipeline-service/internal/sweep"
)

const defaultDailyCap = 10

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline service",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return fmt.Errorf("creating a logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Datastores ──────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()
	log.Info("redis connected")

	// ── Scoring ─────────────────────────────────────────────────────────────
	engine, err := scoring.NewEngine(scoring.Weights{
		Title:      cfg.Weights.Title,
		Salary:     cfg.Weights.Salary,
		Location:   cfg.Weights.Location,
		WorkType:   cfg.Weights.WorkType,
		Experience: cfg.Weights.Experience,
		Industry:   cfg.Weights.Industry,
		Skills:     cfg.Weights.Skills,
	})
	if err != nil {
		return fmt.Errorf("scoring engine: %w", err)
	}

	// ── Queue + stores ──────────────────────────────────────────────────────
	mgr := queue.NewManager(pool, rdb, log, queue.DefaultGates(), cfg.EntryTTL, cfg.StaleAfter)
	jobs := store.NewPostgresJobStore(pool)
	profiles := store.NewPostgresProfileStore(pool)
	notifier := store.NewRedisNotifier(rdb, log)
	counter := store.NewRedisSubmissionCounter(rdb)
	gate := store.NewPostgresFeatureGate(pool, defaultDailyCap)

	// ── Execution channels ──────────────────────────────────────────────────
	composer, err := compose.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return fmt.Errorf("composer: %w", err)
	}

	browserCfg := formfill.DefaultBrowserConfig()
	browserCfg.Headless = cfg.Headless
	browserCfg.ScreenshotDir = cfg.ScreenshotDir

	channels := []dispatch.Channel{
		formfill.NewAdapter(browserCfg, composer, log),
		channel.NewMessageChannel(channel.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, composer, log),
		channel.NewAgentChannel(cfg.AgentBaseURL, log),
	}

	dispatcher := dispatch.New(mgr, jobs, profiles, gate, counter, notifier, channels, retry.DefaultConfig(), log)

	// ── Loops ───────────────────────────────────────────────────────────────
	sweeper := sweep.New(engine, mgr, jobs, profiles, log, cfg.JobLookback)
	sched := scheduler.New(sweeper, dispatcher, mgr, log, cfg.SweepEvery, cfg.DrainEvery, cfg.HousekeepEvery)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.NewHandler(mgr, sweeper, log).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	log.Info("stopped")
	return nil
}
