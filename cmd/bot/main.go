package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockInsight/internal/collector"
	"StockInsight/internal/config"
	"StockInsight/internal/dispatcher"
	"StockInsight/internal/forecast"
	"StockInsight/internal/governor"
	"StockInsight/internal/handler/api"
	"StockInsight/internal/notifier"
	"StockInsight/internal/pipeline"
	"StockInsight/internal/recorder"
	"StockInsight/internal/scheduler"
	xhttp "StockInsight/pkg/http"
	"StockInsight/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "stockinsight: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("StockInsight starting")

	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		return fmt.Errorf("init sqlite recorder: %w", err)
	}
	defer rec.Close()

	// Chat and REST share one governor; keys are prefixed per channel.
	var (
		gov     governor.Admitter
		sweeper scheduler.Sweeper
	)
	if cfg.Governor.RedisAddr != "" {
		rg, err := governor.NewRedisGovernor(cfg.Governor.RedisAddr, cfg.Governor.Window, cfg.Governor.MaxCalls)
		if err != nil {
			return fmt.Errorf("init redis governor: %w", err)
		}
		defer rg.Close()
		gov = rg
		log.Info("rate governor backed by redis", logger.String("addr", cfg.Governor.RedisAddr))
	} else {
		g := governor.New(cfg.Governor.Window, cfg.Governor.MaxCalls)
		gov, sweeper = g, g
	}

	fetcher := collector.NewResilientFetcher(
		collector.NewYahooSource(cfg.Fetch.PrimaryURL, cfg.Proxy),
		collector.NewIntradaySource(cfg.Fetch.FallbackURL, cfg.Proxy),
		cfg.Fetch.MaxRetries,
		cfg.Fetch.Backoff,
		log,
	)

	m, err := loadModel(cfg)
	if err != nil {
		return err
	}
	engine := forecast.NewEngine(m)

	orch := pipeline.New(fetcher, engine, rec, pipeline.Options{
		BaseDir:     cfg.Storage.BaseDir,
		ArtifactDir: cfg.Storage.ArtifactDir,
		Period:      cfg.Fetch.Period,
		Interval:    cfg.Fetch.Interval,
	}, log)

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.APIURL, cfg.Proxy, log)
	disp := dispatcher.New(gov, cfg.Governor.MaxCalls, orch, rec, tn, log)
	pool := dispatcher.NewPool(context.Background(), cfg.Dispatcher.Workers, cfg.Dispatcher.Workers*4, disp.Handle, log)

	srv := xhttp.NewServer(log, []xhttp.Handler{
		api.NewPredictionsHandler(log, gov, orch),
	}, xhttp.WithPort(cfg.Server.Port))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	sched := scheduler.NewScheduler(ctx, sweeper, orch, rec, cfg.Storage.BaseDir, cfg.Storage.ArtifactDir, log)
	if err := sched.RegisterAll(cfg.Schedule.JanitorCron, cfg.Schedule.RefreshCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()

	polling := make(chan struct{})
	go func() {
		defer close(polling)
		tn.StartPolling(ctx, func(ctx context.Context, u notifier.Update) {
			if err := pool.Submit(ctx, u); err != nil && ctx.Err() == nil {
				log.Warn("drop update", logger.Int64("chat_id", u.ChatID), logger.Error(err))
			}
		})
	}()
	log.Info("StockInsight is running", logger.String("port", cfg.Server.Port))

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	<-polling

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("http server shutdown", logger.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn("dispatcher shutdown", logger.Error(err))
	}
	log.Info("StockInsight stopped")
	return nil
}

func loadModel(cfg *config.Config) (forecast.Model, error) {
	if cfg.Model.ServiceURL != "" {
		return forecast.NewRemoteModel(cfg.Model.ServiceURL), nil
	}
	m, err := forecast.LoadModel(cfg.Model.Path, forecast.DefaultWindow)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return m, nil
}
