// Command predict runs the forecast pipeline once, for a single ticker or
// for every ticker already in the store, and prints the outcome per ticker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"StockInsight/internal/collector"
	"StockInsight/internal/config"
	"StockInsight/internal/forecast"
	"StockInsight/internal/pipeline"
	"StockInsight/internal/recorder"
	"StockInsight/pkg/logger"
)

func main() {
	ticker := flag.String("ticker", "", "ticker symbol to predict")
	all := flag.Bool("all", false, "predict every ticker already stored")
	identity := flag.String("identity", "cli", "identity that owns the forecasts")
	flag.Parse()

	if err := run(*ticker, *all, *identity); err != nil {
		fmt.Fprintf(os.Stderr, "predict: %v\n", err)
		os.Exit(1)
	}
}

func run(ticker string, all bool, identity string) error {
	if (ticker == "") == !all {
		return errors.New("pass exactly one of -ticker or -all")
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: "stderr"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		return fmt.Errorf("init sqlite recorder: %w", err)
	}
	defer rec.Close()

	var m forecast.Model
	if cfg.Model.ServiceURL != "" {
		m = forecast.NewRemoteModel(cfg.Model.ServiceURL)
	} else if m, err = forecast.LoadModel(cfg.Model.Path, forecast.DefaultWindow); err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	fetcher := collector.NewResilientFetcher(
		collector.NewYahooSource(cfg.Fetch.PrimaryURL, cfg.Proxy),
		collector.NewIntradaySource(cfg.Fetch.FallbackURL, cfg.Proxy),
		cfg.Fetch.MaxRetries,
		cfg.Fetch.Backoff,
		log,
	)
	orch := pipeline.New(fetcher, forecast.NewEngine(m), rec, pipeline.Options{
		BaseDir:     cfg.Storage.BaseDir,
		ArtifactDir: cfg.Storage.ArtifactDir,
		Period:      cfg.Fetch.Period,
		Interval:    cfg.Fetch.Interval,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tickers := []string{ticker}
	if all {
		if tickers, err = rec.Tickers(ctx); err != nil {
			return fmt.Errorf("list tickers: %w", err)
		}
		if len(tickers) == 0 {
			fmt.Println("no stored tickers")
			return nil
		}
	}

	failed := 0
	for _, r := range orch.RunBatch(ctx, identity, tickers) {
		if r.Err != nil {
			failed++
			fmt.Printf("%-10s FAILED  %v\n", r.Ticker, r.Err)
			continue
		}
		fmt.Printf("%-10s OK      next=%s rmse=%.4f r2=%.4f\n",
			r.Ticker, r.Result.NextPrice.StringFixed(4), r.Result.RMSE, r.Result.R2)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tickers failed", failed, len(tickers))
	}
	return nil
}
