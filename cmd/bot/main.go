// Command bot runs the Polymarket prediction pipeline: a scheduled (or
// HTTP-triggered) cycle that discovers markets, runs the model ensemble, and
// persists predictions, signals, paper trades, and portfolio snapshots.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"polymarket-pred/internal/aggregate"
	"polymarket-pred/internal/api"
	"polymarket-pred/internal/config"
	"polymarket-pred/internal/exchange"
	"polymarket-pred/internal/market"
	"polymarket-pred/internal/model"
	"polymarket-pred/internal/news"
	"polymarket-pred/internal/pipeline"
	"polymarket-pred/internal/store"
	"polymarket-pred/internal/trading"
)

func main() {
	configPath := os.Getenv("POLY_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	logger.Info("starting prediction bot",
		"config", configPath,
		"paper_trading", cfg.Trading.PaperTrading,
	)

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ensemble, err := model.LoadDir(cfg.Models.Dir, cfg.Models.Weights, cfg.Models.ConfidenceFloor, logger)
	if err != nil {
		logger.Error("failed to load models", "dir", cfg.Models.Dir, "error", err)
		os.Exit(1)
	}

	clob := exchange.NewClient(cfg.API.CLOBBaseURL, logger)
	gamma := market.NewGammaClient(cfg.API.GammaBaseURL, logger)
	source := market.NewSource(clob, gamma, logger)
	newsClient := news.NewClient(cfg.API.NewsBaseURL, cfg.API.NewsAPIKey, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aggOpts := aggregate.Options{
		CallTimeout:  cfg.Pipeline.CallTimeout,
		WarmParallel: cfg.Pipeline.MidpointConcurrency,
	}
	var feed *exchange.PriceFeed
	if cfg.Feed.Enabled {
		feed = exchange.NewPriceFeed(cfg.API.WSMarketURL, logger)
		aggOpts.Feed = feed
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("price feed stopped", "error", err)
			}
		}()
	}

	aggregator := aggregate.New(clob, newsClient, aggOpts, logger)

	engine := trading.NewEngine(st, cfg.Signals, cfg.Trading, logger)
	runner := pipeline.NewRunner(source, aggregator, ensemble, engine, cfg.Pipeline, logger)

	var scheduler *cron.Cron
	if cfg.Scheduler.Cron != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Scheduler.Cron, func() {
			runner.RunCycle(ctx, pipeline.CycleParams{
				AutoSignals: cfg.Trading.AutoSignals,
				AutoTrades:  cfg.Trading.AutoTrades,
			})
		})
		if err != nil {
			logger.Error("invalid cron spec", "spec", cfg.Scheduler.Cron, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		logger.Info("scheduler started", "spec", cfg.Scheduler.Cron)
	}

	server := api.NewServer(cfg.Server.Port, runner, st, ensemble, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	cancel()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if feed != nil {
		feed.Close()
	}
	logger.Info("stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
