package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kucoinflow/config"
	"kucoinflow/internal/catalog"
	"kucoinflow/internal/channel"
	"kucoinflow/internal/snapshot"
	"kucoinflow/internal/stream"
	"kucoinflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Kucoinflow.Name,
		"version": cfg.Kucoinflow.Version,
	}).Info("starting kucoinflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, log)

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.SnapshotBuffer,
		cfg.Channels.DiffBuffer,
		cfg.Channels.TradeBuffer,
		log,
	)
	defer channels.Close()
	channels.StartMetricsReporting(ctx, time.Minute)

	cat := catalog.New(cfg, nil, log)
	fetcher := snapshot.NewFetcher(cfg, log)
	sessions := stream.NewSessionManager(cfg, log)

	tradeLoop := stream.NewTradeLoop(cfg, cat, sessions, channels, log)
	diffLoop := stream.NewDiffLoop(cfg, cat, sessions, channels, log)
	snapshotLoop := stream.NewSnapshotLoop(cfg, cat, fetcher, channels, log)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		tradeLoop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		diffLoop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		snapshotLoop.Run(ctx)
	}()

	// Stand-in consumer until the order-book tracker subsystem attaches to
	// the output channels.
	go drainEvents(ctx, channels, log)

	wg.Wait()
	log.WithComponent("main").Info("kucoinflow stopped")
}

func drainEvents(ctx context.Context, channels *channel.Channels, log *logger.Log) {
	l := log.WithComponent("drain")
	var snapshots, diffs, trades int64
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-channels.Snapshots:
			if !ok {
				return
			}
			snapshots++
		case _, ok := <-channels.Diffs:
			if !ok {
				return
			}
			diffs++
		case _, ok := <-channels.Trades:
			if !ok {
				return
			}
			trades++
		case <-ticker.C:
			l.WithFields(logger.Fields{
				"snapshots": snapshots,
				"diffs":     diffs,
				"trades":    trades,
			}).Info("event totals")
		}
	}
}

func handleShutdown(cancel context.CancelFunc, log *logger.Log) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.WithComponent("main").Info("shutdown requested")
	cancel()
}
