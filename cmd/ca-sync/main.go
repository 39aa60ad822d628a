package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/unikmhz/npui-sub001/pkg/access"
	"github.com/unikmhz/npui-sub001/pkg/config"
	"github.com/unikmhz/npui-sub001/pkg/database"
	"github.com/unikmhz/npui-sub001/pkg/lock"
	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/metrics"
	"github.com/unikmhz/npui-sub001/pkg/network"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
	"github.com/unikmhz/npui-sub001/pkg/web"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	once := flag.Bool("once", false, "Run a single sync and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ca-sync %s (%s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	})
	defer func() { _ = log.Sync() }()

	log.Info("Starting ca-sync",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("headend", cfg.Headend.Addr()))

	if err := run(cfg, log, *once); err != nil {
		log.Error("ca-sync failed", logger.Error(err))
		os.Exit(1)
	}
	log.Info("ca-sync stopped")
}

func run(cfg *config.Config, log *logger.Logger, once bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	collector := metrics.NewCollector()

	db, err := database.NewDB(database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}, log.WithComponent("database"))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	billing := database.NewBillingRepository(db.GetDB())
	runs := database.NewSyncRunRepository(db.GetDB())
	runs.SetRetention(cfg.Sync.HistoryRetention)

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisLocker(rdb)
		log.Info("Using redis head-end lock", logger.String("addr", cfg.Redis.Addr))
	}

	session := network.NewSession(cfg.Headend.Addr(), cfg.Headend.ConnectTimeout, log, network.WithMetrics(collector))
	client := network.NewClient(session, network.ClientConfig{
		Address:      protocol.Address(cfg.Headend.Address),
		CheckReplies: cfg.Headend.CheckReplies,
	}, log, collector)

	var opts []web.ServerOption
	opts = append(opts, web.WithRunHistory(runs))
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		opts = append(opts, web.WithMetricsHandler(collector.Handler()))
	}
	web.SetVersionInfo(version, commit, buildTime)
	srv := web.NewServer(cfg.Web, log, opts...)

	var events access.EventSink
	if cfg.Web.Enabled {
		events = srv.GetHub()
	}

	syncer := access.NewSyncer(access.SyncerConfig{
		Interval: cfg.Sync.Interval,
		Username: cfg.Headend.Username,
		Password: cfg.Headend.Password,
		LockKey:  cfg.Sync.LockKey,
		LockTTL:  cfg.Sync.LockTTL,
		Updater: access.UpdaterConfig{
			Source:    cfg.Sync.Source,
			RateLimit: cfg.Sync.RateLimit,
			Burst:     cfg.Sync.Burst,
		},
	}, client, billing, locker, log, collector, events)
	syncer.SetHistory(runs)
	srv.SetSyncer(syncer)

	if once {
		status, err := syncer.Sync(ctx)
		if status != nil {
			log.Info("Sync finished",
				logger.String("run_id", status.RunID),
				logger.String("result", status.Result))
		}
		return err
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(metrics.PrometheusConfig{
				Enabled: true,
				Port:    cfg.Metrics.Port,
				Path:    cfg.Metrics.Path,
			}, collector, log)
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	if cfg.Web.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	if cfg.Sync.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncer.Start(ctx)
		}()
	} else {
		log.Info("Periodic sync disabled; use POST /api/sync to run manually")
	}

	sig := <-sigChan
	log.Info("Received shutdown signal", logger.String("signal", sig.String()))

	cancel()
	wg.Wait()
	return nil
}
