package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tycho/internal/config"
	"tycho/internal/gather/us"
	"tycho/internal/sched"
	"tycho/internal/store"
	"tycho/internal/util"
)

func main() {
	daemon := flag.Bool("daemon", false, "keep running and refresh on gather.refresh_cron")
	flag.Parse()

	cfgPath := "config/tycho.yaml"
	if p := os.Getenv("TYCHO_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	gatherer := us.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cfg.Alpaca.BaseURL,
		bars,
		cfg.Gather.Symbols,
		cfg.Gather.MaxWorkers,
		cfg.Gather.RateLimitPerMin,
		cfg.Gather.StartDate,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !*daemon {
		if err := gatherer.Run(ctx); err != nil {
			log.Fatalf("gathering: %v", err)
		}
		return
	}

	if cfg.Gather.RefreshCron == "" {
		log.Fatal("-daemon requires gather.refresh_cron in config")
	}

	scheduler := sched.New(logger)
	if err := scheduler.Register(ctx, cfg.Gather.RefreshCron, gatherer); err != nil {
		log.Fatalf("scheduling: %v", err)
	}

	// One pass up front so the store is fresh before the first tick.
	scheduler.RunNow(ctx, gatherer)

	scheduler.Start()
	<-ctx.Done()
	scheduler.Stop()
}
