package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tycho/internal/backtest"
	"tycho/internal/config"
	"tycho/internal/domain"
	"tycho/internal/pricedata"
	"tycho/internal/store"
	"tycho/internal/strategy"
	"tycho/internal/util"
)

func main() {
	strategyName := flag.String("strategy", "buy-and-hold", "strategy to run")
	symbolsFlag := flag.String("symbols", "", "comma-separated ticker universe (default: gather.symbols from config)")
	startFlag := flag.String("start", "", "simulation start date (YYYY-MM-DD)")
	endFlag := flag.String("end", "", "simulation end date (YYYY-MM-DD, default: today)")
	benchmarkFlag := flag.String("benchmark", "", "benchmark symbol (default: backtest.benchmark from config)")
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

	symbols := cfg.Gather.Symbols
	if *symbolsFlag != "" {
		symbols = strings.Split(*symbolsFlag, ",")
		for i := range symbols {
			symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols: set -symbols or gather.symbols in config")
	}

	benchmark := cfg.Backtest.Benchmark
	if *benchmarkFlag != "" {
		benchmark = strings.ToUpper(*benchmarkFlag)
	}

	start, end, err := dateRange(*startFlag, *endFlag, cfg.Gather.StartDate)
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	series, err := pricedata.Load(ctx, bars, string(domain.MarketUS), symbols, benchmark, start, end, cfg.Gather.MaxWorkers)
	if err != nil {
		log.Fatalf("loading price data: %v", err)
	}

	registry := strategy.Builtin(symbols)
	strat, ok := registry.Get(*strategyName)
	if !ok {
		log.Fatalf("unknown strategy %q (available: %s)", *strategyName, strings.Join(registry.List(), ", "))
	}
	if err := strat.Init(ctx); err != nil {
		log.Fatalf("initialising strategy: %v", err)
	}

	engine := backtest.NewEngine(series, strategy.Func(strat), backtest.Config{
		InitialCash:        cfg.Backtest.InitialCash,
		MarginLimit:        cfg.Backtest.MarginLimit,
		AllowShort:         cfg.Backtest.AllowShort,
		OnInsufficientCash: cfg.Backtest.OnInsufficientCash,
		CostBps:            cfg.Backtest.CostBps,
		RiskFreeRate:       cfg.Backtest.RiskFreeRate,
	}, logger)

	result, runErr := engine.Run(ctx)
	if result == nil {
		log.Fatalf("run aborted: %v", runErr)
	}

	if err := saveRun(cfg.Storage.SQLitePath, *strategyName, result); err != nil {
		logger.Error("persisting run", "error", err)
	}

	printSummary(result)
	if runErr != nil {
		os.Exit(1)
	}
}

func dateRange(startFlag, endFlag, fallbackStart string) (time.Time, time.Time, error) {
	startStr := startFlag
	if startStr == "" {
		startStr = fallbackStart
	}
	if startStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("no start date: set -start or gather.start_date in config")
	}
	start, err := time.Parse(domain.DateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing start %q: %w", startStr, err)
	}

	end := time.Now().UTC()
	if endFlag != "" {
		end, err = time.Parse(domain.DateLayout, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing end %q: %w", endFlag, err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s", end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}
	return start, end, nil
}

func saveRun(sqlitePath, strategyName string, result *backtest.Result) error {
	if sqlitePath == "" {
		return nil
	}
	runs, err := store.NewSQLiteStore(sqlitePath)
	if err != nil {
		return err
	}
	defer runs.Close()

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := &store.RunRecord{
		ID:         fmt.Sprintf("run-%s", now.Format("20060102-150405.000")),
		Strategy:   strategyName,
		CreatedAt:  now,
		State:      string(result.State),
		FailReason: string(result.FailReason),
		Result:     payload,
	}
	if n := len(result.Snapshots); n > 0 {
		rec.StartDate = result.Snapshots[0].Day()
		rec.EndDate = result.Snapshots[n-1].Day()
		rec.FinalEquity = result.Snapshots[n-1].Equity
	}

	if err := runs.SaveRun(context.Background(), rec); err != nil {
		return err
	}
	slog.Info("run saved", "id", rec.ID)
	return nil
}

func printSummary(result *backtest.Result) {
	fmt.Printf("state:       %s\n", result.State)
	if result.FailReason != "" {
		fmt.Printf("fail reason: %s\n", result.FailReason)
	}
	fmt.Printf("trading days: %d   fills: %d   rejections: %d\n",
		len(result.Snapshots), len(result.Fills), len(result.Rejections))

	if result.Report == nil {
		return
	}
	r := result.Report
	fmt.Printf("period:      %s .. %s\n", r.StartDate, r.EndDate)
	fmt.Printf("equity:      %.2f -> %.2f (%.2f%%)\n", r.InitialEquity, r.FinalEquity, r.Performance.TotalReturn*100)
	fmt.Printf("cagr:        %.2f%%   vol: %.2f%%   max dd: %.2f%%\n",
		r.Performance.CAGR*100, r.Performance.Volatility*100, r.Performance.MaxDrawdown*100)
	fmt.Printf("sharpe:      %.3f", r.Performance.Sharpe)
	if r.Performance.Sortino != nil {
		fmt.Printf("   sortino: %.3f", *r.Performance.Sortino)
	}
	fmt.Println()
	if b := r.Benchmark; b != nil {
		fmt.Printf("benchmark:   alpha %.4f   beta %.3f   return %.2f%% (strategy %.2f%%)\n",
			b.Alpha, b.Beta, b.BenchmarkTotalReturn*100, b.StrategyTotalReturn*100)
		if len(b.DroppedDates) > 0 {
			fmt.Printf("             %d dates dropped from comparison\n", len(b.DroppedDates))
		}
	}
}
