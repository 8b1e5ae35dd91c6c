package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kirkhalloran/oraclepm/internal/analytics"
	"github.com/kirkhalloran/oraclepm/internal/broker"
	"github.com/kirkhalloran/oraclepm/internal/config"
	"github.com/kirkhalloran/oraclepm/internal/dashboard"
	"github.com/kirkhalloran/oraclepm/internal/ledger"
	"github.com/kirkhalloran/oraclepm/internal/marketdata"
	"github.com/kirkhalloran/oraclepm/internal/retry"
	"github.com/kirkhalloran/oraclepm/internal/storage"
	"github.com/kirkhalloran/oraclepm/internal/util"
)

func main() {
	var (
		configPath string
		mode       string
		sinceFlag  string
		account    string
		dryRun     bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&mode, "mode", "sync", "Run mode: sync | refresh | report | serve")
	flag.StringVar(&sinceFlag, "since", "", "Ingest orders entered at or after this date (YYYY-MM-DD)")
	flag.StringVar(&account, "account", "", "Restrict sync to one account (default: all configured)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report what a sync would do without writing")
	flag.Parse()

	// .env is optional; explicit environment always wins.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[ORACLEPM] ", log.LstdFlags)
	logger.Printf("Starting in %s mode (%s)", mode, cfg.Environment.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received...")
		cancel()
	}()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer cleanup()

	switch mode {
	case "sync":
		err = runSync(ctx, cfg, store, logger, sinceFlag, account, dryRun)
	case "refresh":
		err = runRefresh(ctx, cfg, store, logger)
	case "report":
		err = runReport(ctx, cfg, store, logger)
	case "serve":
		err = runServe(ctx, cfg, store, logger)
	default:
		err = fmt.Errorf("unknown mode %q (want sync, refresh, report, or serve)", mode)
	}
	if err != nil {
		logger.Fatalf("%s failed: %v", mode, err)
	}
}

// openStore connects to PostgreSQL when configured, otherwise falls back to
// the in-memory store (paper mode only).
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.Interface, func(), error) {
	if !cfg.HasDatabase() {
		logger.Println("No database configured, using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}

	pg, err := storage.NewPostgresStore(ctx, storage.Config{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func newBroker(cfg *config.Config, logger *log.Logger) broker.Broker {
	if cfg.IsPaperTrading() && cfg.Broker.APIKey == "" {
		logger.Println("Paper mode without credentials, using mock order source")
		return broker.NewMockBroker()
	}
	client := broker.NewSchwabClient(cfg.Broker.APIKey, cfg.Broker.APIEndpoint, cfg.BrokerTimeout())
	return retry.Wrap(client, logger)
}

func runSync(ctx context.Context, cfg *config.Config, store storage.Interface, logger *log.Logger, sinceFlag, account string, dryRun bool) error {
	since, err := resolveSince(cfg, sinceFlag)
	if err != nil {
		return err
	}

	accounts := cfg.Broker.Accounts
	if account != "" {
		accounts = []string{account}
	}

	syncer := ledger.NewSyncer(newBroker(cfg, logger), store, cfg.UnknownEffectPolicy(), logger, dryRun)
	summary, err := syncer.Sync(ctx, accounts, since)
	if err != nil {
		return err
	}

	if size := cfg.Analytics.AccountSize; size > 0 && !dryRun {
		if err := store.SetAccountSize(ctx, size); err != nil {
			return err
		}
	}

	logger.Printf("Sync summary: %s", summary)
	return nil
}

func resolveSince(cfg *config.Config, sinceFlag string) (time.Time, error) {
	if sinceFlag != "" {
		t, err := time.Parse("2006-01-02", sinceFlag)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid -since %q: %w", sinceFlag, err)
		}
		return t.UTC(), nil
	}

	lookback := cfg.Sync.DefaultLookbackDays
	if lookback == 0 {
		lookback = 30
	}
	return time.Now().UTC().AddDate(0, 0, -lookback), nil
}

func runRefresh(ctx context.Context, cfg *config.Config, store storage.Interface, logger *log.Logger) error {
	source := marketdata.NewYahooClient(cfg.MarketData.Endpoint, cfg.BrokerTimeout())
	updater := marketdata.NewUpdater(source, store, logger, cfg.QuoteRequestDelay())

	result, err := updater.Refresh(ctx)
	if err != nil {
		return err
	}
	logger.Printf("Refresh: %d updated, %d skipped of %d positions",
		result.Updated, result.Skipped, result.Positions)

	// Analytics run in-process right after the data lands.
	return runReport(ctx, cfg, store, logger)
}

func runReport(ctx context.Context, cfg *config.Config, store storage.Interface, logger *log.Logger) error {
	positions, err := store.ListMutablePositions(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		logger.Println("No open positions to report")
		return nil
	}

	engine := analytics.NewEngine(cfg.BenchmarkRate())
	report := engine.Analyze(positions, time.Now().UTC())

	printReport(report)
	return nil
}

func printReport(report analytics.Report) {
	fmt.Println(strings.Repeat("=", 96))
	fmt.Printf("%-6s %-10s %5s %4s %4s %8s %9s %9s %9s %9s %7s %6s\n",
		"Symbol", "Strategy", "Qty", "Age", "DTE", "IVΔ%", "P/L($)", "Ret%", "AnnRet%", "Expo($)", "Expo%", "Rules")
	for _, row := range report.Rows {
		rules := "PASS"
		if !row.Rules.Passing() {
			rules = "FLAG"
		}
		fmt.Printf("%-6s %-10s %5d %4d %4d %8.2f %9.2f %9.2f %9.2f %9.2f %7.2f %6s\n",
			row.Symbol, row.Strategy, row.Contracts, row.AgeDays, row.DTE,
			util.RoundCents(row.IVChangePct), util.RoundCents(row.PL),
			util.RoundCents(row.ReturnPct), util.RoundCents(row.AnnReturnPct),
			util.RoundCents(row.Exposure), util.RoundCents(row.ExposurePct), rules)
	}

	s := report.Summary
	fmt.Println(strings.Repeat("-", 96))
	fmt.Printf("Positions: %d  Credit: $%.2f  P/L: $%.2f  Exposure: $%.2f  NetCap: $%.2f\n",
		s.Positions, s.TotalCredit, s.TotalPL, s.TotalExposure, s.NetCapital)
	fmt.Printf("Return: %.2f%%  ROC: %.2f%%  AvgAge: %.1fd  AnnRet: %.2f%%  AnnROC: %.2f%%\n",
		s.ReturnPct, s.ROCPct, s.AvgAgeDays, s.AnnReturnPct, s.AnnROCPct)
	fmt.Printf("Benchmark: %.2f%%  Excess: %.2f%%\n", s.BenchmarkPct, s.ExcessPct)
	fmt.Println(strings.Repeat("=", 96))
}

func runServe(ctx context.Context, cfg *config.Config, store storage.Interface, logger *log.Logger) error {
	srvLogger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		srvLogger.SetLevel(level)
	}

	port := cfg.Dashboard.Port
	if port == 0 {
		port = 9000
	}

	engine := analytics.NewEngine(cfg.BenchmarkRate())
	server := dashboard.NewServer(dashboard.Config{
		Port:      port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, store, engine, srvLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Println("Dashboard stopped")
	return nil
}
