package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"portfolio-core/internal/alert"
	"portfolio-core/internal/api"
	"portfolio-core/internal/events"
	"portfolio-core/internal/market"
	"portfolio-core/internal/monitor"
	"portfolio-core/internal/notify"
	"portfolio-core/internal/portfolio"
	"portfolio-core/internal/reinvest"
	"portfolio-core/internal/trade"
	"portfolio-core/pkg/binance"
	"portfolio-core/pkg/coingecko"
	"portfolio-core/pkg/config"
	"portfolio-core/pkg/db"
	"portfolio-core/pkg/i18n"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	// Seed the tradable symbol list from the YAML file; the poll list from
	// the environment is merged in so every polled symbol is tradable.
	symbols, err := config.LoadSymbols(cfg.SymbolsFile)
	if err != nil {
		log.Printf(i18n.Get("SymbolSeedFailed"), err)
	} else {
		log.Printf(i18n.Get("SymbolsLoaded"), len(symbols), cfg.SymbolsFile)
	}
	known := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		known[s.Symbol] = struct{}{}
		if err := database.UpsertCryptocurrency(ctx, s.Symbol, s.Name); err != nil {
			log.Fatalf(i18n.Get("SymbolSeedFailed"), err)
		}
	}
	for _, sym := range cfg.PollSymbols {
		if _, ok := known[sym]; ok {
			continue
		}
		if err := database.UpsertCryptocurrency(ctx, sym, sym); err != nil {
			log.Fatalf(i18n.Get("SymbolSeedFailed"), err)
		}
	}

	sysMetrics := monitor.NewSystemMetrics()
	log.Println(i18n.Get("SystemMetricsInit"))

	// Market data provider
	var provider market.Provider
	if cfg.UseMockProvider {
		log.Println(i18n.Get("MockProviderActive"))
		provider = market.NewStatic(map[string]float64{
			"BTC": 50000,
			"ETH": 3000,
		})
	} else {
		svc := market.NewService(
			binance.NewClient(cfg.BinanceTestnet),
			coingecko.NewClient(),
			cfg.QuoteCacheTTL,
			cfg.QuoteStaleBound,
			cfg.QuoteTimeout,
		)
		svc.Metrics = sysMetrics
		provider = svc
	}

	notifier := notify.New(bus, cfg.NotifyWebhookURL)

	// Domain services
	executor := trade.NewExecutor(database, provider, notifier, sysMetrics)
	alertSvc := alert.NewService(database, provider, executor, notifier, sysMetrics)
	calc := portfolio.NewCalculator(database, provider, bus)
	reinvestOpts := reinvest.DefaultOptions()
	if cfg.ReinvestMinProfit > 0 {
		reinvestOpts.MinProfit = cfg.ReinvestMinProfit
	}
	if cfg.ReinvestCooldown > 0 {
		reinvestOpts.Cooldown = cfg.ReinvestCooldown
	}
	reinvestor := reinvest.NewService(database, executor, sysMetrics, reinvestOpts)

	// Background loops
	poller := &market.Poller{
		Provider: provider,
		Bus:      bus,
		DB:       database,
		Symbols:  cfg.PollSymbols,
		Interval: cfg.PollInterval,
	}
	poller.Start(ctx)
	log.Printf(i18n.Get("PollerStarted"), len(cfg.PollSymbols), cfg.PollInterval)

	alertMonitor := alert.NewMonitor(alertSvc, cfg.AlertCheckInterval)
	alertMonitor.Start(ctx)
	log.Printf(i18n.Get("AlertMonitorStarted"), cfg.AlertCheckInterval)

	// API
	server := api.NewServer(
		bus,
		database,
		executor,
		alertSvc,
		calc,
		reinvestor,
		provider,
		sysMetrics,
		api.SystemMeta{
			Symbols:      cfg.PollSymbols,
			MockProvider: cfg.UseMockProvider,
			Version:      buildVersion,
		},
		cfg.JWTSecret,
	)
	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println(i18n.Get("ShuttingDown"))
	alertMonitor.Stop()
	cancel()
}
