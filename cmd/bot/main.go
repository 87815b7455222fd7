package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"rsibot/internal/alerts"
	"rsibot/internal/audit"
	"rsibot/internal/binance"
	"rsibot/internal/config"
	"rsibot/internal/control"
	"rsibot/internal/engine"
	"rsibot/internal/history"
	"rsibot/internal/logging"
	"rsibot/internal/metrics"
	"rsibot/internal/state"
	"rsibot/internal/state/sqlite"
	"rsibot/internal/strategy"
	"rsibot/internal/web"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath))

	store, err := newStore(cfg.State)
	if err != nil {
		log.Error("failed to open position store", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	auditLog, err := audit.Open(cfg.State.AuditPath)
	if err != nil {
		log.Error("failed to open audit log", zap.Error(err))
		os.Exit(1)
	}
	defer auditLog.Close()

	policy, err := strategy.ForConfig(cfg.Strategy)
	if err != nil {
		log.Error("failed to build exit policy", zap.Error(err))
		os.Exit(1)
	}

	var engineMetrics *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		engineMetrics = prom.Metrics
		metricsHandler = prom.Handler()
	} else {
		engineMetrics = metrics.NewNoop()
	}

	historyWriter, err := history.New(cfg.History, log)
	if err != nil {
		log.Error("failed to initialize history writer", zap.Error(err))
		os.Exit(1)
	}
	defer historyWriter.Close()

	alertsClient := alerts.NewTelegram(cfg.Telegram)

	factory := func(creds config.Credentials) (control.Runner, error) {
		baseURL := cfg.Exchange.BaseURL
		wsURL := cfg.Exchange.WSURL
		if creds.Testnet {
			baseURL = cfg.Exchange.TestnetURL
			wsURL = cfg.Exchange.TestnetWSURL
		}
		client := binance.New(baseURL, creds.APIKey, creds.APISecret, cfg.Exchange.Timeout, log)
		var feed *binance.PriceFeed
		if cfg.Exchange.PriceFeed {
			symbols := make([]string, 0, len(cfg.Symbols))
			for _, sym := range cfg.Symbols {
				symbols = append(symbols, sym.Symbol)
			}
			feed = binance.NewPriceFeed(wsURL, symbols, cfg.Exchange.ReconnectDelay, cfg.Exchange.PriceMaxAge, log)
		}
		return engine.New(engine.Deps{
			Config:  cfg,
			Log:     log,
			Gateway: client,
			Store:   store,
			Audit:   auditLog,
			Policy:  policy,
			Metrics: engineMetrics,
			Alerts:  alertsClient,
			History: historyWriter,
			Feed:    feed,
		}), nil
	}
	service := control.NewService(factory, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	historyWriter.Start(ctx)

	autostart(service, log)

	server := web.New(service, store, metricsHandler, cfg.Metrics.Path, cfg.Strategy.StopTimeout, log)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: server.Handler(),
	}
	go func() {
		<-ctx.Done()
		if err := service.Stop(cfg.Strategy.StopTimeout); err != nil && !errors.Is(err, control.ErrNotRunning) {
			log.Warn("engine stop failed", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("control server listening", zap.String("address", cfg.HTTP.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server terminated", zap.Error(err))
		os.Exit(1)
	}
}

func newStore(cfg config.StateConfig) (state.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return sqlite.New(cfg.SQLitePath)
	default:
		return state.NewFileStore(cfg.FilePath)
	}
}

// autostart launches the engine at boot when credentials arrive through the
// environment, so a restart does not wait for an operator.
func autostart(service *control.Service, log *zap.Logger) {
	apiKey := os.Getenv("BINANCE_API_KEY")
	if apiKey == "" {
		return
	}
	testnet, _ := strconv.ParseBool(os.Getenv("BINANCE_TESTNET"))
	creds := config.Credentials{
		APIKey:    apiKey,
		APISecret: os.Getenv("BINANCE_API_SECRET"),
		Testnet:   testnet,
	}
	if err := service.Start(creds); err != nil {
		log.Warn("autostart failed", zap.Error(err))
		return
	}
	log.Info("engine autostarted from environment credentials", zap.Bool("testnet", testnet))
}
