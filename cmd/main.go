package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/data"
	"github.com/m0rkovka/portfolio_pulse_bot/data/repository"
	"github.com/m0rkovka/portfolio_pulse_bot/data/session"
	"github.com/m0rkovka/portfolio_pulse_bot/data/symbolcache"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/externalApi/yahooApi"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/priceprovider"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/reportGenerator/xslsxGenerator"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/scheduler"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/service/portfolioService"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/tgbot"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/tickerresolver"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/transport/telegram"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/valuation"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := repository.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	symbolCache := symbolcache.NewRedisSymbolCache(redisClient)
	redisSession := session.NewRedisSession(redisClient, cfg)

	yahooApiClient := yahooApi.New(cfg)

	priceProvider := priceprovider.New(cfg, yahooApiClient)
	priceProvider.Start()
	defer priceProvider.Stop()

	resolver := tickerresolver.New(symbolCache, yahooApiClient)

	reconstructor := valuation.New(priceProvider, cfg.Market.HistoryYears, cfg.Market.IntradayWindow)

	reportGenerator := xslsxGenerator.New()

	googleCloudStorage := googleDriveApi.New(ctx, cfg)

	portfolioSrv := portfolioService.New(
		cfg,
		pgRepo,
		symbolCache,
		resolver,
		priceProvider,
		reconstructor,
		googleCloudStorage,
		reportGenerator,
	)

	sched := scheduler.New()
	sched.NewIntervalJob("warm price caches", portfolioSrv.WarmPriceCaches, cfg.Jobs.WarmPriceCachesInterval, true)
	sched.NewIntervalJob("cleanup old reports", portfolioSrv.CleanupReports, cfg.Jobs.CleanupReportsInterval, false)
	sched.Start()
	defer sched.Stop()

	tgController := telegram.NewController(portfolioSrv, redisSession)

	tgBot := tgbot.New(cfg, tgController, redisSession)
	tgBot.Start()
	defer tgBot.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
