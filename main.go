package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"stockbot/config"
	"stockbot/internal/adapters/bridgebroker"
	"stockbot/internal/adapters/logger"
	"stockbot/internal/adapters/notify"
	"stockbot/internal/adapters/paperbroker"
	"stockbot/internal/adapters/sqlite"
	"stockbot/internal/app"
	"stockbot/internal/domain"
	"stockbot/internal/monitor"
	"stockbot/internal/news"
	"stockbot/internal/ports"
	"stockbot/internal/risk"
	"stockbot/internal/strategy"
	"stockbot/internal/strategy/indicators"
	"stockbot/internal/surge"
	"stockbot/internal/throttle"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger (console-only when no file path is configured)
	var appLogger ports.Logger = logger.NewZeroLogger(logger.ZeroConfig{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFilePath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Console:    cfg.LogConsole,
	})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel, "paperTrading": cfg.PaperTrading})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Broker Gateway (paper or bridge)
	var gateway ports.BrokerGateway
	if cfg.PaperTrading {
		paper, err := paperbroker.New(paperbroker.Config{
			StartingCash: cfg.PaperStartingCash,
			Logger:       appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize paper broker")
			log.Fatalf("FATAL: Failed to initialize paper broker: %v", err)
		}
		gateway = paper
	} else {
		bridge, err := bridgebroker.New(bridgebroker.Config{
			URL:            cfg.BridgeURL,
			AccountID:      cfg.AccountID,
			AccountPass:    cfg.AccountPass,
			CertPass:       cfg.CertPass,
			Logger:         appLogger,
			RequestTimeout: cfg.RequestTimeout,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to connect to broker bridge")
			log.Fatalf("FATAL: Failed to connect to broker bridge: %v", err)
		}
		defer bridge.Close()
		gateway = bridge
	}
	appLogger.Info(context.Background(), "Broker gateway initialized")

	// 5. Initialize Notifier (NATS when configured, otherwise log-only)
	var notifier ports.Notifier
	if cfg.NATSURL != "" {
		natsNotifier, err := notify.NewNATS(notify.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.NATSSubjectPrefix,
			Logger:        appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to connect to NATS")
			log.Fatalf("FATAL: Failed to connect to NATS: %v", err)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
	} else {
		notifier = notify.NewLog(appLogger)
	}

	// 6. Initialize Risk Manager
	feeModel := risk.FeeModel{
		BuyFeeRate:  cfg.BuyFeeRate,
		SellFeeRate: cfg.SellFeeRate,
		SellTaxRate: cfg.SellTaxRate,
	}
	if cfg.PaperTrading {
		feeModel = risk.PaperFees(cfg.BuyFeeRate)
	}
	riskMgr, err := risk.NewManager(risk.Config{
		PositionSizePct:   cfg.PositionSizePct,
		StopLossPct:       cfg.StopLossPct,
		TakeProfitPct:     cfg.TakeProfitPct,
		DailyLossLimitPct: cfg.DailyLossLimitPct,
		MaxOpenPositions:  cfg.MaxOpenPositions,
	}, feeModel, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk manager")
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	// 7. Initialize Strategy Ensemble
	evaluator, err := strategy.NewEnsemble(strategy.Config{
		Indicators: indicators.Config{
			ShortMAPeriod: cfg.StrategyShortMAPeriod,
			LongMAPeriod:  cfg.StrategyLongMAPeriod,
			RSIPeriod:     cfg.StrategyRSIPeriod,
			MACDFast:      cfg.StrategyMACDFast,
			MACDSlow:      cfg.StrategyMACDSlow,
			MACDSignal:    cfg.StrategyMACDSignal,
		},
		NewsThreshold: cfg.NewsScoreThreshold,
	}, []strategy.Voter{
		strategy.MACrossover{},
		strategy.RSIThreshold{Oversold: cfg.StrategyRSIOversold, Overbought: cfg.StrategyRSIOverbought},
		strategy.MACDCrossover{},
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy ensemble")
		log.Fatalf("FATAL: Failed to initialize strategy ensemble: %v", err)
	}

	// 8. Initialize Order Throttle
	thr, err := throttle.New(throttle.Config{
		DailyCallBudget: cfg.DailyCallBudget,
		QuoteBatchSize:  cfg.QuoteBatchSize,
	}, gateway, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order throttle")
		log.Fatalf("FATAL: Failed to initialize order throttle: %v", err)
	}

	// 9. News sentiment (static provider; scores are fed externally)
	sentiment := news.NewStaticProvider()

	// 10. Assemble the Trading Service
	service, err := app.NewTradingService(app.Config{
		WatchCodes:             cfg.WatchCodes,
		OrderTimeout:           cfg.OrderTimeout,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		TickSnapshotInterval:   cfg.TickSnapshotInterval,
		TickRetention:          time.Duration(cfg.TickRetentionDays) * 24 * time.Hour,
	}, appLogger, gateway, riskMgr, evaluator, thr, repo, repo, notifier, sentiment)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 11. Surge Detector (background scanner feeding the execution loop).
	// Without an operator console, manual mode declines every candidate and
	// logs what it would have entered.
	var approve surge.ApproveFunc
	if !cfg.SurgeAutoApprove {
		approve = func(cand domain.SurgeCandidate) bool {
			appLogger.Info(context.Background(), "Surge candidate requires approval, declining (set SURGE_AUTO_APPROVE=true for unattended entry)", map[string]interface{}{
				"stockCode": cand.StockCode, "name": cand.Name,
				"changePct": cand.ChangePct, "volumeRatio": cand.VolumeRatio,
			})
			return false
		}
	}
	detector, err := surge.NewDetector(surge.Config{
		PollInterval:   cfg.SurgePollInterval,
		TopN:           cfg.SurgeTopN,
		MinChangePct:   cfg.SurgeMinChangePct,
		MinVolumeRatio: cfg.SurgeMinVolumeRatio,
		Cooldown:       cfg.SurgeCooldown,
		AutoApprove:    cfg.SurgeAutoApprove,
	}, gateway, riskMgr, service.AdmitSurge, approve, appLogger, notifier)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize surge detector")
		log.Fatalf("FATAL: Failed to initialize surge detector: %v", err)
	}
	go detector.Run(ctx)

	// 12. Connection Health Checker
	health, err := monitor.NewHealthChecker(monitor.Config{
		CheckInterval:        cfg.HealthCheckInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, gateway, appLogger, notifier)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize health checker")
		log.Fatalf("FATAL: Failed to initialize health checker: %v", err)
	}
	go health.Run(ctx)

	// 13. Run the execution loop until shutdown
	if err := service.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("Trading service exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Shutdown complete")
}
