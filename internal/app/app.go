// Package app wires configuration, storage, clients and services into a
// runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/clients/broker"
	"github.com/ternarybob/tradewind/internal/clients/capitoltrades"
	"github.com/ternarybob/tradewind/internal/clients/news"
	"github.com/ternarybob/tradewind/internal/clients/notifier"
	"github.com/ternarybob/tradewind/internal/clients/openinsider"
	"github.com/ternarybob/tradewind/internal/clients/stockdata"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/llm"
	"github.com/ternarybob/tradewind/internal/models"
	"github.com/ternarybob/tradewind/internal/services/backtest"
	"github.com/ternarybob/tradewind/internal/services/digest"
	"github.com/ternarybob/tradewind/internal/services/executor"
	"github.com/ternarybob/tradewind/internal/services/pipeline"
	"github.com/ternarybob/tradewind/internal/services/scheduler"
	"github.com/ternarybob/tradewind/internal/services/sellstrategy"
	"github.com/ternarybob/tradewind/internal/services/supervisor"
	badgerstore "github.com/ternarybob/tradewind/internal/storage/badger"
	"github.com/ternarybob/tradewind/internal/storage/blacklist"
)

// Job run bounds. The decision cycle contains two LLM pipelines and the
// broker round trips; everything else is short.
const (
	decideJobTimeout  = 45 * time.Minute
	collectJobTimeout = 10 * time.Minute
	eodJobTimeout     = 15 * time.Minute
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB         *badgerstore.BadgerDB
	Sentiments interfaces.SentimentStore
	Backtests  interfaces.BacktestStore
	Snapshots  interfaces.SnapshotStore
	Blacklist  interfaces.BlacklistStore

	// Clients
	MarketData interfaces.MarketDataClient
	Brokers    map[models.StrategyTag]interfaces.Broker
	Notifier   interfaces.Notifier

	// LLM
	Factory *llm.ProviderFactory
	Tools   *llm.ToolRegistry

	// Services
	State      *common.ProcessState
	Digest     interfaces.DigestBuilder
	Pipeline   interfaces.PipelineRunner
	Executor   interfaces.TradeExecutor
	Sells      interfaces.SellEvaluator
	Supervisor *supervisor.Service
	Backtest   *backtest.Service
	Scheduler  interfaces.SchedulerService
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := a.initClients(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := a.initServices(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("timezone", cfg.Timezone).
		Msg("Application initialization complete")
	return a, nil
}

func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.Sentiments = badgerstore.NewSentimentStorage(db, a.Logger)
	a.Backtests = badgerstore.NewBacktestStorage(db, a.Logger)
	a.Snapshots = badgerstore.NewSnapshotStorage(db, a.Logger)
	a.Blacklist = blacklist.NewStore(a.Config.Storage.Blacklist, a.Logger)

	a.Logger.Debug().
		Str("badger", a.Config.Storage.Badger.Path).
		Str("blacklist", a.Config.Storage.Blacklist).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initClients() error {
	cfg := a.Config.Clients

	a.MarketData = stockdata.NewClient(cfg.StockData.APIKey,
		stockdata.WithBaseURL(cfg.StockData.BaseURL),
		stockdata.WithRateLimit(cfg.StockData.RateLimit),
		stockdata.WithHTTPClient(&http.Client{Timeout: cfg.StockData.GetTimeout()}),
		stockdata.WithLogger(a.Logger),
	)

	// One broker client per account class; strategies on the same account
	// share the instance and its instrument cache.
	byAccount := make(map[bool]interfaces.Broker, 2)
	a.Brokers = make(map[models.StrategyTag]interfaces.Broker, 2)
	for _, tag := range []models.StrategyTag{models.StrategyConservative, models.StrategyAggressive} {
		strategy := a.Config.StrategyFor(string(tag))
		client, ok := byAccount[strategy.Real]
		if !ok {
			baseURL := cfg.Broker.PracticeBaseURL
			if strategy.Real {
				baseURL = cfg.Broker.BaseURL
			}
			client = broker.NewClient(cfg.Broker.APIKey, strategy.Real,
				broker.WithBaseURL(baseURL),
				broker.WithHTTPClient(&http.Client{Timeout: cfg.Broker.GetTimeout()}),
				broker.WithLogger(a.Logger),
			)
			byAccount[strategy.Real] = client
		}
		a.Brokers[tag] = client
	}

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		a.Notifier = notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			notifier.WithLogger(a.Logger),
		)
	}
	return nil
}

func (a *App) initServices() error {
	cfg := a.Config
	a.State = common.NewProcessState(cfg.Signals.NewsConcurrency)

	insider := openinsider.NewClient(
		openinsider.WithBaseURL(cfg.Clients.OpenInsider.BaseURL),
		openinsider.WithHTTPClient(&http.Client{Timeout: cfg.Clients.OpenInsider.GetTimeout()}),
		openinsider.WithLogger(a.Logger),
	)

	var politicians interfaces.PoliticianSource
	if cfg.Signals.PoliticiansEnabled {
		politicians = capitoltrades.NewClient(
			capitoltrades.WithBaseURL(cfg.Clients.CapitolTrades.BaseURL),
			capitoltrades.WithHTTPClient(&http.Client{Timeout: cfg.Clients.CapitolTrades.GetTimeout()}),
			capitoltrades.WithLogger(a.Logger),
		)
	}

	var newsProvider interfaces.NewsProvider
	if cfg.Clients.News.APIKey != "" {
		newsProvider = news.NewClient(cfg.Clients.News.APIKey,
			news.WithBaseURL(cfg.Clients.News.BaseURL),
			news.WithRateLimit(cfg.Clients.News.RateLimit),
			news.WithHTTPClient(&http.Client{Timeout: cfg.Clients.News.GetTimeout()}),
			news.WithLogger(a.Logger),
		)
	}

	factory, err := llm.NewProviderFactory(cfg, a.Logger)
	if err != nil {
		return err
	}
	a.Factory = factory
	a.Tools = llm.NewToolRegistry(a.MarketData, newsProvider, a.State, a.Logger)

	a.Digest = digest.NewService(insider, politicians, a.MarketData, newsProvider, a.State, cfg.Signals, a.Logger)
	a.Pipeline = pipeline.NewService(factory, a.Tools, cfg.Pipeline, cfg.Strategies, a.Logger)
	a.Executor = executor.NewService(a.Blacklist, a.Logger)
	a.Sells = sellstrategy.NewService(cfg.Sell, a.Logger)

	a.Supervisor = supervisor.NewService(
		cfg,
		a.Digest,
		a.Pipeline,
		a.Executor,
		a.Sells,
		a.MarketData,
		a.Blacklist,
		a.Sentiments,
		a.Snapshots,
		a.Brokers,
		a.Notifier,
		a.Logger,
	)
	a.Backtest = backtest.NewService(a.Sentiments, a.Backtests, a.MarketData, a.Pipeline, a.Sells, cfg, a.Logger)
	a.Scheduler = scheduler.NewService(cfg.Location(), a.Logger)

	return a.registerJobs()
}

// registerJobs binds the weekday job times to supervisor runs.
func (a *App) registerJobs() error {
	for i, hhmm := range a.Config.Scheduler.CollectTimes {
		expr, err := scheduler.WeekdayCron(hhmm)
		if err != nil {
			return fmt.Errorf("invalid collect time %q: %w", hhmm, err)
		}
		name := fmt.Sprintf("collect-%d", i+1)
		if err := a.Scheduler.RegisterJob(name, expr, a.collectJob); err != nil {
			return err
		}
	}

	expr, err := scheduler.WeekdayCron(a.Config.Scheduler.ExecuteTime)
	if err != nil {
		return fmt.Errorf("invalid execute time %q: %w", a.Config.Scheduler.ExecuteTime, err)
	}
	if err := a.Scheduler.RegisterJob("decide", expr, a.decideJob); err != nil {
		return err
	}

	expr, err = scheduler.WeekdayCron(a.Config.Scheduler.EODTime)
	if err != nil {
		return fmt.Errorf("invalid eod time %q: %w", a.Config.Scheduler.EODTime, err)
	}
	return a.Scheduler.RegisterJob("eod", expr, a.eodJob)
}

func (a *App) collectJob() error {
	ctx, cancel := context.WithTimeout(context.Background(), collectJobTimeout)
	defer cancel()
	return a.Supervisor.RunCollect(ctx)
}

func (a *App) decideJob() error {
	ctx, cancel := context.WithTimeout(context.Background(), decideJobTimeout)
	defer cancel()

	result := a.Supervisor.RunDailyCycle(ctx, supervisor.Options{})
	if result.Status == models.CycleError {
		return fmt.Errorf("daily cycle failed at %s: %s", result.Stage, result.Error)
	}
	return nil
}

func (a *App) eodJob() error {
	ctx, cancel := context.WithTimeout(context.Background(), eodJobTimeout)
	defer cancel()

	if err := a.Supervisor.RunSellChecks(ctx, supervisor.SellCheckOptions{}); err != nil {
		a.Logger.Error().Err(err).Msg("Sell checks failed")
	}
	return a.Supervisor.RunEODSnapshot(ctx)
}

// Close releases all application resources.
func (a *App) Close() error {
	if a.Scheduler != nil && a.Scheduler.IsRunning() {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.Factory != nil {
		if err := a.Factory.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("LLM provider close failed")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
