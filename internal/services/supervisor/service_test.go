package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

type fakeDigest struct {
	digest *models.SignalDigest
	err    error
}

func (f *fakeDigest) Build(ctx context.Context, lookbackDays int) (*models.SignalDigest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.digest, nil
}

type fakePipeline struct {
	results map[models.StrategyTag]*models.PipelineResult

	mu     sync.Mutex
	inputs []*interfaces.PipelineInput
}

func (f *fakePipeline) Run(ctx context.Context, input *interfaces.PipelineInput) *models.PipelineResult {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if r, ok := f.results[input.Strategy]; ok {
		return r
	}
	return &models.PipelineResult{Strategy: input.Strategy, Stage: "pipeline", Err: "no result configured"}
}

type executedRun struct {
	candidates []models.ExecutionCandidate
	budget     float64
}

type fakeExecutor struct {
	runs []executedRun
}

func (f *fakeExecutor) Execute(ctx context.Context, candidates []models.ExecutionCandidate, budget float64, broker interfaces.Broker) *models.ExecutionSummary {
	f.runs = append(f.runs, executedRun{candidates: candidates, budget: budget})
	summary := &models.ExecutionSummary{IsReal: broker.IsReal(), Budget: budget}
	for _, c := range candidates {
		amount := c.AllocationPct / 100 * budget
		summary.Bought = append(summary.Bought, models.TradeResult{Ticker: c.Ticker, Success: true, AmountSpent: amount})
		summary.TotalSpent += amount
	}
	return summary
}

type fakeSells struct {
	signals []models.SellSignal
}

func (f *fakeSells) Evaluate(positions []models.Position, prices map[string]float64, now time.Time) []models.SellSignal {
	return f.signals
}

type fakeMarketData struct {
	prices   map[string]float64
	fxRate   float64
	fxErr    error
	priceErr map[string]error
}

func (f *fakeMarketData) GetPrice(ctx context.Context, ticker string) (float64, error) {
	if err, ok := f.priceErr[ticker]; ok {
		return 0, err
	}
	if p, ok := f.prices[ticker]; ok {
		return p, nil
	}
	return 0, errors.New("no price")
}

func (f *fakeMarketData) GetReturns(ctx context.Context, ticker string) (*models.PriceReturns, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetTechnicals(ctx context.Context, ticker string) (*models.Technicals, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetEarnings(ctx context.Context, ticker string) (*models.EarningsInfo, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetInsiderHistory(ctx context.Context, ticker string) (*models.InsiderHistory, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]interfaces.PricePoint, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetEarningsCalendar(ctx context.Context, from, to time.Time) ([]interfaces.EarningsEvent, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetAnalystRevisions(ctx context.Context, ticker string) ([]interfaces.AnalystRevision, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) SearchStocks(ctx context.Context, query string) ([]interfaces.SearchResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) ScreenGlobalMarkets(ctx context.Context, filter string, limit int) ([]interfaces.ScreenResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeMarketData) GetFXRate(ctx context.Context, pair string) (float64, error) {
	if f.fxErr != nil {
		return 0, f.fxErr
	}
	if f.fxRate == 0 {
		return 1.0, nil
	}
	return f.fxRate, nil
}

type fakeBlacklist struct {
	active  map[string]struct{}
	added   []string
	cleaned bool
}

func (f *fakeBlacklist) AddMany(ctx context.Context, tickers []string) error {
	f.added = append(f.added, tickers...)
	return nil
}

func (f *fakeBlacklist) ActiveSet(ctx context.Context, ttlDays int) (map[string]struct{}, error) {
	return f.active, nil
}

func (f *fakeBlacklist) Cleanup(ctx context.Context, ttlDays int) error {
	f.cleaned = true
	return nil
}

type fakeSentiments struct {
	saved []models.SentimentRecord
}

func (f *fakeSentiments) SaveRecords(ctx context.Context, records []models.SentimentRecord) error {
	f.saved = append(f.saved, records...)
	return nil
}

func (f *fakeSentiments) GetByDate(ctx context.Context, date string) ([]models.SentimentRecord, error) {
	return nil, nil
}

func (f *fakeSentiments) DatesBetween(ctx context.Context, start, end string) ([]string, error) {
	return nil, nil
}

type fakeSnapshots struct {
	saved []models.PortfolioSnapshot
}

func (f *fakeSnapshots) SaveSnapshot(ctx context.Context, snapshot *models.PortfolioSnapshot) error {
	f.saved = append(f.saved, *snapshot)
	return nil
}

func (f *fakeSnapshots) GetLatest(ctx context.Context, account string) (*models.PortfolioSnapshot, error) {
	return nil, interfaces.ErrNotFound
}

func (f *fakeSnapshots) GetByDate(ctx context.Context, date string) ([]models.PortfolioSnapshot, error) {
	return nil, nil
}

type soldOrder struct {
	instrument string
	quantity   float64
}

type fakeBroker struct {
	real      bool
	positions []models.Position
	cash      float64
	sold      []soldOrder
}

func (f *fakeBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	return f.positions, nil
}

func (f *fakeBroker) GetFreeCash(ctx context.Context) (float64, error) { return f.cash, nil }

func (f *fakeBroker) ResolveInstrument(ctx context.Context, ticker string) (string, error) {
	return ticker + "_US_EQ", nil
}

func (f *fakeBroker) PlaceMarketOrderValue(ctx context.Context, instrument string, amount float64) (*models.OrderFill, error) {
	return &models.OrderFill{AmountSpent: amount}, nil
}

func (f *fakeBroker) PlaceMarketOrderQuantity(ctx context.Context, instrument string, quantity float64) (*models.OrderFill, error) {
	f.sold = append(f.sold, soldOrder{instrument: instrument, quantity: quantity})
	return &models.OrderFill{Quantity: quantity}, nil
}

func (f *fakeBroker) IsReal() bool { return f.real }

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Signals.MinInsiderTickers = 2
	cfg.Signals.ResearchTopN = 10
	cfg.Signals.MaxPicksPerRun = 2
	return cfg
}

func enriched(ticker string, source models.CandidateSource, conviction float64) models.EnrichedCandidate {
	return models.EnrichedCandidate{Candidate: models.Candidate{
		Ticker:          ticker,
		Source:          source,
		ConvictionScore: conviction,
	}}
}

func goodDigest() *models.SignalDigest {
	return &models.SignalDigest{
		Candidates: []models.EnrichedCandidate{
			enriched("AMD", models.SourceInsider, 100),
			enriched("NVDA", models.SourceCombined, 80),
		},
		InsiderCount: 2,
		LookbackDays: 7,
	}
}

func reviewWith(picks ...models.StockPick) *models.PipelineResult {
	return &models.PipelineResult{
		Review: &models.PickReview{DailyPicks: models.DailyPicks{Picks: picks}},
	}
}

type services struct {
	svc       *Service
	pipeline  *fakePipeline
	executor  *fakeExecutor
	blacklist *fakeBlacklist
	notifier  *fakeNotifier
	sentiment *fakeSentiments
	snapshots *fakeSnapshots
	broker    *fakeBroker
}

func newServices(digest *fakeDigest, pipeline *fakePipeline, md *fakeMarketData) *services {
	s := &services{
		pipeline:  pipeline,
		executor:  &fakeExecutor{},
		blacklist: &fakeBlacklist{},
		notifier:  &fakeNotifier{},
		sentiment: &fakeSentiments{},
		snapshots: &fakeSnapshots{},
		broker:    &fakeBroker{cash: 1000},
	}
	brokers := map[models.StrategyTag]interfaces.Broker{
		models.StrategyConservative: s.broker,
		models.StrategyAggressive:   s.broker,
	}
	s.svc = NewService(testConfig(), digest, pipeline, s.executor, &fakeSells{}, md,
		s.blacklist, s.sentiment, s.snapshots, brokers, s.notifier, arbor.NewLogger())
	return s
}

// 2026-08-21 is a Friday, 2026-08-22 a Saturday.
var friday = time.Date(2026, 8, 21, 15, 30, 0, 0, time.UTC)
var saturday = time.Date(2026, 8, 22, 15, 30, 0, 0, time.UTC)

func TestRunDailyCycle_SkipsWeekend(t *testing.T) {
	s := newServices(&fakeDigest{digest: goodDigest()}, &fakePipeline{}, &fakeMarketData{})

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: saturday})
	assert.Equal(t, models.CycleSkipped, result.Status)
	assert.Equal(t, "non-trading day", result.Reason)
	assert.Empty(t, s.pipeline.inputs)
}

func TestRunDailyCycle_ForceBypassesGate(t *testing.T) {
	pipeline := &fakePipeline{results: map[models.StrategyTag]*models.PipelineResult{
		models.StrategyConservative: reviewWith(),
		models.StrategyAggressive:   reviewWith(),
	}}
	s := newServices(&fakeDigest{digest: goodDigest()}, pipeline, &fakeMarketData{})

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: saturday, Force: true})
	assert.Equal(t, models.CycleCompleted, result.Status)
	assert.Len(t, pipeline.inputs, 2)
}

func TestRunDailyCycle_LowSignalSkip(t *testing.T) {
	digest := goodDigest()
	digest.InsiderCount = 1
	s := newServices(&fakeDigest{digest: digest}, &fakePipeline{}, &fakeMarketData{})

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: friday})
	assert.Equal(t, models.CycleSkipped, result.Status)
	assert.Equal(t, "low signal day", result.Reason)
	assert.Empty(t, s.pipeline.inputs)
	require.Len(t, s.notifier.messages, 1)
	assert.Contains(t, s.notifier.messages[0], "low signal day")
}

func TestRunDailyCycle_DigestFailureIsError(t *testing.T) {
	s := newServices(&fakeDigest{err: errors.New("scraper down")}, &fakePipeline{}, &fakeMarketData{})

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: friday})
	assert.Equal(t, models.CycleError, result.Status)
	assert.Equal(t, "digest", result.Stage)
}

func TestRunDailyCycle_BlacklistFiltersCandidates(t *testing.T) {
	pipeline := &fakePipeline{results: map[models.StrategyTag]*models.PipelineResult{
		models.StrategyConservative: reviewWith(),
		models.StrategyAggressive:   reviewWith(),
	}}
	s := newServices(&fakeDigest{digest: goodDigest()}, pipeline, &fakeMarketData{})
	s.blacklist.active = map[string]struct{}{"AMD": {}}

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: friday})
	require.Equal(t, models.CycleCompleted, result.Status)
	require.Len(t, result.Digest.Candidates, 1)
	assert.Equal(t, "NVDA", result.Digest.Candidates[0].Ticker)
	assert.True(t, s.blacklist.cleaned)
}

func TestRunDailyCycle_ExecutesBuysWithFXConversion(t *testing.T) {
	pipeline := &fakePipeline{results: map[models.StrategyTag]*models.PipelineResult{
		models.StrategyConservative: reviewWith(
			models.StockPick{Ticker: "AMD", Action: models.ActionBuy, AllocationPct: 40},
			models.StockPick{Ticker: "NVDA", Action: models.ActionBuy, AllocationPct: 60},
			models.StockPick{Ticker: "MSFT", Action: models.ActionHold, AllocationPct: 0},
		),
		models.StrategyAggressive: {Stage: "sentiment", Err: "model error"},
	}}
	md := &fakeMarketData{
		prices: map[string]float64{"AMD": 162, "NVDA": 108},
		fxRate: 1.08,
	}
	s := newServices(&fakeDigest{digest: goodDigest()}, pipeline, md)

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: friday})
	require.Equal(t, models.CycleCompleted, result.Status)

	// Only the conservative strategy executed; the failed aggressive one is
	// isolated.
	require.Len(t, s.executor.runs, 1)
	run := s.executor.runs[0]
	require.Len(t, run.candidates, 2)
	// Sorted by allocation descending.
	assert.Equal(t, "NVDA", run.candidates[0].Ticker)
	assert.InDelta(t, 100.0, run.candidates[0].PriceLocal, 0.001) // 108 USD / 1.08
	assert.Equal(t, "AMD", run.candidates[1].Ticker)
	assert.InDelta(t, 150.0, run.candidates[1].PriceLocal, 0.001)

	require.Contains(t, result.Executions, models.StrategyConservative)
	assert.NotContains(t, result.Executions, models.StrategyAggressive)
}

func TestRunDailyCycle_DropsUnpricedPicksAndCapsCount(t *testing.T) {
	pipeline := &fakePipeline{results: map[models.StrategyTag]*models.PipelineResult{
		models.StrategyConservative: reviewWith(
			models.StockPick{Ticker: "AAA", Action: models.ActionBuy, AllocationPct: 50},
			models.StockPick{Ticker: "BBB", Action: models.ActionBuy, AllocationPct: 30},
			models.StockPick{Ticker: "CCC", Action: models.ActionBuy, AllocationPct: 20},
		),
		models.StrategyAggressive: reviewWith(),
	}}
	md := &fakeMarketData{prices: map[string]float64{"AAA": 10, "CCC": 20}}
	s := newServices(&fakeDigest{digest: goodDigest()}, pipeline, md)

	s.svc.RunDailyCycle(context.Background(), Options{Date: friday})

	// max_picks_per_run = 2 keeps AAA and BBB; BBB has no price and drops.
	require.Len(t, s.executor.runs, 1)
	run := s.executor.runs[0]
	require.Len(t, run.candidates, 1)
	assert.Equal(t, "AAA", run.candidates[0].Ticker)
}

func TestRunDailyCycle_DryRunSkipsExecution(t *testing.T) {
	pipeline := &fakePipeline{results: map[models.StrategyTag]*models.PipelineResult{
		models.StrategyConservative: reviewWith(
			models.StockPick{Ticker: "AMD", Action: models.ActionBuy, AllocationPct: 50},
		),
		models.StrategyAggressive: reviewWith(),
	}}
	md := &fakeMarketData{prices: map[string]float64{"AMD": 100}}
	s := newServices(&fakeDigest{digest: goodDigest()}, pipeline, md)

	result := s.svc.RunDailyCycle(context.Background(), Options{Date: friday, DryRun: true})
	assert.Equal(t, models.CycleCompleted, result.Status)
	assert.Empty(t, s.executor.runs)
	assert.Nil(t, result.Executions)
}

func TestRunDailyCycle_PersistsSentimentRows(t *testing.T) {
	pipeline := &fakePipeline{results: map[models.StrategyTag]*models.PipelineResult{
		models.StrategyConservative: {
			Sentiment: &models.SentimentReport{Tickers: []models.TickerSentiment{
				{Ticker: "AMD", Mentions: 4, Score: 0.6},
			}},
			Review: &models.PickReview{},
		},
		models.StrategyAggressive: reviewWith(),
	}}
	s := newServices(&fakeDigest{digest: goodDigest()}, pipeline, &fakeMarketData{})

	s.svc.RunDailyCycle(context.Background(), Options{Date: friday})

	require.Len(t, s.sentiment.saved, 1)
	record := s.sentiment.saved[0]
	assert.Equal(t, "2026-08-21", record.Date)
	assert.Equal(t, "AMD", record.Ticker)
	assert.Equal(t, 100.0, record.ConvictionScore)
	assert.Equal(t, string(models.SourceInsider), record.Source)
}

func TestCapCandidates_ReservesPoliticianSlots(t *testing.T) {
	candidates := []models.EnrichedCandidate{
		enriched("I1", models.SourceInsider, 100),
		enriched("I2", models.SourceInsider, 90),
		enriched("P1", models.SourcePoliticians, 80),
		enriched("I3", models.SourceInsider, 70),
		enriched("P2", models.SourcePoliticians, 60),
		enriched("I4", models.SourceInsider, 50),
	}

	capped := capCandidates(candidates, 4, 2)

	require.Len(t, capped, 4)
	tickers := make([]string, 0, 4)
	for _, c := range capped {
		tickers = append(tickers, c.Ticker)
	}
	// Two insider slots, two reserved politician slots, conviction order kept.
	assert.Equal(t, []string{"I1", "I2", "P1", "P2"}, tickers)
}

func TestCapCandidates_UnusedReservedSlotsBackfill(t *testing.T) {
	candidates := []models.EnrichedCandidate{
		enriched("I1", models.SourceInsider, 100),
		enriched("I2", models.SourceInsider, 90),
		enriched("I3", models.SourceInsider, 80),
		enriched("I4", models.SourceInsider, 70),
	}

	capped := capCandidates(candidates, 3, 2)
	require.Len(t, capped, 3)
	assert.Equal(t, "I3", capped[2].Ticker)
}

func TestRunSellChecks_PlacesSellOrders(t *testing.T) {
	s := newServices(&fakeDigest{digest: goodDigest()}, &fakePipeline{}, &fakeMarketData{
		prices: map[string]float64{"AMD": 85},
	})
	s.broker.positions = []models.Position{
		{Ticker: "AMD", Quantity: 3, AvgBuyPrice: 100},
	}

	sells := &fakeSells{signals: []models.SellSignal{
		{Ticker: "AMD", Type: models.SellStopLoss, ReturnPct: -15},
	}}
	s.svc.sells = sells

	require.NoError(t, s.svc.RunSellChecks(context.Background(), SellCheckOptions{Date: friday}))

	require.Len(t, s.broker.sold, 1)
	assert.Equal(t, "AMD_US_EQ", s.broker.sold[0].instrument)
	assert.Equal(t, -3.0, s.broker.sold[0].quantity)
	require.Len(t, s.notifier.messages, 1)
	assert.Contains(t, s.notifier.messages[0], "AMD")
}

func TestRunSellChecks_RealOnlySkipsPracticeAccounts(t *testing.T) {
	s := newServices(&fakeDigest{digest: goodDigest()}, &fakePipeline{}, &fakeMarketData{})
	s.broker.positions = []models.Position{{Ticker: "AMD", Quantity: 3, AvgBuyPrice: 100}}
	s.svc.sells = &fakeSells{signals: []models.SellSignal{{Ticker: "AMD", Type: models.SellStopLoss}}}

	require.NoError(t, s.svc.RunSellChecks(context.Background(), SellCheckOptions{Date: friday, RealOnly: true}))
	assert.Empty(t, s.broker.sold)
}

func TestRunEODSnapshot(t *testing.T) {
	md := &fakeMarketData{prices: map[string]float64{"AMD": 150}}
	s := newServices(&fakeDigest{digest: goodDigest()}, &fakePipeline{}, md)
	s.broker.cash = 40
	s.broker.positions = []models.Position{
		{Ticker: "AMD", Quantity: 2, AvgBuyPrice: 100},
		{Ticker: "GHOST", Quantity: 1, AvgBuyPrice: 30},
	}

	require.NoError(t, s.svc.RunEODSnapshot(context.Background()))

	// One shared broker across both strategies means one snapshot.
	require.Len(t, s.snapshots.saved, 1)
	snap := s.snapshots.saved[0]
	assert.Equal(t, "demo", snap.Account)
	// 40 cash + 2*150 AMD + 1*30 GHOST at cost basis.
	assert.InDelta(t, 370, snap.TotalValue, 0.001)
}

func TestRunCollect_StoresDigestRows(t *testing.T) {
	s := newServices(&fakeDigest{digest: goodDigest()}, &fakePipeline{}, &fakeMarketData{})

	require.NoError(t, s.svc.RunCollect(context.Background()))

	require.Len(t, s.sentiment.saved, 2)
	assert.Equal(t, "AMD", s.sentiment.saved[0].Ticker)
	assert.Equal(t, string(models.SourceInsider), s.sentiment.saved[0].Source)
	assert.InDelta(t, 100, s.sentiment.saved[0].ConvictionScore, 0.001)
	assert.Equal(t, "NVDA", s.sentiment.saved[1].Ticker)
	assert.NotEmpty(t, s.sentiment.saved[0].Date)
}

func TestRunCollect_DigestFailure(t *testing.T) {
	s := newServices(&fakeDigest{err: errors.New("scraper down")}, &fakePipeline{}, &fakeMarketData{})

	err := s.svc.RunCollect(context.Background())
	assert.ErrorContains(t, err, "signal collection failed")
	assert.Empty(t, s.sentiment.saved)
}

func TestRunDailyCycle_GateUsesConfiguredTimezone(t *testing.T) {
	s := newServices(&fakeDigest{digest: goodDigest()}, &fakePipeline{}, &fakeMarketData{})

	// Friday 23:30 UTC is already Saturday in Europe/Amsterdam.
	lateFriday := time.Date(2026, 8, 21, 23, 30, 0, 0, time.UTC)
	result := s.svc.RunDailyCycle(context.Background(), Options{Date: lateFriday})

	assert.Equal(t, models.CycleSkipped, result.Status)
	assert.Equal(t, "non-trading day", result.Reason)
	assert.Equal(t, "2026-08-22", result.Date)
}
