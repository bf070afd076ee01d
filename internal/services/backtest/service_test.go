package backtest

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

type fakeSentiments struct {
	byDate map[string][]models.SentimentRecord
	dates  []string
}

func (f *fakeSentiments) SaveRecords(ctx context.Context, records []models.SentimentRecord) error {
	return nil
}

func (f *fakeSentiments) GetByDate(ctx context.Context, date string) ([]models.SentimentRecord, error) {
	return f.byDate[date], nil
}

func (f *fakeSentiments) DatesBetween(ctx context.Context, start, end string) ([]string, error) {
	return f.dates, nil
}

type fakeStore struct {
	mu      sync.Mutex
	runs    map[string]*models.BacktestRun
	days    []models.BacktestDayResult
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: make(map[string]*models.BacktestRun)}
}

func (f *fakeStore) SaveRun(ctx context.Context, run *models.BacktestRun) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) UpdateRun(ctx context.Context, run *models.BacktestRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) GetRun(ctx context.Context, id string) (*models.BacktestRun, error) {
	if run, ok := f.runs[id]; ok {
		return run, nil
	}
	return nil, interfaces.ErrNotFound
}

func (f *fakeStore) SaveDayResult(ctx context.Context, result *models.BacktestDayResult) error {
	f.mu.Lock()
	f.days = append(f.days, *result)
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) GetDayResults(ctx context.Context, runID string) ([]models.BacktestDayResult, error) {
	return f.days, nil
}

type fakeMarketData struct {
	prices map[string]float64
	calls  []string
}

func (f *fakeMarketData) GetPrice(ctx context.Context, ticker string) (float64, error) {
	f.calls = append(f.calls, ticker)
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
	return 1, nil
}

type fakePipeline struct {
	review   *models.PickReview
	failDate string

	mu     sync.Mutex
	inputs []*interfaces.PipelineInput
}

func (f *fakePipeline) Run(ctx context.Context, input *interfaces.PipelineInput) *models.PipelineResult {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.failDate != "" && input.RunDate.Format("2006-01-02") == f.failDate {
		return &models.PipelineResult{Strategy: input.Strategy, Stage: "sentiment", Err: "model error"}
	}
	return &models.PipelineResult{Strategy: input.Strategy, Review: f.review}
}

type fakeSells struct {
	sellOn map[string]bool // ticker -> sell when seen
}

func (f *fakeSells) Evaluate(positions []models.Position, prices map[string]float64, now time.Time) []models.SellSignal {
	var signals []models.SellSignal
	for _, p := range positions {
		if f.sellOn[p.Ticker] {
			signals = append(signals, models.SellSignal{Ticker: p.Ticker, Type: models.SellTakeProfit})
		}
	}
	return signals
}

func record(date, ticker, source string, conviction float64) models.SentimentRecord {
	return models.SentimentRecord{
		Date:            date,
		Ticker:          ticker,
		Source:          source,
		ConvictionScore: conviction,
	}
}

func backtestConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Signals.MaxPicksPerRun = 3
	cfg.Signals.MarketDataTickerLimit = 2
	return cfg
}

func TestRun_ReplaysDatesAndPersists(t *testing.T) {
	sentiments := &fakeSentiments{
		// 2026-08-21 Friday, 2026-08-22 Saturday (dropped), 2026-08-24 Monday.
		dates: []string{"2026-08-21", "2026-08-22", "2026-08-24"},
		byDate: map[string][]models.SentimentRecord{
			"2026-08-21": {record("2026-08-21", "AMD", "insider", 100)},
			"2026-08-24": {record("2026-08-24", "AMD", "insider", 90)},
		},
	}
	store := newFakeStore()
	md := &fakeMarketData{prices: map[string]float64{"AMD": 10}}
	pipeline := &fakePipeline{review: &models.PickReview{DailyPicks: models.DailyPicks{Picks: []models.StockPick{
		{Ticker: "AMD", Action: models.ActionBuy, AllocationPct: 50},
	}}}}

	svc := NewService(sentiments, store, md, pipeline, &fakeSells{}, backtestConfig(), arbor.NewLogger())
	run, err := svc.Run(context.Background(), RunOptions{Start: "2026-08-21", End: "2026-08-24", Name: "replay", BudgetEUR: 100})
	require.NoError(t, err)

	assert.Equal(t, "completed", run.Status)
	assert.NotEmpty(t, run.ID)

	// Two weekdays, two strategies each.
	assert.Len(t, pipeline.inputs, 4)
	for _, input := range pipeline.inputs {
		require.NotNil(t, input.MarketData, "backtest pipelines get precomputed market data")
	}
	assert.Len(t, store.days, 4)

	conservative := run.Summaries[models.StrategyConservative]
	assert.Equal(t, 2, conservative.Days)
	// 50% of 100 EUR on each of two days.
	assert.InDelta(t, 100, conservative.Invested, 0.001)
	assert.Equal(t, 2, conservative.Trades)
}

func TestRun_NoDataIsAnError(t *testing.T) {
	sentiments := &fakeSentiments{dates: []string{"2026-08-22"}} // Saturday only
	svc := NewService(sentiments, newFakeStore(), &fakeMarketData{}, &fakePipeline{}, &fakeSells{}, backtestConfig(), arbor.NewLogger())

	_, err := svc.Run(context.Background(), RunOptions{Start: "2026-08-22", End: "2026-08-22"})
	assert.ErrorContains(t, err, "no stored sentiment")
}

func TestRun_PipelineFailureIsIsolatedPerDate(t *testing.T) {
	sentiments := &fakeSentiments{
		dates: []string{"2026-08-20", "2026-08-21"},
		byDate: map[string][]models.SentimentRecord{
			"2026-08-20": {record("2026-08-20", "AMD", "insider", 100)},
			"2026-08-21": {record("2026-08-21", "AMD", "insider", 90)},
		},
	}
	store := newFakeStore()
	md := &fakeMarketData{prices: map[string]float64{"AMD": 10}}
	pipeline := &fakePipeline{
		failDate: "2026-08-20",
		review: &models.PickReview{DailyPicks: models.DailyPicks{Picks: []models.StockPick{
			{Ticker: "AMD", Action: models.ActionBuy, AllocationPct: 100},
		}}},
	}

	svc := NewService(sentiments, store, md, pipeline, &fakeSells{}, backtestConfig(), arbor.NewLogger())
	run, err := svc.Run(context.Background(), RunOptions{Start: "2026-08-20", End: "2026-08-21", BudgetEUR: 100})
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)

	// Day rows exist for both dates; the failed date just has no buys.
	assert.Len(t, store.days, 4)
	conservative := run.Summaries[models.StrategyConservative]
	assert.InDelta(t, 100, conservative.Invested, 0.001)
}

func TestRun_SellPassRealizesPnL(t *testing.T) {
	sentiments := &fakeSentiments{
		dates: []string{"2026-08-20", "2026-08-21"},
		byDate: map[string][]models.SentimentRecord{
			"2026-08-20": {record("2026-08-20", "AMD", "insider", 100)},
			"2026-08-21": {record("2026-08-21", "NVDA", "insider", 90)},
		},
	}
	store := newFakeStore()
	md := &fakeMarketData{prices: map[string]float64{"AMD": 10, "NVDA": 20}}
	pipeline := &fakePipeline{review: &models.PickReview{DailyPicks: models.DailyPicks{Picks: []models.StockPick{
		{Ticker: "AMD", Action: models.ActionBuy, AllocationPct: 100},
	}}}}
	sells := &fakeSells{sellOn: map[string]bool{"AMD": true}}

	svc := NewService(sentiments, store, md, pipeline, sells, backtestConfig(), arbor.NewLogger())
	run, err := svc.Run(context.Background(), RunOptions{Start: "2026-08-20", End: "2026-08-21", BudgetEUR: 100})
	require.NoError(t, err)

	// Day one buys AMD, day two's sell pass closes it at the same price.
	conservative := run.Summaries[models.StrategyConservative]
	assert.GreaterOrEqual(t, conservative.Trades, 2)
}

func TestDigestFromRecords(t *testing.T) {
	digest := digestFromRecords([]models.SentimentRecord{
		record("2026-08-21", "NVDA", "politicians", 50),
		record("2026-08-21", "AMD", "insider", 100),
		record("2026-08-21", "MSFT", "", 20),
	})

	require.Len(t, digest.Candidates, 3)
	assert.Equal(t, "AMD", digest.Candidates[0].Ticker)
	assert.Equal(t, 2, digest.InsiderCount) // AMD plus the defaulted MSFT
	assert.Equal(t, models.SourceInsider, digest.Candidates[2].Source)
}

func TestWeekdaysOnly(t *testing.T) {
	kept := weekdaysOnly([]string{"2026-08-21", "2026-08-22", "2026-08-23", "2026-08-24", "garbage"})
	assert.Equal(t, []string{"2026-08-21", "2026-08-24"}, kept)
}
