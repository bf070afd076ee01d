// Package backtest replays stored sentiment history through the decision
// pipeline against a simulated portfolio, one weekday at a time.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

// RunOptions configures one backtest run.
type RunOptions struct {
	Start     string // inclusive, YYYY-MM-DD
	End       string // inclusive, YYYY-MM-DD
	Name      string
	BudgetEUR float64 // 0 means per-strategy configured budgets
}

// Service drives backtest runs.
type Service struct {
	sentiments interfaces.SentimentStore
	store      interfaces.BacktestStore
	marketData interfaces.MarketDataClient
	pipeline   interfaces.PipelineRunner
	sells      interfaces.SellEvaluator
	config     *common.Config
	logger     arbor.ILogger
}

// NewService wires the backtest engine.
func NewService(
	sentiments interfaces.SentimentStore,
	store interfaces.BacktestStore,
	marketData interfaces.MarketDataClient,
	pipeline interfaces.PipelineRunner,
	sells interfaces.SellEvaluator,
	config *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		sentiments: sentiments,
		store:      store,
		marketData: marketData,
		pipeline:   pipeline,
		sells:      sells,
		config:     config,
		logger:     logger,
	}
}

// strategyState carries one strategy's simulated portfolio through the run.
type strategyState struct {
	tag       models.StrategyTag
	portfolio *SimPortfolio
	budget    float64
	days      int
}

// Run replays the date range. Per-date failures are logged and skipped; only
// storage failures on the run header itself abort.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*models.BacktestRun, error) {
	dates, err := s.sentiments.DatesBetween(ctx, opts.Start, opts.End)
	if err != nil {
		return nil, fmt.Errorf("failed to list sentiment dates: %w", err)
	}
	dates = weekdaysOnly(dates)
	if len(dates) == 0 {
		return nil, fmt.Errorf("no stored sentiment between %s and %s", opts.Start, opts.End)
	}

	run := &models.BacktestRun{
		ID:        uuid.NewString(),
		Name:      opts.Name,
		StartDate: opts.Start,
		EndDate:   opts.End,
		BudgetEUR: opts.BudgetEUR,
		Status:    "running",
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist run header: %w", err)
	}

	states := make([]*strategyState, 0, 2)
	for _, tag := range []models.StrategyTag{models.StrategyConservative, models.StrategyAggressive} {
		budget := opts.BudgetEUR
		if budget <= 0 {
			budget = s.config.StrategyFor(string(tag)).BudgetEUR
		}
		states = append(states, &strategyState{
			tag:       tag,
			portfolio: NewSimPortfolio(),
			budget:    budget,
		})
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("start", opts.Start).
		Str("end", opts.End).
		Int("dates", len(dates)).
		Msg("Backtest run started")

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			run.Status = "failed"
			break
		}
		if err := s.replayDate(ctx, run, states, date); err != nil {
			s.logger.Warn().
				Err(err).
				Str("date", date).
				Msg("Backtest date failed, continuing with next")
		}
	}

	if run.Status == "running" {
		run.Status = "completed"
	}
	run.Summaries = s.summarize(ctx, states)
	if err := s.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("status", run.Status).
		Msg("Backtest run finished")
	return run, nil
}

// replayDate runs one historical day through digest, sells, pipelines and the
// simulated portfolios.
func (s *Service) replayDate(ctx context.Context, run *models.BacktestRun, states []*strategyState, date string) error {
	records, err := s.sentiments.GetByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to load sentiment rows: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	digest := digestFromRecords(records)
	prices, market := s.fetchMarketContext(ctx, digest)
	runDate, _ := time.Parse("2006-01-02", date)

	var wg sync.WaitGroup
	for _, state := range states {
		wg.Add(1)
		go func(state *strategyState) {
			defer wg.Done()
			s.replayStrategy(ctx, run, state, digest, prices, market, date, runDate)
		}(state)
	}
	wg.Wait()
	return nil
}

func (s *Service) replayStrategy(ctx context.Context, run *models.BacktestRun, state *strategyState, digest *models.SignalDigest, prices map[string]float64, market *models.MarketAnalysis, date string, runDate time.Time) {
	tradesBefore := len(state.portfolio.Trades)

	// Sell pass first so freed capital shows up in the day's value.
	for _, signal := range s.sells.Evaluate(state.portfolio.Positions(), prices, runDate) {
		price := prices[common.BaseTicker(signal.Ticker)]
		if pnl, ok := state.portfolio.Sell(signal.Ticker, price, date, string(signal.Type)); ok {
			s.logger.Debug().
				Str("strategy", string(state.tag)).
				Str("ticker", signal.Ticker).
				Float64("pnl", pnl).
				Msg("Backtest position sold")
		}
	}

	input := &interfaces.PipelineInput{
		Strategy:   state.tag,
		Digest:     digest,
		Portfolio:  state.portfolio.Positions(),
		BudgetEUR:  state.budget,
		RunDate:    runDate,
		MarketData: market,
	}
	result := s.pipeline.Run(ctx, input)
	if result.Failed() {
		s.logger.Warn().
			Str("strategy", string(state.tag)).
			Str("date", date).
			Str("stage", result.Stage).
			Str("error", result.Err).
			Msg("Backtest pipeline failed for date, skipping buys")
	} else if result.Review != nil {
		s.applyBuys(state, result.Review, prices, date)
	}

	state.days++

	dayTrades := state.portfolio.Trades[tradesBefore:]
	tradesJSON, err := json.Marshal(dayTrades)
	if err != nil {
		tradesJSON = []byte("[]")
	}

	row := &models.BacktestDayResult{
		RunID:         run.ID,
		Date:          date,
		Strategy:      state.tag,
		Invested:      state.portfolio.Invested,
		Value:         state.portfolio.Value(prices),
		RealizedPnL:   state.portfolio.RealizedPnL,
		UnrealizedPnL: state.portfolio.UnrealizedPnL(prices),
		TradesJSON:    string(tradesJSON),
	}
	if err := s.store.SaveDayResult(ctx, row); err != nil {
		s.logger.Error().
			Err(err).
			Str("date", date).
			Str("strategy", string(state.tag)).
			Msg("Failed to persist backtest day row")
	}
}

// applyBuys executes the review's buy picks into the simulated portfolio.
func (s *Service) applyBuys(state *strategyState, review *models.PickReview, prices map[string]float64, date string) {
	buys := make([]models.StockPick, 0, len(review.Picks))
	for _, p := range review.Picks {
		if p.Action == models.ActionBuy && p.AllocationPct > 0 {
			buys = append(buys, p)
		}
	}
	sort.SliceStable(buys, func(i, j int) bool {
		return buys[i].AllocationPct > buys[j].AllocationPct
	})
	if max := s.config.Signals.MaxPicksPerRun; max > 0 && len(buys) > max {
		buys = buys[:max]
	}

	for _, pick := range buys {
		price := prices[common.BaseTicker(pick.Ticker)]
		if price <= 0 {
			continue
		}
		amount := pick.AllocationPct / 100 * state.budget
		state.portfolio.Buy(pick.Ticker, amount, price, date)
	}
}

// fetchMarketContext prices the digest's top tickers and packages the result
// as the precomputed market analysis that substitutes live research tools.
func (s *Service) fetchMarketContext(ctx context.Context, digest *models.SignalDigest) (map[string]float64, *models.MarketAnalysis) {
	limit := s.config.Signals.MarketDataTickerLimit
	if limit <= 0 {
		limit = 12
	}

	prices := make(map[string]float64)
	notes := make(map[string]string)
	for i, candidate := range digest.Candidates {
		if i >= limit {
			break
		}
		base := common.BaseTicker(candidate.Ticker)
		price, err := s.marketData.GetPrice(ctx, base)
		if err != nil || price <= 0 {
			s.logger.Debug().Err(err).Str("ticker", base).Msg("Backtest price fetch failed")
			continue
		}
		prices[base] = price
		notes[base] = fmt.Sprintf("price %.2f, conviction %.1f, source %s", price, candidate.ConvictionScore, candidate.Source)
	}

	return prices, &models.MarketAnalysis{
		Summary:     "historical replay from stored sentiment",
		TickerNotes: notes,
	}
}

// digestFromRecords reconstructs a day's digest from its stored sentiment
// rows.
func digestFromRecords(records []models.SentimentRecord) *models.SignalDigest {
	candidates := make([]models.EnrichedCandidate, 0, len(records))
	insiderCount := 0
	for _, r := range records {
		source := models.CandidateSource(r.Source)
		if source == "" {
			source = models.SourceInsider
		}
		if source == models.SourceInsider || source == models.SourceCombined {
			insiderCount++
		}
		candidates = append(candidates, models.EnrichedCandidate{Candidate: models.Candidate{
			Ticker:          r.Ticker,
			Company:         r.Company,
			Source:          source,
			ConvictionScore: r.ConvictionScore,
		}})
	}
	models.SortCandidates(candidates)

	return &models.SignalDigest{
		Candidates:   candidates,
		InsiderCount: insiderCount,
		SourceCounts: models.CountBySource(candidates),
	}
}

// weekdaysOnly drops Saturdays, Sundays and unparseable dates.
func weekdaysOnly(dates []string) []string {
	kept := make([]string, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// summarize builds the per-strategy final summaries.
func (s *Service) summarize(ctx context.Context, states []*strategyState) map[models.StrategyTag]models.BacktestSummary {
	summaries := make(map[models.StrategyTag]models.BacktestSummary, len(states))
	for _, state := range states {
		prices := s.currentPrices(ctx, state.portfolio)
		summaries[state.tag] = models.BacktestSummary{
			Days:          state.days,
			Invested:      state.portfolio.Invested,
			RealizedPnL:   state.portfolio.RealizedPnL,
			UnrealizedPnL: state.portfolio.UnrealizedPnL(prices),
			FinalValue:    state.portfolio.Value(prices),
			Trades:        len(state.portfolio.Trades),
		}
	}
	return summaries
}

func (s *Service) currentPrices(ctx context.Context, portfolio *SimPortfolio) map[string]float64 {
	prices := make(map[string]float64)
	for _, position := range portfolio.Positions() {
		price, err := s.marketData.GetPrice(ctx, position.Ticker)
		if err != nil || price <= 0 {
			continue
		}
		prices[position.Ticker] = price
	}
	return prices
}
