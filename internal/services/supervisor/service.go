// Package supervisor orchestrates the daily decision cycle: trading-day gate,
// digest, strategy pipelines, execution, persistence and notification. It also
// owns the sell-check and end-of-day snapshot jobs.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

// Options controls one daily cycle run.
type Options struct {
	Date   time.Time // zero means now in the configured timezone
	Force  bool      // bypass the trading-day gate
	DryRun bool      // run digest and pipelines, skip broker and blacklist
}

// SellCheckOptions restricts a sell-check run to one account class.
type SellCheckOptions struct {
	Date        time.Time
	RealOnly    bool
	VirtualOnly bool
}

// Service coordinates the decision cycle.
type Service struct {
	config     *common.Config
	digest     interfaces.DigestBuilder
	pipeline   interfaces.PipelineRunner
	executor   interfaces.TradeExecutor
	sells      interfaces.SellEvaluator
	marketData interfaces.MarketDataClient
	blacklist  interfaces.BlacklistStore
	sentiments interfaces.SentimentStore
	snapshots  interfaces.SnapshotStore
	brokers    map[models.StrategyTag]interfaces.Broker
	notifier   interfaces.Notifier
	logger     arbor.ILogger
}

// NewService wires the supervisor. Notifier, sentiment store and snapshot
// store may be nil; the corresponding steps become no-ops.
func NewService(
	config *common.Config,
	digest interfaces.DigestBuilder,
	pipeline interfaces.PipelineRunner,
	executor interfaces.TradeExecutor,
	sells interfaces.SellEvaluator,
	marketData interfaces.MarketDataClient,
	blacklist interfaces.BlacklistStore,
	sentiments interfaces.SentimentStore,
	snapshots interfaces.SnapshotStore,
	brokers map[models.StrategyTag]interfaces.Broker,
	notifier interfaces.Notifier,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:     config,
		digest:     digest,
		pipeline:   pipeline,
		executor:   executor,
		sells:      sells,
		marketData: marketData,
		blacklist:  blacklist,
		sentiments: sentiments,
		snapshots:  snapshots,
		brokers:    brokers,
		notifier:   notifier,
		logger:     logger,
	}
}

var strategyTags = []models.StrategyTag{models.StrategyConservative, models.StrategyAggressive}

// RunDailyCycle executes one decision cycle end to end. Skips are reported as
// a result, not an error; only infrastructure failures return CycleError.
func (s *Service) RunDailyCycle(ctx context.Context, opts Options) *models.CycleResult {
	date := opts.Date
	if date.IsZero() {
		date = time.Now().In(s.config.Location())
	}
	result := &models.CycleResult{Date: common.DateString(date, s.config.Location())}

	if !opts.Force && !common.IsTradingDay(date, s.config.Location()) {
		result.Status = models.CycleSkipped
		result.Reason = "non-trading day"
		s.logger.Info().
			Str("date", result.Date).
			Str("weekday", date.Weekday().String()).
			Msg("Non-trading day, cycle skipped")
		return result
	}

	if s.blacklist != nil {
		if err := s.blacklist.Cleanup(ctx, s.config.Signals.RecentlyTradedDays); err != nil {
			s.logger.Warn().Err(err).Msg("Blacklist cleanup failed")
		}
	}

	digest, err := s.digest.Build(ctx, s.config.Signals.InsiderLookbackDays)
	if err != nil {
		result.Status = models.CycleError
		result.Stage = "digest"
		result.Error = err.Error()
		return result
	}
	result.Digest = digest

	if digest.InsiderCount < s.config.Signals.MinInsiderTickers {
		result.Status = models.CycleSkipped
		result.Reason = "low signal day"
		s.logger.Info().
			Int("insider_count", digest.InsiderCount).
			Int("minimum", s.config.Signals.MinInsiderTickers).
			Msg("Too few insider signals, cycle skipped")
		s.notify(ctx, fmt.Sprintf("Tradewind %s: skipped, low signal day (%d insider tickers)", result.Date, digest.InsiderCount))
		return result
	}

	s.applyBlacklist(ctx, digest)
	digest.Candidates = capCandidates(digest.Candidates, s.config.Signals.ResearchTopN, s.config.Signals.PoliticianReservedSlots)
	digest.SourceCounts = models.CountBySource(digest.Candidates)

	result.Pipelines = s.runPipelines(ctx, digest, date)

	s.persistSentiment(ctx, result)

	if !opts.DryRun {
		result.Executions = s.runExecutions(ctx, result, date)
	}

	result.Status = models.CycleCompleted
	s.notify(ctx, cycleSummaryText(result))
	return result
}

// applyBlacklist drops recently traded tickers from the digest. A failed read
// leaves the digest untouched.
func (s *Service) applyBlacklist(ctx context.Context, digest *models.SignalDigest) {
	if s.blacklist == nil {
		return
	}
	active, err := s.blacklist.ActiveSet(ctx, s.config.Signals.RecentlyTradedDays)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Blacklist read failed, proceeding unfiltered")
		return
	}
	if len(active) == 0 {
		return
	}

	kept := digest.Candidates[:0]
	dropped := 0
	for _, c := range digest.Candidates {
		if _, blocked := active[common.BaseTicker(c.Ticker)]; blocked {
			dropped++
			continue
		}
		kept = append(kept, c)
	}
	digest.Candidates = kept
	if dropped > 0 {
		s.logger.Info().Int("dropped", dropped).Msg("Recently traded tickers removed from digest")
	}
}

// capCandidates limits the digest to topN entries while reserving slots for
// the politician pool. Input order (conviction ranking) is preserved.
func capCandidates(candidates []models.EnrichedCandidate, topN, reservedSlots int) []models.EnrichedCandidate {
	if topN <= 0 || len(candidates) <= topN {
		return candidates
	}

	isPolitician := func(c *models.EnrichedCandidate) bool {
		return c.Source == models.SourcePoliticians
	}

	politicianQuota := reservedSlots
	insiderQuota := topN - reservedSlots
	if insiderQuota < 0 {
		insiderQuota = 0
		politicianQuota = topN
	}

	selected := make(map[int]bool, topN)
	count := 0
	for i := range candidates {
		if count >= topN {
			break
		}
		if isPolitician(&candidates[i]) {
			if politicianQuota > 0 {
				selected[i] = true
				politicianQuota--
				count++
			}
		} else if insiderQuota > 0 {
			selected[i] = true
			insiderQuota--
			count++
		}
	}
	// Unused reserved slots go back to the best remaining candidates.
	for i := range candidates {
		if count >= topN {
			break
		}
		if !selected[i] {
			selected[i] = true
			count++
		}
	}

	capped := make([]models.EnrichedCandidate, 0, count)
	for i := range candidates {
		if selected[i] {
			capped = append(capped, candidates[i])
		}
	}
	return capped
}

// runPipelines runs both strategies in parallel. A failed strategy never
// blocks the other.
func (s *Service) runPipelines(ctx context.Context, digest *models.SignalDigest, date time.Time) map[models.StrategyTag]*models.PipelineResult {
	results := make(map[models.StrategyTag]*models.PipelineResult, len(strategyTags))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, tag := range strategyTags {
		wg.Add(1)
		go func(tag models.StrategyTag) {
			defer wg.Done()

			strategy := s.config.StrategyFor(string(tag))
			input := &interfaces.PipelineInput{
				Strategy:  tag,
				Digest:    digest,
				Portfolio: s.fetchPortfolio(ctx, tag),
				BudgetEUR: strategy.BudgetEUR,
				RunDate:   date,
			}
			result := s.pipeline.Run(ctx, input)

			mu.Lock()
			results[tag] = result
			mu.Unlock()
		}(tag)
	}
	wg.Wait()

	return results
}

// fetchPortfolio reads current positions, best-effort.
func (s *Service) fetchPortfolio(ctx context.Context, tag models.StrategyTag) []models.Position {
	broker, ok := s.brokers[tag]
	if !ok || broker == nil {
		return nil
	}
	positions, err := broker.GetPositions(ctx)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("strategy", string(tag)).
			Msg("Portfolio fetch failed, pipeline runs without holdings context")
		return nil
	}
	return positions
}

// persistSentiment stores per-ticker sentiment rows for backtest replay.
// The first successful strategy's report wins; rows carry the digest's
// conviction and source.
func (s *Service) persistSentiment(ctx context.Context, result *models.CycleResult) {
	if s.sentiments == nil {
		return
	}

	var report *models.SentimentReport
	for _, tag := range strategyTags {
		if r, ok := result.Pipelines[tag]; ok && r.Sentiment != nil {
			report = r.Sentiment
			break
		}
	}
	if report == nil {
		return
	}

	byTicker := make(map[string]*models.EnrichedCandidate)
	if result.Digest != nil {
		for i := range result.Digest.Candidates {
			c := &result.Digest.Candidates[i]
			byTicker[common.BaseTicker(c.Ticker)] = c
		}
	}

	records := make([]models.SentimentRecord, 0, len(report.Tickers))
	for _, ts := range report.Tickers {
		record := models.SentimentRecord{
			Date:     result.Date,
			Ticker:   common.NormalizeTicker(ts.Ticker),
			Mentions: ts.Mentions,
			Score:    ts.Score,
		}
		if c, ok := byTicker[common.BaseTicker(ts.Ticker)]; ok {
			record.Company = c.Company
			record.Source = string(c.Source)
			record.ConvictionScore = c.ConvictionScore
		}
		records = append(records, record)
	}

	if err := s.sentiments.SaveRecords(ctx, records); err != nil {
		s.logger.Warn().Err(err).Msg("Sentiment history write failed")
	}
}

// runExecutions turns each successful review into orders.
func (s *Service) runExecutions(ctx context.Context, result *models.CycleResult, date time.Time) map[models.StrategyTag]*models.ExecutionSummary {
	// One FX fetch per cycle; both strategies convert with the same rate.
	eurUSD, err := s.marketData.GetFXRate(ctx, "EURUSD")
	if err != nil || eurUSD <= 0 {
		s.logger.Warn().Err(err).Msg("EUR/USD fetch failed, assuming parity")
		eurUSD = 1.0
	}

	executions := make(map[models.StrategyTag]*models.ExecutionSummary)
	for _, tag := range strategyTags {
		pipelineResult, ok := result.Pipelines[tag]
		if !ok || pipelineResult.Failed() || pipelineResult.Review == nil {
			continue
		}
		broker, ok := s.brokers[tag]
		if !ok || broker == nil {
			continue
		}

		candidates := s.buildExecutionCandidates(ctx, pipelineResult.Review, eurUSD)
		if len(candidates) == 0 {
			s.logger.Info().
				Str("strategy", string(tag)).
				Msg("No executable buy picks")
			continue
		}

		budget := s.config.StrategyFor(string(tag)).BudgetEUR
		executions[tag] = s.executor.Execute(ctx, candidates, budget, broker)
	}
	return executions
}

// buildExecutionCandidates prices the review's buy picks, sorted by
// allocation descending and capped at max_picks_per_run. Unpriced picks are
// dropped.
func (s *Service) buildExecutionCandidates(ctx context.Context, review *models.PickReview, eurUSD float64) []models.ExecutionCandidate {
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

	candidates := make([]models.ExecutionCandidate, 0, len(buys))
	for _, pick := range buys {
		priceUSD, err := s.marketData.GetPrice(ctx, pick.Ticker)
		if err != nil || priceUSD <= 0 {
			s.logger.Warn().
				Err(err).
				Str("ticker", pick.Ticker).
				Msg("Dropping unpriced pick")
			continue
		}
		candidates = append(candidates, models.ExecutionCandidate{
			Ticker:        pick.Ticker,
			PriceLocal:    priceUSD / eurUSD,
			AllocationPct: pick.AllocationPct,
			Reasoning:     pick.Reasoning,
		})
	}
	return candidates
}

// RunCollect runs a digest-only signal collection pass and stores the
// resulting per-ticker rows. The decision cycle later overwrites the same
// date's rows with its fuller sentiment scores.
func (s *Service) RunCollect(ctx context.Context) error {
	if s.sentiments == nil {
		return nil
	}

	digest, err := s.digest.Build(ctx, s.config.Signals.InsiderLookbackDays)
	if err != nil {
		return fmt.Errorf("signal collection failed: %w", err)
	}

	date := common.DateString(time.Now(), s.config.Location())
	records := make([]models.SentimentRecord, 0, len(digest.Candidates))
	for _, c := range digest.Candidates {
		records = append(records, models.SentimentRecord{
			Date:            date,
			Ticker:          common.NormalizeTicker(c.Ticker),
			Company:         c.Company,
			Source:          string(c.Source),
			ConvictionScore: c.ConvictionScore,
		})
	}
	if err := s.sentiments.SaveRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to store collected signals: %w", err)
	}

	s.logger.Info().
		Str("date", date).
		Int("tickers", len(records)).
		Msg("Signal collection pass stored")
	return nil
}

// RunSellChecks evaluates the sell rules on every selected account and places
// the resulting sell orders.
func (s *Service) RunSellChecks(ctx context.Context, opts SellCheckOptions) error {
	now := opts.Date
	if now.IsZero() {
		now = time.Now().In(s.config.Location())
	}

	var firstErr error
	for _, broker := range s.uniqueBrokers() {
		if opts.RealOnly && !broker.IsReal() {
			continue
		}
		if opts.VirtualOnly && broker.IsReal() {
			continue
		}
		if err := s.sellCheckAccount(ctx, broker, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Service) sellCheckAccount(ctx context.Context, broker interfaces.Broker, now time.Time) error {
	positions, err := broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to read positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	prices := make(map[string]float64, len(positions))
	for _, p := range positions {
		base := common.BaseTicker(p.Ticker)
		price, err := s.marketData.GetPrice(ctx, base)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticker", p.Ticker).Msg("Price fetch failed for sell check")
			continue
		}
		prices[base] = price
	}

	signals := s.sells.Evaluate(positions, prices, now)
	if len(signals) == 0 {
		s.logger.Info().
			Bool("real", broker.IsReal()).
			Int("positions", len(positions)).
			Msg("Sell checks complete, nothing to sell")
		return nil
	}

	byTicker := make(map[string]models.Position, len(positions))
	for _, p := range positions {
		byTicker[p.Ticker] = p
	}

	var sold []string
	for _, signal := range signals {
		position := byTicker[signal.Ticker]
		instrument, err := broker.ResolveInstrument(ctx, position.Ticker)
		if err != nil {
			s.logger.Error().Err(err).Str("ticker", signal.Ticker).Msg("Cannot resolve instrument for sell")
			continue
		}
		if _, err := broker.PlaceMarketOrderQuantity(ctx, instrument, -position.Quantity); err != nil {
			s.logger.Error().Err(err).Str("ticker", signal.Ticker).Msg("Sell order failed")
			continue
		}
		sold = append(sold, fmt.Sprintf("%s (%s, %.1f%%)", signal.Ticker, signal.Type, signal.ReturnPct))
		s.logger.Info().
			Str("ticker", signal.Ticker).
			Str("signal", string(signal.Type)).
			Float64("return_pct", signal.ReturnPct).
			Msg("Position sold")
	}

	if len(sold) > 0 {
		account := "practice"
		if broker.IsReal() {
			account = "live"
		}
		s.notify(ctx, fmt.Sprintf("Tradewind sell checks (%s): sold %v", account, sold))
	}
	return nil
}

// RunEODSnapshot persists one portfolio snapshot per account.
func (s *Service) RunEODSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	date := common.DateString(time.Now(), s.config.Location())

	var firstErr error
	for _, broker := range s.uniqueBrokers() {
		account := "demo"
		if broker.IsReal() {
			account = "live"
		}

		snapshot, err := s.buildSnapshot(ctx, broker, date, account)
		if err != nil {
			s.logger.Error().Err(err).Str("account", account).Msg("Snapshot build failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			s.logger.Error().Err(err).Str("account", account).Msg("Snapshot write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) buildSnapshot(ctx context.Context, broker interfaces.Broker, date, account string) (*models.PortfolioSnapshot, error) {
	positions, err := broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	cash, err := broker.GetFreeCash(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cash: %w", err)
	}

	total := cash
	for _, p := range positions {
		price, err := s.marketData.GetPrice(ctx, common.BaseTicker(p.Ticker))
		if err != nil || price <= 0 {
			// Cost basis stands in when the quote is unavailable.
			price = p.AvgBuyPrice
		}
		total += p.Quantity * price
	}

	return &models.PortfolioSnapshot{
		Date:       date,
		Account:    account,
		Positions:  positions,
		Cash:       cash,
		TotalValue: total,
		CreatedAt:  time.Now(),
	}, nil
}

// uniqueBrokers returns each distinct broker once even when both strategies
// share an account.
func (s *Service) uniqueBrokers() []interfaces.Broker {
	seen := make(map[interfaces.Broker]bool, len(s.brokers))
	brokers := make([]interfaces.Broker, 0, len(s.brokers))
	for _, tag := range strategyTags {
		broker, ok := s.brokers[tag]
		if !ok || broker == nil || seen[broker] {
			continue
		}
		seen[broker] = true
		brokers = append(brokers, broker)
	}
	return brokers
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("Notification failed")
	}
}

// cycleSummaryText renders the human-facing cycle summary.
func cycleSummaryText(result *models.CycleResult) string {
	text := fmt.Sprintf("*Tradewind %s*\n", result.Date)
	if result.Digest != nil {
		text += fmt.Sprintf("Candidates: %d (insider tickers: %d)\n", len(result.Digest.Candidates), result.Digest.InsiderCount)
	}
	for _, tag := range strategyTags {
		p, ok := result.Pipelines[tag]
		if !ok {
			continue
		}
		if p.Failed() {
			text += fmt.Sprintf("%s: failed at %s (%s)\n", tag, p.Stage, p.Err)
			continue
		}
		picks := 0
		if p.Review != nil {
			for _, pick := range p.Review.Picks {
				if pick.Action == models.ActionBuy {
					picks++
				}
			}
		}
		line := fmt.Sprintf("%s: %d buy picks", tag, picks)
		if exec, ok := result.Executions[tag]; ok {
			line += fmt.Sprintf(", spent %.2f of %.2f EUR (%d filled, %d failed)",
				exec.TotalSpent, exec.Budget, len(exec.Bought), len(exec.Failed))
		}
		text += line + "\n"
	}
	return text
}
