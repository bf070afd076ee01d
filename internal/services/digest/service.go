// Package digest builds the enriched candidate list for a decision cycle:
// fetch both signal sources, merge per ticker, enrich with market context,
// then filter and rank.
package digest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/llm"
	"github.com/ternarybob/tradewind/internal/models"
)

const (
	// Per enrichment call, so one slow provider endpoint cannot stall a
	// whole cycle.
	enrichCallTimeout = 20 * time.Second
	enrichWorkers     = 4
	newsPerTicker     = 5
)

// Quote types that are never direct equity buys.
var excludedQuoteTypes = map[string]bool{
	"MUTUALFUND": true,
	"ETF":        true,
	"INDEX":      true,
	"FUTURE":     true,
	"CURRENCY":   true,
}

// Service implements DigestBuilder.
type Service struct {
	insider     interfaces.InsiderSource
	politicians interfaces.PoliticianSource
	marketData  interfaces.MarketDataClient
	news        interfaces.NewsProvider
	state       *common.ProcessState
	config      common.SignalsConfig
	logger      arbor.ILogger
}

// NewService creates a digest builder. The news provider may be nil, in which
// case the market data provider's news endpoint is used directly.
func NewService(
	insider interfaces.InsiderSource,
	politicians interfaces.PoliticianSource,
	marketData interfaces.MarketDataClient,
	news interfaces.NewsProvider,
	state *common.ProcessState,
	config common.SignalsConfig,
	logger arbor.ILogger,
) interfaces.DigestBuilder {
	return &Service{
		insider:     insider,
		politicians: politicians,
		marketData:  marketData,
		news:        news,
		state:       state,
		config:      config,
		logger:      logger,
	}
}

// Build fetches, merges, enriches and ranks the cycle's candidates. A failed
// signal source contributes an empty list, never an error.
func (s *Service) Build(ctx context.Context, lookbackDays int) (*models.SignalDigest, error) {
	insiderCands, politicianCands := s.fetchSources(ctx, lookbackDays)

	merged := mergeByTicker(insiderCands, politicianCands)

	enriched := s.enrichAll(ctx, merged)

	filtered := s.filter(enriched)

	models.SortCandidates(filtered)

	digest := &models.SignalDigest{
		Candidates:   filtered,
		InsiderCount: len(insiderCands),
		LookbackDays: lookbackDays,
		SourceCounts: models.CountBySource(filtered),
	}

	s.logger.Info().
		Int("insider", len(insiderCands)).
		Int("politicians", len(politicianCands)).
		Int("candidates", len(filtered)).
		Int("lookback_days", lookbackDays).
		Msg("Signal digest built")

	return digest, nil
}

// fetchSources queries both signal sources in parallel.
func (s *Service) fetchSources(ctx context.Context, lookbackDays int) ([]models.Candidate, []models.Candidate) {
	var (
		wg              sync.WaitGroup
		insiderCands    []models.Candidate
		politicianCands []models.Candidate
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		cands, err := s.insider.FetchBuyCandidates(ctx, lookbackDays, s.config.InsiderTopN)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Insider source fetch failed, continuing without")
			return
		}
		insiderCands = cands
	}()

	if s.config.PoliticiansEnabled && s.politicians != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cands, err := s.politicians.FetchBuyCandidates(ctx, lookbackDays, s.config.PoliticianTopN)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Politician source fetch failed, continuing without")
				return
			}
			politicianCands = cands
		}()
	}

	wg.Wait()
	return insiderCands, politicianCands
}

// mergeByTicker combines the two source lists into one candidate per ticker.
// Insider candidates come first and keep their insertion order; a politician
// buy for the same ticker folds into the insider entry.
func mergeByTicker(insider, politicians []models.Candidate) []models.Candidate {
	byTicker := make(map[string]*models.Candidate, len(insider)+len(politicians))
	order := make([]string, 0, len(insider)+len(politicians))

	for i := range insider {
		c := insider[i]
		key := common.BaseTicker(c.Ticker)
		if _, exists := byTicker[key]; exists {
			continue
		}
		byTicker[key] = &c
		order = append(order, key)
	}

	for i := range politicians {
		p := politicians[i]
		key := common.BaseTicker(p.Ticker)
		existing, exists := byTicker[key]
		if !exists {
			byTicker[key] = &p
			order = append(order, key)
			continue
		}

		existing.Source = models.SourceCombined
		existing.ConvictionScore += p.ConvictionScore
		existing.TotalValueUSD += p.TotalValueUSD
		existing.HasPoliticianBuy = true
		existing.AddInsiders(p.Insiders...)
		existing.IsCluster = len(existing.Insiders) >= 2
		existing.Transactions = append(existing.Transactions, p.Transactions...)
		if existing.Company == "" {
			existing.Company = p.Company
		}
	}

	merged := make([]models.Candidate, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byTicker[key])
	}
	return merged
}

// enrichAll runs bounded parallel enrichment. Output preserves input order.
func (s *Service) enrichAll(ctx context.Context, candidates []models.Candidate) []models.EnrichedCandidate {
	enriched := make([]models.EnrichedCandidate, len(candidates))

	sem := make(chan struct{}, enrichWorkers)
	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			enriched[idx] = s.enrichOne(ctx, candidates[idx])
		}(i)
	}
	wg.Wait()

	return enriched
}

// enrichOne attaches best-effort market context. Every failed lookup leaves
// its field nil and the candidate proceeds.
func (s *Service) enrichOne(ctx context.Context, candidate models.Candidate) models.EnrichedCandidate {
	ec := models.EnrichedCandidate{Candidate: candidate}
	ticker := candidate.Ticker

	if v, err := s.withTimeoutReturns(ctx, ticker); err == nil {
		ec.Returns = v
	} else {
		s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Returns enrichment failed")
	}
	if v, err := s.withTimeoutFundamentals(ctx, ticker); err == nil {
		ec.Fundamentals = v
	} else {
		s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Fundamentals enrichment failed")
	}
	if v, err := s.withTimeoutTechnicals(ctx, ticker); err == nil {
		ec.Technicals = v
	} else {
		s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Technicals enrichment failed")
	}
	if v, err := s.withTimeoutEarnings(ctx, ticker); err == nil {
		ec.Earnings = v
	} else {
		s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Earnings enrichment failed")
	}
	if v, err := s.withTimeoutInsiderHistory(ctx, ticker); err == nil {
		ec.InsiderHistory = v
	} else {
		s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Insider history enrichment failed")
	}

	ec.News = s.fetchNews(ctx, ticker)

	return ec
}

func (s *Service) withTimeoutReturns(ctx context.Context, ticker string) (*models.PriceReturns, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	return s.marketData.GetReturns(ctx, ticker)
}

func (s *Service) withTimeoutFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	return s.marketData.GetFundamentals(ctx, ticker)
}

func (s *Service) withTimeoutTechnicals(ctx context.Context, ticker string) (*models.Technicals, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	return s.marketData.GetTechnicals(ctx, ticker)
}

func (s *Service) withTimeoutEarnings(ctx context.Context, ticker string) (*models.EarningsInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	return s.marketData.GetEarnings(ctx, ticker)
}

func (s *Service) withTimeoutInsiderHistory(ctx context.Context, ticker string) (*models.InsiderHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	return s.marketData.GetInsiderHistory(ctx, ticker)
}

// fetchNews tries the rate-limited primary provider first, gated by the
// circuit breaker and the process-wide semaphore, then falls back to the
// market data provider.
func (s *Service) fetchNews(ctx context.Context, ticker string) []models.NewsItem {
	if s.news != nil && (s.state == nil || s.state.NewsAllowed()) {
		items, err := s.fetchPrimaryNews(ctx, ticker)
		if err == nil {
			return items
		}
		if llm.IsRateLimitError(err) && s.state != nil {
			cooldown := s.config.GetNewsCooldown()
			s.state.TripNewsBreaker(cooldown)
			s.logger.Warn().
				Err(err).
				Str("ticker", ticker).
				Dur("cooldown", cooldown).
				Msg("Primary news provider rate limited, breaker tripped")
		} else {
			s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Primary news fetch failed")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	items, err := s.marketData.GetNews(callCtx, ticker, newsPerTicker)
	if err != nil {
		s.logger.Debug().Err(err).Str("ticker", ticker).Msg("Fallback news fetch failed")
		return nil
	}
	return items
}

func (s *Service) fetchPrimaryNews(ctx context.Context, ticker string) ([]models.NewsItem, error) {
	if s.state != nil {
		if err := s.state.AcquireNews(ctx); err != nil {
			return nil, err
		}
		defer s.state.ReleaseNews()
	}

	callCtx, cancel := context.WithTimeout(ctx, enrichCallTimeout)
	defer cancel()
	return s.news.GetNews(callCtx, ticker, newsPerTicker)
}

// filter drops non-equity quote types and politician-only mega caps.
func (s *Service) filter(candidates []models.EnrichedCandidate) []models.EnrichedCandidate {
	kept := make([]models.EnrichedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Fundamentals != nil && excludedQuoteTypes[strings.ToUpper(c.Fundamentals.QuoteType)] {
			s.logger.Debug().
				Str("ticker", c.Ticker).
				Str("quote_type", c.Fundamentals.QuoteType).
				Msg("Dropping non-equity candidate")
			continue
		}
		if c.Source == models.SourcePoliticians && s.config.CapitolTradesMaxMarketCap > 0 &&
			c.Fundamentals != nil && c.Fundamentals.MarketCap != nil &&
			*c.Fundamentals.MarketCap > s.config.CapitolTradesMaxMarketCap {
			s.logger.Debug().
				Str("ticker", c.Ticker).
				Float64("market_cap", *c.Fundamentals.MarketCap).
				Msg("Dropping politician mega-cap candidate")
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
