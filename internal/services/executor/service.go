// Package executor places ranked buy candidates against the broker under a
// hard budget, with serial fallback: a failed candidate's money flows to the
// next one.
package executor

import (
	"context"
	"errors"
	"math"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

// Remaining budget below one unit of account currency is treated as spent.
const minOrderAmount = 1.0

// Service implements TradeExecutor.
type Service struct {
	blacklist interfaces.BlacklistStore
	logger    arbor.ILogger
}

// NewService creates a trade executor. The blacklist store may be nil, in
// which case bought tickers are not recorded (dry runs, backtests).
func NewService(blacklist interfaces.BlacklistStore, logger arbor.ILogger) interfaces.TradeExecutor {
	return &Service{
		blacklist: blacklist,
		logger:    logger,
	}
}

// Execute runs the serial fallback loop. Candidates are attempted strictly in
// input order; per-candidate failures are recorded and never abort the loop.
func (s *Service) Execute(ctx context.Context, candidates []models.ExecutionCandidate, budget float64, broker interfaces.Broker) *models.ExecutionSummary {
	summary := &models.ExecutionSummary{
		IsReal: broker.IsReal(),
		Budget: budget,
	}

	effectiveBudget := budget
	cash, err := broker.GetFreeCash(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Free cash fetch failed, using configured budget")
		summary.AvailableCash = budget
	} else {
		summary.AvailableCash = cash
		effectiveBudget = math.Min(budget, cash)
	}

	remaining := effectiveBudget
	for _, candidate := range candidates {
		if remaining < minOrderAmount {
			s.logger.Info().
				Float64("remaining", remaining).
				Msg("Budget exhausted, stopping execution loop")
			break
		}

		result := s.executeOne(ctx, candidate, effectiveBudget, remaining, broker)
		if result.Success {
			summary.Bought = append(summary.Bought, result)
			summary.TotalSpent += result.AmountSpent
			remaining -= result.AmountSpent
		} else {
			summary.Failed = append(summary.Failed, result)
		}
	}

	s.recordBought(ctx, summary)

	s.logger.Info().
		Bool("real", summary.IsReal).
		Float64("budget", budget).
		Float64("spent", summary.TotalSpent).
		Int("bought", len(summary.Bought)).
		Int("failed", len(summary.Failed)).
		Msg("Execution run complete")

	return summary
}

// executeOne attempts one candidate. The spend is the candidate's allocation
// of the effective budget, clamped to what is left.
func (s *Service) executeOne(ctx context.Context, candidate models.ExecutionCandidate, effectiveBudget, remaining float64, broker interfaces.Broker) models.TradeResult {
	result := models.TradeResult{Ticker: candidate.Ticker}

	if candidate.PriceLocal <= 0 {
		result.Error = "no usable price"
		s.logger.Warn().
			Str("ticker", candidate.Ticker).
			Float64("price", candidate.PriceLocal).
			Msg("Skipping candidate without usable price")
		return result
	}

	amount := math.Min(candidate.AllocationPct/100*effectiveBudget, remaining)
	if amount < minOrderAmount {
		result.Error = "allocation below minimum order amount"
		return result
	}

	instrument, err := broker.ResolveInstrument(ctx, candidate.Ticker)
	if err != nil {
		if errors.Is(err, interfaces.ErrInstrumentNotFound) {
			result.Error = "not tradable on broker"
		} else {
			result.Error = err.Error()
		}
		s.logger.Warn().
			Str("ticker", candidate.Ticker).
			Err(err).
			Msg("Instrument resolution failed")
		return result
	}

	fill, err := broker.PlaceMarketOrderValue(ctx, instrument, amount)
	if err != nil {
		result.Error = err.Error()
		s.logger.Warn().
			Str("ticker", candidate.Ticker).
			Str("instrument", instrument).
			Float64("amount", amount).
			Err(err).
			Msg("Order placement failed, money falls through to next candidate")
		return result
	}

	result.Success = true
	result.BrokerTicker = instrument
	result.Quantity = fill.Quantity
	result.AmountSpent = fill.AmountSpent
	if result.AmountSpent <= 0 {
		result.AmountSpent = amount
	}

	s.logger.Info().
		Str("ticker", candidate.Ticker).
		Str("instrument", instrument).
		Float64("amount", result.AmountSpent).
		Float64("quantity", result.Quantity).
		Msg("Order filled")

	return result
}

// recordBought blacklists every bought ticker so the next cycles skip them.
// A blacklist write failure is logged, not propagated; the orders are already
// placed.
func (s *Service) recordBought(ctx context.Context, summary *models.ExecutionSummary) {
	if s.blacklist == nil || len(summary.Bought) == 0 {
		return
	}

	tickers := make([]string, 0, len(summary.Bought))
	for _, b := range summary.Bought {
		tickers = append(tickers, b.Ticker)
	}
	if err := s.blacklist.AddMany(ctx, tickers); err != nil {
		s.logger.Error().Err(err).Msg("Failed to blacklist bought tickers")
	}
}
