// Package pipeline runs the staged LLM decision pipeline for one strategy:
// sentiment, research (tool-backed) or market (data-only), trader, and risk
// review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/llm"
	"github.com/ternarybob/tradewind/internal/models"
)

const defaultTimeout = 900 * time.Second

// ProviderSource resolves generators per model. Satisfied by
// llm.ProviderFactory.
type ProviderSource interface {
	ForModel(model string) (interfaces.Generator, error)
	ToolingForModel(model string) interfaces.ToolingGenerator
}

// Service implements PipelineRunner.
type Service struct {
	factory    ProviderSource
	tools      interfaces.ToolExecutor
	config     common.PipelineConfig
	strategies common.StrategiesConfig
	logger     arbor.ILogger
}

// NewService creates a pipeline runner. A nil tool executor disables the
// research stage; affected strategies fall back to the market stage.
func NewService(
	factory ProviderSource,
	tools interfaces.ToolExecutor,
	config common.PipelineConfig,
	strategies common.StrategiesConfig,
	logger arbor.ILogger,
) interfaces.PipelineRunner {
	return &Service{
		factory:    factory,
		tools:      tools,
		config:     config,
		strategies: strategies,
		logger:     logger,
	}
}

func (s *Service) modelFor(tag models.StrategyTag) string {
	if tag == models.StrategyAggressive {
		return s.strategies.Aggressive.Model
	}
	return s.strategies.Conservative.Model
}

// Run executes the staged pipeline for one strategy. Stage failures are
// reported in the result, never as a panic or a Go error; the caller decides
// what a failed strategy means for the cycle.
func (s *Service) Run(ctx context.Context, input *interfaces.PipelineInput) *models.PipelineResult {
	result := &models.PipelineResult{Strategy: input.Strategy}

	timeout := time.Duration(s.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := s.modelFor(input.Strategy)
	generator, err := s.factory.ForModel(model)
	if err != nil {
		return s.fail(result, "pipeline", err)
	}

	started := time.Now()
	s.logger.Info().
		Str("strategy", string(input.Strategy)).
		Str("model", model).
		Int("candidates", len(input.Digest.Candidates)).
		Msg("Pipeline run started")

	sentiment, err := s.runSentiment(ctx, generator, model, input)
	if err != nil {
		return s.fail(result, "sentiment", err)
	}
	result.Sentiment = sentiment

	if input.MarketData != nil {
		// Backtests supply precomputed market context in place of live tools.
		result.Market = input.MarketData
	} else if tooling := s.factory.ToolingForModel(model); tooling != nil && s.tools != nil {
		research, err := s.runResearch(ctx, tooling, model, input, sentiment)
		if err != nil {
			return s.fail(result, "research", err)
		}
		result.Research = research
	} else {
		market, err := s.runMarket(ctx, generator, model, input)
		if err != nil {
			return s.fail(result, "market", err)
		}
		result.Market = market
	}

	picks, err := s.runTrader(ctx, generator, model, input, result)
	if err != nil {
		return s.fail(result, "trader", err)
	}

	review, err := s.runRiskReview(ctx, generator, model, input, picks)
	if err != nil {
		return s.fail(result, "risk_review", err)
	}
	result.Review = review

	s.logger.Info().
		Str("strategy", string(input.Strategy)).
		Int("picks", len(review.Picks)).
		Dur("duration", time.Since(started)).
		Msg("Pipeline run completed")

	return result
}

// fail records the failed stage. Deadline expiry is reported uniformly as a
// pipeline timeout regardless of which stage it surfaced in.
func (s *Service) fail(result *models.PipelineResult, stage string, err error) *models.PipelineResult {
	if errors.Is(err, context.DeadlineExceeded) {
		result.Stage = "pipeline"
		result.Err = "timeout"
	} else {
		result.Stage = stage
		result.Err = err.Error()
	}

	s.logger.Error().
		Str("strategy", string(result.Strategy)).
		Str("stage", result.Stage).
		Err(err).
		Msg("Pipeline run failed")
	return result
}

func (s *Service) runSentiment(ctx context.Context, generator interfaces.Generator, model string, input *interfaces.PipelineInput) (*models.SentimentReport, error) {
	resp, err := generator.GenerateContent(ctx, &interfaces.GenerateRequest{
		Model:        model,
		System:       sentimentSystem,
		Messages:     []interfaces.Message{{Role: "user", Content: sentimentPrompt(input)}},
		OutputSchema: llm.SentimentSchema,
	})
	if err != nil {
		return nil, err
	}

	var report models.SentimentReport
	if err := llm.ParseWithSchema(resp.Text, llm.SentimentSchema, &report); err != nil {
		return nil, fmt.Errorf("sentiment output rejected: %w", err)
	}
	return &report, nil
}

func (s *Service) runResearch(ctx context.Context, tooling interfaces.ToolingGenerator, model string, input *interfaces.PipelineInput, sentiment *models.SentimentReport) (*models.ResearchReport, error) {
	resp, rounds, err := tooling.GenerateWithTools(ctx, &interfaces.GenerateRequest{
		Model:    model,
		System:   researchSystem,
		Messages: []interfaces.Message{{Role: "user", Content: researchPrompt(input, sentiment)}},
	}, s.tools, s.config.MaxToolRounds)
	if err != nil {
		return nil, err
	}

	var report models.ResearchReport
	if err := llm.ParseWithSchema(resp.Text, llm.ResearchSchema, &report); err != nil {
		return nil, fmt.Errorf("research output rejected: %w", err)
	}
	report.ToolRounds = rounds
	return &report, nil
}

func (s *Service) runMarket(ctx context.Context, generator interfaces.Generator, model string, input *interfaces.PipelineInput) (*models.MarketAnalysis, error) {
	resp, err := generator.GenerateContent(ctx, &interfaces.GenerateRequest{
		Model:        model,
		System:       marketSystem,
		Messages:     []interfaces.Message{{Role: "user", Content: sentimentPrompt(input)}},
		OutputSchema: llm.MarketSchema,
	})
	if err != nil {
		return nil, err
	}

	var analysis models.MarketAnalysis
	if err := llm.ParseWithSchema(resp.Text, llm.MarketSchema, &analysis); err != nil {
		return nil, fmt.Errorf("market output rejected: %w", err)
	}
	return &analysis, nil
}

func (s *Service) runTrader(ctx context.Context, generator interfaces.Generator, model string, input *interfaces.PipelineInput, result *models.PipelineResult) (*models.DailyPicks, error) {
	system := fmt.Sprintf(traderSystemFmt, input.Strategy, input.BudgetEUR)
	resp, err := generator.GenerateContent(ctx, &interfaces.GenerateRequest{
		Model:        model,
		System:       system,
		Messages:     []interfaces.Message{{Role: "user", Content: traderPrompt(input, result)}},
		OutputSchema: llm.TraderSchema,
	})
	if err != nil {
		return nil, err
	}

	var picks models.DailyPicks
	if err := llm.ParseWithSchema(resp.Text, llm.TraderSchema, &picks); err != nil {
		return nil, fmt.Errorf("trader output rejected: %w", err)
	}

	picks.RunDate = input.RunDate
	picks.Strategy = input.Strategy
	s.normalizeAllocations(&picks)
	return &picks, nil
}

func (s *Service) runRiskReview(ctx context.Context, generator interfaces.Generator, model string, input *interfaces.PipelineInput, picks *models.DailyPicks) (*models.PickReview, error) {
	resp, err := generator.GenerateContent(ctx, &interfaces.GenerateRequest{
		Model:        model,
		System:       riskReviewSystem,
		Messages:     []interfaces.Message{{Role: "user", Content: riskReviewPrompt(input, picks)}},
		OutputSchema: llm.RiskReviewSchema,
	})
	if err != nil {
		return nil, err
	}

	var review models.PickReview
	if err := llm.ParseWithSchema(resp.Text, llm.RiskReviewSchema, &review); err != nil {
		return nil, fmt.Errorf("risk review output rejected: %w", err)
	}

	review.RunDate = input.RunDate
	review.Strategy = input.Strategy
	removeVetoed(&review)
	s.normalizeAllocations(&review.DailyPicks)
	return &review, nil
}

// normalizeAllocations scales buy allocations down proportionally when they
// exceed 100 percent of budget.
func (s *Service) normalizeAllocations(picks *models.DailyPicks) {
	total := picks.BuyAllocationTotal()
	if total <= 100 {
		return
	}

	factor := 100 / total
	for i := range picks.Picks {
		if picks.Picks[i].Action == models.ActionBuy {
			picks.Picks[i].AllocationPct *= factor
		}
	}

	s.logger.Warn().
		Float64("total_pct", total).
		Str("strategy", string(picks.Strategy)).
		Msg("Buy allocations exceeded 100 percent, scaled down")
}

// removeVetoed drops picks the reviewer vetoed even if the model left them in
// the pick list.
func removeVetoed(review *models.PickReview) {
	if len(review.VetoedTickers) == 0 {
		return
	}
	vetoed := make(map[string]bool, len(review.VetoedTickers))
	for _, t := range review.VetoedTickers {
		vetoed[common.NormalizeTicker(t)] = true
	}

	kept := review.Picks[:0]
	for _, p := range review.Picks {
		if !vetoed[common.NormalizeTicker(p.Ticker)] {
			kept = append(kept, p)
		}
	}
	review.Picks = kept
}
