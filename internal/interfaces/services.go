package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tradewind/internal/models"
)

// DigestBuilder produces the enriched candidate list for a decision cycle.
type DigestBuilder interface {
	Build(ctx context.Context, lookbackDays int) (*models.SignalDigest, error)
}

// PipelineRunner runs one strategy's staged LLM pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, input *PipelineInput) *models.PipelineResult
}

// PipelineInput carries everything a pipeline run needs.
type PipelineInput struct {
	Strategy  models.StrategyTag
	Digest    *models.SignalDigest
	Portfolio []models.Position
	BudgetEUR float64
	RunDate   time.Time
	// MarketData substitutes the research stage's live tools in backtests.
	MarketData *models.MarketAnalysis
}

// TradeExecutor executes ranked candidates against the broker under budget.
type TradeExecutor interface {
	Execute(ctx context.Context, candidates []models.ExecutionCandidate, budget float64, broker Broker) *models.ExecutionSummary
}

// SellEvaluator evaluates open positions against the sell rules.
type SellEvaluator interface {
	Evaluate(positions []models.Position, prices map[string]float64, now time.Time) []models.SellSignal
}

// JobStatus describes a scheduled job.
type JobStatus struct {
	Name      string
	Schedule  string
	IsRunning bool
	LastRun   *time.Time
	NextRun   *time.Time
	LastError string
}

// SchedulerService drives the weekday job cadence.
type SchedulerService interface {
	RegisterJob(name, schedule string, handler func() error) error
	Start() error
	Stop() error
	TriggerJob(name string) error
	GetJobStatus(name string) (*JobStatus, error)
	IsRunning() bool
}
