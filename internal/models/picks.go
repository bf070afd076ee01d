package models

import "time"

// StrategyTag identifies which model tier, budget and account a pipeline run
// targets.
type StrategyTag string

const (
	StrategyConservative StrategyTag = "conservative"
	StrategyAggressive   StrategyTag = "aggressive"
)

// PickAction is the action recommended for a single ticker.
type PickAction string

const (
	ActionBuy  PickAction = "buy"
	ActionSell PickAction = "sell"
	ActionHold PickAction = "hold"
)

// StockPick is one ranked recommendation from the trader stage.
type StockPick struct {
	Ticker        string     `json:"ticker"`
	Action        PickAction `json:"action"`
	AllocationPct float64    `json:"allocation_pct"`
	Reasoning     string     `json:"reasoning,omitempty"`
	Confidence    float64    `json:"confidence"`
}

// DailyPicks is the trader stage output for one strategy on one day.
// Invariant: the allocation percentages of buy picks sum to at most 100.
type DailyPicks struct {
	Picks               []StockPick `json:"picks"`
	SellRecommendations []StockPick `json:"sell_recommendations,omitempty"`
	Confidence          float64     `json:"confidence"`
	MarketSummary       string      `json:"market_summary,omitempty"`
	RunDate             time.Time   `json:"run_date"`
	Strategy            StrategyTag `json:"strategy_tag"`
}

// BuyAllocationTotal sums the allocation percentages of buy picks.
func (d *DailyPicks) BuyAllocationTotal() float64 {
	var total float64
	for _, p := range d.Picks {
		if p.Action == ActionBuy {
			total += p.AllocationPct
		}
	}
	return total
}

// TickerSentiment is one per-ticker row of the sentiment stage output.
type TickerSentiment struct {
	Ticker     string         `json:"ticker"`
	Mentions   int            `json:"mentions"`
	Score      float64        `json:"score"` // in [-1, 1]
	Subreddits map[string]int `json:"subreddits,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

// SentimentReport is the sentiment stage output.
type SentimentReport struct {
	Tickers    []TickerSentiment      `json:"tickers"`
	MarketMood string                 `json:"market_mood,omitempty"`
	Extras     map[string]interface{} `json:"extras,omitempty"`
}

// ResearchEntry is one per-ticker row of the research stage output.
type ResearchEntry struct {
	Ticker      string   `json:"ticker"`
	Score       float64  `json:"score"` // in [0, 10]
	Pros        []string `json:"pros,omitempty"`
	Cons        []string `json:"cons,omitempty"`
	Catalyst    string   `json:"catalyst,omitempty"`
	SectorPeers []string `json:"sector_peers,omitempty"`
}

// ResearchReport is the research stage output.
type ResearchReport struct {
	Entries    []ResearchEntry        `json:"entries"`
	Summary    string                 `json:"summary,omitempty"`
	ToolRounds int                    `json:"tool_rounds,omitempty"`
	Extras     map[string]interface{} `json:"extras,omitempty"`
}

// MarketAnalysis is the market stage output (the research alternative used in
// backtests, built from precomputed market data).
type MarketAnalysis struct {
	Regime      string                 `json:"regime,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	TickerNotes map[string]string      `json:"ticker_notes,omitempty"`
	Extras      map[string]interface{} `json:"extras,omitempty"`
}

// PickReview is the risk-review stage output: the trader picks plus the
// reviewer's annotations. Vetoed tickers are removed from the pick list.
type PickReview struct {
	DailyPicks
	RiskNotes     []string          `json:"risk_notes,omitempty"`
	Adjustments   map[string]string `json:"adjustments,omitempty"`
	VetoedTickers []string          `json:"vetoed_tickers,omitempty"`
}

// PipelineResult is the outcome of one strategy's pipeline run.
type PipelineResult struct {
	Strategy  StrategyTag      `json:"strategy"`
	Sentiment *SentimentReport `json:"sentiment,omitempty"`
	Research  *ResearchReport  `json:"research,omitempty"`
	Market    *MarketAnalysis  `json:"market,omitempty"`
	Review    *PickReview      `json:"review,omitempty"`
	Stage     string           `json:"stage,omitempty"` // stage that failed, if any
	Err       string           `json:"error,omitempty"`
}

// Failed reports whether the pipeline run ended in an error.
func (r *PipelineResult) Failed() bool {
	return r.Err != ""
}

// CycleStatus is the status of a decision cycle.
type CycleStatus string

const (
	CycleCompleted CycleStatus = "completed"
	CycleSkipped   CycleStatus = "skipped"
	CycleError     CycleStatus = "error"
)

// CycleResult summarizes one decision cycle.
type CycleResult struct {
	Status     CycleStatus                       `json:"status"`
	Reason     string                            `json:"reason,omitempty"`
	Stage      string                            `json:"stage,omitempty"`
	Error      string                            `json:"error,omitempty"`
	Date       string                            `json:"date"`
	Digest     *SignalDigest                     `json:"digest,omitempty"`
	Pipelines  map[StrategyTag]*PipelineResult   `json:"pipelines,omitempty"`
	Executions map[StrategyTag]*ExecutionSummary `json:"executions,omitempty"`
}
