package models

import "time"

// SentimentRecord is one stored per-ticker sentiment row for a date. Live
// decision cycles persist these; the backtest engine replays them.
type SentimentRecord struct {
	ID              string  `badgerhold:"key" json:"id"` // "<date>:<ticker>"
	Date            string  `badgerhold:"index" json:"date"`
	Ticker          string  `json:"ticker"`
	Company         string  `json:"company,omitempty"`
	Source          string  `json:"source"`
	Mentions        int     `json:"mentions"`
	Score           float64 `json:"score"`
	ConvictionScore float64 `json:"conviction_score"`
}

// BacktestRun is a persisted backtest run header.
type BacktestRun struct {
	ID        string                          `badgerhold:"key" json:"id"`
	Name      string                          `json:"name"`
	StartDate string                          `json:"start_date"`
	EndDate   string                          `json:"end_date"`
	BudgetEUR float64                         `json:"budget_eur"`
	Status    string                          `json:"status"` // running, completed, failed
	CreatedAt time.Time                       `json:"created_at"`
	Summaries map[StrategyTag]BacktestSummary `json:"summaries,omitempty"`
}

// BacktestSummary is the final per-strategy result of a run.
type BacktestSummary struct {
	Days          int     `json:"days"`
	Invested      float64 `json:"invested"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	FinalValue    float64 `json:"final_value"`
	Trades        int     `json:"trades"`
}

// BacktestDayResult is one persisted day row of a backtest run.
type BacktestDayResult struct {
	ID            string      `badgerhold:"key" json:"id"` // "<run>:<strategy>:<date>"
	RunID         string      `badgerhold:"index" json:"run_id"`
	Date          string      `json:"date"`
	Strategy      StrategyTag `json:"strategy"`
	Invested      float64     `json:"invested"`
	Value         float64     `json:"value"`
	RealizedPnL   float64     `json:"realized_pnl"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	TradesJSON    string      `json:"trades_json,omitempty"`
}

// SimTrade is one trade executed against the simulated portfolio.
type SimTrade struct {
	Ticker   string  `json:"ticker"`
	Side     string  `json:"side"` // buy or sell
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	PnL      float64 `json:"pnl,omitempty"`
	Date     string  `json:"date"`
	Reason   string  `json:"reason,omitempty"`
}

// PortfolioSnapshot is a persisted end-of-day snapshot of broker positions.
type PortfolioSnapshot struct {
	ID         string     `badgerhold:"key" json:"id"` // "<date>:<account>"
	Date       string     `badgerhold:"index" json:"date"`
	Account    string     `json:"account"` // live or demo
	Positions  []Position `json:"positions"`
	Cash       float64    `json:"cash"`
	TotalValue float64    `json:"total_value"`
	CreatedAt  time.Time  `json:"created_at"`
}

// BlacklistEntry maps a ticker to the date it was last traded.
type BlacklistEntry struct {
	Ticker  string `json:"ticker"`
	AddedOn string `json:"added_on"` // ISO date
}
