package models

import "time"

// Position is an open holding as reported by the broker (or the simulated
// portfolio in backtests). AvgBuyPrice is a running cost-basis average.
type Position struct {
	Ticker      string    `json:"ticker"`
	Quantity    float64   `json:"quantity"`
	AvgBuyPrice float64   `json:"avg_buy_price"`
	OpenedAt    time.Time `json:"opened_at"`
	IsReal      bool      `json:"is_real"`
}

// ReturnPct computes the unrealized return against a current price, in
// percent. Returns 0 when the cost basis is unusable.
func (p *Position) ReturnPct(currentPrice float64) float64 {
	if p.AvgBuyPrice <= 0 {
		return 0
	}
	return (currentPrice - p.AvgBuyPrice) / p.AvgBuyPrice * 100
}

// TradeResult records one attempted execution against the broker.
type TradeResult struct {
	Ticker       string  `json:"ticker"`
	Success      bool    `json:"success"`
	AmountSpent  float64 `json:"amount_spent"`
	Quantity     float64 `json:"quantity"`
	BrokerTicker string  `json:"broker_ticker,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// ExecutionSummary is the outcome of one execution run.
// Invariant: TotalSpent equals the sum of Bought amounts and stays within
// min(budget, available cash) plus one unit of tolerance.
type ExecutionSummary struct {
	IsReal        bool          `json:"is_real"`
	Budget        float64       `json:"budget"`
	AvailableCash float64       `json:"available_cash"`
	TotalSpent    float64       `json:"total_spent"`
	Bought        []TradeResult `json:"bought"`
	Failed        []TradeResult `json:"failed"`
}

// SellSignalType identifies which sell rule fired.
type SellSignalType string

const (
	SellStopLoss   SellSignalType = "stop_loss"
	SellTakeProfit SellSignalType = "take_profit"
	SellHoldPeriod SellSignalType = "hold_period"
)

// SellSignal is an exit recommendation for a single open position.
type SellSignal struct {
	Ticker       string         `json:"ticker"`
	Type         SellSignalType `json:"signal_type"`
	TriggerPrice float64        `json:"trigger_price"`
	ReturnPct    float64        `json:"return_pct"`
	Reasoning    string         `json:"reasoning"`
}

// OrderFill is the broker's reported fill for a market order.
type OrderFill struct {
	Quantity    float64 `json:"quantity"`
	FillPrice   float64 `json:"fill_price"`
	AmountSpent float64 `json:"amount_spent"`
}

// ExecutionCandidate is one ranked, priced pick handed to the trade executor.
type ExecutionCandidate struct {
	Ticker        string  `json:"ticker"`
	PriceLocal    float64 `json:"price_local"` // in account currency
	AllocationPct float64 `json:"allocation_pct"`
	Reasoning     string  `json:"reasoning,omitempty"`
}
