// Package models defines the domain records exchanged between services.
package models

import (
	"sort"
	"time"
)

// CandidateSource identifies which signal source produced a candidate.
type CandidateSource string

const (
	SourceInsider     CandidateSource = "insider"
	SourcePoliticians CandidateSource = "politicians"
	SourceCombined    CandidateSource = "insider+politicians"
)

// RawTransaction is a single filed buy transaction from a signal source.
type RawTransaction struct {
	Ticker      string    `json:"ticker"`
	Insider     string    `json:"insider"`
	Role        string    `json:"role,omitempty"`
	TradeDate   time.Time `json:"trade_date"`
	Price       float64   `json:"price,omitempty"`
	Quantity    float64   `json:"quantity,omitempty"`
	ValueUSD    float64   `json:"value_usd"`
	DeltaOwnPct float64   `json:"delta_own_pct,omitempty"`
}

// Candidate is a per-ticker buy signal aggregated from one source. Immutable
// once the digest builder finishes enrichment.
type Candidate struct {
	Ticker           string           `json:"ticker"`
	Company          string           `json:"company"`
	Source           CandidateSource  `json:"source"`
	Insiders         []string         `json:"insiders"`
	IsCluster        bool             `json:"is_cluster"`
	IsCSuitePresent  bool             `json:"is_csuite_present"`
	HasPoliticianBuy bool             `json:"has_politician_buy"`
	MaxDeltaOwnPct   float64          `json:"max_delta_own_pct,omitempty"`
	TotalValueUSD    float64          `json:"total_value_usd"`
	ConvictionScore  float64          `json:"conviction_score"`
	Transactions     []RawTransaction `json:"transactions,omitempty"`
}

// AddInsiders appends names preserving insertion order, skipping duplicates.
func (c *Candidate) AddInsiders(names ...string) {
	seen := make(map[string]bool, len(c.Insiders))
	for _, n := range c.Insiders {
		seen[n] = true
	}
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		c.Insiders = append(c.Insiders, n)
		seen[n] = true
	}
}

// PriceReturns holds trailing price returns in percent. Nil means unknown.
type PriceReturns struct {
	OneMonth *float64 `json:"one_month,omitempty"`
	SixMonth *float64 `json:"six_month,omitempty"`
	OneYear  *float64 `json:"one_year,omitempty"`
}

// Fundamentals holds provider-supplied fundamental data. Pointer fields are
// nil when the provider did not report them; absence means unknown, not zero.
type Fundamentals struct {
	QuoteType     string   `json:"quote_type,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	Industry      string   `json:"industry,omitempty"`
	TrailingPE    *float64 `json:"trailing_pe,omitempty"`
	ForwardPE     *float64 `json:"forward_pe,omitempty"`
	ProfitMargin  *float64 `json:"profit_margin,omitempty"`
	RevenueGrowth *float64 `json:"revenue_growth,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
}

// Technicals holds computed technical indicators.
type Technicals struct {
	RSI14          *float64 `json:"rsi_14,omitempty"`
	MACD           *float64 `json:"macd,omitempty"`
	MACDSignal     *float64 `json:"macd_signal,omitempty"`
	BollingerUpper *float64 `json:"bollinger_upper,omitempty"`
	BollingerLower *float64 `json:"bollinger_lower,omitempty"`
	SMA50          *float64 `json:"sma_50,omitempty"`
	SMA200         *float64 `json:"sma_200,omitempty"`
	EMA20          *float64 `json:"ema_20,omitempty"`
}

// EarningsInfo holds the next scheduled earnings event.
type EarningsInfo struct {
	NextDate  *time.Time `json:"next_date,omitempty"`
	DaysUntil *int       `json:"days_until,omitempty"`
}

// InsiderHistory summarizes historical insider buying for a ticker.
type InsiderHistory struct {
	Buys30d      int  `json:"buys_30d"`
	Buys60d      int  `json:"buys_60d"`
	Buys90d      int  `json:"buys_90d"`
	Accelerating bool `json:"accelerating"`
}

// NewsItem is a single news article reference.
type NewsItem struct {
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher,omitempty"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// EnrichedCandidate is a Candidate plus best-effort context. Every enrichment
// field may be nil/empty; consumers treat absence as unknown.
type EnrichedCandidate struct {
	Candidate
	Returns        *PriceReturns   `json:"returns,omitempty"`
	Fundamentals   *Fundamentals   `json:"fundamentals,omitempty"`
	Technicals     *Technicals     `json:"technicals,omitempty"`
	Earnings       *EarningsInfo   `json:"earnings,omitempty"`
	InsiderHistory *InsiderHistory `json:"insider_history,omitempty"`
	News           []NewsItem      `json:"news,omitempty"`
}

// SignalDigest is the per-cycle candidate list handed to the pipeline.
type SignalDigest struct {
	Candidates   []EnrichedCandidate     `json:"candidates"`
	InsiderCount int                     `json:"insider_count"`
	LookbackDays int                     `json:"lookback_days"`
	SourceCounts map[CandidateSource]int `json:"source_counts"`
}

// SortCandidates orders candidates by conviction descending, ticker ascending.
func SortCandidates(candidates []EnrichedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ConvictionScore != candidates[j].ConvictionScore {
			return candidates[i].ConvictionScore > candidates[j].ConvictionScore
		}
		return candidates[i].Ticker < candidates[j].Ticker
	})
}

// CountBySource recomputes the per-source candidate counts.
func CountBySource(candidates []EnrichedCandidate) map[CandidateSource]int {
	counts := make(map[CandidateSource]int)
	for _, c := range candidates {
		counts[c.Source]++
	}
	return counts
}
