// Package interfaces defines the contracts between the orchestration core and
// its external collaborators. The core depends on these, never on concrete
// clients.
package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tradewind/internal/models"
)

// InsiderSource fetches company-insider buy candidates.
type InsiderSource interface {
	// FetchBuyCandidates returns up to topN per-ticker candidates aggregated
	// over the lookback window, ordered by conviction descending.
	FetchBuyCandidates(ctx context.Context, lookbackDays, topN int) ([]models.Candidate, error)
}

// PoliticianSource fetches politician disclosure buy candidates.
type PoliticianSource interface {
	FetchBuyCandidates(ctx context.Context, lookbackDays, topN int) ([]models.Candidate, error)
}

// PricePoint is one historical close used for returns and indicators.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// SearchResult is one instrument match from the provider's search endpoint.
type SearchResult struct {
	Ticker   string
	Name     string
	Exchange string
	Type     string
}

// ScreenResult is one row from the provider's market screener.
type ScreenResult struct {
	Ticker    string
	Name      string
	MarketCap float64
	Change1D  float64
}

// AnalystRevision is one analyst estimate revision entry.
type AnalystRevision struct {
	Ticker    string
	Date      time.Time
	Firm      string
	Action    string
	TargetOld float64
	TargetNew float64
}

// EarningsEvent is one row from the earnings calendar.
type EarningsEvent struct {
	Ticker string
	Date   time.Time
	EPSEst *float64
}

// MarketDataClient is the financial data provider used for enrichment, tool
// calls and pricing. Every method is best-effort: callers treat errors as
// "field absent", never as cycle-fatal.
type MarketDataClient interface {
	GetPrice(ctx context.Context, ticker string) (float64, error)
	GetReturns(ctx context.Context, ticker string) (*models.PriceReturns, error)
	GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error)
	GetTechnicals(ctx context.Context, ticker string) (*models.Technicals, error)
	GetEarnings(ctx context.Context, ticker string) (*models.EarningsInfo, error)
	GetInsiderHistory(ctx context.Context, ticker string) (*models.InsiderHistory, error)
	GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]PricePoint, error)
	// GetNews is the fallback news source used when the primary provider is
	// unavailable or its circuit breaker is open.
	GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error)
	GetEarningsCalendar(ctx context.Context, from, to time.Time) ([]EarningsEvent, error)
	GetAnalystRevisions(ctx context.Context, ticker string) ([]AnalystRevision, error)
	SearchStocks(ctx context.Context, query string) ([]SearchResult, error)
	ScreenGlobalMarkets(ctx context.Context, filter string, limit int) ([]ScreenResult, error)
	// GetFXRate returns the spot rate for a pair such as "EURUSD".
	GetFXRate(ctx context.Context, pair string) (float64, error)
}

// NewsProvider is the rate-limited primary news source.
type NewsProvider interface {
	GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error)
}

// Broker places orders and reports account state. Positions are owned by the
// broker; the core reads through.
type Broker interface {
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetFreeCash(ctx context.Context) (float64, error)
	// ResolveInstrument maps a provider ticker to the broker's instrument
	// identifier. Returns ErrInstrumentNotFound when the symbol is not
	// tradable.
	ResolveInstrument(ctx context.Context, ticker string) (string, error)
	// PlaceMarketOrderValue buys for a currency amount.
	PlaceMarketOrderValue(ctx context.Context, instrument string, amount float64) (*models.OrderFill, error)
	// PlaceMarketOrderQuantity sells (or buys) a share quantity.
	PlaceMarketOrderQuantity(ctx context.Context, instrument string, quantity float64) (*models.OrderFill, error)
	IsReal() bool
}

// Notifier delivers human-facing summaries. Failures are never fatal.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
