package stockdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the data provider API.
	DefaultBaseURL = "https://eodhd.com/api"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 20 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10
)

// Client is the financial data provider client. It satisfies
// interfaces.MarketDataClient; every method is best-effort and callers treat
// errors as field-absent.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new data provider client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// symbolFor maps a ticker to the provider's TICKER.EXCHANGE form. Tickers
// without a known suffix are assumed to be US listings.
func symbolFor(ticker string) string {
	t := common.NormalizeTicker(ticker)
	if common.HasExchangeSuffix(t) {
		return t
	}
	return t + ".US"
}

// get performs a GET request against the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait fails only on context cancellation or deadline; that is the
	// caller giving up, not a provider quota response.
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Stock data API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: time.Minute}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetPrice returns the latest quote for a ticker.
func (c *Client) GetPrice(ctx context.Context, ticker string) (float64, error) {
	var quote quoteRow
	if err := c.get(ctx, "/real-time/"+symbolFor(ticker), nil, &quote); err != nil {
		return 0, err
	}
	if quote.Close <= 0 {
		return 0, fmt.Errorf("no price available for %s", ticker)
	}
	return quote.Close, nil
}

// GetHistory returns daily closes for a ticker over the given range.
func (c *Client) GetHistory(ctx context.Context, ticker string, from, to time.Time) ([]interfaces.PricePoint, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))
	params.Set("period", "d")
	params.Set("order", "a")

	var rows []eodRow
	if err := c.get(ctx, "/eod/"+symbolFor(ticker), params, &rows); err != nil {
		return nil, err
	}

	points := make([]interfaces.PricePoint, 0, len(rows))
	for _, row := range rows {
		t, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		close := row.AdjustedClose
		if close <= 0 {
			close = row.Close
		}
		points = append(points, interfaces.PricePoint{Date: t, Close: close})
	}
	return points, nil
}

// GetReturns computes 1mo/6mo/1y trailing returns from daily closes. Windows
// without enough history come back nil.
func (c *Client) GetReturns(ctx context.Context, ticker string) (*models.PriceReturns, error) {
	to := time.Now()
	points, err := c.GetHistory(ctx, ticker, to.AddDate(-1, 0, -7), to)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no history for %s", ticker)
	}

	latest := points[len(points)-1].Close
	returns := &models.PriceReturns{
		OneMonth: returnSince(points, latest, to.AddDate(0, -1, 0)),
		SixMonth: returnSince(points, latest, to.AddDate(0, -6, 0)),
		OneYear:  returnSince(points, latest, to.AddDate(-1, 0, 0)),
	}
	return returns, nil
}

// returnSince finds the first close on or after cutoff and returns the percent
// change to latest. Nil when the series does not reach back that far.
func returnSince(points []interfaces.PricePoint, latest float64, cutoff time.Time) *float64 {
	for _, p := range points {
		if !p.Date.Before(cutoff) {
			if p.Close <= 0 {
				return nil
			}
			pct := (latest - p.Close) / p.Close * 100
			return &pct
		}
	}
	return nil
}

// GetFundamentals returns quote type, market cap, sector and valuation fields.
func (c *Client) GetFundamentals(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	var resp fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+symbolFor(ticker), nil, &resp); err != nil {
		return nil, err
	}

	f := &models.Fundamentals{}
	if resp.General != nil {
		f.QuoteType = strings.ToUpper(resp.General.Type)
		f.Sector = resp.General.Sector
		f.Industry = resp.General.Industry
	}
	if resp.Highlights != nil {
		f.MarketCap = resp.Highlights.MarketCapitalization
		f.TrailingPE = resp.Highlights.PERatio
		f.ProfitMargin = resp.Highlights.ProfitMargin
		f.RevenueGrowth = resp.Highlights.QuarterlyRevenueGrowth
	}
	if resp.Valuation != nil {
		f.ForwardPE = resp.Valuation.ForwardPE
	}
	if resp.Technicals != nil {
		f.Beta = resp.Technicals.Beta
	}
	return f, nil
}

// GetTechnicals computes RSI, MACD, Bollinger bands and moving averages from
// the trailing year of daily closes.
func (c *Client) GetTechnicals(ctx context.Context, ticker string) (*models.Technicals, error) {
	to := time.Now()
	points, err := c.GetHistory(ctx, ticker, to.AddDate(-1, 0, -30), to)
	if err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Close > 0 {
			closes = append(closes, p.Close)
		}
	}
	if len(closes) < 20 {
		return nil, fmt.Errorf("insufficient history for %s: %d closes", ticker, len(closes))
	}

	t := &models.Technicals{
		RSI14: rsi(closes, 14),
		SMA50: sma(closes, 50),
		EMA20: ema(closes, 20),
	}
	t.SMA200 = sma(closes, 200)
	t.MACD, t.MACDSignal = macd(closes)
	t.BollingerUpper, t.BollingerLower = bollinger(closes, 20, 2)
	return t, nil
}

// GetEarnings returns the next scheduled earnings event for a ticker.
func (c *Client) GetEarnings(ctx context.Context, ticker string) (*models.EarningsInfo, error) {
	from := time.Now()
	params := url.Values{}
	params.Set("symbols", symbolFor(ticker))
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", from.AddDate(0, 3, 0).Format("2006-01-02"))

	var resp earningsCalendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &resp); err != nil {
		return nil, err
	}

	info := &models.EarningsInfo{}
	for _, row := range resp.Earnings {
		dateStr := row.ReportDate
		if dateStr == "" {
			dateStr = row.Date
		}
		t, err := time.Parse("2006-01-02", dateStr)
		if err != nil || t.Before(from.Truncate(24*time.Hour)) {
			continue
		}
		if info.NextDate == nil || t.Before(*info.NextDate) {
			next := t
			days := int(time.Until(t).Hours() / 24)
			info.NextDate = &next
			info.DaysUntil = &days
		}
	}
	return info, nil
}

// GetEarningsCalendar returns upcoming earnings events across the market.
func (c *Client) GetEarningsCalendar(ctx context.Context, from, to time.Time) ([]interfaces.EarningsEvent, error) {
	params := url.Values{}
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", to.Format("2006-01-02"))

	var resp earningsCalendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &resp); err != nil {
		return nil, err
	}

	events := make([]interfaces.EarningsEvent, 0, len(resp.Earnings))
	for _, row := range resp.Earnings {
		dateStr := row.ReportDate
		if dateStr == "" {
			dateStr = row.Date
		}
		t, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		events = append(events, interfaces.EarningsEvent{
			Ticker: strings.TrimSuffix(row.Code, ".US"),
			Date:   t,
			EPSEst: row.EPSEstimate,
		})
	}
	return events, nil
}

// GetAnalystRevisions returns recent estimate trend changes for a ticker.
func (c *Client) GetAnalystRevisions(ctx context.Context, ticker string) ([]interfaces.AnalystRevision, error) {
	params := url.Values{}
	params.Set("symbols", symbolFor(ticker))

	var resp trendsResponse
	if err := c.get(ctx, "/calendar/trends", params, &resp); err != nil {
		return nil, err
	}

	revisions := make([]interfaces.AnalystRevision, 0, len(resp.Trends))
	for _, row := range resp.Trends {
		if row.EPSTrendCurrent == nil || row.EPSTrend30Days == nil {
			continue
		}
		t, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		action := "maintain"
		if *row.EPSTrendCurrent > *row.EPSTrend30Days {
			action = "raise"
		} else if *row.EPSTrendCurrent < *row.EPSTrend30Days {
			action = "lower"
		}
		revisions = append(revisions, interfaces.AnalystRevision{
			Ticker:    common.NormalizeTicker(ticker),
			Date:      t,
			Action:    action,
			TargetOld: *row.EPSTrend30Days,
			TargetNew: *row.EPSTrendCurrent,
		})
	}
	return revisions, nil
}

// GetInsiderHistory counts reported insider buys over 30/60/90 day windows.
// The accelerating flag is set when the 30-day pace exceeds the 90-day average
// pace.
func (c *Client) GetInsiderHistory(ctx context.Context, ticker string) (*models.InsiderHistory, error) {
	params := url.Values{}
	params.Set("code", symbolFor(ticker))
	params.Set("limit", "200")

	var rows []insiderRow
	if err := c.get(ctx, "/insider-transactions", params, &rows); err != nil {
		return nil, err
	}

	now := time.Now()
	history := &models.InsiderHistory{}
	for _, row := range rows {
		// P is the purchase transaction code in SEC Form 4 filings.
		if !strings.EqualFold(row.TransactionCode, "P") {
			continue
		}
		dateStr := row.TransactionDate
		if dateStr == "" {
			dateStr = row.Date
		}
		t, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		age := now.Sub(t)
		if age <= 90*24*time.Hour {
			history.Buys90d++
		}
		if age <= 60*24*time.Hour {
			history.Buys60d++
		}
		if age <= 30*24*time.Hour {
			history.Buys30d++
		}
	}
	history.Accelerating = history.Buys30d*3 > history.Buys90d && history.Buys30d > 0
	return history, nil
}

// GetNews returns recent news for a ticker. This is the fallback news path;
// the primary provider lives in the news package.
func (c *Client) GetNews(ctx context.Context, ticker string, limit int) ([]models.NewsItem, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("s", symbolFor(ticker))
	params.Set("limit", fmt.Sprintf("%d", limit))

	var rows []newsRow
	if err := c.get(ctx, "/news", params, &rows); err != nil {
		return nil, err
	}

	items := make([]models.NewsItem, 0, len(rows))
	for _, row := range rows {
		item := models.NewsItem{
			Title:     row.Title,
			Link:      row.Link,
			Publisher: row.Source,
		}
		if t, err := time.Parse("2006-01-02 15:04:05", row.Date); err == nil {
			item.PublishedAt = t
		} else if t, err := time.Parse("2006-01-02", row.Date); err == nil {
			item.PublishedAt = t
		}
		items = append(items, item)
	}
	return items, nil
}

// SearchStocks searches instruments by name or symbol fragment.
func (c *Client) SearchStocks(ctx context.Context, query string) ([]interfaces.SearchResult, error) {
	var rows []searchRow
	if err := c.get(ctx, "/search/"+url.PathEscape(query), nil, &rows); err != nil {
		return nil, err
	}

	results := make([]interfaces.SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, interfaces.SearchResult{
			Ticker:   row.Code,
			Name:     row.Name,
			Exchange: row.Exchange,
			Type:     row.Type,
		})
	}
	return results, nil
}

// screenerFilters maps the tool-facing filter names to provider signals.
var screenerFilters = map[string]string{
	"top_gainers":    "wallstreet_gainers",
	"top_losers":     "wallstreet_losers",
	"most_active":    "most_active",
	"new_highs":      "200d_new_hi",
	"new_lows":       "200d_new_lo",
	"oversold_rsi":   "rsi_oversold",
	"overbought_rsi": "rsi_overbought",
}

// ScreenGlobalMarkets runs a named market screen.
func (c *Client) ScreenGlobalMarkets(ctx context.Context, filter string, limit int) ([]interfaces.ScreenResult, error) {
	signal, ok := screenerFilters[strings.ToLower(filter)]
	if !ok {
		known := make([]string, 0, len(screenerFilters))
		for name := range screenerFilters {
			known = append(known, name)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown screen filter %q, expected one of %s", filter, strings.Join(known, ", "))
	}
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("signals", signal)
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("sort", "market_capitalization.desc")

	var resp screenerResponse
	if err := c.get(ctx, "/screener", params, &resp); err != nil {
		return nil, err
	}

	results := make([]interfaces.ScreenResult, 0, len(resp.Data))
	for _, row := range resp.Data {
		results = append(results, interfaces.ScreenResult{
			Ticker:    row.Code,
			Name:      row.Name,
			MarketCap: row.MarketCap,
			Change1D:  row.Change1DPct,
		})
	}
	return results, nil
}

// GetFXRate returns the spot rate for a pair such as "EURUSD".
func (c *Client) GetFXRate(ctx context.Context, pair string) (float64, error) {
	var quote quoteRow
	if err := c.get(ctx, "/real-time/"+strings.ToUpper(pair)+".FOREX", nil, &quote); err != nil {
		return 0, err
	}
	if quote.Close <= 0 {
		return 0, fmt.Errorf("no rate available for %s", pair)
	}
	return quote.Close, nil
}
