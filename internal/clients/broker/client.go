// Package broker provides the equity broker HTTP client. The API is split
// into a live and a practice host; each strategy run selects one by its
// account flag.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

const (
	// DefaultLiveBaseURL is the live account API host.
	DefaultLiveBaseURL = "https://live.trading212.com/api/v0"

	// DefaultPracticeBaseURL is the practice account API host.
	DefaultPracticeBaseURL = "https://demo.trading212.com/api/v0"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// instrumentCacheTTL bounds how long the instrument list is trusted. A
	// miss inside a fresh cache means not tradable; a miss against a stale
	// cache triggers a refetch before the verdict.
	instrumentCacheTTL = 12 * time.Hour
)

// Client is the broker HTTP client. It satisfies interfaces.Broker.
type Client struct {
	baseURL    string
	apiKey     string
	isReal     bool
	httpClient *http.Client
	logger     arbor.ILogger

	mu          sync.Mutex
	instruments map[string]string // provider ticker -> broker instrument id
	fetchedAt   time.Time
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

// NewClient creates a broker client bound to one account. isReal selects the
// live host; the practice host otherwise.
func NewClient(apiKey string, isReal bool, opts ...ClientOption) *Client {
	baseURL := DefaultPracticeBaseURL
	if isReal {
		baseURL = DefaultLiveBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		isReal:  isReal,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsReal reports whether this client trades the live account.
func (c *Client) IsReal() bool {
	return c.isReal
}

// do performs an authenticated request and decodes the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("broker API %s %s returned status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// positionRow is one portfolio holding.
type positionRow struct {
	Ticker          string  `json:"ticker"`
	Quantity        float64 `json:"quantity"`
	AveragePrice    float64 `json:"averagePrice"`
	InitialFillDate string  `json:"initialFillDate"`
}

// GetPositions returns all open positions.
func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	var rows []positionRow
	if err := c.do(ctx, http.MethodGet, "/equity/portfolio", nil, &rows); err != nil {
		return nil, err
	}

	positions := make([]models.Position, 0, len(rows))
	for _, row := range rows {
		pos := models.Position{
			Ticker:      providerTicker(row.Ticker),
			Quantity:    row.Quantity,
			AvgBuyPrice: row.AveragePrice,
			IsReal:      c.isReal,
		}
		if t, err := time.Parse(time.RFC3339, row.InitialFillDate); err == nil {
			pos.OpenedAt = t
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// cashResponse is the account cash summary.
type cashResponse struct {
	Free  float64 `json:"free"`
	Total float64 `json:"total"`
}

// GetFreeCash returns the free cash available for new orders.
func (c *Client) GetFreeCash(ctx context.Context) (float64, error) {
	var cash cashResponse
	if err := c.do(ctx, http.MethodGet, "/equity/account/cash", nil, &cash); err != nil {
		return 0, err
	}
	return cash.Free, nil
}

// instrumentRow is one tradable instrument from the metadata endpoint.
type instrumentRow struct {
	Ticker    string `json:"ticker"`    // broker id, e.g. AAPL_US_EQ
	ShortName string `json:"shortName"` // provider symbol, e.g. AAPL
	Type      string `json:"type"`
}

// ResolveInstrument maps a provider ticker to the broker's instrument id.
// Returns interfaces.ErrInstrumentNotFound when the symbol is not tradable.
// The instrument list is cached; a symbol absent from a fresh cache is
// reported not-tradable without being cached itself, so newly listed symbols
// resolve after the next refresh.
func (c *Client) ResolveInstrument(ctx context.Context, ticker string) (string, error) {
	key := common.BaseTicker(ticker)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instruments == nil || time.Since(c.fetchedAt) > instrumentCacheTTL {
		if err := c.refreshInstrumentsLocked(ctx); err != nil {
			if c.instruments == nil {
				return "", err
			}
			// A refresh failure falls back to the stale cache.
			if c.logger != nil {
				c.logger.Warn().Err(err).Msg("Instrument refresh failed, using stale cache")
			}
		}
	}

	if id, ok := c.instruments[key]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%s: %w", ticker, interfaces.ErrInstrumentNotFound)
}

// refreshInstrumentsLocked refetches the instrument list. Caller holds mu.
func (c *Client) refreshInstrumentsLocked(ctx context.Context) error {
	var rows []instrumentRow
	if err := c.do(ctx, http.MethodGet, "/equity/metadata/instruments", nil, &rows); err != nil {
		return err
	}

	instruments := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.ShortName == "" || row.Ticker == "" {
			continue
		}
		instruments[common.NormalizeTicker(row.ShortName)] = row.Ticker
	}
	c.instruments = instruments
	c.fetchedAt = time.Now()

	if c.logger != nil {
		c.logger.Debug().
			Int("instruments", len(instruments)).
			Msg("Instrument cache refreshed")
	}
	return nil
}

// orderRequest is a market order payload. Exactly one of Value or Quantity is
// set.
type orderRequest struct {
	Ticker   string  `json:"ticker"`
	Value    float64 `json:"value,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
}

// orderResponse is the broker's fill report.
type orderResponse struct {
	FilledQuantity float64 `json:"filledQuantity"`
	FillPrice      float64 `json:"fillPrice"`
	FilledValue    float64 `json:"filledValue"`
	Status         string  `json:"status"`
}

// PlaceMarketOrderValue buys an instrument for a currency amount.
func (c *Client) PlaceMarketOrderValue(ctx context.Context, instrument string, amount float64) (*models.OrderFill, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("order amount must be positive, got %.2f", amount)
	}

	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/equity/orders/market", orderRequest{
		Ticker: instrument,
		Value:  amount,
	}, &resp)
	if err != nil {
		return nil, err
	}

	fill := &models.OrderFill{
		Quantity:    resp.FilledQuantity,
		FillPrice:   resp.FillPrice,
		AmountSpent: resp.FilledValue,
	}
	if fill.AmountSpent == 0 {
		fill.AmountSpent = amount
	}

	if c.logger != nil {
		c.logger.Info().
			Str("instrument", instrument).
			Float64("amount", amount).
			Float64("quantity", fill.Quantity).
			Bool("real", c.isReal).
			Msg("Market value order placed")
	}
	return fill, nil
}

// PlaceMarketOrderQuantity places a market order for a share quantity. A
// negative quantity sells.
func (c *Client) PlaceMarketOrderQuantity(ctx context.Context, instrument string, quantity float64) (*models.OrderFill, error) {
	if quantity == 0 {
		return nil, fmt.Errorf("order quantity must be non-zero")
	}

	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/equity/orders/market", orderRequest{
		Ticker:   instrument,
		Quantity: quantity,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.Info().
			Str("instrument", instrument).
			Float64("quantity", quantity).
			Bool("real", c.isReal).
			Msg("Market quantity order placed")
	}
	return &models.OrderFill{
		Quantity:    resp.FilledQuantity,
		FillPrice:   resp.FillPrice,
		AmountSpent: resp.FilledValue,
	}, nil
}

// providerTicker maps a broker instrument id like AAPL_US_EQ back to the
// provider symbol.
func providerTicker(brokerTicker string) string {
	if idx := strings.IndexByte(brokerTicker, '_'); idx > 0 {
		return brokerTicker[:idx]
	}
	return brokerTicker
}
