// Package capitoltrades fetches politician disclosure buys from the trades
// JSON API and aggregates them into per-ticker candidates.
package capitoltrades

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/models"
)

const (
	// DefaultBaseURL is the trades API endpoint.
	DefaultBaseURL = "https://bff.capitoltrades.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// recencyHalfLifeDays halves a disclosure's weight each two weeks of age.
	// Disclosures lag the trade, so the window is wider than for insider
	// filings.
	recencyHalfLifeDays = 14.0
)

// Client fetches politician trades. It satisfies interfaces.PoliticianSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
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

// NewClient creates a new politician trades client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tradesResponse wraps the API's trade rows.
type tradesResponse struct {
	Data []tradeRow `json:"data"`
}

type tradeRow struct {
	TxType     string `json:"txType"`
	TxDate     string `json:"txDate"`
	Value      int64  `json:"value"`
	Politician struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"politician"`
	Issuer struct {
		Ticker string `json:"issuerTicker"`
		Name   string `json:"issuerName"`
	} `json:"issuer"`
}

// FetchBuyCandidates fetches buy disclosures inside the lookback window and
// returns up to topN per-ticker candidates ordered by conviction descending.
func (c *Client) FetchBuyCandidates(ctx context.Context, lookbackDays, topN int) ([]models.Candidate, error) {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	if topN <= 0 {
		topN = 10
	}

	params := url.Values{}
	params.Set("txType", "buy")
	params.Set("txDate", fmt.Sprintf("%dd", lookbackDays))
	params.Set("pageSize", "100")
	params.Set("sortBy", "-txDate")

	reqURL := fmt.Sprintf("%s/trades?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("trades API returned status %d: %s", resp.StatusCode, string(body))
	}

	var trades tradesResponse
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, fmt.Errorf("failed to decode trades response: %w", err)
	}

	candidates := c.aggregate(trades.Data, lookbackDays)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ConvictionScore != candidates[j].ConvictionScore {
			return candidates[i].ConvictionScore > candidates[j].ConvictionScore
		}
		return candidates[i].Ticker < candidates[j].Ticker
	})
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	if c.logger != nil {
		c.logger.Info().
			Int("trades", len(trades.Data)).
			Int("candidates", len(candidates)).
			Int("lookback_days", lookbackDays).
			Msg("Politician trades fetch complete")
	}
	return candidates, nil
}

// aggregate folds buy disclosures into per-ticker candidates. Conviction is
// the disclosed value (in $k) scaled by recency decay; politician filings
// carry no role weighting.
func (c *Client) aggregate(rows []tradeRow, lookbackDays int) []models.Candidate {
	now := time.Now()
	cutoff := now.AddDate(0, 0, -lookbackDays)
	byTicker := make(map[string]*models.Candidate)
	order := make([]string, 0)

	for _, row := range rows {
		if !strings.EqualFold(row.TxType, "buy") {
			continue
		}
		ticker := normalizeIssuerTicker(row.Issuer.Ticker)
		if ticker == "" || row.Value <= 0 {
			continue
		}

		tradeDate, err := time.Parse("2006-01-02", row.TxDate)
		if err != nil || tradeDate.Before(cutoff) {
			continue
		}

		cand, ok := byTicker[ticker]
		if !ok {
			cand = &models.Candidate{
				Ticker:           ticker,
				Company:          row.Issuer.Name,
				Source:           models.SourcePoliticians,
				HasPoliticianBuy: true,
			}
			byTicker[ticker] = cand
			order = append(order, ticker)
		}

		name := strings.TrimSpace(row.Politician.FirstName + " " + row.Politician.LastName)
		cand.AddInsiders(name)
		cand.Transactions = append(cand.Transactions, models.RawTransaction{
			Ticker:    ticker,
			Insider:   name,
			TradeDate: tradeDate,
			ValueUSD:  float64(row.Value),
		})
		cand.TotalValueUSD += float64(row.Value)
		cand.ConvictionScore += float64(row.Value) / 1000 * recencyDecay(tradeDate, now)
	}

	candidates := make([]models.Candidate, 0, len(order))
	for _, ticker := range order {
		cand := byTicker[ticker]
		cand.IsCluster = len(cand.Insiders) >= 2
		candidates = append(candidates, *cand)
	}
	return candidates
}

// normalizeIssuerTicker strips the API's ":US" style exchange qualifier.
func normalizeIssuerTicker(ticker string) string {
	t := common.NormalizeTicker(ticker)
	if idx := strings.IndexByte(t, ':'); idx >= 0 {
		t = t[:idx]
	}
	if t == "" || t == "N/A" {
		return ""
	}
	if _, err := strconv.Atoi(t); err == nil {
		// Numeric identifiers are bonds or funds, not equities.
		return ""
	}
	return t
}

// recencyDecay weights a disclosure by age with a fixed half-life.
func recencyDecay(tradeDate time.Time, now time.Time) float64 {
	ageDays := now.Sub(tradeDate).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays * math.Ln2 / recencyHalfLifeDays)
}
