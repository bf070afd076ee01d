// Package openinsider scrapes the insider-purchase screener HTML table and
// aggregates filings into per-ticker buy candidates.
package openinsider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/models"
)

const (
	// DefaultBaseURL is the insider screener endpoint.
	DefaultBaseURL = "http://openinsider.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// minTransactionValueUSD filters out token purchases below $25k.
	minTransactionValueUSD = 25_000

	// recencyHalfLifeDays halves a transaction's weight each week of age.
	recencyHalfLifeDays = 7.0
)

// Client scrapes the insider screener. It satisfies interfaces.InsiderSource.
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

// NewClient creates a new insider screener client.
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

// FetchBuyCandidates scrapes purchase filings inside the lookback window and
// returns up to topN per-ticker candidates ordered by conviction descending.
func (c *Client) FetchBuyCandidates(ctx context.Context, lookbackDays, topN int) ([]models.Candidate, error) {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	if topN <= 0 {
		topN = 15
	}

	transactions, err := c.fetchTransactions(ctx, lookbackDays)
	if err != nil {
		return nil, err
	}

	candidates := aggregate(transactions)
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
			Int("transactions", len(transactions)).
			Int("candidates", len(candidates)).
			Int("lookback_days", lookbackDays).
			Msg("Insider screener fetch complete")
	}
	return candidates, nil
}

// fetchTransactions downloads and parses the screener table.
func (c *Client) fetchTransactions(ctx context.Context, lookbackDays int) ([]parsedTransaction, error) {
	params := url.Values{}
	params.Set("xp", "1") // purchases only
	params.Set("fd", strconv.Itoa(lookbackDays))
	params.Set("vl", strconv.Itoa(minTransactionValueUSD/1000))
	params.Set("cnt", "500")
	params.Set("sortcol", "0")

	reqURL := fmt.Sprintf("%s/screener?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tradewind/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("insider screener returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse screener HTML: %w", err)
	}

	return parseScreenerTable(doc), nil
}

// parsedTransaction is one screener row with company context attached.
type parsedTransaction struct {
	models.RawTransaction
	Company string
}

// Screener table column indexes. Column 0 is the row marker.
const (
	colTradeDate = 2
	colTicker    = 3
	colCompany   = 4
	colInsider   = 5
	colTitle     = 6
	colTradeType = 7
	colPrice     = 8
	colQuantity  = 9
	colDeltaOwn  = 11
	colValue     = 12
)

// parseScreenerTable extracts purchase rows from the results table.
func parseScreenerTable(doc *goquery.Document) []parsedTransaction {
	var transactions []parsedTransaction

	doc.Find("table.tinytable tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= colValue {
			return
		}

		tradeType := strings.TrimSpace(cells.Eq(colTradeType).Text())
		if !strings.HasPrefix(tradeType, "P") {
			return
		}

		ticker := common.NormalizeTicker(cells.Eq(colTicker).Text())
		if ticker == "" {
			return
		}

		tx := parsedTransaction{Company: strings.TrimSpace(cells.Eq(colCompany).Text())}
		tx.Ticker = ticker
		tx.Insider = strings.TrimSpace(cells.Eq(colInsider).Text())
		tx.Role = strings.TrimSpace(cells.Eq(colTitle).Text())
		tx.Price = parseMoney(cells.Eq(colPrice).Text())
		tx.Quantity = parseMoney(cells.Eq(colQuantity).Text())
		tx.ValueUSD = parseMoney(cells.Eq(colValue).Text())
		tx.DeltaOwnPct = parsePercent(cells.Eq(colDeltaOwn).Text())
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(cells.Eq(colTradeDate).Text())); err == nil {
			tx.TradeDate = t
		}

		if tx.ValueUSD < minTransactionValueUSD {
			return
		}
		transactions = append(transactions, tx)
	})

	return transactions
}

// parseMoney strips currency formatting and parses a float.
func parseMoney(s string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", "+", "", " ", "").Replace(strings.TrimSpace(s))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return math.Abs(v)
}

// parsePercent parses a "+12%" style cell. "New" means a first-time position,
// scored as the maximum ownership change.
func parsePercent(s string) float64 {
	cleaned := strings.TrimSpace(s)
	if strings.EqualFold(cleaned, "new") {
		return 100
	}
	cleaned = strings.NewReplacer("%", "", "+", "", ">", "").Replace(cleaned)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// csuiteTitles marks the roles weighted above directors and officers.
var csuiteTitles = []string{"CEO", "CFO", "COO", "CTO", "PRES", "CHAIRMAN", "CHIEF"}

// roleWeight scores a filer's role. C-suite filings carry the most signal,
// large holders somewhat more than rank-and-file officers.
func roleWeight(role string) float64 {
	upper := strings.ToUpper(role)
	for _, title := range csuiteTitles {
		if strings.Contains(upper, title) {
			return 1.5
		}
	}
	if strings.Contains(upper, "10%") {
		return 1.2
	}
	return 1.0
}

// isCSuite reports whether the role is a C-suite title.
func isCSuite(role string) bool {
	return roleWeight(role) == 1.5
}

// recencyDecay weights a transaction by age with a fixed half-life.
func recencyDecay(tradeDate time.Time, now time.Time) float64 {
	if tradeDate.IsZero() {
		return 1.0
	}
	ageDays := now.Sub(tradeDate).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays * math.Ln2 / recencyHalfLifeDays)
}

// aggregate folds transactions into per-ticker candidates. Conviction is the
// sum over transactions of value (in $k) scaled by recency decay and role
// weight.
func aggregate(transactions []parsedTransaction) []models.Candidate {
	now := time.Now()
	byTicker := make(map[string]*models.Candidate)
	order := make([]string, 0)

	for _, tx := range transactions {
		cand, ok := byTicker[tx.Ticker]
		if !ok {
			cand = &models.Candidate{
				Ticker:  tx.Ticker,
				Company: tx.Company,
				Source:  models.SourceInsider,
			}
			byTicker[tx.Ticker] = cand
			order = append(order, tx.Ticker)
		}

		cand.AddInsiders(tx.Insider)
		cand.Transactions = append(cand.Transactions, tx.RawTransaction)
		cand.TotalValueUSD += tx.ValueUSD
		cand.ConvictionScore += tx.ValueUSD / 1000 * recencyDecay(tx.TradeDate, now) * roleWeight(tx.Role)
		if isCSuite(tx.Role) {
			cand.IsCSuitePresent = true
		}
		if tx.DeltaOwnPct > cand.MaxDeltaOwnPct {
			cand.MaxDeltaOwnPct = tx.DeltaOwnPct
		}
	}

	candidates := make([]models.Candidate, 0, len(order))
	for _, ticker := range order {
		cand := byTicker[ticker]
		cand.IsCluster = len(cand.Insiders) >= 2
		candidates = append(candidates, *cand)
	}
	return candidates
}
