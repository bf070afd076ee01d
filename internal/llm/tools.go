package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/interfaces"
)

// toolCallTimeout bounds each individual tool invocation.
const toolCallTimeout = 30 * time.Second

type toolFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

type toolSpec struct {
	description string
	params      string
	fn          toolFunc
}

// ToolRegistry dispatches model tool calls against a closed allow-list of
// read-only market data operations. Calls outside the list, timeouts, and
// provider errors all come back as structured in-band errors so the research
// stage can recover instead of aborting.
type ToolRegistry struct {
	marketData interfaces.MarketDataClient
	news       interfaces.NewsProvider
	state      *common.ProcessState
	logger     arbor.ILogger
	tools      map[string]toolSpec
	order      []string
}

// NewToolRegistry builds the allow-list over the given clients. news may be
// nil; get_news then uses the market data fallback directly.
func NewToolRegistry(marketData interfaces.MarketDataClient, news interfaces.NewsProvider, state *common.ProcessState, logger arbor.ILogger) *ToolRegistry {
	r := &ToolRegistry{
		marketData: marketData,
		news:       news,
		state:      state,
		logger:     logger,
	}
	r.tools = map[string]toolSpec{
		"get_stock_price": {
			description: "Current price for a ticker.",
			params:      `{"ticker": "AAPL"}`,
			fn:          r.getStockPrice,
		},
		"get_fundamentals": {
			description: "Valuation, margins, market cap and quote type for a ticker.",
			params:      `{"ticker": "AAPL"}`,
			fn:          r.getFundamentals,
		},
		"get_technical_indicators": {
			description: "Moving averages, RSI and 52-week range for a ticker.",
			params:      `{"ticker": "AAPL"}`,
			fn:          r.getTechnicals,
		},
		"get_stock_history": {
			description: "Daily closes for a ticker over the last N days (default 90).",
			params:      `{"ticker": "AAPL", "days": 90}`,
			fn:          r.getStockHistory,
		},
		"get_news": {
			description: "Recent news headlines for a ticker (default limit 5).",
			params:      `{"ticker": "AAPL", "limit": 5}`,
			fn:          r.getNews,
		},
		"get_earnings": {
			description: "Last reported and next expected earnings for a ticker.",
			params:      `{"ticker": "AAPL"}`,
			fn:          r.getEarnings,
		},
		"get_earnings_calendar": {
			description: "Upcoming earnings events over the next N days (default 14).",
			params:      `{"days": 14}`,
			fn:          r.getEarningsCalendar,
		},
		"get_analyst_revisions": {
			description: "Recent analyst estimate revisions for a ticker.",
			params:      `{"ticker": "AAPL"}`,
			fn:          r.getAnalystRevisions,
		},
		"get_insider_activity": {
			description: "Insider buy counts over 30/60/90 days for a ticker.",
			params:      `{"ticker": "AAPL"}`,
			fn:          r.getInsiderActivity,
		},
		"search_stocks": {
			description: "Search instruments by name or symbol fragment.",
			params:      `{"query": "semiconductor"}`,
			fn:          r.searchStocks,
		},
		"screen_global_markets": {
			description: "Screen global markets by a named filter such as top_gainers or top_losers (default limit 10).",
			params:      `{"filter": "top_gainers", "limit": 10}`,
			fn:          r.screenGlobalMarkets,
		},
	}
	r.order = make([]string, 0, len(r.tools))
	for name := range r.tools {
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	return r
}

// Execute runs a single tool call under the per-call deadline. Unknown tools
// and tool failures are reported in the result, never as a Go error.
func (r *ToolRegistry) Execute(ctx context.Context, call interfaces.ToolCall) interfaces.ToolResult {
	spec, ok := r.tools[call.Name]
	if !ok {
		return interfaces.ToolResult{
			Content: fmt.Sprintf(`{"error": "unknown tool %q: not in the allowed tool list"}`, call.Name),
			IsError: true,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	start := time.Now()
	value, err := spec.fn(callCtx, call.Args)
	if err != nil {
		r.logger.Warn().
			Str("tool", call.Name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Tool call failed")
		return interfaces.ToolResult{
			Content: fmt.Sprintf(`{"error": %q}`, err.Error()),
			IsError: true,
		}
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return interfaces.ToolResult{
			Content: fmt.Sprintf(`{"error": "failed to encode tool result: %s"}`, err.Error()),
			IsError: true,
		}
	}

	r.logger.Debug().
		Str("tool", call.Name).
		Int("result_bytes", len(payload)).
		Dur("duration", time.Since(start)).
		Msg("Tool call completed")

	return interfaces.ToolResult{Content: string(payload)}
}

// FormatForPrompt renders the allow-list as a prompt section the model can
// follow. The call protocol mirrors the chat agent convention: a fenced JSON
// block with a single tool_use object.
func (r *ToolRegistry) FormatForPrompt() string {
	var b strings.Builder
	b.WriteString("Available tools (read-only market data):\n\n")
	for _, name := range r.order {
		spec := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n  Arguments: %s\n", name, spec.description, spec.params)
	}
	b.WriteString("\nTo call a tool, respond with ONLY a JSON block:\n")
	b.WriteString("```json\n{\"tool_use\": {\"name\": \"get_stock_price\", \"args\": {\"ticker\": \"AAPL\"}}}\n```\n")
	b.WriteString("When you have enough information, respond with your final answer instead of a tool call.\n")
	return b.String()
}

func argString(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return strings.TrimSpace(s), nil
}

func argInt(args map[string]interface{}, key string, fallback int) int {
	raw, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func (r *ToolRegistry) getStockPrice(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	price, err := r.marketData.GetPrice(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("price lookup for %s failed: %w", ticker, err)
	}
	return map[string]interface{}{"ticker": ticker, "price": price}, nil
}

func (r *ToolRegistry) getFundamentals(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	return r.marketData.GetFundamentals(ctx, ticker)
}

func (r *ToolRegistry) getTechnicals(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	return r.marketData.GetTechnicals(ctx, ticker)
}

func (r *ToolRegistry) getStockHistory(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	days := argInt(args, "days", 90)
	if days <= 0 || days > 365 {
		days = 90
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	points, err := r.marketData.GetHistory(ctx, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("history lookup for %s failed: %w", ticker, err)
	}
	return map[string]interface{}{"ticker": ticker, "days": days, "points": points}, nil
}

func (r *ToolRegistry) getNews(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	limit := argInt(args, "limit", 5)
	if limit <= 0 || limit > 20 {
		limit = 5
	}

	if r.news != nil && (r.state == nil || r.state.NewsAllowed()) {
		items, err := r.news.GetNews(ctx, ticker, limit)
		if err == nil {
			return map[string]interface{}{"ticker": ticker, "items": items}, nil
		}
		if r.state != nil && IsRateLimitError(err) {
			r.state.TripNewsBreaker(time.Hour)
		}
	}

	items, err := r.marketData.GetNews(ctx, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("news lookup for %s failed: %w", ticker, err)
	}
	return map[string]interface{}{"ticker": ticker, "items": items}, nil
}

func (r *ToolRegistry) getEarnings(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	return r.marketData.GetEarnings(ctx, ticker)
}

func (r *ToolRegistry) getEarningsCalendar(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	days := argInt(args, "days", 14)
	if days <= 0 || days > 60 {
		days = 14
	}
	from := time.Now()
	to := from.AddDate(0, 0, days)
	events, err := r.marketData.GetEarningsCalendar(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("earnings calendar lookup failed: %w", err)
	}
	return map[string]interface{}{"days": days, "events": events}, nil
}

func (r *ToolRegistry) getAnalystRevisions(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	revisions, err := r.marketData.GetAnalystRevisions(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("analyst revisions lookup for %s failed: %w", ticker, err)
	}
	return map[string]interface{}{"ticker": ticker, "revisions": revisions}, nil
}

func (r *ToolRegistry) getInsiderActivity(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ticker, err := argString(args, "ticker")
	if err != nil {
		return nil, err
	}
	return r.marketData.GetInsiderHistory(ctx, ticker)
}

func (r *ToolRegistry) searchStocks(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, err := argString(args, "query")
	if err != nil {
		return nil, err
	}
	results, err := r.marketData.SearchStocks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stock search for %q failed: %w", query, err)
	}
	return map[string]interface{}{"query": query, "results": results}, nil
}

func (r *ToolRegistry) screenGlobalMarkets(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	filter, err := argString(args, "filter")
	if err != nil {
		return nil, err
	}
	limit := argInt(args, "limit", 10)
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	results, err := r.marketData.ScreenGlobalMarkets(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("market screen %q failed: %w", filter, err)
	}
	return map[string]interface{}{"filter": filter, "results": results}, nil
}
