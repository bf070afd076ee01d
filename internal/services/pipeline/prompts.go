package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
)

const sentimentSystem = `You are a market sentiment analyst. You receive a list of stock candidates
flagged by insider and politician buying, each with recent news headlines and
context. For every candidate, estimate current market sentiment.

Respond with a single JSON object:
{"tickers": [{"ticker": "...", "mentions": <int>, "score": <-1.0 to 1.0>, "summary": "..."}], "summary": "..."}

Score -1 is maximally bearish, 0 neutral, 1 maximally bullish. Include every
candidate ticker exactly once.`

const researchSystem = `You are an equity research analyst. You receive candidate stocks with insider
and politician buying signals plus a sentiment report. Research each candidate
using the available tools before scoring it. Verify prices, fundamentals and
upcoming earnings rather than guessing.

When you are done, respond with a single JSON object:
{"entries": [{"ticker": "...", "score": <0 to 10>, "pros": [...], "cons": [...], "catalyst": "..."}], "summary": "..."}

Score 0 means avoid, 10 means highest conviction buy.`

const marketSystem = `You are a market analyst. You receive candidate stocks with buying signals,
sentiment, and precomputed market context. Assess the overall market regime
and note anything relevant per ticker. You have no tools; work only from the
provided data.

Respond with a single JSON object:
{"regime": "risk-on|risk-off|mixed", "summary": "...", "ticker_notes": {"TICKER": "..."}}`

const traderSystemFmt = `You are a %s portfolio trader deciding today's buys under a hard budget of
%.2f EUR. You receive candidates with research scores, sentiment and the
current portfolio. Pick at most a handful of buys and size them as percentages
of the budget.

Rules:
- allocation_pct values of buy picks must sum to 100 or less.
- Do not pick tickers already held unless adding is clearly justified.
- Skip everything rather than force a marginal trade.

Respond with a single JSON object:
{"picks": [{"ticker": "...", "action": "buy|hold", "allocation_pct": <0-100>, "reasoning": "...", "confidence": <0-1>}], "summary": "..."}`

const riskReviewSystem = `You are a risk manager reviewing a trader's daily picks before execution.
Veto picks with unacceptable risk (earnings within days, extreme valuation,
thin conviction) and adjust allocations where warranted. Keep the pick list
shape intact.

Respond with a single JSON object:
{"picks": [{"ticker": "...", "action": "buy|hold", "allocation_pct": <0-100>, "reasoning": "...", "confidence": <0-1>}], "risk_notes": [...], "adjustments": {"TICKER": "..."}, "vetoed_tickers": [...], "summary": "..."}

Picks you veto must appear in vetoed_tickers and be absent from picks.`

// candidateView is the trimmed candidate representation sent to the model.
type candidateView struct {
	Ticker          string   `json:"ticker"`
	Company         string   `json:"company,omitempty"`
	Source          string   `json:"source"`
	ConvictionScore float64  `json:"conviction_score"`
	IsCluster       bool     `json:"is_cluster,omitempty"`
	IsCSuitePresent bool     `json:"is_csuite_present,omitempty"`
	TotalValueUSD   float64  `json:"total_value_usd"`
	Insiders        []string `json:"insiders,omitempty"`

	Returns        *models.PriceReturns   `json:"returns,omitempty"`
	Fundamentals   *models.Fundamentals   `json:"fundamentals,omitempty"`
	Technicals     *models.Technicals     `json:"technicals,omitempty"`
	Earnings       *models.EarningsInfo   `json:"earnings,omitempty"`
	InsiderHistory *models.InsiderHistory `json:"insider_history,omitempty"`
	NewsTitles     []string               `json:"news_titles,omitempty"`
}

func candidateViews(digest *models.SignalDigest) []candidateView {
	views := make([]candidateView, 0, len(digest.Candidates))
	for _, c := range digest.Candidates {
		v := candidateView{
			Ticker:          c.Ticker,
			Company:         c.Company,
			Source:          string(c.Source),
			ConvictionScore: c.ConvictionScore,
			IsCluster:       c.IsCluster,
			IsCSuitePresent: c.IsCSuitePresent,
			TotalValueUSD:   c.TotalValueUSD,
			Insiders:        c.Insiders,
			Returns:         c.Returns,
			Fundamentals:    c.Fundamentals,
			Technicals:      c.Technicals,
			Earnings:        c.Earnings,
			InsiderHistory:  c.InsiderHistory,
		}
		for _, n := range c.News {
			v.NewsTitles = append(v.NewsTitles, n.Title)
		}
		views = append(views, v)
	}
	return views
}

func marshalSection(label string, v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s: unavailable\n", label)
	}
	return fmt.Sprintf("%s:\n%s\n", label, data)
}

func sentimentPrompt(input *interfaces.PipelineInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run date: %s\n\n", input.RunDate.Format("2006-01-02"))
	b.WriteString(marshalSection("Candidates", candidateViews(input.Digest)))
	return b.String()
}

func researchPrompt(input *interfaces.PipelineInput, sentiment *models.SentimentReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run date: %s\n\n", input.RunDate.Format("2006-01-02"))
	b.WriteString(marshalSection("Candidates", candidateViews(input.Digest)))
	b.WriteString("\n")
	b.WriteString(marshalSection("Sentiment report", sentiment))
	return b.String()
}

func traderPrompt(input *interfaces.PipelineInput, result *models.PipelineResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run date: %s\nBudget: %.2f EUR\n\n", input.RunDate.Format("2006-01-02"), input.BudgetEUR)
	b.WriteString(marshalSection("Candidates", candidateViews(input.Digest)))
	b.WriteString("\n")
	b.WriteString(marshalSection("Sentiment report", result.Sentiment))
	if result.Research != nil {
		b.WriteString("\n")
		b.WriteString(marshalSection("Research report", result.Research))
	}
	if result.Market != nil {
		b.WriteString("\n")
		b.WriteString(marshalSection("Market analysis", result.Market))
	}
	b.WriteString("\n")
	b.WriteString(marshalSection("Current portfolio", input.Portfolio))
	return b.String()
}

func riskReviewPrompt(input *interfaces.PipelineInput, picks *models.DailyPicks) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run date: %s\nBudget: %.2f EUR\n\n", input.RunDate.Format("2006-01-02"), input.BudgetEUR)
	b.WriteString(marshalSection("Trader picks", picks))
	b.WriteString("\n")
	b.WriteString(marshalSection("Candidates", candidateViews(input.Digest)))
	b.WriteString("\n")
	b.WriteString(marshalSection("Current portfolio", input.Portfolio))
	return b.String()
}
