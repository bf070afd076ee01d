package openinsider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tradewind/internal/models"
)

func screenerRow(tradeDate, ticker, company, insider, title, tradeType, price, qty, deltaOwn, value string) string {
	return fmt.Sprintf(`<tr>
		<td>X</td><td>%s 16:05:00</td><td>%s</td><td><a>%s</a></td><td><a>%s</a></td>
		<td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td>
		<td>10000</td><td>%s</td><td>%s</td>
	</tr>`, tradeDate, tradeDate, ticker, company, insider, title, tradeType, price, qty, deltaOwn, value)
}

func screenerPage(rows ...string) string {
	page := `<html><body><table class="tinytable"><thead><tr><th>X</th></tr></thead><tbody>`
	for _, r := range rows {
		page += r
	}
	return page + `</tbody></table></body></html>`
}

func newTestClient(t *testing.T, html string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/screener", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("xp"))
		fmt.Fprint(w, html)
	}))
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL))
}

func TestFetchBuyCandidates_AggregatesByTicker(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	client := newTestClient(t, screenerPage(
		screenerRow(today, "AMD", "Advanced Micro Devices", "Su Lisa", "CEO", "P - Purchase", "$120.00", "1,000", "+2%", "$120,000"),
		screenerRow(today, "AMD", "Advanced Micro Devices", "Hu Jean", "CFO", "P - Purchase", "$121.00", "500", "+1%", "$60,500"),
		screenerRow(today, "INTC", "Intel Corp", "Gelsinger Pat", "Dir", "P - Purchase", "$30.00", "2,000", "New", "$60,000"),
	))

	candidates, err := client.FetchBuyCandidates(context.Background(), 7, 15)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	amd := candidates[0]
	assert.Equal(t, "AMD", amd.Ticker)
	assert.Equal(t, models.SourceInsider, amd.Source)
	assert.Equal(t, []string{"Su Lisa", "Hu Jean"}, amd.Insiders)
	assert.True(t, amd.IsCluster)
	assert.True(t, amd.IsCSuitePresent)
	assert.Equal(t, 180500.0, amd.TotalValueUSD)
	assert.Equal(t, 2.0, amd.MaxDeltaOwnPct)
	// Two same-day C-suite buys: (120 + 60.5) * 1.5
	assert.InDelta(t, 270.75, amd.ConvictionScore, 0.5)

	intc := candidates[1]
	assert.False(t, intc.IsCluster)
	assert.False(t, intc.IsCSuitePresent)
	assert.Equal(t, 100.0, intc.MaxDeltaOwnPct)
}

func TestFetchBuyCandidates_SkipsSalesAndSmallBuys(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	client := newTestClient(t, screenerPage(
		screenerRow(today, "NVDA", "NVIDIA", "Huang Jensen", "CEO", "S - Sale", "$900.00", "1,000", "-1%", "$900,000"),
		screenerRow(today, "MU", "Micron", "Smith John", "Dir", "P - Purchase", "$80.00", "100", "+1%", "$8,000"),
	))

	candidates, err := client.FetchBuyCandidates(context.Background(), 7, 15)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFetchBuyCandidates_TopNCap(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	client := newTestClient(t, screenerPage(
		screenerRow(today, "AAA", "Co A", "One A", "Dir", "P - Purchase", "$10", "1", "+1%", "$100,000"),
		screenerRow(today, "BBB", "Co B", "Two B", "Dir", "P - Purchase", "$10", "1", "+1%", "$200,000"),
		screenerRow(today, "CCC", "Co C", "Three C", "Dir", "P - Purchase", "$10", "1", "+1%", "$300,000"),
	))

	candidates, err := client.FetchBuyCandidates(context.Background(), 7, 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "CCC", candidates[0].Ticker)
	assert.Equal(t, "BBB", candidates[1].Ticker)
}

func TestRoleWeight(t *testing.T) {
	assert.Equal(t, 1.5, roleWeight("CEO"))
	assert.Equal(t, 1.5, roleWeight("EVP, Chief Financial Officer"))
	assert.Equal(t, 1.2, roleWeight("10% Owner"))
	assert.Equal(t, 1.0, roleWeight("Dir"))
}

func TestRecencyDecay(t *testing.T) {
	now := time.Now()
	assert.InDelta(t, 1.0, recencyDecay(now, now), 0.01)
	assert.InDelta(t, 0.5, recencyDecay(now.AddDate(0, 0, -7), now), 0.01)
	assert.Equal(t, 1.0, recencyDecay(time.Time{}, now))
}

func TestParseMoney(t *testing.T) {
	assert.Equal(t, 1234567.89, parseMoney("+$1,234,567.89"))
	assert.Equal(t, 0.0, parseMoney("n/a"))
}
