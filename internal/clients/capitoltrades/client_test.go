package capitoltrades

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

func tradeJSON(txType, txDate, ticker, issuer, first, last string, value int64) string {
	return fmt.Sprintf(`{
		"txType": %q, "txDate": %q, "value": %d,
		"politician": {"firstName": %q, "lastName": %q},
		"issuer": {"issuerTicker": %q, "issuerName": %q}
	}`, txType, txDate, value, first, last, ticker, issuer)
}

func newTestClient(t *testing.T, body string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "buy", r.URL.Query().Get("txType"))
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL))
}

func TestFetchBuyCandidates(t *testing.T) {
	recent := time.Now().AddDate(0, 0, -2).Format("2006-01-02")
	client := newTestClient(t, `{"data": [`+
		tradeJSON("buy", recent, "NVDA:US", "NVIDIA Corp", "Nancy", "Pelosi", 500000)+","+
		tradeJSON("buy", recent, "NVDA:US", "NVIDIA Corp", "Dan", "Crenshaw", 15000)+","+
		tradeJSON("buy", recent, "MSFT:US", "Microsoft", "Tommy", "Tuberville", 50000)+
		`]}`)

	candidates, err := client.FetchBuyCandidates(context.Background(), 30, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	nvda := candidates[0]
	assert.Equal(t, "NVDA", nvda.Ticker)
	assert.Equal(t, models.SourcePoliticians, nvda.Source)
	assert.True(t, nvda.HasPoliticianBuy)
	assert.True(t, nvda.IsCluster)
	assert.Equal(t, []string{"Nancy Pelosi", "Dan Crenshaw"}, nvda.Insiders)
	assert.Equal(t, 515000.0, nvda.TotalValueUSD)

	msft := candidates[1]
	assert.Equal(t, "MSFT", msft.Ticker)
	assert.False(t, msft.IsCluster)
}

func TestFetchBuyCandidates_FiltersStaleAndNonEquity(t *testing.T) {
	stale := time.Now().AddDate(0, 0, -60).Format("2006-01-02")
	recent := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	client := newTestClient(t, `{"data": [`+
		tradeJSON("buy", stale, "AAPL:US", "Apple", "Old", "Trade", 100000)+","+
		tradeJSON("buy", recent, "912828", "US Treasury Note", "Bond", "Buyer", 100000)+","+
		tradeJSON("sell", recent, "TSLA:US", "Tesla", "Some", "Seller", 100000)+
		`]}`)

	candidates, err := client.FetchBuyCandidates(context.Background(), 30, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFetchBuyCandidates_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	client := NewClient(WithBaseURL(server.URL))

	_, err := client.FetchBuyCandidates(context.Background(), 30, 10)
	assert.Error(t, err)
}

func TestNormalizeIssuerTicker(t *testing.T) {
	assert.Equal(t, "NVDA", normalizeIssuerTicker("NVDA:US"))
	assert.Equal(t, "ASML.AS", normalizeIssuerTicker("asml.as"))
	assert.Equal(t, "", normalizeIssuerTicker("N/A"))
	assert.Equal(t, "", normalizeIssuerTicker("912828"))
	assert.Equal(t, "", normalizeIssuerTicker(""))
}
