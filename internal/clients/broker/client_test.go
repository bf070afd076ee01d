package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/tradewind/internal/interfaces"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-key", false, WithBaseURL(server.URL))
}

func TestGetPositions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/equity/portfolio", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `[
			{"ticker": "AAPL_US_EQ", "quantity": 2.5, "averagePrice": 180.0,
			 "initialFillDate": "2026-08-10T14:30:00Z"}
		]`)
	})

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.Equal(t, 2.5, positions[0].Quantity)
	assert.Equal(t, 180.0, positions[0].AvgBuyPrice)
	assert.False(t, positions[0].IsReal)
	assert.Equal(t, 2026, positions[0].OpenedAt.Year())
}

func TestGetFreeCash(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/equity/account/cash", r.URL.Path)
		fmt.Fprint(w, `{"free": 45.50, "total": 250.00}`)
	})

	cash, err := client.GetFreeCash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45.50, cash)
}

func TestResolveInstrument(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `[
			{"ticker": "AAPL_US_EQ", "shortName": "AAPL", "type": "STOCK"},
			{"ticker": "ASML_EQ", "shortName": "ASML", "type": "STOCK"}
		]`)
	})

	id, err := client.ResolveInstrument(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL_US_EQ", id)

	// Exchange suffix is stripped before lookup
	id, err = client.ResolveInstrument(context.Background(), "ASML.AS")
	require.NoError(t, err)
	assert.Equal(t, "ASML_EQ", id)

	// Second lookup served from cache
	assert.Equal(t, 1, calls)

	_, err = client.ResolveInstrument(context.Background(), "NOPE")
	assert.ErrorIs(t, err, interfaces.ErrInstrumentNotFound)
	assert.Equal(t, 1, calls)
}

func TestPlaceMarketOrderValue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/equity/orders/market", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "AAPL_US_EQ", body["ticker"])
		assert.Equal(t, 25.0, body["value"])

		fmt.Fprint(w, `{"filledQuantity": 0.133, "fillPrice": 187.5, "filledValue": 24.94, "status": "FILLED"}`)
	})

	fill, err := client.PlaceMarketOrderValue(context.Background(), "AAPL_US_EQ", 25.0)
	require.NoError(t, err)
	assert.Equal(t, 0.133, fill.Quantity)
	assert.Equal(t, 24.94, fill.AmountSpent)
}

func TestPlaceMarketOrderValue_RejectsNonPositiveAmount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.PlaceMarketOrderValue(context.Background(), "AAPL_US_EQ", 0)
	assert.Error(t, err)
}

func TestPlaceMarketOrderValue_BrokerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"code": "InsufficientFreeForStocksException"}`)
	})

	_, err := client.PlaceMarketOrderValue(context.Background(), "AAPL_US_EQ", 25.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestIsReal(t *testing.T) {
	assert.False(t, NewClient("k", false).IsReal())
	assert.True(t, NewClient("k", true).IsReal())
}
