package sellstrategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
	"github.com/ternarybob/tradewind/internal/models"
)

func newEvaluator() *Service {
	return NewService(common.SellConfig{
		StopLossPct:   10,
		TakeProfitPct: 20,
		MaxHoldDays:   30,
	}, arbor.NewLogger()).(*Service)
}

func position(ticker string, avgPrice, quantity float64, openedDaysAgo int, now time.Time) models.Position {
	return models.Position{
		Ticker:      ticker,
		Quantity:    quantity,
		AvgBuyPrice: avgPrice,
		OpenedAt:    now.AddDate(0, 0, -openedDaysAgo),
	}
}

func TestEvaluate_Rules(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		position models.Position
		price    float64
		wantType models.SellSignalType
		wantNone bool
	}{
		{
			name:     "Stop Loss Fires",
			position: position("AMD", 100, 1, 5, now),
			price:    88,
			wantType: models.SellStopLoss,
		},
		{
			name:     "Take Profit Fires",
			position: position("NVDA", 100, 1, 5, now),
			price:    125,
			wantType: models.SellTakeProfit,
		},
		{
			name:     "Hold Period Fires",
			position: position("MSFT", 100, 1, 45, now),
			price:    105,
			wantType: models.SellHoldPeriod,
		},
		{
			name:     "Nothing Fires",
			position: position("AAPL", 100, 1, 5, now),
			price:    105,
			wantNone: true,
		},
		{
			name:     "Boundary Loss Exactly At Threshold",
			position: position("INTC", 100, 1, 5, now),
			price:    90,
			wantType: models.SellStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newEvaluator()
			signals := svc.Evaluate([]models.Position{tt.position}, map[string]float64{
				common.BaseTicker(tt.position.Ticker): tt.price,
			}, now)

			if tt.wantNone {
				assert.Empty(t, signals)
				return
			}
			require.Len(t, signals, 1)
			assert.Equal(t, tt.wantType, signals[0].Type)
			assert.Equal(t, tt.price, signals[0].TriggerPrice)
		})
	}
}

func TestEvaluate_StopLossWinsOverExpiredHold(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	svc := newEvaluator()

	// Down 15% and held 45 days: stop loss takes priority.
	signals := svc.Evaluate(
		[]models.Position{position("AMD", 100, 1, 45, now)},
		map[string]float64{"AMD": 85},
		now,
	)

	require.Len(t, signals, 1)
	assert.Equal(t, models.SellStopLoss, signals[0].Type)
}

func TestEvaluate_TakeProfitWinsOverExpiredHold(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	svc := newEvaluator()

	signals := svc.Evaluate(
		[]models.Position{position("NVDA", 100, 1, 45, now)},
		map[string]float64{"NVDA": 130},
		now,
	)

	require.Len(t, signals, 1)
	assert.Equal(t, models.SellTakeProfit, signals[0].Type)
}

func TestEvaluate_SkipsUnpricedAndEmptyPositions(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	svc := newEvaluator()

	signals := svc.Evaluate([]models.Position{
		position("NOPRICE", 100, 1, 45, now),
		position("ZERO", 100, 0, 45, now),
		{Ticker: "BADPRICE", Quantity: 1, AvgBuyPrice: 100, OpenedAt: now.AddDate(0, 0, -45)},
	}, map[string]float64{
		"ZERO":     50,
		"BADPRICE": 0,
	}, now)

	assert.Empty(t, signals)
}

func TestEvaluate_ExchangeSuffixPositionsMatchBaseTickerPrices(t *testing.T) {
	now := time.Date(2026, 8, 21, 16, 0, 0, 0, time.UTC)
	svc := newEvaluator()

	signals := svc.Evaluate(
		[]models.Position{position("ASML.AS", 100, 1, 5, now)},
		map[string]float64{"ASML": 75},
		now,
	)

	require.Len(t, signals, 1)
	assert.Equal(t, models.SellStopLoss, signals[0].Type)
	assert.Equal(t, "ASML.AS", signals[0].Ticker)
}
