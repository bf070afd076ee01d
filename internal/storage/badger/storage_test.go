package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestSentimentStorage_RoundTrip(t *testing.T) {
	storage := NewSentimentStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	records := []models.SentimentRecord{
		{Date: "2026-08-20", Ticker: "AMD", Source: "insider", Mentions: 3, Score: 0.6, ConvictionScore: 120},
		{Date: "2026-08-20", Ticker: "NVDA", Source: "insider", Mentions: 8, Score: 0.8, ConvictionScore: 300},
		{Date: "2026-08-21", Ticker: "AMD", Source: "insider", Mentions: 1, Score: 0.1, ConvictionScore: 80},
	}
	require.NoError(t, storage.SaveRecords(ctx, records))

	got, err := storage.GetByDate(ctx, "2026-08-20")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Conviction descending
	assert.Equal(t, "NVDA", got[0].Ticker)
	assert.Equal(t, "AMD", got[1].Ticker)

	dates, err := storage.DatesBetween(ctx, "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-20", "2026-08-21"}, dates)
}

func TestSentimentStorage_SaveIsIdempotent(t *testing.T) {
	storage := NewSentimentStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	record := models.SentimentRecord{Date: "2026-08-20", Ticker: "AMD", Mentions: 1}
	require.NoError(t, storage.SaveRecords(ctx, []models.SentimentRecord{record}))
	record.Mentions = 5
	require.NoError(t, storage.SaveRecords(ctx, []models.SentimentRecord{record}))

	got, err := storage.GetByDate(ctx, "2026-08-20")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Mentions)
}

func TestBacktestStorage_RoundTrip(t *testing.T) {
	storage := NewBacktestStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	run := &models.BacktestRun{
		ID:        "run-1",
		Name:      "august replay",
		StartDate: "2026-08-01",
		EndDate:   "2026-08-21",
		BudgetEUR: 50,
		Status:    "running",
		CreatedAt: time.Now(),
	}
	require.NoError(t, storage.SaveRun(ctx, run))

	run.Status = "completed"
	require.NoError(t, storage.UpdateRun(ctx, run))

	got, err := storage.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)

	_, err = storage.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	for _, day := range []string{"2026-08-21", "2026-08-20"} {
		require.NoError(t, storage.SaveDayResult(ctx, &models.BacktestDayResult{
			RunID:    "run-1",
			Date:     day,
			Strategy: models.StrategyConservative,
			Invested: 50,
		}))
	}

	results, err := storage.GetDayResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Date ascending
	assert.Equal(t, "2026-08-20", results[0].Date)
	assert.Equal(t, "2026-08-21", results[1].Date)
}

func TestSnapshotStorage_RoundTrip(t *testing.T) {
	storage := NewSnapshotStorage(newTestDB(t), arbor.NewLogger())
	ctx := context.Background()

	for _, date := range []string{"2026-08-20", "2026-08-21"} {
		require.NoError(t, storage.SaveSnapshot(ctx, &models.PortfolioSnapshot{
			Date:       date,
			Account:    "demo",
			Cash:       40,
			TotalValue: 100,
			CreatedAt:  time.Now(),
		}))
	}

	latest, err := storage.GetLatest(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-21", latest.Date)

	_, err = storage.GetLatest(ctx, "live")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	byDate, err := storage.GetByDate(ctx, "2026-08-20")
	require.NoError(t, err)
	assert.Len(t, byDate, 1)
}
