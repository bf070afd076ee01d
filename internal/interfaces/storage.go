package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/tradewind/internal/models"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInstrumentNotFound is returned by the broker when a ticker cannot be
// resolved to a tradable instrument.
var ErrInstrumentNotFound = errors.New("instrument not tradable")

// BlacklistStore is the durable TTL'd set of recently traded tickers.
type BlacklistStore interface {
	AddMany(ctx context.Context, tickers []string) error
	// ActiveSet returns tickers whose entry is younger than ttlDays.
	ActiveSet(ctx context.Context, ttlDays int) (map[string]struct{}, error)
	Cleanup(ctx context.Context, ttlDays int) error
}

// SentimentStore persists per-date sentiment rows for backtest replay.
type SentimentStore interface {
	SaveRecords(ctx context.Context, records []models.SentimentRecord) error
	GetByDate(ctx context.Context, date string) ([]models.SentimentRecord, error)
	// DatesBetween returns the distinct dates with stored rows inside the
	// inclusive range, ascending.
	DatesBetween(ctx context.Context, start, end string) ([]string, error)
}

// BacktestStore persists backtest runs and their daily results.
type BacktestStore interface {
	SaveRun(ctx context.Context, run *models.BacktestRun) error
	UpdateRun(ctx context.Context, run *models.BacktestRun) error
	GetRun(ctx context.Context, id string) (*models.BacktestRun, error)
	SaveDayResult(ctx context.Context, result *models.BacktestDayResult) error
	GetDayResults(ctx context.Context, runID string) ([]models.BacktestDayResult, error)
}

// SnapshotStore persists end-of-day portfolio snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *models.PortfolioSnapshot) error
	GetLatest(ctx context.Context, account string) (*models.PortfolioSnapshot, error)
	GetByDate(ctx context.Context, date string) ([]models.PortfolioSnapshot, error)
}
