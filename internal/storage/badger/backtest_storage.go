package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/interfaces"
	"github.com/ternarybob/tradewind/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// BacktestStorage persists backtest run headers and their day rows.
type BacktestStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBacktestStorage creates a new BacktestStorage instance
func NewBacktestStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BacktestStore {
	return &BacktestStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun inserts a new run header.
func (s *BacktestStorage) SaveRun(ctx context.Context, run *models.BacktestRun) error {
	if err := s.db.Store().Insert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save backtest run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRun rewrites an existing run header.
func (s *BacktestStorage) UpdateRun(ctx context.Context, run *models.BacktestRun) error {
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to update backtest run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns a run header by id.
func (s *BacktestStorage) GetRun(ctx context.Context, id string) (*models.BacktestRun, error) {
	var run models.BacktestRun
	err := s.db.Store().Get(id, &run)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run %s: %w", id, err)
	}
	return &run, nil
}

// SaveDayResult upserts one day row for a run.
func (s *BacktestStorage) SaveDayResult(ctx context.Context, result *models.BacktestDayResult) error {
	if result.ID == "" {
		result.ID = fmt.Sprintf("%s:%s:%s", result.RunID, result.Strategy, result.Date)
	}
	if err := s.db.Store().Upsert(result.ID, result); err != nil {
		return fmt.Errorf("failed to save backtest day result %s: %w", result.ID, err)
	}
	return nil
}

// GetDayResults returns all day rows for a run ordered by date then strategy.
func (s *BacktestStorage) GetDayResults(ctx context.Context, runID string) ([]models.BacktestDayResult, error) {
	var results []models.BacktestDayResult
	err := s.db.Store().Find(&results, badgerhold.Where("RunID").Eq(runID).Index("RunID"))
	if err != nil {
		return nil, fmt.Errorf("failed to query day results for run %s: %w", runID, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Date != results[j].Date {
			return results[i].Date < results[j].Date
		}
		return results[i].Strategy < results[j].Strategy
	})
	return results, nil
}
