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

// SnapshotStorage persists end-of-day portfolio snapshots.
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SnapshotStore {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSnapshot upserts one snapshot, keyed by "<date>:<account>" so the EOD
// job is idempotent within a day.
func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, snapshot *models.PortfolioSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = snapshot.Date + ":" + snapshot.Account
	}
	if err := s.db.Store().Upsert(snapshot.ID, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snapshot.ID, err)
	}

	s.logger.Debug().
		Str("date", snapshot.Date).
		Str("account", snapshot.Account).
		Float64("total_value", snapshot.TotalValue).
		Msg("Portfolio snapshot saved")
	return nil
}

// GetLatest returns the most recent snapshot for an account.
func (s *SnapshotStorage) GetLatest(ctx context.Context, account string) (*models.PortfolioSnapshot, error) {
	var snapshots []models.PortfolioSnapshot
	err := s.db.Store().Find(&snapshots, badgerhold.Where("Account").Eq(account))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", account, err)
	}
	if len(snapshots) == 0 {
		return nil, interfaces.ErrNotFound
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Date > snapshots[j].Date
	})
	return &snapshots[0], nil
}

// GetByDate returns all account snapshots stored for a date.
func (s *SnapshotStorage) GetByDate(ctx context.Context, date string) ([]models.PortfolioSnapshot, error) {
	var snapshots []models.PortfolioSnapshot
	err := s.db.Store().Find(&snapshots, badgerhold.Where("Date").Eq(date).Index("Date"))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", date, err)
	}
	return snapshots, nil
}
