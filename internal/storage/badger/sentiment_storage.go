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

// SentimentStorage persists per-date sentiment rows for backtest replay.
type SentimentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSentimentStorage creates a new SentimentStorage instance
func NewSentimentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SentimentStore {
	return &SentimentStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRecords upserts a batch of sentiment rows. Records are keyed by
// "<date>:<ticker>" so a rerun for the same date overwrites in place.
func (s *SentimentStorage) SaveRecords(ctx context.Context, records []models.SentimentRecord) error {
	for _, record := range records {
		if record.ID == "" {
			record.ID = record.Date + ":" + record.Ticker
		}
		if err := s.db.Store().Upsert(record.ID, &record); err != nil {
			return fmt.Errorf("failed to save sentiment record %s: %w", record.ID, err)
		}
	}

	s.logger.Debug().
		Int("records", len(records)).
		Msg("Sentiment records saved")
	return nil
}

// GetByDate returns all sentiment rows stored for a date, conviction
// descending.
func (s *SentimentStorage) GetByDate(ctx context.Context, date string) ([]models.SentimentRecord, error) {
	var records []models.SentimentRecord
	err := s.db.Store().Find(&records, badgerhold.Where("Date").Eq(date).Index("Date"))
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment for %s: %w", date, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ConvictionScore != records[j].ConvictionScore {
			return records[i].ConvictionScore > records[j].ConvictionScore
		}
		return records[i].Ticker < records[j].Ticker
	})
	return records, nil
}

// DatesBetween returns the distinct dates with stored rows inside the
// inclusive range, ascending. Dates are ISO formatted so string comparison
// orders correctly.
func (s *SentimentStorage) DatesBetween(ctx context.Context, start, end string) ([]string, error) {
	var records []models.SentimentRecord
	err := s.db.Store().Find(&records, badgerhold.Where("Date").Ge(start).And("Date").Le(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment dates: %w", err)
	}

	seen := make(map[string]bool)
	dates := make([]string, 0)
	for _, record := range records {
		if !seen[record.Date] {
			seen[record.Date] = true
			dates = append(dates, record.Date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}
