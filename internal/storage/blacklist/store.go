// Package blacklist provides the file-backed store of recently traded
// tickers. Entries age out after a configured TTL.
package blacklist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tradewind/internal/common"
)

// Store persists ticker -> added_on as a single JSON document. A corrupt or
// missing file reads as an empty set, never an error. Writes go through a
// temp file rename so a crash cannot leave a half-written document.
type Store struct {
	path   string
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewStore creates a blacklist store backed by the given file path.
func NewStore(path string, logger arbor.ILogger) *Store {
	return &Store{
		path:   path,
		logger: logger,
	}
}

// load reads the document. Caller holds mu.
func (s *Store) load() map[string]string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return make(map[string]string)
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn().
			Err(err).
			Str("path", s.path).
			Msg("Blacklist file corrupt, treating as empty")
		return make(map[string]string)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries
}

// save writes the document atomically. Caller holds mu.
func (s *Store) save(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode blacklist: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create blacklist directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write blacklist: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace blacklist: %w", err)
	}
	return nil
}

// AddMany upserts today's date for each ticker.
func (s *Store) AddMany(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	today := time.Now().Format("2006-01-02")
	for _, ticker := range tickers {
		t := common.NormalizeTicker(ticker)
		if t != "" {
			entries[t] = today
		}
	}

	if err := s.save(entries); err != nil {
		return err
	}

	s.logger.Debug().
		Int("added", len(tickers)).
		Int("total", len(entries)).
		Msg("Blacklist updated")
	return nil
}

// ActiveSet returns tickers whose entry is younger than ttlDays.
func (s *Store) ActiveSet(ctx context.Context, ttlDays int) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	active := make(map[string]struct{}, len(entries))
	cutoff := time.Now().AddDate(0, 0, -ttlDays)

	for ticker, addedOn := range entries {
		t, err := time.Parse("2006-01-02", addedOn)
		if err != nil {
			// Unparseable dates stay active; cleanup drops them.
			active[ticker] = struct{}{}
			continue
		}
		if t.After(cutoff) {
			active[ticker] = struct{}{}
		}
	}
	return active, nil
}

// Cleanup drops entries older than ttlDays and rewrites the document.
func (s *Store) Cleanup(ctx context.Context, ttlDays int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load()
	cutoff := time.Now().AddDate(0, 0, -ttlDays)
	kept := make(map[string]string, len(entries))
	for ticker, addedOn := range entries {
		t, err := time.Parse("2006-01-02", addedOn)
		if err != nil {
			continue
		}
		if t.After(cutoff) {
			kept[ticker] = addedOn
		}
	}

	if len(kept) == len(entries) {
		return nil
	}
	if err := s.save(kept); err != nil {
		return err
	}

	s.logger.Debug().
		Int("dropped", len(entries)-len(kept)).
		Int("kept", len(kept)).
		Msg("Blacklist cleanup complete")
	return nil
}
