package blacklist

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blacklist.json")
	return NewStore(path, arbor.NewLogger()), path
}

func TestAddManyAndActiveSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMany(ctx, []string{"AAPL", "nvda", " MSFT "}))

	active, err := store.ActiveSet(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	assert.Contains(t, active, "AAPL")
	assert.Contains(t, active, "NVDA")
	assert.Contains(t, active, "MSFT")
}

func TestActiveSet_ExpiresOldEntries(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -10).Format("2006-01-02")
	recent := time.Now().Format("2006-01-02")
	data, _ := json.Marshal(map[string]string{"OLD": old, "NEW": recent})
	require.NoError(t, os.WriteFile(path, data, 0644))

	active, err := store.ActiveSet(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Contains(t, active, "NEW")
}

func TestMissingFileReadsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	active, err := store.ActiveSet(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCorruptFileReadsEmpty(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	active, err := store.ActiveSet(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Writes still work over the corrupt file
	require.NoError(t, store.AddMany(context.Background(), []string{"AAPL"}))
	active, err = store.ActiveSet(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCleanup(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	recent := time.Now().Format("2006-01-02")
	data, _ := json.Marshal(map[string]string{"OLD": old, "NEW": recent, "BAD": "not-a-date"})
	require.NoError(t, os.WriteFile(path, data, 0644))

	require.NoError(t, store.Cleanup(ctx, 5))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries map[string]string
	require.NoError(t, json.Unmarshal(raw, &entries))
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, "NEW")
}

func TestAddMany_UpsertsDate(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -10).Format("2006-01-02")
	data, _ := json.Marshal(map[string]string{"AAPL": old})
	require.NoError(t, os.WriteFile(path, data, 0644))

	require.NoError(t, store.AddMany(ctx, []string{"AAPL"}))

	active, err := store.ActiveSet(ctx, 5)
	require.NoError(t, err)
	assert.Contains(t, active, "AAPL")
}
