package user

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func TestSetOnceIsWriteOnce(t *testing.T) {
	g := NewAdminGate(filepath.Join(t.TempDir(), "admin.json"))
	defer g.Close()
	ctx := context.Background()

	_, ok, err := g.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	written, err := g.SetOnce(ctx, 42)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = g.SetOnce(ctx, 99)
	require.NoError(t, err)
	assert.False(t, written)

	id, ok, err := g.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	assert.True(t, g.Authorize(ctx, 42))
	assert.False(t, g.Authorize(ctx, 99))
}

func TestSetOnceConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	g := NewAdminGate(path)
	defer g.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := []int64{}
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			written, err := g.SetOnce(context.Background(), id)
			assert.NoError(t, err)
			if written {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	id, ok, err := g.Admin(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, winners[0], id)
}

func TestSetOnceNeverOverwritesUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))
	g := NewAdminGate(path)
	defer g.Close()

	written, err := g.SetOnce(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, written)
	assert.False(t, g.Authorize(context.Background(), 1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(data))
}

func TestAdminFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	g := NewAdminGate(path)
	defer g.Close()

	_, err := g.SetOnce(context.Background(), 7)
	require.NoError(t, err)

	var raw map[string]interface{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(7), raw["admin_id"])
}

func TestRecordUpdatesInPlace(t *testing.T) {
	loc := saoPaulo(t)
	r := NewRegistry(filepath.Join(t.TempDir(), "users.json"), loc)
	defer r.Close()
	ctx := context.Background()

	first := time.Date(2026, 10, 18, 9, 0, 0, 0, loc)
	second := time.Date(2026, 10, 19, 14, 30, 5, 0, loc)

	r.now = func() time.Time { return first }
	require.NoError(t, r.Record(ctx, Sender{ID: 1, Username: "ana", FirstName: "Ana"}))
	require.NoError(t, r.Record(ctx, Sender{ID: 2, FirstName: "Bo"}))

	r.now = func() time.Time { return second }
	require.NoError(t, r.Record(ctx, Sender{ID: 1, Username: "ana", FirstName: "Ana"}))

	rep, err := r.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)
	require.Len(t, rep.Records, 2)
	assert.Equal(t, int64(1), rep.Records[0].UserID, "insertion order kept")
	assert.Equal(t, "2026-10-19 14:30:05", rep.Records[0].Timestamp)
	assert.Equal(t, "2026-10-18 09:00:00", rep.Records[1].Timestamp)
	assert.Equal(t, "N/A", rep.Records[1].DisplayUsername())
}

func TestReportActiveToday(t *testing.T) {
	loc := saoPaulo(t)
	r := NewRegistry(filepath.Join(t.TempDir(), "users.json"), loc)
	defer r.Close()
	ctx := context.Background()

	today := time.Date(2026, 10, 19, 0, 30, 0, 0, loc)
	yesterday := time.Date(2026, 10, 18, 23, 59, 59, 0, loc)

	r.now = func() time.Time { return yesterday }
	require.NoError(t, r.Record(ctx, Sender{ID: 1}))
	r.now = func() time.Time { return today }
	require.NoError(t, r.Record(ctx, Sender{ID: 2}))

	rep, err := r.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Total)
	assert.Equal(t, 1, rep.ActiveToday)
}

func TestReportUsesConfiguredTimezone(t *testing.T) {
	loc := saoPaulo(t) // UTC-3
	r := NewRegistry(filepath.Join(t.TempDir(), "users.json"), loc)
	defer r.Close()
	ctx := context.Background()

	// 01:00 UTC on the 20th is still the 19th in Sao Paulo
	now := time.Date(2026, 10, 20, 1, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	require.NoError(t, r.Record(ctx, Sender{ID: 1}))

	rep, err := r.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19 22:00:00", rep.Records[0].Timestamp)
	assert.Equal(t, 1, rep.ActiveToday)
}

func TestReportNoLedger(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "users.json"), time.UTC)
	defer r.Close()

	_, err := r.Report(context.Background())
	assert.ErrorIs(t, err, ErrNoLedger)
}

func TestRecordConcurrentNoLostUpdates(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "users.json"), time.UTC)
	defer r.Close()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, r.Record(context.Background(), Sender{ID: id}))
			// same user again: must update, never duplicate
			assert.NoError(t, r.Record(context.Background(), Sender{ID: id}))
		}(int64(i))
	}
	wg.Wait()

	rep, err := r.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, rep.Total)

	seen := map[int64]bool{}
	for _, rec := range rep.Records {
		assert.False(t, seen[rec.UserID], "duplicate user %d", rec.UserID)
		seen[rec.UserID] = true
	}
}

func TestRecordPersistenceFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	// the ledger path is a directory, so reads fail
	path := filepath.Join(dir, "users.json")
	require.NoError(t, os.Mkdir(path, 0700))

	r := NewRegistry(path, time.UTC)
	defer r.Close()
	assert.Error(t, r.Record(context.Background(), Sender{ID: 1}))
}
