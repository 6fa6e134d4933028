package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bioguard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_AddAndRun(t *testing.T) {
	s := NewScheduler(nil)
	calls := 0
	require.NoError(t, s.Add("count", "@every 1h", func(context.Context) error { calls++; return nil }))
	require.NoError(t, s.Add("broken", "0 0 3 * * *", func(context.Context) error { return errors.New("boom") }))

	assert.Error(t, s.Add("count", "@every 1h", nil), "duplicate names are rejected")
	assert.Error(t, s.Add("bad-spec", "not a spec", nil))
	assert.Equal(t, []string{"broken", "count"}, s.Jobs())

	require.NoError(t, s.Run(context.Background(), "count"))
	assert.Equal(t, 1, calls)
	assert.ErrorContains(t, s.Run(context.Background(), "broken"), "boom")
	assert.Error(t, s.Run(context.Background(), "missing"))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestHousekeepingJobs(t *testing.T) {
	ctx := context.Background()

	cache := NewMemoryNutritionCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }
	require.NoError(t, cache.Set(ctx, "k", models.NutrientSnapshot{Source: models.SourceEdamam, Raw: &models.NutrientRaw{}}))
	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	require.NoError(t, CacheSweepJob(cache, nil)(ctx))
	assert.Equal(t, 0, cache.Len())

	h := NewHistoryService(setupTestDB(t))
	require.NoError(t, h.Save(ctx, "u1", scanAt("old", time.Now().AddDate(0, 0, -40), 50, models.VerdictWarning)))
	require.NoError(t, h.Save(ctx, "u1", scanAt("new", time.Now(), 50, models.VerdictWarning)))
	require.NoError(t, RetentionJob(h, 30*24*time.Hour, nil)(ctx))
	list, err := h.ListRecent(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)

	tr := NewScanTracker(time.Hour)
	_, finish := tr.Begin(ctx, "u1")
	finish(false)
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, TrackerPruneJob(tr, time.Millisecond)(ctx))
	assert.Equal(t, 0, tr.Prune(0))
}
