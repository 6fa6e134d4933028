package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanTracker_Lifecycle(t *testing.T) {
	tr := NewScanTracker(30 * time.Millisecond)
	assert.Equal(t, StateSearching, tr.State("u1"))

	assert.Equal(t, StateDetected, tr.Detect("u1"))

	ctx, finish := tr.Begin(context.Background(), "u1")
	assert.Equal(t, StateAnalyzing, tr.State("u1"))
	assert.Equal(t, StateAnalyzing, tr.Detect("u1"), "detect must not interrupt analysis")

	finish(true)
	assert.Equal(t, StateComplete, tr.State("u1"))
	assert.Error(t, ctx.Err(), "finished scan releases its context")

	assert.Eventually(t, func() bool { return tr.State("u1") == StateSearching },
		time.Second, 5*time.Millisecond)
}

func TestScanTracker_FailedScanReturnsToSearching(t *testing.T) {
	tr := NewScanTracker(time.Hour)
	_, finish := tr.Begin(context.Background(), "u1")
	finish(false)
	assert.Equal(t, StateSearching, tr.State("u1"))

	finish(true) // second call is a no-op
	assert.Equal(t, StateSearching, tr.State("u1"))
}

func TestScanTracker_NewScanSupersedesOld(t *testing.T) {
	tr := NewScanTracker(time.Hour)
	first, finishFirst := tr.Begin(context.Background(), "u1")
	second, finishSecond := tr.Begin(context.Background(), "u1")

	assert.ErrorIs(t, first.Err(), context.Canceled)
	assert.NoError(t, second.Err())

	finishFirst(true)
	assert.Equal(t, StateAnalyzing, tr.State("u1"), "stale finish must not touch the newer scan")

	finishSecond(true)
	assert.Equal(t, StateComplete, tr.State("u1"))
}

func TestScanTracker_Cancel(t *testing.T) {
	tr := NewScanTracker(time.Hour)
	assert.False(t, tr.Cancel("nobody"))

	ctx, finish := tr.Begin(context.Background(), "u1")
	assert.True(t, tr.Cancel("u1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, StateSearching, tr.State("u1"))

	finish(true)
	assert.Equal(t, StateSearching, tr.State("u1"))
	assert.False(t, tr.Cancel("u1"))
}

func TestScanTracker_UsersAreIndependent(t *testing.T) {
	tr := NewScanTracker(time.Hour)
	a, _ := tr.Begin(context.Background(), "a")
	_, finishB := tr.Begin(context.Background(), "b")
	finishB(false)
	assert.NoError(t, a.Err())
	assert.Equal(t, StateAnalyzing, tr.State("a"))
}

func TestScanTracker_OnChange(t *testing.T) {
	tr := NewScanTracker(time.Hour)
	var mu sync.Mutex
	var seen []ScanState
	tr.OnChange(func(userID string, s ScanState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	tr.Detect("u1")
	_, finish := tr.Begin(context.Background(), "u1")
	finish(true)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ScanState{StateDetected, StateAnalyzing, StateComplete}, seen)
}

func TestScanTracker_Prune(t *testing.T) {
	tr := NewScanTracker(time.Hour)
	tr.Detect("idle")
	_, finish := tr.Begin(context.Background(), "busy")
	defer finish(false)
	_, done := tr.Begin(context.Background(), "done")
	done(false)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, tr.Prune(time.Millisecond), "only SEARCHING users are forgotten")
	assert.Equal(t, StateAnalyzing, tr.State("busy"))
	assert.Equal(t, StateDetected, tr.State("idle"))
}
