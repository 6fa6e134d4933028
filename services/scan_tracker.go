package services

import (
	"context"
	"sync"
	"time"
)

type ScanState string

const (
	StateSearching ScanState = "SEARCHING"
	StateDetected  ScanState = "DETECTED"
	StateAnalyzing ScanState = "ANALYZING"
	StateComplete  ScanState = "COMPLETE"
)

// ScanTracker keeps one scan state machine per user:
// SEARCHING -> DETECTED -> ANALYZING -> COMPLETE -> (cooldown) -> SEARCHING.
// At most one scan per user is in flight; starting another abandons the first.
type ScanTracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	users    map[string]*userScan
	listener func(userID string, state ScanState)
}

type userScan struct {
	state   ScanState
	seq     uint64
	cancel  context.CancelFunc
	reset   *time.Timer
	updated time.Time
}

func NewScanTracker(cooldown time.Duration) *ScanTracker {
	if cooldown <= 0 {
		cooldown = 3 * time.Second
	}
	return &ScanTracker{cooldown: cooldown, users: make(map[string]*userScan)}
}

// OnChange registers a callback fired after every state transition.
func (t *ScanTracker) OnChange(fn func(userID string, state ScanState)) {
	t.mu.Lock()
	t.listener = fn
	t.mu.Unlock()
}

func (t *ScanTracker) user(id string) *userScan {
	u, ok := t.users[id]
	if !ok {
		u = &userScan{state: StateSearching}
		t.users[id] = u
	}
	return u
}

// set must be called with t.mu held; it returns the listener to notify.
func (t *ScanTracker) set(u *userScan, s ScanState) func(string, ScanState) {
	if u.reset != nil {
		u.reset.Stop()
		u.reset = nil
	}
	u.state = s
	u.updated = time.Now()
	return t.listener
}

func notify(fn func(string, ScanState), userID string, s ScanState) {
	if fn != nil {
		fn(userID, s)
	}
}

// State returns the user's current state; unknown users are SEARCHING.
func (t *ScanTracker) State(userID string) ScanState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.users[userID]; ok {
		return u.state
	}
	return StateSearching
}

// Detect marks a candidate in view. A scan already ANALYZING is left alone.
func (t *ScanTracker) Detect(userID string) ScanState {
	t.mu.Lock()
	u := t.user(userID)
	if u.state == StateAnalyzing {
		t.mu.Unlock()
		return StateAnalyzing
	}
	fn := t.set(u, StateDetected)
	t.mu.Unlock()
	notify(fn, userID, StateDetected)
	return StateDetected
}

// Begin moves the user to ANALYZING and returns the scan's context. Any scan
// already in flight for the user is cancelled. finish must be called exactly
// once; completed=true moves to COMPLETE, false back to SEARCHING.
func (t *ScanTracker) Begin(parent context.Context, userID string) (context.Context, func(completed bool)) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	u := t.user(userID)
	if u.cancel != nil {
		u.cancel()
	}
	u.seq++
	seq := u.seq
	u.cancel = cancel
	fn := t.set(u, StateAnalyzing)
	t.mu.Unlock()
	notify(fn, userID, StateAnalyzing)

	var once sync.Once
	finish := func(completed bool) {
		once.Do(func() {
			defer cancel()
			t.mu.Lock()
			if u.seq != seq {
				// superseded or cancelled; the newer owner controls the state
				t.mu.Unlock()
				return
			}
			u.cancel = nil
			next := StateSearching
			if completed {
				next = StateComplete
			}
			fn := t.set(u, next)
			if completed {
				u.reset = time.AfterFunc(t.cooldown, func() { t.expire(userID, seq) })
			}
			t.mu.Unlock()
			notify(fn, userID, next)
		})
	}
	return ctx, finish
}

// Cancel abandons the user's in-flight scan. It reports whether one existed.
func (t *ScanTracker) Cancel(userID string) bool {
	t.mu.Lock()
	u, ok := t.users[userID]
	if !ok || u.state != StateAnalyzing {
		t.mu.Unlock()
		return false
	}
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
	u.seq++
	fn := t.set(u, StateSearching)
	t.mu.Unlock()
	notify(fn, userID, StateSearching)
	return true
}

func (t *ScanTracker) expire(userID string, seq uint64) {
	t.mu.Lock()
	u, ok := t.users[userID]
	if !ok || u.seq != seq || u.state != StateComplete {
		t.mu.Unlock()
		return
	}
	u.reset = nil
	u.state = StateSearching
	u.updated = time.Now()
	fn := t.listener
	t.mu.Unlock()
	notify(fn, userID, StateSearching)
}

// Prune forgets idle users whose last transition is older than maxIdle.
func (t *ScanTracker) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, u := range t.users {
		if u.state == StateSearching && u.updated.Before(cutoff) {
			delete(t.users, id)
			n++
		}
	}
	return n
}
