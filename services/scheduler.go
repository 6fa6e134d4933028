package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bioguard/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler runs housekeeping jobs on cron specs (seconds field enabled).
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]func(context.Context) error
	log  *utils.Logger
}

func NewScheduler(log *utils.Logger) *Scheduler {
	if log == nil {
		log = utils.NopLogger()
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		jobs: make(map[string]func(context.Context) error),
		log:  log.With("service", "scheduler"),
	}
}

// Add registers a named job.
func (s *Scheduler) Add(name, spec string, job func(context.Context) error) error {
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already registered", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.Run(context.Background(), name) }); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	s.jobs[name] = job
	return nil
}

// Run executes one job immediately and logs the outcome.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("job failed", "job", name, "error", err)
		return err
	}
	s.log.Debug("job finished", "job", name, "took", time.Since(start))
	return nil
}

func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", s.Jobs())
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// CacheSweepJob drops expired in-memory nutrition entries.
func CacheSweepJob(c *MemoryNutritionCache, log *utils.Logger) func(context.Context) error {
	return func(context.Context) error {
		if n := c.Sweep(); n > 0 && log != nil {
			log.Debug("nutrition cache swept", "removed", n)
		}
		return nil
	}
}

// RetentionJob deletes scans older than the retention window.
func RetentionJob(h *HistoryService, retention time.Duration, log *utils.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := h.PruneOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 && log != nil {
			log.Info("scan history pruned", "removed", n)
		}
		return nil
	}
}

// TrackerPruneJob forgets scan state of users idle for longer than maxIdle.
func TrackerPruneJob(t *ScanTracker, maxIdle time.Duration) func(context.Context) error {
	return func(context.Context) error {
		t.Prune(maxIdle)
		return nil
	}
}
