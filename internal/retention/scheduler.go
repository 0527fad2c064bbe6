package retention

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"doc-intake-service/internal/logger"
)

// Schedule runs Task at Hour:Minute every day, or only on Weekday when set.
type Schedule struct {
	Task    Task
	Hour    int
	Minute  int
	Weekday *time.Weekday
}

func DefaultSchedules() []Schedule {
	sunday := time.Sunday
	return []Schedule{
		{Task: TaskJobs, Hour: 2},
		{Task: TaskAudit, Hour: 3, Weekday: &sunday},
		{Task: TaskOrphaned, Hour: 4, Weekday: &sunday},
	}
}

// Next returns the first run time strictly after now.
func (s Schedule) Next(now time.Time) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	if s.Weekday != nil {
		days := (int(*s.Weekday) - int(t.Weekday()) + 7) % 7
		t = t.AddDate(0, 0, days)
	}
	if !t.After(now) {
		if s.Weekday != nil {
			t = t.AddDate(0, 0, 7)
		} else {
			t = t.AddDate(0, 0, 1)
		}
	}
	return t
}

type Runner interface {
	Run(ctx context.Context, task Task) []RunSummary
}

type Scheduler struct {
	runner    Runner
	schedules []Schedule
	loc       *time.Location
	log       *logger.Logger
}

func NewScheduler(runner Runner, log *logger.Logger, loc *time.Location, schedules ...Schedule) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if len(schedules) == 0 {
		schedules = DefaultSchedules()
	}
	return &Scheduler{runner: runner, schedules: schedules, loc: loc, log: log.With("component", "scheduler")}
}

// Run blocks until ctx is cancelled, firing each schedule independently.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sch := range s.schedules {
		sch := sch
		g.Go(func() error {
			s.loop(ctx, sch)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sch Schedule) {
	for {
		next := sch.Next(time.Now().In(s.loc))
		s.log.Info("cleanup scheduled", "task", sch.Task, "next_run", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		for _, sum := range s.runner.Run(ctx, sch.Task) {
			if sum.Success {
				s.log.Info("scheduled cleanup done", "task", sum.Task, "deleted", sum.Deleted, "failed", sum.Failed)
			} else {
				s.log.Error("scheduled cleanup failed", "task", sum.Task, "error", sum.Error)
			}
		}
	}
}
