package scheduler

import (
	"time"

	"github.com/rs/zerolog/log"

	"taskwell/internal/task"
)

// sweepRetention deletes completed one-time tasks whose retention window has
// elapsed, pre-schedules deletion for tasks expiring before the next sweep,
// and resubmits itself. It runs on the worker pool, independent of the two
// scheduler loops, so the completed collection cannot grow without bound.
func (s *Scheduler) sweepRetention() {
	now := time.Now()
	s.completedMu.Lock()
	tasks := make([]*task.Task, len(s.completed))
	copy(tasks, s.completed)
	s.completedMu.Unlock()

	removed := 0
	for _, t := range tasks {
		if t.IsRunning() {
			continue
		}
		expiry := t.LastRun().Add(s.cfg.Retention)
		switch {
		case !expiry.After(now):
			s.removeTask(s.ctx, t)
			removed++
		case expiry.Before(now.Add(s.cfg.SweepInterval)):
			expired := t
			s.pool.SubmitAt(expiry, func() {
				if !expired.IsRunning() {
					s.removeTask(s.ctx, expired)
				}
			})
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("retention sweep deleted expired tasks")
	}

	select {
	case <-s.stop:
	default:
		s.pool.SubmitDelayed(s.cfg.SweepInterval, s.sweepRetention)
	}
}
