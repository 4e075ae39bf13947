package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"taskwell/internal/notify"
	"taskwell/internal/registry"
	"taskwell/internal/schedule"
	"taskwell/internal/task"
)

// adhocLoop sleeps until the earliest pending deadline (or IdleWait when the
// collection is empty) and can be woken early when a create or update changes
// the front of the queue.
func (s *Scheduler) adhocLoop() {
	defer s.wg.Done()
	for {
		timer := time.NewTimer(s.nextWait())
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
		s.adhocBeat.Store(time.Now().Unix())
		s.runDue(time.Now())
	}
}

// nextWait returns the time until the earliest dispatchable pending task.
// Disabled, running, and completed entries do not drive the sleep interval.
func (s *Scheduler) nextWait() time.Duration {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for _, t := range s.pending {
		if !t.Runnable() {
			continue
		}
		d := time.Until(t.RunAt())
		if d < 0 {
			return 0
		}
		return d
	}
	return s.cfg.IdleWait
}

// runDue dispatches every due pending task, scanning from the front and
// stopping at the first deadline still in the future: the collection is
// sorted, so everything after it is in the future too.
func (s *Scheduler) runDue(now time.Time) {
	var due []*task.Task
	s.pendingMu.Lock()
	for _, t := range s.pending {
		if t.RunAt().After(now) {
			break
		}
		if t.Runnable() {
			due = append(due, t)
		}
	}
	s.pendingMu.Unlock()

	for _, t := range due {
		s.dispatch(t)
	}
}

// recurrentLoop wakes on a fixed tick and evaluates every recurrent task's
// schedule predicate against the current calendar time.
func (s *Scheduler) recurrentLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.RecurrentTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.recurrentBeat.Store(time.Now().Unix())
			s.runRecurrent(now)
		}
	}
}

func (s *Scheduler) runRecurrent(now time.Time) {
	s.recurrentMu.Lock()
	tasks := make([]*task.Task, len(s.recurrent))
	copy(tasks, s.recurrent)
	s.recurrentMu.Unlock()

	for _, t := range tasks {
		if !t.Runnable() {
			continue
		}
		if schedule.Matches(t.Schedule(), now) {
			s.dispatch(t)
		}
	}
}

// dispatch claims the task and submits it to the worker pool. Claiming and
// submitting form one critical section per task: once TryStart succeeds no
// other dispatch can claim the same task until its execution ends.
func (s *Scheduler) dispatch(t *task.Task) {
	if t.IsRunning() {
		log.Warn().Uint64("task_id", t.ID()).Msg("dispatch requested for a task that is already executing")
		return
	}
	if !t.TryStart() {
		return
	}
	s.pool.Submit(func() { s.execute(t) })
}

// execute is the wrapper the worker pool runs: invoke the handler, then
// release Running, persist, and relocate or delete the task. Running is
// released no matter how the handler terminates.
func (s *Scheduler) execute(t *task.Task) {
	h, ok := s.reg.Resolve(t.HandlerID())
	if !ok {
		log.Warn().
			Str("handler_id", t.HandlerID()).
			Uint64("task_id", t.ID()).
			Msg("no handler registered for task, substituting no-op")
		h = registry.NoOp
	}
	data, transient := t.Payload()
	runHandler(s.ctx, h, registry.Params{
		TaskID:    t.ID(),
		Key:       t.Key(),
		ObjectID:  t.ObjectID(),
		Data:      data,
		Transient: transient,
	})

	oneTime, system := t.EndRun(time.Now())
	switch {
	case oneTime && system:
		// System tasks are internal bookkeeping; nothing to inspect after
		// the run, so they vanish on completion.
		s.removeTask(s.ctx, t)
	case oneTime:
		s.moveToCompleted(t)
		s.persistUpdate(s.ctx, t)
		s.bus.Publish(notify.TaskExecuted, t.ID())
	default:
		s.persistUpdate(s.ctx, t)
		s.bus.Publish(notify.TaskExecuted, t.ID())
	}
}

func runHandler(ctx context.Context, h registry.Handler, p registry.Params) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Uint64("task_id", p.TaskID).
				Msg("task handler panicked")
		}
	}()
	if err := h.Execute(ctx, p); err != nil {
		log.Error().Err(err).Uint64("task_id", p.TaskID).Msg("task handler failed")
	}
}
