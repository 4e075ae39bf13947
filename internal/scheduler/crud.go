package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"taskwell/internal/access"
	"taskwell/internal/notify"
	"taskwell/internal/schedule"
	"taskwell/internal/task"
)

// CreateRecurrent registers a task driven by a cron-style schedule. The
// returned id is valid even when the error is ErrPersistence: the task is
// scheduled in memory regardless.
func (s *Scheduler) CreateRecurrent(ctx context.Context, sp task.Settings, rights access.Rights) (uint64, error) {
	if !rights.Any(access.AnyScheduling) {
		return 0, ErrAccessDenied
	}
	if err := schedule.Validate(sp.Schedule); err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", sp.Schedule, err)
	}
	sp.RunAt = time.Time{}
	t, err := task.New(s.nextID(), sp)
	if err != nil {
		return 0, err
	}
	perr := s.persistInsert(ctx, t)

	s.recurrentMu.Lock()
	s.recurrent = append(s.recurrent, t)
	s.recurrentMu.Unlock()

	s.bus.Publish(notify.TaskCreated, t.ID())
	log.Debug().Uint64("task_id", t.ID()).Str("handler_id", sp.HandlerID).Str("schedule", sp.Schedule).Msg("recurrent task created")
	return t.ID(), perr
}

// CreateOneTime registers a task with a single absolute deadline and wakes
// the ad-hoc loop so the new deadline drives its sleep interval.
func (s *Scheduler) CreateOneTime(ctx context.Context, sp task.Settings, rights access.Rights) (uint64, error) {
	if !rights.Any(access.AnyScheduling) {
		return 0, ErrAccessDenied
	}
	if sp.RunAt.IsZero() {
		return 0, task.ErrBadSchedule
	}
	sp.Schedule = ""
	t, err := task.New(s.nextID(), sp)
	if err != nil {
		return 0, err
	}
	perr := s.persistInsert(ctx, t)

	s.pendingMu.Lock()
	s.insertPendingLocked(t)
	s.pendingMu.Unlock()
	s.signalWakeup()

	s.bus.Publish(notify.TaskCreated, t.ID())
	log.Debug().Uint64("task_id", t.ID()).Str("handler_id", sp.HandlerID).Time("run_at", sp.RunAt).Msg("one-time task created")
	return t.ID(), perr
}

// CreateUniqueRecurrent creates a recurrent task unless any task for the
// handler already exists, in which case the existing task wins: its System
// flag is upgraded if requested and its id is returned.
func (s *Scheduler) CreateUniqueRecurrent(ctx context.Context, sp task.Settings, rights access.Rights) (uint64, error) {
	if !rights.Any(access.AnyScheduling) {
		return 0, ErrAccessDenied
	}
	if existing := s.findByHandler(sp.HandlerID); existing != nil {
		if sp.System && existing.EnsureSystem() {
			s.persistUpdate(ctx, existing)
			s.bus.Publish(notify.TaskUpdated, existing.ID())
		}
		return existing.ID(), nil
	}
	return s.CreateRecurrent(ctx, sp, rights)
}

// Update replaces a task's definition. Changing between recurrent and
// one-time moves the task to the matching collection.
func (s *Scheduler) Update(ctx context.Context, id uint64, sp task.Settings, userID uint32, rights access.Rights) error {
	t := s.findTask(id)
	if t == nil {
		return ErrNotFound
	}
	if !t.Accessible(userID, rights) {
		return ErrAccessDenied
	}
	toRecurrent := sp.Schedule != ""
	if toRecurrent {
		if err := schedule.Validate(sp.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", sp.Schedule, err)
		}
		sp.RunAt = time.Time{}
	}
	if err := t.Apply(sp); err != nil {
		return err
	}
	s.relocate(t, toRecurrent)
	perr := s.persistUpdate(ctx, t)
	s.bus.Publish(notify.TaskUpdated, id)
	if !toRecurrent {
		s.signalWakeup()
	}
	if perr != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, perr)
	}
	return nil
}

// Delete removes a task. A running task cannot be removed in place: the call
// returns ErrBusy after disabling the task and arming a deferred delete that
// completes once the execution finishes. The caller is never blocked.
func (s *Scheduler) Delete(ctx context.Context, id uint64, userID uint32, rights access.Rights) error {
	t := s.findTask(id)
	if t == nil {
		return ErrNotFound
	}
	if !t.Accessible(userID, rights) {
		return ErrAccessDenied
	}
	// Disabling first closes the window where a loop could claim the task
	// between the running check and the removal.
	t.SetDisabled(true)
	if t.IsRunning() {
		s.deferDelete(t)
		return ErrBusy
	}
	s.removeTask(ctx, t)
	return nil
}

// deferDelete completes a delete that hit a running task: wait for the
// current execution to finish, then remove. SubmitSerialized keeps at most
// one in-flight delete attempt per task id.
func (s *Scheduler) deferDelete(t *task.Task) {
	key := fmt.Sprintf("defer-delete-%d", t.ID())
	accepted := s.pool.SubmitSerialized(key, func() {
		for {
			ch := t.RunDone()
			if ch == nil {
				break
			}
			select {
			case <-ch:
			case <-s.stop:
				return
			}
		}
		s.removeTask(context.Background(), t)
	})
	if !accepted {
		log.Debug().Uint64("task_id", t.ID()).Msg("deferred delete already queued")
	}
}

func (s *Scheduler) deleteWhere(ctx context.Context, match func(*task.Task) bool) int {
	count := 0
	for _, t := range s.allTasks() {
		if t.IsDeleted() || !match(t) {
			continue
		}
		t.SetDisabled(true)
		count++
		if t.IsRunning() {
			s.deferDelete(t)
			continue
		}
		s.removeTask(ctx, t)
	}
	return count
}

// DeleteByHandlerID removes every task for a handler, returning the number
// of tasks affected (deferred deletes included).
func (s *Scheduler) DeleteByHandlerID(ctx context.Context, handlerID string) int {
	return s.deleteWhere(ctx, func(t *task.Task) bool { return t.HandlerID() == handlerID })
}

// DeleteByKey removes every task sharing the grouping key.
func (s *Scheduler) DeleteByKey(ctx context.Context, key string) int {
	return s.deleteWhere(ctx, func(t *task.Task) bool { return t.Key() == key })
}

// DeleteByObjectID removes the tasks linked to a domain object. System tasks
// always go; user-created ones only when includeUserTasks is set.
func (s *Scheduler) DeleteByObjectID(ctx context.Context, objectID uint32, includeUserTasks bool) int {
	return s.deleteWhere(ctx, func(t *task.Task) bool {
		return t.ObjectID() == objectID && (includeUserTasks || t.IsSystem())
	})
}

func (s *Scheduler) findByHandler(handlerID string) *task.Task {
	for _, t := range s.allTasks() {
		if !t.IsDeleted() && t.HandlerID() == handlerID {
			return t
		}
	}
	return nil
}

// CountByKey counts tasks sharing the grouping key across all collections.
func (s *Scheduler) CountByKey(key string) int {
	n := 0
	for _, t := range s.allTasks() {
		if !t.IsDeleted() && t.Key() == key {
			n++
		}
	}
	return n
}

// FindByHandlerID returns snapshots of every task for a handler.
func (s *Scheduler) FindByHandlerID(handlerID string) []task.Snapshot {
	var out []task.Snapshot
	for _, t := range s.allTasks() {
		if !t.IsDeleted() && t.HandlerID() == handlerID {
			out = append(out, t.Snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsRunning reports whether the task exists and is currently executing.
func (s *Scheduler) IsRunning(id uint64) bool {
	t := s.findTask(id)
	return t != nil && t.IsRunning()
}

// Get returns a snapshot of one task, subject to the access predicate.
func (s *Scheduler) Get(id uint64, userID uint32, rights access.Rights) (task.Snapshot, error) {
	t := s.findTask(id)
	if t == nil {
		return task.Snapshot{}, ErrNotFound
	}
	if !t.Accessible(userID, rights) {
		return task.Snapshot{}, ErrAccessDenied
	}
	return t.Snapshot(), nil
}

// List returns snapshots of every task the caller may see, optionally
// narrowed by filter, sorted by id.
func (s *Scheduler) List(userID uint32, rights access.Rights, filter func(task.Snapshot) bool) []task.Snapshot {
	var out []task.Snapshot
	for _, t := range s.allTasks() {
		if t.IsDeleted() || !t.Accessible(userID, rights) {
			continue
		}
		sn := t.Snapshot()
		if filter != nil && !filter(sn) {
			continue
		}
		out = append(out, sn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) persistInsert(ctx context.Context, t *task.Task) error {
	if err := s.store.Insert(ctx, recordOf(t)); err != nil {
		log.Error().Err(err).Uint64("task_id", t.ID()).Msg("persistence failure on insert; task scheduled in memory only")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
