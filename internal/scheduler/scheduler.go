// Package scheduler is the core of the platform: it accepts one-time and
// recurrent tasks, persists them, decides when each must run, and dispatches
// them to the worker pool with at most one concurrent execution per task.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"taskwell/internal/notify"
	"taskwell/internal/pool"
	"taskwell/internal/registry"
	"taskwell/internal/store"
	"taskwell/internal/task"
)

// Config controls the scheduler's timing. Zero values get defaults.
type Config struct {
	// RecurrentTick is the fixed interval between schedule evaluations.
	RecurrentTick time.Duration
	// IdleWait bounds the ad-hoc loop's sleep when no one-time task is
	// pending.
	IdleWait time.Duration
	// Retention is how long a completed one-time task stays queryable.
	Retention time.Duration
	// SweepInterval is how often the retention sweeper resubmits itself.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RecurrentTick <= 0 {
		c.RecurrentTick = time.Minute
	}
	if c.IdleWait <= 0 {
		c.IdleWait = time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	return c
}

// Scheduler owns the three task collections and the two scheduling loops.
// Construct one per process with New and hand it to whatever needs
// scheduling.
type Scheduler struct {
	cfg   Config
	store store.Store
	pool  *pool.Pool
	reg   *registry.Registry
	bus   notify.Bus

	// Collection lock order, when more than one is needed:
	// recurrentMu, then pendingMu, then completedMu.
	recurrentMu sync.Mutex
	recurrent   []*task.Task

	pendingMu sync.Mutex
	pending   []*task.Task // sorted ascending by RunAt

	completedMu sync.Mutex
	completed   []*task.Task

	wake   chan struct{} // ad-hoc loop wakeup, capacity 1
	lastID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup

	startMu sync.Mutex
	started bool

	adhocBeat     atomic.Int64
	recurrentBeat atomic.Int64
}

func New(st store.Store, p *pool.Pool, reg *registry.Registry, bus notify.Bus, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:   cfg.withDefaults(),
		store: st,
		pool:  p,
		reg:   reg,
		bus:   bus,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
}

// Start reconstructs the collections from persisted state and launches the
// two scheduling loops and the retention sweeper.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.load(s.ctx); err != nil {
		s.cancel()
		return err
	}
	now := time.Now().Unix()
	s.adhocBeat.Store(now)
	s.recurrentBeat.Store(now)

	s.wg.Add(2)
	go s.adhocLoop()
	go s.recurrentLoop()
	s.pool.SubmitDelayed(s.cfg.SweepInterval, s.sweepRetention)
	s.started = true

	log.Info().
		Int("recurrent", s.countRecurrent()).
		Int("pending", s.countPending()).
		Int("completed", s.countCompleted()).
		Dur("tick", s.cfg.RecurrentTick).
		Msg("scheduler started")
	return nil
}

// Stop halts the loops. Handler executions already submitted to the pool are
// the pool's to drain.
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	close(s.stop)
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) load(ctx context.Context) error {
	recs, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	var maxID uint64
	for _, rec := range recs {
		t, err := task.Restore(rec.ID, task.Settings{
			HandlerID: rec.HandlerID,
			Schedule:  rec.Schedule,
			RunAt:     rec.RunAt,
			Data:      rec.Data,
			Owner:     rec.Owner,
			ObjectID:  rec.ObjectID,
			Comments:  rec.Comments,
			Key:       rec.Key,
			System:    rec.System,
			Disabled:  rec.Disabled,
		}, rec.Completed, rec.LastRun)
		if err != nil {
			log.Warn().Uint64("task_id", rec.ID).Err(err).Msg("skipping malformed persisted task")
			continue
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
		switch {
		case rec.Schedule != "":
			s.recurrent = append(s.recurrent, t)
		case rec.Completed:
			s.completed = append(s.completed, t)
		default:
			s.pending = append(s.pending, t)
		}
	}
	sort.Slice(s.pending, func(i, j int) bool {
		return s.pending[i].RunAt().Before(s.pending[j].RunAt())
	})
	s.lastID.Store(maxID)
	return nil
}

func (s *Scheduler) nextID() uint64 { return s.lastID.Add(1) }

// signalWakeup nudges the ad-hoc loop to recompute its sleep interval.
func (s *Scheduler) signalWakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// insertPending adds a one-time task preserving deadline order.
func (s *Scheduler) insertPendingLocked(t *task.Task) {
	at := t.RunAt()
	i := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].RunAt().After(at)
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = t
}

func removeByID(list *[]*task.Task, id uint64) bool {
	for i, t := range *list {
		if t.ID() == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func containsID(list []*task.Task, id uint64) bool {
	for _, t := range list {
		if t.ID() == id {
			return true
		}
	}
	return false
}

// findTask locates a task in whichever collection currently holds it.
func (s *Scheduler) findTask(id uint64) *task.Task {
	s.recurrentMu.Lock()
	for _, t := range s.recurrent {
		if t.ID() == id {
			s.recurrentMu.Unlock()
			return t
		}
	}
	s.recurrentMu.Unlock()

	s.pendingMu.Lock()
	for _, t := range s.pending {
		if t.ID() == id {
			s.pendingMu.Unlock()
			return t
		}
	}
	s.pendingMu.Unlock()

	s.completedMu.Lock()
	defer s.completedMu.Unlock()
	for _, t := range s.completed {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// allTasks snapshots the membership of all three collections.
func (s *Scheduler) allTasks() []*task.Task {
	var all []*task.Task
	s.recurrentMu.Lock()
	all = append(all, s.recurrent...)
	s.recurrentMu.Unlock()
	s.pendingMu.Lock()
	all = append(all, s.pending...)
	s.pendingMu.Unlock()
	s.completedMu.Lock()
	all = append(all, s.completed...)
	s.completedMu.Unlock()
	return all
}

// relocate atomically moves a task to the collection matching its current
// shape. Both membership mutations happen under the collection locks so a
// concurrent completion cannot observe the task in transit.
func (s *Scheduler) relocate(t *task.Task, toRecurrent bool) {
	id := t.ID()
	s.recurrentMu.Lock()
	s.pendingMu.Lock()
	s.completedMu.Lock()
	removeByID(&s.recurrent, id)
	removeByID(&s.pending, id)
	removeByID(&s.completed, id)
	if !t.IsDeleted() {
		if toRecurrent {
			s.recurrent = append(s.recurrent, t)
		} else {
			s.insertPendingLocked(t)
		}
	}
	s.completedMu.Unlock()
	s.pendingMu.Unlock()
	s.recurrentMu.Unlock()
}

// moveToCompleted relocates a finished one-time task from the pending to the
// completed collection.
func (s *Scheduler) moveToCompleted(t *task.Task) {
	id := t.ID()
	s.pendingMu.Lock()
	s.completedMu.Lock()
	removeByID(&s.pending, id)
	if !t.IsDeleted() && !containsID(s.completed, id) {
		s.completed = append(s.completed, t)
	}
	s.completedMu.Unlock()
	s.pendingMu.Unlock()
}

// removeTask deletes a task from memory and storage and announces it. It is
// idempotent: only the first caller does the work.
func (s *Scheduler) removeTask(ctx context.Context, t *task.Task) {
	if !t.MarkDeleted() {
		return
	}
	id := t.ID()
	s.recurrentMu.Lock()
	s.pendingMu.Lock()
	s.completedMu.Lock()
	removeByID(&s.recurrent, id)
	removeByID(&s.pending, id)
	removeByID(&s.completed, id)
	s.completedMu.Unlock()
	s.pendingMu.Unlock()
	s.recurrentMu.Unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		log.Error().Err(err).Uint64("task_id", id).Msg("persistence failure on delete; task removed from memory only")
	}
	s.bus.Publish(notify.TaskDeleted, id)
	s.signalWakeup()
}

func recordOf(t *task.Task) store.Record {
	sn := t.Snapshot()
	return store.Record{
		ID:        sn.ID,
		HandlerID: sn.HandlerID,
		Schedule:  sn.Schedule,
		RunAt:     sn.RunAt,
		Data:      sn.Data,
		Owner:     sn.Owner,
		ObjectID:  sn.ObjectID,
		Comments:  sn.Comments,
		Key:       sn.Key,
		System:    sn.System,
		Disabled:  sn.Disabled,
		Completed: sn.State == task.Completed,
		LastRun:   sn.LastRun,
	}
}

// persistUpdate writes the task's current state, logging instead of failing:
// the in-memory state is authoritative until the next successful write.
func (s *Scheduler) persistUpdate(ctx context.Context, t *task.Task) error {
	if err := s.store.Update(ctx, recordOf(t)); err != nil {
		log.Error().Err(err).Uint64("task_id", t.ID()).Msg("persistence failure on update; in-memory state kept")
		return err
	}
	return nil
}

func (s *Scheduler) countRecurrent() int {
	s.recurrentMu.Lock()
	defer s.recurrentMu.Unlock()
	return len(s.recurrent)
}

func (s *Scheduler) countPending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) countCompleted() int {
	s.completedMu.Lock()
	defer s.completedMu.Unlock()
	return len(s.completed)
}

// Health reports loop heartbeats and collection sizes for the admin surface.
type Health struct {
	AdHocLastWake     time.Time `json:"adhoc_last_wake"`
	RecurrentLastTick time.Time `json:"recurrent_last_tick"`
	Recurrent         int       `json:"recurrent_tasks"`
	Pending           int       `json:"pending_tasks"`
	Completed         int       `json:"completed_tasks"`
}

func (s *Scheduler) Health() Health {
	return Health{
		AdHocLastWake:     time.Unix(s.adhocBeat.Load(), 0),
		RecurrentLastTick: time.Unix(s.recurrentBeat.Load(), 0),
		Recurrent:         s.countRecurrent(),
		Pending:           s.countPending(),
		Completed:         s.countCompleted(),
	}
}
