package task

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"taskwell/internal/access"
)

// ErrBadSchedule is returned when a task is neither recurrent nor one-time,
// or tries to be both.
var ErrBadSchedule = errors.New("exactly one of schedule and run-at must be set")

// State is the execution lifecycle of a task. System and Disabled are
// independent of it.
type State int

const (
	// Pending means the task is eligible for dispatch.
	Pending State = iota
	// Running means a handler invocation is in flight.
	Running
	// Completed means a one-time task has already run.
	Completed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Settings carries every caller-controlled field of a task.
type Settings struct {
	HandlerID string
	Schedule  string    // non-empty for recurrent tasks
	RunAt     time.Time // set for one-time tasks
	Data      string
	Transient any
	Owner     uint32
	ObjectID  uint32
	Comments  string
	Key       string
	System    bool
	Disabled  bool
}

func (s Settings) validate() error {
	if (s.Schedule != "") == !s.RunAt.IsZero() {
		return ErrBadSchedule
	}
	return nil
}

// Task is the persisted, lockable unit of scheduling. All mutable fields are
// guarded by the task's own mutex, which is distinct from the collection
// locks that guard membership.
type Task struct {
	mu sync.Mutex

	id        uint64
	handlerID string
	schedule  string
	runAt     time.Time
	data      string
	transient any
	owner     uint32
	objectID  uint32
	comments  string
	key       string

	system   bool
	disabled bool
	deleted  bool
	state    State
	lastRun  time.Time

	// runDone is non-nil exactly while state == Running and is closed when
	// the execution finishes. Deferred deletes wait on it instead of polling.
	runDone chan struct{}
}

// New builds a fresh task. The id must be unique for the lifetime of the
// process.
func New(id uint64, s Settings) (*Task, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &Task{
		id:        id,
		handlerID: s.HandlerID,
		schedule:  s.Schedule,
		runAt:     s.RunAt,
		data:      s.Data,
		transient: s.Transient,
		owner:     s.Owner,
		objectID:  s.ObjectID,
		comments:  s.Comments,
		key:       s.Key,
		system:    s.System,
		disabled:  s.Disabled,
		state:     Pending,
	}, nil
}

// Restore rebuilds a task from persisted state. Running is never persisted,
// so the restored state is Pending or Completed.
func Restore(id uint64, s Settings, completed bool, lastRun time.Time) (*Task, error) {
	t, err := New(id, s)
	if err != nil {
		return nil, err
	}
	if completed {
		t.state = Completed
	}
	t.lastRun = lastRun
	return t, nil
}

func (t *Task) ID() uint64 { return t.id }

func (t *Task) HandlerID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlerID
}

// IsRecurrent reports whether the task has a repeating schedule.
func (t *Task) IsRecurrent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schedule != ""
}

func (t *Task) Schedule() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.schedule
}

func (t *Task) RunAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runAt
}

func (t *Task) Key() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.key
}

func (t *Task) ObjectID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objectID
}

func (t *Task) IsSystem() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.system
}

func (t *Task) IsDisabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled
}

func (t *Task) SetDisabled(disabled bool) {
	t.mu.Lock()
	t.disabled = disabled
	t.mu.Unlock()
}

// EnsureSystem upgrades the task to a system task. It reports whether the
// flag actually changed.
func (t *Task) EnsureSystem() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.system {
		return false
	}
	t.system = true
	return true
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Running
}

// Runnable reports whether the task may be considered for dispatch.
func (t *Task) Runnable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Pending && !t.disabled
}

func (t *Task) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}

// MarkDeleted tombstones the task so concurrent relocation cannot put it
// back into a collection. It reports whether this call was the first.
func (t *Task) MarkDeleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleted {
		return false
	}
	t.deleted = true
	return true
}

func (t *Task) IsDeleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleted
}

// TryStart atomically claims the task for execution. It fails if the task is
// disabled, already running, or completed, which is the whole of the overlap
// policy: a schedule match against a running task is skipped, never queued.
func (t *Task) TryStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending || t.disabled || t.deleted {
		return false
	}
	t.state = Running
	t.runDone = make(chan struct{})
	return true
}

// EndRun finishes an execution claimed by TryStart: records the run time,
// releases Running, and marks one-time tasks Completed. It returns the
// recurrence and system flags as decided under the lock, so the caller's
// relocation decision cannot race with a concurrent Update.
func (t *Task) EndRun(now time.Time) (oneTime, system bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun = now
	oneTime = t.schedule == ""
	system = t.system
	if oneTime {
		t.state = Completed
	} else {
		t.state = Pending
	}
	if t.runDone != nil {
		close(t.runDone)
		t.runDone = nil
	}
	return oneTime, system
}

// RunDone returns a channel closed when the current execution finishes, or
// nil if the task is not running.
func (t *Task) RunDone() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runDone
}

// Apply replaces the caller-controlled fields. A task that is not running is
// reset to Pending, so a completed one-time task given a new deadline becomes
// schedulable again. The state of a running task is left to the execution
// that owns it.
func (t *Task) Apply(s Settings) error {
	if err := s.validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlerID = s.HandlerID
	t.schedule = s.Schedule
	t.runAt = s.RunAt
	t.data = s.Data
	t.transient = s.Transient
	t.owner = s.Owner
	t.objectID = s.ObjectID
	t.comments = s.Comments
	t.key = s.Key
	t.system = s.System
	t.disabled = s.Disabled
	if t.state != Running {
		t.state = Pending
	}
	return nil
}

// Accessible evaluates the access predicate under the task lock, since owner
// can change on update.
func (t *Task) Accessible(userID uint32, rights access.Rights) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return access.CanManage(t.owner, t.system, userID, rights)
}

// Payload returns the data the handler borrows for one call. The handler
// must not retain either value past return.
func (t *Task) Payload() (data string, transient any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data, t.transient
}

// Snapshot is a point-in-time value copy of a task, safe to hold after the
// task itself is deleted.
type Snapshot struct {
	ID        uint64    `json:"id"`
	HandlerID string    `json:"handler_id"`
	Schedule  string    `json:"schedule,omitempty"`
	RunAt     time.Time `json:"run_at,omitempty"`
	Data      string    `json:"data"`
	Owner     uint32    `json:"owner"`
	ObjectID  uint32    `json:"object_id,omitempty"`
	Comments  string    `json:"comments,omitempty"`
	Key       string    `json:"key,omitempty"`
	System    bool      `json:"system"`
	Disabled  bool      `json:"disabled"`
	State     State     `json:"state"`
	LastRun   time.Time `json:"last_run,omitempty"`
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:        t.id,
		HandlerID: t.handlerID,
		Schedule:  t.schedule,
		RunAt:     t.runAt,
		Data:      t.data,
		Owner:     t.owner,
		ObjectID:  t.objectID,
		Comments:  t.comments,
		Key:       t.key,
		System:    t.system,
		Disabled:  t.disabled,
		State:     t.state,
		LastRun:   t.lastRun,
	}
}
