package scheduler

import "errors"

// The error taxonomy surfaced to callers of the CRUD operations. Compare
// with errors.Is.
var (
	// ErrAccessDenied means the caller's rights do not cover the operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound means no task with the given id exists in any collection.
	ErrNotFound = errors.New("task not found")
	// ErrBusy means a delete hit a running task. The delete is not lost: the
	// task is disabled and removed once its execution finishes.
	ErrBusy = errors.New("task is executing")
	// ErrPersistence means the storage collaborator rejected a write. The
	// in-memory change is still applied; scheduling availability wins over
	// strict durability.
	ErrPersistence = errors.New("persistent storage rejected the write")
)
