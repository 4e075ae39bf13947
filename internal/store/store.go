// Package store is the persistence boundary of the scheduler. Backends only
// need atomic single-row writes; the scheduler never asks for multi-row
// transactions.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Update/Delete when no row exists for the id.
var ErrNotFound = errors.New("task record not found")

// Record is the persisted projection of a task. Transient data is never
// stored and Running is never persisted as true, so a record is either
// pending, completed, or recurrent.
type Record struct {
	ID        uint64    `json:"id"`
	HandlerID string    `json:"handler_id"`
	Schedule  string    `json:"schedule"`
	RunAt     time.Time `json:"run_at"`
	Data      string    `json:"data"`
	Owner     uint32    `json:"owner"`
	ObjectID  uint32    `json:"object_id"`
	Comments  string    `json:"comments"`
	Key       string    `json:"key"`
	System    bool      `json:"system"`
	Disabled  bool      `json:"disabled"`
	Completed bool      `json:"completed"`
	LastRun   time.Time `json:"last_run"`
}

// Store is implemented by every persistence backend.
type Store interface {
	LoadAll(ctx context.Context) ([]Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id uint64) error
	Close() error
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
