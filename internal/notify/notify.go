// Package notify is the fire-and-forget schedule-change channel.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; slow subscribers drop events.
//
// Delivery is best-effort and never awaited by the scheduler.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Change classifies a schedule-change event.
type Change string

const (
	TaskCreated  Change = "created"
	TaskUpdated  Change = "updated"
	TaskDeleted  Change = "deleted"
	TaskExecuted Change = "executed"
)

// Event is one schedule change.
type Event struct {
	ID     string    `json:"id"`
	Change Change    `json:"change"`
	TaskID uint64    `json:"task_id"`
	Time   time.Time `json:"time"`
}

// Bus broadcasts schedule changes to interested observers.
type Bus interface {
	Publish(change Change, taskID uint64)
	Subscribe(buffer int) (<-chan Event, func())
}

// New returns an in-memory fanout bus with no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  uint64
}

func (b *memBus) Publish(change Change, taskID uint64) {
	e := Event{
		ID:     uuid.NewString(),
		Change: change,
		TaskID: taskID,
		Time:   time.Now(),
	}
	// Snapshot subscribers so sends happen without the lock held.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery; an unsubscribe may close the channel
		// concurrently, so recover from a send on a closed channel.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}
