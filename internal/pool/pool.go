// Package pool provides the bounded executor the scheduler dispatches into.
package pool

import (
	"sync"
	"time"
)

// Pool runs submitted functions on at most size concurrent goroutines.
// Submission never blocks the caller; each job waits for a slot on its own
// goroutine, so one slow handler occupies one slot and nothing else.
type Pool struct {
	sem  chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	inFlight map[string]bool // serialized keys currently submitted
}

func New(size int) *Pool {
	if size <= 0 {
		size = 8
	}
	return &Pool{
		sem:      make(chan struct{}, size),
		stop:     make(chan struct{}),
		inFlight: make(map[string]bool),
	}
}

// Submit schedules fn to run as soon as a slot is free.
func (p *Pool) Submit(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.sem <- struct{}{}:
		case <-p.stop:
			return
		}
		defer func() { <-p.sem }()
		fn()
	}()
}

// SubmitDelayed schedules fn to run after d.
func (p *Pool) SubmitDelayed(d time.Duration, fn func()) {
	if d <= 0 {
		p.Submit(fn)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-p.stop:
			return
		}
		select {
		case p.sem <- struct{}{}:
		case <-p.stop:
			return
		}
		defer func() { <-p.sem }()
		fn()
	}()
}

// SubmitAt schedules fn to run at the absolute time at.
func (p *Pool) SubmitAt(at time.Time, fn func()) {
	p.SubmitDelayed(time.Until(at), fn)
}

// SubmitSerialized schedules fn unless a job with the same key is already
// submitted and not yet finished. It reports whether fn was accepted. The
// scheduler uses this for deferred deletes: at most one in-flight delete
// attempt per task id.
func (p *Pool) SubmitSerialized(key string, fn func()) bool {
	p.mu.Lock()
	if p.inFlight[key] {
		p.mu.Unlock()
		return false
	}
	p.inFlight[key] = true
	p.mu.Unlock()

	p.Submit(func() {
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, key)
			p.mu.Unlock()
		}()
		fn()
	})
	return true
}

// Stop prevents new jobs from starting and waits for running ones to finish.
// Jobs still waiting for a slot or a timer are abandoned.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
}
