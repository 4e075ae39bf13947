package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBoundedConcurrency(t *testing.T) {
	t.Parallel()
	p := New(2)
	defer p.Stop()

	var running, peak int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		})
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&running); got != 2 {
		t.Fatalf("running = %d, want 2 (pool size)", got)
	}
	close(release)
	wg.Wait()
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", got)
	}
}

func TestSubmitSerialized(t *testing.T) {
	t.Parallel()
	p := New(4)
	defer p.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	if !p.SubmitSerialized("k", func() {
		close(started)
		<-release
	}) {
		t.Fatal("first SubmitSerialized rejected")
	}
	<-started
	if p.SubmitSerialized("k", func() {}) {
		t.Fatal("second SubmitSerialized accepted while first in flight")
	}
	if !p.SubmitSerialized("other", func() {}) {
		t.Fatal("different key rejected")
	}
	close(release)

	deadline := time.After(2 * time.Second)
	for {
		done := make(chan struct{})
		if p.SubmitSerialized("k", func() { close(done) }) {
			<-done
			return
		}
		select {
		case <-deadline:
			t.Fatal("key never released after job finished")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSubmitDelayed(t *testing.T) {
	t.Parallel()
	p := New(1)
	defer p.Stop()

	var ran atomic.Bool
	done := make(chan struct{})
	p.SubmitDelayed(50*time.Millisecond, func() {
		ran.Store(true)
		close(done)
	})
	if ran.Load() {
		t.Fatal("delayed job ran immediately")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job never ran")
	}
}

func TestSubmitAtPast(t *testing.T) {
	t.Parallel()
	p := New(1)
	defer p.Stop()

	done := make(chan struct{})
	p.SubmitAt(time.Now().Add(-time.Second), func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job with past deadline never ran")
	}
}

func TestStopAbandonsWaiting(t *testing.T) {
	t.Parallel()
	p := New(1)
	var ran atomic.Bool
	p.SubmitDelayed(time.Hour, func() { ran.Store(true) })
	p.Stop()
	if ran.Load() {
		t.Fatal("job scheduled an hour out ran during Stop")
	}
}
