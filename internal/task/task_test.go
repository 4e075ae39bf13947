package task

import (
	"errors"
	"testing"
	"time"

	"taskwell/internal/access"
)

func TestNewValidatesShape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		schedule string
		runAt    time.Time
		wantErr  bool
	}{
		{name: "recurrent", schedule: "* * * * *"},
		{name: "one-time", runAt: time.Now()},
		{name: "both", schedule: "* * * * *", runAt: time.Now(), wantErr: true},
		{name: "neither", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(1, Settings{HandlerID: "h", Schedule: tt.schedule, RunAt: tt.runAt})
			if tt.wantErr && !errors.Is(err, ErrBadSchedule) {
				t.Fatalf("err = %v, want ErrBadSchedule", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTryStartEndRunOneTime(t *testing.T) {
	t.Parallel()
	tk, err := New(1, Settings{HandlerID: "h", RunAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if !tk.TryStart() {
		t.Fatal("TryStart failed on a pending task")
	}
	if tk.TryStart() {
		t.Fatal("TryStart succeeded on a running task")
	}
	done := tk.RunDone()
	if done == nil {
		t.Fatal("RunDone = nil while running")
	}

	now := time.Now()
	oneTime, system := tk.EndRun(now)
	if !oneTime || system {
		t.Fatalf("EndRun = (%v, %v), want (true, false)", oneTime, system)
	}
	select {
	case <-done:
	default:
		t.Fatal("run-done channel not closed after EndRun")
	}
	if tk.State() != Completed {
		t.Fatalf("state = %v, want completed", tk.State())
	}
	if !tk.LastRun().Equal(now) {
		t.Fatalf("LastRun = %v, want %v", tk.LastRun(), now)
	}
	if tk.TryStart() {
		t.Fatal("TryStart succeeded on a completed task")
	}
}

func TestTryStartEndRunRecurrent(t *testing.T) {
	t.Parallel()
	tk, _ := New(2, Settings{HandlerID: "h", Schedule: "* * * * *"})
	if !tk.TryStart() {
		t.Fatal("TryStart failed")
	}
	oneTime, _ := tk.EndRun(time.Now())
	if oneTime {
		t.Fatal("recurrent task reported one-time")
	}
	if tk.State() != Pending {
		t.Fatalf("state = %v, want pending after recurrent run", tk.State())
	}
	if !tk.TryStart() {
		t.Fatal("recurrent task not claimable again after EndRun")
	}
}

func TestDisabledAndDeletedBlockStart(t *testing.T) {
	t.Parallel()
	tk, _ := New(3, Settings{HandlerID: "h", RunAt: time.Now()})
	tk.SetDisabled(true)
	if tk.TryStart() {
		t.Fatal("TryStart succeeded on a disabled task")
	}
	tk.SetDisabled(false)
	if !tk.MarkDeleted() {
		t.Fatal("first MarkDeleted = false")
	}
	if tk.MarkDeleted() {
		t.Fatal("second MarkDeleted = true")
	}
	if tk.TryStart() {
		t.Fatal("TryStart succeeded on a deleted task")
	}
}

func TestApplyResetsCompleted(t *testing.T) {
	t.Parallel()
	tk, _ := New(4, Settings{HandlerID: "h", RunAt: time.Now().Add(-time.Minute)})
	tk.TryStart()
	tk.EndRun(time.Now())
	if tk.State() != Completed {
		t.Fatal("task not completed")
	}
	err := tk.Apply(Settings{HandlerID: "h", RunAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if tk.State() != Pending {
		t.Fatalf("state = %v, want pending after apply", tk.State())
	}
}

func TestAccessibleUsesCurrentOwner(t *testing.T) {
	t.Parallel()
	tk, _ := New(5, Settings{HandlerID: "h", RunAt: time.Now(), Owner: 3})
	if !tk.Accessible(3, access.ManageOwnTasks) {
		t.Fatal("owner denied")
	}
	if tk.Accessible(4, access.ManageOwnTasks) {
		t.Fatal("foreign user allowed")
	}
	if err := tk.Apply(Settings{HandlerID: "h", RunAt: time.Now(), Owner: 4}); err != nil {
		t.Fatal(err)
	}
	if tk.Accessible(3, access.ManageOwnTasks) {
		t.Fatal("previous owner still allowed after update")
	}
}

func TestRestoreCompleted(t *testing.T) {
	t.Parallel()
	last := time.Unix(1700000000, 0)
	tk, err := Restore(6, Settings{HandlerID: "h", RunAt: last.Add(-time.Hour)}, true, last)
	if err != nil {
		t.Fatal(err)
	}
	if tk.State() != Completed {
		t.Fatalf("state = %v, want completed", tk.State())
	}
	if !tk.LastRun().Equal(last) {
		t.Fatalf("LastRun = %v, want %v", tk.LastRun(), last)
	}
}
