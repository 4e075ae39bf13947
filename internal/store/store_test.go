package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecord(id uint64) Record {
	return Record{
		ID:        id,
		HandlerID: "housekeeping",
		Schedule:  "0 2 * * *",
		Data:      `{"target":"all"}`,
		Owner:     3,
		ObjectID:  17,
		Comments:  "nightly cleanup",
		Key:       "batch-1",
		System:    true,
		LastRun:   time.Unix(1700000000, 0),
	}
}

// backends that can run hermetically in a test.
func testBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := OpenSQLite(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	boltdb, err := OpenBolt(filepath.Join(dir, "tasks.bolt"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
		"bolt":   boltdb,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, st := range testBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() { st.Close() })
			ctx := context.Background()

			recurrent := sampleRecord(1)
			oneTime := Record{
				ID:        2,
				HandlerID: "httpcall",
				RunAt:     time.Unix(1800000000, 0),
				Data:      "payload",
				Owner:     5,
				Completed: true,
				LastRun:   time.Unix(1799999000, 0),
			}
			if err := st.Insert(ctx, recurrent); err != nil {
				t.Fatal(err)
			}
			if err := st.Insert(ctx, oneTime); err != nil {
				t.Fatal(err)
			}

			recs, err := st.LoadAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != 2 {
				t.Fatalf("LoadAll returned %d records, want 2", len(recs))
			}
			got := recs[0]
			want := recurrent
			if got.ID != want.ID || got.HandlerID != want.HandlerID || got.Schedule != want.Schedule ||
				got.Data != want.Data || got.Owner != want.Owner || got.ObjectID != want.ObjectID ||
				got.Comments != want.Comments || got.Key != want.Key ||
				got.System != want.System || got.Disabled != want.Disabled || got.Completed != want.Completed {
				t.Fatalf("round-trip mismatch:\n got %+v\nwant %+v", got, want)
			}
			if !got.LastRun.Equal(want.LastRun) {
				t.Fatalf("LastRun = %v, want %v", got.LastRun, want.LastRun)
			}
			if !recs[1].RunAt.Equal(oneTime.RunAt) {
				t.Fatalf("RunAt = %v, want %v", recs[1].RunAt, oneTime.RunAt)
			}
			if !recs[1].Completed {
				t.Fatal("Completed flag lost")
			}
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	for name, st := range testBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() { st.Close() })
			ctx := context.Background()

			rec := sampleRecord(1)
			if err := st.Insert(ctx, rec); err != nil {
				t.Fatal(err)
			}
			rec.Disabled = true
			rec.Comments = "paused"
			if err := st.Update(ctx, rec); err != nil {
				t.Fatal(err)
			}
			recs, err := st.LoadAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != 1 || !recs[0].Disabled || recs[0].Comments != "paused" {
				t.Fatalf("update not visible: %+v", recs)
			}

			if err := st.Update(ctx, sampleRecord(99)); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Update(missing) = %v, want ErrNotFound", err)
			}

			if err := st.Delete(ctx, 1); err != nil {
				t.Fatal(err)
			}
			recs, err = st.LoadAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != 0 {
				t.Fatalf("record still present after delete: %+v", recs)
			}
			// Deleting an absent row is not an error.
			if err := st.Delete(ctx, 1); err != nil {
				t.Fatalf("double delete: %v", err)
			}
		})
	}
}

func TestZeroTimesSurviveRoundTrip(t *testing.T) {
	for name, st := range testBackends(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() { st.Close() })
			ctx := context.Background()
			rec := Record{ID: 1, HandlerID: "h", Schedule: "* * * * *"}
			if err := st.Insert(ctx, rec); err != nil {
				t.Fatal(err)
			}
			recs, err := st.LoadAll(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !recs[0].RunAt.IsZero() {
				t.Fatalf("RunAt = %v, want zero", recs[0].RunAt)
			}
			if !recs[0].LastRun.IsZero() {
				t.Fatalf("LastRun = %v, want zero (never ran)", recs[0].LastRun)
			}
		})
	}
}
