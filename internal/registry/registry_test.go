package registry

import (
	"context"
	"testing"

	"taskwell/internal/access"
)

func TestRegisterLastWins(t *testing.T) {
	t.Parallel()
	r := New()
	calls := 0
	r.Register("h", HandlerFunc(func(context.Context, Params) error { calls += 10; return nil }), access.ManageOwnTasks)
	r.Register("h", HandlerFunc(func(context.Context, Params) error { calls++; return nil }), access.ManageOwnTasks)

	h, ok := r.Resolve("h")
	if !ok {
		t.Fatal("Resolve failed")
	}
	if err := h.Execute(context.Background(), Params{}); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (last registration should win)", calls)
	}
}

func TestResolveMissing(t *testing.T) {
	t.Parallel()
	r := New()
	if _, ok := r.Resolve("nope"); ok {
		t.Fatal("Resolve returned ok for an unregistered id")
	}
	if err := NoOp.Execute(context.Background(), Params{}); err != nil {
		t.Fatalf("NoOp returned error: %v", err)
	}
}

func TestEnumerateFiltersByRights(t *testing.T) {
	t.Parallel()
	r := New()
	noop := HandlerFunc(func(context.Context, Params) error { return nil })
	r.Register("system-only", noop, 0)
	r.Register("own", noop, access.ManageOwnTasks)
	r.Register("all", noop, access.ManageAllTasks)

	tests := []struct {
		name   string
		rights access.Rights
		want   []string
	}{
		{name: "no rights", rights: 0, want: nil},
		{name: "own only", rights: access.ManageOwnTasks, want: []string{"own"}},
		{name: "admin sees everything", rights: access.ManageAllTasks, want: []string{"all", "system-only"}},
		{name: "admin plus own", rights: access.ManageAllTasks | access.ManageOwnTasks, want: []string{"all", "own", "system-only"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := r.Enumerate(tt.rights)
			if len(got) != len(tt.want) {
				t.Fatalf("Enumerate = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Enumerate = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
