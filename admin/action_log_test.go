package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"chflow"
	"chflow/action"
)

func TestActionLog_RecordExtractsKey(t *testing.T) {
	l := NewActionLog(10)

	init := chflow.GetDetailsInit(42)
	done := action.New(action.GetDetailsDone, chflow.Wrap(chflow.CategoryDetails, "42", nil, errors.New("boom"))).
		WithRequestID(init.RequestID).
		WithError(true)
	reg := action.New(action.RegisterDone, chflow.MutationResult{Kind: chflow.MutationRegister, Key: "5"})

	l.Record(init)
	l.Record(done)
	l.Record(reg)

	got := l.List(ActionFilter{})
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// newest first
	if got[0].Type != string(action.RegisterDone) || got[0].Key != "5" {
		t.Errorf("unexpected newest entry %+v", got[0])
	}
	if got[1].Category != "details" || got[1].Error != "boom" || !got[1].Failed {
		t.Errorf("unexpected DONE entry %+v", got[1])
	}
	if got[2].Key != "42" || got[2].ID != 1 {
		t.Errorf("unexpected INIT entry %+v", got[2])
	}
}

func TestActionLog_Filter(t *testing.T) {
	l := NewActionLog(0)
	a := chflow.GetDetailsInit(1)
	b := chflow.GetDetailsInit(2)
	l.Record(a)
	l.Record(b)
	l.Record(chflow.GetSubmissionsInit(1))

	tests := []struct {
		name   string
		filter ActionFilter
		want   int
	}{
		{"all", ActionFilter{}, 3},
		{"type", ActionFilter{Type: string(action.GetDetailsInit)}, 2},
		{"key", ActionFilter{Key: "1"}, 2},
		{"request", ActionFilter{RequestID: b.RequestID}, 1},
		{"type and key", ActionFilter{Type: string(action.GetDetailsInit), Key: "1"}, 1},
		{"none", ActionFilter{Key: "9"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if n := l.Count(tt.filter); n != tt.want {
				t.Errorf("Count = %d, want %d", n, tt.want)
			}
			if n := len(l.List(tt.filter)); n != tt.want {
				t.Errorf("len(List) = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestActionLog_Pagination(t *testing.T) {
	l := NewActionLog(0)
	for i := 0; i < 5; i++ {
		l.Record(chflow.FetchResultsInit(i))
	}

	page := l.List(ActionFilter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].Key != "3" || page[1].Key != "2" {
		t.Errorf("unexpected page %+v", page)
	}
	if out := l.List(ActionFilter{Offset: 10}); len(out) != 0 {
		t.Errorf("expected empty page, got %d", len(out))
	}
	// negative offsets start at the newest entry
	if out := l.List(ActionFilter{Limit: 1, Offset: -3}); len(out) != 1 || out[0].Key != "4" {
		t.Errorf("unexpected page for negative offset %+v", out)
	}
}

func TestActionLog_HandlerOnBus(t *testing.T) {
	l := NewActionLog(0)
	bus := action.NewMemoryBus()
	if err := bus.SubscribeAll(l.Handler()); err != nil {
		t.Fatal(err)
	}

	bus.Dispatch(context.Background(), chflow.FetchCheckpointsInit(7))
	bus.Dispatch(context.Background(), chflow.UploadProgress(0.5))

	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
	types := l.Types()
	if len(types) != 2 || types[0] != string(action.FetchCheckpointsInit) {
		t.Errorf("unexpected types %v", types)
	}
}

// ============================================================================
// Property Tests
// ============================================================================

func TestProperty_ActionLogBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(rt, "capacity")
		n := rapid.IntRange(0, 60).Draw(rt, "n")

		l := NewActionLog(capacity)
		for i := 0; i < n; i++ {
			l.Record(chflow.GetDetailsInit(i))
		}

		want := n
		if want > capacity {
			want = capacity
		}
		if l.Len() != want {
			rt.Fatalf("expected %d entries, got %d", want, l.Len())
		}
		if n > 0 {
			newest := l.List(ActionFilter{Limit: 1})[0]
			if newest.Key != fmt.Sprint(n-1) || newest.ID != int64(n) {
				rt.Fatalf("unexpected newest entry %+v", newest)
			}
		}
	})
}
