package view

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterRejectsDuplicateName(t *testing.T) {
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error { return nil })
	v := &View{Name: "v1", Strategy: Manual}
	if err := m.Register(v); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := m.Register(&View{Name: "v1", Strategy: Manual}); err == nil {
		t.Error("expected duplicate name registration to fail")
	}
}

func TestIntervalViewGetsNextRefreshOnRegister(t *testing.T) {
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error { return nil })
	v := &View{Name: "iv", Strategy: Interval, IntervalSecs: 60}
	if err := m.Register(v); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if v.NextRefresh().IsZero() {
		t.Error("interval view should have a non-zero next_refresh after registration")
	}
}

func TestIntervalRequiresPositiveSeconds(t *testing.T) {
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error { return nil })
	v := &View{Name: "bad", Strategy: Interval, IntervalSecs: 0}
	if err := m.Register(v); err == nil {
		t.Error("expected error for non-positive interval_secs")
	}
}

func TestManualAndOnDemandNeverAutoSchedule(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	m.Register(&View{Name: "manual", Strategy: Manual})
	m.Register(&View{Name: "ondemand", Strategy: OnDemand})

	m.Tick(context.Background())
	m.NotifyCommit(context.Background(), 0)
	m.NotifyWrite(context.Background(), 0)

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected 0 refresh calls for manual/on_demand views, got %d", calls)
	}
}

func TestTickRefreshesDueIntervalViews(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	v := &View{Name: "iv", Strategy: Interval, IntervalSecs: 60}
	m.Register(v)

	// force it due immediately
	v.mu.Lock()
	v.nextRefresh = time.Now().Add(-time.Second)
	v.mu.Unlock()

	m.Tick(context.Background())
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 refresh call, got %d", calls)
	}
	if v.NextRefresh().Before(time.Now()) {
		t.Error("next_refresh should have been pushed into the future after refresh")
	}
}

func TestNotifyCommitFansOutOnlyMatchingSourceTables(t *testing.T) {
	var mu sync.Mutex
	var refreshed []string
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error {
		mu.Lock()
		refreshed = append(refreshed, v.Name)
		mu.Unlock()
		return nil
	})
	m.Register(&View{Name: "matches", Strategy: OnCommit, SourceTables: []int{5}})
	m.Register(&View{Name: "other", Strategy: OnCommit, SourceTables: []int{9}})
	m.Register(&View{Name: "wrong-strategy", Strategy: Continuous, SourceTables: []int{5}})

	m.NotifyCommit(context.Background(), 5)

	mu.Lock()
	defer mu.Unlock()
	if len(refreshed) != 1 || refreshed[0] != "matches" {
		t.Errorf("refreshed = %v, want [matches]", refreshed)
	}
}

func TestNotifyWriteOnlyIncrementalWhenViewMarkedIncremental(t *testing.T) {
	var gotIncremental bool
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error {
		gotIncremental = incremental
		return nil
	})
	m.Register(&View{Name: "full", Strategy: Continuous, SourceTables: []int{1}, Incremental: false})

	m.NotifyWrite(context.Background(), 1)
	if gotIncremental {
		t.Error("expected incremental=false when view.Incremental is false")
	}
}

func TestRefreshFailureDoesNotPanicOrBlockSiblings(t *testing.T) {
	var calls int32
	m := NewManager(func(ctx context.Context, v *View, incremental bool) error {
		atomic.AddInt32(&calls, 1)
		if v.Name == "failing" {
			return errRefresh
		}
		return nil
	})
	m.Register(&View{Name: "failing", Strategy: OnCommit, SourceTables: []int{1}})
	m.Register(&View{Name: "fine", Strategy: OnCommit, SourceTables: []int{1}})

	m.NotifyCommit(context.Background(), 1)
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected both views refreshed despite one failing, got %d calls", calls)
	}
}

var errRefresh = &testRefreshErr{}

type testRefreshErr struct{}

func (e *testRefreshErr) Error() string { return "refresh failed" }
