package thoughtproc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/denizumutdereli/cognidb/pkg/cognitive"
	"github.com/denizumutdereli/cognidb/pkg/memstore"
)

func newTestGraph(t *testing.T) *cognitive.Graph {
	t.Helper()
	store, err := memstore.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("memstore.NewStore: %v", err)
	}
	return cognitive.NewGraph(store)
}

func TestProcessThoughtCompletesWithResult(t *testing.T) {
	g := newTestGraph(t)
	p := NewProcessor(g, 4)
	th := g.CreateThought(json.RawMessage(`{"x":1}`), 0.5)

	_, err := p.ProcessThought(th.ID, func(ctx ThoughtProcessingContext, content json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"x":2}`), nil
	})
	if err != nil {
		t.Fatalf("ProcessThought: %v", err)
	}

	got, err := g.GetThought(th.ID)
	if err != nil {
		t.Fatalf("GetThought: %v", err)
	}
	if got.State != cognitive.Completed {
		t.Errorf("State = %v, want Completed", got.State)
	}
	if string(got.Content) != `{"x":2}` {
		t.Errorf("Content = %s, want updated content", got.Content)
	}
}

func TestProcessThoughtRejectsBeyondMaxParallel(t *testing.T) {
	g := newTestGraph(t)
	p := NewProcessor(g, 1)
	th1 := g.CreateThought(json.RawMessage(`{}`), 0.5)
	th2 := g.CreateThought(json.RawMessage(`{}`), 0.5)

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.ProcessThought(th1.ID, func(ctx ThoughtProcessingContext, content json.RawMessage) (json.RawMessage, error) {
			close(started)
			<-release
			return content, nil
		})
	}()
	<-started

	if _, err := p.ProcessThought(th2.ID, func(ctx ThoughtProcessingContext, content json.RawMessage) (json.RawMessage, error) {
		return content, nil
	}); err == nil {
		t.Error("expected an error when max parallel thoughts is reached")
	}

	close(release)
	wg.Wait()
}

func TestProcessThoughtSpawnsChildLinkedToParent(t *testing.T) {
	g := newTestGraph(t)
	p := NewProcessor(g, 4)
	parent := g.CreateThought(json.RawMessage(`{}`), 0.5)

	var childID int64
	spawned, err := p.ProcessThought(parent.ID, func(ctx ThoughtProcessingContext, content json.RawMessage) (json.RawMessage, error) {
		id, err := ctx.Spawn(SpawnRequest{Content: json.RawMessage(`{"child":true}`), Priority: 0.3})
		if err != nil {
			return nil, err
		}
		childID = id
		return content, nil
	})
	if err != nil {
		t.Fatalf("ProcessThought: %v", err)
	}
	if len(spawned) != 1 || spawned[0] != childID {
		t.Errorf("spawned = %v, want [%d]", spawned, childID)
	}

	child, err := g.GetThought(childID)
	if err != nil {
		t.Fatalf("GetThought(child): %v", err)
	}
	if !child.HasParent || child.ParentID != parent.ID {
		t.Errorf("child.ParentID = %d (HasParent=%v), want %d", child.ParentID, child.HasParent, parent.ID)
	}
}

func TestProcessThoughtCancelledConcurrentlySkipsWriteback(t *testing.T) {
	g := newTestGraph(t)
	p := NewProcessor(g, 4)
	th := g.CreateThought(json.RawMessage(`{"orig":true}`), 0.5)

	_, err := p.ProcessThought(th.ID, func(ctx ThoughtProcessingContext, content json.RawMessage) (json.RawMessage, error) {
		if err := g.CancelThought(th.ID); err != nil {
			t.Fatalf("CancelThought: %v", err)
		}
		return json.RawMessage(`{"orig":false}`), nil
	})
	if err != nil {
		t.Fatalf("ProcessThought: %v", err)
	}

	got, err := g.GetThought(th.ID)
	if err != nil {
		t.Fatalf("GetThought: %v", err)
	}
	if got.State != cognitive.Cancelled {
		t.Errorf("State = %v, want Cancelled (writeback should have been skipped)", got.State)
	}
	if string(got.Content) != `{"orig":true}` {
		t.Errorf("Content = %s, want original content preserved", got.Content)
	}
}

func TestProcessThoughtsParallelPreservesOrder(t *testing.T) {
	g := newTestGraph(t)
	p := NewProcessor(g, 4)
	var ids []int64
	for i := 0; i < 5; i++ {
		th := g.CreateThought(json.RawMessage(`{}`), 0.5)
		ids = append(ids, th.ID)
	}

	results, err := p.ProcessThoughtsParallel(context.Background(), ids, func(content json.RawMessage) (json.RawMessage, error) {
		return content, nil
	})
	if err != nil {
		t.Fatalf("ProcessThoughtsParallel: %v", err)
	}
	if len(results) != len(ids) {
		t.Fatalf("results len = %d, want %d", len(results), len(ids))
	}
	for i, id := range ids {
		if results[i].ID != id {
			t.Errorf("results[%d].ID = %d, want %d (order not preserved)", i, results[i].ID, id)
		}
	}
}

func TestSchedulerNextReturnsHighestPriorityFirst(t *testing.T) {
	s := NewScheduler()
	s.Schedule(1, 0.2)
	s.Schedule(2, 0.9)
	s.Schedule(3, 0.5)

	id, ok := s.Next()
	if !ok || id != 2 {
		t.Fatalf("Next() = (%d,%v), want the highest-priority id 2", id, ok)
	}
	id, ok = s.Next()
	if !ok || id != 3 {
		t.Fatalf("Next() = (%d,%v), want the next-highest-priority id 3", id, ok)
	}
	id, ok = s.Next()
	if !ok || id != 1 {
		t.Fatalf("Next() = (%d,%v), want the lowest-priority id 1 last", id, ok)
	}
	if _, ok := s.Next(); ok {
		t.Error("expected Next() to report empty once drained")
	}
}
