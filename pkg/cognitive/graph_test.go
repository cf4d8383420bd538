package cognitive

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/memstore"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	store, err := memstore.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("memstore.NewStore: %v", err)
	}
	return NewGraph(store)
}

func TestCreateThoughtClampsPriority(t *testing.T) {
	g := newTestGraph(t)
	th := g.CreateThought(json.RawMessage(`{}`), 5.0)
	if th.Priority != 1 {
		t.Errorf("Priority = %v, want clamped to 1", th.Priority)
	}
	th2 := g.CreateThought(json.RawMessage(`{}`), math.NaN())
	if th2.Priority != 0 {
		t.Errorf("Priority = %v, want NaN collapsed to 0", th2.Priority)
	}
}

func TestCompleteThoughtRequiresActive(t *testing.T) {
	g := newTestGraph(t)
	th := g.CreateThought(json.RawMessage(`{}`), 0.5)
	if err := g.CompleteThought(th.ID); err != nil {
		t.Fatalf("CompleteThought: %v", err)
	}
	if err := g.CompleteThought(th.ID); err == nil {
		t.Error("expected error completing an already-completed thought")
	}
}

func TestCancelThoughtIsTerminalFromAnyState(t *testing.T) {
	g := newTestGraph(t)
	th := g.CreateThought(json.RawMessage(`{}`), 0.5)
	if err := g.CancelThought(th.ID); err != nil {
		t.Fatalf("CancelThought: %v", err)
	}
	got, err := g.GetThought(th.ID)
	if err != nil {
		t.Fatalf("GetThought: %v", err)
	}
	if got.State != Cancelled {
		t.Errorf("State = %v, want Cancelled", got.State)
	}
}

func TestCoActivatedThoughtsGainAssociations(t *testing.T) {
	g := newTestGraph(t)
	t1 := g.CreateThought(json.RawMessage(`{}`), 0.5)
	t2 := g.CreateThought(json.RawMessage(`{}`), 0.5)

	got1, _ := g.GetThought(t1.ID)
	got2, _ := g.GetThought(t2.ID)

	if !containsID(got1.Associations, t2.ID) {
		t.Errorf("thought %d associations = %v, want to include %d", t1.ID, got1.Associations, t2.ID)
	}
	if !containsID(got2.Associations, t1.ID) {
		t.Errorf("thought %d associations = %v, want to include %d", t2.ID, got2.Associations, t1.ID)
	}
}

func containsID(ids []int64, id int64) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func TestStoreMemoryClampsStrengthAndStampsTimestamps(t *testing.T) {
	g := newTestGraph(t)
	m := &memstore.Memory{MemoryType: memstore.Episodic, Content: "x", Strength: 3}
	if err := g.StoreMemory(m); err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}
	if m.Strength != 1 {
		t.Errorf("Strength = %v, want clamped to 1", m.Strength)
	}
	if m.CreatedAt.IsZero() || m.LastAccessed.IsZero() {
		t.Error("expected CreatedAt/LastAccessed to be stamped")
	}
}

func TestGetMemoryIncrementsAccessCount(t *testing.T) {
	g := newTestGraph(t)
	m := &memstore.Memory{MemoryType: memstore.Episodic, Content: "x"}
	g.StoreMemory(m)

	got, err := g.GetMemory(m.ID)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
	got2, _ := g.GetMemory(m.ID)
	if got2.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", got2.AccessCount)
	}
}

func TestRetrieveMemoriesFiltersByType(t *testing.T) {
	g := newTestGraph(t)
	g.StoreMemory(&memstore.Memory{MemoryType: memstore.Episodic, Content: "e"})
	g.StoreMemory(&memstore.Memory{MemoryType: memstore.Semantic, Content: "s"})

	results, err := g.RetrieveMemories(MemoryFilter{Type: memstore.Semantic})
	if err != nil {
		t.Fatalf("RetrieveMemories: %v", err)
	}
	if len(results) != 1 || results[0].MemoryType != memstore.Semantic {
		t.Errorf("RetrieveMemories(Semantic) = %+v, want one semantic memory", results)
	}
}

func TestTraitSetterClampsAndCollapsesNaN(t *testing.T) {
	g := newTestGraph(t)
	g.SetTrait(TraitCuriosity, 2.0)
	if g.GetTrait(TraitCuriosity) != 1 {
		t.Errorf("GetTrait = %v, want clamped to 1", g.GetTrait(TraitCuriosity))
	}
	g.SetTrait(TraitCuriosity, math.Inf(1))
	if g.GetTrait(TraitCuriosity) != 0 {
		t.Errorf("GetTrait = %v, want Inf collapsed to 0", g.GetTrait(TraitCuriosity))
	}
}

func TestSubscribeEventsReceivesThoughtCreated(t *testing.T) {
	g := newTestGraph(t)
	ch, unsubscribe := g.SubscribeEvents(4)
	defer unsubscribe()

	g.CreateThought(json.RawMessage(`{}`), 0.5)

	select {
	case evt := <-ch:
		if evt.Type != ThoughtCreated {
			t.Errorf("event type = %v, want ThoughtCreated", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ThoughtCreated event")
	}
}

func TestPublishDropsOnFullChannelAndCounts(t *testing.T) {
	g := newTestGraph(t)
	ch, unsubscribe := g.SubscribeEvents(1)
	defer unsubscribe()

	before := g.DroppedEventCount()
	// fill the buffer, then publish two more without reading
	g.CreateThought(json.RawMessage(`{}`), 0.1)
	g.CreateThought(json.RawMessage(`{}`), 0.1)
	g.CreateThought(json.RawMessage(`{}`), 0.1)

	if g.DroppedEventCount() <= before {
		t.Error("expected DroppedEventCount to increase when the subscriber channel is full")
	}
	<-ch // drain the one buffered event so the test doesn't leak a goroutine expectation
}
