package attention

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cognitive"
	"github.com/denizumutdereli/cognidb/pkg/memstore"
)

func newTestRouter(t *testing.T) (*Router, *cognitive.Graph) {
	t.Helper()
	store, err := memstore.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("memstore.NewStore: %v", err)
	}
	g := cognitive.NewGraph(store)
	return New(g), g
}

func TestRouteFocusesHighestPriorityActiveThought(t *testing.T) {
	r, g := newTestRouter(t)
	g.CreateThought(json.RawMessage(`{}`), 0.1)
	high := g.CreateThought(json.RawMessage(`{}`), 0.9)

	r.Route()

	focus, ok := r.CurrentFocus()
	if !ok {
		t.Fatal("expected a focus to be set")
	}
	if focus != thoughtKey(high.ID) {
		t.Errorf("focus = %q, want %q", focus, thoughtKey(high.ID))
	}
}

func TestRouteRecordsShiftOnFocusChange(t *testing.T) {
	r, g := newTestRouter(t)
	g.CreateThought(json.RawMessage(`{}`), 0.2)
	r.Route()
	if len(r.History()) != 1 {
		t.Fatalf("History() len = %d, want 1 after first focus acquisition", len(r.History()))
	}

	high := g.CreateThought(json.RawMessage(`{}`), 0.95)
	r.Route()

	hist := r.History()
	if len(hist) != 2 {
		t.Fatalf("History() len = %d, want 2 after a focus change", len(hist))
	}
	if hist[1].To != thoughtKey(high.ID) {
		t.Errorf("second shift To = %q, want %q", hist[1].To, thoughtKey(high.ID))
	}
	if hist[1].From == "" {
		t.Error("expected From to be set on the second shift")
	}
}

func TestRouteIgnoresLowSalienceMemories(t *testing.T) {
	r, g := newTestRouter(t)
	// a memory with near-zero strength/recency/access/associations should
	// fall at or below the 0.1 threshold and never enter salience/weights.
	g.StoreMemory(&memstore.Memory{MemoryType: memstore.Episodic, Content: "x", Strength: 0, LastAccessed: time.Now().Add(-72 * time.Hour)})

	r.Route()

	sal := r.Salience()
	for id := range sal {
		if id[:6] == "memory" {
			t.Errorf("expected low-salience memory to be excluded, got %q in salience map", id)
		}
	}
}

func TestAllocateNormalizesToSumOne(t *testing.T) {
	salience := map[string]float64{"a": 0.3, "b": 0.3, "c": 0.4}
	weights := allocate(salience)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("sum of weights = %v, want ~1.0", sum)
	}
}

func TestAllocateAllUnassignedWhenTotalIsZero(t *testing.T) {
	salience := map[string]float64{"a": 0, "b": -1, "c": math.NaN()}
	weights := allocate(salience)
	if len(weights) != 0 {
		t.Errorf("weights = %v, want empty when total salience is zero", weights)
	}
}

func TestArgmaxTieBreaksToPreviousFocus(t *testing.T) {
	salience := map[string]float64{"a": 0.9, "b": 0.9}
	id, _, found := argmaxSalience(salience, "b", true)
	if !found || id != "b" {
		t.Errorf("argmaxSalience = %q, want tie broken to previous focus %q", id, "b")
	}
}

func TestArgmaxTieBreaksToLexicographicallySmallest(t *testing.T) {
	salience := map[string]float64{"zeta": 0.9, "alpha": 0.9}
	id, _, found := argmaxSalience(salience, "", false)
	if !found || id != "alpha" {
		t.Errorf("argmaxSalience = %q, want lexicographically smallest %q", id, "alpha")
	}
}

func TestThoughtSalienceClampsOutOfRangeInputs(t *testing.T) {
	t1 := &cognitive.Thought{Priority: math.NaN(), UpdatedAt: time.Now()}
	score := thoughtSalience(t1, time.Now(), 0, 0)
	if score < 0 || score > 1 {
		t.Errorf("thoughtSalience = %v, want in [0,1]", score)
	}
}

func TestSaturatingSubNeverNegative(t *testing.T) {
	future := time.Now().Add(time.Hour)
	d := saturatingSub(time.Now(), future)
	if d < 0 {
		t.Errorf("saturatingSub = %v, want clamped to >=0", d)
	}
}
