// Package attention implements the cognitive graph's attention cycle:
// salience computation, softmax-like weight allocation, and focus
// tracking, reproduced from the attention-router reference algorithm.
package attention

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cognitive"
	"github.com/denizumutdereli/cognidb/pkg/memstore"
)

// memorySalienceThreshold discards memories whose salience falls at or
// below this value before they ever reach the weight/focus stages.
const memorySalienceThreshold = 0.1

// maxHistory bounds the attention-shift history to the most recent entries.
const maxHistory = 1000

const (
	thoughtRecencyTau = 60 * time.Second
	memoryRecencyTau  = 3600 * time.Second
)

// Shift records one change of focus.
type Shift struct {
	From      string
	To        string
	Timestamp time.Time
	Salience  float64
}

// Router runs the three-phase attention cycle (salience, allocation,
// focus) over a cognitive graph's active thoughts and stored memories.
type Router struct {
	graph *cognitive.Graph

	mu       sync.RWMutex
	salience map[string]float64
	weights  map[string]float64
	focus    string
	hasFocus bool
	history  []Shift
}

// New creates a Router over graph.
func New(graph *cognitive.Graph) *Router {
	return &Router{
		graph:    graph,
		salience: make(map[string]float64),
		weights:  make(map[string]float64),
	}
}

// Route runs one full attention cycle: compute salience, allocate
// weights, then update focus. It never returns an error; any malformed
// input collapses to zero salience rather than aborting the cycle.
func (r *Router) Route() {
	salience := r.computeSalience()
	weights := allocate(salience)
	shift := r.updateFocus(salience)

	r.mu.Lock()
	r.salience = salience
	r.weights = weights
	if shift != nil {
		r.history = append(r.history, *shift)
		for len(r.history) > maxHistory {
			r.history = r.history[1:]
		}
	}
	r.mu.Unlock()
}

func thoughtKey(id int64) string { return "thought:" + itoa(id) }
func memoryKey(id int64) string  { return "memory:" + itoa(id) }

func itoa(id int64) string {
	// avoids strconv import churn from teacher style elsewhere; kept simple
	if id == 0 {
		return "0"
	}
	neg := id < 0
	if neg {
		id = -id
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (r *Router) computeSalience() map[string]float64 {
	out := make(map[string]float64)

	now := time.Now()
	attentionSpan := r.graph.GetTrait(cognitive.TraitAttentionSpan)
	curiosity := r.graph.GetTrait(cognitive.TraitCuriosity)
	memoryCapacity := r.graph.GetTrait(cognitive.TraitMemoryCapacity)

	for _, t := range r.graph.ActiveThoughts() {
		out[thoughtKey(t.ID)] = thoughtSalience(t, now, attentionSpan, curiosity)
	}

	memories, err := r.graph.AllMemories()
	if err == nil {
		for _, m := range memories {
			score := memorySalience(m, now, memoryCapacity)
			if score > memorySalienceThreshold {
				out[memoryKey(m.ID)] = score
			}
		}
	}

	return out
}

func safe01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// saturatingSub mirrors u64::saturating_sub: a later-than-now timestamp
// (clock skew, or a pre-dated field) never yields a negative delta.
func saturatingSub(now, t time.Time) time.Duration {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

func thoughtSalience(t *cognitive.Thought, now time.Time, attentionSpan, curiosity float64) float64 {
	priority := safe01(t.Priority)

	delta := saturatingSub(now, t.UpdatedAt)
	recency := safe01(1.0 / (1.0 + delta.Seconds()/thoughtRecencyTau.Seconds()))

	assocScore := math.Log(float64(len(t.Associations))+1) / 5.0
	accessScore := math.Log(float64(len(t.MemoryAccesses))+1) / 10.0

	result := priority*0.4 + recency*0.3 + assocScore*0.2 + accessScore*0.1
	result *= 0.7 + attentionSpan*0.3
	result *= 1.0 + curiosity*0.1

	return safe01(result)
}

func memorySalience(m *memstore.Memory, now time.Time, memoryCapacity float64) float64 {
	strength := safe01(m.Strength)

	delta := saturatingSub(now, m.LastAccessed)
	recency := safe01(1.0 / (1.0 + delta.Seconds()/memoryRecencyTau.Seconds()))

	accessScore := math.Log(float64(m.AccessCount)+1) / 10.0
	assocScore := math.Log(float64(len(m.Associations))+1) / 5.0

	result := strength*0.4 + recency*0.3 + accessScore*0.2 + assocScore*0.1
	result *= 0.7 + memoryCapacity*0.3

	return safe01(result)
}

// allocate normalizes salience scores into [0,1] weights that sum to (at
// most) 1, filtering non-finite or negative inputs. When every score is
// filtered to zero, every id is left unassigned.
func allocate(salience map[string]float64) map[string]float64 {
	weights := make(map[string]float64, len(salience))

	var total float64
	for _, s := range salience {
		total += sanitizeSalience(s)
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return weights
	}

	for id, s := range salience {
		weights[id] = safe01(sanitizeSalience(s) / total)
	}
	return weights
}

func sanitizeSalience(s float64) float64 {
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return 0
	}
	return s
}

// updateFocus selects the argmax of salience, breaking ties toward the
// currently-focused id if present and otherwise the lexicographically
// smallest id, and returns a Shift if focus changed.
func (r *Router) updateFocus(salience map[string]float64) *Shift {
	r.mu.RLock()
	prevFocus := r.focus
	hadFocus := r.hasFocus
	r.mu.RUnlock()

	newFocus, newScore, found := argmaxSalience(salience, prevFocus, hadFocus)

	r.mu.Lock()
	defer r.mu.Unlock()

	if found == hadFocus && found && newFocus == r.focus {
		return nil
	}
	if !found && !hadFocus {
		return nil
	}

	from := ""
	if hadFocus {
		from = r.focus
	}
	r.focus = newFocus
	r.hasFocus = found

	if !found {
		return nil
	}

	return &Shift{From: from, To: newFocus, Timestamp: time.Now(), Salience: newScore}
}

func argmaxSalience(salience map[string]float64, prevFocus string, hadFocus bool) (string, float64, bool) {
	if len(salience) == 0 {
		return "", 0, false
	}

	ids := make([]string, 0, len(salience))
	for id := range salience {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := ids[0]
	bestScore := salience[best]
	for _, id := range ids[1:] {
		score := salience[id]
		switch compareSalience(score, bestScore) {
		case 1:
			best, bestScore = id, score
		case 0:
			if hadFocus && id == prevFocus {
				best, bestScore = id, score
			}
		}
	}
	return best, bestScore, true
}

// compareSalience returns 1 if a>b, -1 if a<b, 0 if equal or either is NaN.
func compareSalience(a, b float64) int {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0
	}
	if a > b {
		return 1
	}
	if a < b {
		return -1
	}
	return 0
}

// CurrentFocus returns the currently focused id and whether one is set.
func (r *Router) CurrentFocus() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focus, r.hasFocus
}

// Weights returns a copy of the current attention-weight allocation.
func (r *Router) Weights() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.weights))
	for k, v := range r.weights {
		out[k] = v
	}
	return out
}

// Salience returns a copy of the current salience scores.
func (r *Router) Salience() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.salience))
	for k, v := range r.salience {
		out[k] = v
	}
	return out
}

// History returns a copy of the bounded attention-shift history.
func (r *Router) History() []Shift {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Shift, len(r.history))
	copy(out, r.history)
	return out
}
