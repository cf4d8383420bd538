// Package cognitive implements the in-process thought/memory/experience
// graph: an id-keyed arena (entities are never referenced directly, only
// by id, so callers always go through the Graph), a co-activation
// association engine adapted from Hebbian synapse formation, and a
// non-blocking typed event stream.
package cognitive

import (
	"encoding/json"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/memstore"
)

// ThoughtState is a thought's lifecycle state. Active transitions only to
// Completed (processor finishes its closure) or Cancelled (terminal).
type ThoughtState int

const (
	Active ThoughtState = iota
	Completed
	Cancelled
)

func (s ThoughtState) String() string {
	switch s {
	case Active:
		return "active"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Thought is the cognitive graph's unit of in-flight processing.
type Thought struct {
	ID             int64
	ParentID       int64
	HasParent      bool
	Content        json.RawMessage
	Priority       float64
	State          ThoughtState
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Associations   []int64
	MemoryAccesses []int64
}

// Named trait scalars, used multiplicatively by the attention router.
const (
	TraitAttentionSpan  = "AttentionSpan"
	TraitMemoryCapacity = "MemoryCapacity"
	TraitCuriosity      = "Curiosity"
)

// coActivationWindow mirrors the 5s co-activation window used to decide
// whether two neurons "fired together" in the synapse-formation engine
// this graph's association logic is adapted from.
const coActivationWindow = 5 * time.Second

// EventType names a cognitive graph event.
type EventType int

const (
	ThoughtCreated EventType = iota
	ThoughtCompleted
	ThoughtCancelled
	MemoryStored
	ExperienceStored
	AttentionShifted
)

func (e EventType) String() string {
	switch e {
	case ThoughtCreated:
		return "thought_created"
	case ThoughtCompleted:
		return "thought_completed"
	case ThoughtCancelled:
		return "thought_cancelled"
	case MemoryStored:
		return "memory_stored"
	case ExperienceStored:
		return "experience_stored"
	case AttentionShifted:
		return "attention_shifted"
	default:
		return "unknown"
	}
}

// Event is one item on the graph's typed broadcast stream.
type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// MemoryFilter narrows RetrieveMemories. Zero-value fields are ignored.
type MemoryFilter struct {
	Type        memstore.MemoryType
	Tag         string
	MinStrength float64
}

// Graph holds thoughts/memories/experiences/traits in-process. All
// methods snapshot-then-act: data is collected under a read lock and
// released before calling out (event publish, store persistence).
type Graph struct {
	mu       sync.RWMutex
	nextID   int64
	thoughts map[int64]*Thought

	recentActivity map[int64]time.Time

	traitMu sync.RWMutex
	traits  map[string]float64

	store *memstore.Store

	subMu         sync.Mutex
	subscribers   map[int64]chan Event
	nextSubID     int64
	droppedEvents uint64
}

// NewGraph creates an empty graph backed by store for memory/experience
// persistence. store may be nil if persistence is not needed (tests).
func NewGraph(store *memstore.Store) *Graph {
	return &Graph{
		thoughts:       make(map[int64]*Thought),
		recentActivity: make(map[int64]time.Time),
		traits:         make(map[string]float64),
		store:          store,
		subscribers:    make(map[int64]chan Event),
	}
}

func (g *Graph) allocID() int64 {
	return atomic.AddInt64(&g.nextID, 1)
}

func clamp01(v float64) float64 {
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

// CreateThought adds a new Active thought and returns a value copy of it.
func (g *Graph) CreateThought(content json.RawMessage, priority float64) *Thought {
	now := time.Now()
	t := &Thought{
		ID:        g.allocID(),
		Content:   content,
		Priority:  clamp01(priority),
		State:     Active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	g.mu.Lock()
	g.thoughts[t.ID] = t
	coActivated := g.recordActivationLocked(t.ID, now)
	g.mu.Unlock()

	g.applyAssociations(t.ID, coActivated)
	g.mu.Lock()
	cp := *t
	g.mu.Unlock()
	g.publish(Event{Type: ThoughtCreated, Payload: cp, Timestamp: now})
	return &cp
}

// recordActivationLocked records id's activation at now and returns other
// ids activated within the co-activation window, pruning entries stale
// beyond twice the window. Caller must hold g.mu for writing.
func (g *Graph) recordActivationLocked(id int64, now time.Time) []int64 {
	var coActivated []int64
	for otherID, firedAt := range g.recentActivity {
		if otherID == id {
			continue
		}
		if now.Sub(firedAt) <= coActivationWindow {
			coActivated = append(coActivated, otherID)
		}
	}
	g.recentActivity[id] = now
	for otherID, firedAt := range g.recentActivity {
		if now.Sub(firedAt) > coActivationWindow*2 {
			delete(g.recentActivity, otherID)
		}
	}
	return coActivated
}

// applyAssociations links id with each co-activated id bidirectionally,
// on both thoughts and memories (an association may cross the two kinds,
// e.g. a thought recalling a memory).
func (g *Graph) applyAssociations(id int64, coActivated []int64) {
	if len(coActivated) == 0 {
		return
	}
	g.mu.Lock()
	for _, otherID := range coActivated {
		g.linkThoughtAssociationLocked(id, otherID)
		g.linkThoughtAssociationLocked(otherID, id)
	}
	g.mu.Unlock()

	if g.store == nil {
		return
	}
	for _, otherID := range coActivated {
		g.linkMemoryAssociation(id, otherID)
		g.linkMemoryAssociation(otherID, id)
	}
}

func (g *Graph) linkThoughtAssociationLocked(id, assoc int64) {
	t, ok := g.thoughts[id]
	if !ok {
		return
	}
	for _, existing := range t.Associations {
		if existing == assoc {
			return
		}
	}
	t.Associations = append(t.Associations, assoc)
}

func (g *Graph) linkMemoryAssociation(id, assoc int64) {
	m, err := g.store.GetMemory(id)
	if err != nil {
		return
	}
	for _, existing := range m.Associations {
		if existing == assoc {
			return
		}
	}
	m.Associations = append(m.Associations, assoc)
	if err := g.store.StoreMemory(m); err != nil {
		log.Printf("cognitive: failed to persist association update for memory %d: %v", id, err)
	}
}

// CompleteThought transitions an Active thought to Completed.
func (g *Graph) CompleteThought(id int64) error {
	g.mu.Lock()
	t, ok := g.thoughts[id]
	if !ok {
		g.mu.Unlock()
		return cdberr.ErrNotFound
	}
	if t.State != Active {
		g.mu.Unlock()
		return cdberr.New(cdberr.Query, "thought is not active")
	}
	t.State = Completed
	t.UpdatedAt = time.Now()
	cp := *t
	g.mu.Unlock()

	g.publish(Event{Type: ThoughtCompleted, Payload: cp, Timestamp: cp.UpdatedAt})
	return nil
}

// CompleteWithContent transitions an Active thought to Completed and
// replaces its content, as a processor's closure result does. Returns a
// Query-kind error (without mutating anything) if the thought is not
// Active, e.g. because it was cancelled concurrently.
func (g *Graph) CompleteWithContent(id int64, content json.RawMessage) error {
	g.mu.Lock()
	t, ok := g.thoughts[id]
	if !ok {
		g.mu.Unlock()
		return cdberr.ErrNotFound
	}
	if t.State != Active {
		g.mu.Unlock()
		return cdberr.New(cdberr.Query, "thought is not active")
	}
	t.Content = content
	t.State = Completed
	t.UpdatedAt = time.Now()
	cp := *t
	g.mu.Unlock()

	g.publish(Event{Type: ThoughtCompleted, Payload: cp, Timestamp: cp.UpdatedAt})
	return nil
}

// LinkParent records that childID was spawned by parentID.
func (g *Graph) LinkParent(childID, parentID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.thoughts[childID]
	if !ok {
		return cdberr.ErrNotFound
	}
	t.ParentID = parentID
	t.HasParent = true
	return nil
}

// CancelThought transitions a thought to the terminal Cancelled state,
// regardless of its prior state.
func (g *Graph) CancelThought(id int64) error {
	g.mu.Lock()
	t, ok := g.thoughts[id]
	if !ok {
		g.mu.Unlock()
		return cdberr.ErrNotFound
	}
	t.State = Cancelled
	t.UpdatedAt = time.Now()
	cp := *t
	g.mu.Unlock()

	g.publish(Event{Type: ThoughtCancelled, Payload: cp, Timestamp: cp.UpdatedAt})
	return nil
}

// GetThought returns a value copy of the thought, recording its access as
// an activation for association purposes.
func (g *Graph) GetThought(id int64) (*Thought, error) {
	g.mu.Lock()
	t, ok := g.thoughts[id]
	if !ok {
		g.mu.Unlock()
		return nil, cdberr.ErrNotFound
	}
	cp := *t
	coActivated := g.recordActivationLocked(id, time.Now())
	g.mu.Unlock()

	g.applyAssociations(id, coActivated)
	return &cp, nil
}

// StoreMemory assigns an id if m.ID is zero, clamps strength, stamps
// created_at if unset, persists it, and records an activation.
func (g *Graph) StoreMemory(m *memstore.Memory) error {
	if g.store == nil {
		return cdberr.New(cdberr.Storage, "graph has no attached memory store")
	}
	if m.ID == 0 {
		m.ID = g.allocID()
	}
	m.Strength = clamp01(m.Strength)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.LastAccessed.IsZero() {
		m.LastAccessed = m.CreatedAt
	}

	if err := g.store.StoreMemory(m); err != nil {
		return err
	}

	g.mu.Lock()
	coActivated := g.recordActivationLocked(m.ID, m.CreatedAt)
	g.mu.Unlock()
	g.applyAssociations(m.ID, coActivated)

	g.publish(Event{Type: MemoryStored, Payload: *m, Timestamp: m.CreatedAt})
	return nil
}

// GetMemory returns the memory by id and increments its access_count /
// last_accessed, persisting the update.
func (g *Graph) GetMemory(id int64) (*memstore.Memory, error) {
	if g.store == nil {
		return nil, cdberr.New(cdberr.Storage, "graph has no attached memory store")
	}
	m, err := g.store.GetMemory(id)
	if err != nil {
		return nil, err
	}
	m.AccessCount++
	m.LastAccessed = time.Now()
	if err := g.store.StoreMemory(m); err != nil {
		log.Printf("cognitive: failed to persist access update for memory %d: %v", id, err)
	}

	g.mu.Lock()
	coActivated := g.recordActivationLocked(id, m.LastAccessed)
	g.mu.Unlock()
	g.applyAssociations(id, coActivated)

	cp := *m
	return &cp, nil
}

// RetrieveMemories returns memories matching filter, always sorted
// most-recently-created first.
func (g *Graph) RetrieveMemories(filter MemoryFilter) ([]*memstore.Memory, error) {
	if g.store == nil {
		return nil, cdberr.New(cdberr.Storage, "graph has no attached memory store")
	}

	var ids []int64
	switch {
	case filter.Tag != "":
		ids = g.store.ByTag(filter.Tag)
	case filter.Type != "":
		ids = g.store.ByType(filter.Type)
	default:
		ids = g.store.Temporal()
	}

	out := make([]*memstore.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := g.store.GetMemory(id)
		if err != nil {
			log.Printf("cognitive: retrieve_memories skipping unreadable memory %d: %v", id, err)
			continue
		}
		if filter.Tag != "" && filter.Type != "" && m.MemoryType != filter.Type {
			continue
		}
		if m.Strength < filter.MinStrength {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ActiveThoughts returns value copies of every thought currently Active,
// for consumption by the attention router's salience pass.
func (g *Graph) ActiveThoughts() []*Thought {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Thought, 0, len(g.thoughts))
	for _, t := range g.thoughts {
		if t.State == Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// AllMemories returns every stored memory, for consumption by the
// attention router's salience pass. Unreadable entries are skipped.
func (g *Graph) AllMemories() ([]*memstore.Memory, error) {
	if g.store == nil {
		return nil, cdberr.New(cdberr.Storage, "graph has no attached memory store")
	}
	ids := g.store.Temporal()
	out := make([]*memstore.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := g.store.GetMemory(id)
		if err != nil {
			log.Printf("cognitive: all_memories skipping unreadable memory %d: %v", id, err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// StoreExperience assigns an id if zero and persists e.
func (g *Graph) StoreExperience(e *memstore.Experience) error {
	if g.store == nil {
		return cdberr.New(cdberr.Storage, "graph has no attached memory store")
	}
	if e.ID == 0 {
		e.ID = g.allocID()
	}
	e.Complexity = clamp01(e.Complexity)
	if err := g.store.StoreExperience(e); err != nil {
		return err
	}
	g.publish(Event{Type: ExperienceStored, Payload: *e, Timestamp: time.Now()})
	return nil
}

// SetTrait clamps value to [0,1] (NaN/Inf collapse to 0) before storing.
func (g *Graph) SetTrait(name string, value float64) {
	g.traitMu.Lock()
	defer g.traitMu.Unlock()
	g.traits[name] = clamp01(value)
}

// GetTrait returns the named trait's value, or 0 if never set.
func (g *Graph) GetTrait(name string) float64 {
	g.traitMu.RLock()
	defer g.traitMu.RUnlock()
	return g.traits[name]
}

// SubscribeEvents returns a buffered channel of future events and an
// unsubscribe function. Publishing never blocks: a full channel drops the
// event and increments a counter observable via DroppedEventCount.
func (g *Graph) SubscribeEvents(bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ch := make(chan Event, bufferSize)

	g.subMu.Lock()
	id := g.nextSubID
	g.nextSubID++
	g.subscribers[id] = ch
	g.subMu.Unlock()

	unsubscribe := func() {
		g.subMu.Lock()
		if existing, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(existing)
		}
		g.subMu.Unlock()
	}
	return ch, unsubscribe
}

func (g *Graph) publish(evt Event) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, ch := range g.subscribers {
		select {
		case ch <- evt:
		default:
			atomic.AddUint64(&g.droppedEvents, 1)
			log.Printf("cognitive: event channel full, dropped %s event", evt.Type)
		}
	}
}

// DroppedEventCount returns the number of events dropped due to a full
// subscriber channel since the graph was created.
func (g *Graph) DroppedEventCount() uint64 {
	return atomic.LoadUint64(&g.droppedEvents)
}
