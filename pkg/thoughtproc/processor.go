// Package thoughtproc runs cognitive-graph thoughts concurrently: a
// bounded-parallelism processor that lets a thought's closure spawn child
// thoughts mid-flight, and a priority scheduler that feeds it work.
package thoughtproc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/cognitive"
	"golang.org/x/sync/errgroup"
)

// ThoughtProcessingContext is handed to a processing closure so it can
// spawn child thoughts without reaching back into the processor itself.
type ThoughtProcessingContext struct {
	ProcessorID    string
	ParentID       int64
	HasParent      bool
	CurrentID      int64
	CanSpawn       bool
	spawned        *[]int64
	spawn          func(SpawnRequest) (int64, error)
}

// Spawn creates a child thought linked to the current one, returning its
// id. It is a no-op error if the context disallows spawning.
func (c ThoughtProcessingContext) Spawn(req SpawnRequest) (int64, error) {
	if !c.CanSpawn {
		return 0, cdberr.New(cdberr.Query, "spawning is not permitted in this context")
	}
	id, err := c.spawn(req)
	if err != nil {
		return 0, err
	}
	*c.spawned = append(*c.spawned, id)
	return id, nil
}

// SpawnRequest describes a child thought to create mid-processing.
type SpawnRequest struct {
	Content  json.RawMessage
	Priority float64
}

// ProcessorFunc processes a thought's content and returns its replacement
// content. It may call ctx.Spawn to create child thoughts.
type ProcessorFunc func(ctx ThoughtProcessingContext, content json.RawMessage) (json.RawMessage, error)

// Processor runs thoughts through a ProcessorFunc with bounded parallelism.
type Processor struct {
	graph         *cognitive.Graph
	maxParallel   int
	processorName string

	mu     sync.Mutex
	active map[int64]struct{}
}

// NewProcessor creates a Processor bound to graph, admitting at most
// maxParallel concurrently-processing thoughts.
func NewProcessor(graph *cognitive.Graph, maxParallel int) *Processor {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Processor{
		graph:       graph,
		maxParallel: maxParallel,
		active:      make(map[int64]struct{}),
	}
}

// ActiveCount returns the number of thoughts currently being processed.
func (p *Processor) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

var errMaxParallelReached = cdberr.New(cdberr.Query, "max parallel thoughts reached")

// ProcessThought runs a single thought through fn, admitting it only if
// the active-count gate against maxParallel has room. On success the
// thought's content is replaced with fn's result and its state moves to
// Completed; the ids of any thoughts spawned during processing are
// returned. If the thought was cancelled by another caller while fn was
// running, the writeback is skipped (the closure itself is not
// preempted — it still runs to completion).
func (p *Processor) ProcessThought(id int64, fn ProcessorFunc) ([]int64, error) {
	if err := p.admit(id); err != nil {
		return nil, err
	}
	defer p.release(id)

	thought, err := p.graph.GetThought(id)
	if err != nil {
		return nil, err
	}

	var spawned []int64
	ctx := ThoughtProcessingContext{
		ProcessorID: fmt.Sprintf("proc_%d", id),
		ParentID:    thought.ParentID,
		HasParent:   thought.HasParent,
		CurrentID:   id,
		CanSpawn:    true,
		spawned:     &spawned,
		spawn: func(req SpawnRequest) (int64, error) {
			return p.spawnChild(id, req)
		},
	}

	result, err := fn(ctx, thought.Content)
	if err != nil {
		return nil, err
	}

	if err := p.graph.CompleteWithContent(id, result); err != nil {
		if cdberr.Is(err, cdberr.Query) {
			// thought was cancelled or already completed elsewhere
			// while fn ran; the closure is not preempted, but its
			// result is simply discarded.
			return spawned, nil
		}
		return nil, err
	}
	return spawned, nil
}

func (p *Processor) admit(id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) >= p.maxParallel {
		return errMaxParallelReached
	}
	p.active[id] = struct{}{}
	return nil
}

func (p *Processor) release(id int64) {
	p.mu.Lock()
	delete(p.active, id)
	p.mu.Unlock()
}

func (p *Processor) spawnChild(parentID int64, req SpawnRequest) (int64, error) {
	child := p.graph.CreateThought(req.Content, req.Priority)
	if err := p.graph.LinkParent(child.ID, parentID); err != nil {
		return child.ID, err
	}
	return child.ID, nil
}

// processedPair pairs a thought id with the content fn produced for it.
type processedPair struct {
	ID      int64
	Content json.RawMessage
}

// ProcessThoughtsParallel runs fn over ids concurrently (data-parallel,
// no per-thought spawning support), preserving ids' order in the result.
// Ids that do not resolve to a thought are skipped. If fn fails for any id,
// the other calls still run to completion, and the first error is returned
// with no results.
func (p *Processor) ProcessThoughtsParallel(ctx context.Context, ids []int64, fn func(content json.RawMessage) (json.RawMessage, error)) ([]processedPair, error) {
	snapshot := make([]*cognitive.Thought, 0, len(ids))
	for _, id := range ids {
		t, err := p.graph.GetThought(id)
		if err != nil {
			continue
		}
		snapshot = append(snapshot, t)
	}

	results := make([]processedPair, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	_ = gctx
	for i, t := range snapshot {
		i, t := i, t
		g.Go(func() error {
			out, err := fn(t.Content)
			if err != nil {
				return err
			}
			results[i] = processedPair{ID: t.ID, Content: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ScheduledThought is one entry in a Scheduler's priority queue.
type ScheduledThought struct {
	ID       int64
	Priority float64
}

// Scheduler orders thoughts by descending priority. Unlike a naive
// sort-then-pop-from-the-back scheme, Next always returns the
// highest-priority entry.
type Scheduler struct {
	mu    sync.Mutex
	queue []ScheduledThought
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule enqueues id at priority and keeps the queue sorted descending.
func (s *Scheduler) Schedule(id int64, priority float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, ScheduledThought{ID: id, Priority: priority})
	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.queue[i].Priority > s.queue[j].Priority
	})
}

// Next removes and returns the highest-priority thought id, or false if
// the queue is empty.
func (s *Scheduler) Next() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	front := s.queue[0]
	s.queue = s.queue[1:]
	return front.ID, true
}

// Len returns the number of thoughts currently queued.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
