// Package view implements materialized views over tables: a named query
// plan kept pre-computed against one or more source tables, refreshed
// according to a per-view strategy.
package view

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

// RefreshStrategy controls when a view's contents are recomputed.
type RefreshStrategy int

const (
	// Manual views are never auto-scheduled; only an explicit Refresh call updates them.
	Manual RefreshStrategy = iota
	// OnDemand views recompute fully the next time they are queried stale; callers
	// drive this the same way as Manual from the manager's perspective.
	OnDemand
	// Interval views recompute on a fixed period via the manager's ticker/cron.
	Interval
	// OnCommit views recompute (fully) whenever one of their source tables commits.
	OnCommit
	// Continuous views recompute incrementally on every write to a source table.
	Continuous
)

func (s RefreshStrategy) String() string {
	switch s {
	case Manual:
		return "manual"
	case OnDemand:
		return "on_demand"
	case Interval:
		return "interval"
	case OnCommit:
		return "on_commit"
	case Continuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// View is a materialized view's metadata. Plan is an opaque, engine-defined
// query plan; this package never interprets it.
type View struct {
	mu sync.RWMutex

	Name          string
	TargetTableID int
	Plan          any
	SourceTables  []int
	Strategy      RefreshStrategy
	IntervalSecs  int64
	Incremental   bool

	lastRefresh time.Time
	nextRefresh time.Time
}

func (v *View) LastRefresh() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastRefresh
}

func (v *View) NextRefresh() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nextRefresh
}

func (v *View) referencesTable(tableID int) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, id := range v.SourceTables {
		if id == tableID {
			return true
		}
	}
	return false
}

// RefreshFunc recomputes a view's materialized contents. incremental is true
// only for Continuous refreshes triggered by NotifyWrite of a view marked
// Incremental; OnCommit refreshes always pass false.
type RefreshFunc func(ctx context.Context, v *View, incremental bool) error

// Manager tracks registered views and drives their refresh schedules.
// The auto-refresh tick (and NotifyCommit/NotifyWrite) collect candidate
// views under a read lock, release it, then perform refreshes outside the
// lock so a slow refresh never blocks registration or other lookups.
type Manager struct {
	mu      sync.RWMutex
	views   map[string]*View
	refresh RefreshFunc
	cron    *cron.Cron
}

func NewManager(refresh RefreshFunc) *Manager {
	return &Manager{
		views:   make(map[string]*View),
		refresh: refresh,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Register adds a view and, for Interval strategy, seeds its first
// next_refresh and schedules a cron entry that drives the manager's
// internal tick for this view's period.
func (m *Manager) Register(v *View) error {
	if v.Name == "" {
		return cdberr.New(cdberr.Storage, "view name must not be empty")
	}
	if v.Strategy == Interval && v.IntervalSecs <= 0 {
		return cdberr.New(cdberr.Storage, "interval views require a positive interval_secs")
	}

	m.mu.Lock()
	if _, exists := m.views[v.Name]; exists {
		m.mu.Unlock()
		return cdberr.New(cdberr.Storage, fmt.Sprintf("view %q already registered", v.Name))
	}
	if v.Strategy == Interval {
		v.mu.Lock()
		v.nextRefresh = time.Now().Add(time.Duration(v.IntervalSecs) * time.Second)
		v.mu.Unlock()
	}
	m.views[v.Name] = v
	m.mu.Unlock()

	if v.Strategy == Interval {
		spec := fmt.Sprintf("@every %ds", v.IntervalSecs)
		if _, err := m.cron.AddFunc(spec, func() {
			if cur, ok := m.Get(v.Name); !ok || cur != v {
				return
			}
			if err := m.doRefresh(context.Background(), v, false); err != nil {
				log.Printf("view: scheduled refresh of %q failed: %v", v.Name, err)
			}
		}); err != nil {
			m.mu.Lock()
			delete(m.views, v.Name)
			m.mu.Unlock()
			return cdberr.Wrap(cdberr.Storage, "schedule interval view", err)
		}
	}
	return nil
}

// Start begins the cron scheduler driving Interval views.
func (m *Manager) Start() { m.cron.Start() }

// Stop halts the cron scheduler, waiting for in-flight entries to finish.
func (m *Manager) Stop() context.Context { return m.cron.Stop() }

// Get returns a registered view by name.
func (m *Manager) Get(name string) (*View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[name]
	return v, ok
}

// Drop removes a view from the manager. An Interval view's cron entry stays
// scheduled but becomes a no-op, since the cron callback re-checks that the
// same view is still registered under its name before refreshing.
func (m *Manager) Drop(name string) {
	m.mu.Lock()
	delete(m.views, name)
	m.mu.Unlock()
}

// Refresh forces an immediate, full refresh of name regardless of strategy.
// Used for Manual and OnDemand views, and for ad hoc operator-triggered
// refreshes of any other view.
func (m *Manager) Refresh(ctx context.Context, name string) error {
	v, ok := m.Get(name)
	if !ok {
		return cdberr.New(cdberr.Storage, fmt.Sprintf("view %q not found", name))
	}
	return m.doRefresh(ctx, v, false)
}

// NotifyCommit is called when tableID commits a write transaction. Every
// registered OnCommit view whose source_tables includes tableID is
// refreshed concurrently; per-view failures are logged and do not affect
// sibling views or the caller.
func (m *Manager) NotifyCommit(ctx context.Context, tableID int) {
	m.fanOut(ctx, tableID, OnCommit, false)
}

// NotifyWrite is called on every row write to tableID (not just at commit).
// Continuous views referencing tableID are refreshed incrementally.
func (m *Manager) NotifyWrite(ctx context.Context, tableID int) {
	m.fanOut(ctx, tableID, Continuous, true)
}

func (m *Manager) fanOut(ctx context.Context, tableID int, strategy RefreshStrategy, incremental bool) {
	m.mu.RLock()
	var candidates []*View
	for _, v := range m.views {
		v.mu.RLock()
		matches := v.Strategy == strategy
		v.mu.RUnlock()
		if matches && v.referencesTable(tableID) {
			candidates = append(candidates, v)
		}
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range candidates {
		v := v
		g.Go(func() error {
			inc := incremental && v.Incremental
			if err := m.doRefresh(gctx, v, inc); err != nil {
				log.Printf("view: refresh of %q failed: %v", v.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Tick scans all registered Interval views and refreshes those whose
// next_refresh has arrived. It exists alongside the cron schedule for
// manager implementations that drive refresh from an external heartbeat
// rather than cron's own goroutine.
func (m *Manager) Tick(ctx context.Context) {
	now := time.Now()
	m.mu.RLock()
	var due []*View
	for _, v := range m.views {
		v.mu.RLock()
		isDue := v.Strategy == Interval && !v.nextRefresh.IsZero() && !now.Before(v.nextRefresh)
		v.mu.RUnlock()
		if isDue {
			due = append(due, v)
		}
	}
	m.mu.RUnlock()

	for _, v := range due {
		if err := m.doRefresh(ctx, v, false); err != nil {
			log.Printf("view: tick refresh of %q failed: %v", v.Name, err)
		}
	}
}

func (m *Manager) doRefresh(ctx context.Context, v *View, incremental bool) error {
	err := m.refresh(ctx, v, incremental)

	v.mu.Lock()
	v.lastRefresh = time.Now()
	if v.Strategy == Interval {
		v.nextRefresh = v.lastRefresh.Add(time.Duration(v.IntervalSecs) * time.Second)
	}
	v.mu.Unlock()

	return err
}
