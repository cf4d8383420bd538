// Package daemon runs the background workers that keep a cognidb engine
// alive between requests: the attention router's salience/focus cycle,
// the thought scheduler draining queued work into the processor, and the
// materialized-view manager's sweep of due Interval views.
package daemon

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/attention"
	"github.com/denizumutdereli/cognidb/pkg/thoughtproc"
	"github.com/denizumutdereli/cognidb/pkg/view"
)

// DaemonManager manages all background daemons for one cognidb engine.
type DaemonManager struct {
	router    *attention.Router
	scheduler *thoughtproc.Scheduler
	processor *thoughtproc.Processor
	views     *view.Manager

	process ThoughtDispatchFunc

	attentionInterval time.Duration
	schedulerInterval time.Duration
	viewTickInterval  time.Duration
	intervalMu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ThoughtDispatchFunc resolves the ProcessorFunc to run for a scheduled
// thought id. Returning a nil function skips the thought this cycle.
type ThoughtDispatchFunc func(id int64) thoughtproc.ProcessorFunc

// NewDaemonManager creates a daemon manager driving router, scheduler,
// and views in the background. dispatch resolves which ProcessorFunc to
// run for each thought the scheduler hands out; it may be nil if nothing
// is ever scheduled onto scheduler.
func NewDaemonManager(router *attention.Router, scheduler *thoughtproc.Scheduler, processor *thoughtproc.Processor, views *view.Manager, dispatch ThoughtDispatchFunc) *DaemonManager {
	ctx, cancel := context.WithCancel(context.Background())

	return &DaemonManager{
		router:            router,
		scheduler:         scheduler,
		processor:         processor,
		views:             views,
		process:           dispatch,
		attentionInterval: 500 * time.Millisecond,
		schedulerInterval: 100 * time.Millisecond,
		viewTickInterval:  1 * time.Second,
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start starts all daemon workers.
func (dm *DaemonManager) Start() {
	dm.wg.Add(3)

	go dm.attentionDaemon()
	go dm.schedulerDaemon()
	go dm.viewTickDaemon()

	log.Println("daemon manager started")
}

// Stop stops all daemons gracefully.
func (dm *DaemonManager) Stop() {
	dm.cancel()
	dm.wg.Wait()
	log.Println("daemon manager stopped")
}

// attentionDaemon runs the attention router's salience/allocation/focus
// cycle on a fixed tick.
func (dm *DaemonManager) attentionDaemon() {
	defer dm.wg.Done()

	for dm.waitInterval(dm.getAttentionInterval()) {
		dm.router.Route()
	}
}

// schedulerDaemon drains the priority scheduler, running each thought
// through the processor via the configured dispatch func. A thought whose
// dispatch func is nil is skipped silently; one whose processing fails
// (including admission failing at max parallel) is logged. Either way it
// is not re-enqueued — the caller that scheduled it owns retry policy.
func (dm *DaemonManager) schedulerDaemon() {
	defer dm.wg.Done()

	for dm.waitInterval(dm.getSchedulerInterval()) {
		if dm.process == nil {
			continue
		}
		id, ok := dm.scheduler.Next()
		if !ok {
			continue
		}
		fn := dm.process(id)
		if fn == nil {
			continue
		}
		if _, err := dm.processor.ProcessThought(id, fn); err != nil {
			log.Printf("daemon: processing thought %d failed: %v", id, err)
		}
	}
}

// viewTickDaemon calls the view manager's Tick, which refreshes Interval
// views whose next refresh is due, alongside the manager's own cron
// schedule. Manual and OnDemand views are never refreshed from here.
func (dm *DaemonManager) viewTickDaemon() {
	defer dm.wg.Done()

	for dm.waitInterval(dm.getViewTickInterval()) {
		dm.views.Tick(dm.ctx)
	}
}

func (dm *DaemonManager) waitInterval(interval time.Duration) bool {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-dm.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (dm *DaemonManager) getAttentionInterval() time.Duration {
	dm.intervalMu.RLock()
	defer dm.intervalMu.RUnlock()
	return dm.attentionInterval
}

func (dm *DaemonManager) getSchedulerInterval() time.Duration {
	dm.intervalMu.RLock()
	defer dm.intervalMu.RUnlock()
	return dm.schedulerInterval
}

func (dm *DaemonManager) getViewTickInterval() time.Duration {
	dm.intervalMu.RLock()
	defer dm.intervalMu.RUnlock()
	return dm.viewTickInterval
}

// SetIntervals configures daemon tick intervals.
func (dm *DaemonManager) SetIntervals(attentionTick, schedulerTick, viewTick time.Duration) {
	dm.intervalMu.Lock()
	defer dm.intervalMu.Unlock()
	dm.attentionInterval = attentionTick
	dm.schedulerInterval = schedulerTick
	dm.viewTickInterval = viewTick
}

// Stats returns daemon statistics.
func (dm *DaemonManager) Stats() map[string]any {
	dm.intervalMu.RLock()
	defer dm.intervalMu.RUnlock()
	return map[string]any{
		"attention_interval": dm.attentionInterval.String(),
		"scheduler_interval": dm.schedulerInterval.String(),
		"view_tick_interval": dm.viewTickInterval.String(),
	}
}
