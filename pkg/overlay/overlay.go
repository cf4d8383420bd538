// Package overlay implements the per-table mutable delta overlay (pending
// updates + delete markers fused over sealed blocks on read) and the
// small-write buffer that batches inserts ahead of block writes.
package overlay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

const (
	MaxPendingUpdates  = 1_000_000
	MaxDeleteMarkers   = 10_000_000
	HardRowBufferCap   = 10_000_000
	HardWriteBatchCap  = 1_000_000
)

// Update is a single row-level update pending against a table's base blocks.
type Update struct {
	RowID  int64
	Column int
	Value  any
	Ts     int64
}

type updateKey struct {
	row int64
	col int
}

// Overlay holds the pending updates and deletes for one table. All mutating
// methods snapshot-then-act: no lock is held while calling out.
type Overlay struct {
	mu sync.RWMutex

	updates     map[updateKey]*Update
	updateOrder []updateKey
	deletes     map[int64]struct{}
	deleteOrder []int64
}

func New() *Overlay {
	return &Overlay{
		updates: make(map[updateKey]*Update),
		deletes: make(map[int64]struct{}),
	}
}

// Update records value for (row,column) at logical time ts. Among updates
// for the same (row,column) the latest ts wins.
func (o *Overlay) Update(row int64, col int, value any, ts int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k := updateKey{row, col}
	if existing, ok := o.updates[k]; ok {
		if ts >= existing.Ts {
			existing.Value = value
			existing.Ts = ts
		}
		return
	}

	o.updates[k] = &Update{RowID: row, Column: col, Value: value, Ts: ts}
	o.updateOrder = append(o.updateOrder, k)
	if len(o.updateOrder) > MaxPendingUpdates {
		evict := o.updateOrder[0]
		o.updateOrder = o.updateOrder[1:]
		delete(o.updates, evict)
		log.Printf("overlay: pending update cap %d reached, evicted oldest entry", MaxPendingUpdates)
	}
}

// Delete marks row as deleted. It never re-appears on read unless
// re-inserted with a new id.
func (o *Overlay) Delete(row int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.deletes[row]; exists {
		return
	}
	o.deletes[row] = struct{}{}
	o.deleteOrder = append(o.deleteOrder, row)
	if len(o.deleteOrder) > MaxDeleteMarkers {
		evict := o.deleteOrder[0]
		o.deleteOrder = o.deleteOrder[1:]
		delete(o.deletes, evict)
		log.Printf("overlay: delete marker cap %d reached, evicted oldest entry", MaxDeleteMarkers)
	}
}

// IsDeleted reports whether row is currently invisible due to a pending delete.
func (o *Overlay) IsDeleted(row int64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.deletes[row]
	return ok
}

// ValueFor returns the pending update value for (row,column), if any.
func (o *Overlay) ValueFor(row int64, col int) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	u, ok := o.updates[updateKey{row, col}]
	if !ok {
		return nil, false
	}
	return u.Value, true
}

// Len reports the current pending update and delete-marker counts.
func (o *Overlay) Len() (updates, deletes int) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.updates), len(o.deletes)
}

// MergeUpdates drains and returns all pending updates, clearing the overlay's
// update set. Callers apply the returned updates into committed blocks.
func (o *Overlay) MergeUpdates() []*Update {
	o.mu.Lock()
	out := make([]*Update, 0, len(o.updates))
	for _, k := range o.updateOrder {
		if u, ok := o.updates[k]; ok {
			out = append(out, u)
		}
	}
	o.updates = make(map[updateKey]*Update)
	o.updateOrder = nil
	o.mu.Unlock()
	return out
}

// CompactDeletes drains and returns all pending delete markers, clearing the
// overlay's delete set. Callers apply the returned row ids against committed
// blocks (e.g. tombstoning or physically removing rows).
func (o *Overlay) CompactDeletes() []int64 {
	o.mu.Lock()
	out := make([]int64, len(o.deleteOrder))
	copy(out, o.deleteOrder)
	o.deletes = make(map[int64]struct{})
	o.deleteOrder = nil
	o.mu.Unlock()
	return out
}

// Row is an opaque ordered tuple of column values matching a table's schema.
type Row []any

// WriteBuffer is the small-write batching buffer ahead of block writes.
type WriteBuffer struct {
	mu          sync.Mutex
	rows        []Row
	batchSize   int
	flushSignal chan struct{}
}

func NewWriteBuffer(batchSize int) *WriteBuffer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &WriteBuffer{batchSize: batchSize, flushSignal: make(chan struct{}, 1)}
}

// Write appends row, requesting a flush once the buffer reaches batchSize.
// If the buffer exceeds the hard cap, the oldest 10% are dropped FIFO.
func (b *WriteBuffer) Write(row Row) {
	b.mu.Lock()
	b.rows = append(b.rows, row)
	shouldFlush := b.evictIfOverCapLocked() || len(b.rows) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		b.requestFlush()
	}
}

// WriteBatch appends rows atomically, rejecting batches larger than
// HardWriteBatchCap outright.
func (b *WriteBuffer) WriteBatch(rows []Row) error {
	if len(rows) > HardWriteBatchCap {
		return cdberr.New(cdberr.Storage,
			fmt.Sprintf("write_batch of %d rows exceeds hard cap %d", len(rows), HardWriteBatchCap))
	}

	b.mu.Lock()
	b.rows = append(b.rows, rows...)
	shouldFlush := b.evictIfOverCapLocked() || len(b.rows) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		b.requestFlush()
	}
	return nil
}

// evictIfOverCapLocked drops the oldest 10% of rows if the buffer exceeds
// HardRowBufferCap. Caller must hold mu.
func (b *WriteBuffer) evictIfOverCapLocked() bool {
	if len(b.rows) <= HardRowBufferCap {
		return false
	}
	drop := len(b.rows) / 10
	if drop == 0 {
		drop = 1
	}
	b.rows = b.rows[drop:]
	log.Printf("overlay: write buffer exceeded hard cap %d, dropped oldest %d rows", HardRowBufferCap, drop)
	return true
}

func (b *WriteBuffer) requestFlush() {
	select {
	case b.flushSignal <- struct{}{}:
	default:
	}
}

// Drain removes and returns all buffered rows.
func (b *WriteBuffer) Drain() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := b.rows
	b.rows = nil
	return rows
}

// Len reports the current buffered row count.
func (b *WriteBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// StartFlushTicker runs a background ticker that requests a flush whenever
// the buffer is non-empty and stale, following the multi-ticker daemon
// pattern the engine uses elsewhere. It also drains on an explicit flush
// signal from Write/WriteBatch reaching batchSize. Stops when ctx is done.
func (b *WriteBuffer) StartFlushTicker(ctx context.Context, interval time.Duration, flush func([]Row)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rows := b.drainIfNonEmpty(); rows != nil {
					flush(rows)
				}
			case <-b.flushSignal:
				if rows := b.drainIfNonEmpty(); rows != nil {
					flush(rows)
				}
			}
		}
	}()
}

func (b *WriteBuffer) drainIfNonEmpty() []Row {
	b.mu.Lock()
	if len(b.rows) == 0 {
		b.mu.Unlock()
		return nil
	}
	rows := b.rows
	b.rows = nil
	b.mu.Unlock()
	return rows
}
