// Package table ties the codec, column, block, and overlay primitives
// into the storage engine's external surface: create/drop/alter a table's
// schema, write and read columns in block-sized chunks, and apply the
// mutable overlay's pending updates and deletes against committed blocks.
package table

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/denizumutdereli/cognidb/pkg/block"
	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/codec"
	"github.com/denizumutdereli/cognidb/pkg/column"
	"github.com/denizumutdereli/cognidb/pkg/overlay"
)

// DefaultBlockSize is the row count per block when a table does not
// override it.
const DefaultBlockSize = 64 * 1024

// ColumnDef names and types one column of a table's schema.
type ColumnDef struct {
	ID       int
	Name     string
	DataType column.DataType
}

// Schema is an ordered set of column definitions. Column ids need not be
// contiguous; they are assigned by the caller and referenced by write and
// read calls.
type Schema []ColumnDef

func (s Schema) find(id int) (ColumnDef, bool) {
	for _, cd := range s {
		if cd.ID == id {
			return cd, true
		}
	}
	return ColumnDef{}, false
}

func (s Schema) validate() error {
	seen := make(map[int]struct{}, len(s))
	for _, cd := range s {
		if cd.Name == "" {
			return cdberr.New(cdberr.Query, "column definition is missing a name")
		}
		if _, dup := seen[cd.ID]; dup {
			return cdberr.New(cdberr.Query, fmt.Sprintf("duplicate column id %d in schema", cd.ID))
		}
		seen[cd.ID] = struct{}{}
	}
	return nil
}

// Table is one table's committed blocks, schema, and mutable overlay.
// Reads and writes are block-aligned; deletes are tracked logically
// (never renumbering rows, since the overlay and any caller-held row ids
// must stay valid) and are exposed via IsDeleted rather than removed from
// ReadColumns' positional output.
type Table struct {
	mu sync.RWMutex

	id        int
	schema    Schema
	blockSize int
	blocks    map[int][]*block.Block // column id -> blocks, sorted by RowStart
	rowCount  int64
	overlay   *overlay.Overlay
	tombstone map[int64]struct{} // rows drained out of the overlay's delete set by CompactDeletes
}

// Schema returns a copy of the table's current column definitions.
func (t *Table) Schema() Schema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(Schema, len(t.schema))
	copy(out, t.schema)
	return out
}

// RowCount returns the number of committed rows.
func (t *Table) RowCount() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rowCount
}

// IsDeleted reports whether row is invisible, either via a pending overlay
// delete or a prior CompactDeletes.
func (t *Table) IsDeleted(row int64) bool {
	t.mu.RLock()
	_, tombstoned := t.tombstone[row]
	t.mu.RUnlock()
	return tombstoned || t.overlay.IsDeleted(row)
}

// NotifyFunc is called after a table commits a write or a compaction, so a
// materialized view manager (or any other write-notification subscriber)
// can schedule refreshes. tableID identifies the table. The onWrite
// notifier runs after WriteColumns, MergeUpdates and CompactDeletes; the
// onCommit notifier runs only after MergeUpdates and CompactDeletes.
type NotifyFunc func(ctx context.Context, tableID int)

// Engine owns every table in a database and is the sole entry point for
// the storage engine operations an embedder drives: create_table,
// drop_table, alter_table, write_columns, read_columns, get_schema, plus
// the mutation overlay operations layered on top of the same tables.
type Engine struct {
	mu     sync.RWMutex
	tables map[int]*Table

	blockSize   int
	compression codec.Kind
	writer      *block.Writer
	reader      *block.Reader

	onWrite  NotifyFunc
	onCommit NotifyFunc
}

// New creates an Engine with the given default block size and compression
// kind; a blockSize of 0 selects DefaultBlockSize (64k rows). compression
// is used as given, so codec.None stores blocks uncompressed.
func New(blockSize int, compression codec.Kind) *Engine {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Engine{
		tables:      make(map[int]*Table),
		blockSize:   blockSize,
		compression: compression,
		writer:      block.NewWriter(blockSize, compression),
		reader:      block.NewReader(),
	}
}

// SetNotifiers wires write and commit notification callbacks, typically a
// view.Manager's NotifyWrite/NotifyCommit.
func (e *Engine) SetNotifiers(onWrite, onCommit NotifyFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onWrite = onWrite
	e.onCommit = onCommit
}

// CreateTable registers a new table under id with the given schema.
func (e *Engine) CreateTable(id int, schema Schema) error {
	if err := schema.validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[id]; exists {
		return cdberr.New(cdberr.Storage, fmt.Sprintf("table %d already exists", id))
	}
	sc := make(Schema, len(schema))
	copy(sc, schema)
	e.tables[id] = &Table{
		id:        id,
		schema:    sc,
		blockSize: e.blockSize,
		blocks:    make(map[int][]*block.Block),
		overlay:   overlay.New(),
		tombstone: make(map[int64]struct{}),
	}
	return nil
}

// DropTable removes table id and all of its committed data and overlay
// state. It is not an error to drop a table that does not exist.
func (e *Engine) DropTable(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, id)
	return nil
}

// AlterTable replaces table id's schema. Columns present in both the old
// and new schema keep their committed blocks (if the data type changed,
// existing blocks are dropped since they are encoded for the old type).
// Columns removed from the schema have their blocks dropped. Columns
// newly added have no committed values for existing rows; reading them
// back over those rows returns the data type's zero value at those
// positions.
func (e *Engine) AlterTable(id int, newSchema Schema) error {
	if err := newSchema.validate(); err != nil {
		return err
	}
	tbl, err := e.table(id)
	if err != nil {
		return err
	}

	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	kept := make(map[int][]*block.Block, len(newSchema))
	for _, cd := range newSchema {
		old, hadColumn := tbl.schema.find(cd.ID)
		if hadColumn && old.DataType == cd.DataType {
			kept[cd.ID] = tbl.blocks[cd.ID]
		}
	}
	sc := make(Schema, len(newSchema))
	copy(sc, newSchema)
	tbl.schema = sc
	tbl.blocks = kept
	return nil
}

// GetSchema returns table id's current schema.
func (e *Engine) GetSchema(id int) (Schema, error) {
	tbl, err := e.table(id)
	if err != nil {
		return nil, err
	}
	return tbl.Schema(), nil
}

// ColumnBatch is one column's data for a WriteColumns call.
type ColumnBatch struct {
	ColumnID int
	Data     column.Column
}

// WriteColumns appends a row batch to table id. Every batch entry must
// name a column present in the schema with a matching data type, and
// every entry must carry the same row count (a batch is rows written
// together, not independent per-column appends). Rows are assigned ids
// starting at the table's current row count, in order.
func (e *Engine) WriteColumns(ctx context.Context, id int, batch []ColumnBatch) error {
	tbl, err := e.table(id)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return cdberr.New(cdberr.Query, "write_columns requires at least one column")
	}

	tbl.mu.Lock()
	rowStart := tbl.rowCount
	n := batch[0].Data.Len()
	for _, cb := range batch {
		cd, ok := tbl.schema.find(cb.ColumnID)
		if !ok {
			tbl.mu.Unlock()
			return cdberr.New(cdberr.Query, fmt.Sprintf("column %d is not in the table's schema", cb.ColumnID))
		}
		if cd.DataType != cb.Data.DataType() {
			tbl.mu.Unlock()
			return cdberr.New(cdberr.Query, fmt.Sprintf("column %d expects type %s, got %s", cb.ColumnID, cd.DataType, cb.Data.DataType()))
		}
		if cb.Data.Len() != n {
			tbl.mu.Unlock()
			return cdberr.New(cdberr.Query, "every column in a write_columns batch must have the same row count")
		}
	}

	for _, cb := range batch {
		blocks, err := e.writer.WriteColumn(cb.Data, cb.ColumnID)
		if err != nil {
			tbl.mu.Unlock()
			return err
		}
		for _, b := range blocks {
			b.RowStart += int(rowStart)
		}
		tbl.blocks[cb.ColumnID] = append(tbl.blocks[cb.ColumnID], blocks...)
	}
	tbl.rowCount += int64(n)
	tbl.mu.Unlock()

	e.notify(ctx, id, false)
	return nil
}

// ReadColumns decodes [rowStart, rowStart+rowCount) of each requested
// column, fusing any pending overlay updates on top of the committed
// values. Deleted rows are not removed from the positional result (every
// requested column must return exactly rowCount values at matching
// offsets); query layers above consult IsDeleted to filter them.
func (e *Engine) ReadColumns(id int, colIDs []int, rowStart, rowCount int) ([]column.Column, error) {
	tbl, err := e.table(id)
	if err != nil {
		return nil, err
	}
	tbl.mu.RLock()
	defer tbl.mu.RUnlock()

	out := make([]column.Column, len(colIDs))
	for i, colID := range colIDs {
		cd, ok := tbl.schema.find(colID)
		if !ok {
			return nil, cdberr.New(cdberr.Query, fmt.Sprintf("column %d is not in the table's schema", colID))
		}
		col, err := e.readColumnRangeLocked(tbl, cd, rowStart, rowCount)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}

// readColumnRangeLocked decodes and concatenates the blocks of one column
// overlapping [rowStart, rowStart+rowCount), then fuses overlay updates.
// Caller must hold tbl.mu for reading.
func (e *Engine) readColumnRangeLocked(tbl *Table, cd ColumnDef, rowStart, rowCount int) (column.Column, error) {
	builder := newBuilder(cd.DataType, rowCount)
	rowEnd := rowStart + rowCount

	blocks := tbl.blocks[cd.ID]
	for _, blk := range blocks {
		blkEnd := blk.RowStart + blk.RowCount
		if blkEnd <= rowStart || blk.RowStart >= rowEnd {
			continue
		}
		decoded, err := e.reader.ReadColumn(blk, cd.DataType)
		if err != nil {
			return nil, err
		}
		lo := rowStart - blk.RowStart
		if lo < 0 {
			lo = 0
		}
		hi := rowEnd - blk.RowStart
		if hi > blk.RowCount {
			hi = blk.RowCount
		}
		slice, err := decoded.Slice(lo, hi-lo)
		if err != nil {
			return nil, err
		}
		destOffset := blk.RowStart + lo - rowStart
		if err := builder.place(destOffset, slice); err != nil {
			return nil, err
		}
	}

	result := builder.build()
	for abs := rowStart; abs < rowEnd; abs++ {
		if v, ok := tbl.overlay.ValueFor(int64(abs), cd.ID); ok {
			if err := result.setAny(abs-rowStart, v); err != nil {
				return nil, err
			}
		}
	}
	return result.col, nil
}

// Update records a pending value for (row,col) in table id's overlay.
func (e *Engine) Update(id int, row int64, col int, value any) error {
	tbl, err := e.table(id)
	if err != nil {
		return err
	}
	if _, ok := tbl.Schema().find(col); !ok {
		return cdberr.New(cdberr.Query, fmt.Sprintf("column %d is not in the table's schema", col))
	}
	tbl.overlay.Update(row, col, value, time.Now().UnixNano())
	return nil
}

// Delete marks row invisible in table id.
func (e *Engine) Delete(id int, row int64) error {
	tbl, err := e.table(id)
	if err != nil {
		return err
	}
	tbl.overlay.Delete(row)
	return nil
}

// Upsert applies one update per (column,value) pair in values, all at the
// same logical timestamp, against row in table id.
func (e *Engine) Upsert(id int, row int64, values map[int]any) error {
	tbl, err := e.table(id)
	if err != nil {
		return err
	}
	sc := tbl.Schema()
	ts := time.Now().UnixNano()
	for col, v := range values {
		if _, ok := sc.find(col); !ok {
			return cdberr.New(cdberr.Query, fmt.Sprintf("column %d is not in the table's schema", col))
		}
		tbl.overlay.Update(row, col, v, ts)
	}
	return nil
}

// MergeUpdates drains table id's pending overlay updates and patches them
// directly into the committed block covering each updated row, so the
// next ReadColumns sees them without needing to fuse the overlay.
func (e *Engine) MergeUpdates(ctx context.Context, id int) (int, error) {
	tbl, err := e.table(id)
	if err != nil {
		return 0, err
	}
	updates := tbl.overlay.MergeUpdates()
	if len(updates) == 0 {
		return 0, nil
	}

	tbl.mu.Lock()
	for _, u := range updates {
		cd, ok := tbl.schema.find(u.Column)
		if !ok {
			// Column was altered away after the update was queued; drop it.
			log.Printf("table: merge_updates skipping update for removed column %d", u.Column)
			continue
		}
		if err := e.patchColumnLocked(tbl, cd, u.RowID, u.Value); err != nil {
			tbl.mu.Unlock()
			return 0, err
		}
	}
	tbl.mu.Unlock()

	e.notify(ctx, id, true)
	return len(updates), nil
}

// patchColumnLocked finds the block covering row and re-encodes it with
// the single element at row replaced by value. Caller must hold tbl.mu.
func (e *Engine) patchColumnLocked(tbl *Table, cd ColumnDef, row int64, value any) error {
	blocks := tbl.blocks[cd.ID]
	for i, blk := range blocks {
		if int64(blk.RowStart) > row || row >= int64(blk.RowStart+blk.RowCount) {
			continue
		}
		decoded, err := e.reader.ReadColumn(blk, cd.DataType)
		if err != nil {
			return err
		}
		idx := int(row) - blk.RowStart
		b := newBuilderFromColumn(decoded)
		if err := b.setAny(idx, value); err != nil {
			return err
		}

		fullSize := blk.RowCount
		if fullSize <= 0 {
			fullSize = 1
		}
		w := block.NewWriter(fullSize, blk.Compression)
		newBlocks, err := w.WriteColumn(b.col, cd.ID)
		if err != nil {
			return err
		}
		if len(newBlocks) != 1 {
			return cdberr.New(cdberr.Storage, "patch re-encode produced an unexpected block count")
		}
		newBlocks[0].RowStart = blk.RowStart
		blocks[i] = newBlocks[0]
		tbl.blocks[cd.ID] = blocks
		return nil
	}
	return cdberr.New(cdberr.Storage, fmt.Sprintf("no committed block covers row %d for merge_updates", row))
}

// CompactDeletes drains table id's pending overlay delete markers into a
// permanent tombstone set. Rows are never physically removed or
// renumbered (every other row id, and any pending overlay entry
// referencing one, must remain valid); CompactDeletes only moves the
// delete record out of the overlay's bounded capacity and into permanent
// storage.
func (e *Engine) CompactDeletes(ctx context.Context, id int) (int, error) {
	tbl, err := e.table(id)
	if err != nil {
		return 0, err
	}
	drained := tbl.overlay.CompactDeletes()
	if len(drained) == 0 {
		return 0, nil
	}
	tbl.mu.Lock()
	for _, row := range drained {
		tbl.tombstone[row] = struct{}{}
	}
	tbl.mu.Unlock()

	e.notify(ctx, id, true)
	return len(drained), nil
}

func (e *Engine) table(id int) (*Table, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tbl, ok := e.tables[id]
	if !ok {
		return nil, cdberr.New(cdberr.Storage, fmt.Sprintf("table %d does not exist", id))
	}
	return tbl, nil
}

func (e *Engine) notify(ctx context.Context, id int, commit bool) {
	e.mu.RLock()
	onWrite, onCommit := e.onWrite, e.onCommit
	e.mu.RUnlock()
	if onWrite != nil {
		onWrite(ctx, id)
	}
	if commit && onCommit != nil {
		onCommit(ctx, id)
	}
}

// TableIDs returns every registered table id, sorted ascending.
func (e *Engine) TableIDs() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]int, 0, len(e.tables))
	for id := range e.tables {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
