package table

import (
	"context"
	"fmt"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

// ViewPlan is the concrete plan this module stores in a materialized
// view's opaque Plan field: a column projection from one source table
// into a dedicated destination table owned by the view.
type ViewPlan struct {
	SourceTableID int
	DestTableID   int
	ColumnIDs     []int
}

// MaterializeFull fully recomputes plan's destination table: it re-reads
// every row of the projected columns from the source table and replaces
// the destination table's schema and contents outright. Used as the
// RefreshFunc body for Manual/OnDemand/Interval/OnCommit views; Continuous
// (incremental) views are expected to layer a cheaper diff on top of this
// rather than calling it on every write.
func (e *Engine) MaterializeFull(ctx context.Context, plan ViewPlan) error {
	src, err := e.table(plan.SourceTableID)
	if err != nil {
		return err
	}

	src.mu.RLock()
	schema := make(Schema, 0, len(plan.ColumnIDs))
	for _, id := range plan.ColumnIDs {
		cd, ok := src.schema.find(id)
		if !ok {
			src.mu.RUnlock()
			return cdberr.New(cdberr.Query, fmt.Sprintf("column %d is not in table %d's schema", id, plan.SourceTableID))
		}
		schema = append(schema, cd)
	}
	rowCount := int(src.rowCount)
	src.mu.RUnlock()

	cols, err := e.ReadColumns(plan.SourceTableID, plan.ColumnIDs, 0, rowCount)
	if err != nil {
		return err
	}

	if err := e.DropTable(plan.DestTableID); err != nil {
		return err
	}
	if err := e.CreateTable(plan.DestTableID, schema); err != nil {
		return err
	}
	if rowCount == 0 {
		return nil
	}

	batch := make([]ColumnBatch, len(plan.ColumnIDs))
	for i, id := range plan.ColumnIDs {
		batch[i] = ColumnBatch{ColumnID: id, Data: cols[i]}
	}
	return e.WriteColumns(ctx, plan.DestTableID, batch)
}
