package execution

import (
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/heap"
	"github.com/tuannm99/granitedb/internal/record"
)

// SeqScanExecutor scans the table heap front to back, filters through the
// optional predicate and projects into the plan's output schema.
type SeqScanExecutor struct {
	ctx  *Context
	plan *SeqScanPlan

	table *catalog.TableMetadata
	it    *heap.Iterator
}

func NewSeqScanExecutor(ctx *Context, plan *SeqScanPlan) *SeqScanExecutor {
	return &SeqScanExecutor{ctx: ctx, plan: plan}
}

func (e *SeqScanExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.table = meta

	it, err := meta.Table.Begin(e.ctx.Txn)
	if err != nil {
		return err
	}
	e.it = it
	return nil
}

func (e *SeqScanExecutor) Next() (*record.Tuple, error) {
	for e.it.Valid() {
		tup := e.it.Tuple()
		if err := e.it.Next(); err != nil {
			return nil, err
		}

		if err := e.ctx.lockRead(tup.TID); err != nil {
			return nil, err
		}

		ok, err := evalPredicate(e.plan.Predicate, tup, e.table.Schema)
		if err != nil {
			return nil, err
		}
		e.ctx.unlockRead(tup.TID)
		if !ok {
			continue
		}

		return project(e.plan.Output, tup, e.table.Schema)
	}
	return nil, nil
}
