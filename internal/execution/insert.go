package execution

import (
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/record"
)

// InsertExecutor inserts rows into a table and keeps every index on it in
// sync. Raw mode inserts the plan's literal rows on the first Next; pipeline
// mode inserts one child tuple per Next.
type InsertExecutor struct {
	ctx   *Context
	plan  *InsertPlan
	child Executor

	table       *catalog.TableMetadata
	indexes     []*catalog.IndexInfo
	hasInserted bool
}

func NewInsertExecutor(ctx *Context, plan *InsertPlan, child Executor) *InsertExecutor {
	return &InsertExecutor{ctx: ctx, plan: plan, child: child}
}

func (e *InsertExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.table = meta
	e.indexes = e.ctx.Catalog.GetTableIndexes(e.plan.TableName)
	e.hasInserted = false

	if !e.plan.IsRawInsert() {
		return e.child.Init()
	}
	return nil
}

func (e *InsertExecutor) insertOne(values []any) (*record.Tuple, error) {
	tid, err := e.table.Table.Insert(e.ctx.Txn, values)
	if err != nil {
		return nil, err
	}
	if err := e.ctx.lockWrite(tid); err != nil {
		return nil, err
	}

	tup := &record.Tuple{Values: values, TID: tid}
	for _, idx := range e.indexes {
		key, err := idx.Key(tup, e.table.Schema)
		if err != nil {
			return nil, err
		}
		if _, err := idx.Index.Insert(key, tid, e.ctx.Txn); err != nil {
			return nil, err
		}
	}
	return tup, nil
}

func (e *InsertExecutor) Next() (*record.Tuple, error) {
	if e.plan.IsRawInsert() {
		if e.hasInserted {
			return nil, nil
		}
		for _, values := range e.plan.RawValues {
			if _, err := e.insertOne(values); err != nil {
				return nil, err
			}
		}
		e.hasInserted = true
		// One empty acknowledgment tuple for the whole batch.
		return &record.Tuple{}, nil
	}

	tup, err := e.child.Next()
	if err != nil || tup == nil {
		return nil, err
	}
	return e.insertOne(tup.Values)
}
