package execution

import (
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/record"
)

// DeleteExecutor pulls rows from its child, marks them deleted in the heap
// and removes their entries from every index on the table.
type DeleteExecutor struct {
	ctx   *Context
	plan  *DeletePlan
	child Executor

	table   *catalog.TableMetadata
	indexes []*catalog.IndexInfo
}

func NewDeleteExecutor(ctx *Context, plan *DeletePlan, child Executor) *DeleteExecutor {
	return &DeleteExecutor{ctx: ctx, plan: plan, child: child}
}

func (e *DeleteExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.table = meta
	e.indexes = e.ctx.Catalog.GetTableIndexes(e.plan.TableName)
	return e.child.Init()
}

func (e *DeleteExecutor) Next() (*record.Tuple, error) {
	tup, err := e.child.Next()
	if err != nil || tup == nil {
		return nil, err
	}

	if err := e.ctx.lockWrite(tup.TID); err != nil {
		return nil, err
	}
	if err := e.table.Table.MarkDelete(e.ctx.Txn, tup.TID); err != nil {
		return nil, err
	}

	for _, idx := range e.indexes {
		key, err := idx.Key(tup, e.table.Schema)
		if err != nil {
			return nil, err
		}
		if err := idx.Index.Remove(key, e.ctx.Txn); err != nil {
			return nil, err
		}
	}
	return tup, nil
}
