package execution

import (
	"errors"

	"github.com/tuannm99/granitedb/internal/btree"
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage/page"
)

// IndexScanExecutor walks the index leaf chain in key order and fetches each
// referenced row from the heap.
type IndexScanExecutor struct {
	ctx  *Context
	plan *IndexScanPlan

	index *catalog.IndexInfo
	table *catalog.TableMetadata
	it    *btree.Iterator
}

func NewIndexScanExecutor(ctx *Context, plan *IndexScanPlan) *IndexScanExecutor {
	return &IndexScanExecutor{ctx: ctx, plan: plan}
}

func (e *IndexScanExecutor) Init() error {
	info, err := e.ctx.Catalog.GetIndex(e.plan.IndexName, e.plan.TableName)
	if err != nil {
		return err
	}
	e.index = info

	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.table = meta

	if e.it != nil {
		e.it.Close()
	}
	it, err := info.Index.Begin()
	if err != nil {
		return err
	}
	e.it = it
	return nil
}

func (e *IndexScanExecutor) Next() (*record.Tuple, error) {
	for e.it.Valid() {
		tid := e.it.TID()
		if err := e.it.Next(); err != nil {
			return nil, err
		}

		if err := e.ctx.lockRead(tid); err != nil {
			return nil, err
		}

		tup, err := e.table.Table.Get(e.ctx.Txn, tid)
		if err != nil {
			if errors.Is(err, page.ErrTupleDeleted) {
				e.ctx.unlockRead(tid)
				continue
			}
			return nil, err
		}

		ok, err := evalPredicate(e.plan.Predicate, tup, e.table.Schema)
		if err != nil {
			return nil, err
		}
		e.ctx.unlockRead(tid)
		if !ok {
			continue
		}

		return project(e.plan.Output, tup, e.table.Schema)
	}
	return nil, nil
}
