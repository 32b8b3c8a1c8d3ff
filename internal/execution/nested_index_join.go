package execution

import (
	"errors"
	"fmt"

	"github.com/tuannm99/granitedb/internal/btree"
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage/page"
)

// NestIndexJoinExecutor probes the inner table's index with a key built from
// each outer tuple and joins against the first match.
type NestIndexJoinExecutor struct {
	ctx  *Context
	plan *NestedIndexJoinPlan

	outer Executor

	index      *catalog.IndexInfo
	innerTable *catalog.TableMetadata
}

func NewNestIndexJoinExecutor(ctx *Context, plan *NestedIndexJoinPlan, outer Executor) *NestIndexJoinExecutor {
	return &NestIndexJoinExecutor{ctx: ctx, plan: plan, outer: outer}
}

func (e *NestIndexJoinExecutor) Init() error {
	if err := e.outer.Init(); err != nil {
		return err
	}

	info, err := e.ctx.Catalog.GetIndex(e.plan.IndexName, e.plan.InnerTableName)
	if err != nil {
		return err
	}
	e.index = info

	meta, err := e.ctx.Catalog.GetTable(e.plan.InnerTableName)
	if err != nil {
		return err
	}
	e.innerTable = meta
	return nil
}

// outerKey builds the probe key from the outer tuple's key attributes.
func (e *NestIndexJoinExecutor) outerKey(t *record.Tuple) (btree.KeyType, error) {
	if len(e.plan.OuterKeyAttrs) != 1 {
		return 0, fmt.Errorf("execution: nested index join needs exactly one key attr, got %d", len(e.plan.OuterKeyAttrs))
	}
	attr := e.plan.OuterKeyAttrs[0]
	if attr < 0 || attr >= len(t.Values) {
		return 0, fmt.Errorf("execution: outer key attr %d out of range", attr)
	}
	key, ok := t.Values[attr].(int64)
	if !ok {
		return 0, fmt.Errorf("execution: outer key column is not int64 (%T)", t.Values[attr])
	}
	return key, nil
}

func (e *NestIndexJoinExecutor) Next() (*record.Tuple, error) {
	for {
		outerTuple, err := e.outer.Next()
		if err != nil || outerTuple == nil {
			return nil, err
		}

		key, err := e.outerKey(outerTuple)
		if err != nil {
			return nil, err
		}

		result, err := e.index.Index.ScanKey(key, e.ctx.Txn)
		if err != nil {
			return nil, err
		}
		if len(result) == 0 {
			continue
		}

		if err := e.ctx.lockRead(result[0]); err != nil {
			return nil, err
		}
		innerTuple, err := e.innerTable.Table.Get(e.ctx.Txn, result[0])
		if err != nil {
			if errors.Is(err, page.ErrTupleDeleted) {
				e.ctx.unlockRead(result[0])
				continue
			}
			return nil, err
		}
		e.ctx.unlockRead(result[0])

		if e.plan.Predicate != nil {
			v, err := e.plan.Predicate.EvaluateJoin(outerTuple, e.plan.OuterSchema, innerTuple, e.innerTable.Schema)
			if err != nil {
				return nil, err
			}
			if ok, _ := v.(bool); !ok {
				continue
			}
		}

		return projectJoin(e.plan.Output, outerTuple, e.plan.OuterSchema, innerTuple, e.innerTable.Schema)
	}
}
