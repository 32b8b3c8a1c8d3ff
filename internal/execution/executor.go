// Package execution implements the Volcano-style executors: each operator
// exposes Init and Next and pulls tuples from its children one at a time.
package execution

import (
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/record"
)

// Executor is one operator of a query pipeline. Init must be callable more
// than once: joins restart their inner side by re-initializing it. Next
// returns (nil, nil) when the operator is exhausted.
type Executor interface {
	Init() error
	Next() (*record.Tuple, error)
}

// Context carries what executors need to touch the storage layer.
type Context struct {
	Txn     *concurrency.Transaction
	TxnMgr  *concurrency.TxnManager
	LockMgr *concurrency.Manager
	Catalog *catalog.Catalog
}

// project shapes a child tuple into the output schema, resolving output
// columns by name. A nil output schema passes the tuple through.
func project(out *record.Schema, t *record.Tuple, s *record.Schema) (*record.Tuple, error) {
	if out == nil {
		return t, nil
	}
	values := make([]any, 0, out.NumCols())
	for _, col := range out.Cols {
		v, err := t.ValueByName(s, col.Name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &record.Tuple{Values: values, TID: t.TID}, nil
}

// projectJoin shapes a joined row: output columns found in the left child's
// schema come from the left tuple, all others from the right.
func projectJoin(out *record.Schema, l *record.Tuple, ls *record.Schema, r *record.Tuple, rs *record.Schema) (*record.Tuple, error) {
	if out == nil {
		values := make([]any, 0, len(l.Values)+len(r.Values))
		values = append(values, l.Values...)
		values = append(values, r.Values...)
		return &record.Tuple{Values: values}, nil
	}

	values := make([]any, 0, out.NumCols())
	for _, col := range out.Cols {
		if ls.HasCol(col.Name) {
			v, err := l.ValueByName(ls, col.Name)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			continue
		}
		v, err := r.ValueByName(rs, col.Name)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return &record.Tuple{Values: values}, nil
}

// evalPredicate runs an optional predicate; nil predicates accept everything.
func evalPredicate(pred Expression, t *record.Tuple, s *record.Schema) (bool, error) {
	if pred == nil {
		return true, nil
	}
	v, err := pred.Evaluate(t, s)
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}
