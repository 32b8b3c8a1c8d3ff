package record

import (
	"fmt"

	"github.com/tuannm99/granitedb/internal/storage"
)

// Tuple is one row flowing through the executors: typed values plus the heap
// location it came from (zero TID for derived tuples such as join output).
type Tuple struct {
	Values []any
	TID    storage.TID
}

func NewTuple(values []any) *Tuple {
	return &Tuple{Values: values}
}

// Value returns the i-th column value.
func (t *Tuple) Value(i int) any { return t.Values[i] }

// ValueByName resolves a column through the schema and returns its value.
func (t *Tuple) ValueByName(s *Schema, name string) (any, error) {
	i, err := s.ColIndex(name)
	if err != nil {
		return nil, err
	}
	if i >= len(t.Values) {
		return nil, fmt.Errorf("record: tuple shorter than schema (%d cols, want col %d)", len(t.Values), i)
	}
	return t.Values[i], nil
}

// KeyFromTuple projects the index key columns out of a table row. keyAttrs
// are offsets into schema, in key-schema order.
func (t *Tuple) KeyFromTuple(schema, keySchema *Schema, keyAttrs []int) (*Tuple, error) {
	if len(keyAttrs) != keySchema.NumCols() {
		return nil, ErrSchemaMismatch
	}
	values := make([]any, 0, len(keyAttrs))
	for _, attr := range keyAttrs {
		if attr < 0 || attr >= len(t.Values) {
			return nil, fmt.Errorf("record: key attr %d out of range", attr)
		}
		values = append(values, t.Values[attr])
	}
	return &Tuple{Values: values, TID: t.TID}, nil
}
