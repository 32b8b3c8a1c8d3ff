package record

import (
	"errors"
	"fmt"
	"strings"
)

var ErrIncomparable = errors.New("record: values are not comparable")

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Compare orders two row values. NULL sorts before everything; numeric types
// compare numerically, text lexicographically, bools false < true.
func Compare(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}

	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	if af, ok := asFloat64(a); ok {
		if bf, ok := asFloat64(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0, nil
			case !ab:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: %T vs %T", ErrIncomparable, a, b)
}

// Add sums two numeric values, for aggregate accumulation. A nil accumulator
// adopts the incoming value.
func Add(acc, v any) (any, error) {
	if acc == nil {
		return v, nil
	}
	if v == nil {
		return acc, nil
	}

	if ai, ok := acc.(int64); ok {
		if vi, ok := asInt64(v); ok {
			return ai + vi, nil
		}
	}
	if af, ok := asFloat64(acc); ok {
		if vf, ok := asFloat64(v); ok {
			return af + vf, nil
		}
	}
	return nil, fmt.Errorf("record: cannot add %T and %T", acc, v)
}
