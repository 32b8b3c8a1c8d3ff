package record

import (
	"errors"
	"math"

	"github.com/tuannm99/granitedb/pkg/bx"
)

var (
	ErrSchemaMismatch  = errors.New("rowcodec: schema/values mismatch")
	ErrBadBuffer       = errors.New("rowcodec: buffer underflow/overflow")
	ErrVarTooLong      = errors.New("rowcodec: variable length exceeds u16")
	ErrUnsupportedType = errors.New("rowcodec: unsupported type")
)

// EncodeRow serializes values per schema.
// Format:
// [nullmap: ceil(N/8) bytes, bit=1 => NULL]  |  [field0 data?] [field1 data?] ...
// Varlen TEXT: u16 length (LE) + data
func EncodeRow(s *Schema, values []any) ([]byte, error) {
	nc := s.NumCols()
	if len(values) != nc {
		return nil, ErrSchemaMismatch
	}

	nbBytes := (nc + 7) / 8
	out := make([]byte, nbBytes) // reserve nullmap first

	for i, col := range s.Cols {
		v := values[i]
		if v == nil {
			if !col.Nullable {
				return nil, ErrSchemaMismatch
			}
			out[i/8] |= 1 << (uint(i) & 7) // bit=1 => NULL
			continue
		}

		switch col.Type {
		case ColInt64:
			x, ok := asInt64(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			bx.PutU64(b[:], uint64(x))
			out = append(out, b[:]...)

		case ColFloat64:
			x, ok := asFloat64(v)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			var b [8]byte
			bx.PutU64(b[:], math.Float64bits(x))
			out = append(out, b[:]...)

		case ColBool:
			x, ok := v.(bool)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			if x {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}

		case ColText:
			str, ok := v.(string)
			if !ok {
				return nil, ErrSchemaMismatch
			}
			if len(str) > math.MaxUint16 {
				return nil, ErrVarTooLong
			}
			var b [2]byte
			bx.PutU16(b[:], uint16(len(str)))
			out = append(out, b[:]...)
			out = append(out, str...)

		default:
			return nil, ErrUnsupportedType
		}
	}

	return out, nil
}

// DecodeRow deserializes a row encoded by EncodeRow.
func DecodeRow(s *Schema, data []byte) ([]any, error) {
	nc := s.NumCols()
	nbBytes := (nc + 7) / 8
	if len(data) < nbBytes {
		return nil, ErrBadBuffer
	}

	values := make([]any, nc)
	off := nbBytes

	for i, col := range s.Cols {
		if data[i/8]&(1<<(uint(i)&7)) != 0 {
			values[i] = nil
			continue
		}

		switch col.Type {
		case ColInt64:
			if off+8 > len(data) {
				return nil, ErrBadBuffer
			}
			values[i] = int64(bx.U64(data[off:]))
			off += 8

		case ColFloat64:
			if off+8 > len(data) {
				return nil, ErrBadBuffer
			}
			values[i] = math.Float64frombits(bx.U64(data[off:]))
			off += 8

		case ColBool:
			if off+1 > len(data) {
				return nil, ErrBadBuffer
			}
			values[i] = data[off] != 0
			off++

		case ColText:
			if off+2 > len(data) {
				return nil, ErrBadBuffer
			}
			n := int(bx.U16(data[off:]))
			off += 2
			if off+n > len(data) {
				return nil, ErrBadBuffer
			}
			values[i] = string(data[off : off+n])
			off += n

		default:
			return nil, ErrUnsupportedType
		}
	}

	return values, nil
}
