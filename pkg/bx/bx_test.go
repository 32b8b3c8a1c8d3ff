package bx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripAt(t *testing.T) {
	buf := make([]byte, 32)

	PutU16At(buf, 0, 0xBEEF)
	PutU32At(buf, 2, 0xDEADBEEF)
	PutU64At(buf, 6, 0x0102030405060708)
	PutI32At(buf, 14, -1)
	PutI64At(buf, 18, -42)

	require.Equal(t, uint16(0xBEEF), U16At(buf, 0))
	require.Equal(t, uint32(0xDEADBEEF), U32At(buf, 2))
	require.Equal(t, uint64(0x0102030405060708), U64At(buf, 6))
	require.Equal(t, int32(-1), I32At(buf, 14))
	require.Equal(t, int64(-42), I64At(buf, 18))
}

func TestSignedThroughUnsigned(t *testing.T) {
	buf := make([]byte, 8)
	PutI64(buf, -1)
	require.Equal(t, int64(-1), I64(buf))

	b := make([]byte, 2)
	PutU16(b, 0xFFFE)
	require.Equal(t, int16(-2), I16(b))
}
