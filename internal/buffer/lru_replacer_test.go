package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/granitedb/internal/storage"
)

func TestLRUReplacer_VictimOrder(t *testing.T) {
	r := NewLRUReplacer(7)

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	r.Unpin(4)
	r.Unpin(5)
	r.Unpin(6)
	// Re-unpinning a tracked frame must not duplicate it.
	r.Unpin(1)
	require.Equal(t, 6, r.Size())

	// Back of the list (least recently unpinned) goes first.
	fid, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(1), fid)

	fid, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(2), fid)

	fid, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(3), fid)

	// Pinning removes candidates.
	r.Pin(3) // not tracked, no-op
	r.Pin(4)
	require.Equal(t, 2, r.Size())

	r.Unpin(4)
	require.Equal(t, 3, r.Size())

	fid, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(5), fid)
	fid, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(6), fid)
	fid, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(4), fid)

	_, ok = r.Victim()
	require.False(t, ok)
	require.Equal(t, 0, r.Size())
}

func TestLRUReplacer_CapacityEvictsOldest(t *testing.T) {
	r := NewLRUReplacer(2)

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3) // exceeds capacity: frame 1 is dropped first
	require.Equal(t, 2, r.Size())

	fid, ok := r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(2), fid)

	fid, ok = r.Victim()
	require.True(t, ok)
	require.Equal(t, storage.FrameID(3), fid)
}
