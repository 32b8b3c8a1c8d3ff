package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/granitedb/internal/storage"
)

func newTablePage(t *testing.T, id storage.PageID) TablePage {
	t.Helper()
	tp := TablePage{Page: New()}
	tp.Reset(id)
	return tp
}

func TestTablePage_InsertRead(t *testing.T) {
	tp := newTablePage(t, 3)
	require.Equal(t, storage.PageID(3), tp.PageID())
	require.Equal(t, storage.InvalidPageID, tp.NextPageID())
	require.Equal(t, 0, tp.NumSlots())

	slot, err := tp.InsertTuple([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	slot, err = tp.InsertTuple([]byte("world!"))
	require.NoError(t, err)
	require.Equal(t, 1, slot)
	require.Equal(t, 2, tp.NumSlots())

	data, err := tp.ReadTuple(0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)

	data, err = tp.ReadTuple(1)
	require.NoError(t, err)
	require.Equal(t, []byte("world!"), data)

	_, err = tp.ReadTuple(2)
	require.ErrorIs(t, err, ErrBadSlot)
}

func TestTablePage_FillsUp(t *testing.T) {
	tp := newTablePage(t, 0)

	row := make([]byte, 100)
	inserted := 0
	for {
		_, err := tp.InsertTuple(row)
		if err != nil {
			require.ErrorIs(t, err, ErrNoSpace)
			break
		}
		inserted++
	}
	require.Greater(t, inserted, 30)
	require.Equal(t, inserted, tp.NumSlots())
}

func TestTablePage_DeleteLifecycle(t *testing.T) {
	tp := newTablePage(t, 0)

	slot, err := tp.InsertTuple([]byte("row"))
	require.NoError(t, err)

	// Mark, roll back, mark again, apply.
	require.NoError(t, tp.MarkDelete(slot))
	require.False(t, tp.IsLive(slot))
	_, err = tp.ReadTuple(slot)
	require.ErrorIs(t, err, ErrTupleDeleted)

	require.NoError(t, tp.RollbackDelete(slot))
	require.True(t, tp.IsLive(slot))
	data, err := tp.ReadTuple(slot)
	require.NoError(t, err)
	require.Equal(t, []byte("row"), data)

	require.NoError(t, tp.MarkDelete(slot))
	require.ErrorIs(t, tp.MarkDelete(slot), ErrTupleDeleted)

	require.NoError(t, tp.ApplyDelete(slot))
	require.False(t, tp.IsLive(slot))

	// Slot indexes after the dead one keep their meaning.
	slot2, err := tp.InsertTuple([]byte("next"))
	require.NoError(t, err)
	require.Equal(t, 1, slot2)
}

func TestTablePage_UpdateInPlace(t *testing.T) {
	tp := newTablePage(t, 0)

	slot, err := tp.InsertTuple([]byte("abcdef"))
	require.NoError(t, err)

	require.NoError(t, tp.UpdateTuple(slot, []byte("xyz")))
	data, err := tp.ReadTuple(slot)
	require.NoError(t, err)
	require.Equal(t, []byte("xyz"), data)

	// Growing past the old footprint is refused.
	require.ErrorIs(t, tp.UpdateTuple(slot, make([]byte, 64)), ErrNoSpace)
}

func TestHeaderPage_Records(t *testing.T) {
	hp := HeaderPage{Page: New()}

	_, err := hp.GetRootID("missing")
	require.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, hp.InsertRecord("idx_a", 7))
	require.NoError(t, hp.InsertRecord("idx_b", 9))
	require.ErrorIs(t, hp.InsertRecord("idx_a", 1), ErrDuplicateRecord)

	root, err := hp.GetRootID("idx_a")
	require.NoError(t, err)
	require.Equal(t, storage.PageID(7), root)

	require.NoError(t, hp.UpdateRecord("idx_a", 11))
	root, err = hp.GetRootID("idx_a")
	require.NoError(t, err)
	require.Equal(t, storage.PageID(11), root)

	require.NoError(t, hp.DeleteRecord("idx_a"))
	_, err = hp.GetRootID("idx_a")
	require.ErrorIs(t, err, ErrRecordNotFound)

	// idx_b survived the compaction.
	root, err = hp.GetRootID("idx_b")
	require.NoError(t, err)
	require.Equal(t, storage.PageID(9), root)
}
