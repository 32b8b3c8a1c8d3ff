package buffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/disk"
)

// newTestManager creates a temporary database file and a pool over it.
// It returns the pool, the disk manager and a cleanup function.
func newTestManager(t *testing.T, poolSize int) (*Manager, *disk.Manager, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "granite-bp-*")
	require.NoError(t, err)

	dm, err := disk.NewManager(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	m := NewManager(poolSize, dm, nil)

	cleanup := func() {
		_ = dm.Close()
		_ = os.RemoveAll(dir)
	}
	return m, dm, cleanup
}

func TestManager_FetchPinsAndShares(t *testing.T) {
	m, _, cleanup := newTestManager(t, 4)
	defer cleanup()

	p1, err := m.FetchPage(0)
	require.NoError(t, err)
	require.NotNil(t, p1)
	require.Equal(t, storage.PageID(0), p1.ID())

	fid, ok := m.pageTable[0]
	require.True(t, ok)
	require.Equal(t, int32(1), m.frames[fid].pin)
	require.False(t, m.frames[fid].dirty)

	// A second fetch returns the same frame and bumps the pin count.
	p2, err := m.FetchPage(0)
	require.NoError(t, err)
	require.Same(t, p1, p2)
	require.Equal(t, int32(2), m.frames[fid].pin)

	require.True(t, m.UnpinPage(0, false))
	require.True(t, m.UnpinPage(0, false))
	require.False(t, m.UnpinPage(0, false), "pin count already zero")
}

func TestManager_NoFreeFrame(t *testing.T) {
	m, _, cleanup := newTestManager(t, 1)
	defer cleanup()

	_, err := m.FetchPage(0)
	require.NoError(t, err)

	_, err = m.FetchPage(1)
	require.ErrorIs(t, err, ErrNoFreeFrame)
}

// Pool of three frames: pages 1..3 pinned, page 2 unpinned dirty, fetching a
// fourth page must evict page 2 and write it back.
func TestManager_EvictsDirtyVictim(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 3)
	defer cleanup()

	p1, err := m.FetchPage(1)
	require.NoError(t, err)
	p2, err := m.FetchPage(2)
	require.NoError(t, err)
	_, err = m.FetchPage(3)
	require.NoError(t, err)

	p2.Data()[0] = 42
	require.True(t, m.UnpinPage(2, true))

	p4, err := m.FetchPage(4)
	require.NoError(t, err)
	require.Equal(t, storage.PageID(4), p4.ID())

	// Page 2 left the pool and its bytes reached disk.
	_, resident := m.pageTable[2]
	require.False(t, resident)

	buf := make([]byte, storage.PageSize)
	require.NoError(t, dm.ReadPage(2, buf))
	require.Equal(t, byte(42), buf[0])

	// The still-pinned pages stayed resident.
	_, resident = m.pageTable[1]
	require.True(t, resident)
	require.Equal(t, storage.PageID(1), p1.ID())
}

func TestManager_NewPageAllocatesAndDirties(t *testing.T) {
	m, _, cleanup := newTestManager(t, 2)
	defer cleanup()

	p, err := m.NewPage()
	require.NoError(t, err)
	require.Equal(t, storage.PageID(0), p.ID())

	fid := m.pageTable[p.ID()]
	require.Equal(t, int32(1), m.frames[fid].pin)
	require.True(t, m.frames[fid].dirty)

	p2, err := m.NewPage()
	require.NoError(t, err)
	require.Equal(t, storage.PageID(1), p2.ID())
}

func TestManager_DeletePage(t *testing.T) {
	m, _, cleanup := newTestManager(t, 2)
	defer cleanup()

	p, err := m.NewPage()
	require.NoError(t, err)
	id := p.ID()

	// Pinned pages cannot be deleted.
	require.ErrorIs(t, m.DeletePage(id), ErrPagePinned)

	require.True(t, m.UnpinPage(id, false))
	require.NoError(t, m.DeletePage(id))

	_, resident := m.pageTable[id]
	require.False(t, resident)

	// Deleting a non-resident page is fine.
	require.NoError(t, m.DeletePage(id))
}

func TestManager_FlushClearsDirty(t *testing.T) {
	m, dm, cleanup := newTestManager(t, 2)
	defer cleanup()

	p, err := m.FetchPage(7)
	require.NoError(t, err)
	p.Data()[10] = 9
	require.True(t, m.UnpinPage(7, true))

	require.NoError(t, m.FlushPage(7))
	fid := m.pageTable[7]
	require.False(t, m.frames[fid].dirty)

	buf := make([]byte, storage.PageSize)
	require.NoError(t, dm.ReadPage(7, buf))
	require.Equal(t, byte(9), buf[10])

	require.ErrorIs(t, m.FlushPage(99), ErrPageNotResident)
}

// The page-table/frame invariants from the buffer pool contract: a resident
// page maps to a frame holding exactly that page, and pinned frames are
// neither free nor eviction candidates.
func TestManager_ResidencyInvariants(t *testing.T) {
	m, _, cleanup := newTestManager(t, 4)
	defer cleanup()

	for id := storage.PageID(0); id < 4; id++ {
		_, err := m.FetchPage(id)
		require.NoError(t, err)
	}
	require.True(t, m.UnpinPage(2, false))

	m.mu.Lock()
	defer m.mu.Unlock()
	for pid, fid := range m.pageTable {
		require.Equal(t, pid, m.pages[fid].ID())
		if m.frames[fid].pin > 0 {
			for _, free := range m.freeList {
				require.NotEqual(t, fid, free)
			}
		}
	}
	require.Equal(t, 1, m.replacer.Size())
}
