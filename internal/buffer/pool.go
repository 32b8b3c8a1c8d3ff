package buffer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/disk"
	"github.com/tuannm99/granitedb/internal/storage/page"
	"github.com/tuannm99/granitedb/internal/wal"
)

var DefaultPoolSize = 64

var (
	ErrNoFreeFrame     = errors.New("buffer: no free frame available (all pinned)")
	ErrPagePinned      = errors.New("buffer: page is pinned")
	ErrPageNotResident = errors.New("buffer: page not resident")
)

// frameMeta is the per-frame bookkeeping the pool keeps next to the page.
type frameMeta struct {
	pin   int32
	dirty bool
}

// Manager owns a fixed array of frames, the page table, the free list and the
// replacer. One coarse mutex orders every operation; page latches are taken by
// callers after the frame is pinned, so resident pages can be read in parallel.
type Manager struct {
	diskManager *disk.Manager
	logManager  *wal.Manager

	mu        sync.Mutex
	pages     []*page.Page
	frames    []frameMeta
	pageTable map[storage.PageID]storage.FrameID
	freeList  []storage.FrameID
	replacer  *LRUReplacer
}

// NewManager builds a pool of poolSize frames. Initially every frame is free.
func NewManager(poolSize int, dm *disk.Manager, lm *wal.Manager) *Manager {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	m := &Manager{
		diskManager: dm,
		logManager:  lm,
		pages:       make([]*page.Page, poolSize),
		frames:      make([]frameMeta, poolSize),
		pageTable:   make(map[storage.PageID]storage.FrameID, poolSize),
		freeList:    make([]storage.FrameID, 0, poolSize),
		replacer:    NewLRUReplacer(poolSize),
	}
	for i := range m.pages {
		m.pages[i] = page.New()
		m.freeList = append(m.freeList, storage.FrameID(i))
	}
	return m
}

// PoolSize returns the number of frames.
func (m *Manager) PoolSize() int { return len(m.pages) }

// FetchPage pins the requested page, loading it from disk if it is not
// resident. Fails with ErrNoFreeFrame when every frame is pinned.
func (m *Manager) FetchPage(pageID storage.PageID) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fid, ok := m.pageTable[pageID]; ok {
		m.frames[fid].pin++
		m.replacer.Pin(fid)
		return m.pages[fid], nil
	}

	fid, err := m.findReplace()
	if err != nil {
		return nil, err
	}

	p := m.pages[fid]
	if err := m.diskManager.ReadPage(pageID, p.Data()); err != nil {
		// The frame was already detached from its old page; hand it back.
		m.freeList = append(m.freeList, fid)
		return nil, err
	}
	p.SetID(pageID)
	m.frames[fid].pin = 1
	m.frames[fid].dirty = false
	m.replacer.Pin(fid)
	m.pageTable[pageID] = fid

	return p, nil
}

// UnpinPage drops one pin and ORs the caller's dirty flag into the frame.
// Returns false when the page is not resident or was not pinned.
func (m *Manager) UnpinPage(pageID storage.PageID, dirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable[pageID]
	if !ok {
		return false
	}

	f := &m.frames[fid]
	if f.pin == 0 {
		return false
	}
	if dirty {
		f.dirty = true
	}

	f.pin--
	if f.pin == 0 {
		m.replacer.Unpin(fid)
	}
	return true
}

// NewPage allocates a fresh on-disk page id, binds it to a frame and pins it.
// The frame comes back zeroed and dirty.
func (m *Manager) NewPage() (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pageID := m.diskManager.AllocatePage()
	fid, err := m.findReplace()
	if err != nil {
		return nil, err
	}

	p := m.pages[fid]
	p.Zero()
	p.SetID(pageID)
	m.frames[fid].pin = 1
	m.frames[fid].dirty = true
	m.replacer.Pin(fid)
	m.pageTable[pageID] = fid

	slog.Debug("buffer.NewPage", "pageID", pageID, "frame", fid)
	return p, nil
}

// DeletePage removes a page from the pool and deallocates it on disk.
// A pinned page cannot be deleted.
func (m *Manager) DeletePage(pageID storage.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fid, ok := m.pageTable[pageID]
	if !ok {
		m.diskManager.DeallocatePage(pageID)
		return nil
	}

	if m.frames[fid].pin > 0 {
		return ErrPagePinned
	}

	delete(m.pageTable, pageID)
	m.replacer.Pin(fid)
	m.frames[fid] = frameMeta{}
	m.pages[fid].SetID(storage.InvalidPageID)
	m.freeList = append(m.freeList, fid)
	m.diskManager.DeallocatePage(pageID)
	return nil
}

// FlushPage writes a resident page to disk and clears its dirty bit.
func (m *Manager) FlushPage(pageID storage.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(pageID)
}

func (m *Manager) flushLocked(pageID storage.PageID) error {
	fid, ok := m.pageTable[pageID]
	if !ok {
		return ErrPageNotResident
	}
	if err := m.diskManager.WritePage(pageID, m.pages[fid].Data()); err != nil {
		return err
	}
	m.frames[fid].dirty = false
	return nil
}

// FlushAllPages flushes every resident page.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for pageID := range m.pageTable {
		if err := m.flushLocked(pageID); err != nil {
			return err
		}
	}
	return nil
}

// findReplace frees up a frame: free list first, then a replacer victim whose
// current page is written back if dirty and unmapped.
func (m *Manager) findReplace() (storage.FrameID, error) {
	if len(m.freeList) > 0 {
		fid := m.freeList[0]
		m.freeList = m.freeList[1:]
		return fid, nil
	}

	fid, ok := m.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrame
	}

	victimID := storage.InvalidPageID
	for pid, f := range m.pageTable {
		if f == fid {
			victimID = pid
			break
		}
	}
	if victimID != storage.InvalidPageID {
		if m.frames[fid].dirty {
			if err := m.diskManager.WritePage(victimID, m.pages[fid].Data()); err != nil {
				m.replacer.Unpin(fid)
				return 0, err
			}
		}
		delete(m.pageTable, victimID)
		slog.Debug("buffer.evict", "pageID", victimID, "frame", fid)
	}

	return fid, nil
}
