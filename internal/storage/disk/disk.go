// Package disk implements the database file manager: fixed-size page reads
// and writes plus page id allocation. The buffer pool is its only caller.
package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tuannm99/granitedb/internal/storage"
)

const fileMode0664 = 0o664

// Manager manages the database file and provides direct page access.
type Manager struct {
	file     *os.File
	nextPage storage.PageID
	mu       sync.Mutex
}

// NewManager opens or creates the database file. Page id allocation resumes
// after the last page already present in the file.
func NewManager(filename string) (*Manager, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, fileMode0664)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("get file info: %w", err)
	}

	return &Manager{
		file:     file,
		nextPage: storage.PageID(fileInfo.Size() / storage.PageSize),
	}, nil
}

// ReadPage reads one page into dst. Pages past the end of the file read as
// zeroes, so a freshly allocated page is valid to fetch before its first write.
func (m *Manager) ReadPage(pageID storage.PageID, dst []byte) error {
	if !pageID.Valid() {
		return fmt.Errorf("invalid page number: %d", pageID)
	}
	if len(dst) != storage.PageSize {
		return fmt.Errorf("invalid page buffer size: expected %d, got %d", storage.PageSize, len(dst))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * storage.PageSize
	n, err := m.file.ReadAt(dst, offset)
	if err == io.EOF || (err == io.ErrUnexpectedEOF && n >= 0) {
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read page %d: %w", pageID, err)
	}
	return nil
}

// WritePage writes one page worth of bytes at the page's offset.
func (m *Manager) WritePage(pageID storage.PageID, src []byte) error {
	if !pageID.Valid() {
		return fmt.Errorf("invalid page number: %d", pageID)
	}
	if len(src) != storage.PageSize {
		return fmt.Errorf("invalid page size: expected %d, got %d", storage.PageSize, len(src))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * storage.PageSize
	if _, err := m.file.WriteAt(src, offset); err != nil {
		return fmt.Errorf("write page %d: %w", pageID, err)
	}

	if pageID >= m.nextPage {
		m.nextPage = pageID + 1
	}
	return nil
}

// AllocatePage hands out the next page id. Ids are monotonic; deallocated
// ids are never reused.
func (m *Manager) AllocatePage() storage.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextPage
	m.nextPage++
	return id
}

// Reserve makes sure the allocator never hands out ids up to and including
// pageID, for well-known pages like the index directory.
func (m *Manager) Reserve(pageID storage.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextPage <= pageID {
		m.nextPage = pageID + 1
	}
}

// DeallocatePage releases a page id. Idempotent; the file is not shrunk.
func (m *Manager) DeallocatePage(pageID storage.PageID) {
	// Space reclamation is a free-list concern this layer does not have yet.
	_ = pageID
}

// Close closes the database file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
