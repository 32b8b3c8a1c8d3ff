package page

import (
	"errors"

	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/pkg/bx"
)

// The header page is a tiny directory persisted at HeaderPageID mapping index
// names to their root page ids, so indexes survive a restart.
//
// Layout: count u32, then fixed records of [name 32 bytes | root i32].
const (
	headerCountOff  = 0
	headerRecordOff = 4

	headerNameLen    = 32
	headerRecordSize = headerNameLen + 4

	maxHeaderRecords = (storage.PageSize - headerRecordOff) / headerRecordSize
)

var (
	ErrHeaderFull      = errors.New("page: header directory is full")
	ErrRecordNotFound  = errors.New("page: header record not found")
	ErrDuplicateRecord = errors.New("page: header record already exists")
	ErrNameTooLong     = errors.New("page: index name too long")
)

// HeaderPage is the typed view over the directory page.
type HeaderPage struct {
	Page *Page
}

func (hp HeaderPage) count() int {
	return int(bx.U32At(hp.Page.Data(), headerCountOff))
}

func (hp HeaderPage) setCount(n int) {
	bx.PutU32At(hp.Page.Data(), headerCountOff, uint32(n))
}

func (hp HeaderPage) recordOff(i int) int {
	return headerRecordOff + i*headerRecordSize
}

func (hp HeaderPage) nameAt(i int) string {
	b := hp.Page.Data()
	o := hp.recordOff(i)
	raw := b[o : o+headerNameLen]
	end := 0
	for end < headerNameLen && raw[end] != 0 {
		end++
	}
	return string(raw[:end])
}

func (hp HeaderPage) rootAt(i int) storage.PageID {
	return storage.PageID(bx.I32At(hp.Page.Data(), hp.recordOff(i)+headerNameLen))
}

func (hp HeaderPage) find(name string) int {
	for i := 0; i < hp.count(); i++ {
		if hp.nameAt(i) == name {
			return i
		}
	}
	return -1
}

func (hp HeaderPage) writeRecord(i int, name string, root storage.PageID) {
	b := hp.Page.Data()
	o := hp.recordOff(i)
	for j := 0; j < headerNameLen; j++ {
		b[o+j] = 0
	}
	copy(b[o:o+headerNameLen], name)
	bx.PutI32At(b, o+headerNameLen, int32(root))
}

// InsertRecord registers a new (name, root) pair.
func (hp HeaderPage) InsertRecord(name string, root storage.PageID) error {
	if len(name) > headerNameLen {
		return ErrNameTooLong
	}
	if hp.find(name) >= 0 {
		return ErrDuplicateRecord
	}
	n := hp.count()
	if n >= maxHeaderRecords {
		return ErrHeaderFull
	}
	hp.writeRecord(n, name, root)
	hp.setCount(n + 1)
	return nil
}

// UpdateRecord rewrites the root of an existing record.
func (hp HeaderPage) UpdateRecord(name string, root storage.PageID) error {
	i := hp.find(name)
	if i < 0 {
		return ErrRecordNotFound
	}
	hp.writeRecord(i, name, root)
	return nil
}

// DeleteRecord removes a record, compacting the tail over it.
func (hp HeaderPage) DeleteRecord(name string) error {
	i := hp.find(name)
	if i < 0 {
		return ErrRecordNotFound
	}
	n := hp.count()
	for j := i; j < n-1; j++ {
		hp.writeRecord(j, hp.nameAt(j+1), hp.rootAt(j+1))
	}
	hp.setCount(n - 1)
	return nil
}

// GetRootID looks up the root page recorded for an index name.
func (hp HeaderPage) GetRootID(name string) (storage.PageID, error) {
	i := hp.find(name)
	if i < 0 {
		return storage.InvalidPageID, ErrRecordNotFound
	}
	return hp.rootAt(i), nil
}
