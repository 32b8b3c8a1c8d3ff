// Package wal is the write-ahead log manager. Every mutating heap operation
// appends a record here before the page change goes out through the buffer
// pool. Replay/recovery is a collaborator concern; this layer only guarantees
// the append-only, checksummed record stream and monotonic LSNs.
package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/pkg/bx"
)

var (
	ErrBadMagic  = errors.New("wal: bad magic")
	ErrBadCRC    = errors.New("wal: bad crc")
	ErrBadRecord = errors.New("wal: bad record")
	ErrShortRead = errors.New("wal: short read")
	ErrNoWALFile = errors.New("wal: wal file not found")
)

const (
	magicU32   uint32 = 0x4C415747 // "GWAL"
	versionU16        = 1
)

// RecordType tags what kind of mutation a record describes.
type RecordType uint8

const (
	RecBegin RecordType = iota + 1
	RecCommit
	RecAbort
	RecInsert
	RecMarkDelete
	RecApplyDelete
	RecRollbackDelete
	RecUpdate
	RecNewPage
)

// Record is one decoded log entry.
type Record struct {
	Type    RecordType
	LSN     uint64
	TxnID   uint64
	TID     storage.TID
	Payload []byte
}

// fixed fields:
// magic(4) ver(2) typ(1) rsv(1) totalLen(4) crc(4)
// lsn(8) txn(8) pageID(4) slot(2) payloadLen(2)
const fixedHeader = 4 + 2 + 1 + 1 + 4 + 4 + 8 + 8 + 4 + 2 + 2

type Manager struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	lsn     uint64
	flushed uint64
}

// Open creates or appends to dir/wal.log and resumes the LSN counter after
// the last complete record.
func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// Append writes one record and returns its LSN.
func (m *Manager) Append(typ RecordType, txnID uint64, tid storage.TID, payload []byte) (uint64, error) {
	if m == nil {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	m.lsn++
	lsn := m.lsn

	totalLen := fixedHeader + len(payload)
	buf := make([]byte, totalLen)
	off := 0

	putU32 := func(v uint32) { bx.PutU32(buf[off:off+4], v); off += 4 }
	putU16 := func(v uint16) { bx.PutU16(buf[off:off+2], v); off += 2 }
	putU64 := func(v uint64) { bx.PutU64(buf[off:off+8], v); off += 8 }
	putU8 := func(v uint8) { buf[off] = v; off++ }

	putU32(magicU32)
	putU16(versionU16)
	putU8(uint8(typ))
	putU8(0)

	putU32(uint32(totalLen))

	crcOff := off
	putU32(0) // placeholder

	putU64(lsn)
	putU64(txnID)
	putU32(uint32(tid.PageID))
	putU16(tid.Slot)
	putU16(uint16(len(payload)))

	copy(buf[off:], payload)
	off += len(payload)

	if off != totalLen {
		return 0, ErrBadRecord
	}

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32(buf[crcOff:crcOff+4], crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Flush syncs the log up to the given LSN.
func (m *Manager) Flush(upto uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	if upto == 0 || upto <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = upto
	return nil
}

// Scan replays the decoded record stream to fn, stopping at a torn tail.
func (m *Manager) Scan(fn func(*Record) error) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		rec, err := readOne(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// tolerate torn tail record
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortRead) {
				return nil
			}
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func (m *Manager) initLastLSN() error {
	last := uint64(0)
	err := m.Scan(func(rec *Record) error {
		if rec.LSN > last {
			last = rec.LSN
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.lsn = last
	m.mu.Unlock()
	return nil
}

func readOne(r *bufio.Reader) (*Record, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if bx.U32(hdr[:]) != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	if bx.U16(verB[:]) != versionU16 {
		return nil, ErrBadRecord
	}

	tp, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	if totalLen < fixedHeader {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - (4 + 2 + 1 + 1 + 4 + 4)
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}

	if crc32.ChecksumIEEE(rest) != wantCRC {
		return nil, ErrBadCRC
	}

	lsn := bx.U64(rest[0:8])
	txn := bx.U64(rest[8:16])
	pageID := bx.I32(rest[16:20])
	slot := bx.U16(rest[20:22])
	payloadLen := int(bx.U16(rest[22:24]))
	if 24+payloadLen > len(rest) {
		return nil, ErrBadRecord
	}

	return &Record{
		Type:    RecordType(tp),
		LSN:     lsn,
		TxnID:   txn,
		TID:     storage.TID{PageID: storage.PageID(pageID), Slot: slot},
		Payload: rest[24 : 24+payloadLen],
	}, nil
}
