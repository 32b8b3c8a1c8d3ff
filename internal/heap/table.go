// Package heap implements the table heap: a chain of slotted pages holding
// rows addressed by TID, with two-phase deletes so transactions can roll a
// delete mark back before it is applied.
package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
	"github.com/tuannm99/granitedb/internal/wal"
)

var ErrTupleNotFound = errors.New("heap: tuple not found")

// pageView aliases the slotted view so slot mutators can be passed around as
// method expressions.
type pageView = page.TablePage

var errNoSpace = page.ErrNoSpace

func tablePage(p *page.Page) pageView { return pageView{Page: p} }

// Table is one heap file: rows of a single schema spread over a linked chain
// of slotted pages reached through the buffer pool. Every row mutation appends
// a WAL record. Inserts and delete marks made under a transaction also land in
// its write set for commit finalization or abort rollback; Update does not.
type Table struct {
	Name   string
	Schema *record.Schema

	bpm *buffer.Manager
	log *wal.Manager

	mu          sync.Mutex
	firstPageID storage.PageID
	lastPageID  storage.PageID
}

var _ concurrency.UndoTable = (*Table)(nil)

// CreateTable allocates the first page of a new heap.
func CreateTable(name string, schema *record.Schema, bpm *buffer.Manager, log *wal.Manager) (*Table, error) {
	p, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("heap: create table %s: %w", name, err)
	}
	tp := tablePage(p)
	tp.Reset(p.ID())
	bpm.UnpinPage(p.ID(), true)

	return &Table{
		Name:        name,
		Schema:      schema,
		bpm:         bpm,
		log:         log,
		firstPageID: p.ID(),
		lastPageID:  p.ID(),
	}, nil
}

// OpenTable attaches to an existing heap chain.
func OpenTable(name string, schema *record.Schema, bpm *buffer.Manager, log *wal.Manager, firstPageID storage.PageID) (*Table, error) {
	t := &Table{
		Name:        name,
		Schema:      schema,
		bpm:         bpm,
		log:         log,
		firstPageID: firstPageID,
		lastPageID:  firstPageID,
	}

	// Walk to the tail so inserts resume at the right page.
	cur := firstPageID
	for cur != storage.InvalidPageID {
		p, err := bpm.FetchPage(cur)
		if err != nil {
			return nil, err
		}
		next := tablePage(p).NextPageID()
		bpm.UnpinPage(cur, false)
		t.lastPageID = cur
		cur = next
	}
	return t, nil
}

// FirstPageID is the head of the page chain, persisted by the catalog.
func (t *Table) FirstPageID() storage.PageID { return t.firstPageID }

// Insert appends a row, preferring the tail page and growing the chain when
// it is full. Returns the new row's TID.
func (t *Table) Insert(txn *concurrency.Transaction, values []any) (storage.TID, error) {
	data, err := record.EncodeRow(t.Schema, values)
	if err != nil {
		return storage.TID{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pageID := t.lastPageID
	for {
		p, err := t.bpm.FetchPage(pageID)
		if err != nil {
			return storage.TID{}, err
		}
		tp := tablePage(p)

		p.WLatch()
		if tp.IsUninitialized() {
			tp.Reset(pageID)
		}
		slot, insErr := tp.InsertTuple(data)
		if insErr == nil {
			tid := storage.TID{PageID: pageID, Slot: uint16(slot)}
			lsn, logErr := t.log.Append(wal.RecInsert, txnID(txn), tid, data)
			p.WUnlatch()
			t.bpm.UnpinPage(pageID, true)
			if logErr != nil {
				return storage.TID{}, logErr
			}
			_ = t.log.Flush(lsn)

			if txn != nil {
				txn.RecordWrite(concurrency.WriteRecord{TID: tid, Type: concurrency.WriteInsert, Table: t})
			}
			slog.Debug("heap.Insert", "table", t.Name, "tid", tid)
			return tid, nil
		}
		if !errors.Is(insErr, errNoSpace) {
			p.WUnlatch()
			t.bpm.UnpinPage(pageID, false)
			return storage.TID{}, insErr
		}

		// Tail page is full; extend the chain.
		next := tp.NextPageID()
		if next == storage.InvalidPageID {
			np, newErr := t.bpm.NewPage()
			if newErr != nil {
				p.WUnlatch()
				t.bpm.UnpinPage(pageID, false)
				return storage.TID{}, fmt.Errorf("heap: extend table %s: %w", t.Name, newErr)
			}
			tablePage(np).Reset(np.ID())
			tp.SetNextPageID(np.ID())
			next = np.ID()
			t.bpm.UnpinPage(np.ID(), true)
			p.WUnlatch()
			t.bpm.UnpinPage(pageID, true)
		} else {
			p.WUnlatch()
			t.bpm.UnpinPage(pageID, false)
		}

		t.lastPageID = next
		pageID = next
	}
}

// Get reads one row by TID.
func (t *Table) Get(txn *concurrency.Transaction, tid storage.TID) (*record.Tuple, error) {
	p, err := t.bpm.FetchPage(tid.PageID)
	if err != nil {
		return nil, err
	}
	tp := tablePage(p)

	p.RLatch()
	data, err := tp.ReadTuple(int(tid.Slot))
	p.RUnlatch()
	t.bpm.UnpinPage(tid.PageID, false)
	if err != nil {
		return nil, err
	}

	values, err := record.DecodeRow(t.Schema, data)
	if err != nil {
		return nil, err
	}
	return &record.Tuple{Values: values, TID: tid}, nil
}

// MarkDelete flags the row deleted. The bytes stay until commit applies the
// delete; an abort rolls the mark back.
func (t *Table) MarkDelete(txn *concurrency.Transaction, tid storage.TID) error {
	if err := t.mutateSlot(tid, wal.RecMarkDelete, txnID(txn), pageView.MarkDelete); err != nil {
		return err
	}
	if txn != nil {
		txn.RecordWrite(concurrency.WriteRecord{TID: tid, Type: concurrency.WriteDelete, Table: t})
	}
	return nil
}

// Update rewrites a row in place. Rows that grow are deleted and reinserted
// by the caller.
func (t *Table) Update(txn *concurrency.Transaction, tid storage.TID, values []any) error {
	data, err := record.EncodeRow(t.Schema, values)
	if err != nil {
		return err
	}

	p, err := t.bpm.FetchPage(tid.PageID)
	if err != nil {
		return err
	}
	tp := tablePage(p)

	p.WLatch()
	err = tp.UpdateTuple(int(tid.Slot), data)
	p.WUnlatch()
	t.bpm.UnpinPage(tid.PageID, err == nil)
	if err != nil {
		return err
	}

	lsn, err := t.log.Append(wal.RecUpdate, txnID(txn), tid, data)
	if err != nil {
		return err
	}
	return t.log.Flush(lsn)
}

// UndoInsert physically removes a row the aborting transaction inserted.
func (t *Table) UndoInsert(tid storage.TID) error {
	return t.mutateSlot(tid, wal.RecApplyDelete, 0, pageView.ApplyDelete)
}

// UndoMarkDelete clears a delete mark during abort.
func (t *Table) UndoMarkDelete(tid storage.TID) error {
	return t.mutateSlot(tid, wal.RecRollbackDelete, 0, pageView.RollbackDelete)
}

// FinalizeDelete reclaims a marked row at commit.
func (t *Table) FinalizeDelete(tid storage.TID) error {
	return t.mutateSlot(tid, wal.RecApplyDelete, 0, pageView.ApplyDelete)
}

func (t *Table) mutateSlot(tid storage.TID, rec wal.RecordType, txn uint64, op func(pageView, int) error) error {
	p, err := t.bpm.FetchPage(tid.PageID)
	if err != nil {
		return err
	}
	tp := tablePage(p)

	p.WLatch()
	err = op(tp, int(tid.Slot))
	p.WUnlatch()
	t.bpm.UnpinPage(tid.PageID, err == nil)
	if err != nil {
		return err
	}

	lsn, err := t.log.Append(rec, txn, tid, nil)
	if err != nil {
		return err
	}
	return t.log.Flush(lsn)
}

func txnID(txn *concurrency.Transaction) uint64 {
	if txn == nil {
		return 0
	}
	return uint64(txn.ID())
}
