package heap

import (
	"errors"

	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
)

// Iterator walks every live row of the heap in page-chain order. Each step
// fetches and releases the page it reads, so no pin outlives a call.
type Iterator struct {
	table *Table
	txn   *concurrency.Transaction

	pageID storage.PageID
	slot   int
	cur    *record.Tuple
	done   bool
}

// Begin positions an iterator on the first live row.
func (t *Table) Begin(txn *concurrency.Transaction) (*Iterator, error) {
	it := &Iterator{
		table:  t,
		txn:    txn,
		pageID: t.firstPageID,
		slot:   -1,
	}
	if err := it.advance(); err != nil {
		return nil, err
	}
	return it, nil
}

// Valid reports whether the iterator points at a row.
func (it *Iterator) Valid() bool { return !it.done }

// Tuple returns the current row.
func (it *Iterator) Tuple() *record.Tuple { return it.cur }

// Next moves to the next live row.
func (it *Iterator) Next() error { return it.advance() }

func (it *Iterator) advance() error {
	if it.done {
		return nil
	}

	for it.pageID != storage.InvalidPageID {
		p, err := it.table.bpm.FetchPage(it.pageID)
		if err != nil {
			return err
		}
		tp := tablePage(p)

		p.RLatch()
		if tp.IsUninitialized() {
			p.RUnlatch()
			it.table.bpm.UnpinPage(it.pageID, false)
			break
		}

		numSlots := tp.NumSlots()
		for it.slot++; it.slot < numSlots; it.slot++ {
			if !tp.IsLive(it.slot) {
				continue
			}
			data, err := tp.ReadTuple(it.slot)
			if err != nil {
				if errors.Is(err, page.ErrTupleDeleted) {
					continue
				}
				p.RUnlatch()
				it.table.bpm.UnpinPage(it.pageID, false)
				return err
			}

			values, err := record.DecodeRow(it.table.Schema, data)
			if err != nil {
				p.RUnlatch()
				it.table.bpm.UnpinPage(it.pageID, false)
				return err
			}

			it.cur = &record.Tuple{
				Values: values,
				TID:    storage.TID{PageID: it.pageID, Slot: uint16(it.slot)},
			}
			p.RUnlatch()
			it.table.bpm.UnpinPage(it.pageID, false)
			return nil
		}

		next := tp.NextPageID()
		p.RUnlatch()
		it.table.bpm.UnpinPage(it.pageID, false)

		it.pageID = next
		it.slot = -1
	}

	it.done = true
	it.cur = nil
	return nil
}
