package btree

import (
	"github.com/tuannm99/granitedb/internal/storage"
)

// Iterator walks the leaf chain forward, holding a pin on the current leaf.
// The end position is the last leaf with the index at its size; termination
// compares the sibling link against InvalidPageID, never the header page id.
type Iterator struct {
	tree *BPlusTree
	leaf LeafNode
	idx  int
	done bool
}

// Begin positions an iterator at the leftmost entry.
func (t *BPlusTree) Begin() (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{tree: t, done: true}, nil
	}
	p, err := t.findLeaf(0, opRead, true, nil)
	if err != nil {
		return nil, err
	}
	it := &Iterator{tree: t, leaf: asLeaf(p)}
	if err := it.skipExhausted(); err != nil {
		return nil, err
	}
	return it, nil
}

// BeginAt positions an iterator at the first entry with key >= key.
func (t *BPlusTree) BeginAt(key KeyType) (*Iterator, error) {
	if t.IsEmpty() {
		return &Iterator{tree: t, done: true}, nil
	}
	p, err := t.findLeaf(key, opRead, false, nil)
	if err != nil {
		return nil, err
	}
	leaf := asLeaf(p)
	it := &Iterator{tree: t, leaf: leaf, idx: leaf.KeyIndex(key, t.cmp)}
	if err := it.skipExhausted(); err != nil {
		return nil, err
	}
	return it, nil
}

// Valid reports whether the iterator points at an entry.
func (it *Iterator) Valid() bool { return !it.done }

// Key returns the current entry's key.
func (it *Iterator) Key() KeyType { return it.leaf.KeyAt(it.idx) }

// TID returns the current entry's value.
func (it *Iterator) TID() storage.TID { return it.leaf.TIDAt(it.idx) }

// Next advances one entry, hopping to the next leaf through the sibling
// link when the current one is exhausted.
func (it *Iterator) Next() error {
	if it.done {
		return nil
	}
	it.idx++
	return it.skipExhausted()
}

func (it *Iterator) skipExhausted() error {
	for !it.done && it.idx >= it.leaf.Size() {
		next := it.leaf.NextPageID()
		if next == storage.InvalidPageID {
			it.done = true
			it.tree.bpm.UnpinPage(it.leaf.PageID(), false)
			it.leaf = LeafNode{}
			return nil
		}

		p, err := it.tree.bpm.FetchPage(next)
		if err != nil {
			return err
		}
		it.tree.bpm.UnpinPage(it.leaf.PageID(), false)
		it.leaf = asLeaf(p)
		it.idx = 0
	}
	return nil
}

// Close drops the pin on the current leaf. Safe to call repeatedly.
func (it *Iterator) Close() {
	if it.done || it.leaf.Page == nil {
		return
	}
	it.tree.bpm.UnpinPage(it.leaf.PageID(), false)
	it.leaf = LeafNode{}
	it.done = true
}
