package btree

import (
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
	"github.com/tuannm99/granitedb/pkg/bx"
)

// leafEntrySize is key(8) + tid pageID(4) + tid slot(2).
const leafEntrySize = 8 + 4 + 2

// leafCapacity is the hard bound the page geometry allows.
const leafCapacity = (storage.PageSize - leafHeaderSize) / leafEntrySize

// LeafNode views a page as a B+ tree leaf: a sorted (key, TID) array plus a
// forward sibling link for range scans.
type LeafNode struct {
	node
}

func asLeaf(p *page.Page) LeafNode { return LeafNode{node{Page: p}} }

// Init stamps a fresh leaf header. maxSize is clamped so one overflow entry
// still fits the page: inserts land before the split is carried out.
func (n LeafNode) Init(pageID, parentID storage.PageID, maxSize int) {
	if maxSize <= 0 || maxSize > leafCapacity-1 {
		maxSize = leafCapacity - 1
	}
	bx.PutU32At(n.data(), offPageType, pageTypeLeaf)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	n.setPageID(pageID)
	n.SetParentPageID(parentID)
	n.SetNextPageID(storage.InvalidPageID)
}

func (n LeafNode) NextPageID() storage.PageID {
	return storage.PageID(bx.I32At(n.data(), offNextPage))
}

func (n LeafNode) SetNextPageID(id storage.PageID) {
	bx.PutI32At(n.data(), offNextPage, int32(id))
}

func (n LeafNode) entryOff(i int) int {
	return leafHeaderSize + i*leafEntrySize
}

// KeyAt returns the i-th key.
func (n LeafNode) KeyAt(i int) KeyType {
	return bx.I64At(n.data(), n.entryOff(i))
}

// TIDAt returns the i-th value.
func (n LeafNode) TIDAt(i int) storage.TID {
	o := n.entryOff(i)
	return storage.TID{
		PageID: storage.PageID(bx.I32At(n.data(), o+8)),
		Slot:   bx.U16At(n.data(), o+12),
	}
}

func (n LeafNode) setEntry(i int, key KeyType, tid storage.TID) {
	o := n.entryOff(i)
	bx.PutI64At(n.data(), o, key)
	bx.PutI32At(n.data(), o+8, int32(tid.PageID))
	bx.PutU16At(n.data(), o+12, tid.Slot)
}

func (n LeafNode) copyEntry(dst int, src LeafNode, srcIdx int) {
	n.setEntry(dst, src.KeyAt(srcIdx), src.TIDAt(srcIdx))
}

// KeyIndex returns the index of the first key >= key, or Size() when all
// keys are smaller.
func (n LeafNode) KeyIndex(key KeyType, cmp Comparator) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup finds the value stored under key.
func (n LeafNode) Lookup(key KeyType, cmp Comparator) (storage.TID, bool) {
	i := n.KeyIndex(key, cmp)
	if i < n.Size() && cmp(n.KeyAt(i), key) == 0 {
		return n.TIDAt(i), true
	}
	return storage.TID{}, false
}

// Insert places (key, tid) in sorted position and returns the new size.
// The caller has already rejected duplicates.
func (n LeafNode) Insert(key KeyType, tid storage.TID, cmp Comparator) int {
	i := n.KeyIndex(key, cmp)
	for j := n.Size(); j > i; j-- {
		n.copyEntry(j, n, j-1)
	}
	n.setEntry(i, key, tid)
	n.IncSize(1)
	return n.Size()
}

// Remove deletes key if present and returns the new size plus the index the
// key occupied (-1 when absent).
func (n LeafNode) Remove(key KeyType, cmp Comparator) (int, int) {
	i := n.KeyIndex(key, cmp)
	if i >= n.Size() || cmp(n.KeyAt(i), key) != 0 {
		return n.Size(), -1
	}
	for j := i; j < n.Size()-1; j++ {
		n.copyEntry(j, n, j+1)
	}
	n.IncSize(-1)
	return n.Size(), i
}

// MoveHalfTo ships the upper half of this leaf to an empty recipient, for
// splits. The sibling link is adjusted by the caller.
func (n LeafNode) MoveHalfTo(recipient LeafNode) {
	total := n.Size()
	splitAt := total / 2
	moved := 0
	for i := splitAt; i < total; i++ {
		recipient.copyEntry(moved, n, i)
		moved++
	}
	n.SetSize(splitAt)
	recipient.SetSize(moved)
}

// MoveAllTo appends every entry to the left neighbour and inherits this
// leaf's sibling link, for coalescing.
func (n LeafNode) MoveAllTo(recipient LeafNode) {
	base := recipient.Size()
	for i := 0; i < n.Size(); i++ {
		recipient.copyEntry(base+i, n, i)
	}
	recipient.IncSize(n.Size())
	recipient.SetNextPageID(n.NextPageID())
	n.SetSize(0)
}

// MoveFirstToEndOf shifts this leaf's first entry to the recipient's tail,
// for redistribution with a left-side recipient.
func (n LeafNode) MoveFirstToEndOf(recipient LeafNode) {
	recipient.setEntry(recipient.Size(), n.KeyAt(0), n.TIDAt(0))
	recipient.IncSize(1)
	for j := 0; j < n.Size()-1; j++ {
		n.copyEntry(j, n, j+1)
	}
	n.IncSize(-1)
}

// MoveLastToFrontOf shifts this leaf's last entry to the recipient's head,
// for redistribution with a right-side recipient.
func (n LeafNode) MoveLastToFrontOf(recipient LeafNode) {
	for j := recipient.Size(); j > 0; j-- {
		recipient.copyEntry(j, recipient, j-1)
	}
	last := n.Size() - 1
	recipient.setEntry(0, n.KeyAt(last), n.TIDAt(last))
	recipient.IncSize(1)
	n.IncSize(-1)
}
