package btree

import (
	"fmt"

	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
	"github.com/tuannm99/granitedb/pkg/bx"
)

// internalEntrySize is key(8) + child pageID(4).
const internalEntrySize = 8 + 4

const internalCapacity = (storage.PageSize - nodeHeaderSize) / internalEntrySize

// InternalNode views a page as an internal B+ tree node. Size counts
// children; the key at index 0 is unused and keys [1, size) separate
// children [i-1] and [i].
type InternalNode struct {
	node
}

func asInternal(p *page.Page) InternalNode { return InternalNode{node{Page: p}} }

// Init stamps a fresh internal header. maxSize is clamped so one overflow
// child still fits the page before the split is carried out.
func (n InternalNode) Init(pageID, parentID storage.PageID, maxSize int) {
	if maxSize <= 0 || maxSize > internalCapacity-1 {
		maxSize = internalCapacity - 1
	}
	bx.PutU32At(n.data(), offPageType, pageTypeInternal)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	n.setPageID(pageID)
	n.SetParentPageID(parentID)
}

func (n InternalNode) entryOff(i int) int {
	return nodeHeaderSize + i*internalEntrySize
}

func (n InternalNode) KeyAt(i int) KeyType {
	return bx.I64At(n.data(), n.entryOff(i))
}

func (n InternalNode) SetKeyAt(i int, key KeyType) {
	bx.PutI64At(n.data(), n.entryOff(i), key)
}

// ValueAt returns the i-th child page id.
func (n InternalNode) ValueAt(i int) storage.PageID {
	return storage.PageID(bx.I32At(n.data(), n.entryOff(i)+8))
}

func (n InternalNode) setValueAt(i int, id storage.PageID) {
	bx.PutI32At(n.data(), n.entryOff(i)+8, int32(id))
}

func (n InternalNode) setEntry(i int, key KeyType, child storage.PageID) {
	n.SetKeyAt(i, key)
	n.setValueAt(i, child)
}

func (n InternalNode) copyEntry(dst int, src InternalNode, srcIdx int) {
	n.setEntry(dst, src.KeyAt(srcIdx), src.ValueAt(srcIdx))
}

// ValueIndex finds which child slot holds the given page id, or -1.
func (n InternalNode) ValueIndex(id storage.PageID) int {
	for i := 0; i < n.Size(); i++ {
		if n.ValueAt(i) == id {
			return i
		}
	}
	return -1
}

// Lookup returns the child page that covers key. Keys start at index 1.
func (n InternalNode) Lookup(key KeyType, cmp Comparator) storage.PageID {
	sz := n.Size()
	for i := 1; i < sz; i++ {
		if cmp(key, n.KeyAt(i)) < 0 {
			return n.ValueAt(i - 1)
		}
	}
	return n.ValueAt(sz - 1)
}

// PopulateNewRoot seeds a fresh root after the old root split.
func (n InternalNode) PopulateNewRoot(oldChild storage.PageID, key KeyType, newChild storage.PageID) {
	n.setValueAt(0, oldChild)
	n.setEntry(1, key, newChild)
	n.SetSize(2)
}

// InsertNodeAfter places (key, newChild) right after the slot holding
// oldChild and returns the new size.
func (n InternalNode) InsertNodeAfter(oldChild storage.PageID, key KeyType, newChild storage.PageID) int {
	at := n.ValueIndex(oldChild) + 1
	for j := n.Size(); j > at; j-- {
		n.copyEntry(j, n, j-1)
	}
	n.setEntry(at, key, newChild)
	n.IncSize(1)
	return n.Size()
}

// Remove drops the i-th (key, child) slot, shifting the tail left.
func (n InternalNode) Remove(i int) {
	for j := i; j < n.Size()-1; j++ {
		n.copyEntry(j, n, j+1)
	}
	n.IncSize(-1)
}

// adoptChild rewrites a relocated child's parent pointer in place.
func adoptChild(bpm *buffer.Manager, childID, parentID storage.PageID) error {
	p, err := bpm.FetchPage(childID)
	if err != nil {
		return fmt.Errorf("btree: reparent child %d: %w", childID, err)
	}
	node{Page: p}.SetParentPageID(parentID)
	bpm.UnpinPage(childID, true)
	return nil
}

// MoveHalfTo ships the upper half of the children to an empty recipient,
// reparenting each moved child.
func (n InternalNode) MoveHalfTo(recipient InternalNode, bpm *buffer.Manager) error {
	total := n.Size()
	splitAt := total / 2
	moved := 0
	for i := splitAt; i < total; i++ {
		recipient.copyEntry(moved, n, i)
		if err := adoptChild(bpm, n.ValueAt(i), recipient.PageID()); err != nil {
			return err
		}
		moved++
	}
	n.SetSize(splitAt)
	recipient.SetSize(moved)
	return nil
}

// MoveAllTo merges every child into the left neighbour. middleKey is the
// parent separator between the two nodes and becomes the key of the first
// moved entry.
func (n InternalNode) MoveAllTo(recipient InternalNode, middleKey KeyType, bpm *buffer.Manager) error {
	base := recipient.Size()
	for i := 0; i < n.Size(); i++ {
		key := n.KeyAt(i)
		if i == 0 {
			key = middleKey
		}
		recipient.setEntry(base+i, key, n.ValueAt(i))
		if err := adoptChild(bpm, n.ValueAt(i), recipient.PageID()); err != nil {
			return err
		}
	}
	recipient.IncSize(n.Size())
	n.SetSize(0)
	return nil
}

// MoveFirstToEndOf rotates this node's first child to the recipient's tail.
// middleKey (the parent separator) keys the moved child; the new separator
// for this node is its old KeyAt(1), which the caller writes to the parent.
func (n InternalNode) MoveFirstToEndOf(recipient InternalNode, middleKey KeyType, bpm *buffer.Manager) error {
	child := n.ValueAt(0)
	recipient.setEntry(recipient.Size(), middleKey, child)
	recipient.IncSize(1)
	n.Remove(0)
	return adoptChild(bpm, child, recipient.PageID())
}

// MoveLastToFrontOf rotates this node's last child to the recipient's head.
// middleKey (the parent separator) becomes the recipient's KeyAt(1); the new
// separator is this node's last key, which the caller writes to the parent.
func (n InternalNode) MoveLastToFrontOf(recipient InternalNode, middleKey KeyType, bpm *buffer.Manager) error {
	last := n.Size() - 1
	child := n.ValueAt(last)

	for j := recipient.Size(); j > 0; j-- {
		recipient.copyEntry(j, recipient, j-1)
	}
	recipient.setValueAt(0, child)
	recipient.SetKeyAt(1, middleKey)
	recipient.IncSize(1)
	n.IncSize(-1)
	return adoptChild(bpm, child, recipient.PageID())
}
