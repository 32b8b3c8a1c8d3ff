package btree

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
)

// ErrTreeCorrupt reports an inconsistency between parent and child pages.
var ErrTreeCorrupt = errors.New("btree: tree structure corrupt")

// BPlusTree is a unique-key ordered index. Buffer-pool allocation failures
// are unrecoverable at this layer and surface as wrapped ErrNoFreeFrame.
//
// Concurrency: traversals latch-couple from the root. Readers hold at most
// parent+child shared latches; writers keep ancestors write-latched (in the
// transaction's page set) until the current node is safe.
type BPlusTree struct {
	indexName string
	bpm       *buffer.Manager
	cmp       Comparator

	leafMaxSize     int
	internalMaxSize int

	root atomic.Int32

	// rootLatch is the virtual page above the root: traversals take it
	// (shared for reads, exclusive for writes) before fetching the root and
	// keep it until the root cannot be swapped under them. Root swaps only
	// happen while it is held exclusively.
	rootLatch sync.RWMutex
}

// New builds a tree handle. Zero max sizes mean "fill the page".
func New(indexName string, bpm *buffer.Manager, cmp Comparator, leafMaxSize, internalMaxSize int) *BPlusTree {
	if cmp == nil {
		cmp = CompareKeys
	}
	t := &BPlusTree{
		indexName:       indexName,
		bpm:             bpm,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
	}
	t.setRootID(storage.InvalidPageID)
	return t
}

func (t *BPlusTree) rootID() storage.PageID {
	return storage.PageID(t.root.Load())
}

func (t *BPlusTree) setRootID(id storage.PageID) {
	t.root.Store(int32(id))
}

// IsEmpty reports whether the tree has no root.
func (t *BPlusTree) IsEmpty() bool { return t.rootID() == storage.InvalidPageID }

// RootPageID exposes the current root, for invariant checks in tests.
func (t *BPlusTree) RootPageID() storage.PageID { return t.rootID() }

// LoadRoot restores the persisted root from the header page, for reopening
// an existing index.
func (t *BPlusTree) LoadRoot() error {
	p, err := t.bpm.FetchPage(storage.HeaderPageID)
	if err != nil {
		return fmt.Errorf("btree: fetch header page: %w", err)
	}
	defer t.bpm.UnpinPage(storage.HeaderPageID, false)

	p.RLatch()
	defer p.RUnlatch()

	root, err := (page.HeaderPage{Page: p}).GetRootID(t.indexName)
	if err != nil {
		if errors.Is(err, page.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	t.setRootID(root)
	return nil
}

// updateRootPageID persists (indexName, root) into the header page, creating
// the record on first use.
func (t *BPlusTree) updateRootPageID() error {
	p, err := t.bpm.FetchPage(storage.HeaderPageID)
	if err != nil {
		return fmt.Errorf("btree: fetch header page: %w", err)
	}
	defer t.bpm.UnpinPage(storage.HeaderPageID, true)

	p.WLatch()
	defer p.WUnlatch()

	hp := page.HeaderPage{Page: p}
	if err := hp.UpdateRecord(t.indexName, t.rootID()); err != nil {
		if errors.Is(err, page.ErrRecordNotFound) {
			return hp.InsertRecord(t.indexName, t.rootID())
		}
		return err
	}
	return nil
}

/*****************************************************************************
 * SEARCH
 *****************************************************************************/

// GetValue does a point lookup. Readers crab down with shared latches when a
// transaction is supplied.
func (t *BPlusTree) GetValue(key KeyType, txn *concurrency.Transaction) (storage.TID, bool, error) {
	if t.IsEmpty() {
		return storage.TID{}, false, nil
	}

	p, err := t.findLeaf(key, opRead, false, txn)
	if err != nil {
		return storage.TID{}, false, err
	}
	leaf := asLeaf(p)

	if txn != nil {
		p.RLatch()
		t.unlatchAndUnpin(opRead, txn)
	}

	tid, ok := leaf.Lookup(key, t.cmp)

	if txn != nil {
		p.RUnlatch()
	}
	t.bpm.UnpinPage(leaf.PageID(), false)
	return tid, ok, nil
}

// ScanKey returns the values matching key (at most one for a unique tree).
func (t *BPlusTree) ScanKey(key KeyType, txn *concurrency.Transaction) ([]storage.TID, error) {
	tid, ok, err := t.GetValue(key, txn)
	if err != nil || !ok {
		return nil, err
	}
	return []storage.TID{tid}, nil
}

/*****************************************************************************
 * INSERTION
 *****************************************************************************/

// Insert adds (key, tid). Duplicate keys are rejected with ok=false.
func (t *BPlusTree) Insert(key KeyType, tid storage.TID, txn *concurrency.Transaction) (bool, error) {
	if t.IsEmpty() {
		created, err := t.startNewTree(key, tid)
		if err != nil {
			return false, err
		}
		if created {
			return true, nil
		}
		// Lost the race to another writer; fall through to a normal insert.
	}
	return t.insertIntoLeaf(key, tid, txn)
}

// startNewTree allocates the first leaf as root. Returns false when another
// writer built the root first.
func (t *BPlusTree) startNewTree(key KeyType, tid storage.TID) (bool, error) {
	t.rootLatch.Lock()
	defer t.rootLatch.Unlock()

	if !t.IsEmpty() {
		return false, nil
	}

	p, err := t.bpm.NewPage()
	if err != nil {
		return false, fmt.Errorf("btree: out of memory: %w", err)
	}
	leaf := asLeaf(p)
	leaf.Init(p.ID(), storage.InvalidPageID, t.leafMaxSize)
	leaf.Insert(key, tid, t.cmp)

	t.setRootID(p.ID())
	if err := t.updateRootPageID(); err != nil {
		t.bpm.UnpinPage(p.ID(), true)
		return false, err
	}
	t.bpm.UnpinPage(p.ID(), true)

	slog.Debug("btree.startNewTree", "index", t.indexName, "root", p.ID())
	return true, nil
}

func (t *BPlusTree) insertIntoLeaf(key KeyType, tid storage.TID, txn *concurrency.Transaction) (bool, error) {
	p, err := t.findLeaf(key, opInsert, false, txn)
	if err != nil {
		return false, err
	}
	leaf := asLeaf(p)

	if txn != nil {
		p.WLatch()
		if leaf.IsSafe(opInsert) {
			t.unlatchAndUnpin(opInsert, txn)
		}
	}

	inserted := false
	if _, dup := leaf.Lookup(key, t.cmp); !dup {
		leaf.Insert(key, tid, t.cmp)
		inserted = true

		if leaf.Size() > leaf.MaxSize() {
			newLeaf, err := t.splitLeaf(leaf)
			if err == nil {
				err = t.insertIntoParent(leaf.node, newLeaf.KeyAt(0), newLeaf.node)
				t.bpm.UnpinPage(newLeaf.PageID(), true)
			}
			if err != nil {
				if txn != nil {
					t.unlatchAndUnpin(opInsert, txn)
					p.WUnlatch()
				}
				t.bpm.UnpinPage(leaf.PageID(), true)
				return false, err
			}
		}
	}

	if txn != nil {
		t.unlatchAndUnpin(opInsert, txn)
		p.WUnlatch()
	}
	t.bpm.UnpinPage(leaf.PageID(), true)
	return inserted, nil
}

// splitLeaf moves the upper half of leaf into a fresh right sibling and
// links it into the leaf chain. The new page comes back pinned.
func (t *BPlusTree) splitLeaf(leaf LeafNode) (LeafNode, error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		return LeafNode{}, fmt.Errorf("btree: out of memory: %w", err)
	}

	newLeaf := asLeaf(p)
	newLeaf.Init(p.ID(), leaf.ParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(newLeaf)

	newLeaf.SetNextPageID(leaf.NextPageID())
	leaf.SetNextPageID(newLeaf.PageID())
	return newLeaf, nil
}

// splitInternal moves the upper half of the children into a fresh sibling,
// reparenting each moved child. The new page comes back pinned.
func (t *BPlusTree) splitInternal(in InternalNode) (InternalNode, error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		return InternalNode{}, fmt.Errorf("btree: out of memory: %w", err)
	}

	newIn := asInternal(p)
	newIn.Init(p.ID(), in.ParentPageID(), t.internalMaxSize)
	if err := in.MoveHalfTo(newIn, t.bpm); err != nil {
		t.bpm.UnpinPage(p.ID(), true)
		return InternalNode{}, err
	}
	return newIn, nil
}

// insertIntoParent wires a freshly split sibling into the tree, creating a
// new root when the old root itself split.
func (t *BPlusTree) insertIntoParent(old node, key KeyType, newNode node) error {
	if old.IsRoot() {
		// The old root was an unsafe node on the writer's path, so the
		// traversal still holds the root latch exclusively; the swap below
		// cannot be observed half-done.
		p, err := t.bpm.NewPage()
		if err != nil {
			return fmt.Errorf("btree: out of memory: %w", err)
		}
		newRoot := asInternal(p)
		newRoot.Init(p.ID(), storage.InvalidPageID, t.internalMaxSize)
		newRoot.PopulateNewRoot(old.PageID(), key, newNode.PageID())

		old.SetParentPageID(p.ID())
		newNode.SetParentPageID(p.ID())

		t.setRootID(p.ID())
		err = t.updateRootPageID()
		t.bpm.UnpinPage(p.ID(), true)
		return err
	}

	parentID := old.ParentPageID()
	p, err := t.bpm.FetchPage(parentID)
	if err != nil {
		return fmt.Errorf("btree: fetch parent %d: %w", parentID, err)
	}
	parent := asInternal(p)

	parent.InsertNodeAfter(old.PageID(), key, newNode.PageID())
	newNode.SetParentPageID(parentID)

	if parent.Size() > parent.MaxSize() {
		newParent, err := t.splitInternal(parent)
		if err == nil {
			err = t.insertIntoParent(parent.node, newParent.KeyAt(0), newParent.node)
			t.bpm.UnpinPage(newParent.PageID(), true)
		}
		if err != nil {
			t.bpm.UnpinPage(parentID, true)
			return err
		}
	}

	t.bpm.UnpinPage(parentID, true)
	return nil
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

// Remove deletes key if present. Missing keys are silent.
func (t *BPlusTree) Remove(key KeyType, txn *concurrency.Transaction) error {
	if t.IsEmpty() {
		return nil
	}

	p, err := t.findLeaf(key, opDelete, false, txn)
	if err != nil {
		return err
	}
	leaf := asLeaf(p)

	if txn != nil {
		p.WLatch()
		if leaf.IsSafe(opDelete) {
			t.unlatchAndUnpin(opDelete, txn)
		}
	}

	var pendingDeletes []storage.PageID
	deleteSelf := false

	_, removedAt := leaf.Remove(key, t.cmp)
	if removedAt >= 0 {
		// A deleted first key was the parent separator; push the new one up.
		if removedAt == 0 && !leaf.IsRoot() && leaf.Size() > 0 {
			if err := t.updateParentKey(leaf); err != nil {
				removeErr := err
				if txn != nil {
					t.unlatchAndUnpin(opDelete, txn)
					p.WUnlatch()
				}
				t.bpm.UnpinPage(leaf.PageID(), true)
				return removeErr
			}
		}

		if leaf.Size() < leaf.MinSize() || (leaf.IsRoot() && leaf.Size() == 0) {
			deleteSelf, err = t.coalesceOrRedistributeLeaf(leaf, &pendingDeletes)
		}
	}

	if txn != nil {
		t.unlatchAndUnpin(opDelete, txn)
		p.WUnlatch()
	}
	t.bpm.UnpinPage(leaf.PageID(), true)

	if err != nil {
		return err
	}

	if deleteSelf {
		pendingDeletes = append(pendingDeletes, leaf.PageID())
	}
	for _, id := range pendingDeletes {
		if derr := t.bpm.DeletePage(id); derr != nil {
			return derr
		}
	}
	return nil
}

// updateParentKey rewrites the parent separator for a leaf whose first key
// changed.
func (t *BPlusTree) updateParentKey(leaf LeafNode) error {
	p, err := t.bpm.FetchPage(leaf.ParentPageID())
	if err != nil {
		return fmt.Errorf("btree: fetch parent %d: %w", leaf.ParentPageID(), err)
	}
	parent := asInternal(p)

	idx := parent.ValueIndex(leaf.PageID())
	if idx > 0 {
		parent.SetKeyAt(idx, leaf.KeyAt(0))
	}
	t.bpm.UnpinPage(parent.PageID(), true)
	return nil
}

// coalesceOrRedistributeLeaf restores the minimum-occupancy invariant for an
// underflowing leaf. Returns whether the caller must delete the leaf's page.
func (t *BPlusTree) coalesceOrRedistributeLeaf(leaf LeafNode, pending *[]storage.PageID) (bool, error) {
	if leaf.PageID() == t.rootID() {
		return t.adjustRoot(leaf.node, pending)
	}

	pp, err := t.bpm.FetchPage(leaf.ParentPageID())
	if err != nil {
		return false, fmt.Errorf("btree: fetch parent %d: %w", leaf.ParentPageID(), err)
	}
	parent := asInternal(pp)
	idx := parent.ValueIndex(leaf.PageID())
	if idx < 0 {
		t.bpm.UnpinPage(parent.PageID(), false)
		return false, ErrTreeCorrupt
	}

	// 1) Redistribute from the right sibling.
	if idx+1 < parent.Size() {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx + 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asLeaf(sp)
		if sibling.Size() > sibling.MinSize() {
			sp.WLatch()
			sibling.MoveFirstToEndOf(leaf)
			parent.SetKeyAt(idx+1, sibling.KeyAt(0))
			sp.WUnlatch()

			t.bpm.UnpinPage(sibling.PageID(), true)
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, nil
		}
		t.bpm.UnpinPage(sibling.PageID(), false)
	}

	// 2) Redistribute from the left sibling.
	if idx-1 >= 0 {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx - 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asLeaf(sp)
		if sibling.Size() > sibling.MinSize() {
			sp.WLatch()
			sibling.MoveLastToFrontOf(leaf)
			parent.SetKeyAt(idx, leaf.KeyAt(0))
			sp.WUnlatch()

			t.bpm.UnpinPage(sibling.PageID(), true)
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, nil
		}
		t.bpm.UnpinPage(sibling.PageID(), false)
	}

	// 3) Coalesce: into the left sibling when one exists, else pull the
	// right sibling into this leaf.
	deleteSelf := false
	if idx-1 >= 0 {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx - 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asLeaf(sp)

		sp.WLatch()
		leaf.MoveAllTo(sibling)
		sp.WUnlatch()
		t.bpm.UnpinPage(sibling.PageID(), true)

		parent.Remove(idx)
		deleteSelf = true
	} else {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx + 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asLeaf(sp)

		sp.WLatch()
		sibling.MoveAllTo(leaf)
		sp.WUnlatch()

		parent.Remove(idx + 1)
		t.bpm.UnpinPage(sibling.PageID(), true)
		*pending = append(*pending, sibling.PageID())
	}

	if err := t.maybeShrinkParent(parent, pending); err != nil {
		t.bpm.UnpinPage(parent.PageID(), true)
		return false, err
	}
	t.bpm.UnpinPage(parent.PageID(), true)
	return deleteSelf, nil
}

// coalesceOrRedistributeInternal is the internal-node analogue. Child moves
// rewrite the relocated children's parent pointers in place.
func (t *BPlusTree) coalesceOrRedistributeInternal(in InternalNode, pending *[]storage.PageID) (bool, error) {
	if in.PageID() == t.rootID() {
		return t.adjustRoot(in.node, pending)
	}

	pp, err := t.bpm.FetchPage(in.ParentPageID())
	if err != nil {
		return false, fmt.Errorf("btree: fetch parent %d: %w", in.ParentPageID(), err)
	}
	parent := asInternal(pp)
	idx := parent.ValueIndex(in.PageID())
	if idx < 0 {
		t.bpm.UnpinPage(parent.PageID(), false)
		return false, ErrTreeCorrupt
	}

	// 1) Redistribute from the right sibling.
	if idx+1 < parent.Size() {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx + 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asInternal(sp)
		if sibling.Size() > sibling.MinSize() {
			sp.WLatch()
			middleKey := parent.KeyAt(idx + 1)
			err = sibling.MoveFirstToEndOf(in, middleKey, t.bpm)
			if err == nil {
				parent.SetKeyAt(idx+1, sibling.KeyAt(0))
			}
			sp.WUnlatch()

			t.bpm.UnpinPage(sibling.PageID(), true)
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		t.bpm.UnpinPage(sibling.PageID(), false)
	}

	// 2) Redistribute from the left sibling.
	if idx-1 >= 0 {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx - 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asInternal(sp)
		if sibling.Size() > sibling.MinSize() {
			sp.WLatch()
			middleKey := parent.KeyAt(idx)
			newSep := sibling.KeyAt(sibling.Size() - 1)
			err = sibling.MoveLastToFrontOf(in, middleKey, t.bpm)
			if err == nil {
				parent.SetKeyAt(idx, newSep)
			}
			sp.WUnlatch()

			t.bpm.UnpinPage(sibling.PageID(), true)
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		t.bpm.UnpinPage(sibling.PageID(), false)
	}

	// 3) Coalesce.
	deleteSelf := false
	if idx-1 >= 0 {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx - 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asInternal(sp)

		sp.WLatch()
		err = in.MoveAllTo(sibling, parent.KeyAt(idx), t.bpm)
		sp.WUnlatch()
		t.bpm.UnpinPage(sibling.PageID(), true)
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}

		parent.Remove(idx)
		deleteSelf = true
	} else {
		sp, err := t.bpm.FetchPage(parent.ValueAt(idx + 1))
		if err != nil {
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}
		sibling := asInternal(sp)

		sp.WLatch()
		err = sibling.MoveAllTo(in, parent.KeyAt(idx+1), t.bpm)
		sp.WUnlatch()
		if err != nil {
			t.bpm.UnpinPage(sibling.PageID(), true)
			t.bpm.UnpinPage(parent.PageID(), true)
			return false, err
		}

		parent.Remove(idx + 1)
		t.bpm.UnpinPage(sibling.PageID(), true)
		*pending = append(*pending, sibling.PageID())
	}

	if err := t.maybeShrinkParent(parent, pending); err != nil {
		t.bpm.UnpinPage(parent.PageID(), true)
		return false, err
	}
	t.bpm.UnpinPage(parent.PageID(), true)
	return deleteSelf, nil
}

// maybeShrinkParent recurses upward after a child slot was removed.
func (t *BPlusTree) maybeShrinkParent(parent InternalNode, pending *[]storage.PageID) error {
	underflow := parent.Size() < parent.MinSize()
	if parent.PageID() == t.rootID() {
		underflow = parent.Size() == 1
	}
	if !underflow {
		return nil
	}

	deleteParent, err := t.coalesceOrRedistributeInternal(parent, pending)
	if err != nil {
		return err
	}
	if deleteParent {
		*pending = append(*pending, parent.PageID())
	}
	return nil
}

// adjustRoot handles the two root special cases: an empty leaf root deletes
// the whole tree; an internal root with one child promotes that child.
func (t *BPlusTree) adjustRoot(oldRoot node, pending *[]storage.PageID) (bool, error) {
	// Like insertIntoParent's root case: reached only while the traversal
	// still holds the root latch exclusively (the root was never safe).
	if oldRoot.IsLeaf() && oldRoot.Size() == 0 {
		t.setRootID(storage.InvalidPageID)
		if err := t.updateRootPageID(); err != nil {
			return false, err
		}
		return true, nil
	}

	if !oldRoot.IsLeaf() && oldRoot.Size() == 1 {
		in := InternalNode{oldRoot}
		newRootID := in.ValueAt(0)

		t.setRootID(newRootID)
		if err := t.updateRootPageID(); err != nil {
			return false, err
		}

		p, err := t.bpm.FetchPage(newRootID)
		if err != nil {
			return false, fmt.Errorf("btree: fetch new root %d: %w", newRootID, err)
		}
		node{Page: p}.SetParentPageID(storage.InvalidPageID)
		t.bpm.UnpinPage(newRootID, true)
		return true, nil
	}

	return false, nil
}

/*****************************************************************************
 * TRAVERSAL
 *****************************************************************************/

// findLeaf descends to the leaf covering key (or the leftmost leaf). With a
// transaction, internal pages are latch-coupled and parked in the page set
// and the root latch is held until the root can no longer be swapped under
// the traversal; without one, parents are unpinned as the descent goes.
func (t *BPlusTree) findLeaf(key KeyType, op opType, leftMost bool, txn *concurrency.Transaction) (*page.Page, error) {
	if txn != nil {
		if op == opRead {
			t.rootLatch.RLock()
		} else {
			t.rootLatch.Lock()
		}
		txn.SetHoldingRootLatch(true)
	} else {
		t.rootLatch.RLock()
	}

	p, err := t.bpm.FetchPage(t.rootID())
	if txn == nil {
		t.rootLatch.RUnlock()
	}
	if err != nil {
		t.releaseRootLatch(op, txn)
		return nil, fmt.Errorf("btree: fetch root: %w", err)
	}

	cur := node{Page: p}
	for !cur.IsLeaf() {
		in := InternalNode{cur}

		if txn != nil {
			if op == opRead {
				p.RLatch()
				t.unlatchAndUnpin(op, txn)
			} else {
				p.WLatch()
				if in.IsSafe(op) {
					t.unlatchAndUnpin(op, txn)
				}
			}
			txn.AddIntoPageSet(p)
		}

		var childID storage.PageID
		if leftMost {
			childID = in.ValueAt(0)
		} else {
			childID = in.Lookup(key, t.cmp)
		}

		child, err := t.bpm.FetchPage(childID)
		if err != nil {
			if txn != nil {
				t.unlatchAndUnpin(op, txn)
			} else {
				t.bpm.UnpinPage(cur.PageID(), false)
			}
			return nil, fmt.Errorf("btree: fetch child %d: %w", childID, err)
		}

		if txn == nil {
			t.bpm.UnpinPage(cur.PageID(), false)
		}

		p = child
		cur = node{Page: p}
	}

	return p, nil
}

// unlatchAndUnpin releases every page parked in the transaction's crabbing
// set, in acquisition order, and with them the root latch: once ancestors
// are released the root cannot be on the operation's unsafe path anymore.
func (t *BPlusTree) unlatchAndUnpin(op opType, txn *concurrency.Transaction) {
	for _, p := range txn.PageSet() {
		if op == opRead {
			p.RUnlatch()
			t.bpm.UnpinPage(p.ID(), false)
		} else {
			p.WUnlatch()
			t.bpm.UnpinPage(p.ID(), true)
		}
	}
	txn.ClearPageSet()
	t.releaseRootLatch(op, txn)
}

func (t *BPlusTree) releaseRootLatch(op opType, txn *concurrency.Transaction) {
	if txn == nil || !txn.HoldingRootLatch() {
		return
	}
	if op == opRead {
		t.rootLatch.RUnlock()
	} else {
		t.rootLatch.Unlock()
	}
	txn.SetHoldingRootLatch(false)
}
