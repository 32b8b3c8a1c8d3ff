// Package btree implements a concurrent on-disk B+ tree index over the
// buffer pool, using latch coupling (crabbing) for traversals. Keys are
// int64 with a pluggable comparator; values are heap tuple ids.
package btree

import (
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
	"github.com/tuannm99/granitedb/pkg/bx"
)

// Comparator orders two keys: negative, zero, positive.
type Comparator func(a, b KeyType) int

// KeyType is the key type supported by this tree.
type KeyType = int64

// CompareKeys is the default comparator.
func CompareKeys(a, b KeyType) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Node page kinds, stamped into the common header.
const (
	pageTypeInvalid  uint32 = 0
	pageTypeLeaf     uint32 = 1
	pageTypeInternal uint32 = 2
)

// Common node header:
// pageType u32 | size i32 | maxSize i32 | parentPageID i32 | pageID i32
// Leaves append nextPageID i32.
const (
	offPageType = 0
	offSize     = 4
	offMaxSize  = 8
	offParent   = 12
	offSelf     = 16

	nodeHeaderSize = 20

	offNextPage    = 20
	leafHeaderSize = 24
)

type opType int

const (
	opRead opType = iota
	opInsert
	opDelete
)

// node is the header view shared by leaf and internal pages.
type node struct {
	Page *page.Page
}

func (n node) data() []byte { return n.Page.Data() }

func (n node) IsLeaf() bool {
	return bx.U32At(n.data(), offPageType) == pageTypeLeaf
}

func (n node) Size() int       { return int(bx.I32At(n.data(), offSize)) }
func (n node) SetSize(v int)   { bx.PutI32At(n.data(), offSize, int32(v)) }
func (n node) IncSize(d int)   { n.SetSize(n.Size() + d) }
func (n node) MaxSize() int    { return int(bx.I32At(n.data(), offMaxSize)) }
func (n node) setMaxSize(v int) { bx.PutI32At(n.data(), offMaxSize, int32(v)) }

// MinSize is the underflow bound for non-root nodes.
func (n node) MinSize() int { return n.MaxSize() / 2 }

func (n node) ParentPageID() storage.PageID {
	return storage.PageID(bx.I32At(n.data(), offParent))
}

func (n node) SetParentPageID(id storage.PageID) {
	bx.PutI32At(n.data(), offParent, int32(id))
}

func (n node) PageID() storage.PageID {
	return storage.PageID(bx.I32At(n.data(), offSelf))
}

func (n node) setPageID(id storage.PageID) {
	bx.PutI32At(n.data(), offSelf, int32(id))
}

func (n node) IsRoot() bool {
	return n.ParentPageID() == storage.InvalidPageID
}

// IsSafe reports whether an operation on this node cannot propagate upward,
// allowing ancestor latches to be released during crabbing.
func (n node) IsSafe(op opType) bool {
	if op == opInsert {
		return n.Size() < n.MaxSize()
	}
	return n.Size()-1 > n.MinSize()
}
