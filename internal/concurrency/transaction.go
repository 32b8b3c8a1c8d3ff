// Package concurrency implements transactional concurrency control: the
// transaction state machine, the two-phase lock manager over tuple ids and
// the background deadlock detector.
package concurrency

import (
	"fmt"
	"sync/atomic"

	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/page"
)

// TxnID identifies a transaction. Ids are handed out monotonically, so the
// largest id on a deadlock cycle is the youngest transaction.
type TxnID uint64

// State is the 2PL transaction lifecycle.
type State int32

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel selects the locking policy a transaction runs under.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// WriteType tags an entry of the transaction's write set.
type WriteType int

const (
	WriteInsert WriteType = iota
	WriteDelete
)

// UndoTable is the slice of the table heap the transaction manager needs to
// roll back or finalize a write record.
type UndoTable interface {
	// UndoInsert physically removes a row the transaction inserted.
	UndoInsert(tid storage.TID) error
	// UndoMarkDelete clears the delete mark set by the transaction.
	UndoMarkDelete(tid storage.TID) error
	// FinalizeDelete physically removes a row whose delete mark committed.
	FinalizeDelete(tid storage.TID) error
}

// WriteRecord remembers one heap mutation for commit finalization or abort
// rollback.
type WriteRecord struct {
	TID   storage.TID
	Type  WriteType
	Table UndoTable
}

// Transaction carries the state the lock manager and executors need: lock
// sets, the crabbing page set and the write set. Lock sets are mutated only
// under the lock-manager mutex; state is read lock-free via atomics.
type Transaction struct {
	id        TxnID
	isolation IsolationLevel
	state     atomic.Int32

	sharedLockSet    map[storage.TID]struct{}
	exclusiveLockSet map[storage.TID]struct{}

	pageSet          []*page.Page
	holdingRootLatch bool
	writeSet         []WriteRecord
}

func newTransaction(id TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:               id,
		isolation:        isolation,
		sharedLockSet:    make(map[storage.TID]struct{}),
		exclusiveLockSet: make(map[storage.TID]struct{}),
	}
}

func (t *Transaction) ID() TxnID                 { return t.id }
func (t *Transaction) Isolation() IsolationLevel { return t.isolation }

func (t *Transaction) State() State         { return State(t.state.Load()) }
func (t *Transaction) SetState(s State)     { t.state.Store(int32(s)) }
func (t *Transaction) IsAborted() bool      { return t.State() == Aborted }

// IsSharedLocked reports membership in the shared lock set.
func (t *Transaction) IsSharedLocked(tid storage.TID) bool {
	_, ok := t.sharedLockSet[tid]
	return ok
}

// IsExclusiveLocked reports membership in the exclusive lock set.
func (t *Transaction) IsExclusiveLocked(tid storage.TID) bool {
	_, ok := t.exclusiveLockSet[tid]
	return ok
}

// AddIntoPageSet records a page latched during a crabbing traversal.
func (t *Transaction) AddIntoPageSet(p *page.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PageSet returns the latched ancestor pages in acquisition order.
func (t *Transaction) PageSet() []*page.Page { return t.pageSet }

// ClearPageSet drops the crabbing set once the operation released it.
func (t *Transaction) ClearPageSet() { t.pageSet = t.pageSet[:0] }

// HoldingRootLatch tracks whether this transaction's traversal still holds
// the index root latch (the virtual page above the root).
func (t *Transaction) HoldingRootLatch() bool     { return t.holdingRootLatch }
func (t *Transaction) SetHoldingRootLatch(v bool) { t.holdingRootLatch = v }

// RecordWrite appends to the write set.
func (t *Transaction) RecordWrite(rec WriteRecord) {
	t.writeSet = append(t.writeSet, rec)
}

// WriteSet returns the recorded heap mutations in order.
func (t *Transaction) WriteSet() []WriteRecord { return t.writeSet }

// AbortReason says why a transaction was aborted by the lock manager.
type AbortReason int

const (
	ReasonLockOnShrinking AbortReason = iota
	ReasonLockSharedOnReadUncommitted
	ReasonUpgradeConflict
	ReasonDeadlock
)

func (r AbortReason) String() string {
	switch r {
	case ReasonLockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case ReasonLockSharedOnReadUncommitted:
		return "LOCKSHARED_ON_READ_UNCOMMITTED"
	case ReasonUpgradeConflict:
		return "UPGRADE_CONFLICT"
	case ReasonDeadlock:
		return "DEADLOCK"
	default:
		return "UNKNOWN"
	}
}

// AbortError signals that the lock manager aborted the transaction. The
// caller must run the transaction-manager abort path and stop the query.
type AbortError struct {
	TxnID  TxnID
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("concurrency: txn %d aborted: %s", e.TxnID, e.Reason)
}
