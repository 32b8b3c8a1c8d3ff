package execution

import (
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/storage"
)

// lockRead takes the shared lock a read needs under the current isolation
// level. READ_UNCOMMITTED reads without locks; a lock already held is reused.
func (ctx *Context) lockRead(tid storage.TID) error {
	txn := ctx.Txn
	if txn == nil || ctx.LockMgr == nil {
		return nil
	}
	if txn.Isolation() == concurrency.ReadUncommitted {
		return nil
	}
	if txn.IsSharedLocked(tid) || txn.IsExclusiveLocked(tid) {
		return nil
	}
	return ctx.LockMgr.LockShared(txn, tid)
}

// unlockRead releases a read lock right away under READ_COMMITTED; stricter
// levels keep it until commit.
func (ctx *Context) unlockRead(tid storage.TID) {
	txn := ctx.Txn
	if txn == nil || ctx.LockMgr == nil {
		return
	}
	if txn.Isolation() == concurrency.ReadCommitted && txn.IsSharedLocked(tid) {
		ctx.LockMgr.Unlock(txn, tid)
	}
}

// lockWrite takes the exclusive lock a mutation needs, upgrading a held
// shared lock in place.
func (ctx *Context) lockWrite(tid storage.TID) error {
	txn := ctx.Txn
	if txn == nil || ctx.LockMgr == nil {
		return nil
	}
	if txn.IsExclusiveLocked(tid) {
		return nil
	}
	if txn.IsSharedLocked(tid) {
		return ctx.LockMgr.LockUpgrade(txn, tid)
	}
	return ctx.LockMgr.LockExclusive(txn, tid)
}
