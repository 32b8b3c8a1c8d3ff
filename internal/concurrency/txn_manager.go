package concurrency

import (
	"log/slog"
	"sync"
)

// TxnManager hands out transactions, keeps the global registry and drives the
// commit/abort cleanup paths (write-set finalization and lock release).
type TxnManager struct {
	lockMgr *Manager

	mu     sync.Mutex
	nextID TxnID
	txns   map[TxnID]*Transaction
}

func NewTxnManager(lockMgr *Manager) *TxnManager {
	return &TxnManager{
		lockMgr: lockMgr,
		txns:    make(map[TxnID]*Transaction),
	}
}

// Begin starts a transaction at the given isolation level.
func (tm *TxnManager) Begin(isolation IsolationLevel) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.nextID++
	txn := newTransaction(tm.nextID, isolation)
	tm.txns[txn.ID()] = txn

	slog.Debug("concurrency.Begin", "txn", txn.ID(), "isolation", isolation.String())
	return txn
}

// Get looks a live transaction up by id.
func (tm *TxnManager) Get(id TxnID) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.txns[id]
}

// Commit finalizes deferred deletes, flips the state and releases all locks.
func (tm *TxnManager) Commit(txn *Transaction) error {
	for _, rec := range txn.WriteSet() {
		if rec.Type == WriteDelete {
			if err := rec.Table.FinalizeDelete(rec.TID); err != nil {
				return err
			}
		}
	}

	txn.SetState(Committed)
	tm.release(txn)
	slog.Debug("concurrency.Commit", "txn", txn.ID())
	return nil
}

// Abort undoes the write set in reverse order, flips the state and releases
// all locks.
func (tm *TxnManager) Abort(txn *Transaction) error {
	ws := txn.WriteSet()
	for i := len(ws) - 1; i >= 0; i-- {
		rec := ws[i]
		var err error
		switch rec.Type {
		case WriteInsert:
			err = rec.Table.UndoInsert(rec.TID)
		case WriteDelete:
			err = rec.Table.UndoMarkDelete(rec.TID)
		}
		if err != nil {
			return err
		}
	}

	txn.SetState(Aborted)
	tm.release(txn)
	slog.Debug("concurrency.Abort", "txn", txn.ID())
	return nil
}

func (tm *TxnManager) release(txn *Transaction) {
	tm.lockMgr.ReleaseAll(txn)

	tm.mu.Lock()
	delete(tm.txns, txn.ID())
	tm.mu.Unlock()
}
