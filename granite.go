// Package granitedb wires the storage engine together: disk manager, buffer
// pool, write-ahead log, lock manager with deadlock detection, catalog and
// the executor context factory.
package granitedb

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/config"
	"github.com/tuannm99/granitedb/internal/execution"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/disk"
	"github.com/tuannm99/granitedb/internal/wal"
)

// DB is the assembled engine.
type DB struct {
	cfg *config.GraniteConfig

	diskManager *disk.Manager
	logManager  *wal.Manager
	bufferPool  *buffer.Manager
	lockManager *concurrency.Manager
	txnManager  *concurrency.TxnManager
	catalog     *catalog.Catalog
}

// Open builds an engine from a config file path; an empty path uses the
// defaults.
func Open(configPath string) (*DB, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return New(cfg)
}

// New builds an engine from explicit settings.
func New(cfg *config.GraniteConfig) (*DB, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("granitedb: create data dir: %w", err)
	}

	dm, err := disk.NewManager(filepath.Join(cfg.Storage.DataDir, cfg.Storage.FileName))
	if err != nil {
		return nil, err
	}

	lm, err := wal.Open(cfg.Storage.DataDir)
	if err != nil {
		dm.Close()
		return nil, err
	}

	bpm := buffer.NewManager(cfg.Buffer.PoolSize, dm, lm)
	lockMgr := concurrency.NewManager(cfg.DetectionInterval())
	lockMgr.StartDeadlockDetection()

	db := &DB{
		cfg:         cfg,
		diskManager: dm,
		logManager:  lm,
		bufferPool:  bpm,
		lockManager: lockMgr,
		txnManager:  concurrency.NewTxnManager(lockMgr),
		catalog:     catalog.NewCatalog(bpm, lm),
	}

	if err := db.ensureHeaderPage(); err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("granitedb.Open", "dataDir", cfg.Storage.DataDir, "poolSize", cfg.Buffer.PoolSize)
	return db, nil
}

// ensureHeaderPage claims page 0 for the index directory so the allocator
// never hands it to a table or index page.
func (db *DB) ensureHeaderPage() error {
	db.diskManager.Reserve(storage.HeaderPageID)

	if _, err := db.bufferPool.FetchPage(storage.HeaderPageID); err != nil {
		return err
	}
	db.bufferPool.UnpinPage(storage.HeaderPageID, false)
	return nil
}

// Begin starts a transaction.
func (db *DB) Begin(isolation concurrency.IsolationLevel) *concurrency.Transaction {
	return db.txnManager.Begin(isolation)
}

// Commit commits a transaction.
func (db *DB) Commit(txn *concurrency.Transaction) error {
	return db.txnManager.Commit(txn)
}

// Abort rolls a transaction back.
func (db *DB) Abort(txn *concurrency.Transaction) error {
	return db.txnManager.Abort(txn)
}

// Catalog exposes the table/index registry.
func (db *DB) Catalog() *catalog.Catalog { return db.catalog }

// LockManager exposes the lock manager.
func (db *DB) LockManager() *concurrency.Manager { return db.lockManager }

// BufferPool exposes the buffer pool manager.
func (db *DB) BufferPool() *buffer.Manager { return db.bufferPool }

// CreateTable registers a table.
func (db *DB) CreateTable(name string, schema *record.Schema) (*catalog.TableMetadata, error) {
	return db.catalog.CreateTable(name, schema)
}

// CreateIndex builds a B+ tree index over an existing table.
func (db *DB) CreateIndex(txn *concurrency.Transaction, indexName, tableName string, keySchema *record.Schema, keyAttrs []int) (*catalog.IndexInfo, error) {
	return db.catalog.CreateIndex(txn, indexName, tableName, keySchema, keyAttrs,
		db.cfg.Index.LeafMaxSize, db.cfg.Index.InternalMaxSize)
}

// ExecContext builds the context executors run under.
func (db *DB) ExecContext(txn *concurrency.Transaction) *execution.Context {
	return &execution.Context{
		Txn:     txn,
		TxnMgr:  db.txnManager,
		LockMgr: db.lockManager,
		Catalog: db.catalog,
	}
}

// Close stops the deadlock detector, flushes all resident pages and closes
// the underlying files.
func (db *DB) Close() error {
	db.lockManager.Stop()

	if err := db.bufferPool.FlushAllPages(); err != nil {
		return err
	}
	if err := db.logManager.Close(); err != nil {
		return err
	}
	return db.diskManager.Close()
}
