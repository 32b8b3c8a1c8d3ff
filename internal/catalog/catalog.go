// Package catalog tracks tables and their indexes: heap handles, schemas,
// key metadata. Executors resolve every table or index reference here.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tuannm99/granitedb/internal/btree"
	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/heap"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/wal"
)

var (
	ErrTableNotFound = errors.New("catalog: table not found")
	ErrTableExists   = errors.New("catalog: table already exists")
	ErrIndexNotFound = errors.New("catalog: index not found")
	ErrIndexExists   = errors.New("catalog: index already exists")
)

// TableMetadata bundles a table's identity with its heap handle.
type TableMetadata struct {
	Oid    int
	Name   string
	Schema *record.Schema
	Table  *heap.Table
}

// IndexInfo bundles an index with the key derivation metadata executors use.
type IndexInfo struct {
	Oid       int
	Name      string
	TableName string
	KeySchema *record.Schema
	KeyAttrs  []int
	Index     *btree.BPlusTree
}

// Key derives the index key for a table row. Single-column int64 keys are
// what the tree stores.
func (ii *IndexInfo) Key(t *record.Tuple, tableSchema *record.Schema) (btree.KeyType, error) {
	keyTuple, err := t.KeyFromTuple(tableSchema, ii.KeySchema, ii.KeyAttrs)
	if err != nil {
		return 0, err
	}
	key, ok := keyTuple.Values[0].(int64)
	if !ok {
		return 0, fmt.Errorf("catalog: index %s: key column is not int64 (%T)", ii.Name, keyTuple.Values[0])
	}
	return key, nil
}

// Catalog is the in-memory registry of tables and indexes.
type Catalog struct {
	bpm *buffer.Manager
	log *wal.Manager

	mu           sync.RWMutex
	tables       map[string]*TableMetadata
	tablesByOid  map[int]*TableMetadata
	indexes      map[string]map[string]*IndexInfo // table -> index name -> info
	indexesByOid map[int]*IndexInfo
	nextTableOid int
	nextIndexOid int
}

func NewCatalog(bpm *buffer.Manager, log *wal.Manager) *Catalog {
	return &Catalog{
		bpm:          bpm,
		log:          log,
		tables:       make(map[string]*TableMetadata),
		tablesByOid:  make(map[int]*TableMetadata),
		indexes:      make(map[string]map[string]*IndexInfo),
		indexesByOid: make(map[int]*IndexInfo),
	}
}

// CreateTable registers a new table and allocates its heap.
func (c *Catalog) CreateTable(name string, schema *record.Schema) (*TableMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	table, err := heap.CreateTable(name, schema, c.bpm, c.log)
	if err != nil {
		return nil, err
	}

	meta := &TableMetadata{
		Oid:    c.nextTableOid,
		Name:   name,
		Schema: schema,
		Table:  table,
	}
	c.nextTableOid++
	c.tables[name] = meta
	c.tablesByOid[meta.Oid] = meta
	return meta, nil
}

// GetTable resolves a table by name.
func (c *Catalog) GetTable(name string) (*TableMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return meta, nil
}

// GetTableByOid resolves a table by oid.
func (c *Catalog) GetTableByOid(oid int) (*TableMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	meta, ok := c.tablesByOid[oid]
	if !ok {
		return nil, fmt.Errorf("%w: oid %d", ErrTableNotFound, oid)
	}
	return meta, nil
}

// CreateIndex builds a B+ tree over an existing table and backfills it from
// the current heap contents.
func (c *Catalog) CreateIndex(
	txn *concurrency.Transaction,
	indexName, tableName string,
	keySchema *record.Schema,
	keyAttrs []int,
	leafMaxSize, internalMaxSize int,
) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableMeta, ok := c.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
	}
	if _, exists := c.indexes[tableName][indexName]; exists {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexExists, indexName, tableName)
	}

	info := &IndexInfo{
		Oid:       c.nextIndexOid,
		Name:      indexName,
		TableName: tableName,
		KeySchema: keySchema,
		KeyAttrs:  keyAttrs,
		Index:     btree.New(indexName, c.bpm, btree.CompareKeys, leafMaxSize, internalMaxSize),
	}
	c.nextIndexOid++

	it, err := tableMeta.Table.Begin(txn)
	if err != nil {
		return nil, err
	}
	for it.Valid() {
		tup := it.Tuple()
		key, err := info.Key(tup, tableMeta.Schema)
		if err != nil {
			return nil, err
		}
		if _, err := info.Index.Insert(key, tup.TID, txn); err != nil {
			return nil, err
		}
		if err := it.Next(); err != nil {
			return nil, err
		}
	}

	if c.indexes[tableName] == nil {
		c.indexes[tableName] = make(map[string]*IndexInfo)
	}
	c.indexes[tableName][indexName] = info
	c.indexesByOid[info.Oid] = info
	return info, nil
}

// GetIndex resolves an index by name within a table.
func (c *Catalog) GetIndex(indexName, tableName string) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.indexes[tableName][indexName]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrIndexNotFound, indexName, tableName)
	}
	return info, nil
}

// GetIndexByOid resolves an index by oid.
func (c *Catalog) GetIndexByOid(oid int) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.indexesByOid[oid]
	if !ok {
		return nil, fmt.Errorf("%w: oid %d", ErrIndexNotFound, oid)
	}
	return info, nil
}

// GetTableIndexes lists every index on a table.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*IndexInfo, 0, len(c.indexes[tableName]))
	for _, info := range c.indexes[tableName] {
		out = append(out, info)
	}
	return out
}
