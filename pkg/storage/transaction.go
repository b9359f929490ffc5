// ABOUTME: Transaction support for atomic multi-key operations
// ABOUTME: Implements Begin/Commit/Abort on badger's optimistic transactions

package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// KVTX represents a key-value transaction
type KVTX struct {
	db       *KV
	txn      *badger.Txn
	writable bool
}

// Begin starts a new read-write transaction.
// Callers must finish it with Commit or Abort.
func (db *KV) Begin() (*KVTX, error) {
	if db.db == nil {
		return nil, ErrClosed
	}
	return &KVTX{
		db:       db,
		txn:      db.db.NewTransaction(true),
		writable: true,
	}, nil
}

// View runs fn inside a read-only transaction
func (db *KV) View(fn func(tx *KVTX) error) error {
	if db.db == nil {
		return ErrClosed
	}
	tx := &KVTX{db: db, txn: db.db.NewTransaction(false)}
	defer tx.Abort()
	return fn(tx)
}

// Update runs fn inside a read-write transaction and commits when fn returns nil
func (db *KV) Update(fn func(tx *KVTX) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Abort()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Commit commits the transaction atomically.
// A concurrent writer that touched the same keys yields ErrConflict.
func (tx *KVTX) Commit() error {
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Abort rolls back the transaction. Safe to call after Commit.
func (tx *KVTX) Abort() {
	tx.txn.Discard()
}

// Get retrieves a value within the transaction, including its own pending writes
func (tx *KVTX) Get(key []byte) ([]byte, bool, error) {
	item, err := tx.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, fmt.Errorf("read value: %w", err)
	}
	return val, true, nil
}

// Set inserts or updates a key-value pair within the transaction
func (tx *KVTX) Set(key []byte, val []byte) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if err := tx.txn.Set(key, val); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// Del deletes a key within the transaction
func (tx *KVTX) Del(key []byte) (bool, error) {
	if !tx.writable {
		return false, ErrReadOnly
	}
	_, ok, err := tx.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.txn.Delete(key); err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	return true, nil
}

// Scan performs a range scan within the transaction, starting at start and
// stopping when callback returns false. The callback must not start another
// scan on the same read-write transaction.
func (tx *KVTX) Scan(start []byte, callback func(key, val []byte) bool) error {
	it := tx.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(start); it.Valid(); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		if !callback(item.KeyCopy(nil), val) {
			break
		}
	}
	return nil
}

// ScanPrefix visits every key that starts with prefix
func (tx *KVTX) ScanPrefix(prefix []byte, callback func(key, val []byte) bool) error {
	return tx.Scan(prefix, func(key, val []byte) bool {
		if !bytes.HasPrefix(key, prefix) {
			return false
		}
		return callback(key, val)
	})
}
