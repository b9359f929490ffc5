// ABOUTME: Embedded KV store backed by BadgerDB
// ABOUTME: Single-key helpers plus read-only and read-write transaction entry points

package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

const (
	DEFAULT_GC_INTERVAL      = 5 * time.Minute
	DEFAULT_GC_DISCARD_RATIO = 0.5
)

// KV represents a transactional key-value store
type KV struct {
	Path       string // Database directory (ignored when InMemory)
	InMemory   bool   // No disk persistence, for tests
	SyncWrites bool   // fsync on every commit

	// Value log garbage collection, disabled when zero or InMemory
	GCInterval     time.Duration
	GCDiscardRatio float64

	// Optional logger for engine messages
	Logger *zerolog.Logger

	db *badger.DB
	gc *GCRunner
}

// Open opens or creates the database
func (db *KV) Open() error {
	if db.db != nil {
		return ErrAlreadyOpen
	}

	var opts badger.Options
	if db.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if db.Path == "" {
			return errors.New("storage: path is required for persistent database")
		}
		if err := os.MkdirAll(db.Path, 0o750); err != nil {
			return fmt.Errorf("create database directory %s: %w", db.Path, err)
		}
		opts = badger.DefaultOptions(db.Path)
	}

	opts = opts.WithSyncWrites(db.SyncWrites).WithNumVersionsToKeep(1)
	if db.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{zlog: db.Logger.With().Str("component", "badger").Logger()})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger database: %w", err)
	}
	db.db = bdb

	if db.GCInterval > 0 && !db.InMemory {
		ratio := db.GCDiscardRatio
		if ratio == 0 {
			ratio = DEFAULT_GC_DISCARD_RATIO
		}
		runner, err := NewGCRunner(bdb, db.GCInterval, ratio, db.Logger)
		if err != nil {
			_ = bdb.Close()
			db.db = nil
			return fmt.Errorf("create GC runner: %w", err)
		}
		db.gc = runner
		runner.Start()
	}

	return nil
}

// Close stops garbage collection and closes the database
func (db *KV) Close() error {
	if db.db == nil {
		return nil
	}
	if db.gc != nil {
		db.gc.Stop()
		db.gc = nil
	}
	err := db.db.Close()
	db.db = nil
	return err
}

// Ping reports ErrClosed when the database is not open
func (db *KV) Ping() error {
	if db.db == nil || db.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Get retrieves a value by key
func (db *KV) Get(key []byte) ([]byte, bool, error) {
	var (
		val []byte
		ok  bool
	)
	err := db.View(func(tx *KVTX) error {
		var err error
		val, ok, err = tx.Get(key)
		return err
	})
	return val, ok, err
}

// Set inserts or updates a key-value pair
func (db *KV) Set(key []byte, val []byte) error {
	return db.Update(func(tx *KVTX) error {
		return tx.Set(key, val)
	})
}

// Del deletes a key
func (db *KV) Del(key []byte) (bool, error) {
	var deleted bool
	err := db.Update(func(tx *KVTX) error {
		var err error
		deleted, err = tx.Del(key)
		return err
	})
	return deleted, err
}

// Scan performs a range scan starting from the given key
func (db *KV) Scan(start []byte, callback func(key, val []byte) bool) error {
	return db.View(func(tx *KVTX) error {
		return tx.Scan(start, callback)
	})
}

// Size returns the on-disk size of the LSM tree and value log
func (db *KV) Size() (int64, int64) {
	if db.db == nil {
		return 0, 0
	}
	return db.db.Size()
}

// badgerLogger adapts zerolog to badger's Logger interface
type badgerLogger struct {
	zlog zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(strings.TrimSpace(format), args...)
}
