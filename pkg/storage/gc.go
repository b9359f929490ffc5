// ABOUTME: Periodic value log garbage collection for the badger engine
// ABOUTME: Started by KV.Open when a GC interval is configured

package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// GCRunner runs value log GC on a fixed interval
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	log      *zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewGCRunner creates a garbage collection runner. Call Start to begin.
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, log *zerolog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("storage: db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("storage: GC interval must be positive")
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, errors.New("storage: GC discard ratio must be between 0 and 1")
	}

	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins periodic garbage collection
func (r *GCRunner) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// Stop halts garbage collection and waits for the loop to exit
func (r *GCRunner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	// never started: mark done so Stop does not block
	r.startOnce.Do(func() {
		close(r.doneCh)
	})
	<-r.doneCh
}

func (r *GCRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *GCRunner) runGC() {
	err := r.db.RunValueLogGC(r.ratio)
	if r.log == nil {
		return
	}
	switch {
	case err == nil:
		r.log.Debug().Str("component", "badger").Msg("value log GC completed")
	case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
		// nothing to reclaim
	default:
		r.log.Warn().Str("component", "badger").Err(err).Msg("value log GC failed")
	}
}
