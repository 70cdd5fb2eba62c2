package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	appLog "dailyagenda/internal/log"
)

type BadgerCache struct {
	db        *badger.DB
	config    *BadgerConfig
	stopGC    chan struct{}
	closeOnce sync.Once

	hits    atomic.Uint64
	misses  atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

type BadgerConfig struct {
	Path           string
	InMemory       bool
	GCInterval     time.Duration
	GCDiscardRatio float64
}

func NewBadgerCache(config *BadgerConfig) (*BadgerCache, error) {
	if config.GCInterval == 0 {
		config.GCInterval = 10 * time.Minute
	}
	if config.GCDiscardRatio == 0 {
		config.GCDiscardRatio = 0.5
	}

	opts := badger.DefaultOptions(config.Path)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	c := &BadgerCache{
		db:     db,
		config: config,
		stopGC: make(chan struct{}),
	}

	if !config.InMemory {
		go c.runGC()
	}

	return c, nil
}

func (bc *BadgerCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := bc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		bc.misses.Add(1)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	bc.hits.Add(1)
	return value, nil
}

func (bc *BadgerCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := bc.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return err
	}
	bc.sets.Add(1)
	return nil
}

func (bc *BadgerCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := bc.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	bc.deletes.Add(1)
	return nil
}

func (bc *BadgerCache) GetMetrics() Metrics {
	return Metrics{
		Hits:    bc.hits.Load(),
		Misses:  bc.misses.Load(),
		Sets:    bc.sets.Load(),
		Deletes: bc.deletes.Load(),
	}
}

// Close stops background GC and closes the database. Safe to call twice.
func (bc *BadgerCache) Close() error {
	var err error
	bc.closeOnce.Do(func() {
		close(bc.stopGC)
		err = bc.db.Close()
	})
	return err
}

func (bc *BadgerCache) runGC() {
	ticker := time.NewTicker(bc.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing to do.
			for {
				if err := bc.db.RunValueLogGC(bc.config.GCDiscardRatio); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						appLog.Error("cache: value log GC failed", err)
					}
					break
				}
			}
		case <-bc.stopGC:
			return
		}
	}
}
