// Package cache keeps linear-response snapshots in an embedded badger
// database so that repeated analyses of the same model skip the solves.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/san-kum/fimlab/internal/fim"
	"github.com/san-kum/fimlab/internal/maxent"
	"github.com/san-kum/fimlab/internal/perturb"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when nothing is stored under the key.
var ErrMiss = errors.New("cache: miss")

const keyPrefix = "dj/"

type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger's own log lines. Nil silences them.
	Logger *zap.Logger
}

func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }

// Cache is safe for concurrent use.
type Cache struct {
	db *badger.DB
}

func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache: path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("cache: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{s: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

type keyInput struct {
	Model     maxent.Spec       `json:"model"`
	Variant   string            `json:"variant"`
	Direction perturb.Direction `json:"direction"`
	Eps       float64           `json:"eps"`
	Solver    fim.SolverOptions `json:"solver"`
}

// Key identifies the responses of variant over model at eps. Two requests
// share a key only if every input to the solves is identical. Solver options
// are compared after defaults are applied.
func Key(model maxent.Spec, variant string, dir perturb.Direction, eps float64, solver fim.SolverOptions) (string, error) {
	data, err := json.Marshal(keyInput{model, variant, dir, eps, solver.WithDefaults()})
	if err != nil {
		return "", fmt.Errorf("cache: key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Cache) Get(key string) (*fim.Snapshot, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}

	var snap fim.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &snap, nil
}

func (c *Cache) Put(key string, snap fim.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), data)
	})
}

// Len counts stored snapshots.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Analyzer returns an analyzer for variant over m, restoring its responses
// from the cache when possible and storing them otherwise. The boolean
// reports a hit.
func (c *Cache) Analyzer(ctx context.Context, m maxent.Model, variant string, opts fim.Options) (*fim.Analyzer, bool, error) {
	if opts.Eps <= 0 {
		opts.Eps = fim.DefaultOptions().Eps
	}
	key, err := Key(maxent.SpecOf(m), variant, opts.Direction, opts.Eps, opts.Solver)
	if err != nil {
		return nil, false, err
	}

	snap, err := c.Get(key)
	switch {
	case err == nil:
		a, err := fim.Restore(*snap, opts)
		if err == nil {
			return a, true, nil
		}
		if opts.Logger != nil {
			opts.Logger.Warn("discarding cached responses", zap.String("key", key), zap.Error(err))
		}
	case !errors.Is(err, ErrMiss):
		return nil, false, err
	}

	opts.Lazy = false
	a, err := fim.New(ctx, m, variant, opts)
	if err != nil {
		return nil, false, err
	}
	fresh, err := a.Snapshot()
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(key, fresh); err != nil {
		return nil, false, err
	}
	return a, false, nil
}
