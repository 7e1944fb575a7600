// Package nostrdb is an embedded nostr event database. It ingests kind 3
// contact lists through a validating worker pipeline, keeps a bidirectional
// follow index in badger and answers follower and follow-distance queries
// against consistent snapshots.
package nostrdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/distance"
	"github.com/i5heu/ouroboros-nostrdb/pkg/ingester"
	"github.com/i5heu/ouroboros-nostrdb/pkg/socialgraph"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/i5heu/ouroboros-nostrdb/pkg/validator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// NostrDB is the main database handle. It owns the store, the social graph
// index, the distance engine and the ingestion pipeline.
type NostrDB struct {
	log     *logrus.Logger
	config  Config
	metrics *prometheus.Registry

	mu       sync.RWMutex
	kv       *keyValStore.KeyValStore
	graph    *socialgraph.Index
	engine   *distance.Engine
	ingester *ingester.Ingester

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

var (
	ErrNotStarted = errors.New("nostrdb: database not started")
	ErrClosed     = errors.New("nostrdb: database closed")
	ErrNoRoot     = errors.New("nostrdb: no root identity configured")

	// ErrQueueFull is transient backpressure from ProcessEvent; retry later.
	ErrQueueFull = ingester.ErrQueueFull
)

// New constructs a database handle. New does not perform I/O or start
// background goroutines. Call Start to open the store.
func New(conf Config) (*NostrDB, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.MaxDistanceDepth != nil && *conf.MaxDistanceDepth < 0 {
		return nil, fmt.Errorf("max distance depth must not be negative, got %d", *conf.MaxDistanceDepth)
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	return &NostrDB{
		log:     conf.Logger,
		config:  conf,
		metrics: prometheus.NewRegistry(),
	}, nil
}

// Start opens the store under Paths[0]/kv and starts the ingestion workers.
// Start is safe to call multiple times; only the first call has effect.
func (db *NostrDB) Start(ctx context.Context) error {
	var startErr error
	db.startOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			startErr = err
			return
		}

		kvPath := filepath.Join(db.config.Paths[0], "kv")
		if err := os.MkdirAll(kvPath, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", kvPath, err)
			return
		}

		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            []string{kvPath},
			MinimumFreeSpace: int(db.config.MinimumFreeGB),
			SyncWrites:       db.config.SyncWrites,
			Logger:           db.log,
		})
		if err != nil {
			startErr = fmt.Errorf("init kv: %w", err)
			return
		}

		graph := socialgraph.New(db.log)

		engine, err := distance.New(graph, distance.Config{
			MaxDepth:   db.config.MaxDistanceDepth,
			CacheRoots: db.config.DistanceCacheRoots,
			Logger:     db.log,
			Registerer: db.metrics,
		})
		if err != nil {
			_ = kv.Close()
			startErr = fmt.Errorf("init distance engine: %w", err)
			return
		}

		in, err := ingester.New(ingester.Config{
			Store:          kv,
			Graph:          graph,
			Validator:      validator.New(validator.Config{SkipSignatureVerification: db.config.SkipSignatureVerification}),
			Workers:        db.config.Workers,
			QueueSize:      db.config.QueueSize,
			EnqueueTimeout: db.config.EnqueueTimeout,
			StoreRawEvents: db.config.StoreRawEvents,
			Logger:         db.log,
			Registerer:     db.metrics,
		})
		if err != nil {
			engine.Close()
			_ = kv.Close()
			startErr = fmt.Errorf("init ingester: %w", err)
			return
		}

		db.mu.Lock()
		db.kv = kv
		db.graph = graph
		db.engine = engine
		db.ingester = in
		db.mu.Unlock()

		db.started.Store(true)
		db.log.WithFields(logrus.Fields{
			"path":             db.config.Paths[0],
			"version":          kv.Version(),
			"skipVerification": db.config.SkipSignatureVerification,
			"maxDistanceDepth": engine.MaxDepth(),
			"storeRawEvents":   db.config.StoreRawEvents,
		}).Info("NostrDB started")
	})
	return startErr
}

// Run starts the database, then blocks until ctx is canceled, and finally
// performs a bounded graceful shutdown. It is a convenience for services.
func (db *NostrDB) Run(ctx context.Context) error {
	if err := db.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.Close(shutdownCtx)
}

// Close stops accepting events, applies the queued contact lists and releases
// the store. Close is idempotent. Queries still open when Close is called
// must be ended first.
func (db *NostrDB) Close(ctx context.Context) error {
	var closeErr error
	db.closeOnce.Do(func() {
		db.mu.Lock()
		kv, engine, in := db.kv, db.engine, db.ingester
		db.kv, db.engine, db.ingester = nil, nil, nil
		db.mu.Unlock()

		if in != nil {
			drained := make(chan struct{})
			go func() {
				in.Close()
				close(drained)
			}()
			select {
			case <-drained:
			case <-ctx.Done():
				db.log.Warn("shutdown deadline passed while draining the ingest queue, waiting for workers")
				<-drained
			}
		}
		if engine != nil {
			engine.Close()
		}
		if kv != nil {
			if err := kv.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close kv: %w", err))
			}
		}

		db.log.Info("NostrDB closed")
	})
	return closeErr
}

type components struct {
	kv       *keyValStore.KeyValStore
	graph    *socialgraph.Index
	engine   *distance.Engine
	ingester *ingester.Ingester
}

func (db *NostrDB) handle() (components, error) {
	if !db.started.Load() {
		return components{}, ErrNotStarted
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.kv == nil {
		return components{}, ErrClosed
	}
	return components{kv: db.kv, graph: db.graph, engine: db.engine, ingester: db.ingester}, nil
}

// ProcessEvent validates raw and queues contact lists for the social graph.
// It reports whether the event was accepted. Acceptance means queued, not
// committed; use Sync or WaitForVersion to observe the result.
func (db *NostrDB) ProcessEvent(raw []byte) (bool, error) {
	c, err := db.handle()
	if err != nil {
		return false, err
	}
	ok, err := c.ingester.ProcessEvent(raw)
	if errors.Is(err, ingester.ErrClosed) {
		return false, ErrClosed
	}
	return ok, err
}

// Sync blocks until every contact list accepted before the call was applied
// or dropped.
func (db *NostrDB) Sync(ctx context.Context) error {
	c, err := db.handle()
	if err != nil {
		return err
	}
	return c.ingester.Sync(ctx)
}

// WaitForVersion blocks until the graph reached version v.
func (db *NostrDB) WaitForVersion(ctx context.Context, v types.GraphVersion) error {
	c, err := db.handle()
	if err != nil {
		return err
	}
	return c.ingester.WaitForVersion(ctx, v)
}

// GraphVersion is the version of the latest committed graph change.
func (db *NostrDB) GraphVersion() (types.GraphVersion, error) {
	c, err := db.handle()
	if err != nil {
		return 0, err
	}
	return c.kv.Version(), nil
}

// Metrics returns the registry holding the pipeline and distance metrics.
func (db *NostrDB) Metrics() *prometheus.Registry {
	return db.metrics
}

// Verify scans the whole graph in one snapshot and reports the first
// disagreement between forward edges, reverse edges and counters.
func (db *NostrDB) Verify() error {
	q, err := db.BeginQuery()
	if err != nil {
		return err
	}
	defer q.End()
	return q.c.graph.Verify(q.txn)
}
