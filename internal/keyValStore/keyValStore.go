package keyValStore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/sirupsen/logrus"
)

var graphVersionKey = []byte("meta/graph_version")

var (
	ErrNotFound = errors.New("keyValStore: key not found")
	ErrClosed   = errors.New("keyValStore: store closed")
)

// StorageError wraps a failure of the underlying badger store. A write that
// fails with a StorageError has been discarded without partial effect.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a badger write conflict that may succeed on retry.
func IsConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

type StoreConfig struct {
	Paths            []string // absolute path at the moment only first path is supported
	MinimumFreeSpace int      // in GB
	SyncWrites       bool
	Logger           *logrus.Logger
}

type KeyValStore struct {
	config   StoreConfig
	log      *logrus.Logger
	badgerDB *badger.DB

	// writeMu keeps at most one write transaction in flight.
	writeMu sync.Mutex
	version atomic.Uint64
	closed  atomic.Bool

	readCounter  atomic.Uint64
	writeCounter atomic.Uint64
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = config.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	k := &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}

	err = db.View(func(txn *badger.Txn) error {
		v, err := readVersion(txn)
		k.version.Store(uint64(v))
		return err
	})
	if err != nil {
		db.Close()
		return nil, &StorageError{Op: "read graph version", Err: err}
	}

	if err := k.displayDiskUsage(); err != nil {
		k.log.Warnf("could not display disk usage: %v", err)
	}

	k.log.WithFields(logrus.Fields{
		"path":    config.Paths[0],
		"version": k.version.Load(),
	}).Info("KeyValStore opened")

	return k, nil
}

func readVersion(txn *badger.Txn) (types.GraphVersion, error) {
	item, err := txn.Get(graphVersionKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v types.GraphVersion
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("invalid graph version record length %d", len(val))
		}
		v = types.GraphVersion(binary.BigEndian.Uint64(val))
		return nil
	})
	return v, err
}

// Version returns the graph version of the latest committed write.
func (k *KeyValStore) Version() types.GraphVersion {
	return types.GraphVersion(k.version.Load())
}

// BeginRead opens a read-only snapshot. The caller must Discard it.
func (k *KeyValStore) BeginRead() (*Txn, error) {
	if k.closed.Load() {
		return nil, ErrClosed
	}
	btx := k.badgerDB.NewTransaction(false)
	v, err := readVersion(btx)
	if err != nil {
		btx.Discard()
		return nil, &StorageError{Op: "read graph version", Err: err}
	}
	return &Txn{store: k, txn: btx, version: v}, nil
}

// Update runs fn inside a write transaction and commits it. Write
// transactions are serialized. If fn marked the transaction as changing the
// graph, the graph version is advanced in the same commit. Returns the graph
// version visible after the commit.
func (k *KeyValStore) Update(fn func(txn *Txn) error) (types.GraphVersion, error) {
	if k.closed.Load() {
		return 0, ErrClosed
	}

	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	btx := k.badgerDB.NewTransaction(true)
	defer btx.Discard()

	v, err := readVersion(btx)
	if err != nil {
		return 0, &StorageError{Op: "read graph version", Err: err}
	}

	t := &Txn{store: k, txn: btx, version: v, writable: true}
	defer t.finish()

	if err := fn(t); err != nil {
		return 0, err
	}

	if t.dirty {
		v++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v))
		if err := btx.Set(graphVersionKey, buf); err != nil {
			return 0, &StorageError{Op: "set graph version", Err: err}
		}
	}

	if err := btx.Commit(); err != nil {
		return 0, &StorageError{Op: "commit", Err: err}
	}

	if t.dirty {
		k.version.Store(uint64(v))
	}
	return v, nil
}

// Stats returns the number of key reads and writes since the store was opened.
func (k *KeyValStore) Stats() (reads, writes uint64) {
	return k.readCounter.Load(), k.writeCounter.Load()
}

func (k *KeyValStore) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	if err := k.Clean(); err != nil {
		k.log.Warnf("value log cleanup failed: %v", err)
	}
	reads, writes := k.Stats()
	k.log.WithFields(logrus.Fields{
		"version": k.version.Load(),
		"reads":   reads,
		"writes":  writes,
	}).Info("KeyValStore closed")
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	err := k.badgerDB.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}
	return nil
}
