package keyValStore

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
)

// Txn is a badger transaction bound to the graph version it observed when it
// was opened. Using a Txn after it finished, or writing through a read-only
// Txn, is a programming error and panics.
type Txn struct {
	store    *KeyValStore
	txn      *badger.Txn
	version  types.GraphVersion
	writable bool
	dirty    bool
	done     bool
}

func (t *Txn) check() {
	if t == nil || t.done {
		panic("keyValStore: use of finished or nil transaction")
	}
}

func (t *Txn) checkWritable() {
	t.check()
	if !t.writable {
		panic("keyValStore: write through read-only transaction")
	}
}

func (t *Txn) finish() {
	t.done = true
}

// Version is the graph version of the snapshot this transaction reads.
func (t *Txn) Version() types.GraphVersion {
	t.check()
	return t.version
}

func (t *Txn) Writable() bool {
	t.check()
	return t.writable
}

// MarkGraphChanged makes the commit advance the graph version.
func (t *Txn) MarkGraphChanged() {
	t.checkWritable()
	t.dirty = true
}

// Discard releases a read transaction. It is safe to call more than once.
func (t *Txn) Discard() {
	if t == nil || t.done {
		return
	}
	if t.writable {
		panic("keyValStore: write transactions are finished by Update")
	}
	t.done = true
	t.txn.Discard()
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	t.check()
	t.store.readCounter.Add(1)
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Err: err}
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, &StorageError{Op: "get value", Err: err}
	}
	return val, nil
}

func (t *Txn) Has(key []byte) (bool, error) {
	t.check()
	t.store.readCounter.Add(1)
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StorageError{Op: "get", Err: err}
	}
	return true, nil
}

func (t *Txn) Set(key, value []byte) error {
	t.checkWritable()
	t.store.writeCounter.Add(1)
	if err := t.txn.Set(key, value); err != nil {
		return &StorageError{Op: "set", Err: err}
	}
	return nil
}

func (t *Txn) Delete(key []byte) error {
	t.checkWritable()
	t.store.writeCounter.Add(1)
	if err := t.txn.Delete(key); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// IterateKeys calls fn with every key under prefix in ascending order. The key
// slice is only valid during the call.
func (t *Txn) IterateKeys(prefix []byte, fn func(key []byte) error) error {
	t.check()
	t.store.readCounter.Add(1)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item().Key()); err != nil {
			return err
		}
	}
	return nil
}

// IteratePrefix calls fn with every key and value under prefix in ascending
// order. Both slices are only valid during the call.
func (t *Txn) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	t.check()
	t.store.readCounter.Add(1)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
