package nostrdb

import (
	"github.com/i5heu/ouroboros-nostrdb/internal/eventStore"
	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
)

// ErrNoContactList is returned by ContactList when no raw list is stored.
var ErrNoContactList = eventStore.ErrNotFound

// Query is a read-only snapshot of the social graph. Every query must be
// ended, on every path, or it pins old versions in the store.
type Query struct {
	c   components
	txn *keyValStore.Txn
}

// BeginQuery opens a snapshot of the latest committed graph.
func (db *NostrDB) BeginQuery() (*Query, error) {
	c, err := db.handle()
	if err != nil {
		return nil, err
	}
	txn, err := c.kv.BeginRead()
	if err != nil {
		return nil, err
	}
	return &Query{c: c, txn: txn}, nil
}

// EndQuery releases q. Ending a query twice is harmless.
func (db *NostrDB) EndQuery(q *Query) {
	q.End()
}

func (q *Query) End() {
	q.txn.Discard()
}

// Version is the graph version the snapshot sees.
func (q *Query) Version() types.GraphVersion {
	return q.txn.Version()
}

func (db *NostrDB) IsFollowing(q *Query, a, b types.Identity) (bool, error) {
	return q.c.graph.IsFollowing(q.txn, a, b)
}

func (db *NostrDB) FollowerCount(q *Query, target types.Identity) (uint64, error) {
	return q.c.graph.FollowerCount(q.txn, target)
}

func (db *NostrDB) FollowingCount(q *Query, author types.Identity) (uint64, error) {
	return q.c.graph.FollowingCount(q.txn, author)
}

// FollowersOf lists the followers of target in key order.
func (db *NostrDB) FollowersOf(q *Query, target types.Identity) ([]types.Identity, error) {
	return q.c.graph.FollowersOf(q.txn, target)
}

// FolloweesOf lists who author follows in key order.
func (db *NostrDB) FolloweesOf(q *Query, author types.Identity) ([]types.Identity, error) {
	return q.c.graph.FolloweesOf(q.txn, author)
}

// FollowDistance is the number of follow hops from root to target, or
// types.Unreachable when no path within the configured depth exists.
func (db *NostrDB) FollowDistance(q *Query, root, target types.Identity) (types.Distance, error) {
	return q.c.engine.Distance(q.txn, root, target)
}

// DistanceFromRoot is FollowDistance from the configured root identity.
func (db *NostrDB) DistanceFromRoot(q *Query, target types.Identity) (types.Distance, error) {
	if db.config.Root == nil {
		return types.Unreachable, ErrNoRoot
	}
	return db.FollowDistance(q, *db.config.Root, target)
}

// ContactList returns the latest applied contact list of author as raw JSON.
// It requires StoreRawEvents.
func (db *NostrDB) ContactList(q *Query, author types.Identity) ([]byte, error) {
	return eventStore.ContactList(q.txn, author)
}
