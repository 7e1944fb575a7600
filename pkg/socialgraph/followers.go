package socialgraph

import (
	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
)

// FollowerCount is the number of identities following target in the snapshot.
func (ix *Index) FollowerCount(txn *keyValStore.Txn, target types.Identity) (uint64, error) {
	return readCount(txn, identityKey(prefixFollowers, target))
}

// EachFollower calls fn for every identity following target, ordered by identity.
func (ix *Index) EachFollower(txn *keyValStore.Txn, target types.Identity, fn func(follower types.Identity) error) error {
	return txn.IterateKeys(identityKey(prefixReverse, target), func(key []byte) error {
		return fn(pairSuffix(key))
	})
}

// FollowersOf returns everyone following target, ordered by identity.
func (ix *Index) FollowersOf(txn *keyValStore.Txn, target types.Identity) ([]types.Identity, error) {
	var out []types.Identity
	err := ix.EachFollower(txn, target, func(follower types.Identity) error {
		out = append(out, follower)
		return nil
	})
	return out, err
}
