package socialgraph

import (
	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
)

// IsFollowing reports whether a follows b in the transaction's snapshot.
func (ix *Index) IsFollowing(txn *keyValStore.Txn, a, b types.Identity) (bool, error) {
	return txn.Has(forwardKey(types.Edge{Follower: a, Followee: b}))
}

// FollowingCount is the number of identities author follows in the snapshot.
func (ix *Index) FollowingCount(txn *keyValStore.Txn, author types.Identity) (uint64, error) {
	return readCount(txn, identityKey(prefixFollowing, author))
}

// EachFollowee calls fn for every identity author follows, ordered by identity.
func (ix *Index) EachFollowee(txn *keyValStore.Txn, author types.Identity, fn func(followee types.Identity) error) error {
	return txn.IterateKeys(identityKey(prefixForward, author), func(key []byte) error {
		return fn(pairSuffix(key))
	})
}

// FolloweesOf returns everyone author follows, ordered by identity.
func (ix *Index) FolloweesOf(txn *keyValStore.Txn, author types.Identity) ([]types.Identity, error) {
	var out []types.Identity
	err := ix.EachFollowee(txn, author, func(followee types.Identity) error {
		out = append(out, followee)
		return nil
	})
	return out, err
}
