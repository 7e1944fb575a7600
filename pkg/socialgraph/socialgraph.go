// Package socialgraph maintains the follow graph derived from contact lists.
//
// Every operation runs inside a caller supplied keyValStore transaction. Reads
// see the snapshot of that transaction; SetFollowList must run inside a write
// transaction and leaves forward and reverse records in agreement when the
// transaction commits.
package socialgraph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/sirupsen/logrus"
)

// CorruptRecordError reports a stored record that cannot be decoded.
type CorruptRecordError struct {
	Record string
	Reason string
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("socialgraph: corrupt %s record: %s", e.Record, e.Reason)
}

type Index struct {
	log *logrus.Logger
}

func New(logger *logrus.Logger) *Index {
	if logger == nil {
		logger = logrus.New()
	}
	return &Index{log: logger}
}

// SetFollowList replaces the follow set of author with followees if version
// is newer than the stored one. It applies only the difference between the
// stored and the new set and reports it. applied is false, and nothing is
// written, for replays and out of order lists.
func (ix *Index) SetFollowList(txn *keyValStore.Txn, author types.Identity, version types.ListVersion, followees []types.Identity) (diff types.EdgeDiff, applied bool, err error) {
	if !txn.Writable() {
		panic("socialgraph: SetFollowList needs a write transaction")
	}
	diff.Author = author

	stored, ok, err := ix.ListVersion(txn, author)
	if err != nil {
		return diff, false, err
	}
	if ok && !version.Newer(stored) {
		ix.log.WithFields(logrus.Fields{
			"author":  author.String(),
			"stored":  stored.CreatedAt,
			"offered": version.CreatedAt,
		}).Debug("contact list not newer than stored one")
		return diff, false, nil
	}

	next := make(map[types.Identity]struct{}, len(followees))
	for _, f := range followees {
		next[f] = struct{}{}
	}

	err = ix.EachFollowee(txn, author, func(followee types.Identity) error {
		if _, keep := next[followee]; keep {
			delete(next, followee)
			return nil
		}
		diff.Removed = append(diff.Removed, types.Edge{Follower: author, Followee: followee})
		return nil
	})
	if err != nil {
		return diff, false, err
	}
	// what is left in next was not followed before
	for followee := range next {
		diff.Added = append(diff.Added, types.Edge{Follower: author, Followee: followee})
	}
	slices.SortFunc(diff.Added, func(a, b types.Edge) int {
		return a.Followee.Compare(b.Followee)
	})

	for _, e := range diff.Removed {
		if err := ix.deleteEdge(txn, e); err != nil {
			return diff, false, fmt.Errorf("remove edge %s->%s: %w", e.Follower, e.Followee, err)
		}
	}
	for _, e := range diff.Added {
		if err := ix.putEdge(txn, e); err != nil {
			return diff, false, fmt.Errorf("add edge %s->%s: %w", e.Follower, e.Followee, err)
		}
	}

	following, err := ix.FollowingCount(txn, author)
	if err != nil {
		return diff, false, err
	}
	following = following + uint64(len(diff.Added)) - uint64(len(diff.Removed))
	if err := setCount(txn, identityKey(prefixFollowing, author), following); err != nil {
		return diff, false, err
	}
	if err := txn.Set(identityKey(prefixVersion, author), encodeListVersion(version)); err != nil {
		return diff, false, err
	}
	txn.MarkGraphChanged()

	ix.log.WithFields(logrus.Fields{
		"author":  author.String(),
		"added":   len(diff.Added),
		"removed": len(diff.Removed),
	}).Debug("contact list applied")

	return diff, true, nil
}

// putEdge writes both records of e and bumps the follower count of the followee.
func (ix *Index) putEdge(txn *keyValStore.Txn, e types.Edge) error {
	if err := txn.Set(forwardKey(e), nil); err != nil {
		return err
	}
	if err := txn.Set(reverseKey(e), nil); err != nil {
		return err
	}
	return addCount(txn, identityKey(prefixFollowers, e.Followee), 1)
}

// deleteEdge removes both records of e and lowers the follower count of the followee.
func (ix *Index) deleteEdge(txn *keyValStore.Txn, e types.Edge) error {
	if err := txn.Delete(forwardKey(e)); err != nil {
		return err
	}
	if err := txn.Delete(reverseKey(e)); err != nil {
		return err
	}
	return addCount(txn, identityKey(prefixFollowers, e.Followee), -1)
}

func readCount(txn *keyValStore.Txn, key []byte) (uint64, error) {
	raw, err := txn.Get(key)
	if errors.Is(err, keyValStore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeCount(raw)
}

func setCount(txn *keyValStore.Txn, key []byte, n uint64) error {
	if n == 0 {
		return txn.Delete(key)
	}
	return txn.Set(key, encodeCount(n))
}

func addCount(txn *keyValStore.Txn, key []byte, delta int) error {
	n, err := readCount(txn, key)
	if err != nil {
		return err
	}
	if delta < 0 && n < uint64(-delta) {
		return &CorruptRecordError{Record: "counter", Reason: "underflow"}
	}
	return setCount(txn, key, uint64(int64(n)+int64(delta)))
}
