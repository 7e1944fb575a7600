package socialgraph

import (
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
)

// InconsistencyError describes the first disagreement Verify found between
// the forward records, the reverse records and the counters.
type InconsistencyError struct {
	Edge   types.Edge
	Reason string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("socialgraph: %s->%s: %s", e.Edge.Follower, e.Edge.Followee, e.Reason)
}

// Verify scans the whole index and checks that every forward record has its
// reverse record and the other way round, and that the stored counters match
// the records. It reads every edge and is meant for tests and offline checks.
func (ix *Index) Verify(txn *keyValStore.Txn) error {
	following := map[types.Identity]uint64{}
	followers := map[types.Identity]uint64{}

	err := txn.IterateKeys(prefixForward, func(key []byte) error {
		e := types.Edge{Follower: pairHead(prefixForward, key), Followee: pairSuffix(key)}
		ok, err := txn.Has(reverseKey(e))
		if err != nil {
			return err
		}
		if !ok {
			return &InconsistencyError{Edge: e, Reason: "forward record without reverse record"}
		}
		following[e.Follower]++
		followers[e.Followee]++
		return nil
	})
	if err != nil {
		return err
	}

	err = txn.IterateKeys(prefixReverse, func(key []byte) error {
		e := types.Edge{Follower: pairSuffix(key), Followee: pairHead(prefixReverse, key)}
		ok, err := txn.Has(forwardKey(e))
		if err != nil {
			return err
		}
		if !ok {
			return &InconsistencyError{Edge: e, Reason: "reverse record without forward record"}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := checkCounters(txn, prefixFollowing, following, true); err != nil {
		return err
	}
	return checkCounters(txn, prefixFollowers, followers, false)
}

func checkCounters(txn *keyValStore.Txn, prefix []byte, expected map[types.Identity]uint64, forward bool) error {
	seen := 0
	err := txn.IteratePrefix(prefix, func(key, value []byte) error {
		var id types.Identity
		copy(id[:], key[len(prefix):])
		n, err := decodeCount(value)
		if err != nil {
			return err
		}
		if n != expected[id] {
			return counterMismatch(id, forward, n, expected[id])
		}
		seen++
		return nil
	})
	if err != nil {
		return err
	}
	if seen != len(expected) {
		for id, want := range expected {
			n, err := readCount(txn, identityKey(prefix, id))
			if err != nil {
				return err
			}
			if n != want {
				return counterMismatch(id, forward, n, want)
			}
		}
		return errors.New("socialgraph: counter set does not match edge set")
	}
	return nil
}

func counterMismatch(id types.Identity, forward bool, got, want uint64) error {
	e := types.Edge{Followee: id}
	what := "follower"
	if forward {
		e = types.Edge{Follower: id}
		what = "following"
	}
	return &InconsistencyError{Edge: e, Reason: fmt.Sprintf("%s count %d, records say %d", what, got, want)}
}
