package socialgraph

import (
	"encoding/binary"

	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
)

// Key layout. Every edge lives under a forward and a reverse key; the two are
// only ever written together by putEdge and deleteEdge.
var (
	prefixForward   = []byte("sg/f/")  // follower ++ followee
	prefixReverse   = []byte("sg/r/")  // followee ++ follower
	prefixVersion   = []byte("sg/v/")  // author -> list version record
	prefixFollowing = []byte("sg/cf/") // author -> following count
	prefixFollowers = []byte("sg/cr/") // target -> follower count
)

func identityKey(prefix []byte, id types.Identity) []byte {
	key := make([]byte, 0, len(prefix)+types.IdentityLength)
	key = append(key, prefix...)
	return append(key, id[:]...)
}

func pairKey(prefix []byte, first, second types.Identity) []byte {
	key := make([]byte, 0, len(prefix)+2*types.IdentityLength)
	key = append(key, prefix...)
	key = append(key, first[:]...)
	return append(key, second[:]...)
}

func forwardKey(e types.Edge) []byte {
	return pairKey(prefixForward, e.Follower, e.Followee)
}

func reverseKey(e types.Edge) []byte {
	return pairKey(prefixReverse, e.Followee, e.Follower)
}

// pairSuffix returns the second identity of a pair key.
func pairSuffix(key []byte) types.Identity {
	var id types.Identity
	copy(id[:], key[len(key)-types.IdentityLength:])
	return id
}

// pairHead returns the first identity of a pair key under prefix.
func pairHead(prefix, key []byte) types.Identity {
	var id types.Identity
	copy(id[:], key[len(prefix):len(prefix)+types.IdentityLength])
	return id
}

func encodeCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeCount(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, &CorruptRecordError{Record: "counter", Reason: "length"}
	}
	return binary.BigEndian.Uint64(b), nil
}
