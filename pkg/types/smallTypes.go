package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

const (
	IdentityLength  = 32
	EventIDLength   = 32
	SignatureLength = 64
)

// Identity is a 32 byte x-only public key. It names both an event author and a
// vertex of the follow graph.
type Identity [IdentityLength]byte

func (i Identity) String() string {
	return hex.EncodeToString(i[:])
}

// Compare orders identities by their raw bytes.
func (i Identity) Compare(other Identity) int {
	return bytes.Compare(i[:], other[:])
}

func ParseIdentity(s string) (Identity, error) {
	var id Identity
	if len(s) != IdentityLength*2 {
		return id, fmt.Errorf("invalid hex length for Identity: %d", len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid hex for Identity: %w", err)
	}
	return id, nil
}

// EventID is the sha256 of an event's canonical serialization.
type EventID [EventIDLength]byte

func (e EventID) String() string {
	return hex.EncodeToString(e[:])
}

func (e EventID) Compare(other EventID) int {
	return bytes.Compare(e[:], other[:])
}

func ParseEventID(s string) (EventID, error) {
	var id EventID
	if len(s) != EventIDLength*2 {
		return id, fmt.Errorf("invalid hex length for EventID: %d", len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("invalid hex for EventID: %w", err)
	}
	return id, nil
}

type Signature [SignatureLength]byte

func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// Distance is the number of follow hops from a root identity to a target.
type Distance uint32

// Unreachable is returned when no path exists within the configured depth.
// It must be treated as infinity, never as a hop count.
const Unreachable Distance = math.MaxUint32

func (d Distance) String() string {
	if d == Unreachable {
		return "unreachable"
	}
	return strconv.FormatUint(uint64(d), 10)
}

// GraphVersion counts committed graph mutations. It only ever grows.
type GraphVersion uint64
