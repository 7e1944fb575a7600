package types

import "time"

const (
	KindTextNote    = 1
	KindContactList = 3
)

type Tag []string

// Event is a validated nostr event. It is never mutated after validation.
type Event struct {
	ID        EventID
	Author    Identity
	CreatedAt int64 // unix seconds
	Kind      int
	Tags      []Tag
	Content   string
	Sig       Signature

	// Raw holds the bytes the event was parsed from.
	Raw []byte
}

func (e *Event) IsContactList() bool {
	return e.Kind == KindContactList
}

func (e *Event) Time() time.Time {
	return time.Unix(e.CreatedAt, 0).UTC()
}

// ListVersion identifies which contact list of an author is stored.
type ListVersion struct {
	CreatedAt int64
	ID        EventID
}

func (e *Event) ListVersion() ListVersion {
	return ListVersion{CreatedAt: e.CreatedAt, ID: e.ID}
}

// Newer reports whether v supersedes other. A later created_at wins; on a tie
// the lexicographically greater id wins, so every replica picks the same list.
func (v ListVersion) Newer(other ListVersion) bool {
	if v.CreatedAt != other.CreatedAt {
		return v.CreatedAt > other.CreatedAt
	}
	return v.ID.Compare(other.ID) > 0
}

// Edge is a directed follow relation. It is stored under two keys, one per
// direction, which are always written together.
type Edge struct {
	Follower Identity
	Followee Identity
}

// EdgeDiff lists the edges one contact list update added and removed.
type EdgeDiff struct {
	Author  Identity
	Added   []Edge
	Removed []Edge
}

func (d EdgeDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}
