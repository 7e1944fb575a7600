package testutil

import (
	"bytes"
	"encoding/json"
	"flag"
	"strings"
	"testing"

	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/nbd-wtf/go-nostr"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}

// Repeated returns the identity whose 32 bytes are all b, e.g. Repeated(0xAA)
// is aaaa...aa.
func Repeated(b byte) types.Identity {
	var id types.Identity
	copy(id[:], bytes.Repeat([]byte{b}, types.IdentityLength))
	return id
}

// Numbered returns a distinct identity for n, for building larger graphs.
func Numbered(n int) types.Identity {
	var id types.Identity
	id[0] = 0x42
	id[28] = byte(n >> 24)
	id[29] = byte(n >> 16)
	id[30] = byte(n >> 8)
	id[31] = byte(n)
	return id
}

// UnsignedContactList builds a kind-3 event with a zero signature and an id
// that is not derived from the content. It only passes validation with
// signature verification disabled.
func UnsignedContactList(t testing.TB, author types.Identity, idByte byte, createdAt int64, followees ...types.Identity) []byte {
	t.Helper()
	var id types.EventID
	id[31] = idByte
	tags := make([][]string, 0, len(followees))
	for _, f := range followees {
		tags = append(tags, []string{"p", f.String()})
	}
	raw, err := json.Marshal(map[string]any{
		"id":         id.String(),
		"pubkey":     author.String(),
		"created_at": createdAt,
		"kind":       types.KindContactList,
		"tags":       tags,
		"content":    "",
		"sig":        strings.Repeat("00", types.SignatureLength),
	})
	if err != nil {
		t.Fatalf("marshal contact list: %v", err)
	}
	return raw
}

// Signer holds a generated key pair for producing correctly signed events.
type Signer struct {
	secretKey string
	Identity  types.Identity
}

func NewSigner(t testing.TB) *Signer {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	id, err := types.ParseIdentity(pk)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	return &Signer{secretKey: sk, Identity: id}
}

// Event signs an event of the given kind and returns its JSON encoding.
func (s *Signer) Event(t testing.TB, kind int, createdAt int64, tags nostr.Tags, content string) []byte {
	t.Helper()
	ev := nostr.Event{
		PubKey:    s.Identity.String(),
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if ev.Tags == nil {
		ev.Tags = nostr.Tags{}
	}
	if err := ev.Sign(s.secretKey); err != nil {
		t.Fatalf("sign event: %v", err)
	}
	raw, err := ev.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func (s *Signer) ContactList(t testing.TB, createdAt int64, followees ...types.Identity) []byte {
	t.Helper()
	tags := make(nostr.Tags, 0, len(followees))
	for _, f := range followees {
		tags = append(tags, nostr.Tag{"p", f.String()})
	}
	return s.Event(t, types.KindContactList, createdAt, tags, "")
}
