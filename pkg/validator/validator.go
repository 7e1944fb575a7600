// Package validator turns raw event bytes into validated events.
//
// Validation is pure: it never touches storage. Unless signature verification
// is disabled, the declared id must equal the sha256 of the event's canonical
// serialization and the signature must be a valid BIP-340 signature of that id
// by the declared author.
package validator

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/nbd-wtf/go-nostr"
)

type Config struct {
	// SkipSignatureVerification disables the id and signature checks. Only for
	// trusted bulk loads and tests.
	SkipSignatureVerification bool
}

type Validator struct {
	skipVerify bool
}

func New(cfg Config) *Validator {
	return &Validator{skipVerify: cfg.SkipSignatureVerification}
}

func (v *Validator) SkipsVerification() bool {
	return v.skipVerify
}

// Validate parses raw into an event. The event keeps its own copy of raw, so
// the caller may reuse the buffer once Validate returns.
func (v *Validator) Validate(raw []byte) (*types.Event, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Reason: "empty input"}
	}

	var ne nostr.Event
	if err := ne.UnmarshalJSON(raw); err != nil {
		return nil, &ParseError{Reason: "invalid json", Err: err}
	}

	id, err := types.ParseEventID(ne.ID)
	if err != nil {
		return nil, &ParseError{Reason: "id", Err: err}
	}
	author, err := types.ParseIdentity(ne.PubKey)
	if err != nil {
		return nil, &ParseError{Reason: "pubkey", Err: err}
	}
	sig, err := v.parseSignature(ne.Sig)
	if err != nil {
		return nil, err
	}
	if ne.Kind < 0 || ne.Kind > 65535 {
		return nil, &ParseError{Reason: "kind out of range"}
	}
	tags := make([]types.Tag, 0, len(ne.Tags))
	for _, tag := range ne.Tags {
		if len(tag) == 0 {
			return nil, &ParseError{Reason: "empty tag"}
		}
		tags = append(tags, types.Tag(tag))
	}

	if !v.skipVerify {
		if err := verify(&ne); err != nil {
			return nil, err
		}
	}

	return &types.Event{
		ID:        id,
		Author:    author,
		CreatedAt: int64(ne.CreatedAt),
		Kind:      ne.Kind,
		Tags:      tags,
		Content:   ne.Content,
		Sig:       sig,
		Raw:       bytes.Clone(raw),
	}, nil
}

// parseSignature requires exactly 64 bytes when verifying. With verification
// off any hex value is accepted and truncated or zero padded, since the
// signature is never looked at.
func (v *Validator) parseSignature(s string) (types.Signature, error) {
	var sig types.Signature
	b, err := hex.DecodeString(s)
	if err != nil {
		return sig, &ParseError{Reason: "sig", Err: err}
	}
	if len(b) != types.SignatureLength && !v.skipVerify {
		return sig, &ParseError{Reason: "sig length"}
	}
	copy(sig[:], b)
	return sig, nil
}

func verify(ne *nostr.Event) error {
	if !strings.EqualFold(ne.GetID(), ne.ID) {
		return &VerificationError{Reason: "id does not match serialized event"}
	}
	ok, err := ne.CheckSignature()
	if err != nil {
		return &VerificationError{Reason: err.Error()}
	}
	if !ok {
		return &VerificationError{Reason: "invalid signature"}
	}
	return nil
}

// FollowSet extracts the identities named by "p" tags, in first-seen order
// without duplicates. Malformed values are skipped; an event without any valid
// "p" tag declares an empty follow set.
func FollowSet(ev *types.Event) []types.Identity {
	seen := make(map[types.Identity]struct{}, len(ev.Tags))
	out := make([]types.Identity, 0, len(ev.Tags))
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		id, err := types.ParseIdentity(tag[1])
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
