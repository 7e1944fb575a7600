package validator_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/i5heu/ouroboros-nostrdb/internal/testutil"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/i5heu/ouroboros-nostrdb/pkg/validator"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contactListFixture is the contact list of aa.. following bb.. and cc.., with
// a placeholder id and a 65 byte zero signature.
const contactListFixture = `{"id":"0000000000000000000000000000000000000000000000000000000000000001",
 "pubkey":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
 "created_at":1234567890,
 "kind":3,
 "tags":[
  ["p","bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"],
  ["p","cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"]
 ],
 "content":"",
 "sig":"0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"}`

func TestValidate_SignedEvent(t *testing.T) {
	signer := testutil.NewSigner(t)
	raw := signer.ContactList(t, 1700000000, testutil.Repeated(0xBB))

	ev, err := validator.New(validator.Config{}).Validate(raw)
	require.NoError(t, err)

	assert.Equal(t, signer.Identity, ev.Author)
	assert.Equal(t, int64(1700000000), ev.CreatedAt)
	assert.True(t, ev.IsContactList())
	assert.Equal(t, []types.Identity{testutil.Repeated(0xBB)}, validator.FollowSet(ev))
	assert.Equal(t, raw, ev.Raw)
}

func TestValidate_CopiesRaw(t *testing.T) {
	raw := testutil.UnsignedContactList(t, testutil.Repeated(0xAA), 1, 100, testutil.Repeated(0xBB))
	want := append([]byte(nil), raw...)

	ev, err := validator.New(validator.Config{SkipSignatureVerification: true}).Validate(raw)
	require.NoError(t, err)
	for i := range raw {
		raw[i] = 0
	}
	assert.Equal(t, want, ev.Raw)
}

func TestValidate_RejectsBadSignature(t *testing.T) {
	signer := testutil.NewSigner(t)
	raw := signer.ContactList(t, 1700000000, testutil.Repeated(0xBB))

	var ne nostr.Event
	require.NoError(t, ne.UnmarshalJSON(raw))
	flipped := []byte(ne.Sig)
	if flipped[10] == '0' {
		flipped[10] = '1'
	} else {
		flipped[10] = '0'
	}
	ne.Sig = string(flipped)
	tampered, err := ne.MarshalJSON()
	require.NoError(t, err)

	_, err = validator.New(validator.Config{}).Validate(tampered)
	var verr *validator.VerificationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidate_RejectsIDMismatch(t *testing.T) {
	signer := testutil.NewSigner(t)
	raw := signer.ContactList(t, 1700000000, testutil.Repeated(0xBB))

	var ne nostr.Event
	require.NoError(t, ne.UnmarshalJSON(raw))
	ne.Content = "changed after signing"
	tampered, err := ne.MarshalJSON()
	require.NoError(t, err)

	_, err = validator.New(validator.Config{}).Validate(tampered)
	var verr *validator.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "id")
}

func TestValidate_UnsignedFixture(t *testing.T) {
	_, err := validator.New(validator.Config{}).Validate([]byte(contactListFixture))
	assert.Error(t, err, "placeholder signature must not pass verification")

	ev, err := validator.New(validator.Config{SkipSignatureVerification: true}).Validate([]byte(contactListFixture))
	require.NoError(t, err)
	assert.Equal(t, testutil.Repeated(0xAA), ev.Author)
	assert.Equal(t, []types.Identity{testutil.Repeated(0xBB), testutil.Repeated(0xCC)}, validator.FollowSet(ev))
}

func TestValidate_ParseErrors(t *testing.T) {
	v := validator.New(validator.Config{SkipSignatureVerification: true})
	valid := map[string]any{
		"id":         strings.Repeat("01", 32),
		"pubkey":     strings.Repeat("aa", 32),
		"created_at": 1,
		"kind":       3,
		"tags":       [][]string{},
		"content":    "",
		"sig":        strings.Repeat("00", 64),
	}

	cases := map[string]func(m map[string]any){
		"short id":      func(m map[string]any) { m["id"] = "0102" },
		"bad pubkey":    func(m map[string]any) { m["pubkey"] = strings.Repeat("zz", 32) },
		"sig not hex":   func(m map[string]any) { m["sig"] = "xyz" },
		"empty tag":     func(m map[string]any) { m["tags"] = [][]string{{}} },
		"negative kind": func(m map[string]any) { m["kind"] = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := map[string]any{}
			for k, val := range valid {
				m[k] = val
			}
			mutate(m)
			raw, err := json.Marshal(m)
			require.NoError(t, err)

			_, err = v.Validate(raw)
			var perr *validator.ParseError
			assert.ErrorAs(t, err, &perr)
		})
	}

	_, err := v.Validate(nil)
	var perr *validator.ParseError
	assert.ErrorAs(t, err, &perr)

	_, err = v.Validate([]byte("{not json"))
	assert.ErrorAs(t, err, &perr)
}

func TestValidate_SigLengthEnforcedWhenVerifying(t *testing.T) {
	_, err := validator.New(validator.Config{}).Validate([]byte(contactListFixture))
	var perr *validator.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestFollowSet_SkipsMalformedAndDuplicates(t *testing.T) {
	bb := testutil.Repeated(0xBB).String()
	ev := &types.Event{
		Kind: types.KindContactList,
		Tags: []types.Tag{
			{"p", bb},
			{"p", "not-a-key"},
			{"p"},
			{"e", testutil.Repeated(0xCC).String()},
			{"p", bb, "wss://relay.example", "bob"},
			{"p", testutil.Repeated(0xDD).String()},
		},
	}

	assert.Equal(t, []types.Identity{testutil.Repeated(0xBB), testutil.Repeated(0xDD)}, validator.FollowSet(ev))
}

func TestFollowSet_OnlyMalformedIsEmpty(t *testing.T) {
	ev := &types.Event{Kind: types.KindContactList, Tags: []types.Tag{{"p", "abc"}}}
	assert.Empty(t, validator.FollowSet(ev))
}
