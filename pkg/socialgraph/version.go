package socialgraph

import (
	"errors"

	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// List version records are protobuf wire encoded:
//
//	1: sint64 created_at
//	2: bytes  event id
const (
	fieldCreatedAt protowire.Number = 1
	fieldEventID   protowire.Number = 2
)

func encodeListVersion(v types.ListVersion) []byte {
	b := make([]byte, 0, 48)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(v.CreatedAt))
	b = protowire.AppendTag(b, fieldEventID, protowire.BytesType)
	b = protowire.AppendBytes(b, v.ID[:])
	return b
}

func decodeListVersion(b []byte) (types.ListVersion, error) {
	var v types.ListVersion
	var sawID bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return v, &CorruptRecordError{Record: "list version", Reason: protowire.ParseError(n).Error()}
		}
		b = b[n:]
		switch {
		case num == fieldCreatedAt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return v, &CorruptRecordError{Record: "list version", Reason: protowire.ParseError(n).Error()}
			}
			v.CreatedAt = protowire.DecodeZigZag(x)
			b = b[n:]
		case num == fieldEventID && typ == protowire.BytesType:
			id, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return v, &CorruptRecordError{Record: "list version", Reason: protowire.ParseError(n).Error()}
			}
			if len(id) != types.EventIDLength {
				return v, &CorruptRecordError{Record: "list version", Reason: "event id length"}
			}
			copy(v.ID[:], id)
			sawID = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return v, &CorruptRecordError{Record: "list version", Reason: protowire.ParseError(n).Error()}
			}
			b = b[n:]
		}
	}
	if !sawID {
		return v, &CorruptRecordError{Record: "list version", Reason: "missing event id"}
	}
	return v, nil
}

// ListVersion returns the version of the contact list currently stored for
// author. ok is false when no list was ever applied.
func (ix *Index) ListVersion(txn *keyValStore.Txn, author types.Identity) (v types.ListVersion, ok bool, err error) {
	raw, err := txn.Get(identityKey(prefixVersion, author))
	if errors.Is(err, keyValStore.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	v, err = decodeListVersion(raw)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}
