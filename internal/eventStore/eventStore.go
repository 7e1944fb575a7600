// Package eventStore keeps the raw bytes of the contact list each author's
// follow set was derived from, lzma compressed.
package eventStore

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-nostrdb/internal/keyValStore"
	"github.com/i5heu/ouroboros-nostrdb/pkg/types"
	"github.com/ulikunitz/xz/lzma"
)

var prefixContactList = []byte("ev/c/")

var ErrNotFound = errors.New("eventStore: no contact list stored")

func contactListKey(author types.Identity) []byte {
	return append(append([]byte{}, prefixContactList...), author[:]...)
}

// PutContactList stores ev as the current contact list of its author. It must
// run in the same write transaction that applied the list to the graph.
func PutContactList(txn *keyValStore.Txn, ev *types.Event) error {
	if !ev.IsContactList() {
		return fmt.Errorf("eventStore: event kind %d is not a contact list", ev.Kind)
	}
	compressed, err := compressWithLzma(ev.Raw)
	if err != nil {
		return fmt.Errorf("compress contact list: %w", err)
	}
	return txn.Set(contactListKey(ev.Author), compressed)
}

// ContactList returns the raw bytes of the contact list stored for author.
func ContactList(txn *keyValStore.Txn, author types.Identity) ([]byte, error) {
	compressed, err := txn.Get(contactListKey(author))
	if errors.Is(err, keyValStore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	raw, err := decompressWithLzma(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress contact list of %s: %w", author, err)
	}
	return raw, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(data)
	if err != nil {
		return nil, err
	}

	err = w.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
