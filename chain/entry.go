// Package chain defines the core data model of the source chain: entries,
// headers, provenances, and the canonical serialization and structured
// errors shared by every other package in the module.
package chain

import (
	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/hashutil"
)

// Reserved system entry types. Application entry types are free-form but
// must not start with '%'.
const (
	TypeAgentID     = "%agent_id"
	TypeLinkAdd     = "%link_add"
	TypeLinkRemove  = "%link_remove"
	TypeRemoveEntry = "%remove_entry"
)

// Entry is an opaque content payload with a type tag. Entries are immutable
// once committed and identified by the CID of their canonical bytes.
type Entry struct {
	Type    string `cbor:"type"`
	Content []byte `cbor:"content"`
}

// Canonical returns the canonical CBOR bytes of the entry.
func (e Entry) Canonical() ([]byte, error) {
	if err := e.checkShape(); err != nil {
		return nil, err
	}
	return Encode(e)
}

// Hash returns the entry's content hash.
func (e Entry) Hash() (cid.Cid, error) {
	b, err := e.Canonical()
	if err != nil {
		return cid.Undef, err
	}
	id, err := hashutil.Sum(b)
	if err != nil {
		return cid.Undef, WrapError(KindInternal, "CHAIN-HASH-001", "entry hash derivation failed", err)
	}
	return id, nil
}

// IsSystemType reports whether the entry carries a reserved system type tag.
func (e Entry) IsSystemType() bool {
	return len(e.Type) > 0 && e.Type[0] == '%'
}

func (e Entry) checkShape() error {
	if e.Type == "" {
		return NewError(KindSerialization, "CHAIN-SER-010", "entry type is required")
	}
	if e.IsSystemType() {
		switch e.Type {
		case TypeAgentID, TypeLinkAdd, TypeLinkRemove, TypeRemoveEntry:
		default:
			return NewError(KindSerialization, "CHAIN-SER-011", "unknown system entry type")
		}
	}
	return nil
}

// DecodeEntry parses canonical entry bytes and enforces shape rules.
func DecodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := Decode(data, &e); err != nil {
		return Entry{}, err
	}
	if err := e.checkShape(); err != nil {
		return Entry{}, err
	}
	return e, nil
}
