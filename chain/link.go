package chain

import "github.com/ipfs/go-cid"

// LinkPayload is the entry content of a LinkAdd header: a logical edge from
// a base entry hash to a target entry hash, qualified by a tag.
type LinkPayload struct {
	Base   string `cbor:"base"`
	Target string `cbor:"target"`
	Tag    string `cbor:"tag"`
}

// TombstonePayload is the entry content of a LinkRemove header. Target is
// the hash of the header being tombstoned: a LinkAdd header for link
// removal, any header for entry removal.
type TombstonePayload struct {
	Target string `cbor:"target"`
}

// NewLinkEntry builds the system entry materializing a link edge.
func NewLinkEntry(base, target cid.Cid, tag string) (Entry, error) {
	if !base.Defined() || !target.Defined() {
		return Entry{}, NewError(KindSerialization, "CHAIN-SER-040", "link base and target hashes are required")
	}
	content, err := Encode(LinkPayload{Base: base.String(), Target: target.String(), Tag: tag})
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: TypeLinkAdd, Content: content}, nil
}

// DecodeLinkPayload parses the content of a %link_add entry.
func DecodeLinkPayload(e Entry) (LinkPayload, error) {
	if e.Type != TypeLinkAdd {
		return LinkPayload{}, NewError(KindSerialization, "CHAIN-SER-041", "entry is not a link entry")
	}
	var p LinkPayload
	if err := Decode(e.Content, &p); err != nil {
		return LinkPayload{}, err
	}
	if _, err := cid.Decode(p.Base); err != nil {
		return LinkPayload{}, WrapError(KindSerialization, "CHAIN-SER-042", "invalid link base hash", err)
	}
	if _, err := cid.Decode(p.Target); err != nil {
		return LinkPayload{}, WrapError(KindSerialization, "CHAIN-SER-043", "invalid link target hash", err)
	}
	return p, nil
}

// NewTombstoneEntry builds the system entry marking target as removed.
// entryType must be %link_remove or %remove_entry.
func NewTombstoneEntry(entryType string, target cid.Cid) (Entry, error) {
	if entryType != TypeLinkRemove && entryType != TypeRemoveEntry {
		return Entry{}, NewError(KindSerialization, "CHAIN-SER-044", "invalid tombstone entry type")
	}
	if !target.Defined() {
		return Entry{}, NewError(KindSerialization, "CHAIN-SER-045", "tombstone target hash is required")
	}
	content, err := Encode(TombstonePayload{Target: target.String()})
	if err != nil {
		return Entry{}, err
	}
	return Entry{Type: entryType, Content: content}, nil
}

// DecodeTombstonePayload parses the content of a %link_remove or
// %remove_entry entry.
func DecodeTombstonePayload(e Entry) (TombstonePayload, error) {
	if e.Type != TypeLinkRemove && e.Type != TypeRemoveEntry {
		return TombstonePayload{}, NewError(KindSerialization, "CHAIN-SER-046", "entry is not a tombstone entry")
	}
	var p TombstonePayload
	if err := Decode(e.Content, &p); err != nil {
		return TombstonePayload{}, err
	}
	if _, err := cid.Decode(p.Target); err != nil {
		return TombstonePayload{}, WrapError(KindSerialization, "CHAIN-SER-047", "invalid tombstone target hash", err)
	}
	return p, nil
}
