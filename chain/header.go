package chain

import (
	"sort"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/hashutil"
)

// HeaderType tags the mutation a header records.
type HeaderType string

const (
	HeaderCommit     HeaderType = "Commit"
	HeaderLinkAdd    HeaderType = "LinkAdd"
	HeaderLinkRemove HeaderType = "LinkRemove"
)

// Provenance is a cryptographic attestation that an agent endorsed a header:
// the agent's public key string and a signature over the header's signing
// scope digest.
type Provenance struct {
	AgentKey  string `cbor:"agent"`
	Signature []byte `cbor:"signature"`
}

// Header is the metadata record appended to a source chain. It references
// the entry by hash and the previous header by hash, so the header hash
// covers the entry hash compositionally, never the entry content directly.
//
// Headers are immutable once appended and identified by the CID of their
// canonical bytes, provenance set included.
type Header struct {
	Type        HeaderType   `cbor:"type"`
	Entry       string       `cbor:"entry"`
	Prev        string       `cbor:"prev,omitempty"`
	Timestamp   string       `cbor:"timestamp"`
	Agent       string       `cbor:"agent"`
	Provenances []Provenance `cbor:"provenances"`
}

// TimestampFormat is RFC 3339 UTC truncated to seconds. Headers store the
// formatted string so canonical bytes are stable across clock precisions.
const TimestampFormat = time.RFC3339

// FormatTimestamp renders t in the canonical header timestamp form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampFormat)
}

// ParseTimestamp parses a canonical header timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampFormat, s)
	if err != nil {
		return time.Time{}, WrapError(KindSerialization, "CHAIN-SER-020", "invalid header timestamp", err)
	}
	return t, nil
}

// SigningScope returns the canonical bytes covered by provenance signatures:
// the header with an empty provenance set. Signatures cannot cover
// themselves, so the scope excludes exactly the Provenances field.
func (h Header) SigningScope() ([]byte, error) {
	scope := h
	scope.Provenances = nil
	if err := scope.checkShape(false); err != nil {
		return nil, err
	}
	return Encode(scope)
}

// Canonical returns the canonical CBOR bytes of the fully assembled header.
func (h Header) Canonical() ([]byte, error) {
	if err := h.checkShape(true); err != nil {
		return nil, err
	}
	return Encode(h)
}

// Hash returns the header hash: the value every mutating operation in this
// module returns to its caller.
func (h Header) Hash() (cid.Cid, error) {
	b, err := h.Canonical()
	if err != nil {
		return cid.Undef, err
	}
	id, err := hashutil.Sum(b)
	if err != nil {
		return cid.Undef, WrapError(KindInternal, "CHAIN-HASH-002", "header hash derivation failed", err)
	}
	return id, nil
}

// EntryCID returns the referenced entry hash.
func (h Header) EntryCID() (cid.Cid, error) {
	id, err := cid.Decode(h.Entry)
	if err != nil {
		return cid.Undef, WrapError(KindSerialization, "CHAIN-SER-021", "invalid entry hash in header", err)
	}
	return id, nil
}

// PrevCID returns the previous header hash and whether one is present.
// Absence is legitimate only for the genesis header.
func (h Header) PrevCID() (cid.Cid, bool, error) {
	if h.Prev == "" {
		return cid.Undef, false, nil
	}
	id, err := cid.Decode(h.Prev)
	if err != nil {
		return cid.Undef, false, WrapError(KindSerialization, "CHAIN-SER-022", "invalid previous hash in header", err)
	}
	return id, true, nil
}

// ProvenanceFor returns the provenance attached for agentKey, if any.
func (h Header) ProvenanceFor(agentKey string) (Provenance, bool) {
	for _, p := range h.Provenances {
		if p.AgentKey == agentKey {
			return p, true
		}
	}
	return Provenance{}, false
}

func (h Header) checkShape(withProvenances bool) error {
	switch h.Type {
	case HeaderCommit, HeaderLinkAdd, HeaderLinkRemove:
	default:
		return NewError(KindSerialization, "CHAIN-SER-023", "unknown header type")
	}
	if h.Entry == "" {
		return NewError(KindSerialization, "CHAIN-SER-024", "header entry hash is required")
	}
	if _, err := cid.Decode(h.Entry); err != nil {
		return WrapError(KindSerialization, "CHAIN-SER-021", "invalid entry hash in header", err)
	}
	if h.Prev != "" {
		if _, err := cid.Decode(h.Prev); err != nil {
			return WrapError(KindSerialization, "CHAIN-SER-022", "invalid previous hash in header", err)
		}
	}
	if _, err := ParseTimestamp(h.Timestamp); err != nil {
		return err
	}
	if h.Agent == "" {
		return NewError(KindSerialization, "CHAIN-SER-025", "header agent key is required")
	}
	if !withProvenances {
		return nil
	}
	if len(h.Provenances) == 0 {
		return NewError(KindSerialization, "CHAIN-SER-026", "header provenance set is empty")
	}
	for i, p := range h.Provenances {
		if p.AgentKey == "" {
			return NewError(KindSerialization, "CHAIN-SER-027", "provenance agent key is required")
		}
		if len(p.Signature) == 0 {
			return NewError(KindSerialization, "CHAIN-SER-028", "provenance signature is required")
		}
		if i > 0 && h.Provenances[i-1].AgentKey >= p.AgentKey {
			return NewError(KindSerialization, "CHAIN-SER-029", "provenances not sorted by agent key")
		}
	}
	if _, ok := h.ProvenanceFor(h.Agent); !ok {
		return NewError(KindSerialization, "CHAIN-SER-030", "committing agent provenance missing")
	}
	return nil
}

// SortProvenances orders provenances by agent key, the canonical order
// required for hashing.
func SortProvenances(ps []Provenance) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].AgentKey < ps[j].AgentKey })
}

// DecodeHeader parses canonical header bytes and enforces shape rules.
func DecodeHeader(data []byte) (Header, error) {
	var h Header
	if err := Decode(data, &h); err != nil {
		return Header{}, err
	}
	if err := h.checkShape(true); err != nil {
		return Header{}, err
	}
	return h, nil
}
