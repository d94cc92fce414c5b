package chainrpc

import (
	"github.com/animanga/agentchain/chain"
)

// Wire messages ride inside protobuf BytesValue payloads as canonical CBOR,
// encoded with the same codec as chain data. This keeps the service free of
// a protoc/codegen toolchain while staying on one serialization everywhere.

// CommitRequest commits an application entry.
type CommitRequest struct {
	EntryType string `cbor:"entry_type"`
	Content   []byte `cbor:"content"`
	// AdditionalProvenances are pre-formed countersignatures.
	AdditionalProvenances []chain.Provenance `cbor:"additional_provenances,omitempty"`
}

// AddLinkRequest commits a link edge.
type AddLinkRequest struct {
	Base   string `cbor:"base"`
	Target string `cbor:"target"`
	Tag    string `cbor:"tag"`
}

// GetLinksRequest queries live links from a base entry hash. An empty tag
// matches every tag.
type GetLinksRequest struct {
	Base string `cbor:"base"`
	Tag  string `cbor:"tag"`
}

// LinkRecord is one live link in a GetLinksResponse.
type LinkRecord struct {
	Target string `cbor:"target"`
	Tag    string `cbor:"tag"`
	Header string `cbor:"header"`
}

type GetLinksResponse struct {
	Links []LinkRecord `cbor:"links"`
}

// HeaderRecord is one chain header in a WalkResponse.
type HeaderRecord struct {
	Hash   string       `cbor:"hash"`
	Header chain.Header `cbor:"header"`
}

// WalkResponse lists headers newest-first.
type WalkResponse struct {
	Headers []HeaderRecord `cbor:"headers"`
}

type ProvenancesResponse struct {
	Provenances []chain.Provenance `cbor:"provenances"`
}

// EntryResponse carries one entry and the hash of its committing header.
type EntryResponse struct {
	Type    string `cbor:"type"`
	Content []byte `cbor:"content"`
}
