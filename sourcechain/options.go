package sourcechain

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
)

// CommitOptions tunes a single commit.
type CommitOptions struct {
	// HeaderType tags the header. Zero value means chain.HeaderCommit.
	HeaderType chain.HeaderType

	// AdditionalProvenances are pre-formed countersignatures gathered
	// out-of-band, each a signature over the header's signing scope by
	// another agent. They are shape-checked and merged into the header's
	// provenance set; the committing agent's own provenance is always
	// present and never displaced.
	AdditionalProvenances []chain.Provenance
}

// ChainContext is the chain state a Validator sees at commit time.
type ChainContext struct {
	Agent  string
	Tip    cid.Cid // cid.Undef when the chain is empty
	Length int
}

// Validator inspects a fully assembled, signed header and its entry before
// the append. Returning an error aborts the commit and leaves the chain
// untouched.
type Validator interface {
	Validate(ctx context.Context, e chain.Entry, h chain.Header, cc ChainContext) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, e chain.Entry, h chain.Header, cc ChainContext) error

func (f ValidatorFunc) Validate(ctx context.Context, e chain.Entry, h chain.Header, cc ChainContext) error {
	return f(ctx, e, h, cc)
}
