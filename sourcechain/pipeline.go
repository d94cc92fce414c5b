package sourcechain

import (
	"context"
	"sync"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/dht"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/provenance"
)

// Config carries the optional collaborators of a Pipeline.
type Config struct {
	// Validator runs after the header is assembled and signed, before the
	// append. Nil means no app-level validation.
	Validator Validator

	// Broadcaster receives each committed mutation for propagation. Nil
	// means no propagation. Hand-off is asynchronous and never retried.
	Broadcaster dht.Broadcaster

	// Ledger records the provenances of each committed header. Nil means
	// no ledger is kept.
	Ledger *provenance.Ledger

	// BroadcastErrors is called when an asynchronous broadcast fails.
	// Nil means failures are dropped.
	BroadcastErrors func(b dht.Broadcast, err error)

	// Now overrides the header timestamp clock, for tests.
	Now func() time.Time
}

// Pipeline assembles, signs, and commits headers onto one agent's chain.
//
// A pipeline is a single writer: at most one commit may be in flight at a
// time. A commit arriving while another is in flight is rejected with a
// retryable concurrent-modification error rather than queued, so callers
// keep control over retry policy.
type Pipeline struct {
	chain  *Chain
	signer keys.Signer
	cfg    Config

	mu sync.Mutex
}

// NewPipeline builds a pipeline committing as signer onto c. The signer's
// agent key must match the chain's owning agent.
func NewPipeline(c *Chain, signer keys.Signer, cfg Config) (*Pipeline, error) {
	if c == nil || signer == nil {
		return nil, chain.NewError(chain.KindInternal, "CHAIN-PIPE-001", "pipeline requires a chain and a signer")
	}
	if signer.AgentKey() != c.Agent() {
		return nil, chain.NewError(chain.KindCrypto, "CHAIN-CRYPTO-003", "signer key does not match chain agent")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{chain: c, signer: signer, cfg: cfg}, nil
}

// Chain returns the underlying source chain, for read paths.
func (p *Pipeline) Chain() *Chain { return p.chain }

// Bootstrap writes the genesis header: a %agent_id entry carrying the
// agent's own key. It fails on a non-empty chain.
func (p *Pipeline) Bootstrap(ctx context.Context) (cid.Cid, error) {
	n, err := p.chain.Len()
	if err != nil {
		return cid.Undef, err
	}
	if n > 0 {
		return cid.Undef, chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-007", "chain already initialized")
	}
	entry := chain.Entry{Type: chain.TypeAgentID, Content: []byte(p.chain.Agent())}
	return p.Commit(ctx, entry, CommitOptions{})
}

// Commit appends entry to the chain and returns the new header's hash. On
// success the returned hash is always defined; there is no empty success.
//
// The entry is hashed, a header is assembled from the current tip, signed,
// optionally countersigned and validated, and appended atomically against
// the observed tip. A tip that moves mid-commit surfaces as a retryable
// concurrent-modification error and leaves the chain untouched.
func (p *Pipeline) Commit(ctx context.Context, entry chain.Entry, opts CommitOptions) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, chain.WrapError(chain.KindInternal, "CHAIN-PIPE-002", "commit aborted", err)
	}
	entryHash, err := entry.Hash()
	if err != nil {
		return cid.Undef, err
	}
	headerType, err := headerTypeFor(entry, opts.HeaderType)
	if err != nil {
		return cid.Undef, err
	}

	if !p.mu.TryLock() {
		return cid.Undef, chain.NewError(chain.KindConcurrentModification, "CHAIN-INT-006", "another commit is in flight")
	}
	defer p.mu.Unlock()

	tip, hasTip, err := p.chain.Tip()
	if err != nil {
		return cid.Undef, err
	}
	if !hasTip && entry.Type != chain.TypeAgentID {
		return cid.Undef, chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-008", "chain not initialized, bootstrap first")
	}
	length, err := p.chain.Len()
	if err != nil {
		return cid.Undef, err
	}

	header := chain.Header{
		Type:      headerType,
		Entry:     entryHash.String(),
		Timestamp: chain.FormatTimestamp(p.cfg.Now()),
		Agent:     p.chain.Agent(),
	}
	if hasTip {
		header.Prev = tip.String()
	}

	scope, err := header.SigningScope()
	if err != nil {
		return cid.Undef, err
	}
	sig, err := p.signer.Sign(scope)
	if err != nil {
		return cid.Undef, chain.WrapError(chain.KindCrypto, "CHAIN-CRYPTO-002", "header signing failed", err)
	}
	header.Provenances, err = mergeProvenances(
		chain.Provenance{AgentKey: p.chain.Agent(), Signature: sig},
		opts.AdditionalProvenances,
	)
	if err != nil {
		return cid.Undef, err
	}

	if p.cfg.Validator != nil {
		cc := ChainContext{Agent: p.chain.Agent(), Tip: tip, Length: length}
		if err := p.cfg.Validator.Validate(ctx, entry, header, cc); err != nil {
			if chain.IsKind(err, chain.KindValidation) {
				return cid.Undef, err
			}
			return cid.Undef, chain.WrapError(chain.KindValidation, "CHAIN-VAL-001", "entry rejected by validator", err)
		}
	}

	entryBytes, err := entry.Canonical()
	if err != nil {
		return cid.Undef, err
	}
	if _, err := p.chain.cas.Put(entryBytes); err != nil {
		return cid.Undef, chain.WrapError(chain.KindInternal, "CHAIN-STORE-009", "entry block store failed", err)
	}

	headerHash, err := p.chain.Append(header)
	if err != nil {
		return cid.Undef, err
	}

	if p.cfg.Ledger != nil {
		if err := p.cfg.Ledger.Record(headerHash, header); err != nil {
			return cid.Undef, err
		}
	}
	p.broadcast(ctx, dht.Broadcast{
		Agent:      p.chain.Agent(),
		HeaderHash: headerHash,
		Header:     header,
		Entry:      entry,
	})
	return headerHash, nil
}

// broadcast hands the committed mutation to the propagation layer without
// blocking the commit path. Failures go to the error callback.
func (p *Pipeline) broadcast(ctx context.Context, b dht.Broadcast) {
	if p.cfg.Broadcaster == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := p.cfg.Broadcaster.Broadcast(ctx, b); err != nil && p.cfg.BroadcastErrors != nil {
			p.cfg.BroadcastErrors(b, err)
		}
	}()
}

// headerTypeFor resolves the header type for an entry, enforcing coherence
// between system entry types and header types.
func headerTypeFor(e chain.Entry, requested chain.HeaderType) (chain.HeaderType, error) {
	var want chain.HeaderType
	switch e.Type {
	case chain.TypeLinkAdd:
		want = chain.HeaderLinkAdd
	case chain.TypeLinkRemove, chain.TypeRemoveEntry:
		want = chain.HeaderLinkRemove
	default:
		want = chain.HeaderCommit
	}
	if requested == "" || requested == want {
		return want, nil
	}
	return "", chain.NewError(chain.KindValidation, "CHAIN-VAL-002", "header type does not match entry type")
}

// mergeProvenances combines the committing agent's provenance with any
// countersignatures, deduplicated by agent key. The primary provenance is
// never displaced by an additional one carrying the same key.
func mergeProvenances(primary chain.Provenance, additional []chain.Provenance) ([]chain.Provenance, error) {
	byKey := make(map[string]chain.Provenance, len(additional)+1)
	for _, p := range additional {
		if err := keys.CheckAgentKey(p.AgentKey); err != nil {
			return nil, chain.WrapError(chain.KindValidation, "CHAIN-VAL-003", "invalid countersigning agent key", err)
		}
		if len(p.Signature) == 0 {
			return nil, chain.NewError(chain.KindValidation, "CHAIN-VAL-004", "countersignature is empty")
		}
		byKey[p.AgentKey] = p
	}
	byKey[primary.AgentKey] = primary
	out := make([]chain.Provenance, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, p)
	}
	chain.SortProvenances(out)
	return out, nil
}
