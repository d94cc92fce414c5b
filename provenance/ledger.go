// Package provenance maintains the ledger of attestations per header hash.
package provenance

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/keys"
)

// Ledger maps a header hash to the set of provenances attesting to it.
//
// The ledger is append-only and keyed by header hash, so attestations from
// different callers for the same header merge without coordination: Attest
// is commutative and idempotent per (header, agent key) pair.
//
// The ledger is an index, not a source of truth. Every provenance recorded
// at commit time is also embedded in the header itself, so a ledger can be
// rebuilt from a chain walk (see Record).
type Ledger struct {
	mu       sync.RWMutex
	byHeader map[cid.Cid]map[string]chain.Provenance
}

func NewLedger() *Ledger {
	return &Ledger{byHeader: make(map[cid.Cid]map[string]chain.Provenance)}
}

// Attest appends a provenance record for header. A second attestation by
// the same agent key for the same header is a no-op.
func (l *Ledger) Attest(header cid.Cid, p chain.Provenance) error {
	if !header.Defined() {
		return chain.NewError(chain.KindUnknownReference, "CHAIN-REF-010", "attestation requires a header hash")
	}
	if err := keys.CheckAgentKey(p.AgentKey); err != nil {
		return chain.WrapError(chain.KindCrypto, "CHAIN-CRYPTO-010", "invalid attesting agent key", err)
	}
	if len(p.Signature) == 0 {
		return chain.NewError(chain.KindCrypto, "CHAIN-CRYPTO-011", "attestation signature is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.byHeader[header]
	if !ok {
		set = make(map[string]chain.Provenance, 1)
		l.byHeader[header] = set
	}
	if _, exists := set[p.AgentKey]; exists {
		return nil
	}
	set[p.AgentKey] = p
	return nil
}

// Record attests every provenance embedded in a header. Used at commit time
// and when rebuilding the ledger from a chain walk.
func (l *Ledger) Record(headerHash cid.Cid, h chain.Header) error {
	for _, p := range h.Provenances {
		if err := l.Attest(headerHash, p); err != nil {
			return err
		}
	}
	return nil
}

// ProvenancesFor returns the provenances recorded for header, sorted by
// agent key. An empty result is legitimate and means no attestations are
// known, unlike the mutation paths which never produce an empty success.
func (l *Ledger) ProvenancesFor(header cid.Cid) []chain.Provenance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set := l.byHeader[header]
	out := make([]chain.Provenance, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	chain.SortProvenances(out)
	return out
}
