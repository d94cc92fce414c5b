// Package sourcechain implements the append-only per-agent header chain:
// the local authoritative record of everything an agent has committed. A
// Chain binds an agent key to a content-addressed block store and a chain
// index; the Pipeline on top of it assembles, signs, and commits headers.
package sourcechain

import (
	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/storage"
)

// Chain is one agent's source chain over a CAS and a ChainStore.
type Chain struct {
	agent string
	cas   storage.CAS
	store storage.ChainStore
}

// New binds agent's chain to its backing stores.
func New(agent string, cas storage.CAS, store storage.ChainStore) (*Chain, error) {
	if err := keys.CheckAgentKey(agent); err != nil {
		return nil, chain.WrapError(chain.KindCrypto, "CHAIN-CRYPTO-001", "invalid agent key", err)
	}
	if cas == nil || store == nil {
		return nil, chain.NewError(chain.KindInternal, "CHAIN-STORE-001", "chain requires a CAS and a chain store")
	}
	return &Chain{agent: agent, cas: cas, store: store}, nil
}

// Agent returns the owning agent's key string.
func (c *Chain) Agent() string { return c.agent }

// Tip returns the current head header hash. ok is false for an empty chain.
func (c *Chain) Tip() (cid.Cid, bool, error) {
	tip, ok, err := c.store.Tip(c.agent)
	if err != nil {
		return cid.Undef, false, chain.WrapError(chain.KindInternal, "CHAIN-STORE-002", "tip lookup failed", err)
	}
	return tip, ok, nil
}

// Len returns the number of headers on the chain.
func (c *Chain) Len() (int, error) {
	n, err := c.store.Len(c.agent)
	if err != nil {
		return 0, chain.WrapError(chain.KindInternal, "CHAIN-STORE-003", "chain length lookup failed", err)
	}
	return n, nil
}

// Append stores h in the CAS and appends its hash to the chain index.
//
// The header's previous-hash must equal the current tip: a mismatch against
// the tip observed at call time is a chain integrity violation, while a tip
// that moves between that observation and the index append is a concurrent
// modification and retryable. Returns the appended header's hash.
func (c *Chain) Append(h chain.Header) (cid.Cid, error) {
	if h.Agent != c.agent {
		return cid.Undef, chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-001", "header agent does not own this chain")
	}
	headerBytes, err := h.Canonical()
	if err != nil {
		return cid.Undef, err
	}
	headerHash, err := h.Hash()
	if err != nil {
		return cid.Undef, err
	}
	prev, hasPrev, err := h.PrevCID()
	if err != nil {
		return cid.Undef, err
	}

	tip, hasTip, err := c.Tip()
	if err != nil {
		return cid.Undef, err
	}
	switch {
	case hasTip && !hasPrev:
		return cid.Undef, chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-002", "genesis header on a non-empty chain")
	case !hasTip && hasPrev:
		return cid.Undef, chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-003", "previous hash set on an empty chain")
	case hasTip && prev != tip:
		return cid.Undef, chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-004", "header previous hash does not match chain tip")
	}

	if _, err := c.cas.Put(headerBytes); err != nil {
		return cid.Undef, chain.WrapError(chain.KindInternal, "CHAIN-STORE-004", "header block store failed", err)
	}
	expected := cid.Undef
	if hasTip {
		expected = tip
	}
	if _, err := c.store.AppendHeader(c.agent, expected, headerHash); err != nil {
		if storage.IsTipMoved(err) {
			return cid.Undef, chain.WrapError(chain.KindConcurrentModification, "CHAIN-INT-005", "chain tip moved during append", err)
		}
		return cid.Undef, chain.WrapError(chain.KindInternal, "CHAIN-STORE-005", "chain index append failed", err)
	}
	return headerHash, nil
}

// GetHeader loads and decodes a header by hash.
func (c *Chain) GetHeader(id cid.Cid) (chain.Header, error) {
	data, err := c.cas.Get(id)
	if err != nil {
		if err == storage.ErrNotFound {
			return chain.Header{}, chain.NewError(chain.KindUnknownReference, "CHAIN-REF-001", "header not found: "+id.String())
		}
		return chain.Header{}, chain.WrapError(chain.KindInternal, "CHAIN-STORE-006", "header load failed", err)
	}
	return chain.DecodeHeader(data)
}

// GetEntry loads and decodes an entry by hash. This is the explicit
// historical lookup: it returns tombstoned entries too.
func (c *Chain) GetEntry(id cid.Cid) (chain.Entry, error) {
	data, err := c.cas.Get(id)
	if err != nil {
		if err == storage.ErrNotFound {
			return chain.Entry{}, chain.NewError(chain.KindUnknownReference, "CHAIN-REF-002", "entry not found: "+id.String())
		}
		return chain.Entry{}, chain.WrapError(chain.KindInternal, "CHAIN-STORE-007", "entry load failed", err)
	}
	return chain.DecodeEntry(data)
}

// Walk returns a newest-first iterator over a snapshot of the chain taken
// at call time. Appends after Walk returns do not surface in the iterator.
func (c *Chain) Walk() (*Walker, error) {
	hashes, err := c.store.Headers(c.agent)
	if err != nil {
		return nil, chain.WrapError(chain.KindInternal, "CHAIN-STORE-008", "chain snapshot failed", err)
	}
	return &Walker{chain: c, hashes: hashes, next: len(hashes) - 1}, nil
}

// Walker yields headers newest-first. It is restartable via Reset.
type Walker struct {
	chain  *Chain
	hashes []cid.Cid
	next   int
}

// Next returns the next header and its hash, or ok=false when exhausted.
func (w *Walker) Next() (chain.Header, cid.Cid, bool, error) {
	if w.next < 0 {
		return chain.Header{}, cid.Undef, false, nil
	}
	id := w.hashes[w.next]
	w.next--
	h, err := w.chain.GetHeader(id)
	if err != nil {
		return chain.Header{}, cid.Undef, false, err
	}
	return h, id, true, nil
}

// Reset rewinds the walker to the newest header of its snapshot.
func (w *Walker) Reset() { w.next = len(w.hashes) - 1 }
