// Package linkgraph derives the live link view from a source chain. Links
// are committed as %link_add entries and removed by %link_remove tombstone
// entries; nothing is ever deleted from the chain. The live view is a pure
// function of chain history: replaying the same chain always yields the
// same set of live links.
package linkgraph

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/sourcechain"
)

// Engine commits link mutations through a pipeline and answers link and
// entry queries against the resulting chain.
type Engine struct {
	pipeline *sourcechain.Pipeline
	chain    *sourcechain.Chain
}

func New(p *sourcechain.Pipeline) *Engine {
	return &Engine{pipeline: p, chain: p.Chain()}
}

// Link is one live edge in the graph.
type Link struct {
	Base   cid.Cid
	Target cid.Cid
	Tag    string
	// Header is the LinkAdd header hash: the handle RemoveLink takes.
	Header cid.Cid
}

// AddLink commits an edge from base to target qualified by tag and returns
// the LinkAdd header hash. Base and target may reference entries this node
// has never seen; links are claims, not local foreign-key constraints.
func (g *Engine) AddLink(ctx context.Context, base, target cid.Cid, tag string, opts sourcechain.CommitOptions) (cid.Cid, error) {
	entry, err := chain.NewLinkEntry(base, target, tag)
	if err != nil {
		return cid.Undef, err
	}
	opts.HeaderType = chain.HeaderLinkAdd
	return g.pipeline.Commit(ctx, entry, opts)
}

// RemoveLink tombstones the LinkAdd header linkAdd and returns the
// LinkRemove header hash. The target must resolve to a LinkAdd header on
// this chain; anything else is an unknown reference.
func (g *Engine) RemoveLink(ctx context.Context, linkAdd cid.Cid, opts sourcechain.CommitOptions) (cid.Cid, error) {
	h, err := g.chain.GetHeader(linkAdd)
	if err != nil {
		return cid.Undef, err
	}
	if h.Type != chain.HeaderLinkAdd {
		return cid.Undef, chain.NewError(chain.KindUnknownReference, "CHAIN-REF-004",
			"remove-link target is not a link-add header: "+linkAdd.String())
	}
	entry, err := chain.NewTombstoneEntry(chain.TypeLinkRemove, linkAdd)
	if err != nil {
		return cid.Undef, err
	}
	opts.HeaderType = chain.HeaderLinkRemove
	return g.pipeline.Commit(ctx, entry, opts)
}

// RemoveEntry tombstones a committed entry and returns the tombstone header
// hash. ref may be the hash of the header that committed the entry, or the
// entry hash itself; an entry hash resolves to its newest committing
// header. The entry stays on the chain and stays readable through explicit
// historical lookup, but default reads no longer return it.
func (g *Engine) RemoveEntry(ctx context.Context, ref cid.Cid, opts sourcechain.CommitOptions) (cid.Cid, error) {
	headerHash, err := g.resolveHeader(ref)
	if err != nil {
		return cid.Undef, err
	}
	entry, err := chain.NewTombstoneEntry(chain.TypeRemoveEntry, headerHash)
	if err != nil {
		return cid.Undef, err
	}
	opts.HeaderType = chain.HeaderLinkRemove
	return g.pipeline.Commit(ctx, entry, opts)
}

// resolveHeader maps ref to a header hash on this chain.
func (g *Engine) resolveHeader(ref cid.Cid) (cid.Cid, error) {
	// A ref that decodes as header bytes is already a header hash.
	if _, err := g.chain.GetHeader(ref); err == nil {
		return ref, nil
	}
	w, err := g.chain.Walk()
	if err != nil {
		return cid.Undef, err
	}
	want := ref.String()
	for {
		h, id, ok, err := w.Next()
		if err != nil {
			return cid.Undef, err
		}
		if !ok {
			return cid.Undef, chain.NewError(chain.KindUnknownReference, "CHAIN-REF-005",
				"no header commits "+ref.String())
		}
		if h.Entry == want {
			return id, nil
		}
	}
}

// LiveLinks returns the live edges from base, oldest-first by chain
// position. An empty tag matches every tag. Tombstoned links are filtered;
// the empty result is legitimate.
func (g *Engine) LiveLinks(base cid.Cid, tag string) ([]Link, error) {
	headers, tombstoned, err := g.scan()
	if err != nil {
		return nil, err
	}
	links := []Link{}
	for _, rec := range headers {
		if rec.header.Type != chain.HeaderLinkAdd || tombstoned[rec.hash] {
			continue
		}
		entryID, err := rec.header.EntryCID()
		if err != nil {
			return nil, err
		}
		e, err := g.chain.GetEntry(entryID)
		if err != nil {
			return nil, err
		}
		p, err := chain.DecodeLinkPayload(e)
		if err != nil {
			return nil, err
		}
		if p.Base != base.String() {
			continue
		}
		if tag != "" && p.Tag != tag {
			continue
		}
		target, err := cid.Decode(p.Target)
		if err != nil {
			return nil, chain.WrapError(chain.KindSerialization, "CHAIN-SER-043", "invalid link target hash", err)
		}
		links = append(links, Link{Base: base, Target: target, Tag: p.Tag, Header: rec.hash})
	}
	return links, nil
}

// IsTombstoned reports whether a tombstone targeting header exists.
func (g *Engine) IsTombstoned(header cid.Cid) (bool, error) {
	_, tombstoned, err := g.scan()
	if err != nil {
		return false, err
	}
	return tombstoned[header], nil
}

// LookupEntry is the default read path: it resolves ref (an entry hash or
// the hash of its committing header) and returns the entry unless it has
// been tombstoned. Tombstoned entries surface as unknown references here;
// Chain.GetEntry remains the explicit historical lookup.
func (g *Engine) LookupEntry(ref cid.Cid) (chain.Entry, error) {
	headerHash, err := g.resolveHeader(ref)
	if err != nil {
		return chain.Entry{}, err
	}
	_, tombstoned, err := g.scan()
	if err != nil {
		return chain.Entry{}, err
	}
	if tombstoned[headerHash] {
		return chain.Entry{}, chain.NewError(chain.KindUnknownReference, "CHAIN-REF-006",
			"entry removed: "+ref.String())
	}
	h, err := g.chain.GetHeader(headerHash)
	if err != nil {
		return chain.Entry{}, err
	}
	entryID, err := h.EntryCID()
	if err != nil {
		return chain.Entry{}, err
	}
	return g.chain.GetEntry(entryID)
}

type headerRecord struct {
	hash   cid.Cid
	header chain.Header
}

// scan walks the chain once and returns headers oldest-first plus the set
// of header hashes targeted by tombstones.
func (g *Engine) scan() ([]headerRecord, map[cid.Cid]bool, error) {
	w, err := g.chain.Walk()
	if err != nil {
		return nil, nil, err
	}
	var newestFirst []headerRecord
	tombstoned := make(map[cid.Cid]bool)
	for {
		h, id, ok, err := w.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		newestFirst = append(newestFirst, headerRecord{hash: id, header: h})
		if h.Type != chain.HeaderLinkRemove {
			continue
		}
		entryID, err := h.EntryCID()
		if err != nil {
			return nil, nil, err
		}
		e, err := g.chain.GetEntry(entryID)
		if err != nil {
			return nil, nil, err
		}
		p, err := chain.DecodeTombstonePayload(e)
		if err != nil {
			return nil, nil, err
		}
		target, err := cid.Decode(p.Target)
		if err != nil {
			return nil, nil, chain.WrapError(chain.KindSerialization, "CHAIN-SER-047", "invalid tombstone target hash", err)
		}
		tombstoned[target] = true
	}
	// Reverse to oldest-first.
	for i, j := 0, len(newestFirst)-1; i < j; i, j = i+1, j-1 {
		newestFirst[i], newestFirst[j] = newestFirst[j], newestFirst[i]
	}
	return newestFirst, tombstoned, nil
}
