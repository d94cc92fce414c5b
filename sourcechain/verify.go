package sourcechain

import (
	"fmt"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/keys"
)

// Verify replays the whole chain oldest-first and checks every integrity
// property: header hashes match their canonical bytes, each header links to
// its predecessor, the genesis header is an %agent_id record with no
// predecessor, every referenced entry resolves and hashes correctly, and
// every provenance signature verifies over the header's signing scope.
//
// Verify reads only; a chain that passes is safe to serve from.
func (c *Chain) Verify() error {
	hashes, err := c.store.Headers(c.agent)
	if err != nil {
		return chain.WrapError(chain.KindInternal, "CHAIN-STORE-008", "chain snapshot failed", err)
	}

	for i, id := range hashes {
		data, err := c.cas.Get(id)
		if err != nil {
			return chain.WrapError(chain.KindUnknownReference, "CHAIN-REF-003",
				fmt.Sprintf("header %d missing from store", i+1), err)
		}
		h, err := chain.DecodeHeader(data)
		if err != nil {
			return err
		}
		got, err := h.Hash()
		if err != nil {
			return err
		}
		if got != id {
			return chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-010",
				fmt.Sprintf("header %d hash mismatch: indexed %s, canonical %s", i+1, id, got))
		}
		if h.Agent != c.agent {
			return chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-001",
				fmt.Sprintf("header %d committed by foreign agent", i+1))
		}

		prev, hasPrev, err := h.PrevCID()
		if err != nil {
			return err
		}
		switch {
		case i == 0 && hasPrev:
			return chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-011", "genesis header has a previous hash")
		case i > 0 && !hasPrev:
			return chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-012",
				fmt.Sprintf("header %d has no previous hash", i+1))
		case i > 0 && prev != hashes[i-1]:
			return chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-014",
				fmt.Sprintf("header %d does not link to its predecessor", i+1))
		}

		entryID, err := h.EntryCID()
		if err != nil {
			return err
		}
		entry, err := c.GetEntry(entryID)
		if err != nil {
			return err
		}
		if i == 0 && entry.Type != chain.TypeAgentID {
			return chain.NewError(chain.KindChainIntegrity, "CHAIN-INT-013", "genesis entry is not an agent record")
		}

		scope, err := h.SigningScope()
		if err != nil {
			return err
		}
		for _, p := range h.Provenances {
			if err := keys.Verify(p.AgentKey, scope, p.Signature); err != nil {
				return chain.WrapError(chain.KindCrypto, "CHAIN-CRYPTO-004",
					fmt.Sprintf("header %d provenance by %s invalid", i+1, p.AgentKey), err)
			}
		}
	}
	return nil
}
