package testkit

import (
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/hashutil"
	"github.com/animanga/agentchain/storage"
)

// NewChainStore constructs a fresh, empty ChainStore instance for a test.
// The returned store MUST be isolated from other tests.
type NewChainStore func(t *testing.T) storage.ChainStore

func testCID(t *testing.T, seed string) cid.Cid {
	t.Helper()
	id, err := hashutil.Sum([]byte(seed))
	if err != nil {
		t.Fatalf("hashutil.Sum failed: %v", err)
	}
	return id
}

func RunChainStoreConformance(t *testing.T, newStore NewChainStore) {
	t.Helper()

	const agent = "ed25519:dGVzdC1hZ2VudA=="

	t.Run("EmptyChain", func(t *testing.T) {
		cs := newStore(t)
		if _, ok, err := cs.Tip(agent); err != nil || ok {
			t.Fatalf("Tip on empty chain: ok=%v err=%v", ok, err)
		}
		n, err := cs.Len(agent)
		if err != nil || n != 0 {
			t.Fatalf("Len on empty chain: n=%d err=%v", n, err)
		}
		hs, err := cs.Headers(agent)
		if err != nil || len(hs) != 0 {
			t.Fatalf("Headers on empty chain: len=%d err=%v", len(hs), err)
		}
	})

	t.Run("AppendAdvancesTip", func(t *testing.T) {
		cs := newStore(t)
		h1 := testCID(t, "h1")
		h2 := testCID(t, "h2")

		pos, err := cs.AppendHeader(agent, cid.Undef, h1)
		if err != nil || pos != 1 {
			t.Fatalf("AppendHeader(1): pos=%d err=%v", pos, err)
		}
		tip, ok, err := cs.Tip(agent)
		if err != nil || !ok || tip != h1 {
			t.Fatalf("Tip after first append: %v ok=%v err=%v", tip, ok, err)
		}

		pos, err = cs.AppendHeader(agent, h1, h2)
		if err != nil || pos != 2 {
			t.Fatalf("AppendHeader(2): pos=%d err=%v", pos, err)
		}
		hs, err := cs.Headers(agent)
		if err != nil {
			t.Fatalf("Headers: %v", err)
		}
		if len(hs) != 2 || hs[0] != h1 || hs[1] != h2 {
			t.Fatalf("Headers order mismatch: %v", hs)
		}
	})

	t.Run("RejectStaleTip", func(t *testing.T) {
		cs := newStore(t)
		h1 := testCID(t, "h1")
		h2 := testCID(t, "h2")

		if _, err := cs.AppendHeader(agent, cid.Undef, h1); err != nil {
			t.Fatalf("AppendHeader: %v", err)
		}
		// Stale expected tip: chain already has h1.
		if _, err := cs.AppendHeader(agent, cid.Undef, h2); !storage.IsTipMoved(err) {
			t.Fatalf("expected ErrTipMoved, got %v", err)
		}
		// Non-existent expected tip on an empty chain.
		if _, err := cs.AppendHeader("ed25519:b3RoZXI=", h1, h2); !storage.IsTipMoved(err) {
			t.Fatalf("expected ErrTipMoved for wrong tip on empty chain, got %v", err)
		}
		n, err := cs.Len(agent)
		if err != nil || n != 1 {
			t.Fatalf("failed append must not grow the chain: n=%d err=%v", n, err)
		}
	})

	t.Run("ChainsAreIndependent", func(t *testing.T) {
		cs := newStore(t)
		h1 := testCID(t, "h1")
		other := "ed25519:c2Vjb25kLWFnZW50"

		if _, err := cs.AppendHeader(agent, cid.Undef, h1); err != nil {
			t.Fatalf("AppendHeader: %v", err)
		}
		if _, ok, err := cs.Tip(other); err != nil || ok {
			t.Fatalf("other agent's chain should be empty: ok=%v err=%v", ok, err)
		}
	})
}
