package sourcechain

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/storage"
	"github.com/animanga/agentchain/storage/memstore"
)

// reorderingStore reverses the header index, simulating a corrupted chain
// index underneath an otherwise intact block store.
type reorderingStore struct {
	storage.ChainStore
}

func (s *reorderingStore) Headers(agent string) ([]cid.Cid, error) {
	hs, err := s.ChainStore.Headers(agent)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(hs)-1; i < j; i, j = i+1, j-1 {
		hs[i], hs[j] = hs[j], hs[i]
	}
	return hs, nil
}

func TestVerify_DetectsReorderedIndex(t *testing.T) {
	p, store := testPipeline(t, Config{})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p.Commit(ctx, chain.Entry{Type: "note", Content: []byte{byte(i)}}, CommitOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	tampered, err := New(p.Chain().Agent(), store, &reorderingStore{ChainStore: store})
	if err != nil {
		t.Fatal(err)
	}
	if err := tampered.Verify(); !chain.IsKind(err, chain.KindChainIntegrity) {
		t.Fatalf("got %v, want chain integrity error", err)
	}
}

func TestVerify_DetectsForgedSignature(t *testing.T) {
	store := memstore.New()
	signer := testSigner(t, 1)
	c, err := New(signer.AgentKey(), store, store)
	if err != nil {
		t.Fatal(err)
	}

	// Hand-build a genesis header whose provenance signature is garbage and
	// append it through the chain layer, which does not verify signatures.
	entry := chain.Entry{Type: chain.TypeAgentID, Content: []byte(signer.AgentKey())}
	entryBytes, err := entry.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	entryID, err := store.Put(entryBytes)
	if err != nil {
		t.Fatal(err)
	}
	h := chain.Header{
		Type:      chain.HeaderCommit,
		Entry:     entryID.String(),
		Timestamp: chain.FormatTimestamp(nowForTest()),
		Agent:     signer.AgentKey(),
		Provenances: []chain.Provenance{
			{AgentKey: signer.AgentKey(), Signature: []byte("not a real signature either way")},
		},
	}
	if _, err := c.Append(h); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := c.Verify(); !chain.IsKind(err, chain.KindCrypto) {
		t.Fatalf("got %v, want crypto error", err)
	}
}

func TestVerify_DetectsForeignGenesisEntry(t *testing.T) {
	store := memstore.New()
	signer := testSigner(t, 3)
	c, err := New(signer.AgentKey(), store, store)
	if err != nil {
		t.Fatal(err)
	}

	// A genesis header whose entry is not an %agent_id record.
	entry := chain.Entry{Type: "note", Content: []byte("no agent record")}
	entryBytes, err := entry.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	entryID, err := store.Put(entryBytes)
	if err != nil {
		t.Fatal(err)
	}
	h := chain.Header{
		Type:      chain.HeaderCommit,
		Entry:     entryID.String(),
		Timestamp: chain.FormatTimestamp(nowForTest()),
		Agent:     signer.AgentKey(),
	}
	scope, err := h.SigningScope()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := signer.Sign(scope)
	if err != nil {
		t.Fatal(err)
	}
	h.Provenances = []chain.Provenance{{AgentKey: signer.AgentKey(), Signature: sig}}
	if _, err := c.Append(h); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := c.Verify(); !chain.IsKind(err, chain.KindChainIntegrity) {
		t.Fatalf("got %v, want chain integrity error", err)
	}
}

func TestVerify_AcceptsCountersignedChain(t *testing.T) {
	p, _ := testPipeline(t, Config{Now: nowForTest})
	ctx := context.Background()
	genesis, err := p.Bootstrap(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// The witness signs the exact signing scope of the header the commit
	// will assemble: same entry, predecessor, timestamp, and agent.
	entry := chain.Entry{Type: "note", Content: []byte("witnessed")}
	entryHash, err := entry.Hash()
	if err != nil {
		t.Fatal(err)
	}
	witness := testSigner(t, 2)
	scope, err := chain.Header{
		Type:      chain.HeaderCommit,
		Entry:     entryHash.String(),
		Prev:      genesis.String(),
		Timestamp: chain.FormatTimestamp(nowForTest()),
		Agent:     p.Chain().Agent(),
	}.SigningScope()
	if err != nil {
		t.Fatal(err)
	}
	sig, err := witness.Sign(scope)
	if err != nil {
		t.Fatal(err)
	}

	id, err := p.Commit(ctx, entry, CommitOptions{
		AdditionalProvenances: []chain.Provenance{{AgentKey: witness.AgentKey(), Signature: sig}},
	})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	h, err := p.Chain().GetHeader(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Provenances) != 2 {
		t.Fatalf("provenance count: got %d want 2", len(h.Provenances))
	}

	// Replay verifies the witness signature alongside the primary one.
	if err := p.Chain().Verify(); err != nil {
		t.Fatalf("Verify failed on a countersigned chain: %v", err)
	}
}

func TestVerify_DetectsInvalidCountersignature(t *testing.T) {
	p, _ := testPipeline(t, Config{})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	// Commit only shape-checks countersignatures; replay verifies them.
	witness := testSigner(t, 2)
	bad := chain.Provenance{AgentKey: witness.AgentKey(), Signature: []byte("not a signature")}
	if _, err := p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{
		AdditionalProvenances: []chain.Provenance{bad},
	}); err != nil {
		t.Fatal(err)
	}

	err := p.Chain().Verify()
	if !chain.IsKind(err, chain.KindCrypto) || chain.RuleID(err) != "CHAIN-CRYPTO-004" {
		t.Fatalf("got %v, want CHAIN-CRYPTO-004 crypto error", err)
	}
}

// skippingStore drops the middle header from the index, so a later header
// no longer links to its reported predecessor.
type skippingStore struct {
	storage.ChainStore
}

func (s *skippingStore) Headers(agent string) ([]cid.Cid, error) {
	hs, err := s.ChainStore.Headers(agent)
	if err != nil {
		return nil, err
	}
	if len(hs) < 3 {
		return hs, nil
	}
	return append(hs[:1:1], hs[2:]...), nil
}

func TestVerify_DetectsSkippedPredecessor(t *testing.T) {
	p, store := testPipeline(t, Config{})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := p.Commit(ctx, chain.Entry{Type: "note", Content: []byte{byte(i)}}, CommitOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	tampered, err := New(p.Chain().Agent(), store, &skippingStore{ChainStore: store})
	if err != nil {
		t.Fatal(err)
	}
	err = tampered.Verify()
	if !chain.IsKind(err, chain.KindChainIntegrity) || chain.RuleID(err) != "CHAIN-INT-014" {
		t.Fatalf("got %v, want CHAIN-INT-014 chain integrity error", err)
	}
}

func TestAppend_RejectsBrokenLinkage(t *testing.T) {
	p, store := testPipeline(t, Config{})
	ctx := context.Background()
	genesis, err := p.Bootstrap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{}); err != nil {
		t.Fatal(err)
	}

	c, err := New(p.Chain().Agent(), store, store)
	if err != nil {
		t.Fatal(err)
	}
	entry := chain.Entry{Type: "note", Content: []byte("stale")}
	entryBytes, _ := entry.Canonical()
	entryID, _ := store.Put(entryBytes)
	h := chain.Header{
		Type:      chain.HeaderCommit,
		Entry:     entryID.String(),
		Prev:      genesis.String(), // stale: tip has advanced past genesis
		Timestamp: chain.FormatTimestamp(nowForTest()),
		Agent:     c.Agent(),
		Provenances: []chain.Provenance{
			{AgentKey: c.Agent(), Signature: []byte("shape only")},
		},
	}
	if _, err := c.Append(h); !chain.IsKind(err, chain.KindChainIntegrity) {
		t.Fatalf("got %v, want chain integrity error", err)
	}
}
