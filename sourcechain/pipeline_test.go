package sourcechain

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/dht"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/provenance"
	"github.com/animanga/agentchain/storage"
	"github.com/animanga/agentchain/storage/memstore"
)

func nowForTest() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func testSigner(t *testing.T, seed byte) *keys.Ed25519Signer {
	t.Helper()
	s := bytes.Repeat([]byte{seed}, 32)
	signer, err := keys.NewEd25519Signer(s)
	if err != nil {
		t.Fatalf("NewEd25519Signer failed: %v", err)
	}
	return signer
}

func testPipeline(t *testing.T, cfg Config) (*Pipeline, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	signer := testSigner(t, 1)
	c, err := New(signer.AgentKey(), store, store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	p, err := NewPipeline(c, signer, cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p, store
}

func TestBootstrap_WritesGenesis(t *testing.T) {
	p, _ := testPipeline(t, Config{})
	ctx := context.Background()

	genesis, err := p.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if !genesis.Defined() {
		t.Fatal("Bootstrap returned an undefined header hash")
	}

	h, err := p.Chain().GetHeader(genesis)
	if err != nil {
		t.Fatalf("GetHeader failed: %v", err)
	}
	if h.Type != chain.HeaderCommit || h.Prev != "" {
		t.Fatalf("unexpected genesis header: type=%q prev=%q", h.Type, h.Prev)
	}
	entryID, err := h.EntryCID()
	if err != nil {
		t.Fatal(err)
	}
	e, err := p.Chain().GetEntry(entryID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if e.Type != chain.TypeAgentID || string(e.Content) != p.Chain().Agent() {
		t.Fatalf("genesis entry does not carry the agent key: type=%q", e.Type)
	}

	if _, err := p.Bootstrap(ctx); !chain.IsKind(err, chain.KindChainIntegrity) {
		t.Fatalf("second Bootstrap: got %v, want chain integrity error", err)
	}
}

func TestCommit_RequiresBootstrap(t *testing.T) {
	p, _ := testPipeline(t, Config{})
	_, err := p.Commit(context.Background(), chain.Entry{Type: "note", Content: []byte("x")}, CommitOptions{})
	if !chain.IsKind(err, chain.KindChainIntegrity) {
		t.Fatalf("Commit on uninitialized chain: got %v, want chain integrity error", err)
	}
}

func TestCommit_SequentialChainLinks(t *testing.T) {
	p, _ := testPipeline(t, Config{})
	ctx := context.Background()

	genesis, err := p.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	want := []cid.Cid{genesis}
	for i := 0; i < 5; i++ {
		id, err := p.Commit(ctx, chain.Entry{Type: "note", Content: []byte{byte(i)}}, CommitOptions{})
		if err != nil {
			t.Fatalf("Commit %d failed: %v", i, err)
		}
		if !id.Defined() {
			t.Fatalf("Commit %d returned an undefined header hash", i)
		}
		want = append(want, id)
	}

	// Newest-first walk must yield every header, each linking to its
	// predecessor.
	w, err := p.Chain().Walk()
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	for i := len(want) - 1; i >= 0; i-- {
		h, id, ok, err := w.Next()
		if err != nil || !ok {
			t.Fatalf("Next at %d: ok=%v err=%v", i, ok, err)
		}
		if id != want[i] {
			t.Fatalf("walk order mismatch at %d: got %s want %s", i, id, want[i])
		}
		if i > 0 && h.Prev != want[i-1].String() {
			t.Fatalf("header %d does not link to predecessor", i)
		}
	}
	if _, _, ok, _ := w.Next(); ok {
		t.Fatal("walker yielded past the genesis header")
	}

	// A restarted walker replays the same snapshot.
	w.Reset()
	if _, id, ok, err := w.Next(); err != nil || !ok || id != want[len(want)-1] {
		t.Fatalf("Reset walker: id=%v ok=%v err=%v", id, ok, err)
	}

	if err := p.Chain().Verify(); err != nil {
		t.Fatalf("Verify failed on a well-formed chain: %v", err)
	}
}

func TestCommit_AdditionalProvenances(t *testing.T) {
	ledger := provenance.NewLedger()
	p, _ := testPipeline(t, Config{Ledger: ledger})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	witness := testSigner(t, 2)
	counter := chain.Provenance{AgentKey: witness.AgentKey(), Signature: []byte("countersignature")}
	// An additional provenance under the committing agent's own key must
	// never displace the primary signature.
	impostor := chain.Provenance{AgentKey: p.Chain().Agent(), Signature: []byte("forged")}

	id, err := p.Commit(ctx, chain.Entry{Type: "note", Content: []byte("co-signed")}, CommitOptions{
		AdditionalProvenances: []chain.Provenance{counter, impostor},
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
	own, ok := h.ProvenanceFor(p.Chain().Agent())
	if !ok || bytes.Equal(own.Signature, []byte("forged")) {
		t.Fatal("primary provenance was displaced")
	}
	if _, ok := h.ProvenanceFor(witness.AgentKey()); !ok {
		t.Fatal("countersignature missing from header")
	}

	got := ledger.ProvenancesFor(id)
	if len(got) != 2 {
		t.Fatalf("ledger provenances: got %d want 2", len(got))
	}
}

func TestCommit_RejectsMalformedCountersignature(t *testing.T) {
	p, _ := testPipeline(t, Config{})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	bad := []chain.Provenance{{AgentKey: "not-a-key", Signature: []byte("sig")}}
	_, err := p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{AdditionalProvenances: bad})
	if !chain.IsKind(err, chain.KindValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestCommit_ValidatorRejectionLeavesChainUntouched(t *testing.T) {
	reject := ValidatorFunc(func(ctx context.Context, e chain.Entry, h chain.Header, cc ChainContext) error {
		if e.Type == "forbidden" {
			return chain.NewError(chain.KindValidation, "APP-001", "forbidden entry type")
		}
		return nil
	})
	p, _ := testPipeline(t, Config{Validator: reject})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := p.Chain().Len()

	_, err := p.Commit(ctx, chain.Entry{Type: "forbidden"}, CommitOptions{})
	if !chain.IsKind(err, chain.KindValidation) || chain.RuleID(err) != "APP-001" {
		t.Fatalf("got %v, want APP-001 validation error", err)
	}
	after, _ := p.Chain().Len()
	if after != before {
		t.Fatalf("rejected commit grew the chain: %d -> %d", before, after)
	}
}

func TestCommit_SecondInFlightCommitIsRetryable(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gate := ValidatorFunc(func(ctx context.Context, e chain.Entry, h chain.Header, cc ChainContext) error {
		if e.Type == "slow" {
			close(entered)
			<-release
		}
		return nil
	})
	p, _ := testPipeline(t, Config{Validator: gate})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Commit(ctx, chain.Entry{Type: "slow"}, CommitOptions{})
		done <- err
	}()
	<-entered

	_, err := p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{})
	if !chain.IsKind(err, chain.KindConcurrentModification) {
		t.Fatalf("overlapping commit: got %v, want concurrent modification", err)
	}
	if !chain.IsRetryable(err) {
		t.Fatal("concurrent modification must be retryable")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	// The retry now succeeds.
	if _, err := p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

// tipThief wraps a ChainStore and steals the tip once, simulating another
// process appending between the pipeline's tip read and its append.
type tipThief struct {
	storage.ChainStore
	stolen bool
}

func (s *tipThief) AppendHeader(agent string, expectedTip, header cid.Cid) (int, error) {
	if !s.stolen && expectedTip.Defined() {
		s.stolen = true
		return 0, storage.ErrTipMoved
	}
	return s.ChainStore.AppendHeader(agent, expectedTip, header)
}

func TestCommit_TipMovedSurfacesAsRetryable(t *testing.T) {
	store := memstore.New()
	signer := testSigner(t, 1)
	thief := &tipThief{ChainStore: store}
	c, err := New(signer.AgentKey(), store, thief)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(c, signer, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{})
	if !chain.IsKind(err, chain.KindConcurrentModification) || !chain.IsRetryable(err) {
		t.Fatalf("got %v, want retryable concurrent modification", err)
	}
	if id, err := p.Commit(ctx, chain.Entry{Type: "note"}, CommitOptions{}); err != nil || !id.Defined() {
		t.Fatalf("retry failed: id=%v err=%v", id, err)
	}
}

func TestCommit_BroadcastsAfterAppend(t *testing.T) {
	loop := dht.NewLoopback()
	p, _ := testPipeline(t, Config{Broadcaster: loop})
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	id, err := p.Commit(ctx, chain.Entry{Type: "note", Content: []byte("gossip me")}, CommitOptions{})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		bs := loop.Broadcasts()
		if len(bs) >= 2 {
			last := bs[len(bs)-1]
			if last.HeaderHash != id || last.Entry.Type != "note" {
				t.Fatalf("unexpected broadcast: %+v", last)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("broadcasts not delivered, got %d", len(bs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCommit_DilithiumSignerRoundTrip(t *testing.T) {
	store := memstore.New()
	signer, err := keys.NewDilithium3Signer(rand.Reader)
	if err != nil {
		t.Fatalf("NewDilithium3Signer failed: %v", err)
	}
	c, err := New(signer.AgentKey(), store, store)
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPipeline(c, signer, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := p.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Commit(ctx, chain.Entry{Type: "note", Content: []byte("pq")}, CommitOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestNewPipeline_RejectsForeignSigner(t *testing.T) {
	store := memstore.New()
	owner := testSigner(t, 1)
	other := testSigner(t, 2)
	c, err := New(owner.AgentKey(), store, store)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPipeline(c, other, Config{}); !chain.IsKind(err, chain.KindCrypto) {
		t.Fatalf("got %v, want crypto error", err)
	}
}
