package linkgraph

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/hashutil"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/sourcechain"
	"github.com/animanga/agentchain/storage/memstore"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	store := memstore.New()
	signer, err := keys.NewEd25519Signer(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatal(err)
	}
	c, err := sourcechain.New(signer.AgentKey(), store, store)
	if err != nil {
		t.Fatal(err)
	}
	p, err := sourcechain.NewPipeline(c, signer, sourcechain.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(p)
}

func commitNote(t *testing.T, g *Engine, content string) (headerHash, entryHash cid.Cid) {
	t.Helper()
	e := chain.Entry{Type: "note", Content: []byte(content)}
	id, err := g.pipeline.Commit(context.Background(), e, sourcechain.CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	eh, err := e.Hash()
	if err != nil {
		t.Fatal(err)
	}
	return id, eh
}

func TestLinks_AddRemoveLifecycle(t *testing.T) {
	g := testEngine(t)
	ctx := context.Background()
	_, baseEntry := commitNote(t, g, "base")
	_, targetEntry := commitNote(t, g, "target")

	linkHeader, err := g.AddLink(ctx, baseEntry, targetEntry, "references", sourcechain.CommitOptions{})
	if err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if !linkHeader.Defined() {
		t.Fatal("AddLink returned an undefined header hash")
	}

	live, err := g.LiveLinks(baseEntry, "references")
	if err != nil {
		t.Fatalf("LiveLinks failed: %v", err)
	}
	if len(live) != 1 || live[0].Target != targetEntry || live[0].Header != linkHeader {
		t.Fatalf("unexpected live links: %+v", live)
	}

	before, _ := g.chain.Len()
	tomb, err := g.RemoveLink(ctx, linkHeader, sourcechain.CommitOptions{})
	if err != nil {
		t.Fatalf("RemoveLink failed: %v", err)
	}
	if !tomb.Defined() {
		t.Fatal("RemoveLink returned an undefined header hash")
	}

	live, err = g.LiveLinks(baseEntry, "references")
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Fatalf("link still live after removal: %+v", live)
	}
	// Removal appends, never deletes.
	after, _ := g.chain.Len()
	if after != before+1 {
		t.Fatalf("chain length: got %d want %d", after, before+1)
	}
	if _, err := g.chain.GetHeader(linkHeader); err != nil {
		t.Fatalf("tombstoned link-add header must stay readable: %v", err)
	}
	if ok, err := g.IsTombstoned(linkHeader); err != nil || !ok {
		t.Fatalf("IsTombstoned: ok=%v err=%v", ok, err)
	}
}

func TestLiveLinks_TagFilter(t *testing.T) {
	g := testEngine(t)
	ctx := context.Background()
	_, base := commitNote(t, g, "base")
	_, t1 := commitNote(t, g, "target-1")
	_, t2 := commitNote(t, g, "target-2")

	if _, err := g.AddLink(ctx, base, t1, "cites", sourcechain.CommitOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddLink(ctx, base, t2, "refutes", sourcechain.CommitOptions{}); err != nil {
		t.Fatal(err)
	}

	cites, err := g.LiveLinks(base, "cites")
	if err != nil {
		t.Fatal(err)
	}
	if len(cites) != 1 || cites[0].Target != t1 {
		t.Fatalf("tag filter failed: %+v", cites)
	}

	all, err := g.LiveLinks(base, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Target != t1 || all[1].Target != t2 {
		t.Fatalf("unfiltered links wrong or out of chain order: %+v", all)
	}
}

func TestRemoveLink_UnknownReference(t *testing.T) {
	g := testEngine(t)
	ctx := context.Background()
	commitHeader, _ := commitNote(t, g, "plain")

	unknown, err := hashutil.Sum([]byte("never committed"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.RemoveLink(ctx, unknown, sourcechain.CommitOptions{}); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("unknown target: got %v", err)
	}
	// A commit header is a known block but not a link-add header.
	if _, err := g.RemoveLink(ctx, commitHeader, sourcechain.CommitOptions{}); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("non-link target: got %v", err)
	}
}

func TestRemoveEntry_FiltersDefaultReads(t *testing.T) {
	g := testEngine(t)
	ctx := context.Background()
	headerHash, entryHash := commitNote(t, g, "doomed")

	if e, err := g.LookupEntry(entryHash); err != nil || string(e.Content) != "doomed" {
		t.Fatalf("LookupEntry before removal: %v", err)
	}

	// Removing by entry hash resolves to the committing header.
	tomb, err := g.RemoveEntry(ctx, entryHash, sourcechain.CommitOptions{})
	if err != nil {
		t.Fatalf("RemoveEntry failed: %v", err)
	}
	if !tomb.Defined() {
		t.Fatal("RemoveEntry returned an undefined header hash")
	}

	if _, err := g.LookupEntry(entryHash); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("LookupEntry after removal: got %v", err)
	}
	if ok, _ := g.IsTombstoned(headerHash); !ok {
		t.Fatal("committing header not tombstoned")
	}
	// Historical lookup still works.
	if e, err := g.chain.GetEntry(entryHash); err != nil || string(e.Content) != "doomed" {
		t.Fatalf("historical GetEntry: %v", err)
	}
}

func TestRemoveEntry_UnknownReference(t *testing.T) {
	g := testEngine(t)
	unknown, err := hashutil.Sum([]byte("nope"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.RemoveEntry(context.Background(), unknown, sourcechain.CommitOptions{}); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("got %v, want unknown reference", err)
	}
}
