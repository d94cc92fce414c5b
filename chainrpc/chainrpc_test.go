package chainrpc

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/animanga/agentchain/chain"
	"github.com/animanga/agentchain/keys"
	"github.com/animanga/agentchain/linkgraph"
	"github.com/animanga/agentchain/provenance"
	"github.com/animanga/agentchain/sourcechain"
	"github.com/animanga/agentchain/storage/memstore"
)

func testServerAndClient(t *testing.T) *Client {
	t.Helper()
	store := memstore.New()
	signer, err := keys.NewEd25519Signer(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatal(err)
	}
	c, err := sourcechain.New(signer.AgentKey(), store, store)
	if err != nil {
		t.Fatal(err)
	}
	ledger := provenance.NewLedger()
	p, err := sourcechain.NewPipeline(c, signer, sourcechain.Config{Ledger: ledger})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterSourceChainServer(srv, &Server{
		Pipeline: p,
		Links:    linkgraph.New(p),
		Ledger:   ledger,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.DialContext(
		context.Background(),
		"bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	t.Cleanup(func() { cc.Close() })

	client := NewClient(cc)
	client.Timeout = 2 * time.Second
	return client
}

func TestRPC_CommitAndWalk(t *testing.T) {
	client := testServerAndClient(t)
	ctx := context.Background()

	id, err := client.Commit(ctx, "note", []byte("over the wire"), nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !id.Defined() {
		t.Fatal("expected defined header hash")
	}

	headers, err := client.Walk(ctx, 0)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	// Genesis plus the note, newest-first.
	if len(headers) != 2 || headers[0].Hash != id.String() {
		t.Fatalf("unexpected walk: %+v", headers)
	}
	if headers[1].Header.Type != chain.HeaderCommit || headers[1].Header.Prev != "" {
		t.Fatalf("genesis header malformed over the wire: %+v", headers[1].Header)
	}

	provs, err := client.Provenances(ctx, id)
	if err != nil {
		t.Fatalf("Provenances: %v", err)
	}
	if len(provs) != 1 {
		t.Fatalf("expected 1 provenance, got %d", len(provs))
	}

	if err := client.Verify(ctx, ""); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestRPC_LinkLifecycle(t *testing.T) {
	client := testServerAndClient(t)
	ctx := context.Background()

	if _, err := client.Commit(ctx, "note", []byte("base"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Commit(ctx, "note", []byte("target"), nil); err != nil {
		t.Fatal(err)
	}
	// Link the committed entries by their entry hashes.
	baseEntry, err := (chain.Entry{Type: "note", Content: []byte("base")}).Hash()
	if err != nil {
		t.Fatal(err)
	}
	targetEntry, err := (chain.Entry{Type: "note", Content: []byte("target")}).Hash()
	if err != nil {
		t.Fatal(err)
	}

	linkHeader, err := client.AddLink(ctx, baseEntry, targetEntry, "cites")
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	links, err := client.GetLinks(ctx, baseEntry, "cites")
	if err != nil {
		t.Fatalf("GetLinks: %v", err)
	}
	if len(links) != 1 || links[0].Target != targetEntry.String() {
		t.Fatalf("unexpected links: %+v", links)
	}

	if _, err := client.RemoveLink(ctx, linkHeader); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	links, err = client.GetLinks(ctx, baseEntry, "cites")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Fatalf("link still live: %+v", links)
	}
}

func TestRPC_ErrorsKeepTheirKind(t *testing.T) {
	client := testServerAndClient(t)
	ctx := context.Background()

	// Unknown reference crosses the wire as NotFound and maps back.
	bogus, err := (chain.Entry{Type: "note", Content: []byte("never committed")}).Hash()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.RemoveLink(ctx, bogus); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("RemoveLink unknown target: got %v", err)
	}

	// Malformed entry type surfaces as a validation-class error.
	if _, err := client.Commit(ctx, "%bogus", nil, nil); !chain.IsKind(err, chain.KindValidation) {
		t.Fatalf("bad system type: got %v", err)
	}

	// Tombstoned entries disappear from the default read path.
	id, err := client.Commit(ctx, "note", []byte("doomed"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.RemoveEntry(ctx, id); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if _, err := client.GetEntry(ctx, id); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("GetEntry after removal: got %v", err)
	}

	// Foreign agent chains are not served.
	if err := client.Verify(ctx, "ed25519:c29tZWJvZHktZWxzZQ=="); !chain.IsKind(err, chain.KindUnknownReference) {
		t.Fatalf("foreign Verify: got %v", err)
	}
}
