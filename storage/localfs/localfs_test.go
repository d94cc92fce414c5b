package localfs

import (
	"os"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/hashutil"
	"github.com/animanga/agentchain/storage"
	"github.com/animanga/agentchain/storage/testkit"
)

func TestLocalFS_CASConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		t.Helper()
		cas, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return cas
	})
}

func TestLocalFS_ChainStoreConformance(t *testing.T) {
	testkit.RunChainStoreConformance(t, func(t *testing.T) storage.ChainStore {
		t.Helper()
		store, err := Open(t.TempDir())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return store
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	dir := t.TempDir()
	cas, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := cas.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := cas.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect hash mismatch.
	_, err = cas.Get(id)
	if err != storage.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted object.
	_, err = cas.Put(orig)
	if err != storage.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	// Sanity: the CID is still the CID of the original bytes.
	wantID, err := hashutil.Sum(orig)
	if err != nil {
		t.Fatalf("hashutil.Sum failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestStore_ReopenKeepsChain(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	const agent = "ed25519:cGVyc2lzdGVuY2U="
	h1, err := hashutil.Sum([]byte("h1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AppendHeader(agent, cid.Undef, h1); err != nil {
		t.Fatalf("AppendHeader: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	tip, ok, err := reopened.Tip(agent)
	if err != nil || !ok || tip != h1 {
		t.Fatalf("tip not durable across reopen: %v ok=%v err=%v", tip, ok, err)
	}
}
