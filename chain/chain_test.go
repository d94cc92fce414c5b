package chain

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/animanga/agentchain/hashutil"
)

const testAgent = "ed25519:YWdlbnQtYS1wdWJsaWMta2V5LTMyLWJ5dGVzLXBhZCE="

func mustCID(t *testing.T, seed string) cid.Cid {
	t.Helper()
	id, err := hashutil.Sum([]byte(seed))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func validHeader(t *testing.T) Header {
	t.Helper()
	return Header{
		Type:      HeaderCommit,
		Entry:     mustCID(t, "entry").String(),
		Prev:      mustCID(t, "prev").String(),
		Timestamp: FormatTimestamp(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)),
		Agent:     testAgent,
		Provenances: []Provenance{
			{AgentKey: testAgent, Signature: []byte("sig")},
		},
	}
}

func TestEntry_HashIsDeterministic(t *testing.T) {
	e := Entry{Type: "note", Content: []byte("same bytes")}
	h1, err := e.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := Entry{Type: "note", Content: []byte("same bytes")}.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1, h2)
	}
	h3, err := Entry{Type: "note", Content: []byte("other bytes")}.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h3 {
		t.Fatal("distinct entries hash equal")
	}
}

func TestEntry_ShapeRules(t *testing.T) {
	if _, err := (Entry{}).Canonical(); RuleID(err) != "CHAIN-SER-010" {
		t.Fatalf("empty type: got %v", err)
	}
	if _, err := (Entry{Type: "%bogus"}).Canonical(); RuleID(err) != "CHAIN-SER-011" {
		t.Fatalf("unknown system type: got %v", err)
	}
	for _, typ := range []string{TypeAgentID, TypeLinkAdd, TypeLinkRemove, TypeRemoveEntry, "app.note"} {
		if _, err := (Entry{Type: typ, Content: []byte("x")}).Canonical(); err != nil {
			t.Fatalf("type %q rejected: %v", typ, err)
		}
	}
}

func TestHeader_HashCoversEntryHashNotContent(t *testing.T) {
	h := validHeader(t)
	id1, err := h.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// Same header with a different entry hash must hash differently.
	h2 := h
	h2.Entry = mustCID(t, "other entry").String()
	id2, err := h2.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatal("header hash ignores entry hash")
	}

	// Provenances are inside the header hash too.
	h3 := h
	h3.Provenances = []Provenance{{AgentKey: testAgent, Signature: []byte("other sig")}}
	id3, err := h3.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id3 {
		t.Fatal("header hash ignores provenances")
	}
}

func TestHeader_SigningScopeExcludesProvenances(t *testing.T) {
	h := validHeader(t)
	scope1, err := h.SigningScope()
	if err != nil {
		t.Fatalf("SigningScope failed: %v", err)
	}
	h.Provenances = append(h.Provenances, Provenance{AgentKey: "zz:other", Signature: []byte("x")})
	scope2, err := h.SigningScope()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(scope1, scope2) {
		t.Fatal("signing scope varies with provenance set")
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	h := validHeader(t)
	b, err := h.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	gotHash, _ := got.Hash()
	wantHash, _ := h.Hash()
	if gotHash != wantHash {
		t.Fatal("round trip changed the header hash")
	}
}

func TestHeader_ShapeRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Header)
		rule   string
	}{
		{"unknown type", func(h *Header) { h.Type = "Amend" }, "CHAIN-SER-023"},
		{"missing entry", func(h *Header) { h.Entry = "" }, "CHAIN-SER-024"},
		{"bad entry hash", func(h *Header) { h.Entry = "zzz" }, "CHAIN-SER-021"},
		{"bad prev hash", func(h *Header) { h.Prev = "zzz" }, "CHAIN-SER-022"},
		{"bad timestamp", func(h *Header) { h.Timestamp = "yesterday" }, "CHAIN-SER-020"},
		{"missing agent", func(h *Header) { h.Agent = "" }, "CHAIN-SER-025"},
		{"no provenances", func(h *Header) { h.Provenances = nil }, "CHAIN-SER-026"},
		{"empty signature", func(h *Header) { h.Provenances[0].Signature = nil }, "CHAIN-SER-028"},
		{"unsorted provenances", func(h *Header) {
			h.Provenances = []Provenance{
				{AgentKey: "zz:b", Signature: []byte("x")},
				{AgentKey: testAgent, Signature: []byte("y")},
			}
		}, "CHAIN-SER-029"},
		{"missing committer provenance", func(h *Header) {
			h.Provenances = []Provenance{{AgentKey: "zz:b", Signature: []byte("x")}}
		}, "CHAIN-SER-030"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := validHeader(t)
			tc.mutate(&h)
			_, err := h.Canonical()
			if RuleID(err) != tc.rule {
				t.Fatalf("got %v, want rule %s", err, tc.rule)
			}
		})
	}
}

func TestGenesisHeader_OmitsPrev(t *testing.T) {
	h := validHeader(t)
	h.Prev = ""
	b, err := h.Canonical()
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	var m map[string]any
	if err := Decode(b, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["prev"]; ok {
		t.Fatal("genesis header encodes an empty prev field")
	}
	if _, ok, err := h.PrevCID(); ok || err != nil {
		t.Fatalf("PrevCID on genesis: ok=%v err=%v", ok, err)
	}
}

func TestTimestamp_CanonicalForm(t *testing.T) {
	in := time.Date(2026, 7, 8, 9, 10, 11, 987654321, time.FixedZone("X", 3600))
	s := FormatTimestamp(in)
	if s != "2026-07-08T08:10:11Z" {
		t.Fatalf("unexpected canonical timestamp: %s", s)
	}
	back, err := ParseTimestamp(s)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(in.Truncate(time.Second)) {
		t.Fatalf("parse mismatch: %v", back)
	}
}

func TestLinkEntries_RoundTrip(t *testing.T) {
	base, target := mustCID(t, "base"), mustCID(t, "target")
	e, err := NewLinkEntry(base, target, "cites")
	if err != nil {
		t.Fatalf("NewLinkEntry failed: %v", err)
	}
	p, err := DecodeLinkPayload(e)
	if err != nil {
		t.Fatal(err)
	}
	if p.Base != base.String() || p.Target != target.String() || p.Tag != "cites" {
		t.Fatalf("payload mismatch: %+v", p)
	}

	if _, err := NewLinkEntry(cid.Undef, target, ""); RuleID(err) != "CHAIN-SER-040" {
		t.Fatalf("undefined base: got %v", err)
	}
	if _, err := NewTombstoneEntry(TypeLinkAdd, base); RuleID(err) != "CHAIN-SER-044" {
		t.Fatalf("bad tombstone type: got %v", err)
	}
	tomb, err := NewTombstoneEntry(TypeRemoveEntry, base)
	if err != nil {
		t.Fatal(err)
	}
	tp, err := DecodeTombstonePayload(tomb)
	if err != nil || tp.Target != base.String() {
		t.Fatalf("tombstone payload: %+v err=%v", tp, err)
	}
}

func TestErrors_KindAndRetry(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError(KindConcurrentModification, "CHAIN-INT-005", "tip moved", cause)
	if !IsKind(err, KindConcurrentModification) || IsKind(err, KindValidation) {
		t.Fatal("IsKind misclassifies")
	}
	if !IsRetryable(err) {
		t.Fatal("concurrent modification must be retryable")
	}
	if IsRetryable(NewError(KindValidation, "X-1", "nope")) {
		t.Fatal("validation errors are not retryable")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not unwrapped")
	}
	if RuleID(err) != "CHAIN-INT-005" {
		t.Fatalf("RuleID: %s", RuleID(err))
	}
}

func TestDecode_RejectsLooseCBOR(t *testing.T) {
	// Duplicate map keys must not decode.
	dup := []byte{0xa2, 0x61, 0x61, 0x01, 0x61, 0x61, 0x02} // {"a":1,"a":2}
	var v map[string]int
	if err := Decode(dup, &v); !IsKind(err, KindSerialization) {
		t.Fatalf("duplicate keys accepted: %v", err)
	}
	// Indefinite-length arrays must not decode.
	indef := []byte{0x9f, 0x01, 0x02, 0xff}
	var arr []int
	if err := Decode(indef, &arr); !IsKind(err, KindSerialization) {
		t.Fatalf("indefinite length accepted: %v", err)
	}
}
