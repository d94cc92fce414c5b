package storage

import "github.com/ipfs/go-cid"

// ChainStore is the mutable half of the chain: the per-agent ordered index
// of header hashes and the tip pointer. Header and entry bytes themselves
// live in a CAS; the ChainStore records only ordering.
//
// Contract:
// - AppendHeader MUST be atomic per agent: it compares the stored tip with
//   expectedTip and either appends and advances the tip in one step, or
//   fails with ErrTipMoved leaving the chain untouched. expectedTip is
//   cid.Undef for an append onto an empty chain.
// - Tip and Headers MUST observe either the pre- or post-append state of a
//   concurrent AppendHeader, never a partial one.
// - The index grows only by append; implementations MUST NOT expose any
//   removal or in-place mutation.
type ChainStore interface {
	// AppendHeader appends header to agent's chain and returns the new
	// chain length (the appended header's 1-based position).
	AppendHeader(agent string, expectedTip, header cid.Cid) (int, error)

	// Tip returns the current head header hash. ok is false for an empty
	// or unknown chain.
	Tip(agent string) (tip cid.Cid, ok bool, err error)

	// Headers returns the agent's header hashes oldest-first. The returned
	// slice is a snapshot; callers may retain it.
	Headers(agent string) ([]cid.Cid, error)

	// Len returns the agent's chain length.
	Len(agent string) (int, error)
}
