// Package hashutil derives content identifiers for entries and headers.
//
// All addressing in this module is CIDv1 with the "raw" multicodec and a
// sha2-256 multihash, derived from canonical bytes. Entry and header hashes
// use the same derivation; the compositional property (header hashes cover
// the entry hash, not the entry content) comes from what the caller feeds in,
// not from a different hash construction.
package hashutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns a CIDv1 (raw + sha2-256) derived from data.
func Sum(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// SumString returns the string form of Sum(data).
func SumString(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1
		// length this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}
