package chain

import (
	"github.com/fxamacker/cbor/v2"
)

// Canonical CBOR is the single mandatory serialization choke point for this
// module. All hashing, signing, and storage of entries and headers MUST pass
// through Encode, so that identical values always produce identical bytes
// and therefore identical CIDs.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes v into canonical CBOR bytes.
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, WrapError(KindSerialization, "CHAIN-SER-001", "canonical encoding failed", err)
	}
	return b, nil
}

// Decode deserializes canonical CBOR bytes into v.
func Decode(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return WrapError(KindSerialization, "CHAIN-SER-002", "malformed chain bytes", err)
	}
	return nil
}
