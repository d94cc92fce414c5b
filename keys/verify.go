package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Supported agent-key encodings:
//   - ed25519:<base64>
//   - dilithium3:<base64>

// CheckAgentKey validates the shape of an agent key string without
// verifying anything cryptographic.
func CheckAgentKey(agentKey string) error {
	_, err := PublicKeyBytes(agentKey)
	return err
}

// PublicKeyBytes returns the raw public key bytes for an agent key string.
func PublicKeyBytes(agentKey string) ([]byte, error) {
	if agentKey == "" {
		return nil, errors.New("missing agent key")
	}
	alg, enc, ok := strings.Cut(agentKey, ":")
	if !ok {
		return nil, errors.New("invalid agent key encoding")
	}
	pub, err := decodeBase64(enc)
	if err != nil {
		return nil, fmt.Errorf("invalid agent key base64: %w", err)
	}
	switch alg {
	case "ed25519":
		if len(pub) != ed25519.PublicKeySize {
			return nil, errors.New("invalid ed25519 public key length")
		}
		return pub, nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported agent key encoding %q", alg)
	}
}

// Verify checks a provenance signature: sig must be a signature by agentKey
// over the sha256 digest of message. The algorithm is selected by the agent
// key prefix.
func Verify(agentKey string, message, sig []byte) error {
	alg, _, ok := strings.Cut(agentKey, ":")
	if !ok {
		return errors.New("invalid agent key encoding")
	}
	pub, err := PublicKeyBytes(agentKey)
	if err != nil {
		return err
	}
	digest, err := digestFor(DefaultHashAlg, message)
	if err != nil {
		return err
	}
	switch alg {
	case "ed25519":
		if len(sig) != ed25519.SignatureSize {
			return errors.New("invalid ed25519 signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return errors.New("signature invalid")
		}
		return nil
	case "dilithium3":
		if len(sig) != mode3.SignatureSize {
			return errors.New("invalid dilithium3 signature length")
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if !mode3.Verify(&pk, digest, sig) {
			return errors.New("signature invalid")
		}
		return nil
	default:
		return fmt.Errorf("unsupported agent key encoding %q", alg)
	}
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
