// Package keys provides agent identity: signing keys, the agent-key string
// encoding used in headers and provenances, and signature verification.
//
// Stable:
//   - Pure, deterministic primitives for agent-key formatting, role-seed
//     derivation, signing, and verification.
//
// Experimental:
//   - Filesystem-backed key storage and convenience helpers (KeyStore and
//     related functions). These are local-first utilities and are not part
//     of the long-term protocol contract.
package keys
