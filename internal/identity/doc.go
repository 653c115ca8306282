// Package identity implements the identity provider consumed by the
// session gateway: account credentials, opaque session tokens, and
// refresh-token rotation.
//
// The gateway depends only on the Provider interface. LocalProvider is
// the SQLite-backed implementation used by the standalone deployment;
// hosted deployments can substitute a remote provider without touching
// policy code.
//
// Token model:
//   - Access tokens are short-lived HS256 JWTs validated by signature
//     alone (no database hit on the request path).
//   - Refresh tokens are 256-bit random values stored only as SHA-256
//     hashes, rotated on every use. Reuse of a rotated token revokes the
//     whole token family.
//
// Roles live in the profile store, not in the token: the token asserts
// who the subject is, the profile store asserts what they may do.
package identity
