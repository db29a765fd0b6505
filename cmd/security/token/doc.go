// Package token hashes refresh credentials for server-side storage.
//
// Only the digest of a refresh credential is ever persisted. A Hasher runs in
// one of two modes:
//   - SHA-256(token) when no key is configured (local development),
//   - HMAC-SHA256(token, key) when a key is configured; production deployments
//     set RequireHMAC so a missing or short key is a startup error.
//
// Digests are 64-char lower-case hex, compared in constant time with Equal.
package token
