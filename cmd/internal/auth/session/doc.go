// Package session implements the credential lifecycle: issuing a paired
// access/refresh credential, verifying access credentials on every protected
// request, rotating the pair through the refresh credential, and revoking it
// at logout.
//
// Access credentials are PASETO v4.public tokens and are never persisted.
// Refresh credentials are HS256 JWTs signed with a separate secret; only
// their digest is stored, in the principal's single refresh slot. A refresh
// credential rotates at most once: rotation compares the presented digest
// with the slot and swaps it under a per-principal lock, so of two
// concurrent rotations with the same value exactly one wins.
//
// Transport (cookies, headers, status codes) lives in the api package.
package session
