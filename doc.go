// Package goToken manages the lifecycle of signed JWT access tokens paired
// with opaque refresh secrets.
//
// An [Engine] issues a pair for a host user, verifies presented tokens, and
// re-issues transparently when an access token has expired or its user has
// been marked for forced refresh. Refresh records, the blacklist and the
// forced-refresh set live in Redis; the engine itself holds no mutable
// state and is safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// goToken is the public surface: [Engine], [Builder], [Config], [Decoding]
// and the host-facing [IdentityCodec]. Claim handling and signing live in
// the jwt sub-package, TTL records in store, and the issue and refresh
// orchestration in internal/flows.
//
// # What this package must NOT do
//
//   - Authorize requests or interpret host claims.
//   - Store or look up users. The host resolves them through IdentityCodec.
//   - Implement signing algorithms.
//   - Speak any transport protocol.
//
// # Performance contract
//
// Verify of a valid token costs one Redis round trip (the forced-refresh set
// lookup), two with the blacklist enabled. Re-issuance adds a scan-free
// record lookup, a TTL update and one write.
package goToken
