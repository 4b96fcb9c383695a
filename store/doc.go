// Package store provides the Redis-backed TTL record stores used by goToken:
// the generic [Store], the access-token [Blacklist], the digest-only
// [RefreshTokens] store, and the forced-refresh [RefreshList].
//
// # Key layout
//
// TTL records are keyed "<prefix>:<user id>:<jti>" and expire through Redis'
// own TTL. Lookups by a single key part run a cursor SCAN that always
// terminates after one full pass.
//
// # What this package must NOT do
//
//   - Import goToken or jwt (no upward imports).
//   - Persist a clear refresh secret.
//   - Interpret token claims.
package store
