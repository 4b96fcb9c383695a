// Package jwt builds access-token payloads and signs and verifies them in the
// standard compact serialization via golang-jwt.
//
// # Claim checks
//
// [Manager.Parse] runs every check itself on an injected clock so each
// failure maps to exactly one sentinel (see errors.go). Expiry is checked
// last: an [ErrTokenExpired] result means the token is otherwise sound.
//
// # What this package must NOT do
//
//   - Touch Redis or any other store.
//   - Decide whether an expired token may be refreshed.
package jwt
