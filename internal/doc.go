// Package internal contains helper utilities that are intentionally private to goToken:
// token identifier generation, refresh-secret generation, and refresh-secret digests.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for issuance and re-issuance
//
// # What this package must NOT do
//
//   - Export types that appear in the public goToken API.
//   - Be imported by any package outside the goToken module.
package internal
