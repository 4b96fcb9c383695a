// Package flows contains pure-function orchestrators for token issuance and
// re-issuance.
//
// Each flow function (RunIssue, RunRefresh) accepts a typed dependency struct
// and returns a result carrying a failure kind instead of a root-level error.
// The Engine maps kinds onto its public sentinels.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the refresh token store, the forced
// refresh set, the JWT manager and the host identity codec. They do NOT own
// any of these resources. Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
