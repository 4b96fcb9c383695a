// Package prometheus renders goToken engine metrics in Prometheus text
// exposition format.
//
// Counter names are prefixed gotoken_ and suffixed _total; the single
// histogram is gotoken_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
