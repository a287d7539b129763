// Package principal turns raw credentials into typed principals.
//
// Two credential shapes come in from the transport edge: bearer-token
// claims already verified by the opaque authenticator, and raw API-key
// secrets taken from a header. The resolver owns all interpretation logic:
// role normalization (locale variants collapse into the closed Role enum
// here and nowhere else), tenant-id derivation, activity and expiry checks,
// and the one-time tenant backfill for legacy API keys.
//
// API-key verification looks up candidates by an indexable secret prefix
// and compares the full secret hash in constant time against every
// candidate sharing that prefix. Prefix collisions are expected at scale,
// so the comparison never short-circuits on the first candidate.
//
// Usage recording (last-used timestamps) is fire-and-forget: a failure to
// record usage never fails the request.
package principal
