// Package identity implements Expertly's account foundation.
//
// It holds the canonical Account and ExpertProfile models, username/email
// normalization, the per-account refresh-token digest ledger, and the store
// interfaces used by the HTTP and WebSocket layers.
//
// This package is intentionally dependency-light and security-first: plain
// refresh tokens never enter it, only their digests.
package identity
