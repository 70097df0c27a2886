// Package session issues and rotates Expertly's token pairs.
//
// An access token is a short-lived JWT verified statelessly on every request.
// A refresh token is a long-lived JWT whose digest is additionally tracked in
// the account's server-side ledger; rotation consumes the digest, so each
// refresh token authorizes exactly one rotation. The two token kinds are
// signed with independent secrets.
//
// Plain tokens never reach logs or storage; only digests do.
package session
