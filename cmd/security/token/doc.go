// Package token provides token hashing primitives for Expertly.
//
// It is the single source of truth for refresh-token hashing behavior:
// the server never stores a raw refresh token, only a 64-char hex digest
// produced here, and stored digests are compared in constant time.
//
// Environment:
//   - EXPERTLY_TOKEN_HMAC_KEY: when set, digests are HMAC-SHA256(token, key).
//     When absent, plain SHA-256(token) is used (dev/back-compat mode).
package token
