// Package chat implements Expertly's conversations and messages: the
// two-party conversation store, per-conversation language preferences, and
// the message pipeline that detects languages and translates on delivery.
//
// Conversations are strictly two-party, always between a regular account and
// an expert. A conversation is listed to a participant only once it carries a
// message, except to its initiator, who sees it immediately.
package chat
