// Package realtime is Expertly's WebSocket fanout layer.
//
// Every connection is authenticated with an access token before the upgrade
// completes. A connected client always sits on its personal channel (keyed by
// account id, used for conversation_updated deliveries) and may join any
// number of conversation rooms it participates in.
//
// Broadcast never blocks: a slow client's queue drops envelopes rather than
// stalling the room.
package realtime
