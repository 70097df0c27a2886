// Package chatapi exposes conversations, messages, the expert directory and
// presence pings over HTTP. All endpoints require a verified access token;
// the WebSocket gateway covers the live path, these routes cover fetches and
// one-off actions.
package chatapi
