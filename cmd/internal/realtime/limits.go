package realtime

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max message text length (runes); matches the chat pipeline's tolerance.
	maxMessageChars = 4000
)

const (
	// Heartbeat defaults (overridable by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

// Presence windows: an account counts as active in a conversation for
// activeWindow after its last ping; stale entries are dropped after
// evictAfter.
const (
	presenceActiveWindow = 2 * time.Minute
	presenceEvictAfter   = 5 * time.Minute
)
