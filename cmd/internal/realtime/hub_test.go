package realtime

import (
	"log/slog"
	"testing"
	"time"

	v1 "expertly/shared/contracts/chat/v1"
)

func testEnv(typ string) v1.Envelope {
	return v1.Envelope{V: v1.Version, Type: typ, ID: NewRandomHex(4), TS: time.Now().UTC()}
}

func drain(t *testing.T, c *Client) []v1.Envelope {
	t.Helper()
	var out []v1.Envelope
	for {
		select {
		case env := <-c.Send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestRoomBroadcastIncludesSender(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	room := NewRoom(log, "conv1")

	a := NewClient("alice", "s1", 8)
	b := NewClient("bob", "s2", 8)
	room.Join(a)
	room.Join(b)

	room.Broadcast(testEnv(v1.TypeMessageNew))

	if got := drain(t, a); len(got) != 1 {
		t.Fatalf("sender got %d envelopes", len(got))
	}
	if got := drain(t, b); len(got) != 1 {
		t.Fatalf("receiver got %d envelopes", len(got))
	}
}

func TestRoomBroadcastExceptSkipsOriginator(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	room := NewRoom(log, "conv1")

	a := NewClient("alice", "s1", 8)
	b := NewClient("bob", "s2", 8)
	room.Join(a)
	room.Join(b)

	room.BroadcastExcept(testEnv(v1.TypeTyping), "s1")

	if got := drain(t, a); len(got) != 0 {
		t.Fatalf("originator got %d envelopes", len(got))
	}
	if got := drain(t, b); len(got) != 1 {
		t.Fatalf("receiver got %d envelopes", len(got))
	}
}

func TestRoomDropsOnBackpressure(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	room := NewRoom(log, "conv1")

	slow := NewClient("alice", "s1", 32)
	room.Join(slow)

	// Overfill well past the queue; Broadcast must not block or panic.
	for i := 0; i < 100; i++ {
		room.Broadcast(testEnv(v1.TypeMessageNew))
	}
	if got := drain(t, slow); len(got) != 32 {
		t.Fatalf("queued %d envelopes, want the queue cap", len(got))
	}
}

func TestRoomLeaveDoesNotCloseClient(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	room := NewRoom(log, "conv1")

	a := NewClient("alice", "s1", 8)
	room.Join(a)
	room.Leave("s1")

	select {
	case <-a.Done():
		t.Fatalf("leave shut the client down")
	default:
	}
	if room.Has("s1") {
		t.Fatalf("still a member after leave")
	}
}

func TestHubPersonalChannels(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))

	a1 := NewClient("alice", "s1", 8)
	a2 := NewClient("alice", "s2", 8)
	b := NewClient("bob", "s3", 8)
	hub.Connect(a1)
	hub.Connect(a2)
	hub.Connect(b)

	if !hub.SendToUser("alice", testEnv(v1.TypeConversationUpdated)) {
		t.Fatalf("delivery failed")
	}
	if got := drain(t, a1); len(got) != 1 {
		t.Fatalf("a1 got %d", len(got))
	}
	if got := drain(t, a2); len(got) != 1 {
		t.Fatalf("a2 got %d", len(got))
	}
	if got := drain(t, b); len(got) != 0 {
		t.Fatalf("bob got %d", len(got))
	}

	// Offline account: nothing delivered, no error.
	if hub.SendToUser("carol", testEnv(v1.TypeConversationUpdated)) {
		t.Fatalf("delivered to offline account")
	}
}

func TestHubDisconnectLeavesRooms(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	room := hub.Room("conv1")

	a := NewClient("alice", "s1", 8)
	hub.Connect(a)
	room.Join(a)

	hub.Disconnect(a)

	if room.Has("s1") {
		t.Fatalf("still in room after disconnect")
	}
	if hub.SendToUser("alice", testEnv(v1.TypeConversationUpdated)) {
		t.Fatalf("personal channel survived disconnect")
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !rl.Allow(base.Add(time.Duration(i) * time.Millisecond)) {
			t.Fatalf("event %d denied", i)
		}
	}
	if rl.Allow(base.Add(4 * time.Millisecond)) {
		t.Fatalf("over-limit event allowed")
	}
	// The window slides: old events expire.
	if !rl.Allow(base.Add(1100 * time.Millisecond)) {
		t.Fatalf("event after window denied")
	}
}
