package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence is the PresenceStore for multi-instance deployments: presence
// marks live in Redis with TTLs, so any instance sees any user's activity.
//
// Keys:
//
//	expertly:presence:act:<user>:<conv>  "1", TTL = active window
//	expertly:presence:convs:<user>       set of conversation ids, TTL = evict window
type RedisPresence struct {
	rdb redis.UniversalClient

	window time.Duration
	evict  time.Duration
}

// NewRedisPresence wraps an existing client. The caller owns its lifecycle.
func NewRedisPresence(rdb redis.UniversalClient) *RedisPresence {
	return &RedisPresence{
		rdb:    rdb,
		window: presenceActiveWindow,
		evict:  presenceEvictAfter,
	}
}

var _ PresenceStore = (*RedisPresence)(nil)

func activeKey(userID, conversationID string) string {
	return "expertly:presence:act:" + userID + ":" + conversationID
}

func convsKey(userID string) string {
	return "expertly:presence:convs:" + userID
}

func (p *RedisPresence) Touch(ctx context.Context, userID, conversationID string, _ time.Time) error {
	if userID == "" || conversationID == "" {
		return nil
	}

	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, activeKey(userID, conversationID), "1", p.window)
	pipe.SAdd(ctx, convsKey(userID), conversationID)
	pipe.Expire(ctx, convsKey(userID), p.evict)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) ActiveIn(ctx context.Context, userID, conversationID string, _ time.Time) (bool, error) {
	n, err := p.rdb.Exists(ctx, activeKey(userID, conversationID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *RedisPresence) Deactivate(ctx context.Context, userID string) error {
	convs, err := p.rdb.SMembers(ctx, convsKey(userID)).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(convs)+1)
	for _, conv := range convs {
		keys = append(keys, activeKey(userID, conv))
	}
	keys = append(keys, convsKey(userID))
	return p.rdb.Del(ctx, keys...).Err()
}
