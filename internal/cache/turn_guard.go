package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// unlockScript deletes the chat lock only while the caller still owns it,
// so a lock that expired and was taken by another turn is left alone.
var unlockScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TurnGuard admits each (chat, turn) pair once within its TTL and keeps a
// per-chat lock so turns of one chat never run side by side.
type TurnGuard struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewTurnGuard(client *redisv9.Client, ttl time.Duration) *TurnGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TurnGuard{client: client, ttl: ttl}
}

// Acquire reports false when the turn was already started.
func (g *TurnGuard) Acquire(ctx context.Context, chatID, turnID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, turnKey(chatID, turnID), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis acquire turn failed: %w", err)
	}
	return ok, nil
}

// Release frees a turn that failed, so the client may resend it.
func (g *TurnGuard) Release(ctx context.Context, chatID, turnID string) error {
	if err := g.client.Del(ctx, turnKey(chatID, turnID)).Err(); err != nil {
		return fmt.Errorf("redis release turn failed: %w", err)
	}
	return nil
}

// Lock reports false while another owner holds the chat.
func (g *TurnGuard) Lock(ctx context.Context, chatID, owner string) (bool, error) {
	ok, err := g.client.SetNX(ctx, inflightKey(chatID), owner, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock chat failed: %w", err)
	}
	return ok, nil
}

func (g *TurnGuard) Unlock(ctx context.Context, chatID, owner string) error {
	if err := unlockScript.Run(ctx, g.client, []string{inflightKey(chatID)}, owner).Err(); err != nil {
		return fmt.Errorf("redis unlock chat failed: %w", err)
	}
	return nil
}

func turnKey(chatID, turnID string) string {
	return fmt.Sprintf("chat:turn:%s:%s", chatID, turnID)
}

func inflightKey(chatID string) string {
	return fmt.Sprintf("chat:inflight:%s", chatID)
}
