package application

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenchat/lumenchat-backend/pkg/helpers"
)

const statusCacheTTL = 30 * time.Second

// StatusPayload is the /api/user-status response body.
type StatusPayload struct {
	PlanStatus  string  `json:"planStatus"`
	TrialEndsAt *string `json:"trialEndsAt"`
	ThreadCount int     `json:"threadCount"`
}

// StatusCache keeps the user-status payload in Redis for a short TTL. Every
// plan write invalidates the entry, so the cache can only ever serve a
// briefly stale allow-side read, never a stale denial override.
type StatusCache struct {
	Redis *redis.Client
}

func statusKey(userID string) string {
	return "user:status:" + userID
}

func (c *StatusCache) Get(ctx context.Context, userID string) (*StatusPayload, bool) {
	if c == nil || c.Redis == nil {
		return nil, false
	}
	var p StatusPayload
	ok, err := helpers.RedisGetJSON(ctx, c.Redis, statusKey(userID), &p)
	if err != nil || !ok {
		return nil, false
	}
	return &p, true
}

func (c *StatusCache) Set(ctx context.Context, userID string, p StatusPayload) {
	if c == nil || c.Redis == nil {
		return
	}
	_ = helpers.RedisSetJSON(ctx, c.Redis, statusKey(userID), p, statusCacheTTL)
}

func (c *StatusCache) Invalidate(ctx context.Context, userID string) {
	if c == nil || c.Redis == nil {
		return
	}
	_ = helpers.RedisDel(ctx, c.Redis, statusKey(userID))
}
