// Package quota enforces the per-tenant daily cap on automated sends.
//
// Counters live in Redis so that every engine instance sees the same
// numbers. Claiming a send slot is a single atomic Lua call: the check
// and the increment happen together, so two autopilot workers racing at
// cap-1 cannot both get through. Manual sends never touch the counter;
// the cap throttles automation only.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Day keys expire after slightly more than 24 hours so a counter
// outlives its day but never accumulates forever.
const dayKeyTTLSeconds = 90000

// Counters roll over at UTC midnight regardless of tenant timezone.
const dayFormat = "2006-01-02"

// claimLuaScript atomically checks the daily counter against the cap
// and increments only when the claim fits. Returns {claimed, current}.
const claimLuaScript = `
local key = KEYS[1]
local cap = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call('GET', key) or '0')
if current + 1 > cap then
    return {0, current}
end

local newVal = redis.call('INCRBY', key, 1)
if newVal == 1 then
    redis.call('EXPIRE', key, ttl)
end
return {1, newVal}
`

// releaseLuaScript returns a claimed slot, flooring at zero so a
// double release cannot drive the counter negative.
const releaseLuaScript = `
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 0 then
    return 0
end
return redis.call('DECRBY', key, 1)
`

// SendQuota tracks automated sends per organization per day.
type SendQuota struct {
	redis         *redis.Client
	claimScript   *redis.Script
	releaseScript *redis.Script
}

// NewSendQuota creates a quota tracker backed by the given Redis client.
func NewSendQuota(client *redis.Client) *SendQuota {
	return &SendQuota{
		redis:         client,
		claimScript:   redis.NewScript(claimLuaScript),
		releaseScript: redis.NewScript(releaseLuaScript),
	}
}

// NewSendQuotaFromURL creates a quota tracker from a Redis URL and
// verifies connectivity before returning.
func NewSendQuotaFromURL(ctx context.Context, redisURL string) (*SendQuota, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewSendQuota(client), nil
}

func dayKey(orgID string, now time.Time) string {
	return fmt.Sprintf("sendquota:%s:day:%s", orgID, now.UTC().Format(dayFormat))
}

// TryClaim attempts to reserve one automated-send slot for the
// organization. It returns whether the claim succeeded and the counter
// value after the call. A cap of zero (or below) always denies without
// touching Redis.
func (q *SendQuota) TryClaim(ctx context.Context, orgID string, cap int) (bool, int, error) {
	if cap <= 0 {
		return false, 0, nil
	}

	keys := []string{dayKey(orgID, time.Now())}
	args := []interface{}{cap, dayKeyTTLSeconds}

	result, err := q.claimScript.Run(ctx, q.redis, keys, args...).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("send quota claim failed: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("send quota claim returned %d values, want 2", len(result))
	}

	claimed, ok := result[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("send quota claim returned non-integer status")
	}
	current, _ := result[1].(int64)

	return claimed == 1, int(current), nil
}

// Release returns a previously claimed slot, used when a dispatch fails
// after the claim so the failure does not consume cap.
func (q *SendQuota) Release(ctx context.Context, orgID string) error {
	keys := []string{dayKey(orgID, time.Now())}
	if err := q.releaseScript.Run(ctx, q.redis, keys).Err(); err != nil {
		return fmt.Errorf("send quota release failed: %w", err)
	}
	return nil
}

// CountToday reports how many automated sends the organization has
// committed so far today. A missing key reads as zero.
func (q *SendQuota) CountToday(ctx context.Context, orgID string) (int, error) {
	val, err := q.redis.Get(ctx, dayKey(orgID, time.Now())).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("send quota read failed: %w", err)
	}
	return val, nil
}

// Close releases the underlying Redis client.
func (q *SendQuota) Close() error {
	return q.redis.Close()
}
