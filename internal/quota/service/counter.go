package service

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Accelerator key lifetime. A fresh key always outlives its month, so stale
// counters roll off on their own at the period boundary.
const counterTTL = 31 * 24 * time.Hour

type incrStatus int

const (
	incrAllowed incrStatus = iota
	incrDenied
	incrMissing
)

// counterScript compares against the limit and increments in one atomic step.
// KEYS[1] = counter key
// ARGV[1] = limit
//
// Returns {1, used} when incremented, {0, used} when at the limit and
// {-1, 0} when the key does not exist and must be seeded from the durable row.
const counterScript = `
local limit = tonumber(ARGV[1])
local used = redis.call("GET", KEYS[1])
if not used then
  return {-1, 0}
end
used = tonumber(used)
if used >= limit then
  return {0, used}
end
used = redis.call("INCR", KEYS[1])
return {1, used}
`

// Counter is the accelerator-side quota counter.
type Counter struct {
	client redis.Cmdable
	script *redis.Script
}

func NewCounter(client redis.Cmdable) *Counter {
	if client == nil {
		return nil
	}
	return &Counter{
		client: client,
		script: redis.NewScript(counterScript),
	}
}

// Incr atomically consumes one unit unless the counter is at its limit.
func (c *Counter) Incr(ctx context.Context, key string, limit int) (int, incrStatus, error) {
	res, err := c.script.Run(ctx, c.client, []string{key}, limit).Slice()
	if err != nil {
		return 0, incrMissing, err
	}
	if len(res) < 2 {
		return 0, incrMissing, errInvalidScriptReply
	}

	used := int(castToInt(res[1]))
	switch castToInt(res[0]) {
	case 1:
		return used, incrAllowed, nil
	case 0:
		return used, incrDenied, nil
	default:
		return 0, incrMissing, nil
	}
}

// Seed initializes the counter from the durable row. NX keeps a concurrent
// seed from clobbering increments that landed in between.
func (c *Counter) Seed(ctx context.Context, key string, used int) error {
	return c.client.SetNX(ctx, key, used, counterTTL).Err()
}

// Get reads the current counter value; ok is false when the key is absent.
func (c *Counter) Get(ctx context.Context, key string) (int, bool, error) {
	val, err := c.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
