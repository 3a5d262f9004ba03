package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Returns {count, pttl}. The first hit of a window sets the expiry.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter counts requests per key in fixed windows stored in Redis,
// so every replica shares the same budget.
type FixedWindowLimiter struct {
	name   string
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewFixedWindowLimiter builds a limiter on a shared client. name separates
// the counters of limiters that share a prefix ("general", "upload").
func NewFixedWindowLimiter(client *redis.Client, prefix, name string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "studyhub:ratelimit"
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	return &FixedWindowLimiter{
		name:   name,
		limit:  limit,
		window: window,
		client: client,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// NewRedisFixedWindowLimiter dials its own client.
func NewRedisFixedWindowLimiter(addr, password, prefix, name string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	return NewFixedWindowLimiter(redis.NewClient(&redis.Options{Addr: addr, Password: password}), prefix, name, limit, window)
}

func (l *FixedWindowLimiter) Limit() int            { return l.limit }
func (l *FixedWindowLimiter) Window() time.Duration { return l.window }

// Allow records one hit for key. Redis failures deny the request.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, l.name, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(res) != 2 {
		slog.Warn("rate limiter unavailable, denying request", "limiter", l.name, "err", err)
		return Decision{Limit: l.limit, RetryAfter: time.Second}
	}
	count, pttl := res[0], res[1]
	d := Decision{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(l.limit-int(count), 0),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(max(pttl, 0)) * time.Millisecond
		if d.RetryAfter == 0 {
			d.RetryAfter = l.window
		}
	}
	return d
}
