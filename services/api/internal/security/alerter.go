// Package security counts failed security events per client and flags bursts.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter aggregates security events in Redis counters shared by every
// replica and reports when a per-client threshold is reached.
type AuditAlerter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewAuditAlerter returns nil when client is nil; a nil alerter observes nothing.
func NewAuditAlerter(client *redis.Client, prefix string) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "studyhub:api:alerts"
	}
	return &AuditAlerter{client: client, prefix: prefix, now: time.Now}
}

// Observe records one event for ip and reports whether its rule fired.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	result := AlertResult{}
	if a == nil || a.client == nil {
		return result, nil
	}
	threshold, window, ok := alertRule(event, outcome)
	if !ok {
		return result, nil
	}
	windowMs := window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = threshold
	result.Window = window
	result.Triggered = count >= threshold
	return result, nil
}

func alertRule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	event = strings.TrimSpace(event)
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return 20, time.Minute, true
	case "quota_exceeded":
		return 30, 10 * time.Minute, true
	case "fail":
	default:
		return 0, 0, false
	}
	switch event {
	case "api.login", "api.login_idp", "api.signup":
		return 10, 5 * time.Minute, true
	case "api.authorize":
		return 25, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
