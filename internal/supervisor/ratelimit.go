package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duskline/pairserver/internal/metrics"
)

// Rule defines a rate-limiting policy: key prefix, max count, and window.
// Adapted from the teacher's ratelimit.Rule.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Standard rules (§4.6a).
var (
	RuleSignal = Rule{Key: "rl:signal:", Limit: 20, Window: 10 * time.Second}
	RuleChat   = Rule{Key: "rl:chat:", Limit: 5, Window: 10 * time.Second}
)

// RateLimiter implements relay.RateLimiter against a pluggable backend: a
// Redis INCR+EXPIRE counter when a client is configured, or an in-memory
// counter otherwise (§4.6a, §2b). Both are fixed windows that start at the
// first request for a key; neither is a sliding window.
type RateLimiter struct {
	rule   Rule
	action string
	redis  *redis.Client
	mem    *memLimiter
}

// NewRateLimiter constructs a RateLimiter for rule. client may be nil, in
// which case an in-memory counter is used instead.
func NewRateLimiter(rule Rule, action string, client *redis.Client) *RateLimiter {
	rl := &RateLimiter{rule: rule, action: action, redis: client}
	if client == nil {
		rl.mem = newMemLimiter()
	}
	return rl
}

// Allow implements relay.RateLimiter. On Redis errors it fails open so a
// Redis outage never blocks legitimate traffic.
func (rl *RateLimiter) Allow(key string) bool {
	var allowed bool
	if rl.redis != nil {
		allowed = rl.allowRedis(key)
	} else {
		allowed = rl.mem.allow(rl.rule.Key+key, rl.rule.Limit, rl.rule.Window)
	}
	if !allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(rl.action).Inc()
	}
	return allowed
}

func (rl *RateLimiter) allowRedis(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	fullKey := rl.rule.Key + key
	count, err := rl.redis.Incr(ctx, fullKey).Result()
	if err != nil {
		log.Printf("supervisor: ratelimit redis INCR error key=%s: %v (failing open)", fullKey, err)
		return true
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, fullKey, rl.rule.Window).Err(); err != nil {
			log.Printf("supervisor: ratelimit redis EXPIRE error key=%s: %v (failing open)", fullKey, err)
			return true
		}
	}
	return int(count) <= rl.rule.Limit
}

// memLimiter is a fixed-window in-memory counter used when no Redis client
// is configured, so rate limiting still functions in a single-process
// deployment.
type memLimiter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

type memWindow struct {
	count      int
	expiresAt  time.Time
}

func newMemLimiter() *memLimiter {
	return &memLimiter{windows: make(map[string]*memWindow)}
}

func (m *memLimiter) allow(key string, limit int, window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, ok := m.windows[key]
	if !ok || now.After(w.expiresAt) {
		w = &memWindow{count: 0, expiresAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count <= limit
}
