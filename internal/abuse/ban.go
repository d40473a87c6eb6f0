package abuse

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duskline/pairserver/internal/metrics"
)

// Redis key prefixes and escalation tuning for the ban system (§4.5a),
// adapted from the teacher's ban.Store.
const (
	banPrefix    = "pair:ban:"
	reportsPrefix = "pair:reports:"

	ban15Min  = 15 * time.Minute
	ban1Hour  = 1 * time.Hour
	ban24Hour = 24 * time.Hour

	reportsTTL       = 24 * time.Hour
	autoBanThreshold = 3
)

// BanStore manages temporary, fingerprint-keyed bans in Redis plus the
// report counter used to auto-escalate them. The "fingerprint" is the
// banned party's own opaque connection id (§4.5a "fingerprint-less ban
// keyed by a per-connection random token") — there is no persistent device
// identity to ban against instead.
type BanStore struct {
	client *redis.Client
}

// NewBanStore constructs a BanStore backed by client.
func NewBanStore(client *redis.Client) *BanStore {
	return &BanStore{client: client}
}

// IsBanned reports whether fingerprint is currently banned, and if so, the
// remaining ban duration and reason. Redis errors are returned so the
// caller can choose to fail open.
func (s *BanStore) IsBanned(ctx context.Context, fingerprint string) (banned bool, remaining time.Duration, reason string, err error) {
	key := banPrefix + fingerprint

	reason, err = s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return true, 0, reason, nil
	}
	if ttl > 0 {
		remaining = ttl
	}
	return true, remaining, reason, nil
}

func escalationDuration(offenseCount int64) time.Duration {
	switch {
	case offenseCount <= 1:
		return ban15Min
	case offenseCount == 2:
		return ban1Hour
	default:
		return ban24Hour
	}
}

// RecordReport increments reportedUserID's offense counter (a 24h window
// that starts at the first report) and, once the auto-ban threshold is
// reached, applies a ban whose duration is escalationDuration of that report
// count. Because the threshold
// is 3, every auto-ban lands in the 24h tier; the 15m and 1h tiers are never
// applied from here. There is no authenticated identity in this core, so the
// "fingerprint" a ban is keyed by is simply the reported party's own
// connection id. Errors talking to Redis are swallowed since reporting must
// never block or crash the relay path.
func (s *BanStore) RecordReport(reportedUserID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := reportsPrefix + reportedUserID
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		_ = s.client.Expire(ctx, key, reportsTTL).Err()
	}

	if count < autoBanThreshold {
		return
	}

	duration := escalationDuration(count)
	if err := s.client.Set(ctx, banPrefix+reportedUserID, "multiple_reports", duration).Err(); err != nil {
		return
	}
	metrics.BansTotal.WithLabelValues("multiple_reports").Inc()
	log.Printf("abuse: auto-banned user=%s for %s (reason=%s)", reportedUserID, duration, reason)
}

// Unban removes a ban immediately.
func (s *BanStore) Unban(ctx context.Context, fingerprint string) error {
	return s.client.Del(ctx, banPrefix+fingerprint).Err()
}
