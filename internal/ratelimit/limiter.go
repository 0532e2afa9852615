package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"loremtype-backend/internal/config"
	"loremtype-backend/internal/util"
)

// Kind is the dimension an identifier is tracked under.
type Kind string

const (
	KindUsername Kind = "username"
	KindOrigin   Kind = "origin"
)

const keyPrefix = "rate_limit:"

// Status is the result of evaluating a (kind, identifier) pair.
type Status struct {
	Blocked           bool
	AttemptsRemaining int
	LockedUntil       *time.Time
	MinutesRemaining  int
}

// record is the value stored per (kind, identifier). Timestamps are unix
// seconds so the Lua script can work with them directly.
type record struct {
	Attempts    int   `json:"attempts"`
	WindowStart int64 `json:"window_start"`
	LockedUntil int64 `json:"locked_until,omitempty"`
}

// recordFailureScript atomically creates or increments the attempt counter
// and sets the lock timestamp once the kind's threshold is reached. Two
// concurrent failures can never both observe "below threshold" and skip the
// lock.
var recordFailureScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
local rec
if raw then
  rec = cjson.decode(raw)
else
  rec = {attempts = 0, window_start = tonumber(ARGV[1])}
end
rec.attempts = rec.attempts + 1
if rec.attempts >= tonumber(ARGV[2]) and rec.locked_until == nil then
  rec.locked_until = tonumber(ARGV[1]) + tonumber(ARGV[3])
end
redis.call('SET', KEYS[1], cjson.encode(rec), 'EX', tonumber(ARGV[4]))
return rec.attempts
`)

// Limiter tracks ephemeral failed-attempt counters and short-term lockouts in
// Redis, independent of the persistent per-account lockout. Records live only
// as long as their window or lock; key TTLs bound memory even if the sweeper
// never runs.
type Limiter struct {
	client   redis.Cmdable
	policies map[Kind]config.RateLimitPolicy
	logger   *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewLimiter(client redis.Cmdable, cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	return &Limiter{
		client: client,
		policies: map[Kind]config.RateLimitPolicy{
			KindUsername: cfg.Username,
			KindOrigin:   cfg.Origin,
		},
		logger: logger,
		now:    time.Now,
	}
}

func (l *Limiter) policy(kind Kind) config.RateLimitPolicy {
	if p, ok := l.policies[kind]; ok {
		return p
	}
	return l.policies[KindUsername]
}

func key(kind Kind, identifier string) string {
	return keyPrefix + string(kind) + ":" + strings.ToLower(identifier)
}

// Check evaluates the pair without recording anything. The check order is
// fixed: window expiry first, then active lock, then expired lock, then the
// attempt counter. Window expiry is deliberately evaluated before the lock:
// with window and lock tuned to the same duration the difference is masked,
// but an idle record whose window lapsed is reset even if its lock has not
// run out. See DESIGN.md before changing this.
func (l *Limiter) Check(ctx context.Context, kind Kind, identifier string) (Status, error) {
	p := l.policy(kind)
	k := key(kind, identifier)

	raw, err := l.client.Get(ctx, k).Result()
	if err == redis.Nil {
		return Status{AttemptsRemaining: p.MaxAttempts}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to read rate limit record: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Unreadable record: drop it rather than lock everyone out.
		l.logger.Warn("Dropping corrupt rate limit record", zap.String("key", k), zap.Error(err))
		_ = l.client.Del(ctx, k).Err()
		return Status{AttemptsRemaining: p.MaxAttempts}, nil
	}

	now := l.now()
	windowEnd := time.Unix(rec.WindowStart, 0).Add(p.Window)

	if now.After(windowEnd) {
		if err := l.client.Del(ctx, k).Err(); err != nil {
			return Status{}, fmt.Errorf("failed to reset rate limit record: %w", err)
		}
		return Status{AttemptsRemaining: p.MaxAttempts}, nil
	}

	if rec.LockedUntil != 0 {
		lockedUntil := time.Unix(rec.LockedUntil, 0)
		if now.Before(lockedUntil) {
			return Status{
				Blocked:          true,
				LockedUntil:      &lockedUntil,
				MinutesRemaining: util.MinutesUntil(now, lockedUntil),
			}, nil
		}
		if err := l.client.Del(ctx, k).Err(); err != nil {
			return Status{}, fmt.Errorf("failed to reset rate limit record: %w", err)
		}
		return Status{AttemptsRemaining: p.MaxAttempts}, nil
	}

	remaining := p.MaxAttempts - rec.Attempts
	if remaining <= 0 {
		lockedUntil := now.Add(p.LockDuration)
		rec.LockedUntil = lockedUntil.Unix()
		buf, err := json.Marshal(rec)
		if err != nil {
			return Status{}, fmt.Errorf("failed to encode rate limit record: %w", err)
		}
		if err := l.client.Set(ctx, k, buf, p.Window+p.LockDuration).Err(); err != nil {
			return Status{}, fmt.Errorf("failed to lock rate limit record: %w", err)
		}
		return Status{
			Blocked:          true,
			LockedUntil:      &lockedUntil,
			MinutesRemaining: int(p.LockDuration.Minutes()),
		}, nil
	}

	return Status{AttemptsRemaining: remaining}, nil
}

// RecordFailure registers one failed attempt. Creation, increment, and the
// Tracking-to-Locked transition run inside a single Lua script.
func (l *Limiter) RecordFailure(ctx context.Context, kind Kind, identifier string) error {
	p := l.policy(kind)
	ttl := int64((p.Window + p.LockDuration).Seconds())

	attempts, err := recordFailureScript.Run(ctx, l.client,
		[]string{key(kind, identifier)},
		l.now().Unix(),
		p.MaxAttempts,
		int64(p.LockDuration.Seconds()),
		ttl,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	l.logger.Debug("Rate limit attempt recorded",
		util.String("kind", string(kind)),
		util.Int("attempts", int(attempts)),
	)
	return nil
}

// Reset deletes the record, returning the pair to the open state. Called on
// any successful authentication.
func (l *Limiter) Reset(ctx context.Context, kind Kind, identifier string) error {
	if err := l.client.Del(ctx, key(kind, identifier)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit record: %w", err)
	}
	return nil
}

// Sweep deletes records whose window and lock have both elapsed. Key TTLs are
// the backstop; the sweep keeps the working set small between expirations.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	var cleaned int
	var cursor uint64

	for {
		keys, next, err := l.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return cleaned, fmt.Errorf("failed to scan rate limit records: %w", err)
		}

		for _, k := range keys {
			kind := kindFromKey(k)
			p := l.policy(kind)

			raw, err := l.client.Get(ctx, k).Result()
			if err != nil {
				continue
			}
			var rec record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				_ = l.client.Del(ctx, k).Err()
				cleaned++
				continue
			}

			now := l.now()
			windowElapsed := now.After(time.Unix(rec.WindowStart, 0).Add(p.Window))
			lockElapsed := rec.LockedUntil == 0 || now.After(time.Unix(rec.LockedUntil, 0))
			if windowElapsed && lockElapsed {
				if err := l.client.Del(ctx, k).Err(); err == nil {
					cleaned++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return cleaned, nil
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleaned, err := l.Sweep(ctx)
				if err != nil {
					l.logger.Warn("Rate limit sweep failed", util.ErrorField(err))
					continue
				}
				if cleaned > 0 {
					l.logger.Info("Rate limit sweep completed", util.Int("records_cleaned", cleaned))
				}
			}
		}
	}()
}

func kindFromKey(k string) Kind {
	rest := strings.TrimPrefix(k, keyPrefix)
	if idx := strings.IndexByte(rest, ':'); idx > 0 {
		return Kind(rest[:idx])
	}
	return KindUsername
}
