package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crmbot/internal/domain"
	"crmbot/internal/storage"
	logx "crmbot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

// Ledger suppresses repeated reminders for the same task deadline across
// overlapping offset windows. Implementations fail open: when the backing
// store is unavailable Acquire reports true.
type Ledger interface {
	// Acquire returns true if key was not claimed yet and claims it.
	Acquire(ctx context.Context, key string) bool
	// Release drops a claim (used when the send failed).
	Release(ctx context.Context, key string)
}

// ReminderKey identifies one deadline of one task. A moved due date yields a new key.
func ReminderKey(t domain.Task) string {
	return fmt.Sprintf("reminder:%d:%d", t.ID, t.DueDate.Unix())
}

// NoLedger keeps no state: every matching window sends.
type NoLedger struct{}

func (NoLedger) Acquire(context.Context, string) bool { return true }
func (NoLedger) Release(context.Context, string)      {}

// StoreLedger keeps claims in the storage dedup table.
type StoreLedger struct {
	store storage.DedupStore
	ttl   time.Duration
	now   func() time.Time
	log   logx.Logger
}

func NewStoreLedger(store storage.DedupStore, ttl time.Duration, log logx.Logger) *StoreLedger {
	return &StoreLedger{store: store, ttl: ttl, now: time.Now, log: log}
}

func (l *StoreLedger) Acquire(ctx context.Context, key string) bool {
	now := l.now()
	until, ok, err := l.store.GetDedup(ctx, key)
	if err != nil {
		l.log.Warn("reminder ledger read failed, sending anyway", logx.String("key", key), logx.Err(err))
		return true
	}
	if ok && until.After(now) {
		return false
	}
	if err := l.store.PutDedup(ctx, key, now.Add(l.ttl)); err != nil {
		l.log.Warn("reminder ledger write failed", logx.String("key", key), logx.Err(err))
	}
	return true
}

func (l *StoreLedger) Release(ctx context.Context, key string) {
	if err := l.store.PutDedup(ctx, key, time.UnixMilli(0)); err != nil {
		l.log.Warn("reminder ledger release failed", logx.String("key", key), logx.Err(err))
	}
}

// RedisLedger claims keys with SETNX and a TTL.
type RedisLedger struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    logx.Logger
}

func NewRedisLedger(rdb redis.Cmdable, ttl time.Duration, log logx.Logger) *RedisLedger {
	return &RedisLedger{rdb: rdb, ttl: ttl, prefix: "crmbot:", log: log}
}

func (l *RedisLedger) Acquire(ctx context.Context, key string) bool {
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, 1, l.ttl).Result()
	if err != nil {
		l.log.Warn("reminder ledger unavailable, sending anyway", logx.String("key", key), logx.Err(err))
		return true
	}
	return ok
}

func (l *RedisLedger) Release(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, l.prefix+key).Err(); err != nil {
		l.log.Warn("reminder ledger release failed", logx.String("key", key), logx.Err(err))
	}
}

// LedgerConfig selects a ledger implementation.
type LedgerConfig struct {
	Kind string // none | store | redis
	TTL  time.Duration
}

// NewLedger builds the configured ledger. store and rdb may be nil when the
// kind does not need them.
func NewLedger(cfg LedgerConfig, store storage.DedupStore, rdb redis.Cmdable, log logx.Logger) (Ledger, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 48 * time.Hour
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "none":
		return NoLedger{}, nil
	case "store":
		if store == nil {
			return nil, fmt.Errorf("reminder ledger %q needs storage", cfg.Kind)
		}
		return NewStoreLedger(store, cfg.TTL, log), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("reminder ledger %q needs a redis client", cfg.Kind)
		}
		return NewRedisLedger(rdb, cfg.TTL, log), nil
	default:
		return nil, fmt.Errorf("unknown reminder ledger %q", cfg.Kind)
	}
}
