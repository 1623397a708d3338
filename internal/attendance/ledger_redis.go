package attendance

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const (
	redisCheckedInKey = "schedoosh:ledger:checkedin"
	redisMissedKey    = "schedoosh:ledger:missed"
)

// RedisLedger stores the two occurrence-key sets as Redis sets, so they
// survive process restarts. Record calls assume the engine's single-writer
// discipline: the membership check and the add are not one atomic step.
type RedisLedger struct {
	client       *redis.Client
	checkedInKey string
	missedKey    string
}

// NewRedisLedger builds a ledger over the given client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client:       client,
		checkedInKey: redisCheckedInKey,
		missedKey:    redisMissedKey,
	}
}

func (l *RedisLedger) Resolution(ctx context.Context, key string) (Resolution, error) {
	in, err := l.client.SIsMember(ctx, l.checkedInKey, key).Result()
	if err != nil {
		return ResolvedNone, err
	}
	if in {
		return ResolvedCheckedIn, nil
	}
	missed, err := l.client.SIsMember(ctx, l.missedKey, key).Result()
	if err != nil {
		return ResolvedNone, err
	}
	if missed {
		return ResolvedMissed, nil
	}
	return ResolvedNone, nil
}

func (l *RedisLedger) RecordCheckedIn(ctx context.Context, key string) error {
	return l.record(ctx, l.checkedInKey, key)
}

func (l *RedisLedger) RecordMissed(ctx context.Context, key string) error {
	return l.record(ctx, l.missedKey, key)
}

func (l *RedisLedger) record(ctx context.Context, set, key string) error {
	res, err := l.Resolution(ctx, key)
	if err != nil {
		return err
	}
	if res != ResolvedNone {
		return ErrAlreadyResolved
	}
	return l.client.SAdd(ctx, set, key).Err()
}

func (l *RedisLedger) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.checkedInKey, l.missedKey).Err()
}

func (l *RedisLedger) PruneBefore(ctx context.Context, cutoff string) error {
	for _, set := range []string{l.checkedInKey, l.missedKey} {
		members, err := l.client.SMembers(ctx, set).Result()
		if err != nil {
			return err
		}
		var stale []any
		for _, key := range members {
			d, ok := KeyDate(key)
			if !ok || d < cutoff {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			if err := l.client.SRem(ctx, set, stale...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
