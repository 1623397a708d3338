package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared Redis handle. Timeouts stay short; go-redis stretches
// the read deadline itself for blocking commands like BRPOP.
type Redis struct {
	*redis.Client
}

// NewRedis builds a client for addr. Connectivity is not checked here; the
// health endpoint reports it instead, so the API can start while Redis is
// still coming up.
func NewRedis(addr string) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})}
}

// Healthy reports whether Redis answers a ping.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Ping(ctx).Err() == nil
}
