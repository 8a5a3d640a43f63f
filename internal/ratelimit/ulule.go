package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Ulule adapts a ulule/limiter store to the Limiter interface. It uses fixed
// windows, which is enough for a single process without Redis.
type Ulule struct {
	Store limiter.Store

	mu        sync.Mutex
	instances map[rateKey]*limiter.Limiter
}

type rateKey struct {
	window time.Duration
	max    int
}

// NewMemoryUlule returns an in-process limiter.
func NewMemoryUlule() *Ulule {
	return &Ulule{Store: memory.NewStore()}
}

// NewRedisUlule returns a limiter sharing counters through Redis.
func NewRedisUlule(client redis.UniversalClient, prefix string) (*Ulule, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	return &Ulule{Store: store}, nil
}

// Allow implements Limiter.
func (u *Ulule) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	if u.Store == nil {
		return false, 0, time.Now(), errors.New("ratelimit: ulule store not configured")
	}
	lctx, err := u.instance(window, max).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}

func (u *Ulule) instance(window time.Duration, max int) *limiter.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()
	k := rateKey{window: window, max: max}
	if l, ok := u.instances[k]; ok {
		return l
	}
	if u.instances == nil {
		u.instances = make(map[rateKey]*limiter.Limiter)
	}
	l := limiter.New(u.Store, limiter.Rate{Period: window, Limit: int64(max)})
	u.instances[k] = l
	return l
}
