package ratelimiter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"
)

// unlimited is used in place of rate.Inf, which reports zero tokens.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket. A zero rate means unlimited.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter admitting requestsPerSecond sustained and up to
// burst at once.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Keyed keeps one bucket per client key (typically the caller identity)
// on top of an optional global bucket.
type Keyed struct {
	global    *RateLimiter
	perClient uint
	burst     uint
	idle      time.Duration
	buckets   *xsync.Map[string, *clientBucket]
}

type clientBucket struct {
	limiter  *RateLimiter
	lastSeen atomic.Int64
}

// NewKeyed creates a keyed limiter. globalRPS and perClientRPS of zero
// disable the respective limit. Buckets unused for idle are dropped by Sweep.
func NewKeyed(globalRPS, perClientRPS, burst uint, idle time.Duration) *Keyed {
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &Keyed{
		global:    New(globalRPS, burst),
		perClient: perClientRPS,
		burst:     burst,
		idle:      idle,
		buckets:   xsync.NewMap[string, *clientBucket](),
	}
}

// Allow reports whether a request from key may proceed.
func (k *Keyed) Allow(key string) bool {
	if k.perClient > 0 {
		b, _ := k.buckets.LoadOrCompute(key, func() (*clientBucket, bool) {
			return &clientBucket{limiter: New(k.perClient, k.burst)}, false
		})
		b.touch(time.Now())
		if !b.limiter.Allow() {
			return false
		}
	}
	return k.global.Allow()
}

// Tokens returns the tokens left for key: the smaller of its own bucket and
// the global one.
func (k *Keyed) Tokens(key string) float64 {
	tokens := k.global.Tokens()
	if b, ok := k.buckets.Load(key); ok {
		tokens = min(tokens, b.limiter.Tokens())
	}
	return tokens
}

// Clients returns the number of tracked client buckets.
func (k *Keyed) Clients() int {
	return k.buckets.Size()
}

// Sweep drops buckets idle since before now-idle and returns how many.
func (k *Keyed) Sweep(now time.Time) int {
	cutoff := now.Add(-k.idle).UnixNano()
	dropped := 0
	k.buckets.Range(func(key string, b *clientBucket) bool {
		if b.lastSeen.Load() < cutoff {
			k.buckets.Delete(key)
			dropped++
		}
		return true
	})
	return dropped
}

func (b *clientBucket) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}
