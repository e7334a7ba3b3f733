// Package rate limita intentos por ventana fija sobre el cache compartido.
// El gateway lo usa para frenar fuerza bruta en login y registro.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/gateway/internal/cache"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// WindowLimiter: fixed window sencillo (INCR + EXPIRE) sobre cache.Client.
type WindowLimiter struct {
	store  cache.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewWindowLimiter(store cache.Client, prefix string, max int, window time.Duration) *WindowLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{store: store, prefix: prefix, max: int64(max), window: window, now: time.Now}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now().UTC()
	winStart := now.Truncate(l.window)
	k := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	hits, err := l.store.Incr(ctx, k, l.window)
	if err != nil {
		return Result{}, err
	}

	ttl := winStart.Add(l.window).Sub(now)
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
