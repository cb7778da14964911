package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultBuffer is how long before expiry a cached token stops being
// handed out, so a token cannot lapse mid-flight during a long call.
const DefaultBuffer = 300 * time.Second

// Authenticator runs one full authentication attempt.
type Authenticator interface {
	Authenticate(ctx context.Context) (Token, error)
}

// Cache is the process-wide single-slot token cache. The mutex spans the
// refresh, so concurrent misses coalesce into one exchange: waiters block
// until the winner has replaced the slot, then reuse it.
type Cache struct {
	mu     sync.Mutex
	auth   Authenticator
	buffer time.Duration
	tok    Token
}

// NewCache wraps auth with a cache. A non-positive buffer takes
// DefaultBuffer.
func NewCache(auth Authenticator, buffer time.Duration) *Cache {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Cache{auth: auth, buffer: buffer}
}

// Token returns a bearer token that stays valid for at least the buffer
// window. A cache hit performs no network I/O.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok.Value != "" && timeNow().Add(c.buffer).Before(c.tok.AbsoluteExpiry) {
		return c.tok.Value, nil
	}
	tok, err := c.auth.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.tok = tok
	return tok.Value, nil
}
