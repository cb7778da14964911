package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAuthenticator struct {
	mu    sync.Mutex
	calls int32
	delay time.Duration
	tok   Token
	err   error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context) (Token, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tok, f.err
}

func (f *fakeAuthenticator) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

func withFrozenClock(t *testing.T, at time.Time) func(time.Time) {
	t.Helper()
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = time.Now })
	return func(next time.Time) {
		timeNow = func() time.Time { return next }
	}
}

func TestCache_HitPerformsNoExchange(t *testing.T) {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	withFrozenClock(t, now)

	fake := &fakeAuthenticator{tok: Token{Value: "tok-1", AbsoluteExpiry: now.Add(time.Hour)}}
	c := NewCache(fake, 300*time.Second)

	for i := 0; i < 3; i++ {
		got, err := c.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if got != "tok-1" {
			t.Errorf("token = %q", got)
		}
	}
	if fake.callCount() != 1 {
		t.Errorf("exchanges = %d, want 1", fake.callCount())
	}
}

func TestCache_RefreshesInsideBufferWindow(t *testing.T) {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	advance := withFrozenClock(t, now)

	fake := &fakeAuthenticator{tok: Token{Value: "tok-1", AbsoluteExpiry: now.Add(400 * time.Second)}}
	c := NewCache(fake, 300*time.Second)

	if _, err := c.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	// expiry 400s out, buffer 300s: still a hit
	if _, err := c.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if fake.callCount() != 1 {
		t.Fatalf("exchanges = %d, want 1 before the buffer window", fake.callCount())
	}

	fake.mu.Lock()
	fake.tok = Token{Value: "tok-2", AbsoluteExpiry: now.Add(2 * time.Hour)}
	fake.mu.Unlock()
	advance(now.Add(200 * time.Second))

	got, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "tok-2" {
		t.Errorf("token = %q, want refreshed tok-2", got)
	}
	if fake.callCount() != 2 {
		t.Errorf("exchanges = %d, want 2", fake.callCount())
	}
}

func TestCache_BoundaryCountsAsMiss(t *testing.T) {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	withFrozenClock(t, now)

	// expiry exactly now+buffer: not strictly beyond, so refresh
	fake := &fakeAuthenticator{tok: Token{Value: "tok-1", AbsoluteExpiry: now.Add(300 * time.Second)}}
	c := NewCache(fake, 300*time.Second)

	c.tok = Token{Value: "stale", AbsoluteExpiry: now.Add(300 * time.Second)}
	got, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got != "tok-1" {
		t.Errorf("token = %q, want refreshed token at the boundary", got)
	}
	if fake.callCount() != 1 {
		t.Errorf("exchanges = %d, want 1", fake.callCount())
	}
}

func TestCache_FailureIsNotCached(t *testing.T) {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	withFrozenClock(t, now)

	fake := &fakeAuthenticator{err: errors.New("pool unreachable")}
	c := NewCache(fake, 0)

	if _, err := c.Token(context.Background()); err == nil {
		t.Fatal("Token succeeded, want error")
	}
	fake.mu.Lock()
	fake.err = nil
	fake.tok = Token{Value: "tok-1", AbsoluteExpiry: now.Add(time.Hour)}
	fake.mu.Unlock()

	got, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after recovery: %v", err)
	}
	if got != "tok-1" {
		t.Errorf("token = %q", got)
	}
	if fake.callCount() != 2 {
		t.Errorf("exchanges = %d, want 2", fake.callCount())
	}
}

func TestCache_ConcurrentMissesCoalesce(t *testing.T) {
	now := time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)
	withFrozenClock(t, now)

	fake := &fakeAuthenticator{
		delay: 50 * time.Millisecond,
		tok:   Token{Value: "tok-1", AbsoluteExpiry: now.Add(time.Hour)},
	}
	c := NewCache(fake, 300*time.Second)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.Token(context.Background())
			if err != nil {
				t.Errorf("Token: %v", err)
				return
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()

	if fake.callCount() != 1 {
		t.Errorf("exchanges = %d, want 1 for %d concurrent misses", fake.callCount(), callers)
	}
	for i, tok := range results {
		if tok != "tok-1" {
			t.Errorf("caller %d got %q", i, tok)
		}
	}
}
