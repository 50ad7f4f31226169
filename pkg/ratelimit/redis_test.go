package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, window), mr
}

func TestRedisLimiterCountsPerKey(t *testing.T) {
	l, _ := newRedisLimiter(t, time.Minute)

	for i := 1; i <= 2; i++ {
		d := l.Allow("user-a", 2)
		if !d.Allowed || d.Count != i {
			t.Fatalf("request %d decision = %+v", i, d)
		}
	}
	if d := l.Allow("user-a", 2); d.Allowed {
		t.Fatal("third request should be denied")
	}
	if d := l.Allow("user-b", 2); !d.Allowed {
		t.Fatal("other key should have its own window")
	}
}

func TestRedisLimiterWindowExpires(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Minute)

	l.Allow("user-a", 1)
	if d := l.Allow("user-a", 1); d.Allowed {
		t.Fatal("second request should be denied")
	}
	mr.FastForward(2 * time.Minute)
	if d := l.Allow("user-a", 1); !d.Allowed {
		t.Fatal("request after expiry should be allowed")
	}
}

func TestRedisLimiterFallsBackWithoutClient(t *testing.T) {
	l := NewRedis(nil, time.Minute)
	if d := l.Allow("user-a", 1); !d.Allowed {
		t.Fatalf("decision = %+v", d)
	}
	if d := l.Allow("user-a", 1); d.Allowed {
		t.Fatal("fallback limiter should still enforce the limit")
	}
}

func TestRedisLimiterFallsBackOnBrokenConnection(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedis(client, time.Minute)
	mr.Close()

	if d := l.Allow("user-a", 1); !d.Allowed {
		t.Fatalf("decision = %+v, want in-memory fallback to allow", d)
	}
	if d := l.Allow("user-a", 1); d.Allowed {
		t.Fatal("fallback must keep counting")
	}
}

func TestRedisLimiterUsesPrefix(t *testing.T) {
	l, mr := newRedisLimiter(t, time.Minute)
	l.Allow("user-a", 5)
	if !mr.Exists("todo:rl:user-a") {
		t.Fatalf("expected prefixed key, have %v", mr.Keys())
	}
}
