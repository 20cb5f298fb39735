package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestTokenBucket_Allow_Basic(t *testing.T) {
	tb := NewTokenBucket(5, time.Millisecond*100)

	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	if tb.Allow() {
		t.Fatal("6th request should be denied")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	tb := NewTokenBucket(1, time.Millisecond*50)

	if !tb.Allow() {
		t.Fatal("first request should be allowed")
	}
	if tb.Allow() {
		t.Fatal("second request should be denied immediately")
	}

	time.Sleep(time.Millisecond * 60)

	if !tb.Allow() {
		t.Fatal("request should be allowed after refill")
	}
}

func TestTokenBucket_MaxCapacity(t *testing.T) {
	tb := NewTokenBucket(3, time.Millisecond*100)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	time.Sleep(time.Millisecond * 350)

	allowedCount := 0
	for i := 0; i < 5; i++ {
		if tb.Allow() {
			allowedCount++
		}
	}

	if allowedCount != 3 {
		t.Fatalf("expected 3 requests allowed after refill, got %d", allowedCount)
	}
}

func TestEndpointKeyIsolatesRoutes(t *testing.T) {
	if EndpointKey("/restful/stats", "10.0.0.1") == EndpointKey("/restful/health", "10.0.0.1") {
		t.Fatal("distinct admin routes must not share a bucket key for the same caller")
	}
	if EndpointKey("/restful/stats", "10.0.0.1") == EndpointKey("/restful/stats", "10.0.0.2") {
		t.Fatal("distinct callers must not share a bucket key for the same route")
	}
}

func TestClientLimiter_AllowPerRouteKey(t *testing.T) {
	cl := NewClientLimiter(2, time.Second)
	statsKey := EndpointKey("/restful/stats", "127.0.0.1")
	otherKey := EndpointKey("/restful/other", "127.0.0.1")

	if !cl.Allow(statsKey) {
		t.Fatal("first stats request should be allowed")
	}
	if !cl.Allow(statsKey) {
		t.Fatal("second stats request should be allowed")
	}
	if cl.Allow(statsKey) {
		t.Fatal("third stats request should be denied")
	}

	// A different route for the same caller has its own bucket.
	if !cl.Allow(otherKey) {
		t.Fatal("first request against a different route should be allowed")
	}
}

func TestClientLimiter_Concurrent(t *testing.T) {
	cl := NewClientLimiter(100, time.Millisecond)

	var wg sync.WaitGroup
	allowed := make(chan bool, 1000)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			key := EndpointKey("/restful/stats", string(rune(clientID)))
			for j := 0; j < 100; j++ {
				allowed <- cl.Allow(key)
			}
		}(i)
	}

	wg.Wait()
	close(allowed)

	count := 0
	for range allowed {
		count++
	}

	if count != 1000 {
		t.Fatalf("expected 1000 total requests, got %d", count)
	}
}

func TestClientLimiter_Cleanup(t *testing.T) {
	cl := NewClientLimiter(1, time.Second)

	for i := 0; i < 100; i++ {
		cl.Allow(EndpointKey("/restful/stats", string(rune(i))))
	}

	cl.Cleanup(time.Hour)

	if !cl.Allow(EndpointKey("/restful/stats", "new_client")) {
		t.Fatal("new client should be allowed after cleanup")
	}
}

func TestClientLimiter_CleanupTrigger(t *testing.T) {
	cl := NewClientLimiter(1, time.Second)

	for i := 0; i < 10001; i++ {
		cl.Allow(EndpointKey("/restful/stats", string(rune(i%1000))))
	}

	cl.Cleanup(time.Hour)

	if !cl.Allow(EndpointKey("/restful/stats", "new_client")) {
		t.Fatal("new client should be allowed after cleanup")
	}
}
