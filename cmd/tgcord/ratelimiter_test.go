package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstTraffic(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("127.0.0.1") {
			allowed++
		}
	}

	assert.Equal(t, 10, allowed)
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(5, 50*time.Millisecond)
	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "Request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(ip))

	time.Sleep(60 * time.Millisecond)

	assert.True(t, rl.Allow(ip))
}

func TestRateLimiter_MultipleIPs(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	for _, ip := range []string{"192.168.1.1", "192.168.1.2", "192.168.1.3"} {
		assert.True(t, rl.Allow(ip))
		assert.True(t, rl.Allow(ip))
		assert.False(t, rl.Allow(ip), "Third request from %s should be limited", ip)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if rl.Allow("10.0.0.1") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
}

func TestRateLimiter_CleanupOldEntries(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}
	rl.mu.RLock()
	assert.Len(t, rl.requests, 100)
	rl.mu.RUnlock()

	time.Sleep(30 * time.Millisecond)
	rl.Allow("10.0.1.1")

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Len(t, rl.requests, 1)
}

func TestRateLimiter_ZeroLimit(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	assert.False(t, rl.Allow("127.0.0.1"))
}
