// Copyright 2026 The CyberVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates the in-process limiter enforces the burst per client.
// Scope: Unit Test
// Security: Request flooding protection
// Expected: The burst passes, the next request gets 429, other clients are unaffected.
// Test Case ID: HTTP-RL-01
func TestRateLimitMiddleware_InProcess(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()

	h := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1:1000"))
	assert.Equal(t, http.StatusOK, send("192.0.2.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1:1002"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2:1000"))
}

func newRedisLimiter(t *testing.T, limit int) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, limit, time.Minute), mr
}

// TestPurpose: Validates the Redis limiter counts per key within a window.
// Scope: Unit Test (miniredis)
// Security: Shared rate limiting across instances
// Expected: limit requests pass, the next is refused, a new window resets the count.
// Test Case ID: HTTP-RL-02
func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	rl, mr := newRedisLimiter(t, 2)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "203.0.113.9")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))

	now = now.Add(time.Minute)
	ok, err = rl.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestPurpose: Validates the Redis limiter fails open when Redis is unreachable.
// Scope: Unit Test (miniredis)
// Security: Availability over strict throttling; the failure is reported
// Expected: The request is allowed and an error is returned.
// Test Case ID: HTTP-RL-03
func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	rl, mr := newRedisLimiter(t, 1)
	mr.Close()

	ok, err := rl.Allow(context.Background(), "203.0.113.9")
	assert.Error(t, err)
	assert.True(t, ok)
}
