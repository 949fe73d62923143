package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rl := NewRateLimiter(0)
		assert.Nil(t, rl)

		ok, _ := rl.Allow("1.2.3.4")
		assert.True(t, ok)
		rl.Stop()
	})

	t.Run("burst then limited", func(t *testing.T) {
		rl := NewRateLimiter(2)
		defer rl.Stop()

		ok, _ := rl.Allow("1.2.3.4")
		assert.True(t, ok)
		ok, _ = rl.Allow("1.2.3.4")
		assert.True(t, ok)

		ok, retry := rl.Allow("1.2.3.4")
		assert.False(t, ok)
		assert.Greater(t, retry, time.Duration(0))
		assert.LessOrEqual(t, retry, 30*time.Second)
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := NewRateLimiter(1)
		defer rl.Stop()

		ok, _ := rl.Allow("a")
		assert.True(t, ok)
		ok, _ = rl.Allow("b")
		assert.True(t, ok)
		ok, _ = rl.Allow("a")
		assert.False(t, ok)
	})

	t.Run("cleanup forgets idle keys", func(t *testing.T) {
		rl := NewRateLimiter(1)
		defer rl.Stop()

		rl.Allow("a")
		rl.cleanup(time.Now().Add(limiterIdleTTL + time.Minute))

		rl.mu.Lock()
		assert.Empty(t, rl.visitors)
		rl.mu.Unlock()
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		rl := NewRateLimiter(1)
		rl.Stop()
		rl.Stop()
	})
}
