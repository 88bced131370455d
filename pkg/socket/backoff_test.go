package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedDelay(t *testing.T) {
	p := FixedDelay(3 * time.Second)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 3*time.Second, p.Next())
	}
	p.Reset()
	assert.Equal(t, 3*time.Second, p.Next())
}

func TestBackoff(t *testing.T) {
	t.Run("Sequence", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: time.Second, Max: 10 * time.Second})

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			10 * time.Second,
			10 * time.Second,
		}
		for i, exp := range expected {
			assert.Equal(t, exp, b.Next(), "attempt %d", i)
		}
		assert.Equal(t, len(expected), b.Attempts())
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: time.Second, Jitter: DefaultJitter})
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, time.Duration(float64(time.Second)*(1+DefaultJitter)))
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: 100 * time.Millisecond})
		b.Next()
		b.Next()
		assert.Equal(t, 400*time.Millisecond, b.Current())

		b.Reset()
		assert.Equal(t, 100*time.Millisecond, b.Current())
		assert.Zero(t, b.Attempts())
	})

	t.Run("Defaults", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Max: time.Millisecond, Multiplier: 0.5})
		assert.Equal(t, DefaultReconnectDelay, b.Current())
		assert.Equal(t, DefaultReconnectDelay, b.Next(), "max is raised to initial")
	})
}
