package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ConsecutiveFailures(t *testing.T) {
	var b Backoff

	// min(2^(n-1), 30) seconds
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for n, w := range want {
		assert.Equal(t, w*time.Second, b.Next(), "failure %d", n+1)
	}
	assert.Equal(t, uint32(len(want)), b.Attempts())

	b.Reset()
	assert.Zero(t, b.Attempts())
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoff_CustomBounds(t *testing.T) {
	b := New(200*time.Millisecond, 1500*time.Millisecond)

	assert.Equal(t, 200*time.Millisecond, b.Next())
	assert.Equal(t, 400*time.Millisecond, b.Next())
	assert.Equal(t, 800*time.Millisecond, b.Next())
	assert.Equal(t, 1500*time.Millisecond, b.Next())
	assert.Equal(t, 1500*time.Millisecond, b.Next())
}

func TestDelay_LargeAttemptDoesNotOverflow(t *testing.T) {
	assert.Equal(t, DefaultCap, Delay(DefaultBase, DefaultCap, 200))
	assert.Equal(t, DefaultBase, Delay(DefaultBase, DefaultCap, 0))
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Minute), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
