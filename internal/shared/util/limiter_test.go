package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_Burst(t *testing.T) {
	th := NewThrottle(10, 2)

	assert.Zero(t, th.Next(), "first rebuild")
	assert.Zero(t, th.Next(), "second rebuild within the burst")

	d := th.Next()
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 100*time.Millisecond)
}

func TestThrottle_Refills(t *testing.T) {
	th := NewThrottle(20, 1)
	assert.Zero(t, th.Next())

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, th.Next(), "a slot frees up after 50ms")
}

func TestThrottle_Unlimited(t *testing.T) {
	th := NewThrottle(0, 0)
	for range 100 {
		if d := th.Next(); d != 0 {
			t.Fatalf("expected no delay, got %v", d)
		}
	}
}
