package failuredetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectorAvailableWithRegularHeartbeats(t *testing.T) {
	d := NewDetector(Config{})
	now := time.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		d.OnHeartbeat(now)
	}
	assert.True(t, d.IsAvailableAt(now.Add(time.Second)))
}

func TestDetectorSuspectsAfterLongSilence(t *testing.T) {
	d := NewDetector(Config{FailureInterval: time.Millisecond})
	now := time.Now()
	for i := 0; i < 10; i++ {
		now = now.Add(100 * time.Millisecond)
		d.OnHeartbeat(now)
	}
	later := now.Add(30 * time.Second)
	assert.False(t, d.IsAvailableAt(later))
}

func TestDetectorOnFailureMarksUnavailable(t *testing.T) {
	d := NewDetector(Config{FailureInterval: time.Second})
	now := time.Now()
	d.OnHeartbeat(now)
	d.OnFailure(now)
	assert.False(t, d.IsAvailableAt(now))
	assert.True(t, d.IsAvailableAt(now.Add(2*time.Second)))
}
