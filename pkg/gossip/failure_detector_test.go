package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	at time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{at: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.at
}

func (c *fakeClock) Advance(d time.Duration) {
	c.at = c.at.Add(d)
}

func TestDetectorReportsNoSuspicionWithoutSamples(t *testing.T) {
	t.Helper()
	t.Parallel()

	clock := newFakeClock()
	d := NewFailureDetector(DefaultDetectorWindowSize, 3, clock.Now)

	assert.Zero(t, d.Suspicion("a:1"))

	d.NotifyHeartbeat("a:1", clock.Now())
	clock.Advance(time.Second)
	d.NotifyHeartbeat("a:1", clock.Now())

	// Two arrivals produce a single interval, below the minimum sample
	// count, so the node stays unsuspected no matter how long it is quiet.
	clock.Advance(time.Hour)
	assert.Zero(t, d.Suspicion("a:1"))
}

func TestDetectorSuspicionGrowsWhileQuiet(t *testing.T) {
	t.Helper()
	t.Parallel()

	clock := newFakeClock()
	d := NewFailureDetector(DefaultDetectorWindowSize, 3, clock.Now)

	for i := 0; i < 10; i++ {
		d.NotifyHeartbeat("a:1", clock.Now())
		clock.Advance(time.Second)
	}

	// Fresh after the last arrival: barely suspicious.
	fresh := d.Suspicion("a:1")
	assert.Less(t, fresh, DefaultPhiThreshold)

	// Quiet for twenty mean intervals: well past the default threshold.
	clock.Advance(20 * time.Second)
	quiet := d.Suspicion("a:1")
	assert.Greater(t, quiet, fresh)
	assert.Greater(t, quiet, DefaultPhiThreshold)
}

func TestDetectorRecoversOnFreshHeartbeat(t *testing.T) {
	t.Helper()
	t.Parallel()

	clock := newFakeClock()
	d := NewFailureDetector(DefaultDetectorWindowSize, 3, clock.Now)

	for i := 0; i < 10; i++ {
		d.NotifyHeartbeat("a:1", clock.Now())
		clock.Advance(time.Second)
	}

	clock.Advance(30 * time.Second)
	assert.Greater(t, d.Suspicion("a:1"), DefaultPhiThreshold)

	d.NotifyHeartbeat("a:1", clock.Now())
	assert.Less(t, d.Suspicion("a:1"), DefaultPhiThreshold)
}

func TestDetectorForget(t *testing.T) {
	t.Helper()
	t.Parallel()

	clock := newFakeClock()
	d := NewFailureDetector(DefaultDetectorWindowSize, 3, clock.Now)

	for i := 0; i < 5; i++ {
		d.NotifyHeartbeat("a:1", clock.Now())
		clock.Advance(time.Second)
	}

	clock.Advance(time.Hour)
	assert.Greater(t, d.Suspicion("a:1"), DefaultPhiThreshold)

	d.Forget("a:1")
	assert.Zero(t, d.Suspicion("a:1"))
}
