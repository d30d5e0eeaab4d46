package gossip

import (
	"math/rand/v2"
	"time"
)

type Option func(*Gossiper)

// WithGossipInterval sets the gossip period.
func WithGossipInterval(interval time.Duration) Option {
	return func(g *Gossiper) { g.interval = interval }
}

// WithRoundTimeout sets the soft deadline after which an unfinished round is
// abandoned.
func WithRoundTimeout(timeout time.Duration) Option {
	return func(g *Gossiper) { g.roundTimeout = timeout }
}

// WithSeed adds seed peers contacted probabilistically each period and
// always when no live peer is known.
func WithSeed(seeds ...NodeID) Option {
	return func(g *Gossiper) { g.seeds = append(g.seeds, seeds...) }
}

// WithAdvertiseAddr sets the answer address carried in the packet envelope.
// Defaults to the node id.
func WithAdvertiseAddr(addr string) Option {
	return func(g *Gossiper) { g.answerAddr = addr }
}

// WithPhiThreshold sets the accrual suspicion level above which a peer is
// marked down.
func WithPhiThreshold(threshold float64) Option {
	return func(g *Gossiper) { g.phiThreshold = threshold }
}

// WithDetectorWindowSize bounds the failure detector's inter-arrival window.
func WithDetectorWindowSize(size int) Option {
	return func(g *Gossiper) { g.windowSize = size }
}

// WithDetectorMinSamples sets how many heartbeat inter-arrival intervals
// (arrivals after the first) must be recorded before a peer can accrue
// suspicion.
func WithDetectorMinSamples(n int) Option {
	return func(g *Gossiper) { g.minSamples = n }
}

// WithGenerationFloor feeds back a persisted generation: the new incarnation
// starts strictly above it even when the clock has not moved a full second
// since the previous boot.
func WithGenerationFloor(floor int64) Option {
	return func(g *Gossiper) { g.generationFloor = floor }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gossiper) { g.now = now }
}

// WithRand substitutes the random source, for tests. The default source is
// seeded per gossiper from process-wide entropy.
func WithRand(rng *rand.Rand) Option {
	return func(g *Gossiper) { g.rng = rng }
}

// WithMailboxDepth sets the executor mailbox capacity.
func WithMailboxDepth(depth int) Option {
	return func(g *Gossiper) { g.mailbox = make(chan event, depth) }
}
