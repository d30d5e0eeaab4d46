package gossip

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestSelectorPicksOneLivePeer(t *testing.T) {
	t.Helper()
	t.Parallel()

	s := newPeerSelector(testRand(1), nil)

	live := []NodeID{"local:1", "b:1", "c:1"}
	for i := 0; i < 100; i++ {
		targets := s.targets("local:1", live, nil)
		require.Len(t, targets, 1)
		assert.NotEqual(t, NodeID("local:1"), targets[0])
	}
}

func TestSelectorNeverTargetsSelfOrDuplicates(t *testing.T) {
	t.Helper()
	t.Parallel()

	s := newPeerSelector(testRand(7), []NodeID{"seed:1", "local:1"})

	live := []NodeID{"local:1", "b:1"}
	unreachable := []NodeID{"d:1", "e:1"}

	for i := 0; i < 500; i++ {
		targets := s.targets("local:1", live, unreachable)
		assert.LessOrEqual(t, len(targets), 3)

		seen := make(map[NodeID]struct{}, len(targets))
		for _, peer := range targets {
			assert.NotEqual(t, NodeID("local:1"), peer)
			_, dup := seen[peer]
			assert.False(t, dup, "peer %s targeted twice", peer)
			seen[peer] = struct{}{}
		}
	}
}

func TestSelectorAlwaysContactsSeedWithoutLivePeers(t *testing.T) {
	t.Helper()
	t.Parallel()

	s := newPeerSelector(testRand(3), []NodeID{"seed:1"})

	for i := 0; i < 100; i++ {
		targets := s.targets("local:1", nil, nil)
		require.Len(t, targets, 1)
		assert.Equal(t, NodeID("seed:1"), targets[0])
	}
}

func TestSelectorReprobesUnreachableProportionally(t *testing.T) {
	t.Helper()
	t.Parallel()

	s := newPeerSelector(testRand(11), nil)

	live := []NodeID{"b:1"}
	unreachable := []NodeID{"d:1"}

	// With 1 live and 1 unreachable peer the dead bucket fires with
	// probability dead/(live+1) = 1/2.
	const rounds = 2000
	deadProbes := 0
	for i := 0; i < rounds; i++ {
		for _, peer := range s.targets("local:1", live, unreachable) {
			if peer == "d:1" {
				deadProbes++
			}
		}
	}

	assert.InDelta(t, rounds/2, deadProbes, rounds/10)
}
