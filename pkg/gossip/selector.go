package gossip

import "math/rand/v2"

// peerSelector picks the gossip partners for one period. Selection follows
// the classic three-bucket scheme:
//
//  1. one round with a random live peer,
//  2. with probability dead/(live+1), one round with a random unreachable
//     peer, so expected reprobes scale with the unreachable fraction,
//  3. with probability 1/(live+1) (always when no live peer exists), one
//     round with a random seed that is not already targeted.
type peerSelector struct {
	rng   *rand.Rand
	seeds []NodeID
}

func newPeerSelector(rng *rand.Rand, seeds []NodeID) *peerSelector {
	return &peerSelector{rng: rng, seeds: seeds}
}

// targets returns the peers to initiate rounds with this period, at most
// three, never containing the local node or duplicates.
func (s *peerSelector) targets(local NodeID, live, unreachable []NodeID) []NodeID {
	candidates := make([]NodeID, 0, len(live))
	for _, id := range live {
		if id != local {
			candidates = append(candidates, id)
		}
	}

	targets := make([]NodeID, 0, 3)
	targeted := make(map[NodeID]struct{}, 3)

	liveCount := len(candidates)
	if liveCount > 0 {
		peer := candidates[s.rng.IntN(liveCount)]
		targets = append(targets, peer)
		targeted[peer] = struct{}{}
	}

	if n := len(unreachable); n > 0 {
		if s.rng.Float64() < float64(n)/float64(liveCount+1) {
			peer := unreachable[s.rng.IntN(n)]
			if _, ok := targeted[peer]; !ok {
				targets = append(targets, peer)
				targeted[peer] = struct{}{}
			}
		}
	}

	seedCandidates := make([]NodeID, 0, len(s.seeds))
	for _, seed := range s.seeds {
		if seed == local {
			continue
		}
		if _, ok := targeted[seed]; ok {
			continue
		}
		seedCandidates = append(seedCandidates, seed)
	}

	if len(seedCandidates) > 0 {
		if liveCount == 0 || s.rng.Float64() < 1/float64(liveCount+1) {
			targets = append(targets, seedCandidates[s.rng.IntN(len(seedCandidates))])
		}
	}

	return targets
}
