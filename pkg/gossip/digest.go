package gossip

import "math/rand/v2"

// Digest is the reconciliation summary for one node: its generation and the
// greatest version across its heartbeat and application state. Immutable
// once constructed; used only as message payload.
type Digest struct {
	NodeID     NodeID
	Generation int64
	MaxVersion int64
}

// DigestsFromSnapshot builds the digest list for a gossip round from a table
// snapshot. The list is shuffled so a peer receiving the SYN cannot infer
// local iteration order.
func DigestsFromSnapshot(snap TableSnapshot, rng *rand.Rand) []Digest {
	digests := make([]Digest, 0, len(snap))
	for id, state := range snap {
		digests = append(digests, Digest{
			NodeID:     id,
			Generation: state.Heartbeat().Generation,
			MaxVersion: state.MaxVersion(),
		})
	}

	rng.Shuffle(len(digests), func(i, j int) {
		digests[i], digests[j] = digests[j], digests[i]
	})

	return digests
}
