package gossip

// ReconcileResult is the output of one reconciliation pass: the digests we
// need the peer to answer, and the state deltas we can offer the peer.
type ReconcileResult struct {
	Requests []Digest
	Deltas   map[NodeID]*EndpointState
}

// Reconcile partitions each remote digest against the local snapshot and
// decides, per node, whether to request state from the peer or offer state
// to it:
//
//   - local entry missing, or local generation older: request the node's
//     full state (MaxVersion 0 in the request digest).
//   - local generation newer: offer our full state; the peer's incarnation
//     of the node is obsolete.
//   - same generation, local max version greater: offer only the fragments
//     with version above the remote max.
//   - same generation, local max version smaller: request the delta above
//     our own max.
//   - equal: nothing to exchange.
//
// Any node known locally but absent from the digest list is offered in full,
// so both sides eventually learn about every member. Generation comparison
// never straddles a wraparound: generations are 63-bit and forever
// increasing.
func Reconcile(local TableSnapshot, remoteDigests []Digest) ReconcileResult {
	result := ReconcileResult{
		Requests: make([]Digest, 0),
		Deltas:   make(map[NodeID]*EndpointState),
	}

	seen := make(map[NodeID]struct{}, len(remoteDigests))

	for _, remote := range remoteDigests {
		seen[remote.NodeID] = struct{}{}

		state, known := local[remote.NodeID]
		if !known || state.Heartbeat().Generation < remote.Generation {
			result.Requests = append(result.Requests, Digest{
				NodeID:     remote.NodeID,
				Generation: remote.Generation,
				MaxVersion: 0,
			})
			continue
		}

		if state.Heartbeat().Generation > remote.Generation {
			result.Deltas[remote.NodeID] = state.Copy()
			continue
		}

		localMax := state.MaxVersion()
		switch {
		case localMax > remote.MaxVersion:
			result.Deltas[remote.NodeID] = state.copyAbove(remote.MaxVersion)

		case localMax < remote.MaxVersion:
			result.Requests = append(result.Requests, Digest{
				NodeID:     remote.NodeID,
				Generation: state.Heartbeat().Generation,
				MaxVersion: localMax,
			})
		}
	}

	for id, state := range local {
		if _, ok := seen[id]; ok {
			continue
		}
		result.Deltas[id] = state.Copy()
	}

	return result
}

// FulfillRequests answers a peer's request digests from the given snapshot.
// A request with MaxVersion 0 (or a generation older than ours) is answered
// with full state; otherwise only the fragments above the requested version
// are sent. Requests for nodes we do not know are silently skipped.
func FulfillRequests(local TableSnapshot, requests []Digest) map[NodeID]*EndpointState {
	deltas := make(map[NodeID]*EndpointState, len(requests))

	for _, req := range requests {
		state, known := local[req.NodeID]
		if !known {
			continue
		}

		if req.MaxVersion == 0 || state.Heartbeat().Generation != req.Generation {
			deltas[req.NodeID] = state.Copy()
			continue
		}

		deltas[req.NodeID] = state.copyAbove(req.MaxVersion)
	}

	return deltas
}
