package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(states map[NodeID]*EndpointState) TableSnapshot {
	snap := make(TableSnapshot, len(states))
	for id, s := range states {
		snap[id] = s.Copy()
	}
	return snap
}

func TestReconcilePartitionsDigests(t *testing.T) {
	t.Helper()
	t.Parallel()

	local := snapshotOf(map[NodeID]*EndpointState{
		// Older incarnation than the peer's digest below (3 < 5): case A.
		"restarted:1": remoteState(3, 2, map[StateKey]VersionedEntry{
			StateKeyStatus: {Value: []byte("UP"), Version: 1},
		}),
		// Case C: same generation, we are ahead, we offer fragments.
		"ahead:1": remoteState(1, 9, map[StateKey]VersionedEntry{
			StateKeyLoad:   {Value: []byte("100"), Version: 7},
			StateKeyStatus: {Value: []byte("ok"), Version: 9},
		}),
		// Case D: same generation, we are behind, we request the delta.
		"behind:1": remoteState(1, 4, nil),
		// Case E: equal, nothing happens.
		"equal:1": remoteState(1, 5, nil),
		// Local-only node, offered in full.
		"hidden:1": remoteState(1, 2, nil),
	})

	remote := []Digest{
		// Case A: we have never seen this node.
		{NodeID: "unknown:1", Generation: 4, MaxVersion: 17},
		// Case A: the peer saw a newer incarnation than ours.
		{NodeID: "restarted:1", Generation: 5, MaxVersion: 1},
		{NodeID: "ahead:1", Generation: 1, MaxVersion: 7},
		{NodeID: "behind:1", Generation: 1, MaxVersion: 8},
		{NodeID: "equal:1", Generation: 1, MaxVersion: 5},
	}

	// "restarted" appears with generation 5 remotely, so despite holding
	// generation 3 locally we must request, not offer.
	result := Reconcile(local, remote)

	requests := make(map[NodeID]Digest, len(result.Requests))
	for _, d := range result.Requests {
		requests[d.NodeID] = d
	}

	require.Len(t, requests, 3)
	assert.Equal(t, int64(0), requests["unknown:1"].MaxVersion)
	assert.Equal(t, int64(0), requests["restarted:1"].MaxVersion)
	assert.Equal(t, int64(4), requests["behind:1"].MaxVersion)

	require.Len(t, result.Deltas, 2)

	// Case C delta carries only the fragments above the remote max version.
	ahead := result.Deltas["ahead:1"]
	require.NotNil(t, ahead)
	entries := ahead.Entries()
	require.Len(t, entries, 1)
	status, ok := entries[StateKeyStatus]
	require.True(t, ok)
	assert.Equal(t, int64(9), status.Version)

	// Local-only node offered in full.
	hidden := result.Deltas["hidden:1"]
	require.NotNil(t, hidden)
	assert.Equal(t, Heartbeat{Generation: 1, Version: 2}, hidden.Heartbeat())
}

func TestReconcileEqualTablesAreQuiet(t *testing.T) {
	t.Helper()
	t.Parallel()

	local := snapshotOf(map[NodeID]*EndpointState{
		"a:1": remoteState(1, 5, nil),
		"b:1": remoteState(2, 3, nil),
	})

	remote := []Digest{
		{NodeID: "a:1", Generation: 1, MaxVersion: 5},
		{NodeID: "b:1", Generation: 2, MaxVersion: 3},
	}

	result := Reconcile(local, remote)
	assert.Empty(t, result.Requests)
	assert.Empty(t, result.Deltas)
}

func TestFulfillRequests(t *testing.T) {
	t.Helper()
	t.Parallel()

	local := snapshotOf(map[NodeID]*EndpointState{
		"full:1": remoteState(2, 3, map[StateKey]VersionedEntry{
			StateKeyStatus: {Value: []byte("UP"), Version: 2},
		}),
		"partial:1": remoteState(1, 9, map[StateKey]VersionedEntry{
			StateKeyLoad:   {Value: []byte("100"), Version: 7},
			StateKeyStatus: {Value: []byte("ok"), Version: 9},
		}),
	})

	deltas := FulfillRequests(local, []Digest{
		{NodeID: "full:1", Generation: 2, MaxVersion: 0},
		{NodeID: "partial:1", Generation: 1, MaxVersion: 7},
		{NodeID: "missing:1", Generation: 1, MaxVersion: 0},
	})

	require.Len(t, deltas, 2)

	full := deltas["full:1"]
	require.NotNil(t, full)
	assert.Len(t, full.Entries(), 1)

	partial := deltas["partial:1"]
	require.NotNil(t, partial)
	entries := partial.Entries()
	require.Len(t, entries, 1)
	_, hasStatus := entries[StateKeyStatus]
	assert.True(t, hasStatus)
}

// TestDigestSymmetry checks that the requests produced against a peer's
// digests, once answered from the peer's table, deliver exactly the
// (node, key) pairs where the peer is strictly newer.
func TestDigestSymmetry(t *testing.T) {
	t.Helper()
	t.Parallel()

	localTable := NewEndpointStateTable("l:1", 1, fixedClock())
	localTable.ApplyRemote("x:1", remoteState(1, 4, map[StateKey]VersionedEntry{
		StateKeyStatus: {Value: []byte("old"), Version: 4},
	}))
	localTable.ApplyRemote("y:1", remoteState(2, 2, map[StateKey]VersionedEntry{
		StateKeyStatus: {Value: []byte("same"), Version: 2},
	}))

	remoteTable := NewEndpointStateTable("r:1", 1, fixedClock())
	remoteTable.ApplyRemote("x:1", remoteState(1, 8, map[StateKey]VersionedEntry{
		StateKeyStatus: {Value: []byte("new"), Version: 6},
		StateKeyLoad:   {Value: []byte("3"), Version: 8},
	}))
	remoteTable.ApplyRemote("y:1", remoteState(2, 2, map[StateKey]VersionedEntry{
		StateKeyStatus: {Value: []byte("same"), Version: 2},
	}))

	remoteSnap := remoteTable.Snapshot()
	remoteDigests := make([]Digest, 0, len(remoteSnap))
	for id, state := range remoteSnap {
		remoteDigests = append(remoteDigests, Digest{
			NodeID:     id,
			Generation: state.Heartbeat().Generation,
			MaxVersion: state.MaxVersion(),
		})
	}

	result := Reconcile(localTable.Snapshot(), remoteDigests)
	answers := FulfillRequests(remoteSnap, result.Requests)

	// Besides the remote node itself, x is the only node where the remote is
	// strictly newer; its answer must contain exactly x's fragments above our
	// max version 4.
	require.Len(t, answers, 2)

	x := answers["x:1"]
	require.NotNil(t, x)
	entries := x.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(6), entries[StateKeyStatus].Version)
	assert.Equal(t, int64(8), entries[StateKeyLoad].Version)

	// The remote node itself is unknown to us, so it is requested in full.
	r := answers["r:1"]
	require.NotNil(t, r)

	// y is identical on both sides and must not appear.
	_, hasY := answers["y:1"]
	assert.False(t, hasY)
}
