package gossip

import (
	"time"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"
)

var (
	// ErrorNotLocalNode is returned when a caller attempts to bump state
	// owned by a remote node. The table stays consistent because the
	// mutation is rejected before application.
	ErrorNotLocalNode = humane.New("cannot bump application state of a non-local node", "only the owning node may advance its own heartbeat counter")
)

// TableSnapshot is a consistent deep copy of the table, safe to read from
// any goroutine.
type TableSnapshot map[NodeID]*EndpointState

// EndpointStateTable is the authoritative local view of the cluster: one
// EndpointState per known node, the local node included. It is exclusively
// owned by the gossip executor; every mutation happens on that goroutine and
// readers elsewhere only ever see snapshots.
type EndpointStateTable struct {
	localID NodeID
	states  map[NodeID]*EndpointState
	now     func() time.Time
}

// NewEndpointStateTable creates a table seeded with the local node at the
// given generation and version 0.
func NewEndpointStateTable(localID NodeID, generation int64, now func() time.Time) *EndpointStateTable {
	t := &EndpointStateTable{
		localID: localID,
		states:  make(map[NodeID]*EndpointState),
		now:     now,
	}

	local := NewEndpointState(Heartbeat{Generation: generation, Version: 0})
	local.lastSeen = now()
	t.states[localID] = local
	return t
}

// LocalID returns the id of the local node.
func (t *EndpointStateTable) LocalID() NodeID {
	return t.localID
}

// Observe returns the state for id, inserting a zero-heartbeat entry if the
// node has never been seen. Idempotent.
func (t *EndpointStateTable) Observe(id NodeID) *EndpointState {
	if s, ok := t.states[id]; ok {
		return s
	}

	s := NewEndpointState(Heartbeat{})
	s.lastSeen = t.now()
	t.states[id] = s
	return s
}

// Get returns the state for id, if known.
func (t *EndpointStateTable) Get(id NodeID) (*EndpointState, bool) {
	s, ok := t.states[id]
	return s, ok
}

// BumpHeartbeat advances the local heartbeat version by one and returns the
// new heartbeat. Called once per gossip period.
func (t *EndpointStateTable) BumpHeartbeat() Heartbeat {
	local := t.states[t.localID]
	local.heartbeat.Version++
	local.lastSeen = t.now()
	return local.heartbeat
}

// BumpLocal advances the local heartbeat version and stores key at the new
// version. Rejected with ErrorNotLocalNode for any id other than the local
// node: remote state only ever changes through ApplyRemote.
func (t *EndpointStateTable) BumpLocal(id NodeID, key StateKey, value []byte) humane.Error {
	if id != t.localID {
		return ErrorNotLocalNode
	}

	local := t.states[t.localID]
	local.heartbeat.Version++
	local.states[key] = VersionedEntry{
		Value:   append([]byte(nil), value...),
		Version: local.heartbeat.Version,
	}
	local.lastSeen = t.now()
	return nil
}

// ApplyRemote merges a remote view of id into the table following the
// generation/version merge rules and returns the (node, key) pairs that
// actually changed. A remote generation greater than ours replaces the node
// state wholesale; within the same generation the heartbeat is replaced only
// when strictly newer and entries are accepted individually only when their
// version is strictly greater than ours. Anything older is discarded, so
// observed heartbeats are non-decreasing and re-applying the same state is a
// no-op.
func (t *EndpointStateTable) ApplyRemote(id NodeID, remote *EndpointState) []Change {
	// We are the authoritative source for our own state.
	if id == t.localID {
		return nil
	}

	local, known := t.states[id]
	now := t.now()

	if !known || remote.heartbeat.Generation > local.heartbeat.Generation {
		if known {
			otelzap.L().Info("Node restarted, replacing state wholesale",
				zap.String("nodeID", t.localID.String()),
				zap.String("peerID", id.String()),
				zap.Int64("oldGeneration", local.heartbeat.Generation),
				zap.Int64("newGeneration", remote.heartbeat.Generation),
			)
		}

		fresh := remote.Copy()
		fresh.alive = true
		fresh.lastSeen = now
		t.states[id] = fresh

		changes := make([]Change, 0, len(remote.states)+1)
		changes = append(changes, Change{Node: id, Key: StateKeyHeartbeat})
		for k := range remote.states {
			changes = append(changes, Change{Node: id, Key: k})
		}
		return changes
	}

	if remote.heartbeat.Generation < local.heartbeat.Generation {
		// Stale incarnation, discard wholesale.
		return nil
	}

	changes := make([]Change, 0, len(remote.states))

	if remote.heartbeat.Version > local.heartbeat.Version {
		local.heartbeat = remote.heartbeat
		local.lastSeen = now
		changes = append(changes, Change{Node: id, Key: StateKeyHeartbeat})
	}

	for k, re := range remote.states {
		le, ok := local.states[k]
		if ok && re.Version <= le.Version {
			continue
		}
		local.states[k] = VersionedEntry{Value: append([]byte(nil), re.Value...), Version: re.Version}
		changes = append(changes, Change{Node: id, Key: k})
	}

	return changes
}

// Snapshot returns a deep copy of the whole table for outbound message
// assembly and external readers.
func (t *EndpointStateTable) Snapshot() TableSnapshot {
	snap := make(TableSnapshot, len(t.states))
	for id, s := range t.states {
		snap[id] = s.Copy()
	}
	return snap
}

// setAlive flips the liveness flag for id and reports whether it changed.
func (t *EndpointStateTable) setAlive(id NodeID, alive bool) bool {
	s, ok := t.states[id]
	if !ok || s.alive == alive {
		return false
	}
	s.alive = alive
	return true
}

// markSeen refreshes the last seen instant for id.
func (t *EndpointStateTable) markSeen(id NodeID) {
	if s, ok := t.states[id]; ok {
		s.lastSeen = t.now()
	}
}
