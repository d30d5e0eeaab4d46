package gossip

import "time"

// EndpointState is the full local view of one cluster member: its heartbeat,
// its application state map, and liveness metadata. Instances are exclusively
// owned by the EndpointStateTable; table snapshots hand out deep copies, while
// Observe and Get return the table's own instance.
//
// The heartbeat version and every entry version are drawn from the same
// monotonic counter on the owning node, so MaxVersion is well defined.
type EndpointState struct {
	heartbeat Heartbeat
	states    map[StateKey]VersionedEntry

	alive    bool
	lastSeen time.Time
}

// NewEndpointState creates a state holding the given heartbeat and no
// application state entries.
func NewEndpointState(heartbeat Heartbeat) *EndpointState {
	return &EndpointState{
		heartbeat: heartbeat,
		states:    make(map[StateKey]VersionedEntry),
		alive:     true,
	}
}

// Heartbeat returns the current heartbeat.
func (s *EndpointState) Heartbeat() Heartbeat {
	return s.heartbeat
}

// Entry returns the entry for key, if any.
func (s *EndpointState) Entry(key StateKey) (VersionedEntry, bool) {
	e, ok := s.states[key]
	return e, ok
}

// Entries returns a copy of the application state map.
func (s *EndpointState) Entries() map[StateKey]VersionedEntry {
	out := make(map[StateKey]VersionedEntry, len(s.states))
	for k, e := range s.states {
		out[k] = VersionedEntry{Value: append([]byte(nil), e.Value...), Version: e.Version}
	}
	return out
}

// SetEntry stores an entry under key. It does not touch the heartbeat; the
// caller is responsible for version discipline.
func (s *EndpointState) SetEntry(key StateKey, e VersionedEntry) {
	s.states[key] = e
}

// MaxVersion is the greatest version across the heartbeat and all
// application state entries.
func (s *EndpointState) MaxVersion() int64 {
	maxVer := s.heartbeat.Version
	for _, e := range s.states {
		if e.Version > maxVer {
			maxVer = e.Version
		}
	}
	return maxVer
}

// Alive reports whether the failure detector currently considers the node up.
func (s *EndpointState) Alive() bool {
	return s.alive
}

// LastSeen is the monotonic instant of the last accepted heartbeat advance.
func (s *EndpointState) LastSeen() time.Time {
	return s.lastSeen
}

// Copy returns a deep copy.
func (s *EndpointState) Copy() *EndpointState {
	out := &EndpointState{
		heartbeat: s.heartbeat,
		states:    make(map[StateKey]VersionedEntry, len(s.states)),
		alive:     s.alive,
		lastSeen:  s.lastSeen,
	}
	for k, e := range s.states {
		out.states[k] = VersionedEntry{Value: append([]byte(nil), e.Value...), Version: e.Version}
	}
	return out
}

// copyAbove returns a copy holding only the entries with version strictly
// greater than minVersion. The heartbeat is always carried; the receiving
// side discards it again if its own copy is newer.
func (s *EndpointState) copyAbove(minVersion int64) *EndpointState {
	out := NewEndpointState(s.heartbeat)
	out.alive = s.alive
	out.lastSeen = s.lastSeen
	for k, e := range s.states {
		if e.Version > minVersion {
			out.states[k] = VersionedEntry{Value: append([]byte(nil), e.Value...), Version: e.Version}
		}
	}
	return out
}
