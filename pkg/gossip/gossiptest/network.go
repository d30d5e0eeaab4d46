// Package gossiptest provides in-memory test doubles for the gossip
// package: a channel-free loopback network and a recording membership
// listener.
package gossiptest

import (
	"sync"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/strato/pkg/gossip"
)

// Network routes packets between in-process gossipers without sockets.
// Delivery is synchronous: Send posts straight into the destination's
// mailbox via its PacketHandler.
type Network struct {
	mu       sync.RWMutex
	handlers map[gossip.NodeID]gossip.PacketHandler
	down     map[gossip.NodeID]bool
}

func NewNetwork() *Network {
	return &Network{
		handlers: make(map[gossip.NodeID]gossip.PacketHandler),
		down:     make(map[gossip.NodeID]bool),
	}
}

// Transport returns the TransportOut handle id sends through. The node's
// handler is bound separately with Register, so a gossiper can be constructed
// with its transport before it is routable.
func (n *Network) Transport(id gossip.NodeID) *Transport {
	return &Transport{network: n, source: id}
}

// Register binds a node's packet handler, making it reachable.
func (n *Network) Register(id gossip.NodeID, handler gossip.PacketHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = handler
}

// SetDown drops all traffic to and from id, simulating a crashed or
// partitioned node.
func (n *Network) SetDown(id gossip.NodeID, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = down
}

func (n *Network) deliver(source, peer gossip.NodeID, packet []byte) humane.Error {
	n.mu.RLock()
	handler, ok := n.handlers[peer]
	unreachable := n.down[peer] || n.down[source]
	n.mu.RUnlock()

	if !ok || unreachable {
		return humane.New("peer is unreachable", "the test network has no route to this node")
	}

	handler.HandlePacket(source, packet)
	return nil
}

// Transport is the per-node TransportOut handle into a Network.
type Transport struct {
	network *Network
	source  gossip.NodeID
}

func (t *Transport) Send(peer gossip.NodeID, packet []byte) humane.Error {
	return t.network.deliver(t.source, peer, packet)
}

// RecordingListener captures membership callbacks for assertions.
type RecordingListener struct {
	mu      sync.Mutex
	alive   []gossip.NodeID
	dead    []gossip.NodeID
	changes []gossip.Change
}

func NewRecordingListener() *RecordingListener {
	return &RecordingListener{}
}

func (l *RecordingListener) OnAlive(node gossip.NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alive = append(l.alive, node)
}

func (l *RecordingListener) OnDead(node gossip.NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dead = append(l.dead, node)
}

func (l *RecordingListener) OnChange(node gossip.NodeID, key gossip.StateKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, gossip.Change{Node: node, Key: key})
}

func (l *RecordingListener) Alive() []gossip.NodeID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gossip.NodeID(nil), l.alive...)
}

func (l *RecordingListener) Dead() []gossip.NodeID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gossip.NodeID(nil), l.dead...)
}

func (l *RecordingListener) Changes() []gossip.Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]gossip.Change(nil), l.changes...)
}
