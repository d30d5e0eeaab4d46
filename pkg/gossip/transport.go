package gossip

import (
	"github.com/sierrasoftworks/humane-errors-go"
)

// TransportOut sends an encoded packet to a peer, best effort. Send must not
// block the caller on network I/O: the gossip executor calls it inline, and
// the executor never yields. Failures are reported so they can be counted;
// they never demote the peer directly, the failure detector will notice the
// missing heartbeats on its own.
type TransportOut interface {
	Send(peer NodeID, packet []byte) humane.Error
}

// PacketHandler receives decoded-off-the-socket packet bytes from a
// transport. Implementations must be safe to call from any goroutine; the
// Gossiper satisfies this by posting into its mailbox.
type PacketHandler interface {
	HandlePacket(peer NodeID, packet []byte)
}
