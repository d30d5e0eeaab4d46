package gossip

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"
)

const varintLenBytes = 10

// TCPTransport carries gossip packets over short-lived TCP connections, one
// dial per send. Node ids double as dial addresses ("host:port"), so no
// separate address book is needed. Outbound writes happen on their own
// goroutines: Send never blocks the gossip executor on the network.
type TCPTransport struct {
	listener net.Listener
	sendCh   chan outbound
}

type outbound struct {
	peer NodeID
	data []byte
}

const (
	tcpSendQueueDepth = 256
	tcpSenderCount    = 4
)

// NewTCPTransport creates a transport accepting on listener. Call Serve with
// the gossiper as handler to start the receive loop.
func NewTCPTransport(listener net.Listener) *TCPTransport {
	return &TCPTransport{
		listener: listener,
		sendCh:   make(chan outbound, tcpSendQueueDepth),
	}
}

// Send queues a packet for delivery to peer. Best effort: a saturated queue
// drops the packet, the next gossip period repairs the gap.
func (t *TCPTransport) Send(peer NodeID, packet []byte) humane.Error {
	select {
	case t.sendCh <- outbound{peer: peer, data: packet}:
		return nil
	default:
		return humane.New("gossip send queue is full", "the peer set may be larger than the send workers can keep up with; raise the queue depth or lengthen the gossip interval")
	}
}

// Serve runs the accept loop and the send workers until ctx is cancelled.
// Inbound payloads are handed to handler; the handler must not block (the
// Gossiper posts to its mailbox and returns).
func (t *TCPTransport) Serve(ctx context.Context, handler PacketHandler) {
	for i := 0; i < tcpSenderCount; i++ {
		go t.sendLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		_ = t.listener.Close()
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			otelzap.L().WithError(humane.Wrap(err, "accept failed")).Warn("Gossip listener accept failed")
			continue
		}

		go t.handleConn(conn, handler)
	}
}

func (t *TCPTransport) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-t.sendCh:
			if err := t.write(out.peer, out.data); err != nil {
				sendFailures.Inc()
				otelzap.L().WithError(err).Debug("Failed to deliver gossip packet",
					zap.String("peer", out.peer.String()),
				)
			}
		}
	}
}

func (t *TCPTransport) write(peer NodeID, data []byte) humane.Error {
	conn, err := net.Dial("tcp", string(peer))
	if err != nil {
		return humane.Wrap(err, "failed to dial peer")
	}
	defer func() { _ = conn.Close() }()

	writer := bufio.NewWriter(conn)

	var hdr [varintLenBytes]byte
	hdrLen := binary.PutUvarint(hdr[:], uint64(len(data)))
	if _, err := writer.Write(hdr[:hdrLen]); err != nil {
		return humane.Wrap(err, "failed to write frame header")
	}

	if _, err := writer.Write(data); err != nil {
		return humane.Wrap(err, "failed to write frame")
	}

	if err := writer.Flush(); err != nil {
		return humane.Wrap(err, "failed to flush frame")
	}

	return nil
}

func (t *TCPTransport) handleConn(conn net.Conn, handler PacketHandler) {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReader(conn)
	for {
		data, herr := readFrame(reader)
		if herr != nil {
			otelzap.L().WithError(herr).Debug("Failed to read gossip frame",
				zap.String("remoteAddr", conn.RemoteAddr().String()),
			)
			return
		}
		if data == nil {
			return
		}

		handler.HandlePacket(NodeID(conn.RemoteAddr().String()), data)
	}
}

// readFrame reads one varint length-prefixed frame. A clean EOF between
// frames returns (nil, nil).
func readFrame(reader *bufio.Reader) ([]byte, humane.Error) {
	frameLen, err := binary.ReadUvarint(reader)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, humane.Wrap(err, "failed to read frame length")
	}

	if frameLen == 0 {
		return nil, nil
	}
	if frameLen > maxWireChunk {
		return nil, humane.New("gossip frame exceeds size bound", "a peer sent an oversized frame; the connection is dropped")
	}

	buf := make([]byte, frameLen)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, humane.Wrap(err, "failed to read frame body")
	}

	return buf, nil
}
