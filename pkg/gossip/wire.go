package gossip

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sierrasoftworks/humane-errors-go"
)

// WireVersion is the wire protocol major line. Decoders accept any payload
// of the same major line and ignore unknown trailing bytes, so minor
// additions stay rolling-upgrade safe.
const WireVersion byte = 1

// maxWireChunk bounds any single length-prefixed field so a corrupt length
// cannot drive an allocation.
const maxWireChunk = 16 << 20

// PacketType tags the three messages of a gossip round.
type PacketType byte

const (
	PacketTypeSyn  PacketType = 0x01
	PacketTypeAck  PacketType = 0x02
	PacketTypeAck2 PacketType = 0x03
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeSyn:
		return "SYN"
	case PacketTypeAck:
		return "ACK"
	case PacketTypeAck2:
		return "ACK2"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrorCorruptPacket     = humane.New("gossip packet is corrupt", "drop the packet; the sender will retry on the next gossip period")
	ErrorUnknownPacketType = humane.New("unknown gossip packet type", "drop the packet; a newer peer may be speaking a message this build does not know")
	ErrorUnsupportedWire   = humane.New("unsupported gossip wire version", "upgrade all nodes within one wire major line before crossing to the next")
)

// Envelope travels with every packet and identifies the sender.
type Envelope struct {
	Source      NodeID
	AnswerAddr  string
	Traceparent string
}

// Packet is the tagged variant for the three round messages. Only the
// payload fields matching Type are set.
type Packet struct {
	Type     PacketType
	Envelope Envelope

	// SYN and ACK carry digests: the SYN's summary of the initiator's
	// table, and the ACK's request list respectively.
	Digests []Digest

	// ACK and ACK2 carry state deltas.
	States map[NodeID]*EndpointState
}

// packetDecoders dispatches from the type tag to the body decoder.
var packetDecoders = map[PacketType]func(r *bytes.Reader, p *Packet) humane.Error{
	PacketTypeSyn:  decodeSynBody,
	PacketTypeAck:  decodeAckBody,
	PacketTypeAck2: decodeAck2Body,
}

// EncodePacket serializes a packet payload. Framing (the leading uvarint
// length) is the transport's job.
func EncodePacket(p *Packet) ([]byte, humane.Error) {
	var buf bytes.Buffer
	buf.WriteByte(WireVersion)
	buf.WriteByte(byte(p.Type))

	writeString(&buf, string(p.Envelope.Source))
	writeString(&buf, p.Envelope.AnswerAddr)
	writeString(&buf, p.Envelope.Traceparent)

	switch p.Type {
	case PacketTypeSyn:
		writeDigestList(&buf, p.Digests)

	case PacketTypeAck:
		writeDigestList(&buf, p.Digests)
		writeStateMap(&buf, p.States)

	case PacketTypeAck2:
		writeStateMap(&buf, p.States)

	default:
		return nil, ErrorUnknownPacketType
	}

	return buf.Bytes(), nil
}

// DecodePacket parses a packet payload produced by EncodePacket. Trailing
// bytes beyond the known fields are ignored.
func DecodePacket(data []byte) (*Packet, humane.Error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrorCorruptPacket
	}
	if version != WireVersion {
		return nil, ErrorUnsupportedWire
	}

	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrorCorruptPacket
	}

	p := &Packet{Type: PacketType(typeByte)}

	source, herr := readString(r)
	if herr != nil {
		return nil, herr
	}
	p.Envelope.Source = NodeID(source)

	if p.Envelope.AnswerAddr, herr = readString(r); herr != nil {
		return nil, herr
	}
	if p.Envelope.Traceparent, herr = readString(r); herr != nil {
		return nil, herr
	}

	decode, ok := packetDecoders[p.Type]
	if !ok {
		return nil, ErrorUnknownPacketType
	}
	if herr := decode(r, p); herr != nil {
		return nil, herr
	}

	return p, nil
}

func decodeSynBody(r *bytes.Reader, p *Packet) humane.Error {
	digests, herr := readDigestList(r)
	if herr != nil {
		return herr
	}
	p.Digests = digests
	return nil
}

func decodeAckBody(r *bytes.Reader, p *Packet) humane.Error {
	digests, herr := readDigestList(r)
	if herr != nil {
		return herr
	}
	states, herr := readStateMap(r)
	if herr != nil {
		return herr
	}
	p.Digests = digests
	p.States = states
	return nil
}

func decodeAck2Body(r *bytes.Reader, p *Packet) humane.Error {
	states, herr := readStateMap(r)
	if herr != nil {
		return herr
	}
	p.States = states
	return nil
}

// Digest list: uvarint count, then per record the serialized NodeID,
// varlong generation and varlong max version.

func writeDigestList(buf *bytes.Buffer, digests []Digest) {
	writeUvarint(buf, uint64(len(digests)))
	for _, d := range digests {
		writeString(buf, string(d.NodeID))
		writeVarint(buf, d.Generation)
		writeVarint(buf, d.MaxVersion)
	}
}

func readDigestList(r *bytes.Reader) ([]Digest, humane.Error) {
	count, herr := readCount(r)
	if herr != nil {
		return nil, herr
	}

	digests := make([]Digest, 0, count)
	for i := uint64(0); i < count; i++ {
		id, herr := readString(r)
		if herr != nil {
			return nil, herr
		}
		gen, herr := readVarint(r)
		if herr != nil {
			return nil, herr
		}
		maxVer, herr := readVarint(r)
		if herr != nil {
			return nil, herr
		}
		digests = append(digests, Digest{NodeID: NodeID(id), Generation: gen, MaxVersion: maxVer})
	}

	return digests, nil
}

// State map: uvarint count, then per record the serialized NodeID and the
// node's EndpointState.

func writeStateMap(buf *bytes.Buffer, states map[NodeID]*EndpointState) {
	writeUvarint(buf, uint64(len(states)))
	for id, state := range states {
		writeString(buf, string(id))
		writeEndpointState(buf, state)
	}
}

func readStateMap(r *bytes.Reader) (map[NodeID]*EndpointState, humane.Error) {
	count, herr := readCount(r)
	if herr != nil {
		return nil, herr
	}

	states := make(map[NodeID]*EndpointState, count)
	for i := uint64(0); i < count; i++ {
		id, herr := readString(r)
		if herr != nil {
			return nil, herr
		}
		state, herr := readEndpointState(r)
		if herr != nil {
			return nil, herr
		}
		states[NodeID(id)] = state
	}

	return states, nil
}

// EndpointState: heartbeat (generation, version), uvarint entry count, then
// per entry the key, the value bytes and the entry version. Liveness
// metadata is local only and never crosses the wire. Values written by the
// MVCC storage layer are already mvcc.BatchCodec emissions; this layer
// treats them as opaque bytes.

func writeEndpointState(buf *bytes.Buffer, state *EndpointState) {
	hb := state.Heartbeat()
	writeVarint(buf, hb.Generation)
	writeVarint(buf, hb.Version)

	entries := state.Entries()
	writeUvarint(buf, uint64(len(entries)))
	for key, e := range entries {
		writeString(buf, string(key))
		writeBytes(buf, e.Value)
		writeVarint(buf, e.Version)
	}
}

func readEndpointState(r *bytes.Reader) (*EndpointState, humane.Error) {
	gen, herr := readVarint(r)
	if herr != nil {
		return nil, herr
	}
	ver, herr := readVarint(r)
	if herr != nil {
		return nil, herr
	}

	state := NewEndpointState(Heartbeat{Generation: gen, Version: ver})

	count, herr := readCount(r)
	if herr != nil {
		return nil, herr
	}
	for i := uint64(0); i < count; i++ {
		key, herr := readString(r)
		if herr != nil {
			return nil, herr
		}
		value, herr := readRawBytes(r)
		if herr != nil {
			return nil, herr
		}
		entryVer, herr := readVarint(r)
		if herr != nil {
			return nil, herr
		}
		state.SetEntry(StateKey(key), VersionedEntry{Value: value, Version: entryVer})
	}

	return state, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readCount(r *bytes.Reader) (uint64, humane.Error) {
	count, err := binary.ReadUvarint(r)
	if err != nil || count > maxWireChunk {
		return 0, ErrorCorruptPacket
	}
	return count, nil
}

func readVarint(r *bytes.Reader) (int64, humane.Error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, ErrorCorruptPacket
	}
	return v, nil
}

func readRawBytes(r *bytes.Reader) ([]byte, humane.Error) {
	length, err := binary.ReadUvarint(r)
	if err != nil || length > maxWireChunk {
		return nil, ErrorCorruptPacket
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrorCorruptPacket
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, humane.Error) {
	b, herr := readRawBytes(r)
	if herr != nil {
		return "", herr
	}
	return string(b), nil
}
