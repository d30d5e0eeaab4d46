package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	t.Helper()
	t.Parallel()

	digests := []Digest{
		{NodeID: "a:1", Generation: 17, MaxVersion: 42},
		{NodeID: "b:1", Generation: 3, MaxVersion: 0},
	}

	states := map[NodeID]*EndpointState{
		"a:1": remoteState(17, 42, map[StateKey]VersionedEntry{
			StateKeyStatus: {Value: []byte("UP"), Version: 40},
			StateKeyLoad:   {Value: []byte{0x00, 0xff}, Version: 42},
		}),
		"c:1": remoteState(9, 1, nil),
	}

	tests := []struct {
		name   string
		packet *Packet
	}{
		{
			name: "syn",
			packet: &Packet{
				Type:     PacketTypeSyn,
				Envelope: Envelope{Source: "a:1", AnswerAddr: "10.0.0.1:7946"},
				Digests:  digests,
			},
		},
		{
			name: "ack",
			packet: &Packet{
				Type:     PacketTypeAck,
				Envelope: Envelope{Source: "b:1", AnswerAddr: "10.0.0.2:7946", Traceparent: "00-abc-def-01"},
				Digests:  digests,
				States:   states,
			},
		},
		{
			name: "ack2",
			packet: &Packet{
				Type:     PacketTypeAck2,
				Envelope: Envelope{Source: "a:1"},
				States:   states,
			},
		},
		{
			name: "ack with empty payload",
			packet: &Packet{
				Type:     PacketTypeAck,
				Envelope: Envelope{Source: "b:1"},
				Digests:  []Digest{},
				States:   map[NodeID]*EndpointState{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			t.Parallel()

			data, err := EncodePacket(tt.packet)
			require.NoError(t, err)

			decoded, err := DecodePacket(data)
			require.NoError(t, err)

			assert.Equal(t, tt.packet.Type, decoded.Type)
			assert.Equal(t, tt.packet.Envelope, decoded.Envelope)

			require.Len(t, decoded.Digests, len(tt.packet.Digests))
			for i, d := range tt.packet.Digests {
				assert.Equal(t, d, decoded.Digests[i])
			}

			require.Len(t, decoded.States, len(tt.packet.States))
			for id, state := range tt.packet.States {
				got, ok := decoded.States[id]
				require.True(t, ok, "state for %s should survive the round trip", id)
				assert.Equal(t, state.Heartbeat(), got.Heartbeat())
				assert.Equal(t, state.Entries(), got.Entries())
			}
		})
	}
}

func TestDecodePacketErrors(t *testing.T) {
	t.Helper()
	t.Parallel()

	valid, err := EncodePacket(&Packet{
		Type:     PacketTypeSyn,
		Envelope: Envelope{Source: "a:1"},
		Digests:  []Digest{{NodeID: "a:1", Generation: 1, MaxVersion: 1}},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     []byte
		expected error
	}{
		{
			name:     "empty payload",
			data:     []byte{},
			expected: ErrorCorruptPacket,
		},
		{
			name:     "wrong wire version",
			data:     append([]byte{WireVersion + 1}, valid[1:]...),
			expected: ErrorUnsupportedWire,
		},
		{
			name:     "unknown packet type",
			data:     append([]byte{WireVersion, 0x7f}, valid[2:]...),
			expected: ErrorUnknownPacketType,
		},
		{
			name:     "truncated body",
			data:     valid[:len(valid)-2],
			expected: ErrorCorruptPacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			t.Parallel()

			_, err := DecodePacket(tt.data)
			assert.Equal(t, tt.expected, err)
		})
	}
}

func TestDecodePacketIgnoresTrailingBytes(t *testing.T) {
	t.Helper()
	t.Parallel()

	data, err := EncodePacket(&Packet{
		Type:     PacketTypeSyn,
		Envelope: Envelope{Source: "a:1"},
		Digests:  []Digest{{NodeID: "a:1", Generation: 1, MaxVersion: 5}},
	})
	require.NoError(t, err)

	// A newer minor revision may append fields this build does not know.
	data = append(data, 0xde, 0xad, 0xbe, 0xef)

	decoded, herr := DecodePacket(data)
	require.NoError(t, herr)
	assert.Equal(t, PacketTypeSyn, decoded.Type)
	require.Len(t, decoded.Digests, 1)
	assert.Equal(t, Digest{NodeID: "a:1", Generation: 1, MaxVersion: 5}, decoded.Digests[0])
}
