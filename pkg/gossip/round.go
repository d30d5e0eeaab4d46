package gossip

import (
	"context"
	"time"

	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// roundPhase tracks where an outstanding round stands. The initiator walks
// Idle, SynSent, AckSent, Done; the responder walks Idle, AckReplied, Done.
// Each packet type has its own handler; the phase records how far the round
// with a peer has progressed.
type roundPhase int

const (
	roundIdle roundPhase = iota
	roundSynSent
	roundAckSent
	roundAckReplied
	roundDone
)

func (p roundPhase) String() string {
	switch p {
	case roundIdle:
		return "Idle"
	case roundSynSent:
		return "SynSent"
	case roundAckSent:
		return "AckSent"
	case roundAckReplied:
		return "AckReplied"
	case roundDone:
		return "Done"
	}
	return "Unknown"
}

// round is the per-peer exchange state. Rounds with different peers run
// concurrently; a new round to the same peer may start before the prior one
// is Done and simply supersedes it.
type round struct {
	peer    NodeID
	phase   roundPhase
	seq     uint64
	started time.Time
}

// startRound snapshots the table and opens a SYN/ACK/ACK2 exchange with
// peer.
func (g *Gossiper) startRound(ctx context.Context, peer NodeID) {
	ctx, span := tracer.Start(ctx, "gossip.startRound",
		trace.WithAttributes(
			attribute.String("gossip.node_id", g.localID.String()),
			attribute.String("gossip.peer", peer.String()),
		),
	)
	defer span.End()

	digests := DigestsFromSnapshot(g.table.Snapshot(), g.rng)
	span.SetAttributes(attribute.Int("gossip.digest_count", len(digests)))

	g.send(ctx, peer, &Packet{Type: PacketTypeSyn, Digests: digests})

	g.roundSeq++
	g.rounds[peer] = &round{
		peer:    peer,
		phase:   roundSynSent,
		seq:     g.roundSeq,
		started: g.now(),
	}
	g.armRoundTimer(ctx, peer, g.roundSeq)

	roundsStarted.WithLabelValues("initiator").Inc()
}

// armRoundTimer posts a timeout event for (peer, seq) into the mailbox once
// the round deadline passes. The event is ignored if the round progressed or
// was superseded in the meantime.
func (g *Gossiper) armRoundTimer(ctx context.Context, peer NodeID, seq uint64) {
	time.AfterFunc(g.roundTimeout, func() {
		g.post(ctx, roundTimeoutEvent{peer: peer, seq: seq})
	})
}

// handleRoundTimeout abandons a round that saw no progress before its soft
// deadline. Nothing is rolled back: partial merges from an ACK are
// legitimate and keep convergence moving.
func (g *Gossiper) handleRoundTimeout(peer NodeID, seq uint64) {
	r, ok := g.rounds[peer]
	if !ok || r.seq != seq || r.phase == roundDone {
		return
	}

	otelzap.L().Debug("Gossip round abandoned",
		zap.String("nodeID", g.localID.String()),
		zap.String("peerID", peer.String()),
		zap.String("phase", r.phase.String()),
	)

	delete(g.rounds, peer)
	roundsAbandoned.Inc()
}

// handlePacket decodes an inbound payload and dispatches it by type. Any
// decode error drops the packet without mutating state.
func (g *Gossiper) handlePacket(ctx context.Context, peer NodeID, data []byte) {
	p, herr := DecodePacket(data)
	if herr != nil {
		switch herr {
		case ErrorUnknownPacketType:
			packetsDropped.WithLabelValues(dropCauseUnknownType).Inc()
		case ErrorUnsupportedWire:
			packetsDropped.WithLabelValues(dropCauseVersion).Inc()
		default:
			packetsDropped.WithLabelValues(dropCauseCorrupt).Inc()
		}

		otelzap.L().WithError(herr).Debug("Dropping gossip packet",
			zap.String("nodeID", g.localID.String()),
			zap.String("peerID", peer.String()),
		)
		return
	}

	ctx = contextWithTraceparent(ctx, p.Envelope.Traceparent)
	ctx, span := tracer.Start(ctx, "gossip.handlePacket",
		trace.WithAttributes(
			attribute.String("gossip.node_id", g.localID.String()),
			attribute.String("gossip.src_id", p.Envelope.Source.String()),
			attribute.String("gossip.packet_type", p.Type.String()),
		),
	)
	defer span.End()

	// Trust the envelope over the transport's peer guess: the answer
	// address is where replies must go on asymmetric networks.
	source := p.Envelope.Source
	replyTo := source
	if p.Envelope.AnswerAddr != "" {
		replyTo = NodeID(p.Envelope.AnswerAddr)
	}

	switch p.Type {
	case PacketTypeSyn:
		g.handleSyn(ctx, source, replyTo, p)
	case PacketTypeAck:
		g.handleAck(ctx, source, replyTo, p)
	case PacketTypeAck2:
		g.handleAck2(ctx, source, p)
	}
}

// handleSyn serves the responder half of a round: no mutations, just
// reconciliation against a snapshot, answered with requests and offers.
func (g *Gossiper) handleSyn(ctx context.Context, source, replyTo NodeID, p *Packet) {
	result := Reconcile(g.table.Snapshot(), p.Digests)

	g.send(ctx, replyTo, &Packet{
		Type:    PacketTypeAck,
		Digests: result.Requests,
		States:  result.Deltas,
	})

	g.roundSeq++
	g.rounds[source] = &round{
		peer:    source,
		phase:   roundAckReplied,
		seq:     g.roundSeq,
		started: g.now(),
	}
	g.armRoundTimer(ctx, source, g.roundSeq)

	roundsStarted.WithLabelValues("responder").Inc()
}

// handleAck completes the initiator half: merge the responder's offers,
// answer its requests from the now-merged table, and finish with an ACK2.
func (g *Gossiper) handleAck(ctx context.Context, source, replyTo NodeID, p *Packet) {
	r, ok := g.rounds[source]
	if ok && r.phase == roundSynSent {
		r.phase = roundAckSent
	}

	g.applyStates(p.States)

	deltas := FulfillRequests(g.table.Snapshot(), p.Digests)
	g.send(ctx, replyTo, &Packet{Type: PacketTypeAck2, States: deltas})

	// An ACK with no matching round arrived after a timeout or reordering;
	// the merge above is still legitimate, only the bookkeeping is gone.
	if ok && r.phase == roundAckSent {
		r.phase = roundDone
		delete(g.rounds, source)
		roundsCompleted.Inc()
	}
}

// handleAck2 completes the responder half: merge what the initiator sent
// back.
func (g *Gossiper) handleAck2(ctx context.Context, source NodeID, p *Packet) {
	_, span := tracer.Start(ctx, "gossip.handleAck2",
		trace.WithAttributes(
			attribute.String("gossip.node_id", g.localID.String()),
			attribute.Int("gossip.state_delta_size", len(p.States)),
		),
	)
	defer span.End()

	g.applyStates(p.States)

	if r, ok := g.rounds[source]; ok && r.phase == roundAckReplied {
		r.phase = roundDone
		delete(g.rounds, source)
		roundsCompleted.Inc()
	}
}

// traceparentFromContext serializes the active span context using the W3C
// Trace Context format so a round is traceable across nodes.
func traceparentFromContext(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier["traceparent"]
}

func contextWithTraceparent(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
